package models

import "time"

// Status is a presence status as stored or displayed.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
	StatusDND     Status = "dnd"
	StatusOffline Status = "offline"
)

// ValidStatus reports whether s is one of the five known presence statuses.
func ValidStatus(s Status) bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusDND, StatusOffline:
		return true
	}
	return false
}

// PresenceRecord is the stored per-user presence row. Rows are created on the
// first heartbeat and updated in place afterwards; they are never hard-deleted.
// Expiry is implicit: readers derive an effective status from LastSeenAt and
// must never trust the stored Status verbatim.
type PresenceRecord struct {
	UserID          string     `json:"user_id" gorm:"primaryKey"`
	Status          Status     `json:"status" gorm:"not null;default:offline"`
	LastSeenAt      *time.Time `json:"last_seen_at"`
	ActiveChannelID *string    `json:"active_channel_id,omitempty"`
	CustomMessage   *string    `json:"custom_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (PresenceRecord) TableName() string {
	return "presence_records"
}

// ManualStatusOverride is a session-local, user-chosen status. Status may be
// nil when only a custom message was set. PreviousStatus remembers what the
// tracker had computed before the override, so callers can restore it.
type ManualStatusOverride struct {
	Status         *Status `json:"status"`
	CustomMessage  *string `json:"custom_message"`
	PreviousStatus Status  `json:"previous_status"`
}

// NotificationPrefs holds per-user notification settings, including the
// quiet-hours window during which notification sounds are suppressed.
// Start/End are wall-clock times formatted "HH:MM"; the window may span
// midnight.
type NotificationPrefs struct {
	UserID            string    `json:"user_id" gorm:"primaryKey"`
	SoundEnabled      bool      `json:"sound_enabled" gorm:"default:true"`
	QuietHoursEnabled bool      `json:"quiet_hours_enabled" gorm:"default:false"`
	QuietHoursStart   string    `json:"quiet_hours_start" gorm:"default:'22:00'"`
	QuietHoursEnd     string    `json:"quiet_hours_end" gorm:"default:'08:00'"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (NotificationPrefs) TableName() string {
	return "notification_prefs"
}

// PresenceEvent is published on the presence pub/sub channel whenever a
// record changes.
type PresenceEvent struct {
	UserID          string     `json:"user_id"`
	Status          Status     `json:"status"`
	LastSeenAt      *time.Time `json:"last_seen_at"`
	ActiveChannelID *string    `json:"active_channel_id,omitempty"`
	CustomMessage   *string    `json:"custom_message,omitempty"`
}

// Request/Response DTOs

type HeartbeatRequest struct {
	Status          Status  `json:"status"`
	CustomMessage   *string `json:"custom_message"`
	ActiveChannelID *string `json:"active_channel_id"`
}

type ActiveChannelRequest struct {
	ChannelID *string `json:"channel_id"`
}

type StatusResponse struct {
	UserID          string     `json:"user_id"`
	Status          Status     `json:"status"`
	EffectiveStatus Status     `json:"effective_status"`
	LastSeenAt      *time.Time `json:"last_seen_at"`
	IsOnline        bool       `json:"is_online"`
	CustomMessage   *string    `json:"custom_message,omitempty"`
	ActiveChannelID *string    `json:"active_channel_id,omitempty"`
}

type OnlineUsersResponse struct {
	Count int              `json:"count"`
	Users []StatusResponse `json:"users"`
}

type NotificationPrefsResponse struct {
	NotificationPrefs
	InQuietHours bool `json:"in_quiet_hours"`
}

type UpdatePrefsRequest struct {
	SoundEnabled      *bool   `json:"sound_enabled"`
	QuietHoursEnabled *bool   `json:"quiet_hours_enabled"`
	QuietHoursStart   *string `json:"quiet_hours_start"`
	QuietHoursEnd     *string `json:"quiet_hours_end"`
}
