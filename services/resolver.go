package services

import (
	"time"

	"beacon/presence-service/models"
)

// DefaultStaleThreshold is the maximum age of LastSeenAt before a presence
// record is considered expired by readers.
const DefaultStaleThreshold = 45 * time.Second

// ResolveStatus maps a stored presence record and the current time to the
// status readers should display. The stored status is never trusted verbatim:
// a stale record is offline no matter what it says, and a fresh record that
// says offline is shown as online so a replication-lagged offline write does
// not flash in the UI.
//
// The function is pure; now is always passed in explicitly.
func ResolveStatus(rec *models.PresenceRecord, now time.Time, staleThreshold time.Duration) models.Status {
	if staleThreshold <= 0 {
		staleThreshold = DefaultStaleThreshold
	}

	if rec == nil {
		return models.StatusOffline
	}

	if rec.LastSeenAt == nil || rec.LastSeenAt.IsZero() {
		return models.StatusOffline
	}

	// Staleness always wins, regardless of the stored status.
	if now.Sub(*rec.LastSeenAt) > staleThreshold {
		return models.StatusOffline
	}

	// Anti-flicker: a fresh row claiming offline is a lagged write.
	if rec.Status == models.StatusOffline {
		return models.StatusOnline
	}

	switch rec.Status {
	case models.StatusOnline, models.StatusAway, models.StatusBusy, models.StatusDND:
		return rec.Status
	}

	return models.StatusOffline
}

// IsEffectivelyOnline reports whether an effective status counts as online
// for "who is here" purposes. Every status except offline does.
func IsEffectivelyOnline(status models.Status) bool {
	return status != models.StatusOffline
}

// IsInQuietHours reports whether now falls inside the [start, end) wall-clock
// window. Bounds are "HH:MM" strings; a window whose end precedes its start
// spans midnight. Malformed bounds or an empty window are never quiet.
func IsInQuietHours(start, end string, now time.Time) bool {
	startMin, ok := parseClockMinutes(start)
	if !ok {
		return false
	}
	endMin, ok := parseClockMinutes(end)
	if !ok {
		return false
	}
	if startMin == endMin {
		return false
	}

	cur := now.Hour()*60 + now.Minute()

	if startMin < endMin {
		return cur >= startMin && cur < endMin
	}

	// Spans midnight, e.g. 22:15 -> 06:45.
	return cur >= startMin || cur < endMin
}

func parseClockMinutes(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
