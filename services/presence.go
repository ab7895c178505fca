package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"beacon/presence-service/models"
	"beacon/presence-service/utils"
)

const (
	onlineSetKey          = "online_users"
	PresenceEventsChannel = "presence:events"
)

// PresenceService owns the durable presence records. Rows live in Postgres
// and are never hard-deleted; Redis carries the online-users set and the
// pub/sub change feed. Every read goes through the resolver, so the stored
// status is never returned as the effective one.
type PresenceService struct {
	db             *gorm.DB
	redis          *redis.Client
	logger         *utils.Logger
	staleThreshold time.Duration
}

func NewPresenceService(db *gorm.DB, redisClient *redis.Client, logger *utils.Logger, staleThreshold time.Duration) *PresenceService {
	if staleThreshold <= 0 {
		staleThreshold = DefaultStaleThreshold
	}
	return &PresenceService{
		db:             db,
		redis:          redisClient,
		logger:         logger,
		staleThreshold: staleThreshold,
	}
}

// Heartbeat records a status report from a client. The record is created on
// the first heartbeat and updated in place afterwards; LastSeenAt never moves
// backwards, so replayed or out-of-order reports cannot make a user look
// staler than they are.
func (ps *PresenceService) Heartbeat(ctx context.Context, userID string, status models.Status, customMessage, activeChannelID *string) (*models.PresenceRecord, error) {
	if status == "" {
		status = models.StatusOnline
	}
	if !models.ValidStatus(status) {
		return nil, fmt.Errorf("unknown status %q", status)
	}

	now := time.Now()

	var rec models.PresenceRecord
	err := ps.db.WithContext(ctx).First(&rec, "user_id = ?", userID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec = models.PresenceRecord{
			UserID:          userID,
			Status:          status,
			LastSeenAt:      &now,
			CustomMessage:   customMessage,
			ActiveChannelID: activeChannelID,
		}
		if err := ps.db.WithContext(ctx).Create(&rec).Error; err != nil {
			return nil, fmt.Errorf("failed to create presence record: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load presence record: %w", err)
	default:
		rec.Status = status
		if rec.LastSeenAt == nil || now.After(*rec.LastSeenAt) {
			rec.LastSeenAt = &now
		}
		if customMessage != nil {
			rec.CustomMessage = customMessage
		}
		if activeChannelID != nil {
			rec.ActiveChannelID = activeChannelID
		}
		if err := ps.db.WithContext(ctx).Save(&rec).Error; err != nil {
			return nil, fmt.Errorf("failed to update presence record: %w", err)
		}
	}

	ps.publishChange(ctx, &rec)
	return &rec, nil
}

// UpdateActiveChannel records which channel the user is currently viewing.
func (ps *PresenceService) UpdateActiveChannel(ctx context.Context, userID string, channelID *string) error {
	err := ps.db.WithContext(ctx).
		Model(&models.PresenceRecord{}).
		Where("user_id = ?", userID).
		Update("active_channel_id", channelID).Error
	if err != nil {
		return fmt.Errorf("failed to update active channel: %w", err)
	}
	return nil
}

// GetPresence returns the stored record (nil when the user has never
// heartbeated) together with the effective status readers should display.
func (ps *PresenceService) GetPresence(ctx context.Context, userID string) (*models.PresenceRecord, models.Status, error) {
	var rec models.PresenceRecord
	err := ps.db.WithContext(ctx).First(&rec, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.StatusOffline, nil
	}
	if err != nil {
		return nil, models.StatusOffline, fmt.Errorf("failed to get presence: %w", err)
	}

	return &rec, ResolveStatus(&rec, time.Now(), ps.staleThreshold), nil
}

// GetOnlineUsers returns everyone whose effective status is not offline.
// Expired members of the online set are pruned as a side effect.
func (ps *PresenceService) GetOnlineUsers(ctx context.Context) ([]models.StatusResponse, error) {
	userIDs, err := ps.redis.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read online set: %w", err)
	}

	if len(userIDs) == 0 {
		return []models.StatusResponse{}, nil
	}

	var records []models.PresenceRecord
	if err := ps.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load presence records: %w", err)
	}

	now := time.Now()
	online := make([]models.StatusResponse, 0, len(records))
	valid := make(map[string]bool, len(records))

	for i := range records {
		rec := &records[i]
		effective := ResolveStatus(rec, now, ps.staleThreshold)
		if !IsEffectivelyOnline(effective) {
			continue
		}
		valid[rec.UserID] = true
		online = append(online, models.StatusResponse{
			UserID:          rec.UserID,
			Status:          rec.Status,
			EffectiveStatus: effective,
			LastSeenAt:      rec.LastSeenAt,
			IsOnline:        true,
			CustomMessage:   rec.CustomMessage,
			ActiveChannelID: rec.ActiveChannelID,
		})
	}

	// Prune expired users from the online set.
	var expired []string
	for _, userID := range userIDs {
		if !valid[userID] {
			expired = append(expired, userID)
		}
	}
	if len(expired) > 0 {
		if err := ps.redis.SRem(ctx, onlineSetKey, expired).Err(); err != nil {
			ps.logger.Warn("failed to prune online set", "error", err)
		}
	}

	return online, nil
}

// publishChange maintains the online set and emits a change event. Redis here
// is best-effort; the durable row is already written.
func (ps *PresenceService) publishChange(ctx context.Context, rec *models.PresenceRecord) {
	event := models.PresenceEvent{
		UserID:          rec.UserID,
		Status:          rec.Status,
		LastSeenAt:      rec.LastSeenAt,
		ActiveChannelID: rec.ActiveChannelID,
		CustomMessage:   rec.CustomMessage,
	}

	data, err := json.Marshal(event)
	if err != nil {
		ps.logger.Error("failed to marshal presence event", "error", err)
		return
	}

	pipe := ps.redis.Pipeline()
	if rec.Status == models.StatusOffline {
		pipe.SRem(ctx, onlineSetKey, rec.UserID)
	} else {
		pipe.SAdd(ctx, onlineSetKey, rec.UserID)
		pipe.Expire(ctx, onlineSetKey, ps.staleThreshold*2)
	}
	pipe.Publish(ctx, PresenceEventsChannel, data)

	if _, err := pipe.Exec(ctx); err != nil {
		ps.logger.Warn("failed to publish presence change", "user_id", rec.UserID, "error", err)
	}
}

// PusherFor binds the service to one user as the upstream a Tracker pushes
// through.
func (ps *PresenceService) PusherFor(userID string) StatusPusher {
	return &servicePusher{svc: ps, userID: userID}
}

type servicePusher struct {
	svc    *PresenceService
	userID string
}

func (p *servicePusher) UpdateStatus(ctx context.Context, status models.Status, customMessage *string) error {
	_, err := p.svc.Heartbeat(ctx, p.userID, status, customMessage, nil)
	return err
}

func (p *servicePusher) UpdateActiveChannel(ctx context.Context, channelID *string) error {
	return p.svc.UpdateActiveChannel(ctx, p.userID, channelID)
}
