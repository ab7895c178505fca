package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"beacon/presence-service/models"
	"beacon/presence-service/utils"
)

const (
	typingKeyPrefix     = "typing:ind:"
	typingIDKeyPrefix   = "typing:id:"
	TypingEventsChannel = "typing:events"
)

// RedisTypingStore keeps typing indicators in Redis, one key per
// (channel, member) pair, plus an id index so deletes address indicators by
// id. Keys carry a TTL well past the staleness threshold as a backstop; the
// sweeper and the read path both enforce the threshold before the TTL ever
// matters.
type RedisTypingStore struct {
	redis     *redis.Client
	logger    *utils.Logger
	staleness time.Duration
}

func NewRedisTypingStore(redisClient *redis.Client, logger *utils.Logger, staleness time.Duration) *RedisTypingStore {
	if staleness <= 0 {
		staleness = 10 * time.Second
	}
	return &RedisTypingStore{
		redis:     redisClient,
		logger:    logger,
		staleness: staleness,
	}
}

func typingKey(channelID, memberID string) string {
	return typingKeyPrefix + channelID + ":" + memberID
}

func typingIDKey(id string) string {
	return typingIDKeyPrefix + id
}

// Upsert creates the indicator for the pair, or refreshes LastTyped on the
// existing one. The id is stable across refreshes.
func (ts *RedisTypingStore) Upsert(ctx context.Context, channelID, memberID string, lastTyped time.Time) (string, error) {
	key := typingKey(channelID, memberID)

	id := ""
	if data, err := ts.redis.Get(ctx, key).Result(); err == nil {
		var existing models.TypingIndicatorRecord
		if json.Unmarshal([]byte(data), &existing) == nil {
			id = existing.ID
		}
	} else if err != redis.Nil {
		return "", fmt.Errorf("failed to read typing indicator: %w", err)
	}
	if id == "" {
		id = uuid.NewString()
	}

	rec := models.TypingIndicatorRecord{
		ID:        id,
		ChannelID: channelID,
		MemberID:  memberID,
		LastTyped: lastTyped,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal typing indicator: %w", err)
	}

	event, _ := json.Marshal(models.TypingEvent{ChannelID: channelID, MemberID: memberID, Typing: true})

	ttl := ts.staleness * 3

	pipe := ts.redis.Pipeline()
	pipe.Set(ctx, key, data, ttl)
	pipe.Set(ctx, typingIDKey(id), key, ttl)
	pipe.Publish(ctx, TypingEventsChannel, event)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to upsert typing indicator: %w", err)
	}

	return id, nil
}

// Delete removes the indicator by id. Deleting an already-gone indicator is
// not an error.
func (ts *RedisTypingStore) Delete(ctx context.Context, id string) error {
	key, err := ts.redis.Get(ctx, typingIDKey(id)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to resolve typing indicator id: %w", err)
	}

	return ts.deleteByKey(ctx, id, key)
}

// DeleteForMember removes the indicator for a pair, if any. Used by the HTTP
// stop path, where the caller knows the pair rather than the id.
func (ts *RedisTypingStore) DeleteForMember(ctx context.Context, channelID, memberID string) error {
	key := typingKey(channelID, memberID)

	data, err := ts.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read typing indicator: %w", err)
	}

	var rec models.TypingIndicatorRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		ts.logger.Warn("dropping malformed typing indicator", "key", key, "error", err)
		return ts.redis.Del(ctx, key).Err()
	}

	return ts.deleteByKey(ctx, rec.ID, key)
}

func (ts *RedisTypingStore) deleteByKey(ctx context.Context, id, key string) error {
	var rec models.TypingIndicatorRecord
	if data, err := ts.redis.Get(ctx, key).Result(); err == nil {
		_ = json.Unmarshal([]byte(data), &rec)
	}

	pipe := ts.redis.Pipeline()
	pipe.Del(ctx, key)
	pipe.Del(ctx, typingIDKey(id))
	if rec.ChannelID != "" {
		event, _ := json.Marshal(models.TypingEvent{ChannelID: rec.ChannelID, MemberID: rec.MemberID, Typing: false})
		pipe.Publish(ctx, TypingEventsChannel, event)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete typing indicator: %w", err)
	}
	return nil
}

// ListByChannel returns the live typers in a channel, most recent first.
// Indicators older than the staleness threshold are treated as absent even
// when the delete has not propagated yet.
func (ts *RedisTypingStore) ListByChannel(ctx context.Context, channelID string, now time.Time) ([]models.TypingIndicatorRecord, error) {
	pattern := typingKeyPrefix + channelID + ":*"

	var typers []models.TypingIndicatorRecord
	iter := ts.redis.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		data, err := ts.redis.Get(ctx, iter.Val()).Result()
		if err != nil {
			continue
		}
		var rec models.TypingIndicatorRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			ts.logger.Warn("skipping malformed typing indicator", "key", iter.Val(), "error", err)
			continue
		}
		if now.Sub(rec.LastTyped) > ts.staleness {
			continue
		}
		typers = append(typers, rec)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan typing indicators: %w", err)
	}

	sort.Slice(typers, func(i, j int) bool {
		return typers[i].LastTyped.After(typers[j].LastTyped)
	})

	return typers, nil
}

// StartSweeper runs the periodic server-side cleanup deleting indicators
// whose LastTyped fell past the staleness threshold. Returns when ctx is
// cancelled.
func (ts *RedisTypingStore) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = ts.staleness
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ts.logger.Info("typing sweeper started", "interval", interval.String())

	for {
		select {
		case <-ctx.Done():
			ts.logger.Info("typing sweeper stopped")
			return
		case <-ticker.C:
			ts.sweep(ctx)
		}
	}
}

func (ts *RedisTypingStore) sweep(ctx context.Context) {
	now := time.Now()
	swept := 0

	iter := ts.redis.Scan(ctx, 0, typingKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := ts.redis.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		var rec models.TypingIndicatorRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			_ = ts.redis.Del(ctx, key).Err()
			continue
		}
		if now.Sub(rec.LastTyped) <= ts.staleness {
			continue
		}
		if err := ts.deleteByKey(ctx, rec.ID, key); err != nil {
			ts.logger.Warn("sweep delete failed", "key", key, "error", err)
			continue
		}
		swept++
	}
	if err := iter.Err(); err != nil {
		ts.logger.Warn("typing sweep scan failed", "error", err)
		return
	}

	if swept > 0 {
		ts.logger.Debug("swept stale typing indicators", "count", swept)
	}
}
