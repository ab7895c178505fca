package services

import (
	"context"
	"sync"
	"time"

	"beacon/presence-service/utils"
)

// TypingStore is the remote store a TypingManager writes through. Upsert
// creates or refreshes the indicator for a (channel, member) pair and returns
// its id; Delete removes it. Both are best-effort from the manager's point of
// view.
type TypingStore interface {
	Upsert(ctx context.Context, channelID, memberID string, lastTyped time.Time) (string, error)
	Delete(ctx context.Context, id string) error
}

// TypingConfig holds the two timer durations of the typing state machine.
type TypingConfig struct {
	Debounce time.Duration // delay before the first upsert
	Timeout  time.Duration // auto-stop after the last keystroke report
}

func DefaultTypingConfig() TypingConfig {
	return TypingConfig{
		Debounce: 500 * time.Millisecond,
		Timeout:  3 * time.Second,
	}
}

type typingState int

const (
	typingIdle typingState = iota
	typingPending
	typingActive
)

const typingCallTimeout = 5 * time.Second

// TypingManager maintains the typing indicator for one member in one channel.
// StartTyping debounces keystroke reports into a single upsert and arms a hard
// timeout; StopTyping (explicit, or fired by the timeout) deletes the
// indicator. Store failures reset the machine to idle: indicators are
// ephemeral UI affordances and are never retried or allowed to wedge the
// caller.
type TypingManager struct {
	store     TypingStore
	channelID string
	memberID  string
	logger    *utils.Logger

	deb *debouncer

	mu          sync.Mutex
	state       typingState
	indicatorID string
	closed      bool
}

func NewTypingManager(store TypingStore, channelID, memberID string, logger *utils.Logger, cfg TypingConfig) *TypingManager {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultTypingConfig().Debounce
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTypingConfig().Timeout
	}

	m := &TypingManager{
		store:     store,
		channelID: channelID,
		memberID:  memberID,
		logger:    logger,
	}
	m.deb = newDebouncer(cfg.Debounce, cfg.Timeout, m.flush, m.autoStop)
	return m
}

// StartTyping reports a keystroke. Bursts within the debounce window collapse
// into one upsert; every call pushes the hard timeout out again.
func (m *TypingManager) StartTyping() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.state == typingIdle {
		m.state = typingPending
	}
	m.mu.Unlock()

	m.deb.Signal()
}

// StopTyping cancels both timers and deletes the indicator if one was
// created. Calling it while already idle is a no-op.
func (m *TypingManager) StopTyping() {
	m.deb.Stop()
	m.teardown()
}

// Cleanup is StopTyping plus releasing the timers for good; it is safe to
// call repeatedly and is intended for unmount/logout paths.
func (m *TypingManager) Cleanup() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.deb.Stop()
	m.teardown()
}

// flush runs when the debounce timer fires: create or refresh the indicator.
func (m *TypingManager) flush() {
	m.mu.Lock()
	if m.closed || m.state == typingIdle {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), typingCallTimeout)
	defer cancel()

	id, err := m.store.Upsert(ctx, m.channelID, m.memberID, time.Now())

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		// Best-effort: drop back to idle rather than retry.
		m.logger.Warn("typing indicator upsert failed", "channel_id", m.channelID, "error", err)
		m.state = typingIdle
		m.indicatorID = ""
		m.deb.Stop()
		return
	}

	if m.state == typingIdle || m.closed {
		// Stopped while the upsert was in flight; undo it.
		go m.deleteIndicator(id)
		return
	}

	m.indicatorID = id
	m.state = typingActive
}

// autoStop runs when the hard timeout elapses without further StartTyping.
func (m *TypingManager) autoStop() {
	m.teardown()
}

func (m *TypingManager) teardown() {
	m.mu.Lock()
	id := m.indicatorID
	m.indicatorID = ""
	m.state = typingIdle
	m.mu.Unlock()

	if id != "" {
		m.deleteIndicator(id)
	}
}

func (m *TypingManager) deleteIndicator(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), typingCallTimeout)
	defer cancel()

	if err := m.store.Delete(ctx, id); err != nil {
		m.logger.Warn("typing indicator delete failed", "channel_id", m.channelID, "error", err)
	}
}
