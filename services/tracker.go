package services

import (
	"context"
	"sync"
	"time"

	"beacon/presence-service/models"
	"beacon/presence-service/utils"
)

// StatusPusher is the upstream the tracker reports through. Both calls are
// best-effort; errors are logged and swallowed by the tracker.
type StatusPusher interface {
	UpdateStatus(ctx context.Context, status models.Status, customMessage *string) error
	UpdateActiveChannel(ctx context.Context, channelID *string) error
}

// TrackerConfig holds the named timeouts of the activity tracker. Zero fields
// fall back to the defaults.
type TrackerConfig struct {
	PollInterval      time.Duration // cadence of re-evaluation
	AFKTimeout        time.Duration // inactivity before away
	HiddenTimeout     time.Duration // window hidden this long means offline
	HeartbeatInterval time.Duration // forced push cadence
}

func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		PollInterval:      10 * time.Second,
		AFKTimeout:        5 * time.Minute,
		HiddenTimeout:     2 * time.Minute,
		HeartbeatInterval: 30 * time.Second,
	}
}

const pushCallTimeout = 5 * time.Second

// Tracker decides what presence status the local session should be reporting,
// from local signals only: input activity, window visibility, and a manual
// override. It re-evaluates on a fixed poll interval rather than per event,
// pushes the result upstream when it changes or a heartbeat is due, and
// suppresses redundant identical pushes.
type Tracker struct {
	pusher StatusPusher
	logger *utils.Logger
	cfg    TrackerConfig

	now func() time.Time

	mu           sync.Mutex
	lastActivity time.Time
	hidden       bool
	hiddenAt     time.Time
	override     *models.ManualStatusOverride
	lastComputed models.Status
	lastSent     models.Status
	lastPushAt   time.Time
	listeners    map[int]func(models.Status)
	nextListener int
	closed       bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTracker(pusher StatusPusher, logger *utils.Logger, cfg TrackerConfig) *Tracker {
	defaults := DefaultTrackerConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.AFKTimeout <= 0 {
		cfg.AFKTimeout = defaults.AFKTimeout
	}
	if cfg.HiddenTimeout <= 0 {
		cfg.HiddenTimeout = defaults.HiddenTimeout
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaults.HeartbeatInterval
	}

	t := &Tracker{
		pusher:    pusher,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		listeners: make(map[int]func(models.Status)),
	}
	// Construction counts as activity.
	t.lastActivity = t.now()
	return t
}

// Start launches the polling loop. It may be called at most once.
func (t *Tracker) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				t.evaluate(t.now())
			}
		}
	}()
}

// Close stops the polling loop, drops all listeners, and blocks any further
// upstream writes, including from ticks already in flight.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.listeners = map[int]func(models.Status){}
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
}

// RecordActivity refreshes the last-activity timestamp. Called by whatever
// transport observes input events (pointer, key, scroll, click, touch).
func (t *Tracker) RecordActivity() {
	t.mu.Lock()
	if !t.closed {
		t.lastActivity = t.now()
	}
	t.mu.Unlock()
}

// SetHidden is the window-visibility signal.
func (t *Tracker) SetHidden(hidden bool) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if hidden && !t.hidden {
		t.hiddenAt = t.now()
	}
	if !hidden {
		t.hiddenAt = time.Time{}
		t.lastActivity = t.now()
	}
	t.hidden = hidden
	t.mu.Unlock()
}

// SetManualStatus records a user-chosen override and pushes it upstream
// immediately, without waiting for the next poll tick. The previously
// computed status is remembered so callers can restore it.
func (t *Tracker) SetManualStatus(status models.Status, customMessage *string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	prev := t.lastComputed
	if prev == "" {
		prev = t.computeStatusLocked(t.now())
	}
	t.override = &models.ManualStatusOverride{
		Status:         &status,
		CustomMessage:  customMessage,
		PreviousStatus: prev,
	}
	t.mu.Unlock()

	t.evaluate(t.now())
}

// ClearManualStatus removes the override; the next evaluation falls back to
// the computed status.
func (t *Tracker) ClearManualStatus() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.override = nil
	t.mu.Unlock()

	t.evaluate(t.now())
}

// ManualStatus returns the current override, or nil.
func (t *Tracker) ManualStatus() *models.ManualStatusOverride {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.override
}

// SetActiveChannel reports the channel the user is viewing. Best-effort.
func (t *Tracker) SetActiveChannel(channelID *string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), pushCallTimeout)
	defer cancel()
	if err := t.pusher.UpdateActiveChannel(ctx, channelID); err != nil {
		t.logger.Warn("active channel push failed", "error", err)
	}
}

// Subscribe registers a listener notified whenever the computed status
// changes. The returned function unregisters it.
func (t *Tracker) Subscribe(fn func(models.Status)) func() {
	t.mu.Lock()
	id := t.nextListener
	t.nextListener++
	t.listeners[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

// ListenerCount reports how many listeners are registered.
func (t *Tracker) ListenerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners)
}

// computeStatusLocked derives the status to report, in priority order:
// manual override, hidden long enough for offline, AFK away, online.
func (t *Tracker) computeStatusLocked(now time.Time) models.Status {
	if t.override != nil && t.override.Status != nil {
		return *t.override.Status
	}

	if t.hidden && !t.hiddenAt.IsZero() && now.Sub(t.hiddenAt) >= t.cfg.HiddenTimeout {
		return models.StatusOffline
	}

	var overrideStatus models.Status
	if t.override != nil && t.override.Status != nil {
		overrideStatus = *t.override.Status
	}

	isAFK := now.Sub(t.lastActivity) >= t.cfg.AFKTimeout && overrideStatus != models.StatusAway
	shouldMarkAway := isAFK && overrideStatus != models.StatusBusy && overrideStatus != models.StatusDND

	if shouldMarkAway {
		return models.StatusAway
	}

	return models.StatusOnline
}

// evaluate recomputes the status, notifies listeners on change, and pushes
// upstream when the value changed or a heartbeat is due.
func (t *Tracker) evaluate(now time.Time) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	status := t.computeStatusLocked(now)
	changed := status != t.lastComputed
	t.lastComputed = status

	heartbeatDue := t.lastPushAt.IsZero() || now.Sub(t.lastPushAt) >= t.cfg.HeartbeatInterval
	needPush := status != t.lastSent || heartbeatDue

	var customMessage *string
	if t.override != nil {
		customMessage = t.override.CustomMessage
	}

	var notify []func(models.Status)
	if changed {
		notify = make([]func(models.Status), 0, len(t.listeners))
		for _, fn := range t.listeners {
			notify = append(notify, fn)
		}
	}
	t.mu.Unlock()

	for _, fn := range notify {
		fn(status)
	}

	if needPush {
		t.push(status, customMessage, now)
	}
}

func (t *Tracker) push(status models.Status, customMessage *string, now time.Time) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), pushCallTimeout)
	defer cancel()

	if err := t.pusher.UpdateStatus(ctx, status, customMessage); err != nil {
		// Last-sent is not advanced, so the next tick retries naturally.
		t.logger.Warn("status push failed", "status", status, "error", err)
		return
	}

	t.mu.Lock()
	if !t.closed {
		t.lastSent = status
		t.lastPushAt = now
	}
	t.mu.Unlock()
}
