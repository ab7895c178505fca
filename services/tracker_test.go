package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"beacon/presence-service/models"
	"beacon/presence-service/utils"
)

// recordingPusher captures upstream pushes.
type recordingPusher struct {
	mu       sync.Mutex
	statuses []models.Status
	channels []*string
	err      error
}

func (p *recordingPusher) UpdateStatus(_ context.Context, status models.Status, _ *string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.statuses = append(p.statuses, status)
	return nil
}

func (p *recordingPusher) UpdateActiveChannel(_ context.Context, channelID *string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.channels = append(p.channels, channelID)
	return nil
}

func (p *recordingPusher) pushed() []models.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]models.Status, len(p.statuses))
	copy(cp, p.statuses)
	return cp
}

func (p *recordingPusher) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// testTracker builds a tracker pinned to a controllable clock.
func testTracker(pusher StatusPusher) (*Tracker, *time.Time) {
	base := time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)
	now := &base

	tr := NewTracker(pusher, utils.NewLogger("test"), TrackerConfig{
		PollInterval:      10 * time.Second,
		AFKTimeout:        5 * time.Minute,
		HiddenTimeout:     2 * time.Minute,
		HeartbeatInterval: 30 * time.Second,
	})
	tr.now = func() time.Time { return *now }
	tr.lastActivity = base
	return tr, now
}

func advance(now *time.Time, d time.Duration) {
	*now = now.Add(d)
}

func TestTracker_OnlineWhileActive(t *testing.T) {
	pusher := &recordingPusher{}
	tr, now := testTracker(pusher)
	defer tr.Close()

	tr.evaluate(*now)
	assert.Equal(t, []models.Status{models.StatusOnline}, pusher.pushed())
}

func TestTracker_AwayAfterAFKTimeout(t *testing.T) {
	pusher := &recordingPusher{}
	tr, now := testTracker(pusher)
	defer tr.Close()

	advance(now, 5*time.Minute)
	tr.evaluate(*now)
	assert.Equal(t, []models.Status{models.StatusAway}, pusher.pushed())

	// Activity brings it back.
	tr.RecordActivity()
	advance(now, time.Second)
	tr.evaluate(*now)
	assert.Equal(t, []models.Status{models.StatusAway, models.StatusOnline}, pusher.pushed())
}

func TestTracker_OfflineWhenHiddenLongEnough(t *testing.T) {
	pusher := &recordingPusher{}
	tr, now := testTracker(pusher)
	defer tr.Close()

	tr.SetHidden(true)
	advance(now, time.Minute)
	tr.evaluate(*now)
	assert.Equal(t, []models.Status{models.StatusOnline}, pusher.pushed(), "hidden but under the timeout")

	advance(now, time.Minute)
	tr.evaluate(*now)
	assert.Equal(t, []models.Status{models.StatusOnline, models.StatusOffline}, pusher.pushed())

	// Becoming visible counts as activity and clears hidden.
	tr.SetHidden(false)
	tr.evaluate(*now)
	assert.Equal(t, []models.Status{models.StatusOnline, models.StatusOffline, models.StatusOnline}, pusher.pushed())
}

func TestTracker_ManualOverrideWinsOverEverything(t *testing.T) {
	pusher := &recordingPusher{}
	tr, now := testTracker(pusher)
	defer tr.Close()

	tr.SetManualStatus(models.StatusDND, nil)
	assert.Equal(t, []models.Status{models.StatusDND}, pusher.pushed(), "manual set pushes immediately")

	// Neither AFK nor hidden may displace the override.
	tr.SetHidden(true)
	advance(now, 10*time.Minute)
	tr.evaluate(*now)
	assert.Equal(t, models.StatusDND, pusher.pushed()[len(pusher.pushed())-1])

	override := tr.ManualStatus()
	if assert.NotNil(t, override) {
		assert.Equal(t, models.StatusOnline, override.PreviousStatus)
	}
}

func TestTracker_ClearManualStatusFallsBackToComputed(t *testing.T) {
	pusher := &recordingPusher{}
	tr, now := testTracker(pusher)
	defer tr.Close()

	tr.SetManualStatus(models.StatusBusy, nil)
	advance(now, 10*time.Minute) // AFK by now

	tr.ClearManualStatus()
	pushes := pusher.pushed()
	assert.Equal(t, models.StatusAway, pushes[len(pushes)-1])
	assert.Nil(t, tr.ManualStatus())
}

func TestTracker_RedundantPushesSuppressed(t *testing.T) {
	pusher := &recordingPusher{}
	tr, now := testTracker(pusher)
	defer tr.Close()

	tr.evaluate(*now)
	advance(now, time.Second)
	tr.evaluate(*now)
	advance(now, time.Second)
	tr.evaluate(*now)

	assert.Equal(t, []models.Status{models.StatusOnline}, pusher.pushed(), "identical status within the heartbeat window pushes once")
}

func TestTracker_HeartbeatForcesPush(t *testing.T) {
	pusher := &recordingPusher{}
	tr, now := testTracker(pusher)
	defer tr.Close()

	tr.evaluate(*now)
	advance(now, 31*time.Second)
	tr.RecordActivity() // stay online
	tr.evaluate(*now)

	assert.Equal(t, []models.Status{models.StatusOnline, models.StatusOnline}, pusher.pushed())
}

func TestTracker_FailedPushRetriesNextTick(t *testing.T) {
	pusher := &recordingPusher{}
	tr, now := testTracker(pusher)
	defer tr.Close()

	pusher.setErr(errors.New("upstream down"))
	tr.evaluate(*now)
	assert.Empty(t, pusher.pushed())

	// Last-sent was not advanced, so the next tick retries even though the
	// status did not change.
	pusher.setErr(nil)
	advance(now, time.Second)
	tr.evaluate(*now)
	assert.Equal(t, []models.Status{models.StatusOnline}, pusher.pushed())
}

func TestTracker_ListenersNotifiedOnChange(t *testing.T) {
	pusher := &recordingPusher{}
	tr, now := testTracker(pusher)
	defer tr.Close()

	var mu sync.Mutex
	var seen []models.Status
	unsubscribe := tr.Subscribe(func(s models.Status) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	tr.evaluate(*now)
	advance(now, 5*time.Minute)
	tr.evaluate(*now)
	advance(now, time.Second)
	tr.evaluate(*now) // unchanged, no notification

	mu.Lock()
	assert.Equal(t, []models.Status{models.StatusOnline, models.StatusAway}, seen)
	mu.Unlock()

	unsubscribe()
	assert.Equal(t, 0, tr.ListenerCount())
}

func TestTracker_CloseDropsListenersAndBlocksPushes(t *testing.T) {
	pusher := &recordingPusher{}
	tr, now := testTracker(pusher)

	tr.Subscribe(func(models.Status) {})
	tr.Subscribe(func(models.Status) {})
	assert.Equal(t, 2, tr.ListenerCount())

	tr.Close()
	assert.Equal(t, 0, tr.ListenerCount(), "teardown releases every listener")

	tr.evaluate(*now)
	tr.RecordActivity()
	tr.SetManualStatus(models.StatusBusy, nil)
	assert.Empty(t, pusher.pushed(), "no writes after teardown")

	tr.Close() // safe to call again
}

func TestTracker_PollLoopStopsOnClose(t *testing.T) {
	pusher := &recordingPusher{}
	tr := NewTracker(pusher, utils.NewLogger("test"), TrackerConfig{
		PollInterval:      5 * time.Millisecond,
		HeartbeatInterval: time.Hour,
	})

	tr.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	tr.Close()

	before := len(pusher.pushed())
	assert.GreaterOrEqual(t, before, 1, "poll loop evaluated at least once")

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before, len(pusher.pushed()), "no pushes after Close")
}

func TestTracker_SetActiveChannel(t *testing.T) {
	pusher := &recordingPusher{}
	tr, _ := testTracker(pusher)
	defer tr.Close()

	ch := "general"
	tr.SetActiveChannel(&ch)
	tr.SetActiveChannel(nil)

	pusher.mu.Lock()
	defer pusher.mu.Unlock()
	if assert.Len(t, pusher.channels, 2) {
		assert.Equal(t, "general", *pusher.channels[0])
		assert.Nil(t, pusher.channels[1])
	}
}
