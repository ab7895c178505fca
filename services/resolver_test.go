package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"beacon/presence-service/models"
)

func recordAt(status models.Status, lastSeen time.Time) *models.PresenceRecord {
	return &models.PresenceRecord{
		UserID:     "u1",
		Status:     status,
		LastSeenAt: &lastSeen,
	}
}

func TestResolveStatus_FreshStatusReturnedVerbatim(t *testing.T) {
	now := time.Now()

	for _, status := range []models.Status{models.StatusOnline, models.StatusAway, models.StatusBusy, models.StatusDND} {
		rec := recordAt(status, now.Add(-1*time.Second))
		assert.Equal(t, status, ResolveStatus(rec, now, 0), "status %s", status)
	}
}

func TestResolveStatus_StalenessDominates(t *testing.T) {
	now := time.Now()

	// Older than the 45s default, every stored status resolves offline.
	for _, status := range []models.Status{models.StatusOnline, models.StatusAway, models.StatusBusy, models.StatusDND, models.StatusOffline} {
		rec := recordAt(status, now.Add(-46*time.Second))
		assert.Equal(t, models.StatusOffline, ResolveStatus(rec, now, 0), "status %s", status)
	}
}

func TestResolveStatus_AntiFlicker(t *testing.T) {
	now := time.Now()

	// A fresh row claiming offline is a lagged write and must show online.
	rec := recordAt(models.StatusOffline, now.Add(-1*time.Second))
	assert.Equal(t, models.StatusOnline, ResolveStatus(rec, now, 0))
}

func TestResolveStatus_Absence(t *testing.T) {
	now := time.Now()

	assert.Equal(t, models.StatusOffline, ResolveStatus(nil, now, 0))

	rec := &models.PresenceRecord{UserID: "u1", Status: models.StatusOnline}
	assert.Equal(t, models.StatusOffline, ResolveStatus(rec, now, 0), "nil last seen")

	zero := time.Time{}
	rec = &models.PresenceRecord{UserID: "u1", Status: models.StatusOnline, LastSeenAt: &zero}
	assert.Equal(t, models.StatusOffline, ResolveStatus(rec, now, 0), "zero last seen")
}

func TestResolveStatus_UnknownStatus(t *testing.T) {
	now := time.Now()

	rec := recordAt(models.Status("invisible"), now.Add(-1*time.Second))
	assert.Equal(t, models.StatusOffline, ResolveStatus(rec, now, 0))
}

func TestResolveStatus_ThresholdBoundary(t *testing.T) {
	now := time.Now()

	// Exactly at the threshold is still fresh; one ms past is not.
	rec := recordAt(models.StatusOnline, now.Add(-45*time.Second))
	assert.Equal(t, models.StatusOnline, ResolveStatus(rec, now, 0))

	rec = recordAt(models.StatusOnline, now.Add(-45*time.Second-time.Millisecond))
	assert.Equal(t, models.StatusOffline, ResolveStatus(rec, now, 0))
}

func TestResolveStatus_CustomThreshold(t *testing.T) {
	now := time.Now()

	rec := recordAt(models.StatusBusy, now.Add(-8*time.Second))
	assert.Equal(t, models.StatusOffline, ResolveStatus(rec, now, 5*time.Second))
	assert.Equal(t, models.StatusBusy, ResolveStatus(rec, now, 10*time.Second))
}

func TestResolveStatus_Deterministic(t *testing.T) {
	now := time.Now()

	rec := recordAt(models.StatusDND, now.Add(-30*time.Second))
	first := ResolveStatus(rec, now, 0)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ResolveStatus(rec, now, 0))
	}
}

func TestIsEffectivelyOnline(t *testing.T) {
	assert.True(t, IsEffectivelyOnline(models.StatusOnline))
	assert.True(t, IsEffectivelyOnline(models.StatusAway))
	assert.True(t, IsEffectivelyOnline(models.StatusBusy))
	assert.True(t, IsEffectivelyOnline(models.StatusDND))
	assert.False(t, IsEffectivelyOnline(models.StatusOffline))
}

func clockAt(t *testing.T, hhmm string) time.Time {
	t.Helper()
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		t.Fatalf("bad test clock %q: %v", hhmm, err)
	}
	return time.Date(2024, 3, 14, parsed.Hour(), parsed.Minute(), 0, 0, time.UTC)
}

func TestIsInQuietHours_SameDayWindow(t *testing.T) {
	assert.True(t, IsInQuietHours("10:15", "10:45", clockAt(t, "10:30")))
	assert.False(t, IsInQuietHours("10:15", "10:45", clockAt(t, "10:46")))
	assert.True(t, IsInQuietHours("10:15", "10:45", clockAt(t, "10:15")), "start is inclusive")
	assert.False(t, IsInQuietHours("10:15", "10:45", clockAt(t, "10:45")), "end is exclusive")
}

func TestIsInQuietHours_SpansMidnight(t *testing.T) {
	assert.True(t, IsInQuietHours("22:15", "06:45", clockAt(t, "23:30")))
	assert.True(t, IsInQuietHours("22:15", "06:45", clockAt(t, "02:00")))
	assert.False(t, IsInQuietHours("22:15", "06:45", clockAt(t, "12:00")))
}

func TestIsInQuietHours_Malformed(t *testing.T) {
	now := clockAt(t, "12:00")
	assert.False(t, IsInQuietHours("", "10:00", now))
	assert.False(t, IsInQuietHours("10:00", "25:99", now))
	assert.False(t, IsInQuietHours("banana", "10:00", now))
	assert.False(t, IsInQuietHours("10:00", "10:00", now), "empty window")
}
