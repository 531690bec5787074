package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
)

func TestClassifyActivity(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		elapsed  time.Duration
		wantTier ActivityTier
	}{
		{"30 minutes ago is hot", 30 * time.Minute, TierHot},
		{"59 minutes ago is hot (boundary)", 59 * time.Minute, TierHot},
		{"61 minutes ago is active (boundary)", 61 * time.Minute, TierActive},
		{"12 hours ago is active", 12 * time.Hour, TierActive},
		{"25 hours ago is warm", 25 * time.Hour, TierWarm},
		{"3 days ago is warm", 3 * 24 * time.Hour, TierWarm},
		{"8 days ago is stale", 8 * 24 * time.Hour, TierStale},
		{"zero time is stale", 0, TierStale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var lastActivity time.Time
			if tt.elapsed > 0 {
				lastActivity = now.Add(-tt.elapsed)
			}
			assert.Equal(t, tt.wantTier, classifyActivity(lastActivity, now))
		})
	}
}

func TestTierInterval(t *testing.T) {
	base := 5 * time.Minute

	tests := []struct {
		tier    ActivityTier
		wantDur time.Duration
	}{
		{TierHot, 5 * time.Minute},
		{TierActive, 5 * time.Minute},
		{TierWarm, 15 * time.Minute},
		{TierStale, 30 * time.Minute},
		{ActivityTier(99), 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.tier.String(), func(t *testing.T) {
			assert.Equal(t, tt.wantDur, tierInterval(tt.tier, base))
		})
	}
}

func TestFreshestActivity(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("no outcomes returns zero time", func(t *testing.T) {
		assert.True(t, freshestActivity(nil).IsZero())
	})

	t.Run("record receive time wins over fetched comment", func(t *testing.T) {
		outcomes := []Outcome{{
			Comment: model.Comment{ID: "c1"},
			Record:  model.ProcessedRecord{Comment: model.Comment{ID: "c1", ReceivedAt: now}},
		}}
		assert.Equal(t, now, freshestActivity(outcomes))
	})

	t.Run("falls back to fetched comment without a record", func(t *testing.T) {
		outcomes := []Outcome{
			{Comment: model.Comment{ID: "c1", ReceivedAt: now.Add(-2 * time.Hour)}},
			{Comment: model.Comment{ID: "c2", ReceivedAt: now}},
			{Comment: model.Comment{ID: "c3", ReceivedAt: now.Add(-5 * time.Hour)}},
		}
		assert.Equal(t, now, freshestActivity(outcomes))
	})
}

func TestNextSchedule(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	base := 5 * time.Minute

	t.Run("no activity schedules as stale", func(t *testing.T) {
		got := nextSchedule(ScheduleInfo{}, nil, now, base)

		assert.Equal(t, TierStale, got.Tier)
		assert.Equal(t, now, got.LastPolledAt)
		assert.Equal(t, now.Add(30*time.Minute), got.NextPollAt)
	})

	t.Run("keeps previous activity when nothing newer arrives", func(t *testing.T) {
		prev := ScheduleInfo{LastActivity: now.Add(-2 * time.Hour)}

		got := nextSchedule(prev, nil, now, base)

		assert.Equal(t, TierActive, got.Tier)
		assert.Equal(t, prev.LastActivity, got.LastActivity)
		assert.Equal(t, now.Add(base), got.NextPollAt)
	})

	t.Run("due at and after next poll", func(t *testing.T) {
		got := nextSchedule(ScheduleInfo{}, []Outcome{{Comment: model.Comment{ReceivedAt: now}}}, now, base)

		assert.Equal(t, TierHot, got.Tier)
		assert.False(t, got.due(now.Add(base-time.Second)))
		assert.True(t, got.due(now.Add(base)))
	})
}

func TestActivityTierString(t *testing.T) {
	tests := []struct {
		tier ActivityTier
		want string
	}{
		{TierHot, "hot"},
		{TierActive, "active"},
		{TierWarm, "warm"},
		{TierStale, "stale"},
		{ActivityTier(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tier.String())
		})
	}
}
