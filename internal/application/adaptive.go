package application

import "time"

// ActivityTier classifies a watched post by how recently it received a
// comment. Quieter posts are polled less often.
type ActivityTier int

const (
	// TierHot indicates a comment within the last hour.
	TierHot ActivityTier = iota
	// TierActive indicates a comment within the last day.
	TierActive
	// TierWarm indicates a comment within the last 7 days.
	TierWarm
	// TierStale indicates no comment for 7+ days, or none at all.
	TierStale
)

// String returns a human-readable name for the activity tier.
func (t ActivityTier) String() string {
	switch t {
	case TierHot:
		return "hot"
	case TierActive:
		return "active"
	case TierWarm:
		return "warm"
	case TierStale:
		return "stale"
	default:
		return "unknown"
	}
}

// tierInterval scales the base poll interval for a tier. The poll ticker runs
// at base, so hot and active posts cannot be polled faster than that.
func tierInterval(tier ActivityTier, base time.Duration) time.Duration {
	switch tier {
	case TierHot, TierActive:
		return base
	case TierWarm:
		return 3 * base
	case TierStale:
		return 6 * base
	default:
		return base
	}
}

// classifyActivity determines the activity tier from the time elapsed
// between the last comment and now. A zero-value time is TierStale.
func classifyActivity(lastActivity, now time.Time) ActivityTier {
	if lastActivity.IsZero() {
		return TierStale
	}

	elapsed := now.Sub(lastActivity)

	switch {
	case elapsed < 1*time.Hour:
		return TierHot
	case elapsed < 24*time.Hour:
		return TierActive
	case elapsed < 7*24*time.Hour:
		return TierWarm
	default:
		return TierStale
	}
}

// freshestActivity returns the most recent receive time across the outcomes
// of one poll. Stored records win over the fetched comment since the
// pipeline stamps ReceivedAt at capture.
func freshestActivity(outcomes []Outcome) time.Time {
	var freshest time.Time
	for _, o := range outcomes {
		at := o.Record.Comment.ReceivedAt
		if at.IsZero() {
			at = o.Comment.ReceivedAt
		}
		if at.After(freshest) {
			freshest = at
		}
	}
	return freshest
}

// ScheduleInfo describes when a watched post is next due for a poll.
type ScheduleInfo struct {
	Tier         ActivityTier
	LastActivity time.Time
	LastPolledAt time.Time
	NextPollAt   time.Time
}

// due reports whether the post should be polled at now.
func (s ScheduleInfo) due(now time.Time) bool {
	return !now.Before(s.NextPollAt)
}

// nextSchedule computes a post's schedule after a poll at now. The previous
// activity is kept when the poll saw nothing newer.
func nextSchedule(prev ScheduleInfo, outcomes []Outcome, now time.Time, base time.Duration) ScheduleInfo {
	last := freshestActivity(outcomes)
	if prev.LastActivity.After(last) {
		last = prev.LastActivity
	}

	tier := classifyActivity(last, now)
	return ScheduleInfo{
		Tier:         tier,
		LastActivity: last,
		LastPolledAt: now,
		NextPollAt:   now.Add(tierInterval(tier, base)),
	}
}
