// Package quota implements daily request quota tracking and request gating
// for the Census API. The API enforces a per-key daily request budget but
// publishes no usage headers, so usage is counted locally in Redis and
// shared across connector instances.
package quota

import (
	"time"
)

// RedisKeyPrefix is the prefix for quota usage counters.
// The full key carries the UTC day: census:quota:used:2017-06-01
const RedisKeyPrefix = "census:quota:used:"

// DayFormat is the date layout used in quota keys.
const DayFormat = "2006-01-02"

// DefaultDailyLimit is the documented Census API request budget per key per day.
const DefaultDailyLimit = 500

// WarningFraction is the used fraction above which requests are throttled.
const WarningFraction = 0.8

// State represents quota usage for one UTC day.
type State struct {
	// Day is the UTC day the counter belongs to.
	Day string `json:"day"`

	// Used is the number of requests issued so far today.
	Used int `json:"used"`

	// Limit is the configured daily budget.
	Limit int `json:"limit"`
}

// Remaining returns the number of requests left in today's budget.
// Never negative.
func (s *State) Remaining() int {
	remaining := s.Limit - s.Used
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Exhausted returns true when the daily budget is spent and further
// requests must be blocked until the day rolls over.
func (s *State) Exhausted() bool {
	return s.Used >= s.Limit
}

// NeedsThrottling returns true when usage has crossed the warning fraction
// but the budget is not yet exhausted.
func (s *State) NeedsThrottling() bool {
	if s.Exhausted() {
		return false
	}
	return float64(s.Used) >= float64(s.Limit)*WarningFraction
}

// TimeUntilReset returns the duration until the UTC day rolls over and the
// budget resets.
func (s *State) TimeUntilReset() time.Duration {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return midnight.Sub(now)
}

// DayKey returns the Redis counter key for the given time's UTC day.
func DayKey(t time.Time) string {
	return RedisKeyPrefix + t.UTC().Format(DayFormat)
}
