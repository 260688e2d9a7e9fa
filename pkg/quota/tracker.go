package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for quota tracking.
var (
	censusQuotaUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "census_quota_used",
		Help: "Number of Census API requests used in the current UTC day",
	})

	censusQuotaBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "census_quota_blocks_total",
		Help: "Total number of requests blocked due to exhausted daily quota",
	})

	censusQuotaThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "census_quota_throttles_total",
		Help: "Total number of requests throttled due to quota warning threshold",
	})
)

// counterTTL keeps spent day counters around briefly for inspection before
// Redis evicts them.
const counterTTL = 48 * time.Hour

// Tracker counts outbound requests against the daily budget and gates
// new requests.
type Tracker struct {
	redis  *redis.Client
	limit  int
	logger zerolog.Logger
}

// NewTracker creates a new quota tracker.
func NewTracker(redisClient *redis.Client, dailyLimit int, logger zerolog.Logger) *Tracker {
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimit
	}
	return &Tracker{
		redis:  redisClient,
		limit:  dailyLimit,
		logger: logger,
	}
}

// GetState retrieves today's quota usage from Redis.
// A missing counter means nothing has been used today.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	now := time.Now().UTC()
	key := DayKey(now)

	used, err := t.redis.Get(ctx, key).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get quota counter: %w", err)
	}

	return &State{
		Day:   now.Format(DayFormat),
		Used:  used,
		Limit: t.limit,
	}, nil
}

// Record counts one outbound request against today's budget.
func (t *Tracker) Record(ctx context.Context) error {
	key := DayKey(time.Now())

	pipe := t.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, counterTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record quota usage: %w", err)
	}

	used := incr.Val()
	censusQuotaUsed.Set(float64(used))

	t.logger.Debug().
		Int64("used", used).
		Int("limit", t.limit).
		Msg("Quota usage recorded")

	return nil
}

// Allow checks if a request should be allowed under today's budget.
// Returns false when the budget is exhausted. Requests past the warning
// threshold are allowed but throttled with a short sleep.
func (t *Tracker) Allow(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get quota state: %w", err)
	}

	if state.Exhausted() {
		t.logger.Error().
			Int("used", state.Used).
			Int("limit", state.Limit).
			Dur("reset_in", state.TimeUntilReset()).
			Msg("Daily quota exhausted - blocking request")

		censusQuotaBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("used", state.Used).
			Int("remaining", state.Remaining()).
			Msg("Daily quota warning - throttling request")

		censusQuotaThrottlesTotal.Inc()
		time.Sleep(1 * time.Second)
	}

	return true, nil
}
