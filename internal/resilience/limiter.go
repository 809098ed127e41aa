// internal/resilience/limiter.go
package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"nuance-pipeline/internal/common/config"
	"nuance-pipeline/internal/common/metrics"
)

const (
	LimitTypeMinute = "minute"
	LimitTypeDay    = "day"
)

// RateLimitResult describes the outcome of a quota check.
type RateLimitResult struct {
	Allowed           bool   `json:"allowed"`
	RetryAfterSeconds int    `json:"retryAfterSeconds"`
	RequestsRemaining int    `json:"requestsRemaining"`
	LimitType         string `json:"limitType,omitempty"`
}

// Limiter enforces per-user fixed-window quotas backed by redis, so the
// count is shared across pipeline instances.
type Limiter struct {
	client *redis.Client
	rpm    int
	rpd    int
	logger Logger

	now func() time.Time
}

func NewLimiter(client *redis.Client, cfg config.LimiterConfig, log Logger) *Limiter {
	return &Limiter{
		client: client,
		rpm:    cfg.RequestsPerMinute,
		rpd:    cfg.RequestsPerDay,
		logger: log.With(map[string]interface{}{
			"component": "limiter",
		}),
		now: time.Now,
	}
}

// Check consumes one request from both windows for the user. The day
// window is checked first so a caller out of daily quota is told the
// longer wait. Redis unavailability fails open: throttling is protection,
// not correctness.
func (l *Limiter) Check(ctx context.Context, userID string) (*RateLimitResult, error) {
	now := l.now().UTC()

	dayKey := fmt.Sprintf("ratelimit:%s:day:%s", userID, now.Format("2006-01-02"))
	dayCount, err := l.incrWithExpiry(ctx, dayKey, 25*time.Hour)
	if err != nil {
		l.logger.Warn("rate limit check failed, allowing request", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
		return &RateLimitResult{Allowed: true, RequestsRemaining: l.rpm}, nil
	}
	if dayCount > int64(l.rpd) {
		metrics.LimiterRejections.WithLabelValues(LimitTypeDay).Inc()
		return &RateLimitResult{
			Allowed:           false,
			RetryAfterSeconds: secondsUntilNextDay(now),
			RequestsRemaining: 0,
			LimitType:         LimitTypeDay,
		}, nil
	}

	minuteKey := fmt.Sprintf("ratelimit:%s:minute:%d", userID, now.Unix()/60)
	minuteCount, err := l.incrWithExpiry(ctx, minuteKey, 70*time.Second)
	if err != nil {
		l.logger.Warn("rate limit check failed, allowing request", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
		return &RateLimitResult{Allowed: true, RequestsRemaining: l.rpm}, nil
	}
	if minuteCount > int64(l.rpm) {
		metrics.LimiterRejections.WithLabelValues(LimitTypeMinute).Inc()
		return &RateLimitResult{
			Allowed:           false,
			RetryAfterSeconds: 60 - int(now.Unix()%60),
			RequestsRemaining: 0,
			LimitType:         LimitTypeMinute,
		}, nil
	}

	remaining := l.rpm - int(minuteCount)
	if dayRemaining := l.rpd - int(dayCount); dayRemaining < remaining {
		remaining = dayRemaining
	}
	if remaining < 0 {
		remaining = 0
	}

	return &RateLimitResult{
		Allowed:           true,
		RequestsRemaining: remaining,
	}, nil
}

// incrWithExpiry bumps the window counter and sets the TTL on first hit.
func (l *Limiter) incrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, ttl).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

func secondsUntilNextDay(now time.Time) int {
	next := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	return int(next.Sub(now).Seconds())
}
