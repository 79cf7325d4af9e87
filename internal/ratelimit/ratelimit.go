// Package ratelimit is the Rate Limiter / Request Gate component: a
// Redis-backed fixed-window counter over two dimensions (per source IP, per
// authenticated user per hour) that fails open when Redis is unreachable.
// Each window is a separate counter key, so requests are not smoothed
// within a window and a burst straddling a window boundary can pass up to
// twice the limit.
// It is grounded on the teacher pack's AdaptiveRateLimiter
// (features/model/middleware/ratelimit.go in the goadesign-goa-ai example),
// reusing its golang.org/x/time/rate-backed single-process limiter as the
// fail-open fallback while the primary decision is made against Redis so
// quota is shared across every process instance.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/corpusloop/platform/internal/apierr"
)

// Dimension names the quota a Check call is evaluated against.
type Dimension string

const (
	// DimensionReadIP limits read (GET) traffic per source IP.
	DimensionReadIP Dimension = "read_ip"
	// DimensionWriteIP limits write (POST/PUT/DELETE) traffic per source IP.
	DimensionWriteIP Dimension = "write_ip"
	// DimensionUserHourly limits traffic per authenticated user per hour.
	DimensionUserHourly Dimension = "user_hour"
)

// Limits is the configured quota per dimension, read from environment
// configuration (RATE_LIMIT_READ_PER_MIN, RATE_LIMIT_WRITE_PER_MIN,
// RATE_LIMIT_PER_HOUR).
type Limits struct {
	ReadPerMinute  int
	WritePerMinute int
	PerHour        int
}

func (l Limits) windowFor(dim Dimension) (limit int, window time.Duration) {
	switch dim {
	case DimensionReadIP:
		return l.ReadPerMinute, time.Minute
	case DimensionWriteIP:
		return l.WritePerMinute, time.Minute
	case DimensionUserHourly:
		return l.PerHour, time.Hour
	default:
		return 0, time.Minute
	}
}

// Gate is the shared Request Gate. Counters live in Redis so every process
// behind a load balancer shares the same quota; a process-local
// golang.org/x/time/rate limiter takes over, fully open, when Redis is
// unreachable, logging the degradation per spec.
type Gate struct {
	rdb    *redis.Client
	limits Limits

	// fallback lets requests through uncounted while Redis is down rather
	// than blocking the process on every call; it exists only to avoid a
	// hot loop of failed Redis round-trips, not to enforce a real quota.
	fallback *rate.Limiter
}

// New builds a Gate against a Redis client and the configured limits.
func New(rdb *redis.Client, limits Limits) *Gate {
	return &Gate{
		rdb:      rdb,
		limits:   limits,
		fallback: rate.NewLimiter(rate.Limit(1000), 1000),
	}
}

func bucketKey(dim Dimension, subject string, window time.Duration, now time.Time) string {
	bucket := now.Unix() / int64(window.Seconds())
	return fmt.Sprintf("ratelimit:%s:%s:%d", dim, subject, bucket)
}

// Check increments the counter for (dimension, subject) and reports
// whether the request is within quota. On Redis failure it fails open,
// logging the degradation, matching the spec's explicit policy.
func (g *Gate) Check(ctx context.Context, dim Dimension, subject string) error {
	limit, window := g.limits.windowFor(dim)
	if limit <= 0 {
		return nil // dimension disabled
	}

	now := time.Now()
	key := bucketKey(dim, subject, window, now)

	count, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		slog.Warn("rate limiter degraded: redis unreachable, failing open",
			slog.String("dimension", string(dim)), slog.String("err", err.Error()))
		g.fallback.Wait(ctx) //nolint:errcheck // best-effort local smoothing only
		return nil
	}
	if count == 1 {
		// First hit in this bucket: set expiry so the key self-cleans.
		g.rdb.Expire(ctx, key, window)
	}
	if int(count) > limit {
		retryAfter := int(window.Seconds()) - int(now.Unix()%int64(window.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		return apierr.RateLimited(retryAfter)
	}
	return nil
}
