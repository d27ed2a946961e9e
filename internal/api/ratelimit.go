package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/abdul-hamid-achik/trackdrop/internal/apperror"
	"github.com/abdul-hamid-achik/trackdrop/internal/logger"
	"github.com/abdul-hamid-achik/trackdrop/internal/metrics"
	"github.com/redis/go-redis/v9"
)

type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// RedisRateLimiter implements a sliding window rate limiter using Redis
type RedisRateLimiter struct {
	client *redis.Client
	rate   int
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewRedisRateLimiter(client *redis.Client, rate int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		rate:   rate,
		window: window,
		prefix: "trackdrop:ratelimit:",
		now:    time.Now,
	}
}

// Allow records a request for key and reports whether it fits in the window.
// Redis errors let the request through.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) bool {
	if rl.client == nil || rl.rate <= 0 {
		return true
	}

	now := rl.now().UnixNano()
	windowStart := now - int64(rl.window)
	redisKey := rl.prefix + key

	pipe := rl.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart, 10))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now), Member: now})
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.window)

	if _, err := pipe.Exec(ctx); err != nil {
		logger.FromContext(ctx).Warn("rate limiter unavailable", "error", err)
		return true
	}
	return countCmd.Val() <= int64(rl.rate)
}

func (rl *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	if rl.client == nil {
		return nil
	}
	return rl.client.Del(ctx, rl.prefix+key).Err()
}

// RateLimit throttles authenticated callers per owner.
func RateLimit(limiter Limiter, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if ownerID, ok := GetOwnerID(r.Context()); ok {
				key = ownerID.String()
			}

			if !limiter.Allow(r.Context(), fmt.Sprintf("%s:%s", route, key)) {
				metrics.RecordRateLimitHit(route)
				w.Header().Set("Retry-After", "60")
				apperror.WriteJSON(w, r, apperror.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
