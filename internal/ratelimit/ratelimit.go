// Package ratelimit provides Redis-based rate limiting for the submission
// endpoint, shared across all gateway instances.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned when a rate limit is exceeded.
var ErrRateLimited = errors.New("rate limit exceeded")

// SubmitLimits defines how many executions a room may request per window.
// Executions are the expensive path; edits and chat are never limited.
type SubmitLimits struct {
	PerRoom    int
	RoomWindow time.Duration
}

// DefaultSubmitLimits returns the recommended submission limits.
func DefaultSubmitLimits() SubmitLimits {
	return SubmitLimits{
		PerRoom:    10,
		RoomWindow: time.Minute,
	}
}

// Limiter counts submissions in Redis so the limit holds across every
// gateway instance, not just the one that happened to take the request.
type Limiter struct {
	redis  *redis.Client
	limits SubmitLimits
}

// NewLimiter creates a limiter with the given limits.
func NewLimiter(redis *redis.Client, limits SubmitLimits) *Limiter {
	return &Limiter{redis: redis, limits: limits}
}

// CheckSubmit checks whether the room may submit another execution.
// Returns nil if allowed, ErrRateLimited if the window is exhausted.
func (l *Limiter) CheckSubmit(ctx context.Context, roomID string) error {
	if l == nil || l.redis == nil {
		// Fail-open for availability when Redis is not wired up.
		return nil
	}

	key := fmt.Sprintf("ratelimit:submit:room:%s", roomID)
	if err := l.checkLimit(ctx, key, l.limits.PerRoom, l.limits.RoomWindow); err != nil {
		log.Printf("[ratelimit] room %s exceeded submission limit", roomID)
		return ErrRateLimited
	}
	return nil
}

// checkLimit performs a fixed-window check using Redis INCR.
func (l *Limiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		// Fail-open on Redis errors to maintain availability.
		return nil
	}
	if count == 1 {
		l.redis.Expire(ctx, key, window)
	}
	if int(count) > limit {
		return ErrRateLimited
	}
	return nil
}
