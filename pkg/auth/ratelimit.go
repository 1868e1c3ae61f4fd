package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// A bucket refills completely within a minute, so one idle for longer holds
// no state worth keeping.
const bucketIdleTTL = 2 * time.Minute

// RateLimiter checks whether a request should be allowed based on
// the identity's service tier.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// TierConfig holds rate limit settings for a service tier.
type TierConfig struct {
	RequestsPerMinute int
}

// InProcessLimiter is a token-bucket rate limiter keyed by subject and
// tier, held in memory.
type InProcessLimiter struct {
	tiers      map[string]TierConfig
	defaultRPM int
	now        func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewInProcessLimiter creates a rate limiter with per-tier configuration.
func NewInProcessLimiter(tiers map[string]TierConfig, defaultRPM int) *InProcessLimiter {
	return &InProcessLimiter{
		tiers:      tiers,
		defaultRPM: defaultRPM,
		now:        time.Now,
		buckets:    make(map[string]*bucket),
	}
}

// Allow checks if the request is within the rate limit. Anonymous callers
// share one bucket per tier.
func (l *InProcessLimiter) Allow(_ context.Context, identity *Identity) error {
	tier := "default"
	subject := "anonymous"
	if identity != nil {
		if identity.ServiceTier != "" {
			tier = identity.ServiceTier
		}
		if identity.Subject != "" {
			subject = identity.Subject
		}
	}

	rpm := l.defaultRPM
	if tc, ok := l.tiers[tier]; ok {
		rpm = tc.RequestsPerMinute
	}
	if rpm <= 0 {
		return nil // no limit
	}

	if !l.limiter(subject+":"+tier, rpm).Allow() {
		return ErrTooManyRequests
	}
	return nil
}

func (l *InProcessLimiter) limiter(key string, rpm int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= bucketIdleTTL {
		l.sweep(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		// A full minute's allowance may be spent at once.
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60), rpm)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// sweep drops buckets idle for longer than bucketIdleTTL. Must be called
// with mu held.
func (l *InProcessLimiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > bucketIdleTTL {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

// Len returns the number of buckets currently tracked.
func (l *InProcessLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
