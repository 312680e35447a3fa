// Package ratelimit implements the provider-keyed outbound throttle
// pkg/transport uses to guard a single upstream provider account from
// being re-triggered every turn: the bidding engine can easily favor the
// same agent (or several agents bound to the same provider) turn after
// turn, and a Registry lets every Transport sharing a provider key draw
// from one token bucket instead of quietly multiplying the effective
// rate per adapter instance.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Registry owns one token bucket per provider key, created lazily on
// first reference. A key that is never Configure'd (or configured with
// a non-positive rate) stays disabled and never blocks a caller — so a
// Transport built without an explicit rate limit pays no overhead.
type Registry struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewRegistry returns a registry with no configured keys.
func NewRegistry() *Registry {
	return &Registry{buckets: make(map[string]*bucket)}
}

// Configure sets (or replaces) the rate/burst for key. A rate of 0 or
// less disables that key entirely; burst below 1 is clamped to 1.
func (r *Registry) Configure(key string, ratePerSecond float64, burst int) {
	r.bucketFor(key).configure(ratePerSecond, burst)
}

func (r *Registry) bucketFor(key string) *bucket {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{disabled: true}
		r.buckets[key] = b
	}
	return b
}

// Wait blocks until key's bucket yields a token or ctx is canceled.
func (r *Registry) Wait(ctx context.Context, key string) error {
	return r.bucketFor(key).wait(ctx)
}

// Allow reports whether key's bucket has a token available right now,
// without waiting.
func (r *Registry) Allow(key string) bool {
	return r.bucketFor(key).allow()
}

// Pause blocks key's bucket for at least d, honoring a provider's
// Retry-After response.
func (r *Registry) Pause(key string, d time.Duration) {
	r.bucketFor(key).pause(d)
}

// CooldownRemaining returns key's remaining pause duration, if any.
func (r *Registry) CooldownRemaining(key string) time.Duration {
	return r.bucketFor(key).cooldownRemaining()
}

// SetRate updates key's rate. A rate of 0 or less disables that key.
func (r *Registry) SetRate(key string, rate float64) {
	r.bucketFor(key).setRate(rate)
}

// SetBurst updates key's burst size, clamping its current tokens to the
// new cap.
func (r *Registry) SetBurst(key string, burst int) {
	r.bucketFor(key).setBurst(burst)
}

// Stats is a snapshot of one key's bucket state.
type Stats struct {
	Rate              float64
	Burst             int
	AvailableTokens   float64
	Disabled          bool
	CooldownRemaining time.Duration
}

// Stats returns a snapshot of key's current bucket state.
func (r *Registry) Stats(key string) Stats {
	return r.bucketFor(key).stats()
}

// String renders key's bucket for log/debug output.
func (r *Registry) String(key string) string {
	return r.bucketFor(key).String()
}

// bucket is a single provider key's token-bucket state, refilled
// lazily on each access rather than by a background ticker.
type bucket struct {
	mu            sync.Mutex
	rate          float64 // tokens per second
	burst         int
	tokens        float64
	lastRefill    time.Time
	disabled      bool
	cooldownUntil time.Time
}

func (b *bucket) configure(rate float64, burst int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rate <= 0 {
		b.disabled = true
		return
	}
	if burst < 1 {
		burst = 1
	}
	b.disabled = false
	b.rate = rate
	b.burst = burst
	b.tokens = float64(burst)
	b.lastRefill = time.Now()
}

func (b *bucket) wait(ctx context.Context) error {
	if b.isDisabled() {
		return nil
	}
	for {
		if cooldown := b.cooldownRemaining(); cooldown > 0 {
			select {
			case <-time.After(cooldown):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if b.take() {
			return nil
		}
		select {
		case <-time.After(b.waitTime()):
			continue
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *bucket) allow() bool {
	if b.isDisabled() {
		return true
	}
	if b.cooldownRemaining() > 0 {
		return false
	}
	return b.take()
}

func (b *bucket) isDisabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disabled
}

func (b *bucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.rate
	if b.tokens > float64(b.burst) {
		b.tokens = float64(b.burst)
	}
	b.lastRefill = now
}

func (b *bucket) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(time.Now())
	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true
	}
	return false
}

func (b *bucket) waitTime() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	needed := 1.0 - b.tokens
	if needed <= 0 {
		return time.Millisecond
	}
	return time.Duration((needed / b.rate) * float64(time.Second))
}

func (b *bucket) setRate(rate float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rate <= 0 {
		b.disabled = true
		return
	}
	b.disabled = false
	b.rate = rate
	b.lastRefill = time.Now()
}

func (b *bucket) setBurst(burst int) {
	if burst < 1 {
		burst = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.burst = burst
	if b.tokens > float64(burst) {
		b.tokens = float64(burst)
	}
}

func (b *bucket) pause(d time.Duration) {
	if d <= 0 {
		return
	}
	until := time.Now().Add(d)
	b.mu.Lock()
	if until.After(b.cooldownUntil) {
		b.cooldownUntil = until
	}
	b.mu.Unlock()
}

func (b *bucket) cooldownRemaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cooldownRemainingLocked(time.Now())
}

func (b *bucket) cooldownRemainingLocked(now time.Time) time.Duration {
	if b.cooldownUntil.IsZero() || !now.Before(b.cooldownUntil) {
		return 0
	}
	return b.cooldownUntil.Sub(now)
}

func (b *bucket) stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	tokens := b.tokens + now.Sub(b.lastRefill).Seconds()*b.rate
	if tokens > float64(b.burst) {
		tokens = float64(b.burst)
	}
	return Stats{
		Rate:              b.rate,
		Burst:             b.burst,
		AvailableTokens:   tokens,
		Disabled:          b.disabled,
		CooldownRemaining: b.cooldownRemainingLocked(now),
	}
}

func (b *bucket) String() string {
	if b.isDisabled() {
		return "rate limiting disabled"
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("%.2f req/s, burst=%d", b.rate, b.burst)
}
