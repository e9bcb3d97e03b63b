// Package ratelimit implements fixed-window request counters keyed by IP,
// user id, or any caller-chosen string, plus net/http middleware that turns
// rejections into 429 responses with the usual X-RateLimit-* metadata.
//
// Windows are fixed, not sliding: a counter's window ends exactly at
// windowStart+window, and an expired counter is replaced, never merged.
// The limiter is pure in-memory arithmetic - it has no error path. Counters
// for idle keys are swept periodically so one-off keys (e.g. churning
// client IPs) cannot grow the map without bound.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

const (
	defaultSweepInterval = 5 * time.Minute
	defaultMaxIdle       = 15 * time.Minute
)

// Result is the outcome of one admission check.
type Result struct {
	Allowed   bool
	Limit     int       // effective limit the check was made against
	Remaining int       // quota left in the current window; 0 when rejected
	ResetAt   time.Time // fixed end of the current window
}

// Violation describes a rejected request, delivered to the OnViolation
// callback off the request path.
type Violation struct {
	Key string
	Res Result
	At  time.Time
}

type counter struct {
	attempts    int
	windowStart time.Time
}

// Config tunes a Limiter. The zero value is ready to use.
type Config struct {
	// SweepInterval is how often idle counters are pruned; 0 => 5m,
	// negative => no sweeper.
	SweepInterval time.Duration
	// MaxIdle is how long a counter's window start may lie in the past
	// before the sweep drops it; 0 => 15m.
	MaxIdle time.Duration
	// OnViolation, when set, receives every rejection. Dispatch is
	// fire-and-forget: a bounded queue, dropped on overflow, never awaited
	// by Check. Panics in the callback are swallowed.
	OnViolation func(Violation)
	// ViolationQueue bounds the async dispatch queue; 0 => 256.
	ViolationQueue int
}

// Limiter holds fixed-window counters. One instance per process and concern
// (e.g. one for IP limits, one for user limits); safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time

	maxIdle time.Duration

	violations chan Violation
	ticker     *time.Ticker
	stopCh     chan struct{}
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// New builds a Limiter from cfg, filling in defaults for zero fields.
func New(cfg Config) *Limiter {
	l := &Limiter{
		counters: make(map[string]*counter),
		now:      time.Now,
		maxIdle:  cfg.MaxIdle,
	}
	if l.maxIdle <= 0 {
		l.maxIdle = defaultMaxIdle
	}

	if cfg.OnViolation != nil {
		qlen := cfg.ViolationQueue
		if qlen <= 0 {
			qlen = 256
		}
		l.violations = make(chan Violation, qlen)
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			for v := range l.violations {
				report(cfg.OnViolation, v)
			}
		}()
	}

	sweep := cfg.SweepInterval
	if sweep == 0 {
		sweep = defaultSweepInterval
	}
	if sweep > 0 {
		l.ticker = time.NewTicker(sweep)
		l.stopCh = make(chan struct{})
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			for {
				select {
				case <-l.ticker.C:
					l.Sweep()
				case <-l.stopCh:
					return
				}
			}
		}()
	}
	return l
}

// report invokes the violation callback, discarding anything it does wrong.
// The request path must never pay for a broken observer.
func report(fn func(Violation), v Violation) {
	defer func() { _ = recover() }()
	fn(v)
}

// Check admits or rejects one request for key under limit attempts per window.
// A fresh or expired-window key starts a new window with this request as
// attempt one; within a live window the attempt count is incremented and the
// request is rejected once it exceeds limit. A limit of zero or less rejects
// every request.
func (l *Limiter) Check(key string, limit int, window time.Duration) Result {
	now := l.now()

	// a non-positive limit admits nothing; no counter is created for it
	if limit <= 0 {
		res := Result{Allowed: false, Limit: limit, Remaining: 0, ResetAt: now.Add(window)}
		l.reportViolation(key, res, now)
		return res
	}

	l.mu.Lock()
	ctr, ok := l.counters[key]
	if !ok || now.Sub(ctr.windowStart) > window {
		// new window: discard any old count, never carry over
		l.counters[key] = &counter{attempts: 1, windowStart: now}
		l.mu.Unlock()
		return Result{Allowed: true, Limit: limit, Remaining: limit - 1, ResetAt: now.Add(window)}
	}

	ctr.attempts++
	attempts := ctr.attempts
	resetAt := ctr.windowStart.Add(window)
	l.mu.Unlock()

	if attempts > limit {
		res := Result{Allowed: false, Limit: limit, Remaining: 0, ResetAt: resetAt}
		l.reportViolation(key, res, now)
		return res
	}
	return Result{Allowed: true, Limit: limit, Remaining: limit - attempts, ResetAt: resetAt}
}

func (l *Limiter) reportViolation(key string, res Result, at time.Time) {
	if l.violations == nil {
		return
	}
	select {
	case l.violations <- Violation{Key: key, Res: res, At: at}:
	default: // queue full; drop rather than block the request
	}
}

// Reset removes the counter for key, forgiving its current window.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	delete(l.counters, key)
	l.mu.Unlock()
}

// Clear removes every counter.
func (l *Limiter) Clear() {
	l.mu.Lock()
	l.counters = make(map[string]*counter)
	l.mu.Unlock()
}

// Len returns the number of tracked counters.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}

// Sweep drops counters whose window started longer than the idle cutoff
// ago. Runs periodically on its own; exported for tests and manual pruning.
func (l *Limiter) Sweep() {
	cutoff := l.now().Add(-l.maxIdle)
	l.mu.Lock()
	for k, c := range l.counters {
		if c.windowStart.Before(cutoff) {
			delete(l.counters, k)
		}
	}
	l.mu.Unlock()
}

// Close stops the sweeper and the violation worker. Pending queued
// violations are delivered first.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() {
		if l.stopCh != nil {
			close(l.stopCh)
			l.ticker.Stop()
		}
		if l.violations != nil {
			close(l.violations)
		}
		l.wg.Wait()
	})
}

// RoleLimits derives per-user limits from a base quota and per-role
// multipliers. Unknown roles fall back to multiplier 1.
type RoleLimits struct {
	Base        int
	Window      time.Duration
	Multipliers map[string]float64
}

// ForRole returns the effective limit for role: floor(Base * multiplier).
func (r RoleLimits) ForRole(role string) int {
	m, ok := r.Multipliers[role]
	if !ok {
		return r.Base
	}
	return int(math.Floor(float64(r.Base) * m))
}

// CheckUser runs an admission check for a user under role-derived limits.
// Keys are namespaced per user id so users never share a bucket.
func (l *Limiter) CheckUser(userID, role string, limits RoleLimits) Result {
	return l.Check("user:"+userID, limits.ForRole(role), limits.Window)
}
