package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *testClock) {
	t.Helper()
	cfg.SweepInterval = -1 // no background goroutine in tests
	l := New(cfg)
	c := &testClock{t: time.Unix(1_700_000_000, 0)}
	l.now = c.now
	t.Cleanup(l.Close)
	return l, c
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestFixedWindowBasics(t *testing.T) {
	l, _ := newTestLimiter(t, Config{})
	const n = 5

	for i := 0; i < n; i++ {
		res := l.Check("k", n, time.Minute)
		if !res.Allowed {
			t.Fatalf("request %d rejected within the limit", i+1)
		}
		if want := n - 1 - i; res.Remaining != want {
			t.Fatalf("request %d: Remaining = %d, want %d", i+1, res.Remaining, want)
		}
	}

	res := l.Check("k", n, time.Minute)
	if res.Allowed {
		t.Fatalf("request %d allowed over the limit", n+1)
	}
	if res.Remaining != 0 {
		t.Fatalf("rejected request: Remaining = %d, want 0", res.Remaining)
	}
}

func TestNonPositiveLimitRejectsEverything(t *testing.T) {
	l, _ := newTestLimiter(t, Config{})

	for _, limit := range []int{0, -3} {
		res := l.Check("k", limit, time.Minute)
		if res.Allowed {
			t.Fatalf("limit %d admitted a request", limit)
		}
		if res.Remaining != 0 {
			t.Fatalf("limit %d: Remaining = %d, want 0", limit, res.Remaining)
		}
	}
	if n := l.Len(); n != 0 {
		t.Fatalf("rejected-only keys grew the counter map to %d", n)
	}
}

func TestWindowResetDiscardsOldCount(t *testing.T) {
	l, c := newTestLimiter(t, Config{})

	for i := 0; i < 3; i++ {
		l.Check("k", 2, time.Minute)
	}
	if res := l.Check("k", 2, time.Minute); res.Allowed {
		t.Fatalf("still within window, should stay rejected")
	}

	c.advance(61 * time.Second)
	res := l.Check("k", 2, time.Minute)
	if !res.Allowed {
		t.Fatalf("request after window expiry rejected")
	}
	if res.Remaining != 1 {
		t.Fatalf("fresh window Remaining = %d, want 1 (old attempts must not carry over)", res.Remaining)
	}
}

func TestResetAtIsFixedWindowEnd(t *testing.T) {
	l, c := newTestLimiter(t, Config{})
	start := c.t

	first := l.Check("k", 10, time.Minute)
	c.advance(20 * time.Second)
	second := l.Check("k", 10, time.Minute)

	want := start.Add(time.Minute)
	if !first.ResetAt.Equal(want) || !second.ResetAt.Equal(want) {
		t.Fatalf("ResetAt slid with the requests: first=%v second=%v want=%v",
			first.ResetAt, second.ResetAt, want)
	}
}

func TestIndependentKeys(t *testing.T) {
	l, _ := newTestLimiter(t, Config{})

	for i := 0; i < 10; i++ {
		l.Check("a", 2, time.Minute)
	}
	res := l.Check("b", 2, time.Minute)
	if !res.Allowed || res.Remaining != 1 {
		t.Fatalf("key b affected by traffic on key a: %+v", res)
	}
}

func TestResetAndClear(t *testing.T) {
	l, _ := newTestLimiter(t, Config{})

	for i := 0; i < 3; i++ {
		l.Check("k", 2, time.Minute)
	}
	l.Reset("k")
	if res := l.Check("k", 2, time.Minute); !res.Allowed || res.Remaining != 1 {
		t.Fatalf("Reset did not start a fresh window: %+v", res)
	}

	l.Check("x", 2, time.Minute)
	l.Clear()
	if l.Len() != 0 {
		t.Fatalf("Len after Clear = %d", l.Len())
	}
}

func TestSweepDropsIdleCounters(t *testing.T) {
	l, c := newTestLimiter(t, Config{MaxIdle: 15 * time.Minute})

	l.Check("old", 5, time.Minute)
	c.advance(20 * time.Minute)
	l.Check("fresh", 5, time.Minute)

	l.Sweep()
	if l.Len() != 1 {
		t.Fatalf("Len after sweep = %d, want 1", l.Len())
	}
	if res := l.Check("fresh", 5, time.Minute); res.Remaining != 3 {
		t.Fatalf("sweep touched a live counter: %+v", res)
	}
}

func TestRoleMultipliers(t *testing.T) {
	limits := RoleLimits{
		Base:   10,
		Window: time.Minute,
		Multipliers: map[string]float64{
			"premium": 2.5,
			"trial":   0.5,
		},
	}
	cases := []struct {
		role string
		want int
	}{
		{"premium", 25},
		{"trial", 5},
		{"unknown", 10},
		{"", 10},
	}
	for _, c := range cases {
		if got := limits.ForRole(c.role); got != c.want {
			t.Errorf("ForRole(%q) = %d, want %d", c.role, got, c.want)
		}
	}
}

func TestCheckUserNamespacesPerUser(t *testing.T) {
	l, _ := newTestLimiter(t, Config{})
	limits := RoleLimits{Base: 2, Window: time.Minute}

	l.CheckUser("1", "member", limits)
	l.CheckUser("1", "member", limits)
	if res := l.CheckUser("1", "member", limits); res.Allowed {
		t.Fatalf("user 1 over limit but allowed")
	}
	if res := l.CheckUser("2", "member", limits); !res.Allowed {
		t.Fatalf("user 2 rejected because of user 1's traffic")
	}
}

func TestViolationDispatch(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []Violation
	)
	done := make(chan struct{}, 1)
	l := New(Config{
		SweepInterval: -1,
		OnViolation: func(v Violation) {
			mu.Lock()
			seen = append(seen, v)
			mu.Unlock()
			select {
			case done <- struct{}{}:
			default:
			}
		},
	})
	defer l.Close()

	l.Check("k", 1, time.Minute)
	l.Check("k", 1, time.Minute) // rejected

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("violation never delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0].Key != "k" || seen[0].Res.Allowed {
		t.Fatalf("unexpected violations: %+v", seen)
	}
}

func TestViolationPanicsAreSwallowed(t *testing.T) {
	l := New(Config{
		SweepInterval: -1,
		OnViolation:   func(Violation) { panic("observer bug") },
	})

	l.Check("k", 1, time.Minute)
	l.Check("k", 1, time.Minute)
	l.Close() // drains the queue; must not blow up

	// the limiter keeps working regardless of observer state
	if res := l.Check("other", 1, time.Minute); !res.Allowed {
		t.Fatalf("limiter broken after observer panic")
	}
}

func TestConcurrentChecksStayBounded(t *testing.T) {
	l := New(Config{SweepInterval: -1})
	defer l.Close()

	const (
		workers = 8
		perW    = 50
		limit   = 100
	)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perW; i++ {
				if l.Check("shared", limit, time.Minute).Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if allowed != limit {
		t.Fatalf("allowed %d of %d requests under limit %d", allowed, workers*perW, limit)
	}
}

func TestManyKeysStayIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, Config{})
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("ip:%d", i)
		if res := l.Check(key, 1, time.Minute); !res.Allowed {
			t.Fatalf("first request for %s rejected", key)
		}
	}
	if l.Len() != 50 {
		t.Fatalf("Len = %d, want 50", l.Len())
	}
}
