package rescache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/rescache/memstore"
)

// Backoff between connection attempts is capped here no matter how large
// the attempt counter grows.
const maxRetryDelay = 5 * time.Second

// Client is the resilient cache client. It talks to a single or clustered
// backend and degrades to an in-process bounded store when the backend is
// unconfigured, unreachable, or fails mid-operation. One Client per process
// is the intended shape; all methods are safe for concurrent use.
type Client struct {
	opts  Options
	log   Logger
	hooks Hooks
	fb    *memstore.Store

	mode      atomic.Int32 // Mode; single authoritative state, read atomically
	connected atomic.Bool
	closed    atomic.Bool
	failures  atomic.Int32 // consecutive backend errors since the last success

	// handle fields are swapped only on connect/reconnect/close
	mu      sync.RWMutex
	single  *redis.Client
	cluster *redis.ClusterClient
}

func newClient(ctx context.Context, opts Options) (*Client, error) {
	c := &Client{opts: opts}
	c.opts.MaxRetries = coalesce(opts.MaxRetries, 3)
	c.opts.RetryDelay = coalesce(opts.RetryDelay, 200*time.Millisecond)
	c.opts.ConnectTimeout = coalesce(opts.ConnectTimeout, 5*time.Second)
	c.opts.CommandTimeout = coalesce(opts.CommandTimeout, 5*time.Second)
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.fb = memstore.New(memstore.Config{
		Capacity:   c.opts.FallbackCapacity,
		DefaultTTL: c.opts.FallbackTTL,
	})
	c.mode.Store(int32(ModeMemory))

	if err := c.connect(ctx); err != nil {
		c.fb.Close()
		return nil, err
	}
	return c, nil
}

// connect picks the target mode from configuration, dials it with the retry
// budget, and installs the handle. On exhaustion the client lands in memory
// mode; the error is surfaced only when fallback is disabled.
func (c *Client) connect(ctx context.Context) error {
	var (
		target Mode
		h      redis.UniversalClient
	)
	switch {
	case len(c.opts.ClusterAddrs) > 0:
		target = ModeCluster
		h = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        c.opts.ClusterAddrs,
			DialTimeout:  c.opts.ConnectTimeout,
			ReadTimeout:  c.opts.CommandTimeout,
			WriteTimeout: c.opts.CommandTimeout,
			MaxRetries:   -1, // the retry budget below is authoritative
		})
	case c.opts.Addr != "":
		target = ModeSingle
		h = redis.NewClient(&redis.Options{
			Addr:         c.opts.Addr,
			DialTimeout:  c.opts.ConnectTimeout,
			ReadTimeout:  c.opts.CommandTimeout,
			WriteTimeout: c.opts.CommandTimeout,
			MaxRetries:   -1,
		})
	default:
		// no backend configured at all: memory mode is the deployment, not
		// a failure
		c.log.Info("no backend configured, serving from memory", nil)
		c.setMode(ModeMemory, "no backend configured")
		return nil
	}

	var (
		attempts int
		lastErr  error
	)
	for attempt := 1; ; attempt++ {
		attempts = attempt
		pctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
		lastErr = h.Ping(pctx).Err()
		cancel()
		if lastErr == nil {
			c.install(target, h)
			c.log.Info("backend connected", Fields{"mode": target.String(), "attempt": attempt})
			return nil
		}
		c.log.Warn("backend ping failed", Fields{
			"mode":    target.String(),
			"attempt": attempt,
			"err":     lastErr,
		})
		if attempt > c.opts.MaxRetries || ctx.Err() != nil {
			break
		}
		delay := time.Duration(attempt) * c.opts.RetryDelay
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}

	_ = h.Close()
	c.setMode(ModeMemory, "retry budget exhausted")
	if c.opts.DisableFallback {
		return &ConnectError{Mode: target, Attempts: attempts, Err: lastErr}
	}
	return nil
}

func (c *Client) install(m Mode, h redis.UniversalClient) {
	c.mu.Lock()
	switch m {
	case ModeCluster:
		c.cluster = h.(*redis.ClusterClient)
		c.single = nil
	default:
		c.single = h.(*redis.Client)
		c.cluster = nil
	}
	c.mu.Unlock()
	c.failures.Store(0)
	c.connected.Store(true)
	c.setMode(m, "connected")
}

// handle returns the backend for the current mode; nil when memory is
// authoritative. Dispatch switches on the mode tag so every state is
// handled explicitly.
func (c *Client) handle() redis.UniversalClient {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.Mode() {
	case ModeSingle:
		if c.single != nil {
			return c.single
		}
	case ModeCluster:
		if c.cluster != nil {
			return c.cluster
		}
	case ModeMemory:
	}
	return nil
}

// setMode publishes the authoritative mode. Concurrent readers observe the
// old or the new value, never a torn one.
func (c *Client) setMode(m Mode, reason string) {
	old := Mode(c.mode.Swap(int32(m)))
	if old == m {
		return
	}
	if m == ModeMemory {
		c.connected.Store(false)
	}
	c.log.Info("cache mode changed", Fields{"from": old.String(), "to": m.String(), "reason": reason})
	c.hooks.ModeChange(old, m, reason)
}

// do is the per-operation dispatch. Memory mode, a missing handle, or a
// not-connected backend all route straight to the in-process store - no
// network attempt, no timeout cost while the backend is down. A backend
// error is logged and, with fallback enabled, absorbed by serving that one
// call from the in-process store; a single error is not a mode switch, but
// once consecutive errors exceed the retry budget the backend is torn down
// and memory becomes authoritative (Reconnect is the road back), so a dead
// backend stops costing a command timeout per call.
func do[T any](c *Client, ctx context.Context, op string,
	be func(context.Context, redis.UniversalClient) (T, error),
	fb func() T,
) (T, error) {
	var zero T
	if c.closed.Load() {
		return zero, ErrClosed
	}
	h := c.handle()
	if h == nil || !c.connected.Load() {
		if c.opts.DisableFallback {
			return zero, ErrNoBackend
		}
		return fb(), nil
	}

	octx, cancel := context.WithTimeout(ctx, c.opts.CommandTimeout)
	defer cancel()
	v, err := be(octx, h)
	if err != nil {
		c.log.Warn("backend operation failed", Fields{"op": op, "err": err})
		c.hooks.BackendError(op, err)
		if c.opts.DisableFallback {
			return zero, &OpError{Op: op, Mode: c.Mode(), Err: err}
		}
		if n := c.failures.Add(1); int(n) > c.opts.MaxRetries {
			c.teardownBackend()
			c.setMode(ModeMemory, "retry budget exhausted")
		}
		c.hooks.FallbackServed(op)
		return fb(), nil
	}
	c.failures.Store(0)
	return v, nil
}

type optValue struct {
	val string
	ok  bool
}

// Get returns the value for key; ok=false on a miss. Never errors while
// fallback is enabled.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	r, err := do(c, ctx, "get", func(ctx context.Context, h redis.UniversalClient) (optValue, error) {
		v, err := h.Get(ctx, key).Result()
		if err == redis.Nil {
			return optValue{}, nil
		}
		if err != nil {
			return optValue{}, err
		}
		return optValue{val: v, ok: true}, nil
	}, func() optValue {
		v, ok := c.fb.Get(key)
		return optValue{val: v, ok: ok}
	})
	return r.val, r.ok, err
}

// Set stores value under key. ttl <= 0 means no expiry on the backend; the
// fallback store applies (and caps at) its own short default instead, since
// fallback entries must not outlive the outage they bridge.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := do(c, ctx, "set", func(ctx context.Context, h redis.UniversalClient) (struct{}, error) {
		t := ttl
		if t < 0 {
			t = 0
		}
		return struct{}{}, h.Set(ctx, key, value, t).Err()
	}, func() struct{} {
		c.fb.Set(key, value, ttl)
		return struct{}{}
	})
	return err
}

// SetEx is Set with a mandatory TTL, mirroring the SETEX command.
func (c *Client) SetEx(ctx context.Context, key string, ttl time.Duration, value string) error {
	return c.Set(ctx, key, value, ttl)
}

// Del removes key. Deleting an absent key is not an error.
func (c *Client) Del(ctx context.Context, key string) error {
	_, err := do(c, ctx, "del", func(ctx context.Context, h redis.UniversalClient) (struct{}, error) {
		return struct{}{}, h.Del(ctx, key).Err()
	}, func() struct{} {
		c.fb.Del(key)
		return struct{}{}
	})
	return err
}

// MGet resolves every key in order: exactly one element per input key,
// nil where the key is absent or expired.
func (c *Client) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	return do(c, ctx, "mget", func(ctx context.Context, h redis.UniversalClient) ([]*string, error) {
		vals, err := h.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, err
		}
		out := make([]*string, len(keys))
		for i, v := range vals {
			if s, ok := v.(string); ok {
				sv := s
				out[i] = &sv
			}
		}
		return out, nil
	}, func() []*string {
		return c.fb.MGet(keys...)
	})
}

// Keys returns all keys matching pattern, where `*` matches any substring.
// Order is unspecified.
func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	return do(c, ctx, "keys", func(ctx context.Context, h redis.UniversalClient) ([]string, error) {
		return h.Keys(ctx, pattern).Result()
	}, func() []string {
		ks, err := c.fb.Keys(pattern)
		if err != nil {
			return nil
		}
		return ks
	})
}

// Ping reports liveness. Answers "PONG" in memory mode too: the client as a
// whole is up even when the backend is not.
func (c *Client) Ping(ctx context.Context) (string, error) {
	return do(c, ctx, "ping", func(ctx context.Context, h redis.UniversalClient) (string, error) {
		return h.Ping(ctx).Result()
	}, func() string {
		return "PONG"
	})
}

// TTL reports the remaining lifetime of key in whole seconds (rounded up),
// memstore.TTLMissing (-2) for absent/expired keys and memstore.TTLPersistent
// (-1) for keys without expiry.
func (c *Client) TTL(ctx context.Context, key string) (int64, error) {
	return do(c, ctx, "ttl", func(ctx context.Context, h redis.UniversalClient) (int64, error) {
		d, err := h.TTL(ctx, key).Result()
		if err != nil {
			return 0, err
		}
		switch d {
		case -2, -1:
			// sentinel replies come through as bare negative durations
			return int64(d), nil
		}
		return int64((d + time.Second - 1) / time.Second), nil
	}, func() int64 {
		return c.fb.TTL(key)
	})
}

// Incr adds one to the integer value at key (absent counts as zero) and
// returns the result.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	return do(c, ctx, "incr", func(ctx context.Context, h redis.UniversalClient) (int64, error) {
		return h.Incr(ctx, key).Result()
	}, func() int64 {
		return c.fb.Incr(key)
	})
}

// Expire re-arms the TTL of an existing key and reports whether the key was
// there. The value is kept; the previous remaining lifetime is replaced, on
// the backend and fallback alike.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return do(c, ctx, "expire", func(ctx context.Context, h redis.UniversalClient) (bool, error) {
		return h.Expire(ctx, key, ttl).Result()
	}, func() bool {
		return c.fb.Expire(key, ttl)
	})
}

// Exists reports whether key is present and unexpired.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	return do(c, ctx, "exists", func(ctx context.Context, h redis.UniversalClient) (bool, error) {
		n, err := h.Exists(ctx, key).Result()
		return n > 0, err
	}, func() bool {
		return c.fb.Exists(key)
	})
}

// Mode returns the currently authoritative backend selection.
func (c *Client) Mode() Mode { return Mode(c.mode.Load()) }

// IsConnected is true only when the mode is not memory and the backend
// connection was established.
func (c *Client) IsConnected() bool {
	return c.Mode() != ModeMemory && c.connected.Load()
}

// Reconnect re-runs the initialization path and reports whether the client
// ended up connected. The client never leaves memory mode on its own; this
// is the only road back to a configured backend.
func (c *Client) Reconnect(ctx context.Context) bool {
	if c.closed.Load() {
		return false
	}
	c.teardownBackend()
	if err := c.connect(ctx); err != nil {
		c.log.Warn("reconnect failed", Fields{"err": err})
	}
	ok := c.IsConnected()
	c.hooks.ReconnectResult(ok)
	return ok
}

func (c *Client) teardownBackend() {
	c.connected.Store(false)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.single != nil {
		_ = c.single.Close()
		c.single = nil
	}
	if c.cluster != nil {
		_ = c.cluster.Close()
		c.cluster = nil
	}
}

// Close tears down the backend connection (if any) and clears the fallback
// store. The client is not reusable after Close; repeated calls are no-ops.
func (c *Client) Close(context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}
	c.connected.Store(false)
	c.mu.Lock()
	var err error
	if c.single != nil {
		err = c.single.Close()
		c.single = nil
	}
	if c.cluster != nil {
		if cerr := c.cluster.Close(); err == nil {
			err = cerr
		}
		c.cluster = nil
	}
	c.mu.Unlock()
	c.fb.Clear()
	c.fb.Close()
	return err
}
