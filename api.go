package rescache

import (
	"context"
	"time"
)

// Mode names the backend that is currently authoritative for the client.
// Exactly one mode is active at a time.
type Mode int32

const (
	// ModeMemory serves everything from the in-process bounded store.
	// Entered when no backend is configured, or when the configured backend
	// could not be reached within the retry budget.
	ModeMemory Mode = iota
	// ModeSingle talks to one backend node.
	ModeSingle
	// ModeCluster talks to a clustered backend.
	ModeCluster
)

func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeCluster:
		return "cluster"
	default:
		return "memory"
	}
}

// Options tune the client. The zero value is valid and yields a pure
// in-process cache (memory mode, no backend).
type Options struct {
	// Addr selects single mode ("host:port"). Ignored when ClusterAddrs is
	// set. Empty with no ClusterAddrs means memory mode from the start -
	// a deployment choice, not an error.
	Addr string

	// ClusterAddrs selects cluster mode and wins over Addr.
	ClusterAddrs []string

	// DisableFallback surfaces backend errors to callers instead of serving
	// a degraded answer from the in-process store. Default false: with
	// fallback enabled no operation ever fails on backend unavailability.
	DisableFallback bool

	// MaxRetries bounds connection attempts beyond the first; 0 => 3.
	MaxRetries int

	// RetryDelay is the base backoff between connection attempts; the n-th
	// retry waits min(n*RetryDelay, 5s). 0 => 200ms.
	RetryDelay time.Duration

	// ConnectTimeout bounds each connection attempt; 0 => 5s.
	ConnectTimeout time.Duration

	// CommandTimeout bounds each backend command; 0 => 5s.
	CommandTimeout time.Duration

	// FallbackCapacity is the max entry count of the in-process store;
	// 0 => 10000.
	FallbackCapacity int

	// FallbackTTL caps how long fallback entries live; 0 => 60s. Kept short
	// on purpose: the store bridges outages, it is not a durable cache.
	FallbackTTL time.Duration

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks
}

// New builds a client and establishes the configured backend connection.
// With fallback enabled (the default) New never fails on an unreachable
// backend - the client comes up in memory mode instead. With fallback
// disabled an unreachable backend is returned as a *ConnectError.
func New(ctx context.Context, opts Options) (*Client, error) {
	return newClient(ctx, opts)
}
