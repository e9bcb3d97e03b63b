// Package asynchook decorates a rescache.Hooks implementation with a
// bounded queue and worker goroutines, so slow observers never sit on the
// client's hot path. Events beyond the queue capacity are dropped.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{BackendErrorEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000)
//	defer hooks.Close()
//
//	client, _ := rescache.New(ctx, rescache.Options{Hooks: hooks})
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/rescache"
)

type Hooks struct {
	inner rescache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ rescache.Hooks = (*Hooks)(nil)

func New(inner rescache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Safe to call more than
// once.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) ModeChange(from, to rescache.Mode, reason string) {
	h.try(func() { h.inner.ModeChange(from, to, reason) })
}

func (h *Hooks) BackendError(op string, err error) {
	h.try(func() { h.inner.BackendError(op, err) })
}

func (h *Hooks) FallbackServed(op string) { h.try(func() { h.inner.FallbackServed(op) }) }

func (h *Hooks) ReconnectResult(ok bool) { h.try(func() { h.inner.ReconnectResult(ok) }) }
