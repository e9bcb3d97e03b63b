// Package sloghooks logs rescache hook events through log/slog, with
// per-event sampling so a flapping backend cannot flood the logs.
package sloghooks

import (
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/rescache"
)

type Options struct {
	// Sampling rates: log every n-th event; 0/1 = log all. Mode changes and
	// reconnect results are rare and always logged.
	BackendErrorEvery   uint64
	FallbackServedEvery uint64
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	backendErrCtr atomic.Uint64
	fallbackCtr   atomic.Uint64
}

var _ rescache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) ModeChange(from, to rescache.Mode, reason string) {
	if h.l == nil {
		return
	}
	h.l.Warn("rescache.mode_change",
		"from", from.String(),
		"to", to.String(),
		"reason", reason)
}

func (h *Hooks) BackendError(op string, err error) {
	if h.l == nil || !sample(h.opts.BackendErrorEvery, &h.backendErrCtr) {
		return
	}
	h.l.Warn("rescache.backend_error",
		"op", op,
		"err", err)
}

func (h *Hooks) FallbackServed(op string) {
	if h.l == nil || !sample(h.opts.FallbackServedEvery, &h.fallbackCtr) {
		return
	}
	h.l.Debug("rescache.fallback_served", "op", op)
}

func (h *Hooks) ReconnectResult(ok bool) {
	if h.l == nil {
		return
	}
	h.l.Info("rescache.reconnect", "connected", ok)
}
