package asynchook

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/unkn0wn-root/rescache"
)

type capture struct {
	mu     sync.Mutex
	events []string
}

func (c *capture) add(e string) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *capture) ModeChange(from, to rescache.Mode, _ string) {
	c.add("mode:" + from.String() + "->" + to.String())
}
func (c *capture) BackendError(op string, _ error) { c.add("err:" + op) }
func (c *capture) FallbackServed(op string)        { c.add("fb:" + op) }
func (c *capture) ReconnectResult(bool)            { c.add("reconnect") }

func TestEventsDeliveredInOrder(t *testing.T) {
	inner := &capture{}
	h := New(inner, 1, 16)

	h.BackendError("get", errors.New("boom"))
	h.FallbackServed("get")
	h.ModeChange(rescache.ModeSingle, rescache.ModeMemory, "test")
	h.ReconnectResult(true)
	h.Close() // waits for the worker to drain

	want := []string{"err:get", "fb:get", "mode:single->memory", "reconnect"}
	inner.mu.Lock()
	defer inner.mu.Unlock()
	if len(inner.events) != len(want) {
		t.Fatalf("events = %v, want %v", inner.events, want)
	}
	for i := range want {
		if inner.events[i] != want[i] {
			t.Fatalf("events[%d] = %q, want %q", i, inner.events[i], want[i])
		}
	}
}

func TestOverflowDropsInsteadOfBlocking(t *testing.T) {
	block := make(chan struct{})
	inner := &blocking{release: block}
	h := New(inner, 1, 1)

	// first event occupies the worker, second fills the queue, the rest
	// must drop without blocking this goroutine
	for i := 0; i < 10; i++ {
		h.FallbackServed("get")
	}
	close(block)
	h.Close()
	h.Close() // idempotent

	if got := inner.count.Load(); got < 1 || got > 2 {
		t.Fatalf("delivered %d events, want 1-2 (rest dropped)", got)
	}
}

type blocking struct {
	release chan struct{}
	count   atomic.Int32
}

func (b *blocking) FallbackServed(string) {
	<-b.release
	b.count.Add(1)
}
func (b *blocking) ModeChange(rescache.Mode, rescache.Mode, string) {}
func (b *blocking) BackendError(string, error)                      {}
func (b *blocking) ReconnectResult(bool)                            {}

