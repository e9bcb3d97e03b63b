// Package memstore implements a capacity-bounded, TTL-aware key-value store
// held entirely in process memory. It backs the memory mode of the rescache
// client and is usable on its own wherever a small self-cleaning cache is
// enough.
//
// Entries are evicted in insertion order (FIFO, not LRU): when the store is
// full and a new key arrives, the oldest-inserted key goes first, no matter
// how recently it was read. Expiry is lazy: an expired entry is a miss and is
// deleted by the read that finds it. A periodic sweep can be enabled on top,
// but correctness never depends on it.
//
// The store exists to bridge short backend outages, so TTLs are clamped to a
// short ceiling (DefaultTTL, 60s unless configured) rather than honored
// verbatim. Entries must not outlive the bridge window.
package memstore

import (
	"strconv"
	"sync"
	"time"

	"github.com/unkn0wn-root/rescache/internal/match"
)

const (
	defaultCapacity = 10_000
	defaultTTL      = 60 * time.Second
)

// TTL sentinel values, mirroring the Redis TTL command.
const (
	TTLMissing    int64 = -2 // key absent or expired
	TTLPersistent int64 = -1 // key present without expiry
)

type entry struct {
	value     string
	expiresAt time.Time // zero => no expiry
}

// Config tunes a Store. The zero value is ready to use.
type Config struct {
	Capacity      int           // max entries; 0 => 10000
	DefaultTTL    time.Duration // applied when Set gets no TTL, and the clamp ceiling; 0 => 60s
	SweepInterval time.Duration // optional background expiry sweep; 0 => disabled
}

// Store is a bounded FIFO cache of string values. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	order   []string // insertion order; front is oldest

	capacity int
	ttl      time.Duration
	now      func() time.Time

	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Store from cfg, filling in defaults for zero fields.
func New(cfg Config) *Store {
	s := &Store{
		entries:  make(map[string]entry),
		capacity: cfg.Capacity,
		ttl:      cfg.DefaultTTL,
		now:      time.Now,
	}
	if s.capacity <= 0 {
		s.capacity = defaultCapacity
	}
	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}
	if cfg.SweepInterval > 0 {
		s.ticker = time.NewTicker(cfg.SweepInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.sweep()
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

// Get returns the live value for key. Expired entries are deleted on the
// spot and reported as a miss.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok {
		return "", false
	}
	return e.value, true
}

// Set stores value under key. A non-positive ttl means "use the default";
// a ttl above the default is clamped down to it. If key is new and the store
// is full, the oldest-inserted entry is evicted first.
func (s *Store) Set(key, value string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, value, s.now().Add(s.clamp(ttl)))
}

// Del removes key. Removing an absent key is a no-op.
func (s *Store) Del(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(key)
}

// MGet looks up every key in order. The result has exactly one element per
// input key (duplicates included); misses and expired entries are nil.
func (s *Store) MGet(keys ...string) []*string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*string, len(keys))
	for i, k := range keys {
		if e, ok := s.live(k); ok {
			v := e.value
			out[i] = &v
		}
	}
	return out
}

// Keys returns all live keys matching pattern, where `*` matches any
// substring. Order is unspecified. An invalid pattern yields an error.
func (s *Store) Keys(pattern string) ([]string, error) {
	re, err := match.Glob(pattern)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var out []string
	for k, e := range s.entries {
		if !e.expiresAt.IsZero() && !e.expiresAt.After(now) {
			continue // lazy-expired; the next read on it will delete
		}
		if re.MatchString(k) {
			out = append(out, k)
		}
	}
	return out, nil
}

// TTL reports the remaining lifetime of key in whole seconds (rounded up):
// TTLMissing for an absent or expired key, TTLPersistent for a key without
// expiry.
func (s *Store) TTL(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok {
		return TTLMissing
	}
	if e.expiresAt.IsZero() {
		return TTLPersistent
	}
	rem := e.expiresAt.Sub(s.now())
	secs := int64((rem + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1 // still live, so at least one second remains when rounded up
	}
	return secs
}

// Incr parses the current value as an integer (absent or non-numeric counts
// as 0), adds one and stores the result back, keeping the remaining TTL of
// the existing entry. A fresh key gets the default TTL. Returns the new value.
func (s *Store) Incr(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	exp := s.now().Add(s.ttl)
	if e, ok := s.live(key); ok {
		n, _ = strconv.ParseInt(e.value, 10, 64)
		exp = e.expiresAt
	}
	n++
	s.put(key, strconv.FormatInt(n, 10), exp)
	return n
}

// Exists reports whether key is present and unexpired.
func (s *Store) Exists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live(key)
	return ok
}

// Expire re-arms the TTL of an existing entry to ttl (clamped like Set) and
// reports whether the entry was there. The value is kept; the previous
// remaining lifetime is discarded.
func (s *Store) Expire(key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok {
		return false
	}
	e.expiresAt = s.now().Add(s.clamp(ttl))
	s.entries[key] = e
	return true
}

// Len returns the number of entries currently held, expired stragglers
// included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear drops every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]entry)
	s.order = s.order[:0]
}

// Close stops the background sweeper, if one was configured. The store
// itself stays usable.
func (s *Store) Close() {
	if s.stopCh != nil {
		close(s.stopCh)
		s.ticker.Stop()
		s.wg.Wait()
		s.stopCh = nil
	}
}

// live returns the entry for key if present and unexpired, deleting it when
// the read finds it expired. Callers must hold mu.
func (s *Store) live(key string) (entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !e.expiresAt.After(s.now()) {
		s.remove(key)
		return entry{}, false
	}
	return e, true
}

// put inserts or replaces key, evicting the oldest entry when a new key
// would push the store over capacity. Callers must hold mu.
func (s *Store) put(key, value string, expiresAt time.Time) {
	if _, exists := s.entries[key]; !exists {
		if len(s.entries) >= s.capacity {
			s.evictOldest()
		}
		s.order = append(s.order, key)
	}
	s.entries[key] = entry{value: value, expiresAt: expiresAt}
}

func (s *Store) evictOldest() {
	if len(s.order) == 0 {
		return
	}
	oldest := s.order[0]
	s.order = s.order[1:]
	delete(s.entries, oldest)
}

// remove deletes key from the map and its slot in the insertion queue.
// Callers must hold mu.
func (s *Store) remove(key string) {
	if _, ok := s.entries[key]; !ok {
		return
	}
	delete(s.entries, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Store) clamp(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > s.ttl {
		return s.ttl
	}
	return ttl
}

func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, e := range s.entries {
		if !e.expiresAt.IsZero() && !e.expiresAt.After(now) {
			s.remove(k)
		}
	}
}
