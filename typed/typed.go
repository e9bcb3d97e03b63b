// Package typed layers a typed API over the string-valued cache client.
// Values are serialized through a pluggable codec.Codec; a payload that no
// longer decodes is treated as corrupt, deleted (self-heal) and reported as
// a miss rather than an error.
package typed

import (
	"context"
	"time"

	"github.com/unkn0wn-root/rescache/codec"
)

// Cache is the subset of the client the view needs; *rescache.Client
// satisfies it.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	MGet(ctx context.Context, keys ...string) ([]*string, error)
}

// View reads and writes values of type V under a key prefix. The zero value
// is not usable; construct with New.
type View[V any] struct {
	c      Cache
	codec  codec.Codec[V]
	prefix string
	ttl    time.Duration
}

// Options tune a View. Codec is required.
type Options[V any] struct {
	Codec codec.Codec[V]

	// Prefix namespaces this view's keys ("user" stores under "user:<key>").
	// Empty means no namespacing.
	Prefix string

	// DefaultTTL applies when Set gets ttl 0.
	DefaultTTL time.Duration
}

// New builds a typed view over c.
func New[V any](c Cache, opts Options[V]) View[V] {
	return View[V]{c: c, codec: opts.Codec, prefix: opts.Prefix, ttl: opts.DefaultTTL}
}

func (v View[V]) key(k string) string {
	if v.prefix == "" {
		return k
	}
	return v.prefix + ":" + k
}

// Get returns the decoded value for key. A hit that fails to decode is
// deleted and reported as a miss.
func (v View[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	raw, ok, err := v.c.Get(ctx, v.key(key))
	if err != nil || !ok {
		return zero, false, err
	}
	val, derr := v.codec.Decode([]byte(raw))
	if derr != nil {
		_ = v.c.Del(ctx, v.key(key)) // self-heal corrupt entry
		return zero, false, nil
	}
	return val, true, nil
}

// Set encodes value and stores it under key. ttl 0 applies the view's
// default.
func (v View[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	b, err := v.codec.Encode(value)
	if err != nil {
		return err
	}
	if ttl == 0 {
		ttl = v.ttl
	}
	return v.c.Set(ctx, v.key(key), string(b), ttl)
}

// Del removes key.
func (v View[V]) Del(ctx context.Context, key string) error {
	return v.c.Del(ctx, v.key(key))
}

// GetMany resolves keys in one round trip. It returns the decoded values by
// original key plus the keys that were missing or corrupt (corrupt entries
// are deleted, like Get).
func (v View[V]) GetMany(ctx context.Context, keys []string) (map[string]V, []string, error) {
	out := make(map[string]V, len(keys))
	if len(keys) == 0 {
		return out, nil, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = v.key(k)
	}
	raws, err := v.c.MGet(ctx, full...)
	if err != nil {
		return out, keys, err
	}
	var missing []string
	for i, raw := range raws {
		if raw == nil {
			missing = append(missing, keys[i])
			continue
		}
		val, derr := v.codec.Decode([]byte(*raw))
		if derr != nil {
			_ = v.c.Del(ctx, full[i])
			missing = append(missing, keys[i])
			continue
		}
		out[keys[i]] = val
	}
	return out, missing, nil
}
