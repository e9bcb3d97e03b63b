package codec

import "fmt"

// Limit wraps another codec and rejects Decode payloads above MaxDecode
// bytes before the inner codec ever sees them. Encode passes through.
// MaxDecode <= 0 disables the check.
//
// Typical use: guard against oversized entries coming back from a shared
// backend that other writers can reach.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }

func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("payload too large: %d > %d", len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
