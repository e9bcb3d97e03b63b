// Package codec provides pluggable (de)serialization for the typed view
// over the string-valued cache surface.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
