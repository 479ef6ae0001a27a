package codec

import "fmt"

// Limit wraps Inner and refuses to decode payloads larger than MaxDecode bytes
// (<= 0 disables the check). Encode is forwarded unchanged.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

// ErrTooLarge is wrapped by Limit.Decode for oversized payloads.
type ErrTooLarge struct {
	Size, Max int
}

func (e *ErrTooLarge) Error() string {
	return fmt.Sprintf("codec: payload too large: %d > %d", e.Size, e.Max)
}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }

func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, &ErrTooLarge{Size: len(b), Max: c.MaxDecode}
	}
	return c.Inner.Decode(b)
}
