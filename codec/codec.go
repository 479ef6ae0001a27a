// Package codec turns query results into bytes for the offload tier and back.
package codec

// Codec encodes/decodes values V to []byte. Decode must accept exactly what
// Encode produced; the offload tier treats any Decode error as a corrupt
// record and deletes it.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Func adapts a pair of functions to a Codec.
type Func[V any] struct {
	EncodeFunc func(V) ([]byte, error)
	DecodeFunc func([]byte) (V, error)
}

func (f Func[V]) Encode(v V) ([]byte, error) { return f.EncodeFunc(v) }
func (f Func[V]) Decode(b []byte) (V, error) { return f.DecodeFunc(b) }
