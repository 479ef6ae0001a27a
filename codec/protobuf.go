package codec

import (
	"errors"

	"google.golang.org/protobuf/proto"
)

// Protobuf encodes query results that are generated proto messages.
// ctor returns a fresh message to decode into, e.g.
//
//	codec.NewProtobuf(func() *pb.User { return new(pb.User) })
type Protobuf[T proto.Message] struct {
	ctor func() T
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{ctor: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	if c.ctor == nil {
		var zero T
		return zero, errors.New("codec: protobuf constructor is nil")
	}
	m := c.ctor()
	err := proto.Unmarshal(b, m)
	return m, err
}
