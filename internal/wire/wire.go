package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const version byte = 1

var (
	ErrCorrupt = errors.New("querycache: corrupt record")
	magic4     = [...]byte{'Q', 'C', 'R', 'C'}
)

// Record is an offloaded result: the generation it was written under, when
// the producer returned it, the display key it belongs to and the encoded value.
type Record struct {
	Gen       uint64
	UpdatedAt time.Time
	Key       string
	Payload   []byte
}

const header = 4 + 1 + 8 + 8 + 2

// Encode frames r as
//
//	magic(4) | ver(1) | gen(u64 be) | updatedAt(i64 be, unix nanos) | klen(u16 be) | key | vlen(u32 be) | payload
func Encode(r Record) ([]byte, error) {
	if len(r.Key) > 0xFFFF {
		return nil, errors.New("querycache: record key too long")
	}
	var buf bytes.Buffer
	buf.Grow(header + len(r.Key) + 4 + len(r.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], r.Gen)
	buf.Write(u8[:])
	binary.BigEndian.PutUint64(u8[:], uint64(r.UpdatedAt.UnixNano()))
	buf.Write(u8[:])

	binary.BigEndian.PutUint16(u2[:], uint16(len(r.Key)))
	buf.Write(u2[:])
	buf.WriteString(r.Key)

	binary.BigEndian.PutUint32(u4[:], uint32(len(r.Payload)))
	buf.Write(u4[:])
	buf.Write(r.Payload)
	return buf.Bytes(), nil
}

// Decode parses a record produced by Encode. Trailing bytes are rejected.
// Payload aliases b.
func Decode(b []byte) (Record, error) {
	if len(b) < header || !bytes.Equal(b[:4], magic4[:]) || b[4] != version {
		return Record{}, ErrCorrupt
	}
	off := 5

	var r Record
	r.Gen = binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	r.UpdatedAt = time.Unix(0, int64(binary.BigEndian.Uint64(b[off:off+8])))
	off += 8

	klen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if klen > len(b)-off {
		return Record{}, ErrCorrupt
	}
	r.Key = string(b[off : off+klen])
	off += klen

	if off+4 > len(b) {
		return Record{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen != len(b)-off {
		return Record{}, ErrCorrupt
	}
	r.Payload = b[off : off+vlen]
	return r, nil
}
