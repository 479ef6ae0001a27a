package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func mustEncode(t *testing.T, r Record) []byte {
	t.Helper()
	b, err := Encode(r)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	return b
}

func mustDecode(t *testing.T, b []byte) Record {
	t.Helper()
	r, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	return r
}

func TestRecordEmptyAndNonEmpty(t *testing.T) {
	at := time.Unix(1700000000, 123456789)
	cases := []Record{
		{Gen: 0, UpdatedAt: at, Key: "", Payload: nil},
		{Gen: 42, UpdatedAt: at, Key: "user:1", Payload: []byte("hello")},
		{Gen: math.MaxUint64, UpdatedAt: at, Key: "k", Payload: []byte{0, 1, 2, 3, 4}},
	}
	for _, tc := range cases {
		got := mustDecode(t, mustEncode(t, tc))
		if got.Gen != tc.Gen {
			t.Fatalf("gen mismatch: got %d want %d", got.Gen, tc.Gen)
		}
		if !got.UpdatedAt.Equal(tc.UpdatedAt) {
			t.Fatalf("updatedAt mismatch: got %v want %v", got.UpdatedAt, tc.UpdatedAt)
		}
		if got.Key != tc.Key {
			t.Fatalf("key mismatch: got %q want %q", got.Key, tc.Key)
		}
		if !bytes.Equal(got.Payload, tc.Payload) {
			t.Fatalf("payload mismatch: got %x want %x", got.Payload, tc.Payload)
		}
	}
}

func TestRecordRejectsTrailingBytes(t *testing.T) {
	enc := mustEncode(t, Record{Gen: 7, Key: "k", Payload: []byte("x")})
	enc = append(enc, 0xDE, 0xAD)
	if _, err := Decode(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestRecordCorruptHeadersAndLengths(t *testing.T) {
	enc := mustEncode(t, Record{Gen: 1, Key: "kk", Payload: []byte("abc")})

	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, err := Decode(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, err := Decode(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	// klen sits right after the fixed header fields
	badKey := append([]byte(nil), enc...)
	binary.BigEndian.PutUint16(badKey[header-2:header], 0xFFFF)
	if _, err := Decode(badKey); err == nil {
		t.Fatalf("expected error on klen beyond buffer")
	}

	vlenAt := header + len("kk")
	tooLong := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(tooLong[vlenAt:vlenAt+4], uint32(len("abc")+1))
	if _, err := Decode(tooLong); err == nil {
		t.Fatalf("expected error on vlen beyond buffer")
	}

	if _, err := Decode(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}
	if _, err := Decode(enc[:3]); err == nil {
		t.Fatalf("expected error on short buffer")
	}
}

func TestRecordZeroCopyPayload(t *testing.T) {
	enc := mustEncode(t, Record{Gen: 1, Key: "k", Payload: []byte("Z")})
	r := mustDecode(t, enc)
	r.Payload[0] = 'Q'
	if mustDecode(t, enc).Payload[0] != 'Q' {
		t.Fatalf("expected zero-copy slice into enc buffer")
	}
}

func TestEncodeRejectsLongKey(t *testing.T) {
	if _, err := Encode(Record{Key: string(make([]byte, 0x10000))}); err == nil {
		t.Fatalf("expected error on oversized key")
	}
}
