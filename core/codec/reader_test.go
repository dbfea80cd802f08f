package codec

import (
	"errors"
	"testing"
)

func TestReader(t *testing.T) {
	r := NewReader([]byte{0x01, 0x34, 0x12, 0xFE, 0xFF, 0xFF, 0xFF, 0xAA, 0xBB})

	b, err := r.Uint8()
	if err != nil || b != 0x01 {
		t.Fatalf("Uint8() = %02x, %v", b, err)
	}
	u16, err := r.Uint16LE()
	if err != nil || u16 != 0x1234 {
		t.Fatalf("Uint16LE() = %04x, %v", u16, err)
	}
	i32, err := r.Int32LE()
	if err != nil || i32 != -2 {
		t.Fatalf("Int32LE() = %d, %v", i32, err)
	}
	if r.Offset() != 7 || r.Len() != 2 {
		t.Fatalf("Offset() = %d, Len() = %d", r.Offset(), r.Len())
	}
	if _, err := r.Bytes(3); !errors.Is(err, ErrShortRead) {
		t.Fatalf("Bytes(3) error = %v, want ErrShortRead", err)
	}
	// A failed read does not advance the cursor.
	if r.Len() != 2 {
		t.Fatalf("Len() after failed read = %d, want 2", r.Len())
	}
	rest := r.Rest()
	if len(rest) != 2 || rest[0] != 0xAA {
		t.Fatalf("Rest() = %x", rest)
	}
	if len(r.Rest()) != 0 {
		t.Fatal("Rest() after exhaustion should be empty")
	}
	if err := r.Skip(1); !errors.Is(err, ErrShortRead) {
		t.Fatalf("Skip(1) error = %v, want ErrShortRead", err)
	}
}

func TestReaderNegativeLength(t *testing.T) {
	r := NewReader([]byte{0x01})
	if _, err := r.Bytes(-1); !errors.Is(err, ErrShortRead) {
		t.Fatalf("Bytes(-1) error = %v, want ErrShortRead", err)
	}
}
