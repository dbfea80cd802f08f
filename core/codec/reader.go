package codec

import (
	"encoding/binary"
	"fmt"
)

// Reader is a bounds-checked cursor over a byte slice. Every read either
// returns the requested bytes or an error wrapping ErrShortRead; it never
// reads past the end of the buffer.
type Reader struct {
	data []byte
	off  int
}

// NewReader returns a Reader positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.data) - r.off
}

// Offset returns the current read position.
func (r *Reader) Offset() int {
	return r.off
}

// Bytes reads the next n bytes. The returned slice aliases the underlying buffer.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrShortRead, n, r.off, r.Len())
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Skip advances past n bytes.
func (r *Reader) Skip(n int) error {
	_, err := r.Bytes(n)
	return err
}

// Uint8 reads one byte.
func (r *Reader) Uint8() (uint8, error) {
	b, err := r.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16LE reads a little-endian uint16.
func (r *Reader) Uint16LE() (uint16, error) {
	b, err := r.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Uint32LE reads a little-endian uint32.
func (r *Reader) Uint32LE() (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Int32LE reads a little-endian two's complement int32.
func (r *Reader) Int32LE() (int32, error) {
	v, err := r.Uint32LE()
	return int32(v), err
}

// Rest consumes and returns all remaining bytes (possibly empty).
func (r *Reader) Rest() []byte {
	b := r.data[r.off:]
	r.off = len(r.data)
	return b
}
