package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Serial bridge framing, as spoken by a MeshCore node's serial bridge:
//
//	[magic 0xC03E BE][length BE][payload][fletcher-16 BE]
const (
	FrameMagic        uint16 = 0xC03E
	MaxFramePayload          = 256 // MAX_TRANS_UNIT + 1
	FrameHeaderSize          = 4
	FrameChecksumSize        = 2
	MinFrameSize             = FrameHeaderSize + FrameChecksumSize
)

var (
	ErrFrameTooShort    = errors.New("frame too short")
	ErrInvalidMagic     = errors.New("invalid frame magic")
	ErrPayloadTooLarge  = errors.New("payload exceeds maximum size")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrIncompleteFrame  = errors.New("incomplete frame")
)

var frameMagic = []byte{byte(FrameMagic >> 8), byte(FrameMagic & 0xFF)}

// Fletcher16 computes the bridge's Fletcher-16 checksum.
func Fletcher16(data []byte) uint16 {
	var sum1, sum2 uint16
	for _, b := range data {
		sum1 = (sum1 + uint16(b)) % 255
		sum2 = (sum2 + sum1) % 255
	}
	return sum2<<8 | sum1
}

// EncodeFrame wraps payload in a bridge frame.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxFramePayload {
		return nil, ErrPayloadTooLarge
	}
	frame := make([]byte, 0, MinFrameSize+len(payload))
	frame = binary.BigEndian.AppendUint16(frame, FrameMagic)
	frame = binary.BigEndian.AppendUint16(frame, uint16(len(payload)))
	frame = append(frame, payload...)
	frame = binary.BigEndian.AppendUint16(frame, Fletcher16(payload))
	return frame, nil
}

// DecodeFrame decodes the frame at the start of data, returning a copy of
// its payload and the bytes that follow it.
func DecodeFrame(data []byte) (payload, rest []byte, err error) {
	if len(data) < MinFrameSize {
		return nil, data, ErrFrameTooShort
	}
	if !bytes.HasPrefix(data, frameMagic) {
		return nil, data, ErrInvalidMagic
	}

	n := int(binary.BigEndian.Uint16(data[2:4]))
	if n > MaxFramePayload {
		return nil, data, ErrPayloadTooLarge
	}
	end := FrameHeaderSize + n + FrameChecksumSize
	if len(data) < end {
		return nil, data, ErrIncompleteFrame
	}

	body := data[FrameHeaderSize : FrameHeaderSize+n]
	want := binary.BigEndian.Uint16(data[end-FrameChecksumSize : end])
	if got := Fletcher16(body); got != want {
		return nil, data, fmt.Errorf("%w: computed %04x, frame has %04x", ErrChecksumMismatch, got, want)
	}

	return bytes.Clone(body), data[end:], nil
}

// FrameSplitter reassembles bridge frames from a byte stream that may split
// or corrupt them. The zero value is ready to use; it is not safe for
// concurrent use.
type FrameSplitter struct {
	buf     []byte
	dropped int
}

// Write appends stream bytes and returns the payloads of every frame that
// is now complete. Corrupt data is skipped up to the next frame magic.
func (s *FrameSplitter) Write(p []byte) [][]byte {
	s.buf = append(s.buf, p...)

	var out [][]byte
	for len(s.buf) >= MinFrameSize {
		payload, rest, err := DecodeFrame(s.buf)
		if errors.Is(err, ErrIncompleteFrame) {
			break
		}
		if err != nil {
			s.resync()
			continue
		}
		out = append(out, payload)
		s.buf = rest
	}

	if len(s.buf) == 0 {
		s.buf = nil
	}
	return out
}

// resync drops the first byte and anything before the next magic.
func (s *FrameSplitter) resync() {
	idx := bytes.Index(s.buf[1:], frameMagic)
	if idx < 0 {
		// Keep a trailing magic first byte, it may start the next frame.
		keep := 0
		if s.buf[len(s.buf)-1] == frameMagic[0] {
			keep = 1
		}
		s.dropped += len(s.buf) - keep
		s.buf = append(s.buf[:0], s.buf[len(s.buf)-keep:]...)
		return
	}
	s.dropped += 1 + idx
	s.buf = s.buf[1+idx:]
}

// Buffered returns the number of bytes held waiting for more input.
func (s *FrameSplitter) Buffered() int {
	return len(s.buf)
}

// Dropped returns the number of bytes discarded while resynchronising.
func (s *FrameSplitter) Dropped() int {
	return s.dropped
}
