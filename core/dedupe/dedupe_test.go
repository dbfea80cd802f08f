package dedupe

import (
	"fmt"
	"sync"
	"testing"

	"github.com/kabili207/meshcore-wardrive/core/codec"
)

func makePacket(payloadType uint8, payload []byte) *codec.Packet {
	return &codec.Packet{
		Header:  (payloadType << codec.PHTypeShift) | codec.RouteTypeFlood,
		Payload: payload,
	}
}

func TestWindow_NewHash(t *testing.T) {
	w := New()
	if w.Seen("ABCD") {
		t.Error("new hash should not be marked as seen")
	}
}

func TestWindow_RecordedHash(t *testing.T) {
	w := New()
	w.Record("ABCD")
	if !w.Seen("ABCD") {
		t.Error("recorded hash should be marked as seen")
	}
	if w.Seen("EF01") {
		t.Error("different hash should not be marked as seen")
	}
}

func TestWindow_EvictsOldestPastCapacity(t *testing.T) {
	w := New()
	for i := range DefaultCapacity {
		w.Record(fmt.Sprintf("hash-%d", i))
	}
	for i := range DefaultCapacity {
		if !w.Seen(fmt.Sprintf("hash-%d", i)) {
			t.Fatalf("hash-%d should be seen while window holds %d entries", i, DefaultCapacity)
		}
	}

	w.Record("hash-100")

	if w.Seen("hash-0") {
		t.Error("oldest hash should be evicted by the 101st record")
	}
	for i := 1; i <= DefaultCapacity; i++ {
		if !w.Seen(fmt.Sprintf("hash-%d", i)) {
			t.Errorf("hash-%d should still be seen", i)
		}
	}
	if w.Len() != DefaultCapacity {
		t.Errorf("Len() = %d, want %d", w.Len(), DefaultCapacity)
	}
}

func TestWindow_SlidesRepeatedly(t *testing.T) {
	w := NewWithCapacity(3)
	for i := range 10 {
		w.Record(fmt.Sprintf("h%d", i))
	}
	for i := range 10 {
		want := i >= 7
		if got := w.Seen(fmt.Sprintf("h%d", i)); got != want {
			t.Errorf("Seen(h%d) = %v, want %v", i, got, want)
		}
	}
}

func TestWindow_DuplicateRecordIsNoop(t *testing.T) {
	w := NewWithCapacity(2)
	w.Record("a")
	w.Record("a")
	w.Record("b")
	if !w.Seen("a") || !w.Seen("b") {
		t.Error("both hashes should be present; duplicate must not take a slot")
	}
	if w.Len() != 2 {
		t.Errorf("Len() = %d, want 2", w.Len())
	}
}

func TestWindow_MinimumCapacity(t *testing.T) {
	w := NewWithCapacity(0)
	if w.Capacity() != 1 {
		t.Fatalf("Capacity() = %d, want 1", w.Capacity())
	}
	w.Record("a")
	w.Record("b")
	if w.Seen("a") || !w.Seen("b") {
		t.Error("capacity-1 window should hold only the latest hash")
	}
}

func TestWindow_Concurrent(t *testing.T) {
	w := NewWithCapacity(50)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				h := fmt.Sprintf("%d-%d", g, i)
				w.Record(h)
				w.Seen(h)
			}
		}()
	}
	wg.Wait()
	if w.Len() != 50 {
		t.Errorf("Len() = %d, want 50", w.Len())
	}
}

func TestCalculatePacketHash_DifferentType(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	h1 := CalculatePacketHash(makePacket(codec.PayloadTypeTxtMsg, payload))
	h2 := CalculatePacketHash(makePacket(codec.PayloadTypeGrpTxt, payload))
	if h1 == h2 {
		t.Error("same payload but different type should hash differently")
	}
}

func TestCalculatePacketHash_IgnoresPath(t *testing.T) {
	p1 := makePacket(codec.PayloadTypeAdvert, []byte{0x01})
	p2 := makePacket(codec.PayloadTypeAdvert, []byte{0x01})
	p2.PathLen = 2
	p2.Path = []byte{0xAA, 0xBB}
	if CalculatePacketHash(p1) != CalculatePacketHash(p2) {
		t.Error("relayed copies of the same packet should hash identically")
	}
}

func TestCalculatePacketHash_TraceIncludesPathLen(t *testing.T) {
	pkt1 := &codec.Packet{
		Header:  (codec.PayloadTypeTrace << codec.PHTypeShift) | codec.RouteTypeFlood,
		PathLen: 3,
		Payload: []byte{0x01, 0x02, 0x03},
	}
	pkt2 := &codec.Packet{
		Header:  (codec.PayloadTypeTrace << codec.PHTypeShift) | codec.RouteTypeFlood,
		PathLen: 5,
		Payload: []byte{0x01, 0x02, 0x03},
	}
	if CalculatePacketHash(pkt1) == CalculatePacketHash(pkt2) {
		t.Error("TRACE packets with different path_len should have different hashes")
	}
}

func TestPacketHashString(t *testing.T) {
	s := PacketHashString(makePacket(codec.PayloadTypeAdvert, []byte{0x01}))
	if len(s) != 2*PacketHashSize {
		t.Fatalf("PacketHashString() length = %d, want %d", len(s), 2*PacketHashSize)
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			t.Fatalf("PacketHashString() = %q, want uppercase hex", s)
		}
	}
}
