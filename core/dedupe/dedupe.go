// Package dedupe provides message deduplication for observed MeshCore packets.
//
// Window remembers the most recent message hashes in insertion order, so that
// the same physical packet reported by several observers is processed once.
// CalculatePacketHash derives the firmware's packet hash for packets that
// arrive without one, such as those read from a locally attached radio.
package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/kabili207/meshcore-wardrive/core/codec"
)

const (
	// DefaultCapacity is the default number of hashes remembered by a Window.
	DefaultCapacity = 100
	// PacketHashSize is the truncated SHA256 hash size for packet deduplication.
	PacketHashSize = 8
)

// Window is a bounded FIFO set of recently processed message hashes.
// It is safe for concurrent use.
type Window struct {
	mu      sync.Mutex
	ring    []string // circular buffer, oldest entry at next once full
	members map[string]struct{}
	next    int
	full    bool
}

// New creates a Window with DefaultCapacity.
func New() *Window {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity creates a Window remembering up to capacity hashes.
// A capacity below 1 is treated as 1.
func NewWithCapacity(capacity int) *Window {
	capacity = max(capacity, 1)
	return &Window{
		ring:    make([]string, capacity),
		members: make(map[string]struct{}, capacity),
	}
}

// Seen reports whether hash is among the most recently recorded hashes.
func (w *Window) Seen(hash string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.members[hash]
	return ok
}

// Record appends hash, evicting the oldest entry if the window is full.
// Recording a hash that is already present does nothing.
func (w *Window) Record(hash string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.members[hash]; ok {
		return
	}
	if w.full {
		delete(w.members, w.ring[w.next])
	}
	w.ring[w.next] = hash
	w.members[hash] = struct{}{}
	w.next = (w.next + 1) % len(w.ring)
	if w.next == 0 {
		w.full = true
	}
}

// Len returns the number of hashes currently remembered.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.members)
}

// Capacity returns the maximum number of hashes remembered.
func (w *Window) Capacity() int {
	return len(w.ring)
}

// CalculatePacketHash computes the 8-byte deduplication hash for a packet.
// The hash is SHA256(payloadType, [pathLen for TRACE], payload) truncated to 8 bytes.
func CalculatePacketHash(packet *codec.Packet) [PacketHashSize]byte {
	h := sha256.New()
	t := packet.PayloadType()
	h.Write([]byte{t})
	if t == codec.PayloadTypeTrace {
		h.Write([]byte{packet.PathLen})
	}
	h.Write(packet.Payload)
	sum := h.Sum(nil)
	var result [PacketHashSize]byte
	copy(result[:], sum[:PacketHashSize])
	return result
}

// PacketHashString renders CalculatePacketHash as uppercase hex, the form
// observers publish in the "hash" field.
func PacketHashString(packet *codec.Packet) string {
	h := CalculatePacketHash(packet)
	return strings.ToUpper(hex.EncodeToString(h[:]))
}
