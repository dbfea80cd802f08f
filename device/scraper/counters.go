package scraper

import "sync/atomic"

// Counters tracks pipeline statistics using atomic counters.
// All fields are safe for concurrent access.
type Counters struct {
	Received       atomic.Uint64 // Messages handed to the processor
	Duplicates     atomic.Uint64 // Messages dropped by the dedup window
	Malformed      atomic.Uint64 // Messages abandoned on a decode error
	Unwatched      atomic.Uint64 // Messages from observers outside the watched set
	Rejected       atomic.Uint64 // Locations filtered by the validator
	PathsSent      atomic.Uint64 // Path records delivered
	RepeatersSent  atomic.Uint64 // Repeater facts delivered
	SamplesSent    atomic.Uint64 // Sample facts delivered
	DeliveryErrors atomic.Uint64 // Failed deliveries of any kind
	Panics         atomic.Uint64 // Messages that panicked and were recovered
}

// CountersSnapshot is a plain-value copy of Counters for reading.
type CountersSnapshot struct {
	Received       uint64
	Duplicates     uint64
	Malformed      uint64
	Unwatched      uint64
	Rejected       uint64
	PathsSent      uint64
	RepeatersSent  uint64
	SamplesSent    uint64
	DeliveryErrors uint64
	Panics         uint64
}

// Snapshot returns a point-in-time copy of all counters.
func (c *Counters) Snapshot() CountersSnapshot {
	return CountersSnapshot{
		Received:       c.Received.Load(),
		Duplicates:     c.Duplicates.Load(),
		Malformed:      c.Malformed.Load(),
		Unwatched:      c.Unwatched.Load(),
		Rejected:       c.Rejected.Load(),
		PathsSent:      c.PathsSent.Load(),
		RepeatersSent:  c.RepeatersSent.Load(),
		SamplesSent:    c.SamplesSent.Load(),
		DeliveryErrors: c.DeliveryErrors.Load(),
		Panics:         c.Panics.Load(),
	}
}
