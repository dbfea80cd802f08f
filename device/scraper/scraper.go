// Package scraper turns observer messages into wardrive facts.
//
// A Processor takes each inbound message through the pipeline:
//   - Deduplication: messages whose hash was recently recorded are dropped
//   - Frame decoding, with the observer's short ID appended as the final hop
//   - Path records: emitted for every non-duplicate message
//   - Watched observers only: repeater adverts (type 4) and channel
//     coordinate messages (type 5) are decoded, validated and delivered
//   - Recording the hash once the message has been fully handled
//
// Messages are processed one at a time. Malformed input and delivery
// failures are logged and never stop the processor.
package scraper

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/kabili207/meshcore-wardrive/core/codec"
	"github.com/kabili207/meshcore-wardrive/core/dedupe"
	"github.com/kabili207/meshcore-wardrive/core/geo"
	"github.com/kabili207/meshcore-wardrive/core/wardrive"
	"github.com/kabili207/meshcore-wardrive/transport"
)

var (
	ErrDecoderRequired  = errors.New("channel decoder is required")
	ErrUploaderRequired = errors.New("uploader is required")
)

// Uploader delivers facts to the coverage service.
type Uploader interface {
	PutRepeater(ctx context.Context, r wardrive.Repeater) error
	PutSample(ctx context.Context, s wardrive.Sample) error
	PutPath(ctx context.Context, p wardrive.PathRecord) error
}

// Config configures a Processor.
type Config struct {
	// Decoder decrypts messages on the watched channel.
	Decoder *wardrive.ChannelDecoder
	// Validator filters repeater and sample locations. A nil Validator
	// only applies the coordinate range check.
	Validator *geo.Validator
	// Uploader receives repeater, sample and path facts.
	Uploader Uploader
	// WatchedObservers lists the observer names whose reports are decoded.
	WatchedObservers []string
	// Window holds recently handled hashes. Defaults to dedupe.New().
	Window *dedupe.Window
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// Logger for pipeline events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Processor runs the wardrive pipeline for inbound observer messages.
type Processor struct {
	mu        sync.Mutex
	decoder   *wardrive.ChannelDecoder
	validator *geo.Validator
	uploader  Uploader
	watched   map[string]struct{}
	window    *dedupe.Window
	now       func() time.Time
	log       *slog.Logger
	counters  Counters
}

// New creates a Processor.
func New(cfg Config) (*Processor, error) {
	if cfg.Decoder == nil {
		return nil, ErrDecoderRequired
	}
	if cfg.Uploader == nil {
		return nil, ErrUploaderRequired
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	validator := cfg.Validator
	if validator == nil {
		validator = &geo.Validator{Logger: logger}
	}
	window := cfg.Window
	if window == nil {
		window = dedupe.New()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	watched := make(map[string]struct{}, len(cfg.WatchedObservers))
	for _, name := range cfg.WatchedObservers {
		watched[name] = struct{}{}
	}

	return &Processor{
		decoder:   cfg.Decoder,
		validator: validator,
		uploader:  cfg.Uploader,
		watched:   watched,
		window:    window,
		now:       now,
		log:       logger.WithGroup("scraper"),
	}, nil
}

// Counters returns the processor's statistics.
func (p *Processor) Counters() *Counters {
	return &p.counters
}

// IsWatched reports whether reports from the named observer are decoded.
func (p *Processor) IsWatched(observer string) bool {
	_, ok := p.watched[observer]
	return ok
}

// HandleMessage runs one message through the pipeline. It never panics and
// is safe to call from concurrent transport callbacks; messages are
// processed one at a time.
func (p *Processor) HandleMessage(ctx context.Context, msg *transport.Message, src transport.PacketSource) {
	p.mu.Lock()
	defer p.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			p.counters.Panics.Add(1)
			p.log.Error("panic handling message",
				"hash", msg.Hash, "source", src, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	p.counters.Received.Add(1)
	if err := p.process(ctx, msg); err != nil {
		p.counters.Malformed.Add(1)
		p.log.Info("error handling message",
			"hash", msg.Hash, "origin", msg.Origin, "source", src, "error", err)
		p.log.Debug("malformed message", "raw", msg.Raw, "packet_type", int(msg.PacketType))
	}
}

// process returns an error when the message is malformed. The hash of a
// malformed message is not recorded, so a copy from another observer is
// still handled.
func (p *Processor) process(ctx context.Context, msg *transport.Message) error {
	if msg.Hash == "" {
		return transport.ErrMissingHash
	}
	if p.window.Seen(msg.Hash) {
		p.counters.Duplicates.Add(1)
		return nil
	}

	pkt, err := codec.DecodeHexPacket(msg.Raw)
	if err != nil {
		return err
	}
	observerID, err := msg.ObserverHop()
	if err != nil {
		return err
	}
	// Observers do not add themselves to the path they report.
	hops := append(pkt.HopIDs(), observerID)

	p.log.Debug("packet",
		"hash", msg.Hash,
		"type", codec.PayloadTypeName(pkt.PayloadType()),
		"route", codec.RouteTypeName(pkt.RouteType()),
		"hops", len(hops))

	packetType := int(msg.PacketType)
	ts := msg.Timestamp.UnixMilli(p.now())
	rec := wardrive.NewPathRecord(msg.Hash, packetType, int(pkt.RouteType()),
		observerID, msg.Origin, hops, ts)
	p.deliverPath(ctx, rec)

	if !p.IsWatched(msg.Origin) {
		p.counters.Unwatched.Add(1)
		return nil
	}

	switch packetType {
	case codec.PayloadTypeAdvert:
		err = p.handleAdvert(ctx, pkt)
	case codec.PayloadTypeGrpTxt:
		err = p.handleChannelMessage(ctx, pkt, hops, msg.Hash)
	}
	if err != nil {
		return err
	}

	p.window.Record(msg.Hash)
	return nil
}

func (p *Processor) deliverPath(ctx context.Context, rec wardrive.PathRecord) {
	if len(rec.Path) == 0 {
		return
	}
	if err := p.uploader.PutPath(ctx, rec); err != nil {
		p.counters.DeliveryErrors.Add(1)
		p.log.Warn("path delivery failed", "hash", rec.PacketHash, "error", err)
		return
	}
	p.counters.PathsSent.Add(1)
}

func (p *Processor) handleAdvert(ctx context.Context, pkt *codec.Packet) error {
	rep, err := wardrive.DecodeRepeater(pkt)
	if err != nil || rep == nil {
		return err
	}
	if !p.validator.Valid(rep.Lat, rep.Lon) {
		p.counters.Rejected.Add(1)
		return nil
	}
	if err := p.uploader.PutRepeater(ctx, *rep); err != nil {
		p.counters.DeliveryErrors.Add(1)
		p.log.Warn("repeater delivery failed", "id", rep.ID, "error", err)
		return nil
	}
	p.counters.RepeatersSent.Add(1)
	p.log.Info("repeater", "id", rep.ID, "name", rep.Name, "lat", rep.Lat, "lon", rep.Lon)
	return nil
}

func (p *Processor) handleChannelMessage(ctx context.Context, pkt *codec.Packet, hops []string, hash string) error {
	sample, err := p.decoder.DecodeSample(pkt, hops)
	switch {
	case errors.Is(err, wardrive.ErrCiphertextNotAligned), errors.Is(err, wardrive.ErrPlaintextTooShort):
		// Unusable content, but the frame itself was well formed.
		p.log.Debug("channel message skipped", "hash", hash, "reason", err)
		return nil
	case err != nil:
		return err
	case sample == nil:
		return nil
	}

	if !p.validator.Valid(sample.Lat, sample.Lon) {
		p.counters.Rejected.Add(1)
		return nil
	}
	if err := p.uploader.PutSample(ctx, *sample); err != nil {
		p.counters.DeliveryErrors.Add(1)
		p.log.Warn("sample delivery failed", "hash", hash, "error", err)
		return nil
	}
	p.counters.SamplesSent.Add(1)
	p.log.Info("sample", "lat", sample.Lat, "lon", sample.Lon, "repeater", sample.Path[0])
	return nil
}
