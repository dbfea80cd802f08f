// Package serial provides a serial transport that turns packets heard by a
// locally attached MeshCore radio into observer messages.
//
// MeshCore devices communicate over serial using a magic-prefixed framing with
// Fletcher-16 checksums. This transport handles the frame assembly from raw serial data and
// reports each packet the same way a remote observer would over MQTT, with the
// local radio as the origin.
package serial

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/kabili207/meshcore-wardrive/core/codec"
	"github.com/kabili207/meshcore-wardrive/core/dedupe"
	"github.com/kabili207/meshcore-wardrive/transport"
)

// Compile-time interface check.
var _ transport.Transport = (*Transport)(nil)

const (
	// DefaultBaudRate is the default baud rate for MeshCore serial connections.
	DefaultBaudRate = 115200
	// DefaultObserverName is the origin reported for locally heard packets.
	DefaultObserverName = "local-radio"

	// readBufSize is the size of the serial read buffer.
	readBufSize = 1024
)

var (
	ErrPortRequired      = errors.New("serial port is required")
	ErrInvalidObserverID = errors.New("observer ID must be at least 2 hex characters")
)

// Config holds the configuration for a serial transport.
type Config struct {
	// Port is the serial port path (e.g., "/dev/ttyUSB0" or "COM3").
	Port string
	// BaudRate is the serial baud rate. Defaults to 115200.
	BaudRate int
	// ObserverID is the local radio's public key (or at least its first
	// byte) in hex. It becomes the origin_id of every reported packet.
	ObserverID string
	// ObserverName is the origin name reported for each packet.
	ObserverName string
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Transport implements transport.Transport over a serial connection.
type Transport struct {
	cfg            Config
	port           serial.Port
	log            *slog.Logger
	now            func() time.Time
	frames         codec.FrameSplitter
	mu             sync.RWMutex
	connected      bool
	cancel         context.CancelFunc
	done           chan struct{}
	messageHandler transport.MessageHandler
	stateHandler   transport.StateHandler
}

// New creates a new serial transport with the given configuration.
func New(cfg Config) *Transport {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ObserverName == "" {
		cfg.ObserverName = DefaultObserverName
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Transport{
		cfg: cfg,
		log: cfg.Logger.WithGroup("serial"),
		now: time.Now,
	}
}

// Start opens the serial port and begins reading packets.
func (t *Transport) Start(ctx context.Context) error {
	if t.cfg.Port == "" {
		return ErrPortRequired
	}
	if err := validateObserverID(t.cfg.ObserverID); err != nil {
		return err
	}

	mode := &serial.Mode{
		BaudRate: t.cfg.BaudRate,
	}

	port, err := serial.Open(t.cfg.Port, mode)
	if err != nil {
		return fmt.Errorf("opening serial port: %w", err)
	}

	t.mu.Lock()
	t.port = port
	t.connected = true
	t.done = make(chan struct{})
	handler := t.stateHandler
	t.mu.Unlock()

	readCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	go t.readLoop(readCtx)

	t.log.Info("connected to serial port", "port", t.cfg.Port, "baud", t.cfg.BaudRate)

	if handler != nil {
		handler(t, transport.EventConnected)
	}

	return nil
}

// Stop closes the serial port and stops the read loop.
func (t *Transport) Stop() error {
	t.mu.Lock()
	handler := t.stateHandler
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	t.mu.Lock()
	t.connected = false
	port := t.port
	t.port = nil
	done := t.done
	t.mu.Unlock()

	var err error
	if port != nil {
		err = port.Close()
	}

	// Wait for read loop to finish
	if done != nil {
		<-done
	}

	if handler != nil {
		handler(t, transport.EventDisconnected)
	}

	return err
}

// IsConnected returns true if the serial port is open.
func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// SetMessageHandler sets the callback for locally heard packets.
func (t *Transport) SetMessageHandler(fn transport.MessageHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = fn
}

// SetStateHandler sets the callback for transport state changes.
func (t *Transport) SetStateHandler(fn transport.StateHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateHandler = fn
}

// readLoop continuously reads from the serial port and feeds the frame splitter.
func (t *Transport) readLoop(ctx context.Context) {
	defer close(t.done)

	buf := make([]byte, readBufSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := t.port.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return // context cancelled, clean shutdown
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				t.log.Error("serial read error", "error", err)
				t.notifyState(transport.EventError)
			}
			t.handleDisconnect(err)
			return
		}

		if n == 0 {
			continue
		}

		t.handleBytes(buf[:n])
	}
}

// handleBytes assembles frames from raw serial data and reports each packet.
func (t *Transport) handleBytes(data []byte) {
	dropped := t.frames.Dropped()
	payloads := t.frames.Write(data)
	if d := t.frames.Dropped() - dropped; d > 0 {
		t.log.Debug("skipped corrupt serial data", "bytes", d)
	}

	for _, payload := range payloads {
		var packet codec.Packet
		if err := packet.ReadFrom(payload); err != nil {
			t.log.Debug("failed to parse MeshCore packet from frame", "error", err)
			continue
		}
		t.log.Debug("heard packet", "type", codec.PayloadTypeName(packet.PayloadType()), "bytes", len(payload))

		t.mu.RLock()
		handler := t.messageHandler
		t.mu.RUnlock()

		if handler != nil {
			handler(t.toMessage(&packet, payload), transport.PacketSourceSerial)
		}
	}
}

// toMessage reports a locally heard packet in the observer message format.
func (t *Transport) toMessage(packet *codec.Packet, raw []byte) *transport.Message {
	now := time.Now
	if t.now != nil {
		now = t.now
	}
	return &transport.Message{
		Hash:       dedupe.PacketHashString(packet),
		Raw:        strings.ToUpper(hex.EncodeToString(raw)),
		PacketType: transport.FlexInt(packet.PayloadType()),
		OriginID:   t.cfg.ObserverID,
		Origin:     t.cfg.ObserverName,
		Timestamp:  transport.Timestamp{Millis: now().UnixMilli()},
	}
}

func validateObserverID(id string) error {
	if len(id) < 2 {
		return fmt.Errorf("%w: %q", ErrInvalidObserverID, id)
	}
	if _, err := hex.DecodeString(id[:2]); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidObserverID, id)
	}
	return nil
}

func (t *Transport) handleDisconnect(err error) {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()

	if err != nil {
		t.log.Error("serial disconnected", "error", err)
	}
	t.notifyState(transport.EventDisconnected)
}

func (t *Transport) notifyState(ev transport.Event) {
	t.mu.RLock()
	handler := t.stateHandler
	t.mu.RUnlock()

	if handler != nil {
		handler(t, ev)
	}
}
