// Package mqtt provides an MQTT transport that subscribes to MeshCore
// observer feeds.
//
// Observers publish one JSON document per heard packet (see
// transport.Message). This transport connects to any standard MQTT broker
// over TCP or websockets, optionally with TLS, subscribes to the configured
// topics and hands each decoded message to the message handler in arrival
// order.
package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kabili207/meshcore-wardrive/transport"
)

// Compile-time interface check.
var _ transport.Transport = (*Transport)(nil)

const (
	// DefaultClientID is the client identifier used when none is configured.
	DefaultClientID = "wardrive_bot"
	// AutoClientID requests a unique client identifier per run.
	AutoClientID = "auto"
	// WebsocketPath is the broker path used for websocket connections.
	WebsocketPath = "/mqtt"

	connectTimeout = 30 * time.Second
)

var (
	ErrBrokerRequired = errors.New("broker host is required")
	ErrNoTopics       = errors.New("at least one topic is required")
	ErrConnectTimeout = errors.New("connection timeout")
)

// Config holds the configuration for an MQTT transport.
type Config struct {
	// Host is the broker host name.
	Host string
	// Port is the broker port.
	Port int
	// UseWebsockets connects over websockets instead of raw TCP.
	UseWebsockets bool
	// UseTLS enables TLS with certificate verification.
	UseTLS bool
	// Username for MQTT authentication. Leave empty if not required.
	// With token authentication this holds the token.
	Username string
	// Password for MQTT authentication.
	Password string
	// ClientID is the MQTT client identifier. Defaults to DefaultClientID;
	// AutoClientID appends a random suffix.
	ClientID string
	// Topics are subscribed on every (re)connect.
	Topics []string
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// BrokerURL returns the paho broker URL for the configured connection.
func (c Config) BrokerURL() string {
	scheme := "tcp"
	switch {
	case c.UseWebsockets && c.UseTLS:
		scheme = "wss"
	case c.UseWebsockets:
		scheme = "ws"
	case c.UseTLS:
		scheme = "ssl"
	}
	u := scheme + "://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	if c.UseWebsockets {
		u += WebsocketPath
	}
	return u
}

// Transport implements transport.Transport over MQTT.
type Transport struct {
	cfg            Config
	client         paho.Client
	log            *slog.Logger
	mu             sync.RWMutex
	connected      bool
	messageHandler transport.MessageHandler
	stateHandler   transport.StateHandler
}

// New creates a new MQTT transport with the given configuration.
func New(cfg Config) *Transport {
	switch cfg.ClientID {
	case "":
		cfg.ClientID = DefaultClientID
	case AutoClientID:
		cfg.ClientID = DefaultClientID + "-" + uuid.NewString()[:8]
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Transport{
		cfg: cfg,
		log: cfg.Logger.WithGroup("mqtt"),
	}
}

// Start connects to the MQTT broker and begins listening for messages.
func (t *Transport) Start(ctx context.Context) error {
	if t.cfg.Host == "" {
		return ErrBrokerRequired
	}
	if len(t.topics()) == 0 {
		return ErrNoTopics
	}

	opts := paho.NewClientOptions().
		AddBroker(t.cfg.BrokerURL()).
		SetClientID(t.cfg.ClientID).
		SetProtocolVersion(4).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(2 * time.Minute).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetOnConnectHandler(t.onConnected).
		SetConnectionLostHandler(t.onConnectionLost).
		SetReconnectingHandler(t.onReconnecting)

	if t.cfg.Username != "" {
		opts.SetUsername(t.cfg.Username)
		opts.SetPassword(t.cfg.Password)
	}
	if t.cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{
			ServerName: t.cfg.Host,
			MinVersion: tls.VersionTLS12,
		})
	}

	t.mu.Lock()
	t.client = paho.NewClient(opts)
	client := t.client
	t.mu.Unlock()

	t.log.Info("connecting to MQTT broker",
		"broker", t.cfg.BrokerURL(), "client_id", t.cfg.ClientID, "auth", t.cfg.Username != "")

	token := client.Connect()
	select {
	case <-token.Done():
	case <-time.After(connectTimeout):
		return ErrConnectTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
	if token.Error() != nil {
		return fmt.Errorf("connecting to broker: %w", token.Error())
	}

	return nil
}

// Stop gracefully disconnects from the MQTT broker.
func (t *Transport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		t.client.Disconnect(1000)
		t.connected = false
	}
	return nil
}

// IsConnected returns true if the transport is connected to the broker.
func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected && t.client != nil && t.client.IsConnected()
}

// SetMessageHandler sets the callback for inbound observer messages.
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

// topics returns the configured topics with empty entries removed.
func (t *Transport) topics() []string {
	var out []string
	for _, topic := range t.cfg.Topics {
		if topic != "" {
			out = append(out, topic)
		}
	}
	return out
}

func (t *Transport) subscribe(client paho.Client) {
	for _, topic := range t.topics() {
		token := client.Subscribe(topic, 0, t.handleMessage)
		go func() {
			<-token.Done()
			if err := token.Error(); err != nil {
				t.log.Error("subscribe failed", "topic", topic, "error", err)
				return
			}
			t.log.Info("subscribed to topic", "topic", topic)
		}()
	}
}

func (t *Transport) handleMessage(_ paho.Client, message paho.Message) {
	t.mu.RLock()
	handler := t.messageHandler
	t.mu.RUnlock()

	if handler == nil {
		return
	}

	msg, err := transport.ParseMessage(message.Payload())
	if err != nil {
		t.log.Warn("dropping undecodable message", "topic", message.Topic(), "error", err)
		return
	}

	handler(msg, transport.PacketSourceMQTT)
}

func (t *Transport) onConnected(client paho.Client) {
	t.mu.Lock()
	t.connected = true
	handler := t.stateHandler
	t.mu.Unlock()

	t.log.Info("connected to MQTT broker", "broker", t.cfg.BrokerURL())
	t.subscribe(client)

	if handler != nil {
		handler(t, transport.EventConnected)
	}
}

func (t *Transport) onConnectionLost(_ paho.Client, err error) {
	t.mu.Lock()
	t.connected = false
	handler := t.stateHandler
	t.mu.Unlock()

	t.log.Error("MQTT connection lost", "error", err)

	if handler != nil {
		handler(t, transport.EventDisconnected)
	}
}

func (t *Transport) onReconnecting(_ paho.Client, _ *paho.ClientOptions) {
	t.mu.RLock()
	handler := t.stateHandler
	t.mu.RUnlock()

	t.log.Info("reconnecting to MQTT broker")

	if handler != nil {
		handler(t, transport.EventReconnecting)
	}
}
