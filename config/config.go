// Package config loads the scraper configuration file.
//
// The file is YAML. The JSON config.json used by earlier deployments is
// accepted unchanged, since YAML is a superset of JSON.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kabili207/meshcore-wardrive/core/crypto"
	"github.com/kabili207/meshcore-wardrive/core/geo"
)

const (
	ModePublic = "public"
	ModeLocal  = "local"

	DefaultMQTTPort           = 443
	DefaultUploadTimeout      = 5 // seconds
	DefaultTokenExpirySeconds = 3600
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"

	// placeholder marks template values that were never filled in.
	placeholder = "TODO"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the scraper configuration.
type Config struct {
	CenterPosition       []float64 `yaml:"center_position"` // [lat, lon]
	ValidDist            float64   `yaml:"valid_dist"`      // miles, <= 0 disables
	ChannelHash          string    `yaml:"channel_hash"`    // hex byte, derived from the secret if empty
	ChannelSecret        string    `yaml:"channel_secret"`  // hex AES key
	WatchedObservers     []string  `yaml:"watched_observers"`
	ServiceHost          string    `yaml:"service_host"`
	UploadTimeoutSeconds int       `yaml:"upload_timeout_seconds"`

	MQTTHost               string   `yaml:"mqtt_host"`
	MQTTPort               int      `yaml:"mqtt_port"`
	MQTTMode               string   `yaml:"mqtt_mode"`
	MQTTUseWebsockets      *bool    `yaml:"mqtt_use_websockets"`
	MQTTUseTLS             *bool    `yaml:"mqtt_use_tls"`
	MQTTTopics             []string `yaml:"mqtt_topics"`
	MQTTTopic              string   `yaml:"mqtt_topic"`
	MQTTClientID           string   `yaml:"mqtt_client_id"`
	MQTTUsername           string   `yaml:"mqtt_username"`
	MQTTPassword           string   `yaml:"mqtt_password"`
	MQTTUseAuthToken       bool     `yaml:"mqtt_use_auth_token"`
	MQTTToken              string   `yaml:"mqtt_token"`
	MQTTPublicKey          string   `yaml:"mqtt_public_key"`
	MQTTPrivateKey         string   `yaml:"mqtt_private_key"` // hex, or a file path when shorter than 128 chars
	MQTTTokenExpirySeconds int      `yaml:"mqtt_token_expiry_seconds"`
	MQTTTokenAudience      *string  `yaml:"mqtt_token_audience"` // defaults to mqtt_host

	SerialPort         string `yaml:"serial_port"`
	SerialBaud         int    `yaml:"serial_baud"`
	SerialObserverName string `yaml:"serial_observer_name"`
	SerialObserverID   string `yaml:"serial_observer_id"`

	MetricsListen string `yaml:"metrics_listen"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`

	channelKey  []byte
	channelHash uint8
}

// Load reads, defaults and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	for _, s := range []*string{
		&c.MQTTUsername, &c.MQTTPassword, &c.MQTTToken, &c.MQTTPublicKey, &c.MQTTPrivateKey,
		&c.ChannelHash, &c.SerialPort, &c.SerialObserverID, &c.MetricsListen,
	} {
		*s = unsetPlaceholder(*s)
	}

	if c.MQTTMode == "" {
		c.MQTTMode = ModePublic
	}
	if c.MQTTPort == 0 {
		c.MQTTPort = DefaultMQTTPort
	}
	if c.UploadTimeoutSeconds == 0 {
		c.UploadTimeoutSeconds = DefaultUploadTimeout
	}
	if c.MQTTTokenExpirySeconds == 0 {
		c.MQTTTokenExpirySeconds = DefaultTokenExpirySeconds
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
}

// Validate checks the configuration and resolves the channel key and hash.
func (c *Config) Validate() error {
	if len(c.CenterPosition) != 0 && len(c.CenterPosition) != 2 {
		return fmt.Errorf("%w: center_position must be [lat, lon]", ErrInvalidConfig)
	}
	if c.ValidDist > 0 && len(c.CenterPosition) != 2 {
		return fmt.Errorf("%w: center_position is required when valid_dist is set", ErrInvalidConfig)
	}
	if len(c.CenterPosition) == 2 && !c.Center().InRange() {
		return fmt.Errorf("%w: center_position %v is out of range", ErrInvalidConfig, c.CenterPosition)
	}

	key, err := hex.DecodeString(strings.TrimSpace(c.ChannelSecret))
	if err != nil {
		return fmt.Errorf("%w: channel_secret: %w", ErrInvalidConfig, err)
	}
	if err := crypto.ValidateKey(key); err != nil {
		return fmt.Errorf("%w: channel_secret: %w", ErrInvalidConfig, err)
	}
	c.channelKey = key

	if c.ChannelHash == "" {
		c.channelHash = crypto.ComputeChannelHash(key)
	} else {
		h, err := hex.DecodeString(strings.TrimSpace(c.ChannelHash))
		if err != nil || len(h) != 1 {
			return fmt.Errorf("%w: channel_hash must be one hex byte, got %q", ErrInvalidConfig, c.ChannelHash)
		}
		c.channelHash = h[0]
	}

	if c.ServiceHost == "" {
		return fmt.Errorf("%w: service_host is required", ErrInvalidConfig)
	}
	if c.UploadTimeoutSeconds < 0 {
		return fmt.Errorf("%w: upload_timeout_seconds must not be negative", ErrInvalidConfig)
	}

	if c.MQTTHost == "" && c.SerialPort == "" {
		return fmt.Errorf("%w: mqtt_host or serial_port is required", ErrInvalidConfig)
	}
	if c.MQTTHost != "" {
		if c.MQTTMode != ModePublic && c.MQTTMode != ModeLocal {
			return fmt.Errorf("%w: mqtt_mode must be %q or %q, got %q", ErrInvalidConfig, ModePublic, ModeLocal, c.MQTTMode)
		}
		if c.MQTTPort < 1 || c.MQTTPort > 65535 {
			return fmt.Errorf("%w: mqtt_port must be between 1 and 65535", ErrInvalidConfig)
		}
		if len(c.Topics()) == 0 {
			return fmt.Errorf("%w: mqtt_topics or mqtt_topic is required", ErrInvalidConfig)
		}
	}
	if c.SerialPort != "" && c.SerialObserverID == "" {
		return fmt.Errorf("%w: serial_observer_id is required with serial_port", ErrInvalidConfig)
	}

	if _, err := c.SlogLevel(); err != nil {
		return fmt.Errorf("%w: log_level: %w", ErrInvalidConfig, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}

	return nil
}

// Center returns the service area center.
func (c *Config) Center() geo.Point {
	if len(c.CenterPosition) != 2 {
		return geo.Point{}
	}
	return geo.Point{Lat: c.CenterPosition[0], Lon: c.CenterPosition[1]}
}

// ChannelKey returns the decoded channel secret.
func (c *Config) ChannelKey() []byte {
	return c.channelKey
}

// ChannelHashByte returns the watched channel hash, configured or derived.
func (c *Config) ChannelHashByte() uint8 {
	return c.channelHash
}

// Topics returns mqtt_topics, or mqtt_topic when no list is given.
func (c *Config) Topics() []string {
	var out []string
	topics := c.MQTTTopics
	if len(topics) == 0 {
		topics = []string{c.MQTTTopic}
	}
	for _, t := range topics {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// UseWebsockets reports whether to connect over websockets. Local brokers
// never use them; public brokers do unless disabled.
func (c *Config) UseWebsockets() bool {
	if c.MQTTMode == ModeLocal {
		return false
	}
	return c.MQTTUseWebsockets == nil || *c.MQTTUseWebsockets
}

// UseTLS reports whether to connect with TLS. Local brokers never use it;
// public brokers do unless disabled.
func (c *Config) UseTLS() bool {
	if c.MQTTMode == ModeLocal {
		return false
	}
	return c.MQTTUseTLS == nil || *c.MQTTUseTLS
}

// TokenAudience returns the auth token audience, defaulting to the broker host.
func (c *Config) TokenAudience() string {
	if c.MQTTTokenAudience != nil {
		return *c.MQTTTokenAudience
	}
	return c.MQTTHost
}

// TokenExpiry returns the auth token lifetime.
func (c *Config) TokenExpiry() time.Duration {
	return time.Duration(c.MQTTTokenExpirySeconds) * time.Second
}

// UploadTimeout returns the delivery request timeout.
func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.UploadTimeoutSeconds) * time.Second
}

// SlogLevel parses log_level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(c.LogLevel))
	return level, err
}

func unsetPlaceholder(s string) string {
	if strings.TrimSpace(s) == placeholder {
		return ""
	}
	return s
}
