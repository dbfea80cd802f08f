// Command wardrive-mqtt subscribes to MeshCore observer feeds and reports
// repeater positions, coverage samples and packet paths to a wardrive
// coverage service.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/kabili207/meshcore-wardrive/config"
	"github.com/kabili207/meshcore-wardrive/core/geo"
	"github.com/kabili207/meshcore-wardrive/core/wardrive"
	"github.com/kabili207/meshcore-wardrive/device/scraper"
	"github.com/kabili207/meshcore-wardrive/device/upload"
	"github.com/kabili207/meshcore-wardrive/transport"
	"github.com/kabili207/meshcore-wardrive/transport/mqtt"
	"github.com/kabili207/meshcore-wardrive/transport/serial"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("wardrive-mqtt failed", "error", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	logLevel   string
	version    bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := pflag.NewFlagSet("wardrive-mqtt", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVarP(&opts.configPath, "config", "c", "config.json", "Configuration file (YAML or JSON)")
	fs.StringVarP(&opts.logLevel, "log-level", "l", "", "Override log_level (debug, info, warn, error)")
	fs.BoolVarP(&opts.version, "version", "v", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return &opts, nil
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if opts.version {
		fmt.Fprintln(stderr, "wardrive-mqtt", version)
		return nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	logger, err := newLogger(stderr, cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	proc, err := newProcessor(cfg, logger)
	if err != nil {
		return err
	}

	if cfg.MetricsListen != "" {
		srv := newMetricsServer(cfg.MetricsListen, proc)
		go func() {
			logger.Info("serving metrics", "addr", cfg.MetricsListen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	transports := newTransports(cfg, logger)

	onMessage := func(msg *transport.Message, src transport.PacketSource) {
		proc.HandleMessage(ctx, msg, src)
	}
	onState := func(_ transport.Transport, ev transport.Event) {
		logger.Debug("transport state changed", "event", ev.String())
	}

	var started []transport.Transport
	defer func() {
		for _, t := range started {
			if err := t.Stop(); err != nil {
				logger.Warn("stopping transport", "error", err)
			}
		}
	}()
	for _, t := range transports {
		t.SetMessageHandler(onMessage)
		t.SetStateHandler(onState)
		if err := t.Start(ctx); err != nil {
			return err
		}
		started = append(started, t)
	}

	logger.Info("wardrive scraper running",
		"channel_hash", fmt.Sprintf("%02x", cfg.ChannelHashByte()),
		"watched_observers", cfg.WatchedObservers,
		"service_host", cfg.ServiceHost)

	<-ctx.Done()
	logger.Info("shutting down", "stats", proc.Counters().Snapshot())
	return nil
}

func newLogger(w io.Writer, cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	hopts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	}
	return slog.New(slog.NewTextHandler(w, hopts)), nil
}

func newProcessor(cfg *config.Config, logger *slog.Logger) (*scraper.Processor, error) {
	decoder, err := wardrive.NewChannelDecoder(cfg.ChannelHashByte(), cfg.ChannelKey())
	if err != nil {
		return nil, err
	}
	uploader, err := upload.New(upload.Config{
		BaseURL: cfg.ServiceHost,
		Timeout: cfg.UploadTimeout(),
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	return scraper.New(scraper.Config{
		Decoder: decoder,
		Validator: &geo.Validator{
			Center:      cfg.Center(),
			MaxDistance: cfg.ValidDist,
			Logger:      logger.WithGroup("validator"),
		},
		Uploader:         uploader,
		WatchedObservers: cfg.WatchedObservers,
		Logger:           logger,
	})
}

func newMetricsServer(addr string, proc *scraper.Processor) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		scraper.NewCollector(proc),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func newTransports(cfg *config.Config, logger *slog.Logger) []transport.Transport {
	var out []transport.Transport

	if cfg.MQTTHost != "" {
		out = append(out, mqtt.New(mqttConfig(cfg, logger, time.Now())))
	}

	if cfg.SerialPort != "" {
		out = append(out, serial.New(serial.Config{
			Port:         cfg.SerialPort,
			BaudRate:     cfg.SerialBaud,
			ObserverID:   cfg.SerialObserverID,
			ObserverName: cfg.SerialObserverName,
			Logger:       logger,
		}))
	}

	return out
}

// mqttConfig builds the broker connection settings, generating an auth
// token from the configured node keys when token auth is enabled without a
// token. A failed generation connects without credentials.
func mqttConfig(cfg *config.Config, logger *slog.Logger, now time.Time) mqtt.Config {
	mcfg := mqtt.Config{
		Host:          cfg.MQTTHost,
		Port:          cfg.MQTTPort,
		UseWebsockets: cfg.UseWebsockets(),
		UseTLS:        cfg.UseTLS(),
		ClientID:      cfg.MQTTClientID,
		Topics:        cfg.Topics(),
		Logger:        logger,
	}

	switch {
	case cfg.MQTTUseAuthToken:
		token := cfg.MQTTToken
		if token == "" && cfg.MQTTPublicKey != "" && cfg.MQTTPrivateKey != "" {
			var err error
			token, err = generateToken(cfg, now)
			if err != nil {
				logger.Warn("auth token generation failed, connecting without a token", "error", err)
			} else {
				logger.Info("generated auth token", "expires_in", cfg.TokenExpiry())
			}
		}
		if token != "" {
			mcfg.Username = token
			logger.Info("using token authentication")
		}
	case cfg.MQTTUsername != "" && cfg.MQTTPassword != "":
		mcfg.Username = cfg.MQTTUsername
		mcfg.Password = cfg.MQTTPassword
		logger.Info("using username/password authentication")
	default:
		logger.Info("connecting without authentication")
	}

	return mcfg
}

func generateToken(cfg *config.Config, now time.Time) (string, error) {
	priv, err := mqtt.LoadPrivateKey(cfg.MQTTPrivateKey)
	if err != nil {
		return "", err
	}
	return mqtt.CreateAuthToken(mqtt.TokenConfig{
		PublicKey:  cfg.MQTTPublicKey,
		PrivateKey: priv,
		Expiry:     cfg.TokenExpiry(),
		Audience:   cfg.TokenAudience(),
	}, now)
}
