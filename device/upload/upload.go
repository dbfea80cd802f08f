// Package upload delivers decoded wardrive records to the coverage service.
//
// Each record is POSTed as a JSON document to a fixed endpoint under the
// service base URL. Delivery is best effort: a failed request is reported to
// the caller and never retried.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kabili207/meshcore-wardrive/core/wardrive"
)

const (
	RepeaterPath = "/put-repeater"
	SamplePath   = "/put-sample"
	PathPath     = "/put-path"

	// DefaultTimeout bounds each delivery request.
	DefaultTimeout = 5 * time.Second
)

var (
	ErrBaseURLRequired  = errors.New("service base URL is required")
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

// HTTPClient is the subset of *http.Client used for delivery.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the configuration for a delivery Client.
type Config struct {
	// BaseURL is the coverage service root, e.g. "https://wardrive.example.net".
	BaseURL string
	// Timeout bounds each request. Defaults to DefaultTimeout.
	Timeout time.Duration
	// HTTPClient performs the requests. Defaults to a plain *http.Client.
	HTTPClient HTTPClient
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client posts repeaters, samples and path records to the coverage service.
type Client struct {
	baseURL string
	timeout time.Duration
	http    HTTPClient
	log     *slog.Logger
}

// New creates a delivery client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrBaseURLRequired
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		http:    cfg.HTTPClient,
		log:     cfg.Logger.WithGroup("upload"),
	}, nil
}

type repeaterBody struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Lat  float64  `json:"lat"`
	Lon  float64  `json:"lon"`
	Path []string `json:"path"`
}

type sampleBody struct {
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Path     []string `json:"path"`
	Observed bool     `json:"observed"`
}

type pathBody struct {
	PacketHash   string   `json:"packet_hash"`
	PacketType   int      `json:"packet_type"`
	RouteType    int      `json:"route_type"`
	ObserverID   string   `json:"observer_id"`
	ObserverName string   `json:"observer_name"`
	SourceNode   string   `json:"source_node"`
	DestNode     string   `json:"dest_node"`
	Path         []string `json:"path"`
	Timestamp    int64    `json:"timestamp"`
}

// PutRepeater reports a repeater position.
func (c *Client) PutRepeater(ctx context.Context, r wardrive.Repeater) error {
	return c.post(ctx, RepeaterPath, repeaterBody{
		ID:   r.ID,
		Name: r.Name,
		Lat:  r.Lat,
		Lon:  r.Lon,
		Path: []string{},
	})
}

// PutSample reports an observed coverage sample.
func (c *Client) PutSample(ctx context.Context, s wardrive.Sample) error {
	path := s.Path
	if path == nil {
		path = []string{}
	}
	return c.post(ctx, SamplePath, sampleBody{
		Lat:      s.Lat,
		Lon:      s.Lon,
		Path:     path,
		Observed: true,
	})
}

// PutPath reports the route one observer saw a packet take.
func (c *Client) PutPath(ctx context.Context, p wardrive.PathRecord) error {
	return c.post(ctx, PathPath, pathBody{
		PacketHash:   p.PacketHash,
		PacketType:   p.PacketType,
		RouteType:    p.RouteType,
		ObserverID:   p.ObserverID,
		ObserverName: p.ObserverName,
		SourceNode:   p.SourceNode,
		DestNode:     p.DestNode,
		Path:         p.Path,
		Timestamp:    p.Timestamp,
	})
}

func (c *Client) post(ctx context.Context, endpoint string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s body: %w", endpoint, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: POST %s: %s", ErrUnexpectedStatus, endpoint, resp.Status)
	}

	c.log.Debug("delivered", "endpoint", endpoint, "status", resp.StatusCode, "body", string(data))
	return nil
}
