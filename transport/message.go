package transport

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidMessage  = errors.New("invalid observer message")
	ErrMissingHash     = errors.New("message has no hash")
	ErrInvalidOriginID = errors.New("origin_id must start with 2 hex characters")
	ErrMissingField    = errors.New("required field missing")
)

// requiredFields must be present and non-null in every observer message.
var requiredFields = []string{"packet_type", "origin"}

// Message is one packet report from an observer, as published on the feed.
type Message struct {
	Hash       string    `json:"hash"`
	Raw        string    `json:"raw"`
	PacketType FlexInt   `json:"packet_type"`
	OriginID   string    `json:"origin_id"`
	Origin     string    `json:"origin"`
	Timestamp  Timestamp `json:"timestamp"`
}

// ParseMessage decodes an observer message from JSON.
func ParseMessage(data []byte) (*Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	for _, key := range requiredFields {
		if v, ok := fields[key]; !ok || bytes.Equal(v, []byte("null")) {
			return nil, fmt.Errorf("%w: %w: %s", ErrInvalidMessage, ErrMissingField, key)
		}
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return &msg, nil
}

// ObserverHop returns the observer's short ID: the first two characters of
// origin_id, lowercased.
func (m *Message) ObserverHop() (string, error) {
	if len(m.OriginID) < 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidOriginID, m.OriginID)
	}
	id := strings.ToLower(m.OriginID[:2])
	if _, err := hex.DecodeString(id); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidOriginID, m.OriginID)
	}
	return id, nil
}

// FlexInt accepts a JSON number or a string holding an integer.
type FlexInt int

// UnmarshalJSON implements json.Unmarshaler. null leaves the value unchanged.
func (f *FlexInt) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(bytes.Trim(b, `"`))
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("invalid integer %s: %w", b, err)
	}
	*f = FlexInt(v)
	return nil
}

// Timestamp is an observer timestamp. It may be absent, zero, a number of
// milliseconds, or an ISO-8601 string.
type Timestamp struct {
	Millis int64  // numeric form, 0 if absent
	Text   string // string form, "" if absent
}

// UnmarshalJSON implements json.Unmarshaler. Unparseable strings are kept
// as text and resolved to the current time by UnixMilli.
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	*ts = Timestamp{}
	switch {
	case bytes.Equal(b, []byte("null")):
		return nil
	case len(b) > 0 && b[0] == '"':
		return json.Unmarshal(b, &ts.Text)
	default:
		var v float64
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		ts.Millis = int64(v)
		return nil
	}
}

// isoLayouts are the ISO-8601 forms observers are known to send.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// UnixMilli resolves the timestamp to milliseconds since the epoch, using
// now when the value is absent, zero, or not a parseable date.
func (ts Timestamp) UnixMilli(now time.Time) int64 {
	if ts.Text != "" {
		if t, ok := parseISO(ts.Text); ok {
			return t.UnixMilli()
		}
		return now.UnixMilli()
	}
	if ts.Millis == 0 {
		return now.UnixMilli()
	}
	return ts.Millis
}

func parseISO(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		// Zone-less forms are read as local time.
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
