package transport

import (
	"errors"
	"testing"
	"time"
)

func TestParseMessage(t *testing.T) {
	msg, err := ParseMessage([]byte(`{
		"hash": "0A1B2C3D4E5F6071",
		"raw": "1102A1B2",
		"packet_type": 4,
		"origin_id": "C7A1FF",
		"origin": "Ridge Observer",
		"timestamp": 1700000000123
	}`))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if msg.Hash != "0A1B2C3D4E5F6071" || msg.Raw != "1102A1B2" {
		t.Errorf("hash/raw = %q/%q", msg.Hash, msg.Raw)
	}
	if msg.PacketType != 4 {
		t.Errorf("PacketType = %d, want 4", msg.PacketType)
	}
	if msg.Origin != "Ridge Observer" {
		t.Errorf("Origin = %q", msg.Origin)
	}
	if got := msg.Timestamp.UnixMilli(time.Now()); got != 1700000000123 {
		t.Errorf("Timestamp = %d, want 1700000000123", got)
	}
}

func TestParseMessage_Invalid(t *testing.T) {
	for _, in := range []string{
		`nope`,
		`{"packet_type": "five", "origin": "o"}`,
		`{"packet_type": "", "origin": "o"}`,
		`{"packet_type": 4, "origin": "o", "timestamp": true}`,
	} {
		if _, err := ParseMessage([]byte(in)); !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("ParseMessage(%s) error = %v, want ErrInvalidMessage", in, err)
		}
	}
}

func TestParseMessage_MissingField(t *testing.T) {
	for _, in := range []string{
		`{}`,
		`{"hash": "AB", "origin": "o"}`,
		`{"hash": "AB", "packet_type": null, "origin": "o"}`,
		`{"hash": "AB", "packet_type": 4}`,
		`{"hash": "AB", "packet_type": 4, "origin": null}`,
	} {
		_, err := ParseMessage([]byte(in))
		if !errors.Is(err, ErrMissingField) || !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("ParseMessage(%s) error = %v, want ErrMissingField", in, err)
		}
	}
}

func TestFlexInt(t *testing.T) {
	tests := []struct {
		in   string
		want FlexInt
	}{
		{`{"packet_type": 5, "origin": "o"}`, 5},
		{`{"packet_type": "5", "origin": "o"}`, 5},
		{`{"packet_type": " 4 ", "origin": "o"}`, 4},
		{`{"packet_type": 0, "origin": ""}`, 0},
	}
	for _, tt := range tests {
		msg, err := ParseMessage([]byte(tt.in))
		if err != nil {
			t.Fatalf("ParseMessage(%s) error = %v", tt.in, err)
		}
		if msg.PacketType != tt.want {
			t.Errorf("ParseMessage(%s).PacketType = %d, want %d", tt.in, msg.PacketType, tt.want)
		}
	}
}

func TestTimestamp_UnixMilli(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		json string
		want int64
	}{
		{"absent", ``, now.UnixMilli()},
		{"zero", `, "timestamp": 0`, now.UnixMilli()},
		{"null", `, "timestamp": null`, now.UnixMilli()},
		{"milliseconds", `, "timestamp": 1717243200000`, 1717243200000},
		{"iso with Z", `, "timestamp": "2024-06-01T12:00:00Z"`, 1717243200000},
		{"iso with offset", `, "timestamp": "2024-06-01T14:00:00+02:00"`, 1717243200000},
		{"iso with fraction", `, "timestamp": "2024-06-01T12:00:00.250000Z"`, 1717243200250},
		{"unparseable", `, "timestamp": "yesterday"`, now.UnixMilli()},
		{"empty string", `, "timestamp": ""`, now.UnixMilli()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(`{"packet_type": 4, "origin": "o"` + tt.json + `}`))
			if err != nil {
				t.Fatalf("ParseMessage() error = %v", err)
			}
			if got := msg.Timestamp.UnixMilli(now); got != tt.want {
				t.Errorf("UnixMilli() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMessage_ObserverHop(t *testing.T) {
	tests := []struct {
		originID string
		want     string
		wantErr  bool
	}{
		{"C7A1FF", "c7", false},
		{"ab", "ab", false},
		{"a", "", true},
		{"", "", true},
		{"zz00", "", true},
	}
	for _, tt := range tests {
		got, err := (&Message{OriginID: tt.originID}).ObserverHop()
		if (err != nil) != tt.wantErr {
			t.Errorf("ObserverHop(%q) error = %v, wantErr %v", tt.originID, err, tt.wantErr)
			continue
		}
		if tt.wantErr && !errors.Is(err, ErrInvalidOriginID) {
			t.Errorf("ObserverHop(%q) error = %v, want ErrInvalidOriginID", tt.originID, err)
		}
		if got != tt.want {
			t.Errorf("ObserverHop(%q) = %q, want %q", tt.originID, got, tt.want)
		}
	}
}

func TestEventString(t *testing.T) {
	if EventReconnecting.String() != "reconnecting" || Event(99).String() != "unknown" {
		t.Error("unexpected Event names")
	}
	if PacketSourceSerial.String() != "serial" || PacketSourceMQTT.String() != "mqtt" {
		t.Error("unexpected PacketSource names")
	}
}
