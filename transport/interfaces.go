// Package transport provides the interfaces and inbound message format shared
// by the packet sources feeding the scraper.
package transport

import (
	"context"
)

// Transport is the base interface for all packet sources.
type Transport interface {
	// Start begins the transport's connection and message handling.
	// The provided context controls the transport's lifetime.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the transport.
	Stop() error
	// IsConnected returns true if the transport is currently connected.
	IsConnected() bool
	// SetMessageHandler sets the callback for inbound observer messages.
	SetMessageHandler(fn MessageHandler)
	// SetStateHandler sets the callback for transport state changes.
	SetStateHandler(fn StateHandler)
}

// MessageHandler is called for each inbound observer message.
type MessageHandler func(msg *Message, source PacketSource)

// StateHandler is called when the transport state changes.
type StateHandler func(transport Transport, event Event)

// Event represents transport state change events.
type Event int

const (
	// EventConnected is fired when the transport connects.
	EventConnected Event = iota
	// EventDisconnected is fired when the transport disconnects.
	EventDisconnected
	// EventReconnecting is fired when the transport is attempting to reconnect.
	EventReconnecting
	// EventError is fired when an error occurs.
	EventError
)

func (e Event) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventReconnecting:
		return "reconnecting"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// PacketSource indicates where a message originated from.
type PacketSource int

const (
	// PacketSourceMQTT indicates the message came from an MQTT observer feed.
	PacketSourceMQTT PacketSource = iota
	// PacketSourceSerial indicates the packet was heard by a locally attached radio.
	PacketSourceSerial
)

func (s PacketSource) String() string {
	switch s {
	case PacketSourceMQTT:
		return "mqtt"
	case PacketSourceSerial:
		return "serial"
	default:
		return "unknown"
	}
}
