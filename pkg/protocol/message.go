// Package protocol defines the WebSocket messages exchanged between the
// external detector, the tracker and dashboard clients.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Detector → tracker
	TypeFrame MessageType = "frame" // Per-frame detector output

	// Tracker → dashboard
	TypeUpdate MessageType = "update" // Result of one tracker step
	TypeStatus MessageType = "status" // Tracker snapshot

	// Dashboard → tracker
	TypeCommand MessageType = "command"

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the envelope for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a message stamped with the current time
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var raw json.RawMessage
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("protocol: marshal %s data: %w", msgType, err)
		}
	}
	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      raw,
	}, nil
}

// ParseData unmarshals the message data into v
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("protocol: parse message: %w", err)
	}
	return &msg, nil
}

// FrameData is one frame of detector output. H and V are nil when the
// detector could not compute the ratio.
type FrameData struct {
	Seq     int64    `json:"seq,omitempty"`
	Located bool     `json:"located"`
	H       *float64 `json:"hr,omitempty"`
	V       *float64 `json:"vr,omitempty"`
	Iris    float64  `json:"iris,omitempty"` // Apparent iris diameter in pixels
	TS      int64    `json:"ts,omitempty"`   // Capture time, Unix milliseconds
}

// Command names accepted in a TypeCommand message
const (
	CommandRecalibrate = "recalibrate"
)

// CommandData asks the tracker to do something
type CommandData struct {
	Name string `json:"name"`
}

// PongData answers a ping
type PongData struct {
	PingTS int64 `json:"ping_ts"`
	PongTS int64 `json:"pong_ts"`
}

// NewFrameMessage wraps detector output
func NewFrameMessage(f FrameData) (*Message, error) {
	return NewMessage(TypeFrame, f)
}

// NewCommandMessage creates a dashboard command
func NewCommandMessage(name string) (*Message, error) {
	return NewMessage(TypeCommand, CommandData{Name: name})
}

// NewPongMessage answers a ping sent at pingTS
func NewPongMessage(pingTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{PingTS: pingTS, PongTS: time.Now().UnixMilli()})
}

// GetFrameData extracts frame data from a TypeFrame message
func (m *Message) GetFrameData() (*FrameData, error) {
	if m.Type != TypeFrame {
		return nil, fmt.Errorf("protocol: expected %s message, got %q", TypeFrame, m.Type)
	}
	var f FrameData
	if err := m.ParseData(&f); err != nil {
		return nil, fmt.Errorf("protocol: frame data: %w", err)
	}
	return &f, nil
}

// GetCommandData extracts command data from a TypeCommand message
func (m *Message) GetCommandData() (*CommandData, error) {
	if m.Type != TypeCommand {
		return nil, fmt.Errorf("protocol: expected %s message, got %q", TypeCommand, m.Type)
	}
	var c CommandData
	if err := m.ParseData(&c); err != nil {
		return nil, fmt.Errorf("protocol: command data: %w", err)
	}
	return &c, nil
}
