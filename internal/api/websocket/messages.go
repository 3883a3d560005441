package websocket

import (
	"time"

	"github.com/KevinKickass/OpenFieldSim/internal/snapshot"
	"github.com/KevinKickass/OpenFieldSim/internal/types"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Device messages
	MessageTypeDeviceSnapshot MessageType = "device_snapshot"
	MessageTypeFleetSnapshot  MessageType = "fleet_snapshot"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"
	MessageTypeSubscribed   MessageType = "subscribed"
	MessageTypeError        MessageType = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`

	// device is set for per-device messages so clients can filter
	device *types.DeviceKey
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewDeviceSnapshotMessage(e snapshot.Entry) Message {
	msg := NewMessage(MessageTypeDeviceSnapshot, e)
	key := e.Key
	msg.device = &key
	return msg
}

func NewFleetSnapshotMessage(entries []snapshot.Entry) Message {
	return NewMessage(MessageTypeFleetSnapshot, entries)
}

func NewSystemStatusMessage(status interface{}) Message {
	return NewMessage(MessageTypeSystemStatus, status)
}

func newErrorMessage(reason string) Message {
	return NewMessage(MessageTypeError, map[string]string{"reason": reason})
}

// clientMessage is what clients may send: {"type":"subscribe","devices":["pv/3"]}.
// An empty device list subscribes to all devices.
type clientMessage struct {
	Type    string   `json:"type"`
	Devices []string `json:"devices"`
}
