package types

import (
	"fmt"
	"strconv"
	"strings"
)

type DeviceKind string

const (
	DeviceKindPV      DeviceKind = "pv"
	DeviceKindWallbox DeviceKind = "wallbox"
)

// ParseDeviceKind accepts the lower-case kind names used in URLs and topics.
func ParseDeviceKind(s string) (DeviceKind, error) {
	switch DeviceKind(s) {
	case DeviceKindPV, DeviceKindWallbox:
		return DeviceKind(s), nil
	default:
		return "", fmt.Errorf("unknown device kind: %q", s)
	}
}

func (k DeviceKind) order() int {
	switch k {
	case DeviceKindPV:
		return 0
	case DeviceKindWallbox:
		return 1
	default:
		return 2
	}
}

// DeviceKey identifies a device instance. IDs are unique within a kind only.
type DeviceKey struct {
	Kind DeviceKind `json:"kind"`
	ID   int        `json:"id"`
}

func (k DeviceKey) String() string {
	return string(k.Kind) + "/" + strconv.Itoa(k.ID)
}

// ParseDeviceKey parses the "kind/id" form produced by String.
func ParseDeviceKey(s string) (DeviceKey, error) {
	kindPart, idPart, ok := strings.Cut(s, "/")
	if !ok {
		return DeviceKey{}, fmt.Errorf("invalid device key: %q", s)
	}
	kind, err := ParseDeviceKind(kindPart)
	if err != nil {
		return DeviceKey{}, err
	}
	id, err := strconv.Atoi(idPart)
	if err != nil || id <= 0 {
		return DeviceKey{}, fmt.Errorf("invalid device id in %q", s)
	}
	return DeviceKey{Kind: kind, ID: id}, nil
}

// Less orders keys by kind (pv before wallbox), then by id.
func (k DeviceKey) Less(other DeviceKey) bool {
	if k.Kind != other.Kind {
		return k.Kind.order() < other.Kind.order()
	}
	return k.ID < other.ID
}

// Device Runtime Info
type DeviceInfo struct {
	Key       DeviceKey `json:"key"`
	Address   string    `json:"address"`
	Serving   bool      `json:"serving"`
	Simulated bool      `json:"simulated"`
}
