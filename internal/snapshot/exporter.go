package snapshot

import (
	"sort"
	"sync"
	"time"

	"github.com/KevinKickass/OpenFieldSim/internal/types"
)

const (
	StatusInitializing = "Initializing"
	StatusRunning      = "Running"
	errorStatusPrefix  = "Error: "
)

// ErrorStatus formats the status reported by a device whose last tick failed.
func ErrorStatus(err error) string {
	return errorStatusPrefix + err.Error()
}

// Entry is the externally visible summary of one device after a tick.
type Entry struct {
	Key       types.DeviceKey    `json:"key"`
	Address   string             `json:"address"`
	Status    string             `json:"status"`
	State     string             `json:"state"`
	Power     float64            `json:"power_w"`
	FaultCode int                `json:"fault_code"`
	Values    map[string]float64 `json:"values,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Healthy reports whether the last tick completed without error.
func (e Entry) Healthy() bool {
	return len(e.Status) < len(errorStatusPrefix) || e.Status[:len(errorStatusPrefix)] != errorStatusPrefix
}

func (e Entry) clone() Entry {
	if e.Values != nil {
		values := make(map[string]float64, len(e.Values))
		for k, v := range e.Values {
			values[k] = v
		}
		e.Values = values
	}
	return e
}

// Exporter holds the latest published entry of every device. It is the only
// view of simulation state that read paths get to see.
type Exporter struct {
	mu      sync.RWMutex
	entries map[types.DeviceKey]Entry

	listenersMu sync.RWMutex
	listeners   []chan Entry
}

func NewExporter() *Exporter {
	return &Exporter{
		entries:   make(map[types.DeviceKey]Entry),
		listeners: make([]chan Entry, 0),
	}
}

// Publish replaces the entry for e.Key and notifies subscribers.
func (x *Exporter) Publish(e Entry) {
	e = e.clone()

	x.mu.Lock()
	x.entries[e.Key] = e
	x.mu.Unlock()

	x.listenersMu.RLock()
	defer x.listenersMu.RUnlock()

	for _, listener := range x.listeners {
		select {
		case listener <- e.clone():
		default:
			// Slow subscriber, drop
		}
	}
}

// SetStatus updates only the status of an existing entry, keeping its values.
func (x *Exporter) SetStatus(key types.DeviceKey, status string, at time.Time) {
	x.mu.RLock()
	e, ok := x.entries[key]
	x.mu.RUnlock()
	if !ok {
		e = Entry{Key: key}
	}

	e.Status = status
	e.UpdatedAt = at
	x.Publish(e)
}

// List returns copies of all entries ordered by kind, then id.
func (x *Exporter) List() []Entry {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]Entry, 0, len(x.entries))
	for _, e := range x.entries {
		out = append(out, e.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.Less(out[j].Key)
	})
	return out
}

func (x *Exporter) Get(key types.DeviceKey) (Entry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	e, ok := x.entries[key]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Subscribe returns a buffered channel receiving every published entry.
func (x *Exporter) Subscribe() chan Entry {
	ch := make(chan Entry, 64)

	x.listenersMu.Lock()
	x.listeners = append(x.listeners, ch)
	x.listenersMu.Unlock()

	return ch
}

func (x *Exporter) Unsubscribe(ch chan Entry) {
	x.listenersMu.Lock()
	defer x.listenersMu.Unlock()

	for i, listener := range x.listeners {
		if listener == ch {
			x.listeners = append(x.listeners[:i], x.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}
