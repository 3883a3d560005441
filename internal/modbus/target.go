package modbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenFieldSim/internal/registers"
	"github.com/KevinKickass/OpenFieldSim/internal/types"
)

// Target is a remote device read through its register map.
type Target struct {
	Key      types.DeviceKey
	UnitID   uint8
	Client   *Client
	Fields   []registers.Field
	fieldMap map[string]registers.Field

	mu         sync.RWMutex
	lastValues map[string]float64
	lastRead   time.Time
}

func NewTarget(key types.DeviceKey, address string, unitID uint8, fields []registers.Field, timeout time.Duration) *Target {
	fieldMap := make(map[string]registers.Field, len(fields))
	for _, f := range fields {
		fieldMap[f.Name] = f
	}

	return &Target{
		Key:        key,
		UnitID:     unitID,
		Client:     NewClient(address, timeout),
		Fields:     fields,
		fieldMap:   fieldMap,
		lastValues: make(map[string]float64),
	}
}

// FieldsFor returns the register map of a device kind.
func FieldsFor(kind types.DeviceKind) []registers.Field {
	switch kind {
	case types.DeviceKindWallbox:
		return registers.WallboxMap
	default:
		return registers.PVMap
	}
}

func (t *Target) Connect() error {
	if err := t.Client.Connect(); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", t.Key, err)
	}
	return nil
}

func (t *Target) Disconnect() error {
	return t.Client.Close()
}

// span returns the smallest block of cells covering every field.
func (t *Target) span() (start, count uint16) {
	if len(t.Fields) == 0 {
		return 0, 0
	}
	start = t.Fields[0].Address
	end := start
	for _, f := range t.Fields {
		if f.Address < start {
			start = f.Address
		}
		if last := f.Address + f.Width.Cells(); last > end {
			end = last
		}
	}
	return start, end - start
}

// ReadAll reads the whole map with a single FC 03 request and decodes every
// field into engineering units.
func (t *Target) ReadAll(ctx context.Context) (map[string]float64, error) {
	if err := t.Connect(); err != nil {
		return nil, err
	}

	start, count := t.span()
	cells, err := t.Client.ReadHoldingRegisters(ctx, t.UnitID, start, count)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", t.Key, err)
	}
	if len(cells) < int(count) {
		return nil, fmt.Errorf("short read from %s: %d of %d registers", t.Key, len(cells), count)
	}

	values := make(map[string]float64, len(t.Fields))
	for _, f := range t.Fields {
		offset := f.Address - start
		values[f.Name] = f.Decode(cells[offset : offset+f.Width.Cells()])
	}

	t.mu.Lock()
	for k, v := range values {
		t.lastValues[k] = v
	}
	t.lastRead = time.Now()
	t.mu.Unlock()

	return values, nil
}

// WriteRegister writes a read/write field, e.g. the remote control or reset
// registers.
func (t *Target) WriteRegister(ctx context.Context, name string, value uint16) error {
	f, ok := t.fieldMap[name]
	if !ok {
		return fmt.Errorf("register not found: %s", name)
	}
	if f.Access != registers.AccessTypeReadWrite {
		return fmt.Errorf("register %s is read-only", name)
	}

	if err := t.Connect(); err != nil {
		return err
	}
	return t.Client.WriteSingleRegister(ctx, t.UnitID, f.Address, value)
}

func (t *Target) GetLastValue(name string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := t.lastValues[name]
	return v, ok
}
