package registers

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// DefaultSize matches the 100-cell holding register block each device exposes.
const DefaultSize = 100

var ErrOutOfRange = errors.New("register address out of range")

// Store holds the 16-bit cells of one device. Every Write and Read call is
// atomic with respect to the others, so a 32-bit field written in one call is
// never observed half-updated.
type Store struct {
	mu    sync.RWMutex
	cells []uint16
}

func NewStore(size int) *Store {
	if size <= 0 {
		size = DefaultSize
	}
	return &Store{cells: make([]uint16, size)}
}

func (s *Store) Size() int {
	return len(s.cells)
}

// Write replaces cells starting at address. The store never grows.
func (s *Store) Write(address uint16, values ...uint16) error {
	end := int(address) + len(values)
	if end > len(s.cells) {
		return fmt.Errorf("%w: write %d cells at %d (size %d)", ErrOutOfRange, len(values), address, len(s.cells))
	}

	s.mu.Lock()
	copy(s.cells[address:end], values)
	s.mu.Unlock()

	return nil
}

// Read returns a copy of count cells starting at address.
func (s *Store) Read(address uint16, count uint16) ([]uint16, error) {
	end := int(address) + int(count)
	if end > len(s.cells) {
		return nil, fmt.Errorf("%w: read %d cells at %d (size %d)", ErrOutOfRange, count, address, len(s.cells))
	}

	out := make([]uint16, count)
	s.mu.RLock()
	copy(out, s.cells[address:end])
	s.mu.RUnlock()

	return out, nil
}

// ReadOne is a convenience for single-cell command registers.
func (s *Store) ReadOne(address uint16) (uint16, error) {
	values, err := s.Read(address, 1)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// WriteField scales value by the field's factor, truncates toward zero and
// writes it in the field's width.
func (s *Store) WriteField(f Field, value float64) error {
	switch f.Width {
	case Width32:
		high, low := Split32(value * f.scale())
		return s.Write(f.Address, high, low)
	default:
		return s.Write(f.Address, Scale16(value, f.scale()))
	}
}

// ReadField decodes a field back into engineering units.
func (s *Store) ReadField(f Field) (float64, error) {
	values, err := s.Read(f.Address, f.Width.Cells())
	if err != nil {
		return 0, err
	}
	return f.Decode(values), nil
}

// Split32 returns the high and low words of floor(value) modulo 2^32.
// Fractions are truncated.
func Split32(value float64) (high, low uint16) {
	v := truncate32(value)
	return uint16((v >> 16) & 0xFFFF), uint16(v & 0xFFFF)
}

// Join32 is the inverse of Split32.
func Join32(high, low uint16) uint32 {
	return uint32(high)<<16 | uint32(low)
}

func truncate32(value float64) uint32 {
	if math.IsNaN(value) || value <= 0 {
		return 0
	}
	// math.Mod keeps values beyond 2^64 bit-exact modulo 2^32.
	return uint32(uint64(math.Mod(math.Floor(value), 1<<32)))
}

// Scale16 scales and truncates value toward zero, saturating at the bounds of
// an unsigned 16-bit cell.
func Scale16(value, factor float64) uint16 {
	scaled := math.Trunc(value * factor)
	switch {
	case math.IsNaN(scaled) || scaled <= 0:
		return 0
	case scaled >= math.MaxUint16:
		return math.MaxUint16
	default:
		return uint16(scaled)
	}
}
