package sim

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/KevinKickass/OpenFieldSim/internal/control"
	"github.com/KevinKickass/OpenFieldSim/internal/registers"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testStart = time.Date(2026, 6, 21, 10, 0, 0, 0, time.UTC)

func testRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func newPV(t *testing.T, id int) (*PVEngine, *registers.Store) {
	t.Helper()
	store := registers.NewStore(registers.DefaultSize)
	return NewPVEngine(id, store, DefaultPVParams(), testRand(uint64(id)), zap.NewNop()), store
}

func newWallbox(t *testing.T, id int, tweak func(*WallboxParams)) (*WallboxEngine, *registers.Store) {
	t.Helper()
	params := DefaultWallboxParams()
	params.PowerJitter = 0
	if tweak != nil {
		tweak(&params)
	}
	store := registers.NewStore(registers.DefaultSize)
	e, err := NewWallboxEngine(id, store, params, testRand(uint64(id)), zap.NewNop())
	require.NoError(t, err)
	return e, store
}

// stepWith submits an optional action through a plane, consumes it and steps
// the engine, the same way a worker does.
func stepWith(t *testing.T, p *control.Plane, e Engine, speed float64, now time.Time, action control.Action, value *float64) {
	t.Helper()
	if action != "" {
		_, err := p.Submit(e.Key(), action, value)
		require.NoError(t, err)
	}
	var pending *control.Command
	if cmd, ok := p.Consume(e.Key()); ok {
		pending = &cmd
	}
	require.NoError(t, e.Step(pending, speed, now))
}

func readCell(t *testing.T, s *registers.Store, address uint16) uint16 {
	t.Helper()
	v, err := s.ReadOne(address)
	require.NoError(t, err)
	return v
}

func fieldValue(t *testing.T, s *registers.Store, fields []registers.Field, name string) float64 {
	t.Helper()
	v, err := s.ReadField(registers.MustLookup(fields, name))
	require.NoError(t, err)
	return v
}
