package control

import (
	"sync"
	"testing"

	"github.com/KevinKickass/OpenFieldSim/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPlane(keys ...types.DeviceKey) *Plane {
	p := NewPlane(zap.NewNop())
	for _, k := range keys {
		p.Register(k)
	}
	return p
}

func ptr(v float64) *float64 { return &v }

var (
	pv1 = types.DeviceKey{Kind: types.DeviceKindPV, ID: 1}
	wb1 = types.DeviceKey{Kind: types.DeviceKindWallbox, ID: 1}
)

func TestSubmitUnknownDeviceLeavesStateUnchanged(t *testing.T) {
	p := newTestPlane(pv1, wb1)

	_, err := p.Submit(wb1, ActionStartCharging, nil)
	require.NoError(t, err)

	unknown := types.DeviceKey{Kind: types.DeviceKindWallbox, ID: 99}
	_, err = p.Submit(unknown, ActionStopCharging, nil)
	require.ErrorIs(t, err, ErrUnknownDevice)

	_, ok := p.Pending(unknown)
	assert.False(t, ok)
	_, ok = p.Pending(pv1)
	assert.False(t, ok)

	pending, ok := p.Pending(wb1)
	require.True(t, ok)
	assert.Equal(t, ActionStartCharging, pending.Action)
	assert.Equal(t, DefaultSpeed, p.Speed())
}

func TestSubmitValidation(t *testing.T) {
	p := newTestPlane(pv1, wb1)

	tests := []struct {
		name   string
		key    types.DeviceKey
		action Action
		value  *float64
		err    error
	}{
		{"pv inject", pv1, ActionInjectFault, nil, nil},
		{"pv reset", pv1, ActionResetFault, nil, nil},
		{"pv cannot charge", pv1, ActionStartCharging, nil, ErrMalformed},
		{"pv cannot toggle", pv1, ActionToggleConnection, nil, ErrMalformed},
		{"soc without value", wb1, ActionSetSoC, nil, ErrMalformed},
		{"soc below range", wb1, ActionSetSoC, ptr(-1), ErrOutOfRange},
		{"soc above range", wb1, ActionSetSoC, ptr(100.5), ErrOutOfRange},
		{"soc lower bound", wb1, ActionSetSoC, ptr(0), nil},
		{"soc upper bound", wb1, ActionSetSoC, ptr(100), nil},
		{"unknown action", wb1, Action("explode"), nil, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := p.Submit(tt.key, tt.action, tt.value)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.key, cmd.Device)
			assert.NotEmpty(t, cmd.ID.String())
		})
	}
}

func TestSubmitLastWriteWins(t *testing.T) {
	p := newTestPlane(wb1)

	first, err := p.Submit(wb1, ActionSetSoC, ptr(40))
	require.NoError(t, err)
	second, err := p.Submit(wb1, ActionStartCharging, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	cmd, ok := p.Consume(wb1)
	require.True(t, ok)
	assert.Equal(t, second.ID, cmd.ID)
	assert.Equal(t, ActionStartCharging, cmd.Action)

	_, ok = p.Consume(wb1)
	assert.False(t, ok, "slot must be cleared after consume")
}

func TestSubmitCarriesValue(t *testing.T) {
	p := newTestPlane(wb1)

	_, err := p.Submit(wb1, ActionSetSoC, ptr(55))
	require.NoError(t, err)

	cmd, ok := p.Consume(wb1)
	require.True(t, ok)
	assert.True(t, cmd.HasValue)
	assert.Equal(t, 55.0, cmd.Value)
}

func TestSetSpeed(t *testing.T) {
	p := newTestPlane()

	require.NoError(t, p.SetSpeed(2))
	assert.Equal(t, 2.0, p.Speed())

	require.NoError(t, p.SetSpeed(MinSpeed))
	require.NoError(t, p.SetSpeed(MaxSpeed))

	for _, bad := range []float64{0, 0.09, 10.01, -3} {
		require.ErrorIs(t, p.SetSpeed(bad), ErrOutOfRange)
	}
	assert.Equal(t, MaxSpeed, p.Speed())
}

func TestConcurrentSubmitAndConsume(t *testing.T) {
	keys := make([]types.DeviceKey, 8)
	for i := range keys {
		keys[i] = types.DeviceKey{Kind: types.DeviceKindWallbox, ID: i + 1}
	}
	p := newTestPlane(keys...)

	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(2)
		go func(k types.DeviceKey) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, _ = p.Submit(k, ActionToggleConnection, nil)
			}
		}(k)
		go func(k types.DeviceKey) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if cmd, ok := p.Consume(k); ok {
					assert.Equal(t, k, cmd.Device)
				}
			}
		}(k)
	}
	wg.Wait()
}

func TestParseActionAndKindSupport(t *testing.T) {
	a, err := ParseAction("set_soc")
	require.NoError(t, err)
	assert.Equal(t, ActionSetSoC, a)

	_, err = ParseAction("SET_SOC")
	require.ErrorIs(t, err, ErrMalformed)

	assert.ElementsMatch(t, []Action{ActionInjectFault, ActionResetFault}, Actions(types.DeviceKindPV))
	assert.Len(t, Actions(types.DeviceKindWallbox), 6)
}
