package sim

import (
	"testing"

	"github.com/KevinKickass/OpenFieldSim/internal/control"
	"github.com/KevinKickass/OpenFieldSim/internal/registers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func soc(v float64) *float64 { return &v }

func TestWallboxInitialRegisters(t *testing.T) {
	_, store := newWallbox(t, 1, nil)

	assert.Equal(t, registers.RemoteAcknowledge, readCell(t, store, registers.WallboxRemoteControl))
	assert.Equal(t, uint16(ChargeStateReady), readCell(t, store, registers.WallboxState))
	assert.Equal(t, uint16(30), readCell(t, store, registers.WallboxSoC))
	assert.Equal(t, uint16(1), readCell(t, store, registers.WallboxCarConnected))
}

func TestStartChargingRaisesLowSoC(t *testing.T) {
	plane := control.NewPlane(zap.NewNop())
	e, store := newWallbox(t, 1, func(p *WallboxParams) { p.InitialSoC = 10 })
	plane.Register(e.Key())

	stepWith(t, plane, e, 1, testStart, control.ActionStartCharging, nil)

	entry := e.Snapshot()
	assert.Equal(t, "Charging", entry.State)
	assert.Equal(t, 20.0, entry.Values["soc"])
	assert.Equal(t, 0.0, entry.Values["charged_energy"])

	assert.Equal(t, uint16(ChargeStateCharging), readCell(t, store, registers.WallboxState))
	assert.Equal(t, uint16(20), readCell(t, store, registers.WallboxSoC))
	assert.Equal(t, 0.0, fieldValue(t, store, registers.WallboxMap, "charged_energy"))
}

func TestStartChargingKeepsHigherSoC(t *testing.T) {
	plane := control.NewPlane(zap.NewNop())
	e, _ := newWallbox(t, 1, func(p *WallboxParams) { p.InitialSoC = 55 })
	plane.Register(e.Key())

	stepWith(t, plane, e, 1, testStart, control.ActionStartCharging, nil)
	assert.Equal(t, 55.0, e.Snapshot().Values["soc"])
}

func TestStartChargingWithoutVehicle(t *testing.T) {
	plane := control.NewPlane(zap.NewNop())
	e, store := newWallbox(t, 2, func(p *WallboxParams) { p.InitiallyConnected = false })
	plane.Register(e.Key())

	stepWith(t, plane, e, 1, testStart, control.ActionStartCharging, nil)

	assert.Equal(t, ChargeStateReady, e.State())
	assert.Equal(t, FaultNoVehicle, e.Snapshot().FaultCode)
	assert.Equal(t, uint16(FaultNoVehicle), readCell(t, store, registers.WallboxFaultCode))

	stepWith(t, plane, e, 1, testStart, control.ActionToggleConnection, nil)
	assert.Equal(t, FaultNone, e.Snapshot().FaultCode)
	assert.Equal(t, uint16(1), readCell(t, store, registers.WallboxCarConnected))

	stepWith(t, plane, e, 1, testStart, control.ActionStartCharging, nil)
	assert.Equal(t, ChargeStateCharging, e.State())
}

func TestDoublingSpeedDoublesEnergyDelta(t *testing.T) {
	plane := control.NewPlane(zap.NewNop())
	slow, _ := newWallbox(t, 1, nil)
	fast, _ := newWallbox(t, 2, nil)
	plane.Register(slow.Key())
	plane.Register(fast.Key())

	stepWith(t, plane, slow, 1, testStart, control.ActionStartCharging, nil)
	stepWith(t, plane, fast, 2, testStart, control.ActionStartCharging, nil)

	stepWith(t, plane, slow, 1, testStart, "", nil)
	stepWith(t, plane, fast, 2, testStart, "", nil)

	slowDelta := slow.Snapshot().Values["charged_energy"]
	fastDelta := fast.Snapshot().Values["charged_energy"]

	require.Greater(t, slowDelta, 0.0)
	assert.InDelta(t, 11000*2.0/3600, slowDelta, 1e-9)
	assert.InDelta(t, 2*slowDelta, fastDelta, 1e-9)
	assert.Equal(t, 11000.0, slow.Snapshot().Power)
	assert.Equal(t, 11000.0, fast.Snapshot().Power)
}

func TestChargingCompletesAtFull(t *testing.T) {
	plane := control.NewPlane(zap.NewNop())
	e, store := newWallbox(t, 1, func(p *WallboxParams) {
		p.InitialSoC = 99
		p.BatteryCapacity = 500
	})
	plane.Register(e.Key())

	stepWith(t, plane, e, 1, testStart, control.ActionStartCharging, nil)
	stepWith(t, plane, e, 10, testStart, "", nil)

	assert.Equal(t, ChargeStateReady, e.State())
	assert.Equal(t, 100.0, e.Snapshot().Values["soc"])
	assert.Zero(t, e.Snapshot().Power)
	assert.Equal(t, uint16(100), readCell(t, store, registers.WallboxSoC))
}

func TestDisconnectStopsCharging(t *testing.T) {
	plane := control.NewPlane(zap.NewNop())
	e, _ := newWallbox(t, 1, nil)
	plane.Register(e.Key())

	stepWith(t, plane, e, 1, testStart, control.ActionStartCharging, nil)
	stepWith(t, plane, e, 1, testStart, control.ActionToggleConnection, nil)

	assert.Equal(t, ChargeStateReady, e.State())
	assert.Zero(t, e.Snapshot().Power)
}

func TestInjectAndResetFault(t *testing.T) {
	plane := control.NewPlane(zap.NewNop())
	e, store := newWallbox(t, 1, nil)
	plane.Register(e.Key())

	stepWith(t, plane, e, 1, testStart, control.ActionStartCharging, nil)
	stepWith(t, plane, e, 1, testStart, control.ActionInjectFault, nil)

	assert.Equal(t, ChargeStateFault, e.State())
	assert.Zero(t, e.Snapshot().Power)
	assert.Equal(t, uint16(FaultCharge), readCell(t, store, registers.WallboxFaultCode))
	assert.Equal(t, uint16(0), readCell(t, store, registers.WallboxChargingPower))

	stepWith(t, plane, e, 1, testStart, control.ActionStartCharging, nil)
	assert.Equal(t, ChargeStateFault, e.State(), "start must not leave fault")

	stepWith(t, plane, e, 1, testStart, control.ActionResetFault, nil)
	assert.Equal(t, ChargeStateReady, e.State())
	assert.Equal(t, FaultNone, e.Snapshot().FaultCode)
}

func TestResetRegisterClearsFault(t *testing.T) {
	plane := control.NewPlane(zap.NewNop())
	e, store := newWallbox(t, 1, nil)
	plane.Register(e.Key())

	stepWith(t, plane, e, 1, testStart, control.ActionInjectFault, nil)
	require.NoError(t, store.Write(registers.WallboxResetCommand, registers.ResetRequested))
	stepWith(t, plane, e, 1, testStart, "", nil)

	assert.Equal(t, ChargeStateReady, e.State())
	assert.Equal(t, registers.ResetIdle, readCell(t, store, registers.WallboxResetCommand))
}

func TestSetSoCOnlyInReady(t *testing.T) {
	plane := control.NewPlane(zap.NewNop())
	e, _ := newWallbox(t, 1, nil)
	plane.Register(e.Key())

	stepWith(t, plane, e, 1, testStart, control.ActionSetSoC, soc(75))
	assert.Equal(t, 75.0, e.Snapshot().Values["soc"])

	stepWith(t, plane, e, 1, testStart, control.ActionStartCharging, nil)
	stepWith(t, plane, e, 1, testStart, control.ActionSetSoC, soc(5))
	assert.Greater(t, e.Snapshot().Values["soc"], 75.0)
}

func TestRemoteRegisterStartStop(t *testing.T) {
	plane := control.NewPlane(zap.NewNop())
	e, store := newWallbox(t, 1, nil)
	plane.Register(e.Key())

	require.NoError(t, store.Write(registers.WallboxRemoteControl, registers.RemoteStart))
	stepWith(t, plane, e, 1, testStart, "", nil)
	assert.Equal(t, ChargeStateCharging, e.State())
	assert.Equal(t, registers.RemoteAcknowledge, readCell(t, store, registers.WallboxRemoteControl))

	// the acknowledge value itself is not a command
	stepWith(t, plane, e, 1, testStart, "", nil)
	assert.Equal(t, ChargeStateCharging, e.State())

	require.NoError(t, store.Write(registers.WallboxRemoteControl, registers.RemoteStop))
	stepWith(t, plane, e, 1, testStart, "", nil)
	assert.Equal(t, ChargeStateReady, e.State())
	assert.Equal(t, registers.RemoteAcknowledge, readCell(t, store, registers.WallboxRemoteControl))
}

func TestRegisterCommandAppliedBeforeOperatorCommand(t *testing.T) {
	plane := control.NewPlane(zap.NewNop())
	e, store := newWallbox(t, 1, nil)
	plane.Register(e.Key())

	require.NoError(t, store.Write(registers.WallboxRemoteControl, registers.RemoteStart))
	stepWith(t, plane, e, 1, testStart, control.ActionStopCharging, nil)

	assert.Equal(t, ChargeStateReady, e.State())
	assert.Equal(t, registers.RemoteAcknowledge, readCell(t, store, registers.WallboxRemoteControl))
}

func TestSoCStaysInBounds(t *testing.T) {
	plane := control.NewPlane(zap.NewNop())
	e, store := newWallbox(t, 1, func(p *WallboxParams) {
		p.BatteryCapacity = 200
		p.PowerJitter = 0.05
	})
	plane.Register(e.Key())
	rng := testRand(7)

	actions := []control.Action{
		"", "",
		control.ActionStartCharging,
		control.ActionStopCharging,
		control.ActionSetSoC,
		control.ActionInjectFault,
		control.ActionResetFault,
		control.ActionToggleConnection,
	}

	for i := 0; i < 1000; i++ {
		action := actions[rng.IntN(len(actions))]
		var value *float64
		if action == control.ActionSetSoC {
			value = soc(rng.Float64() * 100)
		}
		stepWith(t, plane, e, 0.1+rng.Float64()*9.9, testStart, action, value)

		entry := e.Snapshot()
		require.GreaterOrEqual(t, entry.Values["soc"], 0.0)
		require.LessOrEqual(t, entry.Values["soc"], 100.0)
		require.LessOrEqual(t, readCell(t, store, registers.WallboxSoC), uint16(100))
		if e.State() == ChargeStateFault {
			require.Zero(t, entry.Power)
			require.Equal(t, uint16(0), readCell(t, store, registers.WallboxChargingPower))
		}
	}
}
