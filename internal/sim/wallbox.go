package sim

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/KevinKickass/OpenFieldSim/internal/control"
	"github.com/KevinKickass/OpenFieldSim/internal/registers"
	"github.com/KevinKickass/OpenFieldSim/internal/snapshot"
	"github.com/KevinKickass/OpenFieldSim/internal/types"
	"go.uber.org/zap"
)

type WallboxParams struct {
	TickInterval       time.Duration
	NominalPower       float64 // W
	PowerJitter        float64 // relative
	BatteryCapacity    float64 // Wh
	BaselineSpeed      float64
	InitialSoC         float64
	InitiallyConnected bool
	MinStartSoC        float64
}

func DefaultWallboxParams() WallboxParams {
	return WallboxParams{
		TickInterval:       2 * time.Second,
		NominalPower:       11000,
		PowerJitter:        0.01,
		BatteryCapacity:    60000,
		BaselineSpeed:      1.0,
		InitialSoC:         30,
		InitiallyConnected: true,
		MinStartSoC:        20,
	}
}

// WallboxEngine simulates an EV charger with an attached vehicle.
type WallboxEngine struct {
	key    types.DeviceKey
	store  *registers.Store
	params WallboxParams
	rng    *rand.Rand
	logger *zap.Logger

	state         ChargeState
	soc           float64
	chargedEnergy float64 // Wh, current session
	connected     bool
	faultCode     int
	power         float64

	// set when a session was started during the current tick
	sessionStarted bool
	updatedAt      time.Time
}

// NewWallboxEngine prepares the register map, including the acknowledge value
// in the remote control register, so a zeroed store is not read as a stop
// request.
func NewWallboxEngine(id int, store *registers.Store, params WallboxParams, rng *rand.Rand, logger *zap.Logger) (*WallboxEngine, error) {
	e := &WallboxEngine{
		key:       types.DeviceKey{Kind: types.DeviceKindWallbox, ID: id},
		store:     store,
		params:    params,
		rng:       rng,
		logger:    logger.With(zap.String("kind", string(types.DeviceKindWallbox)), zap.Int("device_id", id)),
		state:     ChargeStateReady,
		soc:       clampSoC(params.InitialSoC),
		connected: params.InitiallyConnected,
	}

	if err := store.Write(registers.WallboxRemoteControl, registers.RemoteAcknowledge); err != nil {
		return nil, fmt.Errorf("wallbox %d: init remote control register: %w", id, err)
	}
	if err := emit(store, registers.WallboxMap, e.values()); err != nil {
		return nil, fmt.Errorf("wallbox %d: %w", id, err)
	}

	return e, nil
}

func (e *WallboxEngine) Key() types.DeviceKey { return e.key }

func (e *WallboxEngine) State() ChargeState { return e.state }

func (e *WallboxEngine) Step(cmd *control.Command, speed float64, now time.Time) error {
	e.sessionStarted = false

	if err := e.checkResetRegister(); err != nil {
		return err
	}
	if err := e.checkRemoteRegister(); err != nil {
		return err
	}
	if cmd != nil {
		e.apply(*cmd)
	}

	if e.state == ChargeStateCharging && !e.connected {
		e.state = ChargeStateReady
		e.logger.Info("Vehicle disconnected, charging stopped")
	}

	e.power = 0
	if e.state == ChargeStateCharging && !e.sessionStarted {
		e.charge(speed)
	}

	e.updatedAt = now

	if err := emit(e.store, registers.WallboxMap, e.values()); err != nil {
		return fmt.Errorf("wallbox %d: %w", e.key.ID, err)
	}
	return nil
}

func (e *WallboxEngine) checkResetRegister() error {
	v, err := e.store.ReadOne(registers.WallboxResetCommand)
	if err != nil {
		return fmt.Errorf("read reset register: %w", err)
	}
	if v != registers.ResetRequested {
		return nil
	}

	e.resetFault("register")
	if err := e.store.Write(registers.WallboxResetCommand, registers.ResetIdle); err != nil {
		return fmt.Errorf("acknowledge reset register: %w", err)
	}
	return nil
}

// checkRemoteRegister handles start/stop written by the fieldbus master and
// acknowledges it by writing RemoteAcknowledge back.
func (e *WallboxEngine) checkRemoteRegister() error {
	v, err := e.store.ReadOne(registers.WallboxRemoteControl)
	if err != nil {
		return fmt.Errorf("read remote control register: %w", err)
	}

	switch v {
	case registers.RemoteStart:
		e.startCharging("register")
	case registers.RemoteStop:
		e.stopCharging("register")
	default:
		return nil
	}

	if err := e.store.Write(registers.WallboxRemoteControl, registers.RemoteAcknowledge); err != nil {
		return fmt.Errorf("acknowledge remote control register: %w", err)
	}
	return nil
}

func (e *WallboxEngine) apply(cmd control.Command) {
	switch cmd.Action {
	case control.ActionStartCharging:
		e.startCharging("operator")
	case control.ActionStopCharging:
		e.stopCharging("operator")
	case control.ActionSetSoC:
		e.setSoC(cmd.Value)
	case control.ActionInjectFault:
		e.state = ChargeStateFault
		e.faultCode = FaultCharge
		e.logger.Info("Fault injected", zap.Int("fault_code", FaultCharge))
	case control.ActionResetFault:
		e.resetFault("operator")
	case control.ActionToggleConnection:
		e.connected = !e.connected
		if e.connected && e.faultCode == FaultNoVehicle {
			e.faultCode = FaultNone
		}
		e.logger.Info("Vehicle connection toggled", zap.Bool("connected", e.connected))
	default:
		e.logger.Warn("Command ignored", zap.String("action", string(cmd.Action)))
	}
}

func (e *WallboxEngine) startCharging(source string) {
	switch {
	case e.state == ChargeStateFault:
		e.logger.Warn("Start rejected in fault state", zap.String("source", source))
	case !e.connected:
		e.faultCode = FaultNoVehicle
		e.logger.Warn("Start rejected, no vehicle connected", zap.String("source", source))
	case e.state == ChargeStateCharging:
		// already running
	default:
		if e.soc < e.params.MinStartSoC {
			e.soc = e.params.MinStartSoC
		}
		e.chargedEnergy = 0
		if e.faultCode == FaultNoVehicle {
			e.faultCode = FaultNone
		}
		e.state = ChargeStateCharging
		e.sessionStarted = true
		e.logger.Info("Charging started",
			zap.String("source", source),
			zap.Float64("soc", e.soc))
	}
}

func (e *WallboxEngine) stopCharging(source string) {
	if e.state != ChargeStateCharging {
		return
	}
	e.state = ChargeStateReady
	e.logger.Info("Charging stopped",
		zap.String("source", source),
		zap.Float64("charged_wh", e.chargedEnergy))
}

func (e *WallboxEngine) setSoC(value float64) {
	if e.state != ChargeStateReady {
		e.logger.Warn("set_soc ignored outside Ready",
			zap.String("state", e.state.String()),
			zap.Float64("value", value))
		return
	}
	e.soc = clampSoC(value)
}

func (e *WallboxEngine) resetFault(source string) {
	if e.state != ChargeStateFault {
		return
	}
	e.state = ChargeStateReady
	e.faultCode = FaultNone
	e.logger.Info("Fault reset", zap.String("source", source))
}

func (e *WallboxEngine) charge(speed float64) {
	p := e.params
	power := p.NominalPower * (1 + jitter(e.rng, p.PowerJitter))

	baseline := p.BaselineSpeed
	if baseline <= 0 {
		baseline = 1
	}
	energy := power * p.TickInterval.Seconds() / 3600 * (speed / baseline)

	e.chargedEnergy += energy
	e.soc = clampSoC(e.soc + energy/p.BatteryCapacity*100)
	e.power = power

	if e.soc >= 100 {
		e.state = ChargeStateReady
		e.power = 0
		e.logger.Info("Charging complete", zap.Float64("charged_wh", e.chargedEnergy))
	}
}

func clampSoC(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

func (e *WallboxEngine) values() map[string]float64 {
	connected := 0.0
	if e.connected {
		connected = 1
	}
	return map[string]float64{
		"state":          float64(e.state),
		"charging_power": e.power,
		"soc":            e.soc,
		"charged_energy": e.chargedEnergy,
		"fault_code":     float64(e.faultCode),
		"car_connected":  connected,
	}
}

func (e *WallboxEngine) Snapshot() snapshot.Entry {
	return snapshot.Entry{
		Key:       e.key,
		State:     e.state.String(),
		Power:     e.power,
		FaultCode: e.faultCode,
		Values:    e.values(),
		UpdatedAt: e.updatedAt,
	}
}
