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

// PVParams configures the inverter model. Zero values are not valid; start
// from DefaultPVParams.
type PVParams struct {
	TickInterval     time.Duration
	PeakPower        float64 // W (DC side)
	Efficiency       float64
	NominalVoltage   float64
	NominalFrequency float64
	DCNominalVoltage float64
	FeedingThreshold float64 // W
	PFThreshold      float64 // VA
	VoltageJitter    float64 // V
	PowerJitter      float64 // relative, per phase
}

func DefaultPVParams() PVParams {
	return PVParams{
		TickInterval:     2 * time.Second,
		PeakPower:        10000,
		Efficiency:       0.97,
		NominalVoltage:   230,
		NominalFrequency: 50,
		DCNominalVoltage: 600,
		FeedingThreshold: 10,
		PFThreshold:      1000,
		VoltageJitter:    0.5,
		PowerJitter:      0.01,
	}
}

type pvReading struct {
	voltage     [3]float64
	current     [3]float64
	active      float64
	reactive    float64
	apparent    float64
	powerFactor float64
	frequency   float64
	dcVoltage   float64
	dcCurrent   float64
	dcPower     float64
	temperature float64
}

// PVEngine simulates a three-phase solar inverter.
type PVEngine struct {
	key    types.DeviceKey
	store  *registers.Store
	params PVParams
	rng    *rand.Rand
	logger *zap.Logger

	phase         float64
	dailyYield    float64 // Wh
	totalYield    float64 // kWh
	fault         bool
	state         PVState
	lastFaultCode int
	resetDay      day
	dayKnown      bool

	reading   pvReading
	updatedAt time.Time
}

func NewPVEngine(id int, store *registers.Store, params PVParams, rng *rand.Rand, logger *zap.Logger) *PVEngine {
	return &PVEngine{
		key:    types.DeviceKey{Kind: types.DeviceKindPV, ID: id},
		store:  store,
		params: params,
		rng:    rng,
		logger: logger.With(zap.String("kind", string(types.DeviceKindPV)), zap.Int("device_id", id)),
		phase:  math.Mod(float64(id)*30, 360),
		state:  PVStateOff,
	}
}

func (e *PVEngine) Key() types.DeviceKey { return e.key }

func (e *PVEngine) State() PVState { return e.state }

func (e *PVEngine) Step(cmd *control.Command, speed float64, now time.Time) error {
	if err := e.checkResetRegister(); err != nil {
		return err
	}
	if cmd != nil {
		e.apply(*cmd)
	}

	e.rollDay(now)

	var r pvReading
	if e.fault {
		r = e.faultReading()
		e.state = PVStateFault
	} else {
		r = e.model()
		if r.active > e.params.FeedingThreshold {
			e.state = PVStateFeeding
		} else {
			e.state = PVStateStandby
		}
	}

	energy := r.active * e.params.TickInterval.Seconds() / 3600
	e.dailyYield += energy
	e.totalYield += energy / 1000

	e.phase = math.Mod(e.phase+speed, 360)
	if e.phase < 0 {
		e.phase += 360
	}

	e.reading = r
	e.updatedAt = now

	if err := emit(e.store, registers.PVMap, e.values()); err != nil {
		return fmt.Errorf("pv %d: %w", e.key.ID, err)
	}
	return nil
}

func (e *PVEngine) checkResetRegister() error {
	v, err := e.store.ReadOne(registers.PVResetCommand)
	if err != nil {
		return fmt.Errorf("read reset register: %w", err)
	}
	if v != registers.ResetRequested {
		return nil
	}

	e.clearFault("register")
	if err := e.store.Write(registers.PVResetCommand, registers.ResetIdle); err != nil {
		return fmt.Errorf("acknowledge reset register: %w", err)
	}
	return nil
}

func (e *PVEngine) apply(cmd control.Command) {
	switch cmd.Action {
	case control.ActionResetFault:
		e.clearFault("operator")
	case control.ActionInjectFault:
		e.fault = true
		e.lastFaultCode = FaultInverter
		e.logger.Info("Fault injected", zap.Int("fault_code", FaultInverter))
	default:
		e.logger.Warn("Command ignored", zap.String("action", string(cmd.Action)))
	}
}

func (e *PVEngine) clearFault(source string) {
	if e.fault {
		e.logger.Info("Fault reset", zap.String("source", source))
	}
	e.fault = false
}

func (e *PVEngine) rollDay(now time.Time) {
	today := dayOf(now)
	if !e.dayKnown {
		e.resetDay = today
		e.dayKnown = true
		return
	}
	if today != e.resetDay {
		e.logger.Info("Daily yield reset",
			zap.Float64("previous_wh", e.dailyYield))
		e.dailyYield = 0
		e.resetDay = today
	}
}

func (e *PVEngine) model() pvReading {
	p := e.params
	var r pvReading

	sine := (math.Sin(e.phase*math.Pi/180) + 1) / 2

	r.dcVoltage = p.DCNominalVoltage*(0.85+0.15*sine) + jitter(e.rng, 2)
	r.dcCurrent = p.PeakPower*sine/r.dcVoltage + jitter(e.rng, 0.05)
	if r.dcCurrent < 0.1 {
		r.dcCurrent = 0
	}
	r.dcPower = r.dcVoltage * r.dcCurrent

	acPotential := r.dcPower * p.Efficiency
	offset := float64(e.key.ID%5-2) * 0.1

	for i := range r.voltage {
		r.voltage[i] = p.NominalVoltage + offset + jitter(e.rng, p.VoltageJitter)
		share := acPotential / 3 * (1 + jitter(e.rng, p.PowerJitter))
		r.current[i] = share / r.voltage[i]
		r.apparent += r.voltage[i] * r.current[i]
	}

	if r.apparent > p.PFThreshold {
		r.powerFactor = uniform(e.rng, 0.98, 1.0)
	} else {
		r.powerFactor = uniform(e.rng, 0.85, 0.95)
	}

	r.active = r.apparent * r.powerFactor
	if r.apparent > r.active {
		r.reactive = math.Sqrt(r.apparent*r.apparent - r.active*r.active)
	}

	r.frequency = p.NominalFrequency + jitter(e.rng, 0.02)
	r.temperature = 25 + r.active/1000*2.5 + jitter(e.rng, 0.5)

	return r
}

func (e *PVEngine) faultReading() pvReading {
	r := pvReading{
		frequency:   e.params.NominalFrequency,
		temperature: 25 + jitter(e.rng, 0.5),
	}
	for i := range r.voltage {
		r.voltage[i] = e.params.NominalVoltage
	}
	return r
}

func (e *PVEngine) activeFaultCode() int {
	if e.fault {
		return FaultInverter
	}
	return FaultNone
}

func (e *PVEngine) values() map[string]float64 {
	r := e.reading
	return map[string]float64{
		"ac_voltage_l1":   r.voltage[0],
		"ac_voltage_l2":   r.voltage[1],
		"ac_voltage_l3":   r.voltage[2],
		"ac_current_l1":   r.current[0],
		"ac_current_l2":   r.current[1],
		"ac_current_l3":   r.current[2],
		"active_power":    r.active,
		"reactive_power":  r.reactive,
		"apparent_power":  r.apparent,
		"power_factor":    r.powerFactor,
		"frequency":       r.frequency,
		"daily_yield":     e.dailyYield,
		"total_yield":     e.totalYield,
		"dc_voltage":      r.dcVoltage,
		"dc_current":      r.dcCurrent,
		"dc_power":        r.dcPower,
		"operating_state": float64(e.state),
		"temperature":     r.temperature,
		"fault_code":      float64(e.activeFaultCode()),
	}
}

func (e *PVEngine) Snapshot() snapshot.Entry {
	values := e.values()
	values["phase"] = e.phase
	values["last_fault_code"] = float64(e.lastFaultCode)

	return snapshot.Entry{
		Key:       e.key,
		State:     e.state.String(),
		Power:     e.reading.active,
		FaultCode: e.activeFaultCode(),
		Values:    values,
		UpdatedAt: e.updatedAt,
	}
}
