package control

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/KevinKickass/OpenFieldSim/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Plane is the single owner of pending operator commands and the global
// simulation speed. Engines drain their own slot once per tick; the operator
// surfaces submit into it. All access goes through mu.
type Plane struct {
	mu      sync.Mutex
	devices map[types.DeviceKey]struct{}
	pending map[types.DeviceKey]Command
	speed   float64
	logger  *zap.Logger
	now     func() time.Time
}

func NewPlane(logger *zap.Logger) *Plane {
	return &Plane{
		devices: make(map[types.DeviceKey]struct{}),
		pending: make(map[types.DeviceKey]Command),
		speed:   DefaultSpeed,
		logger:  logger,
		now:     time.Now,
	}
}

// Register makes a device known to the plane. Commands for unregistered keys
// are rejected.
func (p *Plane) Register(key types.DeviceKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.devices[key] = struct{}{}
}

func (p *Plane) Registered(key types.DeviceKey) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.devices[key]
	return ok
}

// Submit records a command for the device, replacing any command that has not
// been consumed yet. value is only meaningful for set_soc.
func (p *Plane) Submit(key types.DeviceKey, action Action, value *float64) (Command, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.devices[key]; !ok {
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownDevice, key)
	}

	if err := validate(key.Kind, action, value); err != nil {
		return Command{}, err
	}

	cmd := Command{
		ID:          uuid.New(),
		Device:      key,
		Action:      action,
		SubmittedAt: p.now(),
	}
	if value != nil {
		cmd.Value = *value
		cmd.HasValue = true
	}

	if prev, overwritten := p.pending[key]; overwritten {
		p.logger.Info("Pending command replaced",
			zap.String("device", key.String()),
			zap.String("previous", string(prev.Action)),
			zap.String("action", string(action)))
	}
	p.pending[key] = cmd

	return cmd, nil
}

// Consume fetches and clears the pending command for the device.
func (p *Plane) Consume(key types.DeviceKey) (Command, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cmd, ok := p.pending[key]
	if ok {
		delete(p.pending, key)
	}
	return cmd, ok
}

// Pending returns the pending command without consuming it.
func (p *Plane) Pending(key types.DeviceKey) (Command, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cmd, ok := p.pending[key]
	return cmd, ok
}

func (p *Plane) SetSpeed(speed float64) error {
	if math.IsNaN(speed) || speed < MinSpeed || speed > MaxSpeed {
		return fmt.Errorf("%w: speed %.2f not in [%.1f, %.1f]", ErrOutOfRange, speed, MinSpeed, MaxSpeed)
	}

	p.mu.Lock()
	previous := p.speed
	p.speed = speed
	p.mu.Unlock()

	p.logger.Info("Simulation speed changed",
		zap.Float64("speed", speed),
		zap.Float64("previous", previous))

	return nil
}

func (p *Plane) Speed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}
