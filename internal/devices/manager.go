package devices

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/KevinKickass/OpenFieldSim/internal/config"
	"github.com/KevinKickass/OpenFieldSim/internal/control"
	"github.com/KevinKickass/OpenFieldSim/internal/modbus"
	"github.com/KevinKickass/OpenFieldSim/internal/registers"
	"github.com/KevinKickass/OpenFieldSim/internal/sim"
	"github.com/KevinKickass/OpenFieldSim/internal/snapshot"
	"github.com/KevinKickass/OpenFieldSim/internal/storage"
	"github.com/KevinKickass/OpenFieldSim/internal/types"
	"go.uber.org/zap"
)

var ErrDeviceNotFound = errors.New("device not found")

type Manager struct {
	devices map[types.DeviceKey]*Device
	plane   *control.Plane
	mu      sync.RWMutex
	logger  *zap.Logger

	journal storage.Journal
	cmdObs  CommandObserver
}

// NewManager builds every device of the configured fleet and registers it
// with the control plane. Nothing runs until StartAll.
func NewManager(cfg *config.Config, plane *control.Plane, exporter *snapshot.Exporter, logger *zap.Logger) (*Manager, error) {
	fleet, err := cfg.Fleet.Resolve()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve fleet: %w", err)
	}

	m := &Manager{
		devices: make(map[types.DeviceKey]*Device, len(fleet)),
		plane:   plane,
		logger:  logger,
		journal: storage.NewMemoryJournal(storage.DefaultListLimit),
	}

	for _, dc := range fleet {
		device, err := m.buildDevice(cfg, dc, exporter)
		if err != nil {
			return nil, err
		}
		m.devices[device.Key] = device
		plane.Register(device.Key)
	}

	logger.Info("Fleet created", zap.Int("devices", len(m.devices)))

	return m, nil
}

func (m *Manager) buildDevice(cfg *config.Config, dc config.DeviceConfig, exporter *snapshot.Exporter) (*Device, error) {
	store := registers.NewStore(cfg.Modbus.RegisterCount)
	rng := newRand(cfg.Simulation.Seed, dc.Key())

	var engine sim.Engine
	switch dc.Kind {
	case types.DeviceKindPV:
		engine = sim.NewPVEngine(dc.ID, store, pvParams(cfg), rng, m.logger)
	case types.DeviceKindWallbox:
		wb, err := sim.NewWallboxEngine(dc.ID, store, wallboxParams(cfg), rng, m.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create device %s: %w", dc.Key(), err)
		}
		engine = wb
	default:
		return nil, fmt.Errorf("unsupported device kind: %s", dc.Kind)
	}

	worker := sim.NewWorker(engine, m.plane, exporter, sim.WorkerConfig{
		Address:       dc.Address,
		TickInterval:  cfg.Simulation.TickInterval,
		ErrorCooldown: cfg.Simulation.ErrorCooldown,
	}, m.logger)

	return &Device{
		Key:     dc.Key(),
		Address: dc.Address,
		Store:   store,
		Engine:  engine,
		Worker:  worker,
		Server:  modbus.NewServer(dc.Address, store, m.logger),
	}, nil
}

// newRand derives a per-device generator. A zero seed draws from the
// runtime's random source.
func newRand(seed uint64, key types.DeviceKey) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	stream := uint64(key.ID)
	if key.Kind == types.DeviceKindWallbox {
		stream |= 1 << 32
	}
	return rand.New(rand.NewPCG(seed, stream))
}

func pvParams(cfg *config.Config) sim.PVParams {
	return sim.PVParams{
		TickInterval:     cfg.Simulation.TickInterval,
		PeakPower:        cfg.PV.PeakPower,
		Efficiency:       cfg.PV.Efficiency,
		NominalVoltage:   cfg.PV.NominalVoltage,
		NominalFrequency: cfg.PV.NominalFrequency,
		DCNominalVoltage: cfg.PV.DCNominalVoltage,
		FeedingThreshold: cfg.PV.FeedingThreshold,
		PFThreshold:      cfg.PV.PFThreshold,
		VoltageJitter:    cfg.PV.VoltageJitter,
		PowerJitter:      cfg.PV.PowerJitter,
	}
}

func wallboxParams(cfg *config.Config) sim.WallboxParams {
	return sim.WallboxParams{
		TickInterval:       cfg.Simulation.TickInterval,
		NominalPower:       cfg.Wallbox.NominalPower,
		PowerJitter:        cfg.Wallbox.PowerJitter,
		BatteryCapacity:    cfg.Wallbox.BatteryCapacity,
		BaselineSpeed:      cfg.Simulation.BaselineSpeed,
		InitialSoC:         cfg.Wallbox.InitialSoC,
		InitiallyConnected: cfg.Wallbox.InitiallyConnected,
		MinStartSoC:        cfg.Wallbox.MinStartSoC,
	}
}

// SetObserver attaches o to every worker. Call before StartAll.
func (m *Manager) SetObserver(o sim.TickObserver) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, d := range m.devices {
		d.Worker.SetObserver(o)
	}
}

// StartAll starts the Modbus slave and the worker of every device. A device
// whose address cannot be bound keeps simulating without a server.
func (m *Manager) StartAll() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	failed := 0
	for _, d := range m.sorted() {
		if err := d.Server.Start(); err != nil {
			failed++
			m.logger.Error("Failed to start Modbus server",
				zap.String("device", d.Key.String()),
				zap.Error(err))
		}
		d.Worker.Start()
	}

	if failed > 0 && failed == len(m.devices) {
		return fmt.Errorf("no Modbus server could be started (%d devices)", failed)
	}
	return nil
}

// StopAll stops all workers and Modbus servers
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.RLock()
	devices := m.sorted()
	m.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, d := range devices {
			wg.Add(1)
			go func(d *Device) {
				defer wg.Done()
				d.Worker.Stop()
				d.Server.Stop()
			}(d)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All devices stopped", zap.Int("devices", len(devices)))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stopping devices: %w", ctx.Err())
	}
}

// GetDevice returns device by key
func (m *Manager) GetDevice(key types.DeviceKey) (*Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	device, exists := m.devices[key]
	return device, exists
}

// ReadRegisters returns raw cells of a device store, as the fieldbus master
// would see them.
func (m *Manager) ReadRegisters(key types.DeviceKey, start, count uint16) ([]uint16, error) {
	device, ok := m.GetDevice(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, key)
	}
	return device.Store.Read(start, count)
}

// ListDevices returns runtime info ordered by kind, then id.
func (m *Manager) ListDevices() []types.DeviceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sorted := m.sorted()
	infos := make([]types.DeviceInfo, 0, len(sorted))
	for _, d := range sorted {
		infos = append(infos, d.Info())
	}
	return infos
}

func (m *Manager) sorted() []*Device {
	devices := make([]*Device, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Key.Less(devices[j].Key)
	})
	return devices
}
