package devices

import (
	"context"

	"github.com/KevinKickass/OpenFieldSim/internal/control"
	"github.com/KevinKickass/OpenFieldSim/internal/storage"
	"github.com/KevinKickass/OpenFieldSim/internal/types"
	"go.uber.org/zap"
)

// CommandObserver is notified about every submission, accepted or not.
type CommandObserver interface {
	ObserveCommand(key types.DeviceKey, action control.Action, err error)
}

// CommandRequest is an operator command as received from REST or MQTT.
type CommandRequest struct {
	Device   types.DeviceKey
	Action   control.Action
	Value    *float64
	Source   string
	Operator string
}

// SetJournal replaces the default in-memory journal.
func (m *Manager) SetJournal(j storage.Journal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal = j
}

func (m *Manager) Journal() storage.Journal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.journal
}

func (m *Manager) SetCommandObserver(o CommandObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cmdObs = o
}

// SubmitCommand hands the request to the control plane and journals it once
// accepted. A journal failure is logged but does not reject the command: the
// plane has already recorded it.
func (m *Manager) SubmitCommand(ctx context.Context, req CommandRequest) (control.Command, error) {
	cmd, err := m.plane.Submit(req.Device, req.Action, req.Value)

	m.mu.RLock()
	journal, obs := m.journal, m.cmdObs
	m.mu.RUnlock()

	if obs != nil {
		obs.ObserveCommand(req.Device, req.Action, err)
	}
	if err != nil {
		m.logger.Warn("Command rejected",
			zap.String("device", req.Device.String()),
			zap.String("action", string(req.Action)),
			zap.String("source", req.Source),
			zap.Error(err))
		return control.Command{}, err
	}

	if jerr := journal.Record(ctx, storage.EntryFromCommand(cmd, req.Source, req.Operator)); jerr != nil {
		m.logger.Error("Failed to journal command",
			zap.String("command_id", cmd.ID.String()),
			zap.Error(jerr))
	}

	return cmd, nil
}

// Plane exposes the control plane for speed control.
func (m *Manager) Plane() *control.Plane { return m.plane }
