package storage

import (
	"time"

	"github.com/KevinKickass/OpenFieldSim/internal/control"
	"github.com/KevinKickass/OpenFieldSim/internal/types"
	"github.com/google/uuid"
)

// Command sources recorded in the journal.
const (
	SourceREST = "rest"
	SourceMQTT = "mqtt"
)

// JournalEntry is one accepted operator command. Only commands that the
// control plane accepted are recorded, simulation state is never persisted.
type JournalEntry struct {
	ID          uuid.UUID       `json:"id"`
	Device      types.DeviceKey `json:"device"`
	Action      control.Action  `json:"action"`
	Value       *float64        `json:"value,omitempty"`
	Source      string          `json:"source"`
	Operator    string          `json:"operator,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// EntryFromCommand builds a journal entry for an accepted command.
func EntryFromCommand(cmd control.Command, source, operator string) JournalEntry {
	e := JournalEntry{
		ID:          cmd.ID,
		Device:      cmd.Device,
		Action:      cmd.Action,
		Source:      source,
		Operator:    operator,
		SubmittedAt: cmd.SubmittedAt,
	}
	if cmd.HasValue {
		v := cmd.Value
		e.Value = &v
	}
	return e
}
