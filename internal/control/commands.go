package control

import (
	"errors"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenFieldSim/internal/types"
	"github.com/google/uuid"
)

var (
	ErrUnknownDevice = errors.New("unknown device")
	ErrOutOfRange    = errors.New("value out of range")
	ErrMalformed     = errors.New("malformed command")
)

type Action string

const (
	ActionStartCharging    Action = "start_charging"
	ActionStopCharging     Action = "stop_charging"
	ActionSetSoC           Action = "set_soc"
	ActionInjectFault      Action = "inject_fault"
	ActionResetFault       Action = "reset_fault"
	ActionToggleConnection Action = "toggle_connection"
)

// Speed bounds for the global simulation speed scalar.
const (
	MinSpeed     = 0.1
	MaxSpeed     = 10.0
	DefaultSpeed = 1.0
)

var kindActions = map[types.DeviceKind][]Action{
	types.DeviceKindPV: {
		ActionInjectFault,
		ActionResetFault,
	},
	types.DeviceKindWallbox: {
		ActionStartCharging,
		ActionStopCharging,
		ActionSetSoC,
		ActionInjectFault,
		ActionResetFault,
		ActionToggleConnection,
	},
}

// ParseAction maps an operator supplied action name onto an Action.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionStartCharging, ActionStopCharging, ActionSetSoC,
		ActionInjectFault, ActionResetFault, ActionToggleConnection:
		return a, nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrMalformed, s)
	}
}

// Supports reports whether devices of the given kind accept the action.
func (a Action) Supports(kind types.DeviceKind) bool {
	for _, allowed := range kindActions[kind] {
		if allowed == a {
			return true
		}
	}
	return false
}

// Actions lists the actions accepted by a device kind.
func Actions(kind types.DeviceKind) []Action {
	return append([]Action(nil), kindActions[kind]...)
}

// Command is a pending out-of-band instruction for exactly one device.
type Command struct {
	ID          uuid.UUID       `json:"id"`
	Device      types.DeviceKey `json:"device"`
	Action      Action          `json:"action"`
	Value       float64         `json:"value,omitempty"`
	HasValue    bool            `json:"-"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

func validate(kind types.DeviceKind, action Action, value *float64) error {
	if !action.Supports(kind) {
		return fmt.Errorf("%w: action %s not supported by %s devices", ErrMalformed, action, kind)
	}

	if action == ActionSetSoC {
		if value == nil {
			return fmt.Errorf("%w: %s requires a value", ErrMalformed, action)
		}
		if *value < 0 || *value > 100 {
			return fmt.Errorf("%w: soc %.2f not in [0, 100]", ErrOutOfRange, *value)
		}
	}

	return nil
}
