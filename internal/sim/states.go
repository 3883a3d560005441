package sim

type PVState int

const (
	PVStateOff PVState = iota
	PVStateStandby
	PVStateFeeding
	PVStateFault
)

func (s PVState) String() string {
	switch s {
	case PVStateOff:
		return "Off"
	case PVStateStandby:
		return "Standby"
	case PVStateFeeding:
		return "Feeding"
	case PVStateFault:
		return "Fault"
	default:
		return "Unknown"
	}
}

// ChargeState values are written verbatim to the wallbox state register.
type ChargeState int

const (
	ChargeStateReady ChargeState = iota
	ChargeStateCharging
	ChargeStateFault
)

func (s ChargeState) String() string {
	switch s {
	case ChargeStateReady:
		return "Ready"
	case ChargeStateCharging:
		return "Charging"
	case ChargeStateFault:
		return "Fault"
	default:
		return "Unknown"
	}
}

// Fault codes reported in the fault code registers.
const (
	FaultNone      = 0
	FaultCharge    = 201
	FaultInverter  = 301
	FaultNoVehicle = 404
)
