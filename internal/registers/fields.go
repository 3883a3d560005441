package registers

type Width int

const (
	Width16 Width = 16
	Width32 Width = 32
)

// Cells returns how many 16-bit cells a value of this width occupies.
func (w Width) Cells() uint16 {
	if w == Width32 {
		return 2
	}
	return 1
}

type AccessType string

const (
	AccessTypeReadOnly  AccessType = "read_only"
	AccessTypeReadWrite AccessType = "read_write"
)

// Field describes one entry of a device register map.
type Field struct {
	Name    string     `json:"name"`
	Address uint16     `json:"address"`
	Scale   float64    `json:"scale"`
	Width   Width      `json:"width"`
	Unit    string     `json:"unit,omitempty"`
	Access  AccessType `json:"access"`
}

func (f Field) scale() float64 {
	if f.Scale == 0 {
		return 1
	}
	return f.Scale
}

// Decode converts raw cells (high word first for 32-bit fields) back into
// engineering units.
func (f Field) Decode(cells []uint16) float64 {
	if f.Width == Width32 && len(cells) >= 2 {
		return float64(Join32(cells[0], cells[1])) / f.scale()
	}
	if len(cells) == 0 {
		return 0
	}
	return float64(cells[0]) / f.scale()
}

// PV inverter register addresses (three-phase variant).
const (
	PVVoltageL1      uint16 = 1
	PVVoltageL2      uint16 = 2
	PVVoltageL3      uint16 = 3
	PVCurrentL1      uint16 = 4
	PVCurrentL2      uint16 = 5
	PVCurrentL3      uint16 = 6
	PVActivePower    uint16 = 7
	PVReactivePower  uint16 = 8
	PVApparentPower  uint16 = 9
	PVPowerFactor    uint16 = 10
	PVFrequency      uint16 = 11
	PVDailyYield     uint16 = 12 // +1
	PVTotalYield     uint16 = 14 // +1
	PVDCVoltage      uint16 = 16
	PVDCCurrent      uint16 = 17
	PVDCPower        uint16 = 18
	PVOperatingState uint16 = 19
	PVTemperature    uint16 = 20
	PVFaultCode      uint16 = 21
	PVResetCommand   uint16 = 22
)

// Wallbox register addresses.
const (
	WallboxState         uint16 = 20
	WallboxChargingPower uint16 = 21
	WallboxSoC           uint16 = 22
	WallboxChargedEnergy uint16 = 23 // +1
	WallboxFaultCode     uint16 = 25
	WallboxRemoteControl uint16 = 26
	WallboxCarConnected  uint16 = 27
	WallboxResetCommand  uint16 = 28
)

// Values of the in-band remote control and reset registers.
const (
	RemoteStop        uint16 = 0
	RemoteStart       uint16 = 1
	RemoteAcknowledge uint16 = 2

	ResetRequested uint16 = 1
	ResetIdle      uint16 = 0
)

var PVMap = []Field{
	{Name: "ac_voltage_l1", Address: PVVoltageL1, Scale: 10, Width: Width16, Unit: "V", Access: AccessTypeReadOnly},
	{Name: "ac_voltage_l2", Address: PVVoltageL2, Scale: 10, Width: Width16, Unit: "V", Access: AccessTypeReadOnly},
	{Name: "ac_voltage_l3", Address: PVVoltageL3, Scale: 10, Width: Width16, Unit: "V", Access: AccessTypeReadOnly},
	{Name: "ac_current_l1", Address: PVCurrentL1, Scale: 100, Width: Width16, Unit: "A", Access: AccessTypeReadOnly},
	{Name: "ac_current_l2", Address: PVCurrentL2, Scale: 100, Width: Width16, Unit: "A", Access: AccessTypeReadOnly},
	{Name: "ac_current_l3", Address: PVCurrentL3, Scale: 100, Width: Width16, Unit: "A", Access: AccessTypeReadOnly},
	{Name: "active_power", Address: PVActivePower, Scale: 1, Width: Width16, Unit: "W", Access: AccessTypeReadOnly},
	{Name: "reactive_power", Address: PVReactivePower, Scale: 1, Width: Width16, Unit: "VAR", Access: AccessTypeReadOnly},
	{Name: "apparent_power", Address: PVApparentPower, Scale: 1, Width: Width16, Unit: "VA", Access: AccessTypeReadOnly},
	{Name: "power_factor", Address: PVPowerFactor, Scale: 100, Width: Width16, Access: AccessTypeReadOnly},
	{Name: "frequency", Address: PVFrequency, Scale: 100, Width: Width16, Unit: "Hz", Access: AccessTypeReadOnly},
	{Name: "daily_yield", Address: PVDailyYield, Scale: 1, Width: Width32, Unit: "Wh", Access: AccessTypeReadOnly},
	{Name: "total_yield", Address: PVTotalYield, Scale: 1, Width: Width32, Unit: "kWh", Access: AccessTypeReadOnly},
	{Name: "dc_voltage", Address: PVDCVoltage, Scale: 10, Width: Width16, Unit: "V", Access: AccessTypeReadOnly},
	{Name: "dc_current", Address: PVDCCurrent, Scale: 100, Width: Width16, Unit: "A", Access: AccessTypeReadOnly},
	{Name: "dc_power", Address: PVDCPower, Scale: 1, Width: Width16, Unit: "W", Access: AccessTypeReadOnly},
	{Name: "operating_state", Address: PVOperatingState, Scale: 1, Width: Width16, Access: AccessTypeReadOnly},
	{Name: "temperature", Address: PVTemperature, Scale: 10, Width: Width16, Unit: "°C", Access: AccessTypeReadOnly},
	{Name: "fault_code", Address: PVFaultCode, Scale: 1, Width: Width16, Access: AccessTypeReadOnly},
	{Name: "reset", Address: PVResetCommand, Scale: 1, Width: Width16, Access: AccessTypeReadWrite},
}

var WallboxMap = []Field{
	{Name: "state", Address: WallboxState, Scale: 1, Width: Width16, Access: AccessTypeReadOnly},
	{Name: "charging_power", Address: WallboxChargingPower, Scale: 1, Width: Width16, Unit: "W", Access: AccessTypeReadOnly},
	{Name: "soc", Address: WallboxSoC, Scale: 1, Width: Width16, Unit: "%", Access: AccessTypeReadOnly},
	{Name: "charged_energy", Address: WallboxChargedEnergy, Scale: 1, Width: Width32, Unit: "Wh", Access: AccessTypeReadOnly},
	{Name: "fault_code", Address: WallboxFaultCode, Scale: 1, Width: Width16, Access: AccessTypeReadOnly},
	{Name: "remote_control", Address: WallboxRemoteControl, Scale: 1, Width: Width16, Access: AccessTypeReadWrite},
	{Name: "car_connected", Address: WallboxCarConnected, Scale: 1, Width: Width16, Access: AccessTypeReadOnly},
	{Name: "reset", Address: WallboxResetCommand, Scale: 1, Width: Width16, Access: AccessTypeReadWrite},
}

// Lookup returns the field with the given name from a register map.
func Lookup(fields []Field, name string) (Field, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// MustLookup panics for names that are not part of the map. Only used with
// the package-level maps above.
func MustLookup(fields []Field, name string) Field {
	f, ok := Lookup(fields, name)
	if !ok {
		panic("registers: unknown field " + name)
	}
	return f
}
