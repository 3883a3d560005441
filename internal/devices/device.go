package devices

import (
	"github.com/KevinKickass/OpenFieldSim/internal/modbus"
	"github.com/KevinKickass/OpenFieldSim/internal/registers"
	"github.com/KevinKickass/OpenFieldSim/internal/sim"
	"github.com/KevinKickass/OpenFieldSim/internal/types"
)

// Device is one simulated field device: its register store, the engine that
// owns the store, the worker driving the engine and the Modbus slave
// exposing the store.
type Device struct {
	Key     types.DeviceKey
	Address string
	Store   *registers.Store
	Engine  sim.Engine
	Worker  *sim.Worker
	Server  *modbus.Server
}

func (d *Device) Info() types.DeviceInfo {
	return types.DeviceInfo{
		Key:       d.Key,
		Address:   d.Address,
		Serving:   d.Server.Serving(),
		Simulated: d.Worker.IsRunning(),
	}
}

// DecodeRegisters reads every mapped field from the store in engineering
// units, keyed by field name.
func (d *Device) DecodeRegisters() (map[string]float64, error) {
	fields := modbus.FieldsFor(d.Key.Kind)
	values := make(map[string]float64, len(fields))
	for _, f := range fields {
		v, err := d.Store.ReadField(f)
		if err != nil {
			return nil, err
		}
		values[f.Name] = v
	}
	return values, nil
}
