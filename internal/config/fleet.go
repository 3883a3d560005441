package config

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/KevinKickass/OpenFieldSim/internal/types"
	"gopkg.in/yaml.v3"
)

type fleetFile struct {
	Devices []DeviceConfig `yaml:"devices"`
}

// LoadFleetFile decodes a YAML document of the form
//
//	devices:
//	  - kind: pv
//	    id: 1
//	    address: 127.0.0.1:5020
func LoadFleetFile(path string) ([]DeviceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fleet file: %w", err)
	}

	var f fleetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fleet file %s: %w", path, err)
	}

	return f.Devices, nil
}

// Resolve returns the configured fleet, validated for unique keys and
// addresses.
func (f *FleetConfig) Resolve() ([]DeviceConfig, error) {
	var devices []DeviceConfig

	if f.FleetFile != "" {
		fromFile, err := LoadFleetFile(f.FleetFile)
		if err != nil {
			return nil, err
		}
		devices = append(devices, fromFile...)
	}
	devices = append(devices, f.Devices...)

	if len(devices) == 0 {
		devices = f.generate()
	}

	if err := validateFleet(devices); err != nil {
		return nil, err
	}
	return devices, nil
}

func (f *FleetConfig) generate() []DeviceConfig {
	devices := make([]DeviceConfig, 0, f.PVCount+f.WallboxCount)
	port := f.BasePort

	for i := 1; i <= f.PVCount; i++ {
		devices = append(devices, DeviceConfig{
			Kind:    types.DeviceKindPV,
			ID:      i,
			Address: net.JoinHostPort(f.Host, strconv.Itoa(port)),
		})
		port++
	}
	for i := 1; i <= f.WallboxCount; i++ {
		devices = append(devices, DeviceConfig{
			Kind:    types.DeviceKindWallbox,
			ID:      i,
			Address: net.JoinHostPort(f.Host, strconv.Itoa(port)),
		})
		port++
	}

	return devices
}

func validateFleet(devices []DeviceConfig) error {
	keys := make(map[types.DeviceKey]struct{}, len(devices))
	addresses := make(map[string]types.DeviceKey, len(devices))

	for _, d := range devices {
		if _, err := types.ParseDeviceKind(string(d.Kind)); err != nil {
			return fmt.Errorf("fleet device %d: %w", d.ID, err)
		}
		if d.ID <= 0 {
			return fmt.Errorf("fleet device %s: id must be positive", d.Key())
		}
		if _, _, err := net.SplitHostPort(d.Address); err != nil {
			return fmt.Errorf("fleet device %s: invalid address %q: %w", d.Key(), d.Address, err)
		}
		if _, dup := keys[d.Key()]; dup {
			return fmt.Errorf("fleet device %s defined twice", d.Key())
		}
		if other, dup := addresses[d.Address]; dup {
			return fmt.Errorf("fleet devices %s and %s share address %s", other, d.Key(), d.Address)
		}
		keys[d.Key()] = struct{}{}
		addresses[d.Address] = d.Key()
	}

	return nil
}
