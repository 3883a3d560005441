package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KevinKickass/OpenFieldSim/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5010, cfg.Server.HTTPPort)
	assert.Equal(t, 2*time.Second, cfg.Simulation.TickInterval)
	assert.Equal(t, 10*time.Second, cfg.Simulation.ErrorCooldown)
	assert.Equal(t, 1.0, cfg.Simulation.DefaultSpeed)
	assert.Equal(t, 100, cfg.Modbus.RegisterCount)
	assert.Equal(t, 12, cfg.Fleet.PVCount)
	assert.Equal(t, 5020, cfg.Fleet.BasePort)
	assert.Equal(t, 10000.0, cfg.PV.PeakPower)
	assert.Equal(t, 0.97, cfg.PV.Efficiency)
	assert.Equal(t, 11000.0, cfg.Wallbox.NominalPower)
	assert.True(t, cfg.Wallbox.InitiallyConnected)
	assert.False(t, cfg.Auth.Enabled)
	assert.False(t, cfg.Database.Enabled)
	assert.False(t, cfg.MQTT.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5010, cfg.Server.HTTPPort)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  http_port: 8088
simulation:
  tick_interval: 500ms
  seed: 42
fleet:
  pv_count: 2
  wallbox_count: 1
  devices:
    - kind: wallbox
      id: 7
      address: 10.0.0.7:502
auth:
  enabled: true
  operators:
    - username: operator
      password_hash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"
`)
	t.Setenv("OFS_SERVER_HTTP_PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, 500*time.Millisecond, cfg.Simulation.TickInterval)
	assert.Equal(t, uint64(42), cfg.Simulation.Seed)
	require.Len(t, cfg.Fleet.Devices, 1)
	assert.Equal(t, types.DeviceKindWallbox, cfg.Fleet.Devices[0].Kind)
	assert.Equal(t, 7, cfg.Fleet.Devices[0].ID)
	require.Len(t, cfg.Auth.Operators, 1)
	assert.Equal(t, "operator", cfg.Auth.Operators[0].Username)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeFile(t, "config.yaml", "modbus:\n  register_count: 10\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "register_count")

	path = writeFile(t, "broken.yaml", "server: [")
	_, err = Load(path)
	assert.ErrorContains(t, err, "failed to read config")
}

func TestFleetGenerated(t *testing.T) {
	f := FleetConfig{Host: "127.0.0.1", BasePort: 5020, PVCount: 3, WallboxCount: 2}

	devices, err := f.Resolve()
	require.NoError(t, err)
	require.Len(t, devices, 5)

	assert.Equal(t, DeviceConfig{Kind: types.DeviceKindPV, ID: 1, Address: "127.0.0.1:5020"}, devices[0])
	assert.Equal(t, DeviceConfig{Kind: types.DeviceKindPV, ID: 3, Address: "127.0.0.1:5022"}, devices[2])
	assert.Equal(t, DeviceConfig{Kind: types.DeviceKindWallbox, ID: 1, Address: "127.0.0.1:5023"}, devices[3])
	assert.Equal(t, DeviceConfig{Kind: types.DeviceKindWallbox, ID: 2, Address: "127.0.0.1:5024"}, devices[4])
}

func TestFleetFileAndExplicitDevices(t *testing.T) {
	path := writeFile(t, "fleet.yaml", `
devices:
  - kind: pv
    id: 1
    address: 10.10.10.120:5020
  - kind: pv
    id: 2
    address: 10.10.10.121:5020
`)
	f := FleetConfig{
		FleetFile: path,
		PVCount:   12,
		Devices: []DeviceConfig{
			{Kind: types.DeviceKindWallbox, ID: 1, Address: "10.10.10.200:5020"},
		},
	}

	devices, err := f.Resolve()
	require.NoError(t, err)
	require.Len(t, devices, 3, "explicit devices replace the generated fleet")
	assert.Equal(t, "10.10.10.121:5020", devices[1].Address)
	assert.Equal(t, types.DeviceKindWallbox, devices[2].Kind)
}

func TestFleetValidation(t *testing.T) {
	tests := []struct {
		name    string
		devices []DeviceConfig
		err     string
	}{
		{
			name:    "unknown kind",
			devices: []DeviceConfig{{Kind: "battery", ID: 1, Address: "h:1"}},
			err:     "unknown device kind",
		},
		{
			name:    "non positive id",
			devices: []DeviceConfig{{Kind: types.DeviceKindPV, ID: 0, Address: "h:1"}},
			err:     "id must be positive",
		},
		{
			name:    "bad address",
			devices: []DeviceConfig{{Kind: types.DeviceKindPV, ID: 1, Address: "nohostport"}},
			err:     "invalid address",
		},
		{
			name: "duplicate key",
			devices: []DeviceConfig{
				{Kind: types.DeviceKindPV, ID: 1, Address: "h:1"},
				{Kind: types.DeviceKindPV, ID: 1, Address: "h:2"},
			},
			err: "defined twice",
		},
		{
			name: "duplicate address",
			devices: []DeviceConfig{
				{Kind: types.DeviceKindPV, ID: 1, Address: "h:1"},
				{Kind: types.DeviceKindWallbox, ID: 1, Address: "h:1"},
			},
			err: "share address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := FleetConfig{Devices: tt.devices}
			_, err := f.Resolve()
			assert.ErrorContains(t, err, tt.err)
		})
	}
}

func TestJWTSecretFallback(t *testing.T) {
	a := AuthConfig{JWTSecretEnv: "OFS_TEST_JWT_SECRET"}
	t.Setenv("OFS_TEST_JWT_SECRET", "")
	assert.False(t, a.IsProductionReady())

	t.Setenv("OFS_TEST_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	assert.Equal(t, "0123456789abcdef0123456789abcdef", a.GetJWTSecret())
	assert.True(t, a.IsProductionReady())
}
