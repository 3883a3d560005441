package interfaces

import (
	"context"

	"github.com/KevinKickass/OpenFieldSim/internal/auth"
	"github.com/KevinKickass/OpenFieldSim/internal/config"
	"github.com/KevinKickass/OpenFieldSim/internal/devices"
	"github.com/KevinKickass/OpenFieldSim/internal/monitor"
	"github.com/KevinKickass/OpenFieldSim/internal/snapshot"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State           string  `json:"state"`
	RunID           string  `json:"run_id"`
	DeviceCount     int     `json:"device_count"`
	ServingDevices  int     `json:"serving_devices"`
	HealthyDevices  int     `json:"healthy_devices"`
	SimulationSpeed float64 `json:"simulation_speed"`
	UptimeSeconds   int64   `json:"uptime_seconds"`
	Error           string  `json:"error,omitempty"`
}

type LifecycleManager interface {
	Config() *config.Config
	DeviceManager() *devices.Manager
	Exporter() *snapshot.Exporter
	Auth() *auth.Service
	// Monitor is nil when metrics are disabled.
	Monitor() *monitor.Monitor
	GetCurrentStatus() SystemStatus
	SubscribeStatus() chan SystemStatus
	UnsubscribeStatus(ch chan SystemStatus)
	Shutdown(ctx context.Context) error
}
