package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenFieldSim/internal/api/rest"
	"github.com/KevinKickass/OpenFieldSim/internal/api/websocket"
	"github.com/KevinKickass/OpenFieldSim/internal/auth"
	"github.com/KevinKickass/OpenFieldSim/internal/config"
	"github.com/KevinKickass/OpenFieldSim/internal/control"
	"github.com/KevinKickass/OpenFieldSim/internal/devices"
	"github.com/KevinKickass/OpenFieldSim/internal/interfaces"
	"github.com/KevinKickass/OpenFieldSim/internal/monitor"
	"github.com/KevinKickass/OpenFieldSim/internal/snapshot"
	"github.com/KevinKickass/OpenFieldSim/internal/storage"
	"github.com/KevinKickass/OpenFieldSim/internal/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const statusInterval = 5 * time.Second

type LifecycleManager struct {
	config    *config.Config
	logger    *zap.Logger
	runID     uuid.UUID
	startedAt time.Time

	plane         *control.Plane
	exporter      *snapshot.Exporter
	validator     *control.Validator
	deviceManager *devices.Manager
	authService   *auth.Service
	monitor       *monitor.Monitor
	bridge        *telemetry.Bridge
	database      *storage.PostgresClient

	liveHub    *websocket.Hub
	statusHub  *websocket.Hub
	hubCancel  context.CancelFunc
	restServer *rest.Server

	stateMu      sync.RWMutex
	currentState SystemState
	lastError    error

	listenersMu     sync.RWMutex
	statusListeners []chan interfaces.SystemStatus

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// NewLifecycleManager wires every component. Nothing is started and no
// network resource is bound until Start.
func NewLifecycleManager(cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	plane := control.NewPlane(logger)
	if err := plane.SetSpeed(cfg.Simulation.DefaultSpeed); err != nil {
		return nil, fmt.Errorf("invalid default speed: %w", err)
	}

	validator, err := control.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create command validator: %w", err)
	}

	exporter := snapshot.NewExporter()

	deviceManager, err := devices.NewManager(cfg, plane, exporter, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create device manager: %w", err)
	}

	lm := &LifecycleManager{
		config:          cfg,
		logger:          logger,
		runID:           uuid.New(),
		plane:           plane,
		exporter:        exporter,
		validator:       validator,
		deviceManager:   deviceManager,
		authService:     auth.NewService(cfg.Auth, logger),
		liveHub:         websocket.NewHub("live", logger),
		statusHub:       websocket.NewHub("status", logger),
		currentState:    StateInitializing,
		shutdownChan:    make(chan struct{}),
		statusListeners: make([]chan interfaces.SystemStatus, 0),
	}

	if cfg.Metrics.Enabled {
		lm.monitor = monitor.New(exporter, plane)
		deviceManager.SetObserver(lm.monitor)
		deviceManager.SetCommandObserver(lm.monitor)
	}

	if cfg.MQTT.Enabled {
		lm.bridge = telemetry.NewBridge(cfg.MQTT, exporter, deviceManager, validator, logger)
	}

	lm.restServer = rest.NewServer(cfg, lm, validator, lm.liveHub, lm.statusHub, logger)

	return lm, nil
}

// Start starts the entire system
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.logger.Info("Starting OpenFieldSim", zap.String("run_id", lm.runID.String()))
	lm.startedAt = time.Now()

	lm.setState(StateInitializing)
	lm.broadcastStatus()

	if lm.config.Database.Enabled {
		if err := lm.connectJournal(ctx); err != nil {
			// Not critical, commands are journaled in memory
			lm.logger.Warn("Command journal database unavailable", zap.Error(err))
		}
	}

	hubCtx, cancel := context.WithCancel(context.Background())
	lm.hubCancel = cancel
	go lm.liveHub.Run(hubCtx)
	go lm.statusHub.Run(hubCtx)
	go lm.liveHub.Forward(hubCtx, lm.exporter.Subscribe())
	go lm.statusLoop(hubCtx, lm.SubscribeStatus())

	if err := lm.deviceManager.StartAll(); err != nil {
		lm.setError(fmt.Errorf("failed to start fleet: %w", err))
		return err
	}

	if lm.bridge != nil {
		if err := lm.bridge.Start(); err != nil {
			lm.logger.Warn("MQTT bridge unavailable", zap.Error(err))
		}
	}

	if err := lm.restServer.Start(); err != nil {
		lm.setError(fmt.Errorf("failed to start REST API: %w", err))
		return err
	}

	lm.setState(StateRunning)
	lm.broadcastStatus()

	lm.logger.Info("System started successfully",
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Int("devices", len(lm.deviceManager.ListDevices())),
		zap.Bool("metrics", lm.monitor != nil),
		zap.Bool("mqtt", lm.bridge != nil))

	return nil
}

func (lm *LifecycleManager) connectJournal(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := storage.NewPostgresClient(ctx, lm.config.Database)
	if err != nil {
		return err
	}
	lm.database = client
	lm.deviceManager.SetJournal(client)
	lm.logger.Info("Command journal connected",
		zap.String("host", lm.config.Database.Host),
		zap.String("database", lm.config.Database.Database))
	return nil
}

// statusLoop pushes status changes, and a periodic refresh, to /ws/status.
func (lm *LifecycleManager) statusLoop(ctx context.Context, updates chan interfaces.SystemStatus) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case status, ok := <-updates:
			if !ok {
				return
			}
			lm.statusHub.Broadcast(websocket.NewSystemStatusMessage(status))
		case <-ticker.C:
			lm.statusHub.Broadcast(websocket.NewSystemStatusMessage(lm.GetCurrentStatus()))
		}
	}
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)
		lm.broadcastStatus()

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		lm.broadcastStatus()

		close(lm.shutdownChan)
	})

	return shutdownErr
}

// Done is closed once Shutdown has completed.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	// 1. Workers and Modbus slaves
	g.Go(func() error {
		if err := lm.deviceManager.StopAll(gctx); err != nil {
			return fmt.Errorf("device manager stop failed: %w", err)
		}
		return nil
	})

	// 2. REST API Server graceful shutdown
	g.Go(func() error {
		shutdownCtx, cancel := context.WithTimeout(gctx, 5*time.Second)
		defer cancel()

		if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("rest api shutdown failed: %w", err)
		}
		return nil
	})

	// 3. MQTT bridge
	if lm.bridge != nil {
		g.Go(func() error {
			lm.bridge.Stop()
			return nil
		})
	}

	err := g.Wait()

	if lm.hubCancel != nil {
		lm.hubCancel()
	}
	if lm.database != nil {
		lm.database.Close()
	}

	if err != nil {
		lm.logger.Warn("Shutdown completed with errors", zap.Error(err))
		return err
	}

	lm.logger.Info("Graceful shutdown completed")
	return nil
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()

	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Unexpected state transition", zap.Error(err))
	}
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))

	lm.stateMu.Lock()
	lm.currentState = StateError
	lm.lastError = err
	lm.stateMu.Unlock()

	lm.broadcastStatus()
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state, lastErr := lm.currentState, lm.lastError
	lm.stateMu.RUnlock()

	infos := lm.deviceManager.ListDevices()
	serving := 0
	for _, d := range infos {
		if d.Serving {
			serving++
		}
	}

	healthy := 0
	for _, e := range lm.exporter.List() {
		if e.Healthy() && e.Status == snapshot.StatusRunning {
			healthy++
		}
	}

	status := interfaces.SystemStatus{
		State:           state.String(),
		RunID:           lm.runID.String(),
		DeviceCount:     len(infos),
		ServingDevices:  serving,
		HealthyDevices:  healthy,
		SimulationSpeed: lm.plane.Speed(),
	}
	if !lm.startedAt.IsZero() {
		status.UptimeSeconds = int64(time.Since(lm.startedAt).Seconds())
	}
	if lastErr != nil {
		status.Error = lastErr.Error()
	}
	return status
}

func (lm *LifecycleManager) broadcastStatus() {
	status := lm.GetCurrentStatus()

	lm.listenersMu.RLock()
	defer lm.listenersMu.RUnlock()

	for _, listener := range lm.statusListeners {
		select {
		case listener <- status:
		default:
			// Channel full, skip
		}
	}
}

// SubscribeStatus subscribes to status updates
func (lm *LifecycleManager) SubscribeStatus() chan interfaces.SystemStatus {
	ch := make(chan interfaces.SystemStatus, 10)

	lm.listenersMu.Lock()
	lm.statusListeners = append(lm.statusListeners, ch)
	lm.listenersMu.Unlock()

	return ch
}

// UnsubscribeStatus unsubscribes from status updates
func (lm *LifecycleManager) UnsubscribeStatus(ch chan interfaces.SystemStatus) {
	lm.listenersMu.Lock()
	defer lm.listenersMu.Unlock()

	for i, listener := range lm.statusListeners {
		if listener == ch {
			lm.statusListeners = append(lm.statusListeners[:i], lm.statusListeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// DeviceManager returns the device manager
func (lm *LifecycleManager) DeviceManager() *devices.Manager {
	return lm.deviceManager
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

func (lm *LifecycleManager) Exporter() *snapshot.Exporter {
	return lm.exporter
}

func (lm *LifecycleManager) Auth() *auth.Service {
	return lm.authService
}

func (lm *LifecycleManager) Monitor() *monitor.Monitor {
	return lm.monitor
}

// RESTAddr returns the bound REST address, nil before Start.
func (lm *LifecycleManager) RESTAddr() string {
	if addr := lm.restServer.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}
