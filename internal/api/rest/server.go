package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenFieldSim/internal/api/websocket"
	"github.com/KevinKickass/OpenFieldSim/internal/config"
	"github.com/KevinKickass/OpenFieldSim/internal/control"
	"github.com/KevinKickass/OpenFieldSim/internal/interfaces"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router    *gin.Engine
	lm        interfaces.LifecycleManager
	validator *control.Validator
	logger    *zap.Logger
	server    *http.Server
	liveHub   *websocket.Hub
	statusHub *websocket.Hub
	addr      net.Addr
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, validator *control.Validator, liveHub, statusHub *websocket.Hub, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:    gin.New(),
		lm:        lm,
		validator: validator,
		logger:    logger,
		liveHub:   liveHub,
		statusHub: statusHub,
	}

	s.setupRoutes(cfg)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Start binds the listener synchronously so a busy port is reported to the
// caller, then serves in the background.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	s.addr = lis.Addr()

	s.logger.Info("Starting REST API server", zap.String("address", s.addr.String()))
	go func() {
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() net.Addr { return s.addr }

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes(cfg *config.Config) {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	authService := s.lm.Auth()

	// Public routes
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/data", s.legacyData)

	if mon := s.lm.Monitor(); mon != nil && cfg.Metrics.Enabled {
		s.router.GET(cfg.Metrics.Path, gin.WrapH(mon.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/auth/login", s.login)

		devices := v1.Group("/devices")
		{
			devices.GET("", s.listDevices)
			devices.GET("/:kind/:id", s.getDevice)
			devices.GET("/:kind/:id/registers", s.readRegisters)
			devices.POST("/:kind/:id/commands", authService.RequireOperator(), s.submitCommand)
		}

		simulation := v1.Group("/simulation")
		{
			simulation.GET("/speed", s.getSpeed)
			simulation.PUT("/speed", authService.RequireOperator(), s.setSpeed)
		}

		system := v1.Group("/system")
		{
			system.GET("/status", s.getSystemStatus)
			system.POST("/shutdown", authService.RequireOperator(), s.shutdown)
		}

		v1.GET("/commands", s.listCommands)

		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", s.wsStatusConnection)
			ws.GET("/clients", s.wsClients)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.liveHub, c.Writer, c.Request,
		websocket.NewFleetSnapshotMessage(s.lm.Exporter().List()))
}

func (s *Server) wsStatusConnection(c *gin.Context) {
	websocket.ServeWs(s.statusHub, c.Writer, c.Request,
		websocket.NewSystemStatusMessage(s.lm.GetCurrentStatus()))
}

func (s *Server) wsClients(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"live":   s.liveHub.GetClientCount(),
		"status": s.statusHub.GetClientCount(),
	})
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"state":     s.lm.GetCurrentStatus().State,
		"timestamp": time.Now().Unix(),
	})
}

// GET /data, the dashboard feed: [key, summary] pairs ordered by device.
func (s *Server) legacyData(c *gin.Context) {
	entries := s.lm.Exporter().List()

	data := make([][2]any, 0, len(entries))
	for _, e := range entries {
		data = append(data, [2]any{e.Key.String(), gin.H{
			"host_ip": e.Address,
			"status":  e.Status,
			"state":   e.State,
			"power":   e.Power,
			"values":  e.Values,
		}})
	}

	c.JSON(http.StatusOK, data)
}
