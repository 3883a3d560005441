package rest

import (
	"context"
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenFieldSim/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GET /api/v1/system/status
func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.GetCurrentStatus())
}

// POST /api/v1/system/shutdown
func (s *Server) shutdown(c *gin.Context) {
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Shutdown initiated",
	})

	// Trigger shutdown in background, the request context ends with this handler
	go func() {
		timeout := s.lm.Config().Server.ShutdownTimeout
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.lm.Shutdown(ctx); err != nil {
			s.logger.Error("Shutdown failed", zap.Error(err))
		}
	}()
}

// GET /api/v1/commands?limit=
func (s *Server) listCommands(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse("COMMANDS_400", "Invalid limit", raw))
			return
		}
		limit = n
	}

	entries, err := s.lm.DeviceManager().Journal().List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("COMMANDS_500", "Failed to read command journal", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"commands": entries,
		"count":    len(entries),
	})
}
