package rest

import (
	"net/http"

	"github.com/KevinKickass/OpenFieldSim/internal/control"
	"github.com/KevinKickass/OpenFieldSim/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SpeedRequest struct {
	Speed *float64 `json:"speed" binding:"required"`
}

// GET /api/v1/simulation/speed
func (s *Server) getSpeed(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"speed": s.lm.DeviceManager().Plane().Speed(),
		"min":   control.MinSpeed,
		"max":   control.MaxSpeed,
	})
}

// PUT /api/v1/simulation/speed
func (s *Server) setSpeed(c *gin.Context) {
	var req SpeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("SPEED_400", "Invalid request body", err.Error()))
		return
	}

	plane := s.lm.DeviceManager().Plane()
	previous := plane.Speed()
	if err := plane.SetSpeed(*req.Speed); err != nil {
		c.JSON(http.StatusUnprocessableEntity, types.NewErrorResponse("SPEED_422", "Speed out of range", gin.H{
			"min":   control.MinSpeed,
			"max":   control.MaxSpeed,
			"error": err.Error(),
		}))
		return
	}

	s.logger.Info("Simulation speed changed",
		zap.Float64("from", previous),
		zap.Float64("to", *req.Speed))

	c.JSON(http.StatusOK, gin.H{"speed": plane.Speed()})
}
