package rest

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/KevinKickass/OpenFieldSim/internal/auth"
	"github.com/KevinKickass/OpenFieldSim/internal/control"
	"github.com/KevinKickass/OpenFieldSim/internal/devices"
	"github.com/KevinKickass/OpenFieldSim/internal/registers"
	"github.com/KevinKickass/OpenFieldSim/internal/storage"
	"github.com/KevinKickass/OpenFieldSim/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxCommandBody = 4096

type CommandResponse struct {
	CommandID   string          `json:"command_id"`
	Device      types.DeviceKey `json:"device"`
	Action      control.Action  `json:"action"`
	Value       *float64        `json:"value,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	Status      string          `json:"status"`
}

// deviceFromPath resolves :kind/:id. It writes the 404 itself and returns
// false when the device does not exist.
func (s *Server) deviceFromPath(c *gin.Context) (*devices.Device, bool) {
	notFound := func() {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("DEVICE_404", "Device not found",
			c.Param("kind")+"/"+c.Param("id")))
	}

	kind, err := types.ParseDeviceKind(c.Param("kind"))
	if err != nil {
		notFound()
		return nil, false
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		notFound()
		return nil, false
	}

	device, ok := s.lm.DeviceManager().GetDevice(types.DeviceKey{Kind: kind, ID: id})
	if !ok {
		notFound()
		return nil, false
	}
	return device, true
}

// GET /api/v1/devices
func (s *Server) listDevices(c *gin.Context) {
	entries := s.lm.Exporter().List()

	c.JSON(http.StatusOK, gin.H{
		"devices": entries,
		"count":   len(entries),
	})
}

// GET /api/v1/devices/:kind/:id
func (s *Server) getDevice(c *gin.Context) {
	device, ok := s.deviceFromPath(c)
	if !ok {
		return
	}

	response := gin.H{"device": device.Info()}
	if entry, ok := s.lm.Exporter().Get(device.Key); ok {
		response["snapshot"] = entry
	}
	if cmd, ok := s.lm.DeviceManager().Plane().Pending(device.Key); ok {
		response["pending_command"] = cmd
	}

	c.JSON(http.StatusOK, response)
}

// GET /api/v1/devices/:kind/:id/registers?start=&count=
func (s *Server) readRegisters(c *gin.Context) {
	device, ok := s.deviceFromPath(c)
	if !ok {
		return
	}

	start, err := strconv.ParseUint(c.DefaultQuery("start", "0"), 10, 16)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("REGISTERS_400", "Invalid start", err.Error()))
		return
	}

	defaultCount := device.Store.Size() - int(start)
	if defaultCount < 0 {
		defaultCount = 0
	}
	count, err := strconv.ParseUint(c.DefaultQuery("count", strconv.Itoa(defaultCount)), 10, 16)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("REGISTERS_400", "Invalid count", err.Error()))
		return
	}

	values, err := s.lm.DeviceManager().ReadRegisters(device.Key, uint16(start), uint16(count))
	if err != nil {
		if errors.Is(err, registers.ErrOutOfRange) {
			c.JSON(http.StatusUnprocessableEntity, types.NewErrorResponse("REGISTERS_422", "Register range out of bounds", err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("REGISTERS_500", "Failed to read registers", err.Error()))
		return
	}

	fields, err := device.DecodeRegisters()
	if err != nil {
		s.logger.Warn("Failed to decode registers", zap.String("device", device.Key.String()), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"device": device.Key,
		"start":  start,
		"count":  len(values),
		"values": values,
		"fields": fields,
	})
}

// POST /api/v1/devices/:kind/:id/commands
func (s *Server) submitCommand(c *gin.Context) {
	device, ok := s.deviceFromPath(c)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCommandBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("COMMAND_400", "Invalid request body", err.Error()))
		return
	}

	action, value, err := s.validator.DecodeCommand(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("COMMAND_400", "Invalid command", err.Error()))
		return
	}

	cmd, err := s.lm.DeviceManager().SubmitCommand(c.Request.Context(), devices.CommandRequest{
		Device:   device.Key,
		Action:   action,
		Value:    value,
		Source:   storage.SourceREST,
		Operator: auth.Operator(c),
	})
	if err != nil {
		writeCommandError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, CommandResponse{
		CommandID:   cmd.ID.String(),
		Device:      cmd.Device,
		Action:      cmd.Action,
		Value:       value,
		SubmittedAt: cmd.SubmittedAt,
		Status:      "pending",
	})
}

func writeCommandError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, control.ErrUnknownDevice):
		c.JSON(http.StatusNotFound, types.NewErrorResponse("DEVICE_404", "Device not found", err.Error()))
	case errors.Is(err, control.ErrOutOfRange):
		c.JSON(http.StatusUnprocessableEntity, types.NewErrorResponse("COMMAND_422", "Command value out of range", err.Error()))
	case errors.Is(err, control.ErrMalformed):
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("COMMAND_400", "Invalid command", err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("COMMAND_500", "Failed to submit command", err.Error()))
	}
}
