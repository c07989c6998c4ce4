package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gitlab.com/agrilink1/agl.farm_server/src/production/AGL.ApiService/middleware"
	dispatch "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Dispatch"
	logger "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Logger"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
	presence "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Presence"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
)

// DeviceController handles device directory and command requests.
type DeviceController struct {
	deviceRepo     interfaces.DeviceRepository
	farmRepo       interfaces.FarmRepository
	dispatcher     *dispatch.Dispatcher
	presence       *presence.Tracker
	logger         *logger.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewDeviceController creates a new device controller.
func NewDeviceController(deviceRepo interfaces.DeviceRepository, farmRepo interfaces.FarmRepository, dispatcher *dispatch.Dispatcher, tracker *presence.Tracker, logger *logger.Logger, authMiddleware *middleware.AuthMiddleware) *DeviceController {
	return &DeviceController{
		deviceRepo:     deviceRepo,
		farmRepo:       farmRepo,
		dispatcher:     dispatcher,
		presence:       tracker,
		logger:         logger,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers the device routes with Gin.
func (c *DeviceController) RegisterRoutes(router *gin.Engine) {
	devices := router.Group("/devices", c.authMiddleware.Authenticate())
	{
		devices.GET("", c.ListDevices)
		devices.GET("/:device_id", c.GetDevice)
		devices.GET("/:device_id/online", c.GetOnlineStatus)
		devices.POST("/:device_id/command", c.SendCommand)
	}
}

func (c *DeviceController) ListDevices(ctx *gin.Context) {
	farmID := ctx.Query("farm_id")

	userRole, _ := middleware.GetRoleFromGinContext(ctx)
	if userRole != "admin" {
		if farmID == "" {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "farm_id is required for non-admin users"})
			return
		}
		if !c.requireFarmAccess(ctx, farmID) {
			return
		}
	}

	devices, err := c.deviceRepo.ListDevices(ctx, farmID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, devices)
}

func (c *DeviceController) GetDevice(ctx *gin.Context) {
	device, ok := c.loadDevice(ctx)
	if !ok {
		return
	}

	ctx.JSON(http.StatusOK, device)
}

func (c *DeviceController) GetOnlineStatus(ctx *gin.Context) {
	device, ok := c.loadDevice(ctx)
	if !ok {
		return
	}

	online, err := c.presence.IsOnline(ctx, device.ID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"device_id": device.ID, "online": online}
	if lastSeen, err := c.presence.LastSeen(ctx, device.ID); err == nil && !lastSeen.IsZero() {
		resp["last_seen"] = lastSeen.UTC().Format(time.RFC3339Nano)
	}

	ctx.JSON(http.StatusOK, resp)
}

type SendCommandRequest struct {
	Command string                 `json:"command" binding:"required"`
	Params  map[string]interface{} `json:"params"`
}

func (c *DeviceController) SendCommand(ctx *gin.Context) {
	device, ok := c.loadDevice(ctx)
	if !ok {
		return
	}

	var req SendCommandRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := c.dispatcher.Dispatch(ctx, dispatch.Request{
		DeviceID: device.ID,
		Command:  req.Command,
		Params:   req.Params,
		Source:   aglmodels.CommandSourceManual,
	})
	if err != nil {
		ctx.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{"dispatched": true})
}

// loadDevice fetches the device from the path parameter and enforces the
// caller's farm access. Writes the error response itself on failure.
func (c *DeviceController) loadDevice(ctx *gin.Context) (*aglmodels.Device, bool) {
	deviceID := ctx.Param("device_id")

	device, err := c.deviceRepo.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return nil, false
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}

	userRole, _ := middleware.GetRoleFromGinContext(ctx)
	if userRole != "admin" {
		if device.FarmID == "" {
			ctx.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return nil, false
		}
		if !c.requireFarmAccess(ctx, device.FarmID) {
			return nil, false
		}
	}

	return device, true
}

func (c *DeviceController) requireFarmAccess(ctx *gin.Context, farmID string) bool {
	currentUserID, _ := middleware.GetUserFromGinContext(ctx)

	farm, err := c.farmRepo.GetFarm(ctx, farmID)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "farm not found"})
		return false
	}
	if farm.OwnerID != currentUserID {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return false
	}

	return true
}
