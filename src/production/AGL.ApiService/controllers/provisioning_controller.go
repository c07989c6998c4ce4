package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gitlab.com/agrilink1/agl.farm_server/src/production/AGL.ApiService/middleware"
	logger "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Logger"
	provisioning "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Provisioning"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
)

// ProvisioningController exposes the pairing lifecycle over HTTP.
type ProvisioningController struct {
	provisioning   *provisioning.Service
	farmRepo       interfaces.FarmRepository
	logger         *logger.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewProvisioningController creates a new provisioning controller.
func NewProvisioningController(svc *provisioning.Service, farmRepo interfaces.FarmRepository, logger *logger.Logger, authMiddleware *middleware.AuthMiddleware) *ProvisioningController {
	return &ProvisioningController{
		provisioning:   svc,
		farmRepo:       farmRepo,
		logger:         logger,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers the provisioning routes with Gin.
func (c *ProvisioningController) RegisterRoutes(router *gin.Engine) {
	router.GET("/provision/status/:serial", c.authMiddleware.Authenticate(), c.GetStatus)

	devices := router.Group("/devices", c.authMiddleware.Authenticate())
	{
		devices.POST("/pair", c.Pair)
		devices.POST("/:device_id/unpair", c.Unpair)
		devices.POST("/:device_id/regenerate-token", c.RegenerateToken)
		devices.POST("/:device_id/disable", c.authMiddleware.RequireAdmin(), c.Disable)
	}
}

func (c *ProvisioningController) GetStatus(ctx *gin.Context) {
	serial := ctx.Param("serial")

	status, err := c.provisioning.GetPairingStatus(ctx, serial)
	if err != nil {
		if errors.Is(err, provisioning.ErrDeviceNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, status)
}

type PairRequest struct {
	Serial       string `json:"serial" binding:"required"`
	PairingToken string `json:"pairing_token" binding:"required"`
	FarmID       string `json:"farm_id" binding:"required"`
}

func (c *ProvisioningController) Pair(ctx *gin.Context) {
	var req PairRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Only the farm owner (or an admin) may claim a device for a farm.
	userRole, _ := middleware.GetRoleFromGinContext(ctx)
	if userRole != "admin" {
		currentUserID, _ := middleware.GetUserFromGinContext(ctx)
		farm, err := c.farmRepo.GetFarm(ctx, req.FarmID)
		if err != nil {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "farm not found"})
			return
		}
		if farm.OwnerID != currentUserID {
			ctx.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
	}

	result, err := c.provisioning.Pair(ctx, req.Serial, req.PairingToken, req.FarmID)
	if err != nil {
		c.writePairingError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

func (c *ProvisioningController) Unpair(ctx *gin.Context) {
	deviceID := ctx.Param("device_id")

	if err := c.provisioning.Unpair(ctx, deviceID); err != nil {
		c.writePairingError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"unpaired": true})
}

func (c *ProvisioningController) RegenerateToken(ctx *gin.Context) {
	deviceID := ctx.Param("device_id")

	token, err := c.provisioning.RegenerateToken(ctx, deviceID)
	if err != nil {
		c.writePairingError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"device_token": token})
}

func (c *ProvisioningController) Disable(ctx *gin.Context) {
	deviceID := ctx.Param("device_id")

	if err := c.provisioning.Disable(ctx, deviceID); err != nil {
		c.writePairingError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"disabled": true})
}

// writePairingError maps provisioning failures to distinguishable HTTP
// responses so the pairing flow can present actionable guidance.
func (c *ProvisioningController) writePairingError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, provisioning.ErrDeviceNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
	case errors.Is(err, provisioning.ErrInvalidStatus):
		ctx.JSON(http.StatusConflict, gin.H{"error": "device is not in a pairable state"})
	case errors.Is(err, provisioning.ErrNoPairingToken):
		ctx.JSON(http.StatusConflict, gin.H{"error": "no pairing token issued for this device"})
	case errors.Is(err, provisioning.ErrTokenUsed):
		ctx.JSON(http.StatusConflict, gin.H{"error": "pairing token already used"})
	case errors.Is(err, provisioning.ErrTokenExpired):
		ctx.JSON(http.StatusConflict, gin.H{"error": "pairing token expired"})
	case errors.Is(err, provisioning.ErrTokenMismatch):
		ctx.JSON(http.StatusConflict, gin.H{"error": "pairing token mismatch"})
	default:
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
