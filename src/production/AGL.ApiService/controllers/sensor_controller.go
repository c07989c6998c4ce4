package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gitlab.com/agrilink1/agl.farm_server/src/production/AGL.ApiService/middleware"
	logger "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Logger"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
	threshold "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Threshold"
)

// SensorController handles sensor configuration and threshold management.
// Every mutation invalidates the threshold engine's config cache for the
// affected device so evaluation picks up changes immediately.
type SensorController struct {
	sensorRepo     interfaces.SensorConfigRepository
	engine         *threshold.Engine
	logger         *logger.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewSensorController creates a new sensor controller.
func NewSensorController(sensorRepo interfaces.SensorConfigRepository, engine *threshold.Engine, logger *logger.Logger, authMiddleware *middleware.AuthMiddleware) *SensorController {
	return &SensorController{
		sensorRepo:     sensorRepo,
		engine:         engine,
		logger:         logger,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers the sensor routes with Gin.
func (c *SensorController) RegisterRoutes(router *gin.Engine) {
	devices := router.Group("/devices", c.authMiddleware.Authenticate())
	{
		devices.GET("/:device_id/sensors", c.ListConfigs)
		devices.POST("/:device_id/sensors", c.CreateConfig)
	}

	sensors := router.Group("/sensors", c.authMiddleware.Authenticate())
	{
		sensors.GET("/:config_id", c.GetConfig)
		sensors.PATCH("/:config_id", c.UpdateConfig)
		sensors.DELETE("/:config_id", c.DeleteConfig)
		sensors.POST("/:config_id/thresholds", c.CreateThreshold)
	}

	thresholds := router.Group("/thresholds", c.authMiddleware.Authenticate())
	{
		thresholds.PATCH("/:threshold_id", c.UpdateThreshold)
		thresholds.DELETE("/:threshold_id", c.DeleteThreshold)
	}
}

func (c *SensorController) ListConfigs(ctx *gin.Context) {
	deviceID := ctx.Param("device_id")

	configs, err := c.sensorRepo.ListConfigs(ctx, deviceID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, configs)
}

type CreateConfigRequest struct {
	SensorType string `json:"sensor_type" binding:"required"`
	Enabled    *bool  `json:"enabled"`
	Mode       string `json:"mode"`
	Unit       string `json:"unit"`
}

func (c *SensorController) CreateConfig(ctx *gin.Context) {
	deviceID := ctx.Param("device_id")

	var req CreateConfigRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := aglmodels.SensorConfig{
		DeviceID:   deviceID,
		SensorType: aglmodels.SensorType(req.SensorType),
		Enabled:    true,
		Mode:       aglmodels.SensorModeAuto,
		Unit:       req.Unit,
	}
	if req.Enabled != nil {
		cfg.Enabled = *req.Enabled
	}
	if req.Mode != "" {
		cfg.Mode = aglmodels.SensorMode(req.Mode)
	}
	if cfg.Mode != aglmodels.SensorModeAuto && cfg.Mode != aglmodels.SensorModeManual {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid mode"})
		return
	}

	created, err := c.sensorRepo.CreateConfig(ctx, cfg)
	if err != nil {
		if errors.Is(err, interfaces.ErrConflict) {
			ctx.JSON(http.StatusConflict, gin.H{"error": "sensor config already exists for this sensor type"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.engine.InvalidateConfig(deviceID)
	ctx.JSON(http.StatusCreated, created)
}

func (c *SensorController) GetConfig(ctx *gin.Context) {
	cfg, err := c.sensorRepo.GetConfig(ctx, ctx.Param("config_id"))
	if err != nil {
		c.writeRepoError(ctx, err, "sensor config not found")
		return
	}

	ctx.JSON(http.StatusOK, cfg)
}

type UpdateConfigRequest struct {
	Enabled *bool   `json:"enabled"`
	Mode    *string `json:"mode"`
	Unit    *string `json:"unit"`
}

func (c *SensorController) UpdateConfig(ctx *gin.Context) {
	cfg, err := c.sensorRepo.GetConfig(ctx, ctx.Param("config_id"))
	if err != nil {
		c.writeRepoError(ctx, err, "sensor config not found")
		return
	}

	var req UpdateConfigRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Enabled != nil {
		cfg.Enabled = *req.Enabled
	}
	if req.Mode != nil {
		mode := aglmodels.SensorMode(*req.Mode)
		if mode != aglmodels.SensorModeAuto && mode != aglmodels.SensorModeManual {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid mode"})
			return
		}
		cfg.Mode = mode
	}
	if req.Unit != nil {
		cfg.Unit = *req.Unit
	}

	if err := c.sensorRepo.UpdateConfig(ctx, cfg); err != nil {
		c.writeRepoError(ctx, err, "sensor config not found")
		return
	}

	c.engine.InvalidateConfig(cfg.DeviceID)
	ctx.JSON(http.StatusOK, cfg)
}

func (c *SensorController) DeleteConfig(ctx *gin.Context) {
	cfg, err := c.sensorRepo.GetConfig(ctx, ctx.Param("config_id"))
	if err != nil {
		c.writeRepoError(ctx, err, "sensor config not found")
		return
	}

	if err := c.sensorRepo.DeleteConfig(ctx, cfg.ID); err != nil {
		c.writeRepoError(ctx, err, "sensor config not found")
		return
	}

	c.engine.InvalidateConfig(cfg.DeviceID)
	ctx.JSON(http.StatusOK, gin.H{"deleted": true})
}

type CreateThresholdRequest struct {
	Level     string   `json:"level" binding:"required"`
	Type      string   `json:"type" binding:"required"`
	Threshold *float64 `json:"threshold" binding:"required"`
	Action    string   `json:"action" binding:"required"`
}

func (c *SensorController) CreateThreshold(ctx *gin.Context) {
	cfg, err := c.sensorRepo.GetConfig(ctx, ctx.Param("config_id"))
	if err != nil {
		c.writeRepoError(ctx, err, "sensor config not found")
		return
	}

	var req CreateThresholdRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	level := aglmodels.ThresholdLevel(req.Level)
	if level != aglmodels.ThresholdWarning && level != aglmodels.ThresholdCritical {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid level"})
		return
	}
	thresholdType := aglmodels.ThresholdType(req.Type)
	if thresholdType != aglmodels.ThresholdMin && thresholdType != aglmodels.ThresholdMax {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid type"})
		return
	}

	created, err := c.sensorRepo.CreateThreshold(ctx, aglmodels.SensorThreshold{
		SensorConfigID: cfg.ID,
		Level:          level,
		Type:           thresholdType,
		Threshold:      *req.Threshold,
		Action:         req.Action,
	})
	if err != nil {
		if errors.Is(err, interfaces.ErrConflict) {
			ctx.JSON(http.StatusConflict, gin.H{"error": "threshold already exists for this level and type"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.engine.InvalidateConfig(cfg.DeviceID)
	ctx.JSON(http.StatusCreated, created)
}

type UpdateThresholdRequest struct {
	Threshold *float64 `json:"threshold"`
	Action    *string  `json:"action"`
}

func (c *SensorController) UpdateThreshold(ctx *gin.Context) {
	t, err := c.sensorRepo.GetThreshold(ctx, ctx.Param("threshold_id"))
	if err != nil {
		c.writeRepoError(ctx, err, "threshold not found")
		return
	}

	var req UpdateThresholdRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Threshold != nil {
		t.Threshold = *req.Threshold
	}
	if req.Action != nil {
		t.Action = *req.Action
	}

	if err := c.sensorRepo.UpdateThreshold(ctx, t); err != nil {
		c.writeRepoError(ctx, err, "threshold not found")
		return
	}

	c.invalidateForConfig(ctx, t.SensorConfigID)
	ctx.JSON(http.StatusOK, t)
}

func (c *SensorController) DeleteThreshold(ctx *gin.Context) {
	t, err := c.sensorRepo.GetThreshold(ctx, ctx.Param("threshold_id"))
	if err != nil {
		c.writeRepoError(ctx, err, "threshold not found")
		return
	}

	if err := c.sensorRepo.DeleteThreshold(ctx, t.ID); err != nil {
		c.writeRepoError(ctx, err, "threshold not found")
		return
	}

	c.invalidateForConfig(ctx, t.SensorConfigID)
	ctx.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (c *SensorController) invalidateForConfig(ctx *gin.Context, configID string) {
	cfg, err := c.sensorRepo.GetConfig(ctx, configID)
	if err != nil {
		c.logger.WithField("config_id", configID).ErrorWithError(err, "cache invalidation lookup failed")
		return
	}
	c.engine.InvalidateConfig(cfg.DeviceID)
}

func (c *SensorController) writeRepoError(ctx *gin.Context, err error, notFoundMsg string) {
	if errors.Is(err, interfaces.ErrNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": notFoundMsg})
		return
	}
	ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
