package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"gitlab.com/agrilink1/agl.farm_server/src/production/AGL.ApiService/middleware"
	logger "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Logger"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
)

// DataController handles raw sample, alert log and command log queries.
type DataController struct {
	dataRepo       interfaces.SensorDataRepository
	alertRepo      interfaces.AlertLogRepository
	commandRepo    interfaces.CommandLogRepository
	logger         *logger.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewDataController creates a new data controller.
func NewDataController(dataRepo interfaces.SensorDataRepository, alertRepo interfaces.AlertLogRepository, commandRepo interfaces.CommandLogRepository, logger *logger.Logger, authMiddleware *middleware.AuthMiddleware) *DataController {
	return &DataController{
		dataRepo:       dataRepo,
		alertRepo:      alertRepo,
		commandRepo:    commandRepo,
		logger:         logger,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers the data routes with Gin.
func (c *DataController) RegisterRoutes(router *gin.Engine) {
	devices := router.Group("/devices", c.authMiddleware.Authenticate())
	{
		devices.GET("/:device_id/data", c.ListSensorData)
		devices.GET("/:device_id/data/latest", c.LatestSensorData)
		devices.GET("/:device_id/alerts", c.ListAlerts)
		devices.POST("/:device_id/alerts/:alert_id/acknowledge", c.AcknowledgeAlert)
		devices.GET("/:device_id/commands", c.ListCommandLogs)
	}
}

func (c *DataController) ListSensorData(ctx *gin.Context) {
	deviceID := ctx.Param("device_id")

	query := interfaces.SensorDataQuery{
		SensorType: aglmodels.SensorType(ctx.Query("sensor_type")),
		Limit:      queryLimit(ctx, 100),
	}
	query.From, query.To = queryTimeRange(ctx)

	samples, err := c.dataRepo.ListByDevice(ctx, deviceID, query)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, samples)
}

func (c *DataController) LatestSensorData(ctx *gin.Context) {
	deviceID := ctx.Param("device_id")

	samples, err := c.dataRepo.LatestByDevice(ctx, deviceID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, samples)
}

func (c *DataController) ListAlerts(ctx *gin.Context) {
	deviceID := ctx.Param("device_id")

	query := interfaces.AlertQuery{
		SensorType: aglmodels.SensorType(ctx.Query("sensor_type")),
		Level:      aglmodels.ThresholdLevel(ctx.Query("level")),
		Limit:      queryLimit(ctx, 100),
	}
	query.From, query.To = queryTimeRange(ctx)

	if ackStr := ctx.Query("acknowledged"); ackStr != "" {
		ack := ackStr == "true"
		query.Acknowledged = &ack
	}

	alerts, err := c.alertRepo.ListByDevice(ctx, deviceID, query)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, alerts)
}

func (c *DataController) AcknowledgeAlert(ctx *gin.Context) {
	deviceID := ctx.Param("device_id")
	alertID := ctx.Param("alert_id")

	alert, err := c.alertRepo.Acknowledge(ctx, deviceID, alertID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, alert)
}

func (c *DataController) ListCommandLogs(ctx *gin.Context) {
	deviceID := ctx.Param("device_id")

	query := interfaces.CommandLogQuery{
		Source: aglmodels.CommandSource(ctx.Query("source")),
		Limit:  queryLimit(ctx, 100),
	}
	query.From, query.To = queryTimeRange(ctx)

	entries, err := c.commandRepo.ListByDevice(ctx, deviceID, query)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, entries)
}

func queryLimit(ctx *gin.Context, fallback int) int {
	limit, err := strconv.Atoi(ctx.DefaultQuery("limit", strconv.Itoa(fallback)))
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

func queryTimeRange(ctx *gin.Context) (from, to *time.Time) {
	if fromStr := ctx.Query("from"); fromStr != "" {
		if t, err := time.Parse(time.RFC3339, fromStr); err == nil {
			from = &t
		}
	}
	if toStr := ctx.Query("to"); toStr != "" {
		if t, err := time.Parse(time.RFC3339, toStr); err == nil {
			to = &t
		}
	}
	return from, to
}
