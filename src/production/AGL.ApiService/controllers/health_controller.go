package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	logger "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Logger"
	metrics "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Metrics"
	"gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Startup/health"
)

// HealthController handles health and metrics requests.
type HealthController struct {
	checker *health.HealthChecker
	metrics *metrics.Metrics
	logger  *logger.Logger
}

// NewHealthController creates a new health controller.
func NewHealthController(checker *health.HealthChecker, m *metrics.Metrics, logger *logger.Logger) *HealthController {
	return &HealthController{checker: checker, metrics: m, logger: logger}
}

// RegisterRoutes registers the health routes with Gin.
func (c *HealthController) RegisterRoutes(router *gin.Engine) {
	router.GET("/health/live", c.HealthLive)
	router.GET("/health/ready", c.HealthReady)
	router.GET("/metrics", gin.WrapH(c.metrics.Handler()))
}

func (c *HealthController) HealthLive(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (c *HealthController) HealthReady(ctx *gin.Context) {
	status := c.checker.GetHealthStatus(ctx)

	code := http.StatusOK
	if status["status"] != "ok" {
		code = http.StatusServiceUnavailable
	}

	ctx.JSON(code, status)
}
