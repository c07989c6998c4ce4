package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gitlab.com/agrilink1/agl.farm_server/src/production/AGL.ApiService/middleware"
	logger "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Logger"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
	scheduler "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Scheduler"
)

// ScheduleController handles device schedule management.
type ScheduleController struct {
	scheduler      *scheduler.Scheduler
	scheduleRepo   interfaces.ScheduleRepository
	logger         *logger.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewScheduleController creates a new schedule controller.
func NewScheduleController(sched *scheduler.Scheduler, scheduleRepo interfaces.ScheduleRepository, logger *logger.Logger, authMiddleware *middleware.AuthMiddleware) *ScheduleController {
	return &ScheduleController{
		scheduler:      sched,
		scheduleRepo:   scheduleRepo,
		logger:         logger,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers the schedule routes with Gin.
func (c *ScheduleController) RegisterRoutes(router *gin.Engine) {
	schedules := router.Group("/schedules", c.authMiddleware.Authenticate())
	{
		schedules.GET("", c.ListSchedules)
		schedules.POST("", c.CreateSchedule)
		schedules.GET("/:schedule_id", c.GetSchedule)
		schedules.PATCH("/:schedule_id", c.UpdateSchedule)
		schedules.DELETE("/:schedule_id", c.DeleteSchedule)
		schedules.POST("/:schedule_id/toggle", c.Toggle)
	}
}

func (c *ScheduleController) ListSchedules(ctx *gin.Context) {
	schedules, err := c.scheduleRepo.ListSchedules(ctx, ctx.Query("device_id"), ctx.Query("farm_id"))
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, schedules)
}

type CreateScheduleRequest struct {
	Name       string                 `json:"name" binding:"required"`
	DeviceID   string                 `json:"device_id"`
	FarmID     string                 `json:"farm_id"`
	Type       string                 `json:"type" binding:"required"`
	Command    string                 `json:"command" binding:"required"`
	Params     map[string]interface{} `json:"params"`
	Enabled    *bool                  `json:"enabled"`
	ExecuteAt  *time.Time             `json:"execute_at"`
	DaysOfWeek []int                  `json:"days_of_week"`
	Time       string                 `json:"time"`
	Timezone   string                 `json:"timezone"`
}

func (c *ScheduleController) CreateSchedule(ctx *gin.Context) {
	var req CreateScheduleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sched := aglmodels.DeviceSchedule{
		Name:       req.Name,
		DeviceID:   req.DeviceID,
		FarmID:     req.FarmID,
		Type:       aglmodels.ScheduleType(req.Type),
		Command:    req.Command,
		Params:     req.Params,
		Enabled:    true,
		ExecuteAt:  req.ExecuteAt,
		DaysOfWeek: req.DaysOfWeek,
		Time:       req.Time,
		Timezone:   req.Timezone,
	}
	if req.Enabled != nil {
		sched.Enabled = *req.Enabled
	}

	created, err := c.scheduler.CreateSchedule(ctx, sched)
	if err != nil {
		c.writeScheduleError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, created)
}

func (c *ScheduleController) GetSchedule(ctx *gin.Context) {
	sched, err := c.scheduleRepo.GetSchedule(ctx, ctx.Param("schedule_id"))
	if err != nil {
		c.writeScheduleError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, sched)
}

type UpdateScheduleRequest struct {
	Name       *string                `json:"name"`
	Command    *string                `json:"command"`
	Params     map[string]interface{} `json:"params"`
	Enabled    *bool                  `json:"enabled"`
	ExecuteAt  *time.Time             `json:"execute_at"`
	DaysOfWeek []int                  `json:"days_of_week"`
	Time       *string                `json:"time"`
	Timezone   *string                `json:"timezone"`
}

func (c *ScheduleController) UpdateSchedule(ctx *gin.Context) {
	sched, err := c.scheduleRepo.GetSchedule(ctx, ctx.Param("schedule_id"))
	if err != nil {
		c.writeScheduleError(ctx, err)
		return
	}

	var req UpdateScheduleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Name != nil {
		sched.Name = *req.Name
	}
	if req.Command != nil {
		sched.Command = *req.Command
	}
	if req.Params != nil {
		sched.Params = req.Params
	}
	if req.Enabled != nil {
		sched.Enabled = *req.Enabled
	}
	if req.ExecuteAt != nil {
		sched.ExecuteAt = req.ExecuteAt
	}
	if req.DaysOfWeek != nil {
		sched.DaysOfWeek = req.DaysOfWeek
	}
	if req.Time != nil {
		sched.Time = *req.Time
	}
	if req.Timezone != nil {
		sched.Timezone = *req.Timezone
	}

	if err := c.scheduler.UpdateSchedule(ctx, sched); err != nil {
		c.writeScheduleError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, sched)
}

func (c *ScheduleController) DeleteSchedule(ctx *gin.Context) {
	if err := c.scheduleRepo.DeleteSchedule(ctx, ctx.Param("schedule_id")); err != nil {
		c.writeScheduleError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (c *ScheduleController) Toggle(ctx *gin.Context) {
	sched, err := c.scheduler.Toggle(ctx, ctx.Param("schedule_id"))
	if err != nil {
		c.writeScheduleError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, sched)
}

func (c *ScheduleController) writeScheduleError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, interfaces.ErrNotFound), errors.Is(err, scheduler.ErrScheduleNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "schedule not found"})
	case errors.Is(err, scheduler.ErrAmbiguousTarget):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "exactly one of device_id and farm_id must be set"})
	case errors.Is(err, scheduler.ErrInvalidSchedule):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
