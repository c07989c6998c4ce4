package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gitlab.com/agrilink1/agl.farm_server/src/production/AGL.ApiService/middleware"
	logger "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Logger"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
)

// FarmController handles the farm directory slice the platform needs for
// pairing and access checks.
type FarmController struct {
	farmRepo       interfaces.FarmRepository
	logger         *logger.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewFarmController creates a new farm controller.
func NewFarmController(farmRepo interfaces.FarmRepository, logger *logger.Logger, authMiddleware *middleware.AuthMiddleware) *FarmController {
	return &FarmController{
		farmRepo:       farmRepo,
		logger:         logger,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers the farm routes with Gin.
func (c *FarmController) RegisterRoutes(router *gin.Engine) {
	farms := router.Group("/farms", c.authMiddleware.Authenticate())
	{
		farms.GET("", c.ListFarms)
		farms.POST("", c.CreateFarm)
		farms.GET("/:farm_id", c.GetFarm)
	}
}

func (c *FarmController) ListFarms(ctx *gin.Context) {
	currentUserID, err := middleware.GetUserFromGinContext(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	farms, err := c.farmRepo.ListByOwner(ctx, currentUserID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, farms)
}

type CreateFarmRequest struct {
	Name     string `json:"name" binding:"required"`
	Location string `json:"location"`
}

func (c *FarmController) CreateFarm(ctx *gin.Context) {
	currentUserID, err := middleware.GetUserFromGinContext(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req CreateFarmRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	farm, err := c.farmRepo.CreateFarm(ctx, aglmodels.Farm{
		Name:     req.Name,
		Location: req.Location,
		OwnerID:  currentUserID,
	})
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusCreated, farm)
}

func (c *FarmController) GetFarm(ctx *gin.Context) {
	farm, err := c.farmRepo.GetFarm(ctx, ctx.Param("farm_id"))
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "farm not found"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	userRole, _ := middleware.GetRoleFromGinContext(ctx)
	if userRole != "admin" {
		currentUserID, _ := middleware.GetUserFromGinContext(ctx)
		if farm.OwnerID != currentUserID {
			ctx.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
	}

	ctx.JSON(http.StatusOK, farm)
}
