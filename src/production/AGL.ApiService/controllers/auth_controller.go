package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	jwt "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.ApiService/implementation/jwt"
	"gitlab.com/agrilink1/agl.farm_server/src/production/AGL.ApiService/middleware"
	config "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Config"
	logger "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Logger"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
)

// AuthController handles login, token refresh and revocation.
type AuthController struct {
	userRepo       interfaces.UserRepository
	jwtService     *jwt.Service
	authConfig     config.AuthConfig
	logger         *logger.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewAuthController creates a new auth controller.
func NewAuthController(userRepo interfaces.UserRepository, jwtService *jwt.Service, authConfig config.AuthConfig, logger *logger.Logger, authMiddleware *middleware.AuthMiddleware) *AuthController {
	return &AuthController{
		userRepo:       userRepo,
		jwtService:     jwtService,
		authConfig:     authConfig,
		logger:         logger,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers the auth routes with Gin.
func (c *AuthController) RegisterRoutes(router *gin.Engine) {
	auth := router.Group("/auth")
	{
		auth.POST("/register", c.Register)
		auth.POST("/login", c.Login)
		auth.POST("/refresh", c.Refresh)
		auth.POST("/logout", c.authMiddleware.Authenticate(), c.Logout)
	}
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (c *AuthController) Register(ctx *gin.Context) {
	var req RegisterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if len(req.Password) < c.authConfig.PasswordMinLength {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "password too short"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	user, err := c.userRepo.Create(ctx, aglmodels.User{
		ID:           uuid.New().String(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         "user",
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, interfaces.ErrConflict) {
			ctx.JSON(http.StatusConflict, gin.H{"error": "username or email already taken"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusCreated, user)
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (c *AuthController) Login(ctx *gin.Context) {
	var req LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := c.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	tokens, err := c.jwtService.GenerateTokens(user.ID, user.Role, user.TokenVersion)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": user, "tokens": tokens})
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (c *AuthController) Refresh(ctx *gin.Context) {
	var req RefreshRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tokens, err := c.jwtService.RefreshTokens(req.RefreshToken, c.userRepo)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}

	ctx.JSON(http.StatusOK, tokens)
}

// Logout bumps the user's token version, revoking every token issued so
// far, including the one used for this request.
func (c *AuthController) Logout(ctx *gin.Context) {
	userID, err := middleware.GetUserFromGinContext(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	if err := c.userRepo.BumpTokenVersion(ctx, userID); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"logged_out": true})
}
