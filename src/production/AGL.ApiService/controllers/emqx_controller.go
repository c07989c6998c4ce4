package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	emqx "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Emqx"
	logger "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Logger"
)

// EmqxController exposes the broker's authentication and ACL webhooks.
// EMQX treats 200 as allow and 403 as deny.
type EmqxController struct {
	emqx   *emqx.Service
	logger *logger.Logger
}

// NewEmqxController creates a new EMQX hook controller.
func NewEmqxController(svc *emqx.Service, logger *logger.Logger) *EmqxController {
	return &EmqxController{emqx: svc, logger: logger}
}

// RegisterRoutes registers the EMQX hook routes with Gin.
func (c *EmqxController) RegisterRoutes(router *gin.Engine) {
	hooks := router.Group("/emqx")
	{
		hooks.POST("/auth", c.Authenticate)
		hooks.POST("/acl", c.CheckACL)
	}
}

type EmqxAuthRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password"`
}

func (c *EmqxController) Authenticate(ctx *gin.Context) {
	var req EmqxAuthRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !c.emqx.Authenticate(ctx, req.Username, req.Password) {
		ctx.JSON(http.StatusForbidden, gin.H{"result": "deny"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"result": "allow"})
}

type EmqxACLRequest struct {
	Username string `json:"username" binding:"required"`
	Topic    string `json:"topic" binding:"required"`
	// Access is the numeric operation code (1 subscribe, 2 publish);
	// Action is the textual form some broker versions send instead.
	Access int    `json:"access"`
	Action string `json:"action"`
}

func (c *EmqxController) CheckACL(ctx *gin.Context) {
	var req EmqxACLRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	access := emqx.Access(req.Access)
	switch req.Action {
	case "subscribe":
		access = emqx.AccessSubscribe
	case "publish":
		access = emqx.AccessPublish
	}
	if access != emqx.AccessSubscribe && access != emqx.AccessPublish {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid access"})
		return
	}

	if !c.emqx.CheckACL(ctx, req.Username, req.Topic, access) {
		ctx.JSON(http.StatusForbidden, gin.H{"result": "deny"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"result": "allow"})
}
