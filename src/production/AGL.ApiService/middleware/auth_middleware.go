package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	jwt "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.ApiService/implementation/jwt"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
)

// Keys under which the middleware stores claims in the gin context.
const (
	UserIDContextKey   = "user_id"
	UserRoleContextKey = "user_role"
	TokenIDContextKey  = "token_id"
)

// AuthMiddleware provides middleware functions for authentication and
// authorization.
type AuthMiddleware struct {
	jwtService *jwt.Service
	userRepo   interfaces.UserRepository
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(jwtService *jwt.Service, userRepo interfaces.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
		userRepo:   userRepo,
	}
}

// extractToken gets a bearer token from the Authorization header or the
// access_token cookie.
func extractToken(r *http.Request) string {
	token := r.Header.Get("Authorization")
	if token != "" {
		if strings.HasPrefix(token, "Bearer ") {
			return strings.TrimPrefix(token, "Bearer ")
		}
		return token
	}

	cookie, err := r.Cookie("access_token")
	if err == nil {
		return cookie.Value
	}

	return ""
}

// Authenticate verifies the access token and rejects tokens issued before
// the user's last revocation.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		accessToken := extractToken(c.Request)
		if accessToken == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		claims, err := m.jwtService.ValidateAccessToken(accessToken)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid access token"})
			c.Abort()
			return
		}

		user, err := m.userRepo.GetUser(c.Request.Context(), claims.UserID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid access token"})
			c.Abort()
			return
		}
		if user.TokenVersion != claims.TokenVersion {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token revoked"})
			c.Abort()
			return
		}

		c.Set(UserIDContextKey, claims.UserID)
		c.Set(UserRoleContextKey, user.Role)
		c.Set(TokenIDContextKey, claims.TokenID)

		c.Next()
	}
}

// RequireAdmin ensures the authenticated user has the admin role. It must
// run after Authenticate.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := GetRoleFromGinContext(c)
		if err != nil || role != "admin" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserFromGinContext retrieves the authenticated user id.
func GetUserFromGinContext(c *gin.Context) (string, error) {
	userIDVal, exists := c.Get(UserIDContextKey)
	if !exists {
		return "", errors.New("user not found in context")
	}

	userID, ok := userIDVal.(string)
	if !ok || userID == "" {
		return "", errors.New("invalid user ID format in context")
	}

	return userID, nil
}

// GetRoleFromGinContext retrieves the authenticated user's role.
func GetRoleFromGinContext(c *gin.Context) (string, error) {
	roleVal, exists := c.Get(UserRoleContextKey)
	if !exists {
		return "", errors.New("role not found in context")
	}

	role, ok := roleVal.(string)
	if !ok || role == "" {
		return "", errors.New("invalid role format in context")
	}

	return role, nil
}
