package jwt

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
	api_models "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models/api"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
)

// Service provides JWT operations
type Service struct {
	config api_models.Config
}

// NewService creates a new JWT service
func NewService(config api_models.Config) *Service {
	return &Service{
		config: config,
	}
}

// GenerateTokens creates a new set of tokens: access and refresh. The
// tokenVersion is baked into both so a server-side version bump revokes
// everything issued before it.
func (s *Service) GenerateTokens(userID, role string, tokenVersion int) (*api_models.TokenPair, error) {
	tokenID := uuid.New().String()
	now := time.Now()
	expiresAt := now.Add(s.config.AccessTokenDuration)

	accessClaims := api_models.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.config.Issuer,
		},
		UserID:       userID,
		Role:         role,
		TokenID:      tokenID,
		TokenVersion: tokenVersion,
	}

	refreshClaims := api_models.RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.RefreshTokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.config.Issuer,
		},
		UserID:       userID,
		TokenID:      tokenID,
		TokenVersion: tokenVersion,
	}

	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims)
	refreshToken := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims)

	accessTokenString, err := accessToken.SignedString([]byte(s.config.SecretKey))
	if err != nil {
		return nil, err
	}

	refreshTokenString, err := refreshToken.SignedString([]byte(s.config.SecretKey))
	if err != nil {
		return nil, err
	}

	return &api_models.TokenPair{
		AccessToken:  accessTokenString,
		RefreshToken: refreshTokenString,
		TokenID:      tokenID,
		ExpiresAt:    expiresAt.Unix(),
	}, nil
}

// ValidateAccessToken validates an access token and returns the claims
func (s *Service) ValidateAccessToken(tokenString string) (*api_models.AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &api_models.AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.config.SecretKey), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*api_models.AccessClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// ValidateRefreshToken validates a refresh token and returns the claims
func (s *Service) ValidateRefreshToken(tokenString string) (*api_models.RefreshClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &api_models.RefreshClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.config.SecretKey), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*api_models.RefreshClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid refresh token")
}

// RefreshTokens generates new access token using a refresh token
func (s *Service) RefreshTokens(refreshTokenString string, userRepo interfaces.UserRepository) (*api_models.TokenPair, error) {
	refreshClaims, err := s.ValidateRefreshToken(refreshTokenString)
	if err != nil {
		return nil, errors.New("invalid refresh token")
	}

	user, err := userRepo.GetUser(context.Background(), refreshClaims.UserID)
	if err != nil {
		return nil, errors.New("user not found")
	}

	// A stale version means the refresh token was revoked.
	if refreshClaims.TokenVersion != user.TokenVersion {
		return nil, errors.New("refresh token revoked")
	}

	newTokens, err := s.GenerateTokens(user.ID, user.Role, user.TokenVersion)
	if err != nil {
		return nil, errors.New("failed to generate new tokens: " + err.Error())
	}

	return newTokens, nil
}
