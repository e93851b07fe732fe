package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"jamlink/internal/core/domain"
	"jamlink/internal/core/services"
	apperrors "jamlink/pkg/errors"
)

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/auth")
	{
		api.POST("/pair", h.Pair)
		api.POST("/refresh", h.RefreshToken)
	}
}

type PairRequest struct {
	Name        string            `json:"name" binding:"required,max=50"`
	PairingCode string            `json:"pairing_code" binding:"required,max=64"`
	Role        domain.ClientRole `json:"role"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required,max=2048"`
}

func (h *AuthHandler) Pair(c *gin.Context) {
	var req PairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	pair, err := h.authService.Pair(strings.TrimSpace(req.Name), req.PairingCode, req.Role)
	if err != nil {
		if errors.Is(err, services.ErrInvalidPairing) {
			c.Error(apperrors.NewUnauthorizedError("invalid pairing code"))
			return
		}
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, pair)
}

func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	claims, err := h.authService.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		c.Error(apperrors.NewUnauthorizedError("invalid refresh token"))
		return
	}

	accessToken, err := h.authService.GenerateToken(claims.Client())
	if err != nil {
		c.Error(apperrors.NewInternalError("failed to generate token"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": accessToken,
		"client":       claims.Client(),
	})
}
