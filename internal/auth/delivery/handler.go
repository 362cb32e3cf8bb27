package delivery

import (
	"net/http"

	authdto "foratask-backend/internal/auth/dto"
	"foratask-backend/internal/auth/usecase"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authUsecase usecase.AuthUsecase
}

func NewAuthHandler(authUsecase usecase.AuthUsecase) *AuthHandler {
	return &AuthHandler{authUsecase: authUsecase}
}

// Me returns the actor resolved from the bearer token.
// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	actor := ActorFrom(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, actor)
}

// RegisterPushToken stores a device token for push delivery.
// POST /api/fcm/register
func (h *AuthHandler) RegisterPushToken(c *gin.Context) {
	userID := c.GetString("userID")

	var req authdto.RegisterPushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.authUsecase.RegisterPushToken(c.Request.Context(), userID, req.Token, req.DeviceInfo); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "token registered"})
}

// UnregisterPushToken removes one of the caller's device tokens.
// DELETE /api/fcm/:token
func (h *AuthHandler) UnregisterPushToken(c *gin.Context) {
	userID := c.GetString("userID")
	token := c.Param("token")

	if err := h.authUsecase.UnregisterPushToken(c.Request.Context(), userID, token); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "token removed"})
}
