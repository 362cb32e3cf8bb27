package delivery

import (
	"net/http"
	"strings"

	authdomain "foratask-backend/internal/auth/domain"
	"foratask-backend/internal/auth/usecase"

	"github.com/gin-gonic/gin"
)

const actorKey = "actor"

func AuthMiddleware(authUsecase usecase.AuthUsecase) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		token := parts[1]
		actor, err := authUsecase.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(actorKey, actor)
		c.Set("userID", actor.ID)
		c.Next()
	}
}

// ActorFrom returns the actor stored by AuthMiddleware, or nil.
func ActorFrom(c *gin.Context) *authdomain.Actor {
	v, ok := c.Get(actorKey)
	if !ok {
		return nil
	}
	actor, _ := v.(*authdomain.Actor)
	return actor
}
