package api

import (
	"net/http"

	authUsecase "foratask-backend/internal/auth/usecase"
	notificationDelivery "foratask-backend/internal/notification/delivery"
	taskDelivery "foratask-backend/internal/task/delivery"
	taskUsecasePkg "foratask-backend/internal/task/usecase"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	authUsecase         authUsecase.AuthUsecase
	taskHandler         *taskDelivery.TaskHandler
	notificationHandler *notificationDelivery.NotificationHandler
}

func NewHandler(authUc authUsecase.AuthUsecase, taskUc taskUsecasePkg.TaskUsecase, engine *taskUsecasePkg.TransitionEngine, inbox notificationDelivery.Inbox) *Handler {
	return &Handler{
		authUsecase:         authUc,
		taskHandler:         taskDelivery.NewTaskHandler(taskUc, engine),
		notificationHandler: notificationDelivery.NewNotificationHandler(inbox, engine),
	}
}

// Engine builds the gin engine with CORS and every route mounted
func (h *Handler) Engine() *gin.Engine {
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Setup routes
	SetupRoutes(r, h.authUsecase, h.taskHandler, h.notificationHandler)

	return r
}

// Server returns an http.Server for addr; the caller owns its lifecycle
func (h *Handler) Server(addr string) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: h.Engine(),
	}
}
