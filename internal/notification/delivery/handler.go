package delivery

import (
	"context"
	"net/http"
	"strconv"

	"foratask-backend/internal/apperror"
	authdelivery "foratask-backend/internal/auth/delivery"
	authdomain "foratask-backend/internal/auth/domain"
	"foratask-backend/internal/notification/domain"
	taskdomain "foratask-backend/internal/task/domain"

	"github.com/gin-gonic/gin"
)

// Inbox is the per-user read side of notifications
type Inbox interface {
	List(ctx context.Context, userID string, limit int) ([]*domain.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// ApprovalDecider applies an approve/reject answer to an approval request
type ApprovalDecider interface {
	HandleApprovalDecision(ctx context.Context, actor *authdomain.Actor, notificationID, decision string) (*taskdomain.Task, error)
}

type NotificationHandler struct {
	inbox   Inbox
	decider ApprovalDecider
}

func NewNotificationHandler(inbox Inbox, decider ApprovalDecider) *NotificationHandler {
	return &NotificationHandler{
		inbox:   inbox,
		decider: decider,
	}
}

// DecisionRequest represents the body of an approval answer
type DecisionRequest struct {
	Decision string `json:"decision" binding:"required"`
}

// RegisterRoutes mounts the notification routes on an authenticated group
func (h *NotificationHandler) RegisterRoutes(notifications *gin.RouterGroup) {
	notifications.GET("", h.List)
	notifications.GET("/unread-count", h.UnreadCount)
	notifications.PUT("/read-all", h.MarkAllRead)
	notifications.POST("/:id/approval", h.HandleApproval)
}

// List returns the caller's notifications newest first and marks them read
// GET /api/notifications?limit=50
func (h *NotificationHandler) List(c *gin.Context) {
	userID := c.GetString("userID")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	notifications, err := h.inbox.List(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

// UnreadCount returns how many notifications the caller has not read
// GET /api/notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	count, err := h.inbox.UnreadCount(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

// MarkAllRead flags every notification of the caller as read
// PUT /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	updated, err := h.inbox.MarkAllRead(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// HandleApproval answers an approval request
// POST /api/notifications/:id/approval
func (h *NotificationHandler) HandleApproval(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.decider.HandleApprovalDecision(c.Request.Context(), authdelivery.ActorFrom(c), c.Param("id"), req.Decision)
	if err != nil {
		c.JSON(apperror.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	message := "Task approved"
	if domain.Decision(req.Decision) == domain.DecisionReject {
		message = "Task rejected"
	}
	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"task":    task,
	})
}
