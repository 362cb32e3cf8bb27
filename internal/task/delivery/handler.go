package delivery

import (
	"context"
	"net/http"
	"strconv"

	"foratask-backend/internal/apperror"
	authdelivery "foratask-backend/internal/auth/delivery"
	authdomain "foratask-backend/internal/auth/domain"
	"foratask-backend/internal/task/usecase"

	"github.com/gin-gonic/gin"
)

// Completer runs completion requests through the transition rules
type Completer interface {
	MarkAsCompleted(ctx context.Context, actor *authdomain.Actor, taskIDs []string) ([]usecase.Outcome, error)
}

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	taskUsecase usecase.TaskUsecase
	completer   Completer
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(taskUsecase usecase.TaskUsecase, completer Completer) *TaskHandler {
	return &TaskHandler{
		taskUsecase: taskUsecase,
		completer:   completer,
	}
}

// CompleteTasksRequest represents the request body for marking tasks completed
type CompleteTasksRequest struct {
	TaskIDs []string `json:"taskIds"`
}

// RegisterRoutes mounts the task routes on an authenticated group
func (h *TaskHandler) RegisterRoutes(tasks *gin.RouterGroup) {
	tasks.GET("", h.GetTasks)
	tasks.POST("", h.CreateTask)
	tasks.POST("/complete", h.MarkAsCompleted)
	tasks.GET("/:id", h.GetTaskByID)
	tasks.PUT("/:id", h.UpdateTask)
	tasks.DELETE("/:id", h.DeleteTask)
	tasks.GET("/:id/history", h.GetCompletionHistory)
}

// GetTasks returns the tasks visible to the caller
// GET /api/tasks?status=Pending&limit=50&offset=0
func (h *TaskHandler) GetTasks(c *gin.Context) {
	actor := authdelivery.ActorFrom(c)

	status := c.Query("status")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	var statusPtr *string
	if status != "" {
		statusPtr = &status
	}

	tasks, total, err := h.taskUsecase.ListTasks(c.Request.Context(), actor, statusPtr, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks": tasks,
		"total": total,
	})
}

// GetTaskByID returns a specific task
// GET /api/tasks/:id
func (h *TaskHandler) GetTaskByID(c *gin.Context) {
	task, err := h.taskUsecase.GetTask(c.Request.Context(), authdelivery.ActorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, task)
}

// CreateTask creates a new task
// POST /api/tasks
func (h *TaskHandler) CreateTask(c *gin.Context) {
	var req usecase.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.taskUsecase.CreateTask(c.Request.Context(), authdelivery.ActorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Task created",
		"taskId":  task.ID,
		"task":    task,
	})
}

// UpdateTask edits an existing task
// PUT /api/tasks/:id
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	var updates usecase.TaskUpdateRequest
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.taskUsecase.EditTask(c.Request.Context(), authdelivery.ActorFrom(c), c.Param("id"), updates)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Task updated successfully",
		"data":    task,
	})
}

// DeleteTask deletes a task
// DELETE /api/tasks/:id
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	if err := h.taskUsecase.DeleteTask(c.Request.Context(), authdelivery.ActorFrom(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Task deleted successfully"})
}

// MarkAsCompleted completes or submits a batch of tasks
// POST /api/tasks/complete
func (h *TaskHandler) MarkAsCompleted(c *gin.Context) {
	var req CompleteTasksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcomes, err := h.completer.MarkAsCompleted(c.Request.Context(), authdelivery.ActorFrom(c), req.TaskIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	failed := 0
	for _, o := range outcomes {
		if o.Error != "" {
			failed++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"results": outcomes,
		"updated": len(outcomes) - failed,
		"failed":  failed,
	})
}

// GetCompletionHistory returns one page of completion records with stats
// GET /api/tasks/:id/history?page=0&limit=10
func (h *TaskHandler) GetCompletionHistory(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	result, err := h.taskUsecase.GetCompletionHistory(c.Request.Context(), authdelivery.ActorFrom(c), c.Param("id"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func respondError(c *gin.Context, err error) {
	c.JSON(apperror.HTTPStatus(err), gin.H{"error": err.Error()})
}
