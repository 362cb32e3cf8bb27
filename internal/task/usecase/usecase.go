package usecase

import (
	"context"
	"time"

	authdomain "foratask-backend/internal/auth/domain"
	historydomain "foratask-backend/internal/history/domain"
	historyusecase "foratask-backend/internal/history/usecase"
	"foratask-backend/internal/notification"
	notificationdomain "foratask-backend/internal/notification/domain"
	"foratask-backend/internal/task/domain"
)

// TaskUsecase defines the interface for task business logic
type TaskUsecase interface {
	// CreateTask validates and stores a task, then tells every participant about it
	CreateTask(ctx context.Context, actor *authdomain.Actor, req CreateTaskRequest) (*domain.Task, error)

	// GetTask retrieves a task as the actor is allowed to see it
	GetTask(ctx context.Context, actor *authdomain.Actor, taskID string) (*domain.Task, error)

	// ListTasks retrieves the tasks visible to the actor with an optional status filter
	ListTasks(ctx context.Context, actor *authdomain.Actor, status *string, limit, offset int) ([]*domain.Task, int64, error)

	// EditTask applies the fields the actor's role allows
	EditTask(ctx context.Context, actor *authdomain.Actor, taskID string, updates TaskUpdateRequest) (*domain.Task, error)

	// DeleteTask deletes a task
	DeleteTask(ctx context.Context, actor *authdomain.Actor, taskID string) error

	// GetCompletionHistory returns one page of a task's completion records
	GetCompletionHistory(ctx context.Context, actor *authdomain.Actor, taskID string, page, limit int) (*historydomain.Page, error)
}

// CreateTaskRequest is the payload for a new task
type CreateTaskRequest struct {
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Assignees         []string `json:"assignees"`
	Observers         []string `json:"observers"`
	DueDateTime       string   `json:"dueDateTime"`
	Priority          string   `json:"priority"`
	TaskType          string   `json:"taskType"`
	RecurringSchedule *string  `json:"recurringSchedule,omitempty"`
	Reminder          *string  `json:"reminder,omitempty"`
	RepeatReminder    []string `json:"repeatReminder,omitempty"`
}

// TaskUpdateRequest represents the fields that can be updated
type TaskUpdateRequest struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Assignees   *[]string `json:"assignees,omitempty"`
	Observers   *[]string `json:"observers,omitempty"`
	DueDateTime *string   `json:"dueDateTime,omitempty"`
	Priority    *string   `json:"priority,omitempty"`
	Status      *string   `json:"status,omitempty"`
}

// NotificationWriter is the part of the notification service task operations write through
type NotificationWriter interface {
	Notify(ctx context.Context, req notification.Request) ([]*notificationdomain.Notification, error)
	Get(ctx context.Context, id string) (*notificationdomain.Notification, error)
	ResolveDecision(ctx context.Context, id string, decision notificationdomain.Decision) error
	DiscardPendingApprovals(ctx context.Context, taskID string) error
}

// HistoryRecorder stores and serves completion records
type HistoryRecorder interface {
	Record(ctx context.Context, task *domain.Task, in historyusecase.RecordInput) (*historydomain.CompletionRecord, error)
	RecordedForDue(ctx context.Context, taskID string, due time.Time) (bool, error)
	History(ctx context.Context, taskID string, page, limit int) (*historydomain.Page, error)
}
