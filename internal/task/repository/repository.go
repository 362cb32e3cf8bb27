package repository

import (
	"context"
	"errors"
	"time"

	"foratask-backend/internal/task/domain"
)

var ErrOptimisticLock = errors.New("optimistic locking conflict")

// ListFilter narrows FindVisible. An empty ViewerID lists every task of the company.
type ListFilter struct {
	CompanyID string
	ViewerID  string
	Status    *domain.TaskStatus
	Limit     int
	Offset    int
}

// TaskRepository defines the interface for task data access
type TaskRepository interface {
	// Create stores a task with its members and notification schedule
	Create(ctx context.Context, task *domain.Task) error

	// FindByID returns nil, nil when the task does not exist
	FindByID(ctx context.Context, id string) (*domain.Task, error)

	FindByIDs(ctx context.Context, ids []string) ([]*domain.Task, error)

	// FindVisible lists tasks ordered by urgency, then due time
	FindVisible(ctx context.Context, filter ListFilter) ([]*domain.Task, int64, error)

	// Update writes task fields and members if task.Version still matches.
	// Returns ErrOptimisticLock otherwise. The schedule is left untouched.
	Update(ctx context.Context, task *domain.Task) error

	Delete(ctx context.Context, id string) error

	// MarkOverdue moves every lapsed open task to Overdue and queues one
	// unresolved overdue schedule entry per task. Returns the affected ids.
	MarkOverdue(ctx context.Context, now time.Time) ([]string, error)

	// FindPendingOverdue returns Overdue tasks whose overdue entry is unresolved
	FindPendingOverdue(ctx context.Context) ([]*domain.Task, error)

	// FindDueReminders returns tasks not Completed or For Approval with an unresolved reminder entry at or before now
	FindDueReminders(ctx context.Context, now time.Time) ([]*domain.Task, error)

	// ResolveSchedule sets an entry's notification reference if it is still empty.
	// Reports false when the entry was already resolved.
	ResolveSchedule(ctx context.Context, entryID, notificationID string) (bool, error)

	// ReplaceSchedule swaps the unresolved entries of a task for entries.
	// Resolved entries are also dropped unless keepResolved is set.
	ReplaceSchedule(ctx context.Context, taskID string, entries []domain.NotificationSchedule, keepResolved bool) error

	// FindRecurringForRollover returns recurring tasks whose cycle has concluded or lapsed
	FindRecurringForRollover(ctx context.Context, now time.Time) ([]*domain.Task, error)

	// Rollover persists an advanced cycle and its fresh schedule in one transaction
	Rollover(ctx context.Context, task *domain.Task, entries []domain.NotificationSchedule) error
}
