package repository

import (
	"context"
	"errors"
	"time"

	"foratask-backend/internal/task/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// closedStatuses never receive overdue transitions.
var closedStatuses = []domain.TaskStatus{
	domain.TaskStatusCompleted,
	domain.TaskStatusOverdue,
	domain.TaskStatusForApproval,
}

// silencedStatuses stop reminders. Overdue tasks keep firing the ones still due.
var silencedStatuses = []domain.TaskStatus{
	domain.TaskStatusCompleted,
	domain.TaskStatusForApproval,
}

const urgencyOrder = "CASE status " +
	"WHEN 'Overdue' THEN 0 " +
	"WHEN 'For Approval' THEN 1 " +
	"WHEN 'In Progress' THEN 2 " +
	"WHEN 'Pending' THEN 3 " +
	"ELSE 4 END, due_date_time ASC, created_at DESC"

// gormTaskRepository implements TaskRepository using GORM
type gormTaskRepository struct {
	db *gorm.DB
}

// NewGormTaskRepository creates a new GORM-based TaskRepository
func NewGormTaskRepository(db *gorm.DB) TaskRepository {
	return &gormTaskRepository{db: db}
}

func (r *gormTaskRepository) withRelations(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Members").
		Preload("Schedule", func(db *gorm.DB) *gorm.DB {
			return db.Order("trigger_at ASC")
		})
}

func (r *gormTaskRepository) Create(ctx context.Context, task *domain.Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Version == 0 {
		task.Version = 1
	}
	task.BuildMembers()
	for i := range task.Schedule {
		task.Schedule[i].TaskID = task.ID
		if task.Schedule[i].ID == "" {
			task.Schedule[i].ID = uuid.New().String()
		}
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(task).Error; err != nil {
			return err
		}
		if len(task.Members) > 0 {
			if err := tx.Create(&task.Members).Error; err != nil {
				return err
			}
		}
		if len(task.Schedule) > 0 {
			if err := tx.Create(&task.Schedule).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *gormTaskRepository) FindByID(ctx context.Context, id string) (*domain.Task, error) {
	var task domain.Task
	err := r.withRelations(ctx).Where("id = ?", id).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	task.HydrateParticipants()
	return &task, nil
}

func (r *gormTaskRepository) FindByIDs(ctx context.Context, ids []string) ([]*domain.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var tasks []*domain.Task
	if err := r.withRelations(ctx).Where("id IN ?", ids).Find(&tasks).Error; err != nil {
		return nil, err
	}
	hydrate(tasks)
	return tasks, nil
}

func (r *gormTaskRepository) FindVisible(ctx context.Context, filter ListFilter) ([]*domain.Task, int64, error) {
	var tasks []*domain.Task
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.Task{}).Where("company_id = ?", filter.CompanyID)

	if filter.ViewerID != "" {
		memberOf := r.db.Model(&domain.TaskMember{}).Select("task_id").Where("user_id = ?", filter.ViewerID)
		query = query.Where("(id IN (?) OR created_by = ?)", memberOf, filter.ViewerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	// Count total
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.
		Preload("Members").
		Preload("Schedule", func(db *gorm.DB) *gorm.DB {
			return db.Order("trigger_at ASC")
		}).
		Order(urgencyOrder)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}

	if err := query.Find(&tasks).Error; err != nil {
		return nil, 0, err
	}
	hydrate(tasks)
	return tasks, total, nil
}

func (r *gormTaskRepository) Update(ctx context.Context, task *domain.Task) error {
	now := time.Now().UTC()
	task.BuildMembers()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Task{}).
			Where("id = ? AND version = ?", task.ID, task.Version).
			Updates(map[string]interface{}{
				"title":              task.Title,
				"description":        task.Description,
				"due_date_time":      task.DueDateTime.UTC(),
				"priority":           task.Priority,
				"status":             task.Status,
				"task_type":          task.TaskType,
				"recurring_schedule": task.RecurringSchedule,
				"is_self_task":       task.IsSelfTask,
				"reminder":           task.Reminder,
				"repeat_reminders":   task.RepeatReminders,
				"updated_at":         now,
				"version":            gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrOptimisticLock
		}

		if err := tx.Where("task_id = ?", task.ID).Delete(&domain.TaskMember{}).Error; err != nil {
			return err
		}
		if len(task.Members) > 0 {
			return tx.Create(&task.Members).Error
		}
		return nil
	})
	if err != nil {
		return err
	}

	task.Version++
	task.UpdatedAt = now
	return nil
}

func (r *gormTaskRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", id).Delete(&domain.TaskMember{}).Error; err != nil {
			return err
		}
		if err := tx.Where("task_id = ?", id).Delete(&domain.NotificationSchedule{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.Task{}).Error
	})
}

func (r *gormTaskRepository) MarkOverdue(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Task{}).
			Where("due_date_time < ? AND status NOT IN ?", now.UTC(), closedStatuses).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Model(&domain.Task{}).
			Where("id IN ? AND status NOT IN ?", ids, closedStatuses).
			Updates(map[string]interface{}{
				"status":     domain.TaskStatusOverdue,
				"updated_at": now.UTC(),
				"version":    gorm.Expr("version + 1"),
			}).Error; err != nil {
			return err
		}

		entries := make([]domain.NotificationSchedule, 0, len(ids))
		for _, id := range ids {
			entries = append(entries, domain.NotificationSchedule{
				ID:        uuid.New().String(),
				TaskID:    id,
				TriggerAt: now.UTC(),
				Kind:      domain.ScheduleKindOverdue,
			})
		}
		return tx.Create(&entries).Error
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *gormTaskRepository) FindPendingOverdue(ctx context.Context) ([]*domain.Task, error) {
	var tasks []*domain.Task
	err := r.withRelations(ctx).
		Where("status = ?", domain.TaskStatusOverdue).
		Where("EXISTS (SELECT 1 FROM notification_schedules s WHERE s.task_id = tasks.id AND s.kind = ? AND s.notification_id IS NULL)",
			domain.ScheduleKindOverdue).
		Order("due_date_time ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	hydrate(tasks)
	return tasks, nil
}

func (r *gormTaskRepository) FindDueReminders(ctx context.Context, now time.Time) ([]*domain.Task, error) {
	var tasks []*domain.Task
	err := r.withRelations(ctx).
		Where("status NOT IN ?", silencedStatuses).
		Where("EXISTS (SELECT 1 FROM notification_schedules s WHERE s.task_id = tasks.id AND s.kind = ? AND s.notification_id IS NULL AND s.trigger_at <= ?)",
			domain.ScheduleKindReminder, now.UTC()).
		Order("due_date_time ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	hydrate(tasks)
	return tasks, nil
}

func (r *gormTaskRepository) ResolveSchedule(ctx context.Context, entryID, notificationID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.NotificationSchedule{}).
		Where("id = ? AND notification_id IS NULL", entryID).
		Update("notification_id", notificationID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormTaskRepository) ReplaceSchedule(ctx context.Context, taskID string, entries []domain.NotificationSchedule, keepResolved bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return replaceSchedule(tx, taskID, entries, keepResolved)
	})
}

func replaceSchedule(tx *gorm.DB, taskID string, entries []domain.NotificationSchedule, keepResolved bool) error {
	del := tx.Where("task_id = ?", taskID)
	if keepResolved {
		del = del.Where("notification_id IS NULL")
	}
	if err := del.Delete(&domain.NotificationSchedule{}).Error; err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	for i := range entries {
		entries[i].TaskID = taskID
		if entries[i].ID == "" {
			entries[i].ID = uuid.New().String()
		}
	}
	return tx.Create(&entries).Error
}

func (r *gormTaskRepository) FindRecurringForRollover(ctx context.Context, now time.Time) ([]*domain.Task, error) {
	var tasks []*domain.Task
	err := r.withRelations(ctx).
		Where("recurring_schedule IS NOT NULL").
		Where("(status IN ? OR (status = ? AND due_date_time < ?))",
			[]domain.TaskStatus{domain.TaskStatusCompleted, domain.TaskStatusOverdue},
			domain.TaskStatusInProgress, now.UTC()).
		Order("due_date_time ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	hydrate(tasks)
	return tasks, nil
}

func (r *gormTaskRepository) Rollover(ctx context.Context, task *domain.Task, entries []domain.NotificationSchedule) error {
	now := time.Now().UTC()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Task{}).
			Where("id = ? AND version = ?", task.ID, task.Version).
			Updates(map[string]interface{}{
				"status":        task.Status,
				"due_date_time": task.DueDateTime.UTC(),
				"reminder":      task.Reminder,
				"updated_at":    now,
				"version":       gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrOptimisticLock
		}
		return replaceSchedule(tx, task.ID, entries, false)
	})
	if err != nil {
		return err
	}

	task.Version++
	task.UpdatedAt = now
	task.Schedule = entries
	return nil
}

func hydrate(tasks []*domain.Task) {
	for _, t := range tasks {
		t.HydrateParticipants()
	}
}
