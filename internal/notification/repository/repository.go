package repository

import (
	"context"
	"errors"
	"time"

	"foratask-backend/internal/notification/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationRepository defines data access for notifications
type NotificationRepository interface {
	CreateMany(ctx context.Context, notifications []*domain.Notification) error
	// FindByID returns nil, nil when the notification does not exist
	FindByID(ctx context.Context, id string) (*domain.Notification, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	// FindUndelivered returns pushable notifications not yet handed to the push provider
	FindUndelivered(ctx context.Context, types []domain.Type, limit int) ([]*domain.Notification, error)
	MarkDelivered(ctx context.Context, ids []string) error
	// DeletePendingApprovals discards unresolved approval requests for a task
	DeletePendingApprovals(ctx context.Context, taskID string) (int64, error)
	// ResolveDecision stores decision if none is set yet; reports false otherwise
	ResolveDecision(ctx context.Context, id string, decision domain.Decision, at time.Time) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type gormNotificationRepository struct {
	db *gorm.DB
}

func NewGormNotificationRepository(db *gorm.DB) NotificationRepository {
	return &gormNotificationRepository{db: db}
}

func (r *gormNotificationRepository) CreateMany(ctx context.Context, notifications []*domain.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	for _, n := range notifications {
		if n.ID == "" {
			n.ID = uuid.New().String()
		}
	}
	return r.db.WithContext(ctx).Create(&notifications).Error
}

func (r *gormNotificationRepository) FindByID(ctx context.Context, id string) (*domain.Notification, error) {
	var n domain.Notification
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &n, nil
}

func (r *gormNotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	var notifications []*domain.Notification
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *gormNotificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

func (r *gormNotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

func (r *gormNotificationRepository) FindUndelivered(ctx context.Context, types []domain.Type, limit int) ([]*domain.Notification, error) {
	var notifications []*domain.Notification
	query := r.db.WithContext(ctx).
		Where("delivered = ? AND type IN ?", false, types).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *gormNotificationRepository) MarkDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("id IN ?", ids).
		Update("delivered", true).Error
}

func (r *gormNotificationRepository) DeletePendingApprovals(ctx context.Context, taskID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("task_id = ? AND type = ? AND decision IS NULL", taskID, domain.TypeTaskApproval).
		Delete(&domain.Notification{})
	return res.RowsAffected, res.Error
}

func (r *gormNotificationRepository) ResolveDecision(ctx context.Context, id string, decision domain.Decision, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("id = ? AND decision IS NULL", id).
		Updates(map[string]interface{}{
			"decision":   decision,
			"decided_at": at.UTC(),
			"is_read":    true,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormNotificationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", now.UTC()).
		Delete(&domain.Notification{})
	return res.RowsAffected, res.Error
}
