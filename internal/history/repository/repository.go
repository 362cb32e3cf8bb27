package repository

import (
	"context"
	"math"
	"time"

	"foratask-backend/internal/history/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HistoryRepository stores completion records. Records are append-only.
type HistoryRepository interface {
	Create(ctx context.Context, record *domain.CompletionRecord) error
	CountByTask(ctx context.Context, taskID string) (int64, error)
	ListByTask(ctx context.Context, taskID string, limit, offset int) ([]domain.CompletionRecord, int64, error)
	StatsByTask(ctx context.Context, taskID string) (domain.Stats, error)
	// ExistsForDue reports whether a completion was already recorded for the cycle due at due
	ExistsForDue(ctx context.Context, taskID string, due time.Time) (bool, error)
}

type gormHistoryRepository struct {
	db *gorm.DB
}

func NewGormHistoryRepository(db *gorm.DB) HistoryRepository {
	return &gormHistoryRepository{db: db}
}

func (r *gormHistoryRepository) Create(ctx context.Context, record *domain.CompletionRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	record.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *gormHistoryRepository) CountByTask(ctx context.Context, taskID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.CompletionRecord{}).
		Where("task_id = ?", taskID).
		Count(&count).Error
	return count, err
}

func (r *gormHistoryRepository) ListByTask(ctx context.Context, taskID string, limit, offset int) ([]domain.CompletionRecord, int64, error) {
	var records []domain.CompletionRecord
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.CompletionRecord{}).Where("task_id = ?", taskID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("completed_at DESC").Limit(limit).Offset(offset).Find(&records).Error
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *gormHistoryRepository) StatsByTask(ctx context.Context, taskID string) (domain.Stats, error) {
	var row struct {
		Total  int64
		OnTime int64
		AvgDue float64
	}
	err := r.db.WithContext(ctx).Model(&domain.CompletionRecord{}).
		Select("COUNT(*) AS total, "+
			"COALESCE(SUM(CASE WHEN completed_on_time THEN 1 ELSE 0 END), 0) AS on_time, "+
			"COALESCE(AVG(days_overdue), 0) AS avg_due").
		Where("task_id = ?", taskID).
		Scan(&row).Error
	if err != nil {
		return domain.Stats{}, err
	}

	stats := domain.Stats{
		TotalCompletions:  row.Total,
		OnTimeCompletions: row.OnTime,
		AvgDaysOverdue:    round1(row.AvgDue),
	}
	if row.Total > 0 {
		stats.OnTimePercentage = round1(float64(row.OnTime) * 100 / float64(row.Total))
	}
	return stats, nil
}

func (r *gormHistoryRepository) ExistsForDue(ctx context.Context, taskID string, due time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.CompletionRecord{}).
		Where("task_id = ? AND original_due_date = ?", taskID, due.UTC()).
		Count(&count).Error
	return count > 0, err
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
