package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"foratask-backend/internal/history/domain"
	"foratask-backend/internal/history/repository"
	taskdomain "foratask-backend/internal/task/domain"
	"foratask-backend/pkg/clock"
)

const DefaultPageSize = 10

// RecordInput describes one completion event.
type RecordInput struct {
	CompletedBy string
	// StatusAtCompletion is Completed for direct completions and
	// For Approval when an observer signs off a submitted task.
	StatusAtCompletion taskdomain.TaskStatus
	ApprovedBy         *string
	// AutoApproved overrides the flag derived from StatusAtCompletion.
	AutoApproved *bool
	CycleStart   *time.Time
	CycleEnd     *time.Time
}

// Recorder snapshots tasks at completion and serves the per-task audit trail.
type Recorder struct {
	repo  repository.HistoryRepository
	clock clock.Clock
}

func NewRecorder(repo repository.HistoryRepository, clk clock.Clock) *Recorder {
	return &Recorder{repo: repo, clock: clk}
}

func (r *Recorder) Record(ctx context.Context, task *taskdomain.Task, in RecordInput) (*domain.CompletionRecord, error) {
	now := r.clock.Now()
	due := task.DueDateTime.UTC()

	count, err := r.repo.CountByTask(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("count history for task %s: %w", task.ID, err)
	}

	onTime := !now.After(due)
	daysOverdue := 0
	if !onTime {
		daysOverdue = int(math.Ceil(now.Sub(due).Hours() / 24))
	}

	start := task.CreatedAt
	if in.CycleStart != nil {
		start = *in.CycleStart
	}
	var hours *float64
	if !start.IsZero() && now.After(start) {
		h := math.Round(now.Sub(start).Hours()*10) / 10
		hours = &h
	}

	var schedule *string
	if task.RecurringSchedule != nil {
		s := string(*task.RecurringSchedule)
		schedule = &s
	}

	autoApproved := task.IsSelfTask || in.StatusAtCompletion == taskdomain.TaskStatusCompleted
	if in.AutoApproved != nil {
		autoApproved = *in.AutoApproved
	}

	record := &domain.CompletionRecord{
		TaskID:    task.ID,
		CompanyID: task.CompanyID,
		Snapshot: domain.TaskSnapshot{
			Title:             task.Title,
			Description:       task.Description,
			Priority:          string(task.Priority),
			TaskType:          string(task.TaskType),
			RecurringSchedule: schedule,
			IsSelfTask:        task.IsSelfTask,
		},
		CompletedBy:        in.CompletedBy,
		CompletedAt:        now,
		StatusAtCompletion: string(in.StatusAtCompletion),
		WasAutoApproved:    autoApproved,
		OriginalDueDate:    due,
		CompletedOnTime:    onTime,
		DaysOverdue:        daysOverdue,
		HoursToComplete:    hours,
		AssigneesSnapshot:  append([]string{}, task.Assignees...),
		ObserversSnapshot:  append([]string{}, task.Observers...),
		CycleNumber:        int(count) + 1,
		CycleStartDate:     in.CycleStart,
		CycleEndDate:       in.CycleEnd,
	}
	if in.ApprovedBy != nil {
		approvedBy := *in.ApprovedBy
		record.ApprovedBy = &approvedBy
		record.ApprovedAt = &now
	}

	if err := r.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("record completion of task %s: %w", task.ID, err)
	}
	return record, nil
}

// RecordedForDue reports whether the cycle ending at due already has a record.
func (r *Recorder) RecordedForDue(ctx context.Context, taskID string, due time.Time) (bool, error) {
	return r.repo.ExistsForDue(ctx, taskID, due)
}

// History returns one 0-based page of records, newest first, with stats over all of them.
func (r *Recorder) History(ctx context.Context, taskID string, page, limit int) (*domain.Page, error) {
	if page < 0 {
		page = 0
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	records, total, err := r.repo.ListByTask(ctx, taskID, limit, page*limit)
	if err != nil {
		return nil, err
	}
	stats, err := r.repo.StatsByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if records == nil {
		records = []domain.CompletionRecord{}
	}
	return &domain.Page{
		Records: records,
		Stats:   stats,
		Pagination: domain.Pagination{
			Total:      total,
			Page:       page,
			Limit:      limit,
			TotalPages: int((total + int64(limit) - 1) / int64(limit)),
		},
	}, nil
}
