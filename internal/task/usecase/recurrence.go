package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"foratask-backend/internal/apperror"
	historyusecase "foratask-backend/internal/history/usecase"
	"foratask-backend/internal/task/domain"
	"foratask-backend/internal/task/repository"
	"foratask-backend/pkg/clock"
	"foratask-backend/pkg/events"
	"foratask-backend/pkg/lock"
)

// RolloverResult reports one recurrence pass.
type RolloverResult struct {
	Tasks      int
	RolledOver int
	Recorded   int
	Errors     int
}

// RecurrenceScheduler moves recurring tasks whose cycle has concluded or
// lapsed into their next cycle. The task keeps its identity; each finished
// cycle leaves a completion record behind.
type RecurrenceScheduler struct {
	tasks   repository.TaskRepository
	history HistoryRecorder
	locker  lock.Locker
	events  events.Publisher
	clock   clock.Clock
}

func NewRecurrenceScheduler(tasks repository.TaskRepository, history HistoryRecorder, locker lock.Locker, publisher events.Publisher, clk clock.Clock) *RecurrenceScheduler {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &RecurrenceScheduler{
		tasks:   tasks,
		history: history,
		locker:  locker,
		events:  publisher,
		clock:   clk,
	}
}

func (s *RecurrenceScheduler) Run(ctx context.Context) (RolloverResult, error) {
	now := s.clock.Now()
	var result RolloverResult

	tasks, err := s.tasks.FindRecurringForRollover(ctx, now)
	if err != nil {
		return result, fmt.Errorf("find recurring tasks: %w", err)
	}

	for _, task := range tasks {
		result.Tasks++
		recorded, err := s.rollover(ctx, task, now)
		if recorded {
			result.Recorded++
		}
		if err != nil {
			result.Errors++
			log.Printf("[Recurrence] Rollover of task %s failed: %v", task.ID, err)
			continue
		}
		result.RolledOver++
	}

	if result.Tasks > 0 {
		log.Printf("[Recurrence] Rolled over %d of %d recurring tasks, %d history records", result.RolledOver, result.Tasks, result.Recorded)
	}
	return result, nil
}

func (s *RecurrenceScheduler) rollover(ctx context.Context, task *domain.Task, now time.Time) (bool, error) {
	if task.RecurringSchedule == nil {
		return false, nil
	}
	schedule := *task.RecurringSchedule

	release, err := s.locker.Acquire(ctx, lockKey(task.ID))
	if err != nil {
		return false, lockError(err)
	}
	defer release()

	currentDue := task.DueDateTime.UTC()
	nextDue, ok := domain.NextDue(currentDue, schedule)
	if !ok {
		return false, fmt.Errorf("unknown recurring schedule \"%s\"", schedule)
	}

	recorded, err := s.recordCycle(ctx, task, schedule, currentDue, now)
	if err != nil {
		return false, err
	}

	delta := nextDue.Sub(currentDue)
	entries := domain.ShiftSchedule(task.ID, task.Schedule, delta)
	task.Status = domain.TaskStatusPending
	task.DueDateTime = nextDue
	if task.Reminder != nil {
		shifted := task.Reminder.Add(delta)
		task.Reminder = &shifted
	}

	if err := s.tasks.Rollover(ctx, task, entries); err != nil {
		if errors.Is(err, repository.ErrOptimisticLock) {
			return recorded, apperror.Conflict("task changed during rollover")
		}
		return recorded, err
	}
	log.Printf("[Recurrence] Task %s reset for %s", task.ID, nextDue.Format(time.RFC3339))

	publishTaskEvent(ctx, s.events, s.clock, events.TypeTaskUpdated, task)
	return recorded, nil
}

// recordCycle closes the cycle ending at due in the history, unless a
// completion already did.
func (s *RecurrenceScheduler) recordCycle(ctx context.Context, task *domain.Task, schedule domain.RecurringSchedule, due, now time.Time) (bool, error) {
	if task.Status != domain.TaskStatusCompleted && task.Status != domain.TaskStatusOverdue {
		return false, nil
	}

	exists, err := s.history.RecordedForDue(ctx, task.ID, due)
	if err != nil {
		return false, fmt.Errorf("check history: %w", err)
	}
	if exists {
		return false, nil
	}

	completedBy := ""
	if len(task.Assignees) > 0 {
		completedBy = task.Assignees[0]
	}
	start := cycleStart(due, schedule)
	end := now
	// nobody signed off a backfilled cycle unless the task needs no sign-off
	autoApproved := task.IsSelfTask
	if _, err := s.history.Record(ctx, task, historyusecase.RecordInput{
		CompletedBy:        completedBy,
		StatusAtCompletion: task.Status,
		AutoApproved:       &autoApproved,
		CycleStart:         &start,
		CycleEnd:           &end,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// cycleStart is the due time one period before due.
func cycleStart(due time.Time, schedule domain.RecurringSchedule) time.Time {
	switch schedule {
	case domain.ScheduleDaily:
		return due.AddDate(0, 0, -1)
	case domain.ScheduleWeekly:
		return due.AddDate(0, 0, -7)
	case domain.ScheduleMonthly:
		return due.AddDate(0, -1, 0)
	case domain.ScheduleThreeMonths:
		return due.AddDate(0, -3, 0)
	}
	return due
}
