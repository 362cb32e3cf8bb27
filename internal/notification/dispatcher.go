package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"foratask-backend/internal/notification/domain"
	"foratask-backend/internal/notification/repository"
	taskdomain "foratask-backend/internal/task/domain"
	taskrepo "foratask-backend/internal/task/repository"
	"foratask-backend/pkg/clock"
)

// pushScanLimit caps how many notifications one push pass loads.
const pushScanLimit = 5000

var pushableTypes = []domain.Type{domain.TypeReminder, domain.TypeOverdue}

// ScanResult reports what one scan pass did. Errors are per record and do
// not stop the pass.
type ScanResult struct {
	Tasks         int
	Notifications int
	Errors        int
}

// Dispatcher runs the time-driven notification scans. Every scan is driven by
// persisted state, so re-running one after a crash picks up where it stopped.
type Dispatcher struct {
	tasks    taskrepo.TaskRepository
	repo     repository.NotificationRepository
	notifier *Service
	clock    clock.Clock
}

func NewDispatcher(tasks taskrepo.TaskRepository, repo repository.NotificationRepository, notifier *Service, clk clock.Clock) *Dispatcher {
	return &Dispatcher{
		tasks:    tasks,
		repo:     repo,
		notifier: notifier,
		clock:    clk,
	}
}

// RunOverdueScan moves lapsed open tasks to Overdue, then notifies every
// distinct participant of each task once.
func (d *Dispatcher) RunOverdueScan(ctx context.Context) (ScanResult, error) {
	now := d.clock.Now()
	var result ScanResult

	ids, err := d.tasks.MarkOverdue(ctx, now)
	if err != nil {
		return result, fmt.Errorf("mark overdue: %w", err)
	}
	if len(ids) > 0 {
		log.Printf("[Dispatcher] Marked %d tasks overdue", len(ids))
	}

	pending, err := d.tasks.FindPendingOverdue(ctx)
	if err != nil {
		return result, fmt.Errorf("find pending overdue: %w", err)
	}

	for _, task := range pending {
		result.Tasks++
		n, err := d.notifyOverdue(ctx, task)
		result.Notifications += n
		if err != nil {
			result.Errors++
			log.Printf("[Dispatcher] Overdue notification for task %s failed: %v", task.ID, err)
		}
	}
	return result, nil
}

func (d *Dispatcher) notifyOverdue(ctx context.Context, task *taskdomain.Task) (int, error) {
	var entries []taskdomain.NotificationSchedule
	for _, e := range task.Schedule {
		if e.Kind == taskdomain.ScheduleKindOverdue && !e.Resolved() {
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		return 0, nil
	}

	notifications, err := d.notifier.Notify(ctx, Request{
		Recipients: task.Participants(),
		TaskID:     task.ID,
		Type:       domain.TypeOverdue,
		Message:    fmt.Sprintf("Task \"%s\" is Overdue!", task.Title),
	})
	if err != nil {
		return 0, err
	}
	if len(notifications) == 0 {
		return 0, nil
	}

	// One notification set covers every queued overdue entry of the task.
	for _, e := range entries {
		if _, err := d.tasks.ResolveSchedule(ctx, e.ID, notifications[0].ID); err != nil {
			return len(notifications), fmt.Errorf("resolve overdue entry %s: %w", e.ID, err)
		}
	}
	return len(notifications), nil
}

// RunReminderScan notifies assignees for every reminder entry that has come
// due and is still unresolved.
func (d *Dispatcher) RunReminderScan(ctx context.Context) (ScanResult, error) {
	now := d.clock.Now()
	var result ScanResult

	tasks, err := d.tasks.FindDueReminders(ctx, now)
	if err != nil {
		return result, fmt.Errorf("find due reminders: %w", err)
	}

	for _, task := range tasks {
		result.Tasks++
		for _, entry := range task.Schedule {
			if entry.Kind != taskdomain.ScheduleKindReminder || entry.Resolved() || entry.TriggerAt.After(now) {
				continue
			}
			n, err := d.remind(ctx, task, entry, now)
			result.Notifications += n
			if err != nil {
				result.Errors++
				log.Printf("[Dispatcher] Reminder %s for task %s failed: %v", entry.ID, task.ID, err)
			}
		}
	}

	if result.Notifications > 0 {
		log.Printf("[Dispatcher] Created %d reminder notifications for %d tasks", result.Notifications, result.Tasks)
	}
	return result, nil
}

func (d *Dispatcher) remind(ctx context.Context, task *taskdomain.Task, entry taskdomain.NotificationSchedule, now time.Time) (int, error) {
	triggerAt := entry.TriggerAt
	notifications, err := d.notifier.Notify(ctx, Request{
		Recipients:   task.Assignees,
		TaskID:       task.ID,
		Type:         domain.TypeReminder,
		Message:      fmt.Sprintf("Task \"%s\" is due within %s", task.Title, RemainingPhrase(task.DueDateTime.Sub(now))),
		ReminderTime: &triggerAt,
	})
	if err != nil {
		return 0, err
	}
	if len(notifications) == 0 {
		return 0, nil
	}

	if _, err := d.tasks.ResolveSchedule(ctx, entry.ID, notifications[0].ID); err != nil {
		return len(notifications), fmt.Errorf("resolve reminder entry: %w", err)
	}
	return len(notifications), nil
}

// RunPushDelivery hands every undelivered reminder and overdue notification to
// the push provider and marks it delivered. There is no retry.
func (d *Dispatcher) RunPushDelivery(ctx context.Context) (DeliveryResult, error) {
	pending, err := d.repo.FindUndelivered(ctx, pushableTypes, pushScanLimit)
	if err != nil {
		return DeliveryResult{}, fmt.Errorf("find undelivered: %w", err)
	}
	if len(pending) == 0 {
		return DeliveryResult{}, nil
	}

	result, err := d.notifier.Deliver(ctx, pending)
	if err != nil {
		return result, err
	}
	log.Printf("[Dispatcher] Push pass: %d notifications, %d sent, %d failed, %d without device, %d batches",
		result.Notifications, result.Sent, result.Failed, result.NoEndpoint, result.Batches)
	return result, nil
}

// RunRetentionSweep deletes notifications past their expiry.
func (d *Dispatcher) RunRetentionSweep(ctx context.Context) (int64, error) {
	deleted, err := d.repo.DeleteExpired(ctx, d.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("delete expired notifications: %w", err)
	}
	if deleted > 0 {
		log.Printf("[Dispatcher] Deleted %d expired notifications", deleted)
	}
	return deleted, nil
}

// RemainingPhrase renders d in its largest whole unit: days, else hours,
// else minutes. Negative durations read as zero minutes.
func RemainingPhrase(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d / time.Minute)
	hours := minutes / 60
	days := hours / 24

	switch {
	case days > 0:
		return plural(days, "day")
	case hours > 0:
		return plural(hours, "hour")
	default:
		return plural(minutes, "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
