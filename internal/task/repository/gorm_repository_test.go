package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"foratask-backend/internal/task/domain"
	"foratask-backend/internal/testutil"
)

func seedTask(t *testing.T, repo TaskRepository, id string, due time.Time, status domain.TaskStatus) *domain.Task {
	t.Helper()
	task := &domain.Task{
		ID:          id,
		CompanyID:   "c1",
		Title:       "task " + id,
		CreatedBy:   "boss",
		DueDateTime: due,
		Priority:    domain.PriorityMedium,
		Status:      status,
		TaskType:    domain.TaskTypeSingle,
		Assignees:   []string{"a1", "a2"},
		Observers:   []string{"obs"},
	}
	if err := repo.Create(context.Background(), task); err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
	return task
}

func TestCreateAndFindByID(t *testing.T) {
	repo := NewGormTaskRepository(testutil.NewDB(t))
	ctx := context.Background()
	due := time.Date(2030, time.June, 1, 10, 0, 0, 0, time.UTC)

	task := &domain.Task{
		ID:          "t1",
		CompanyID:   "c1",
		Title:       "Quarterly report",
		CreatedBy:   "boss",
		DueDateTime: due,
		Priority:    domain.PriorityHigh,
		Status:      domain.TaskStatusPending,
		TaskType:    domain.TaskTypeSingle,
		Assignees:   []string{"a1"},
		Observers:   []string{"obs"},
	}
	task.Schedule = domain.BuildNotificationSchedule(task.ID, due, nil, []string{"1h", "1d"})

	if err := repo.Create(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.FindByID(ctx, "t1")
	if err != nil || got == nil {
		t.Fatalf("find: %v %v", got, err)
	}
	if len(got.Assignees) != 1 || got.Assignees[0] != "a1" {
		t.Errorf("unexpected assignees %v", got.Assignees)
	}
	if len(got.Observers) != 1 || got.Observers[0] != "obs" {
		t.Errorf("unexpected observers %v", got.Observers)
	}
	if len(got.Schedule) != 2 {
		t.Fatalf("expected 2 schedule entries, got %d", len(got.Schedule))
	}
	if !got.Schedule[0].TriggerAt.Equal(due.Add(-24 * time.Hour)) {
		t.Errorf("schedule should be ordered by trigger time, got %s first", got.Schedule[0].TriggerAt)
	}
	if got.Version != 1 {
		t.Errorf("expected version 1, got %d", got.Version)
	}

	missing, err := repo.FindByID(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("missing task should return nil, nil; got %v, %v", missing, err)
	}
}

func TestUpdate_OptimisticLock(t *testing.T) {
	repo := NewGormTaskRepository(testutil.NewDB(t))
	ctx := context.Background()
	seedTask(t, repo, "t1", time.Now().Add(time.Hour), domain.TaskStatusPending)

	first, _ := repo.FindByID(ctx, "t1")
	second, _ := repo.FindByID(ctx, "t1")

	first.Status = domain.TaskStatusInProgress
	first.Observers = []string{"obs", "obs2"}
	if err := repo.Update(ctx, first); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if first.Version != 2 {
		t.Errorf("expected version 2 after update, got %d", first.Version)
	}

	second.Status = domain.TaskStatusCompleted
	if err := repo.Update(ctx, second); !errors.Is(err, ErrOptimisticLock) {
		t.Fatalf("expected ErrOptimisticLock, got %v", err)
	}

	stored, _ := repo.FindByID(ctx, "t1")
	if stored.Status != domain.TaskStatusInProgress {
		t.Errorf("stale write must not apply, status is %s", stored.Status)
	}
	if len(stored.Observers) != 2 {
		t.Errorf("members should be replaced, got observers %v", stored.Observers)
	}
}

func TestFindVisible_OrderAndVisibility(t *testing.T) {
	repo := NewGormTaskRepository(testutil.NewDB(t))
	ctx := context.Background()
	base := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)

	seedTask(t, repo, "pending", base, domain.TaskStatusPending)
	seedTask(t, repo, "overdue", base.Add(time.Hour), domain.TaskStatusOverdue)
	seedTask(t, repo, "approval", base.Add(2*time.Hour), domain.TaskStatusForApproval)

	other := &domain.Task{
		ID: "hidden", CompanyID: "c1", Title: "private", CreatedBy: "x",
		DueDateTime: base, Status: domain.TaskStatusPending,
		Assignees: []string{"x"}, Observers: []string{"x"},
	}
	if err := repo.Create(ctx, other); err != nil {
		t.Fatalf("create hidden: %v", err)
	}

	tasks, total, err := repo.FindVisible(ctx, ListFilter{CompanyID: "c1", ViewerID: "a1"})
	if err != nil {
		t.Fatalf("find visible: %v", err)
	}
	if total != 3 || len(tasks) != 3 {
		t.Fatalf("expected 3 visible tasks, got total=%d len=%d", total, len(tasks))
	}
	want := []string{"overdue", "approval", "pending"}
	for i, id := range want {
		if tasks[i].ID != id {
			t.Errorf("position %d: got %s, want %s", i, tasks[i].ID, id)
		}
	}

	all, total, err := repo.FindVisible(ctx, ListFilter{CompanyID: "c1"})
	if err != nil || total != 4 || len(all) != 4 {
		t.Errorf("admin listing should see all 4 tasks, got %d (%v)", total, err)
	}

	status := domain.TaskStatusOverdue
	filtered, total, _ := repo.FindVisible(ctx, ListFilter{CompanyID: "c1", ViewerID: "a1", Status: &status})
	if total != 1 || filtered[0].ID != "overdue" {
		t.Errorf("status filter failed: total=%d", total)
	}
}

func TestMarkOverdueAndPendingOverdue(t *testing.T) {
	repo := NewGormTaskRepository(testutil.NewDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	seedTask(t, repo, "lapsed", now.Add(-time.Second), domain.TaskStatusPending)
	seedTask(t, repo, "future", now.Add(time.Hour), domain.TaskStatusPending)
	seedTask(t, repo, "done", now.Add(-time.Hour), domain.TaskStatusCompleted)
	seedTask(t, repo, "waiting", now.Add(-time.Hour), domain.TaskStatusForApproval)

	ids, err := repo.MarkOverdue(ctx, now)
	if err != nil {
		t.Fatalf("mark overdue: %v", err)
	}
	if len(ids) != 1 || ids[0] != "lapsed" {
		t.Fatalf("expected only lapsed to go overdue, got %v", ids)
	}

	again, err := repo.MarkOverdue(ctx, now)
	if err != nil || len(again) != 0 {
		t.Errorf("second pass should be a no-op, got %v (%v)", again, err)
	}

	pending, err := repo.FindPendingOverdue(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one task awaiting overdue notifications, got %d (%v)", len(pending), err)
	}
	task := pending[0]
	if task.Status != domain.TaskStatusOverdue || task.Version != 2 {
		t.Errorf("unexpected task state: %s v%d", task.Status, task.Version)
	}

	var entryID string
	for _, e := range task.Schedule {
		if e.Kind == domain.ScheduleKindOverdue {
			entryID = e.ID
		}
	}
	ok, err := repo.ResolveSchedule(ctx, entryID, "n1")
	if err != nil || !ok {
		t.Fatalf("resolve: %v %v", ok, err)
	}
	ok, _ = repo.ResolveSchedule(ctx, entryID, "n2")
	if ok {
		t.Errorf("resolution must happen at most once")
	}

	pending, _ = repo.FindPendingOverdue(ctx)
	if len(pending) != 0 {
		t.Errorf("resolved task should no longer be pending")
	}
}

func TestFindDueReminders(t *testing.T) {
	repo := NewGormTaskRepository(testutil.NewDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	open := seedTask(t, repo, "open", now.Add(2*time.Hour), domain.TaskStatusPending)
	if err := repo.ReplaceSchedule(ctx, open.ID, []domain.NotificationSchedule{
		{TriggerAt: now.Add(-time.Minute), Kind: domain.ScheduleKindReminder},
		{TriggerAt: now.Add(time.Hour), Kind: domain.ScheduleKindReminder},
	}, true); err != nil {
		t.Fatalf("replace schedule: %v", err)
	}

	closed := seedTask(t, repo, "closed", now.Add(2*time.Hour), domain.TaskStatusForApproval)
	if err := repo.ReplaceSchedule(ctx, closed.ID, []domain.NotificationSchedule{
		{TriggerAt: now.Add(-time.Minute), Kind: domain.ScheduleKindReminder},
	}, true); err != nil {
		t.Fatalf("replace schedule: %v", err)
	}

	late := seedTask(t, repo, "late", now.Add(-time.Hour), domain.TaskStatusOverdue)
	if err := repo.ReplaceSchedule(ctx, late.ID, []domain.NotificationSchedule{
		{TriggerAt: now.Add(-2 * time.Hour), Kind: domain.ScheduleKindReminder},
	}, true); err != nil {
		t.Fatalf("replace schedule: %v", err)
	}

	tasks, err := repo.FindDueReminders(ctx, now)
	if err != nil {
		t.Fatalf("find due reminders: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != "late" || tasks[1].ID != "open" {
		t.Fatalf("expected the overdue and the open task, got %d", len(tasks))
	}
	if len(tasks[1].Schedule) != 2 {
		t.Errorf("task should carry its full schedule, got %d entries", len(tasks[1].Schedule))
	}
}

func TestRollover(t *testing.T) {
	repo := NewGormTaskRepository(testutil.NewDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	weekly := domain.ScheduleWeekly

	task := seedTask(t, repo, "r1", now.Add(-time.Hour), domain.TaskStatusCompleted)
	task.RecurringSchedule = &weekly
	task.TaskType = domain.TaskTypeRecurring
	if err := repo.Update(ctx, task); err != nil {
		t.Fatalf("update: %v", err)
	}
	seedTask(t, repo, "single", now.Add(-time.Hour), domain.TaskStatusCompleted)

	candidates, err := repo.FindRecurringForRollover(ctx, now)
	if err != nil || len(candidates) != 1 {
		t.Fatalf("expected one rollover candidate, got %d (%v)", len(candidates), err)
	}

	next := candidates[0]
	next.Status = domain.TaskStatusPending
	next.DueDateTime = next.DueDateTime.AddDate(0, 0, 7)
	entries := []domain.NotificationSchedule{{TriggerAt: next.DueDateTime.Add(-time.Hour), Kind: domain.ScheduleKindReminder}}

	if err := repo.Rollover(ctx, next, entries); err != nil {
		t.Fatalf("rollover: %v", err)
	}

	stored, _ := repo.FindByID(ctx, "r1")
	if stored.Status != domain.TaskStatusPending {
		t.Errorf("expected Pending after rollover, got %s", stored.Status)
	}
	if len(stored.Schedule) != 1 || stored.Schedule[0].Resolved() {
		t.Errorf("expected one fresh entry, got %+v", stored.Schedule)
	}

	candidates, _ = repo.FindRecurringForRollover(ctx, now)
	if len(candidates) != 0 {
		t.Errorf("rolled-over task should not be selected again")
	}
}
