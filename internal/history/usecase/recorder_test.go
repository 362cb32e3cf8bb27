package usecase

import (
	"context"
	"testing"
	"time"

	"foratask-backend/internal/history/repository"
	taskdomain "foratask-backend/internal/task/domain"
	"foratask-backend/internal/testutil"
	"foratask-backend/pkg/clock"
)

func newRecorder(t *testing.T, now time.Time) (*Recorder, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(now)
	return NewRecorder(repository.NewGormHistoryRepository(testutil.NewDB(t)), clk), clk
}

func sampleTask(due time.Time) *taskdomain.Task {
	weekly := taskdomain.ScheduleWeekly
	return &taskdomain.Task{
		ID:                "t1",
		CompanyID:         "c1",
		Title:             "Weekly sync notes",
		CreatedBy:         "boss",
		DueDateTime:       due,
		Priority:          taskdomain.PriorityLow,
		Status:            taskdomain.TaskStatusPending,
		TaskType:          taskdomain.TaskTypeRecurring,
		RecurringSchedule: &weekly,
		Assignees:         []string{"a1", "a2"},
		Observers:         []string{"obs"},
		CreatedAt:         due.Add(-48 * time.Hour),
	}
}

func TestRecord_OnTimeDirectCompletion(t *testing.T) {
	due := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	rec, _ := newRecorder(t, due.Add(-2*time.Hour))
	task := sampleTask(due)

	record, err := rec.Record(context.Background(), task, RecordInput{
		CompletedBy:        "obs",
		StatusAtCompletion: taskdomain.TaskStatusCompleted,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if !record.CompletedOnTime || record.DaysOverdue != 0 {
		t.Errorf("expected on-time completion, got onTime=%v daysOverdue=%d", record.CompletedOnTime, record.DaysOverdue)
	}
	if !record.WasAutoApproved {
		t.Errorf("direct completion should be auto-approved")
	}
	if record.CycleNumber != 1 {
		t.Errorf("expected cycle 1, got %d", record.CycleNumber)
	}
	if record.Snapshot.RecurringSchedule == nil || *record.Snapshot.RecurringSchedule != "Weekly" {
		t.Errorf("recurring schedule not captured")
	}
	if record.HoursToComplete == nil || *record.HoursToComplete != 46 {
		t.Errorf("expected 46 hours to complete, got %v", record.HoursToComplete)
	}
	if len(record.AssigneesSnapshot) != 2 || len(record.ObserversSnapshot) != 1 {
		t.Errorf("participants not captured")
	}
}

func TestRecord_LateApprovedCompletion(t *testing.T) {
	due := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	rec, clk := newRecorder(t, due.Add(25*time.Hour))
	task := sampleTask(due)
	ctx := context.Background()

	approver := "obs"
	record, err := rec.Record(ctx, task, RecordInput{
		CompletedBy:        "a1",
		StatusAtCompletion: taskdomain.TaskStatusForApproval,
		ApprovedBy:         &approver,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if record.CompletedOnTime {
		t.Errorf("late completion reported on time")
	}
	if record.DaysOverdue != 2 {
		t.Errorf("25h late should round up to 2 days, got %d", record.DaysOverdue)
	}
	if record.WasAutoApproved {
		t.Errorf("approved completion must not be auto-approved")
	}
	if record.ApprovedBy == nil || *record.ApprovedBy != "obs" || record.ApprovedAt == nil {
		t.Errorf("approval details missing")
	}

	clk.Advance(time.Hour)
	second, err := rec.Record(ctx, task, RecordInput{CompletedBy: "obs", StatusAtCompletion: taskdomain.TaskStatusCompleted})
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if second.CycleNumber != 2 {
		t.Errorf("expected cycle 2, got %d", second.CycleNumber)
	}
}

func TestRecord_ExplicitAutoApprovedFlag(t *testing.T) {
	due := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	rec, _ := newRecorder(t, due.Add(time.Hour))
	task := sampleTask(due)
	task.Status = taskdomain.TaskStatusCompleted

	no := false
	record, err := rec.Record(context.Background(), task, RecordInput{
		CompletedBy:        "a1",
		StatusAtCompletion: taskdomain.TaskStatusCompleted,
		AutoApproved:       &no,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if record.WasAutoApproved {
		t.Errorf("explicit flag should override the status default")
	}
}

func TestHistory_PaginationAndStats(t *testing.T) {
	due := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	rec, clk := newRecorder(t, due.Add(-time.Hour))
	task := sampleTask(due)
	ctx := context.Background()

	// two on time, one 3 days late
	for i := 0; i < 2; i++ {
		if _, err := rec.Record(ctx, task, RecordInput{CompletedBy: "obs", StatusAtCompletion: taskdomain.TaskStatusCompleted}); err != nil {
			t.Fatalf("record: %v", err)
		}
		clk.Advance(time.Minute)
	}
	clk.Set(due.Add(72 * time.Hour))
	if _, err := rec.Record(ctx, task, RecordInput{CompletedBy: "obs", StatusAtCompletion: taskdomain.TaskStatusCompleted}); err != nil {
		t.Fatalf("record: %v", err)
	}

	page, err := rec.History(ctx, "t1", 0, 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(page.Records) != 2 {
		t.Fatalf("expected 2 records on page 0, got %d", len(page.Records))
	}
	if page.Records[0].CycleNumber != 3 {
		t.Errorf("newest record should come first, got cycle %d", page.Records[0].CycleNumber)
	}
	if page.Pagination.Total != 3 || page.Pagination.TotalPages != 2 {
		t.Errorf("unexpected pagination %+v", page.Pagination)
	}
	if page.Stats.TotalCompletions != 3 || page.Stats.OnTimeCompletions != 2 {
		t.Errorf("unexpected stats %+v", page.Stats)
	}
	if page.Stats.OnTimePercentage != 66.7 {
		t.Errorf("expected 66.7%% on time, got %v", page.Stats.OnTimePercentage)
	}
	if page.Stats.AvgDaysOverdue != 1 {
		t.Errorf("expected average of 1 day overdue, got %v", page.Stats.AvgDaysOverdue)
	}

	last, _ := rec.History(ctx, "t1", 1, 0)
	if last.Pagination.Limit != DefaultPageSize || len(last.Records) != 0 {
		t.Errorf("page 1 with default limit should be empty, got %d records", len(last.Records))
	}

	recorded, err := rec.RecordedForDue(ctx, "t1", due)
	if err != nil || !recorded {
		t.Errorf("expected a record for the current due date")
	}
}
