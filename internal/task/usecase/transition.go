package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"

	"foratask-backend/internal/apperror"
	authdomain "foratask-backend/internal/auth/domain"
	historyusecase "foratask-backend/internal/history/usecase"
	"foratask-backend/internal/notification"
	notificationdomain "foratask-backend/internal/notification/domain"
	"foratask-backend/internal/task/domain"
	"foratask-backend/internal/task/repository"
	"foratask-backend/pkg/clock"
	"foratask-backend/pkg/events"
	"foratask-backend/pkg/lock"
)

// Outcome is the per-task result of a completion request.
type Outcome struct {
	TaskID string            `json:"taskId"`
	Status domain.TaskStatus `json:"status,omitempty"`
	Error  string            `json:"error,omitempty"`
}

type completionPath int

const (
	pathFinalize completionPath = iota + 1
	pathSubmit
)

// TransitionEngine owns every status change a user can request: completion,
// submission for approval and the observer's approve/reject decision.
type TransitionEngine struct {
	tasks    repository.TaskRepository
	notifier NotificationWriter
	history  HistoryRecorder
	locker   lock.Locker
	events   events.Publisher
	clock    clock.Clock
}

func NewTransitionEngine(
	tasks repository.TaskRepository,
	notifier NotificationWriter,
	history HistoryRecorder,
	locker lock.Locker,
	publisher events.Publisher,
	clk clock.Clock,
) *TransitionEngine {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &TransitionEngine{
		tasks:    tasks,
		notifier: notifier,
		history:  history,
		locker:   locker,
		events:   publisher,
		clock:    clk,
	}
}

// decideCompletion picks the path a completion request takes from the
// task's current status and the actor's capabilities.
func decideCompletion(status domain.TaskStatus, caps domain.CapabilitySet) (completionPath, error) {
	switch {
	case status == domain.TaskStatusCompleted:
		return 0, apperror.Conflict("status of a completed task cannot be changed again")
	case status == domain.TaskStatusForApproval && !caps.HasAny(domain.CapAdmin, domain.CapObserver):
		return 0, apperror.Conflict("task is already awaiting approval")
	case caps.CanFinalize():
		return pathFinalize, nil
	case caps.Has(domain.CapAssignee):
		return pathSubmit, nil
	}
	return 0, apperror.Authorization("you are not allowed to complete this task")
}

// MarkAsCompleted validates every requested task before touching any of them.
// Once validation passes each task is applied on its own, so one task losing
// a race does not undo the others; its outcome carries the reason instead.
func (e *TransitionEngine) MarkAsCompleted(ctx context.Context, actor *authdomain.Actor, taskIDs []string) ([]Outcome, error) {
	ids := domain.Unique(taskIDs)
	if len(ids) == 0 {
		return nil, apperror.Validation("taskIds array is required")
	}

	found, err := e.tasks.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	byID := make(map[string]*domain.Task, len(found))
	for _, t := range found {
		byID[t.ID] = t
	}

	tasks := make([]*domain.Task, 0, len(ids))
	for _, id := range ids {
		if t, ok := byID[id]; ok && canAccess(t, actor) {
			tasks = append(tasks, t)
		}
	}
	if len(tasks) != len(ids) {
		return nil, apperror.Conflict(fmt.Sprintf("some tasks are invalid or not accessible (requested %d, found %d)", len(ids), len(tasks)))
	}

	for _, t := range tasks {
		caps := domain.ResolveCapabilities(t, actor.ID, actor.IsAdmin())
		if _, err := decideCompletion(t.Status, caps); err != nil {
			return nil, fmt.Errorf("task %s: %w", t.ID, err)
		}
	}

	outcomes := make([]Outcome, 0, len(tasks))
	for _, t := range tasks {
		outcomes = append(outcomes, e.complete(ctx, actor, t.ID))
	}
	return outcomes, nil
}

func (e *TransitionEngine) complete(ctx context.Context, actor *authdomain.Actor, taskID string) Outcome {
	release, err := e.locker.Acquire(ctx, lockKey(taskID))
	if err != nil {
		return failedOutcome(taskID, lockError(err))
	}
	defer release()

	task, err := e.tasks.FindByID(ctx, taskID)
	if err != nil {
		return failedOutcome(taskID, err)
	}
	if task == nil {
		return failedOutcome(taskID, apperror.NotFound("task not found"))
	}

	caps := domain.ResolveCapabilities(task, actor.ID, actor.IsAdmin())
	if err := e.applyCompletion(ctx, actor, task, caps); err != nil {
		return failedOutcome(taskID, err)
	}
	e.publish(ctx, events.TypeTaskUpdated, task)

	return Outcome{TaskID: task.ID, Status: domain.ProjectForViewer(*task, caps).Status}
}

// applyCompletion runs the completion rules on a task the caller holds the lock for.
func (e *TransitionEngine) applyCompletion(ctx context.Context, actor *authdomain.Actor, task *domain.Task, caps domain.CapabilitySet) error {
	path, err := decideCompletion(task.Status, caps)
	if err != nil {
		return err
	}
	if path == pathFinalize {
		return e.finalize(ctx, actor, task)
	}
	return e.submit(ctx, actor, task)
}

func (e *TransitionEngine) finalize(ctx context.Context, actor *authdomain.Actor, task *domain.Task) error {
	previous := task.Status
	task.Status = domain.TaskStatusCompleted
	if err := saveTask(ctx, e.tasks, task); err != nil {
		task.Status = previous
		return err
	}
	log.Printf("[Transition] Task %s completed by %s", task.ID, actor.ID)

	if previous == domain.TaskStatusForApproval {
		if err := e.notifier.DiscardPendingApprovals(ctx, task.ID); err != nil {
			log.Printf("[Transition] Failed to discard approvals for task %s: %v", task.ID, err)
		}
	}

	e.notify(ctx, notification.Request{
		Recipients: task.ParticipantsExcept(actor.ID),
		SenderID:   actor.ID,
		TaskID:     task.ID,
		Type:       notificationdomain.TypeSystem,
		Message:    fmt.Sprintf("%s has been marked as Completed", task.Title),
	})

	e.record(ctx, task, historyusecase.RecordInput{
		CompletedBy:        actor.ID,
		StatusAtCompletion: domain.TaskStatusCompleted,
	})
	return nil
}

func (e *TransitionEngine) submit(ctx context.Context, actor *authdomain.Actor, task *domain.Task) error {
	previous := task.Status
	task.Status = domain.TaskStatusForApproval
	if err := saveTask(ctx, e.tasks, task); err != nil {
		task.Status = previous
		return err
	}
	log.Printf("[Transition] Task %s submitted for approval by %s", task.ID, actor.ID)

	e.notify(ctx, notification.Request{
		Recipients: without(task.Observers, actor.ID),
		SenderID:   actor.ID,
		TaskID:     task.ID,
		Type:       notificationdomain.TypeTaskApproval,
		Message:    fmt.Sprintf("%s has been sent to you for approval", task.Title),
		Options:    notificationdomain.ApprovalOptions,
	})
	return nil
}

// HandleApprovalDecision applies an observer's answer to an approval request.
// The decision is stored once the task status is written; a repeated call is a conflict.
func (e *TransitionEngine) HandleApprovalDecision(ctx context.Context, actor *authdomain.Actor, notificationID, decision string) (*domain.Task, error) {
	d := notificationdomain.Decision(decision)
	if !d.Valid() {
		return nil, apperror.Validation("decision must be approve or reject")
	}

	n, err := e.notifier.Get(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.Type != notificationdomain.TypeTaskApproval {
		return nil, apperror.Validation("notification is not an approval request")
	}
	if n.Decision != nil {
		return nil, apperror.Conflict("approval has already been decided")
	}

	release, err := e.locker.Acquire(ctx, lockKey(n.TaskID))
	if err != nil {
		return nil, lockError(err)
	}
	defer release()

	task, err := e.tasks.FindByID(ctx, n.TaskID)
	if err != nil {
		return nil, err
	}
	if task == nil || task.CompanyID != actor.CompanyID {
		return nil, apperror.NotFound("task not found")
	}

	caps := domain.ResolveCapabilities(task, actor.ID, actor.IsAdmin())
	if n.UserID != actor.ID && !caps.HasAny(domain.CapAdmin, domain.CapObserver) {
		return nil, apperror.Authorization("you are not allowed to decide on this approval")
	}
	if task.Status != domain.TaskStatusForApproval {
		return nil, apperror.Conflict("task is no longer awaiting approval")
	}

	task.Status = domain.TaskStatusPending
	if d == notificationdomain.DecisionApprove {
		task.Status = domain.TaskStatusCompleted
	}
	if err := saveTask(ctx, e.tasks, task); err != nil {
		return nil, err
	}

	// the status write is authoritative from here on
	if err := e.notifier.ResolveDecision(ctx, n.ID, d); err != nil {
		log.Printf("[Transition] Failed to store decision on notification %s: %v", n.ID, err)
	}
	if err := e.notifier.DiscardPendingApprovals(ctx, task.ID); err != nil {
		log.Printf("[Transition] Failed to discard approvals for task %s: %v", task.ID, err)
	}

	if d == notificationdomain.DecisionApprove {
		e.approved(ctx, actor, task, n)
	} else {
		e.rejected(ctx, actor, task)
	}
	e.publish(ctx, events.TypeTaskUpdated, task)

	projected := domain.ProjectForViewer(*task, domain.ResolveCapabilities(task, actor.ID, actor.IsAdmin()))
	return &projected, nil
}

func (e *TransitionEngine) approved(ctx context.Context, actor *authdomain.Actor, task *domain.Task, n *notificationdomain.Notification) {
	log.Printf("[Transition] Task %s approved by %s", task.ID, actor.ID)

	recipients := domain.Unique(append(task.Participants(), task.CreatedBy))
	e.notify(ctx, notification.Request{
		Recipients: without(recipients, actor.ID),
		SenderID:   actor.ID,
		TaskID:     task.ID,
		Type:       notificationdomain.TypeSystem,
		Message:    fmt.Sprintf("%s has been marked as Completed", task.Title),
	})

	completedBy := n.SenderID
	if completedBy == "" && len(task.Assignees) > 0 {
		completedBy = task.Assignees[0]
	}
	approvedBy := actor.ID
	e.record(ctx, task, historyusecase.RecordInput{
		CompletedBy:        completedBy,
		StatusAtCompletion: domain.TaskStatusForApproval,
		ApprovedBy:         &approvedBy,
	})
}

func (e *TransitionEngine) rejected(ctx context.Context, actor *authdomain.Actor, task *domain.Task) {
	log.Printf("[Transition] Task %s rejected by %s", task.ID, actor.ID)

	e.notify(ctx, notification.Request{
		Recipients: task.Assignees,
		SenderID:   actor.ID,
		TaskID:     task.ID,
		Type:       notificationdomain.TypeTaskRejected,
		Message:    fmt.Sprintf("Your task %s has been rejected and moved back to Pending", task.Title),
	})
}

// notify and record run after the status write; their failures are logged
// and never undo the transition.
func (e *TransitionEngine) notify(ctx context.Context, req notification.Request) {
	if _, err := e.notifier.Notify(ctx, req); err != nil {
		log.Printf("[Transition] Failed to create %s notifications for task %s: %v", req.Type, req.TaskID, err)
	}
}

func (e *TransitionEngine) record(ctx context.Context, task *domain.Task, in historyusecase.RecordInput) {
	if _, err := e.history.Record(ctx, task, in); err != nil {
		log.Printf("[Transition] Failed to record completion of task %s: %v", task.ID, err)
	}
}

func (e *TransitionEngine) publish(ctx context.Context, eventType string, task *domain.Task) {
	publishTaskEvent(ctx, e.events, e.clock, eventType, task)
}

func publishTaskEvent(ctx context.Context, pub events.Publisher, clk clock.Clock, eventType string, task *domain.Task) {
	err := pub.Publish(ctx, events.Event{
		Type:       eventType,
		TaskID:     task.ID,
		CompanyID:  task.CompanyID,
		Recipients: domain.Unique(append(task.Participants(), task.CreatedBy)),
		Status:     string(task.Status),
		OccurredAt: clk.Now(),
	})
	if err != nil {
		log.Printf("[Events] %v", err)
	}
}

func saveTask(ctx context.Context, repo repository.TaskRepository, task *domain.Task) error {
	if err := repo.Update(ctx, task); err != nil {
		if errors.Is(err, repository.ErrOptimisticLock) {
			return apperror.Conflict("task was modified by another request, reload and try again")
		}
		return fmt.Errorf("update task %s: %w", task.ID, err)
	}
	return nil
}

func lockKey(taskID string) string {
	return "task:" + taskID
}

func lockError(err error) error {
	if errors.Is(err, lock.ErrLocked) {
		return apperror.Conflict("task is being updated by another request")
	}
	return err
}

func failedOutcome(taskID string, err error) Outcome {
	return Outcome{TaskID: taskID, Error: err.Error()}
}

// canAccess reports whether actor may act on task at all: same company, and
// either an admin or someone the task involves.
func canAccess(task *domain.Task, actor *authdomain.Actor) bool {
	if task.CompanyID != actor.CompanyID {
		return false
	}
	if actor.IsAdmin() {
		return true
	}
	return task.CreatedBy == actor.ID || task.IsAssignee(actor.ID) || task.IsObserver(actor.ID)
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
