package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"foratask-backend/internal/apperror"
	authdomain "foratask-backend/internal/auth/domain"
	historydomain "foratask-backend/internal/history/domain"
	"foratask-backend/internal/notification"
	notificationdomain "foratask-backend/internal/notification/domain"
	"foratask-backend/internal/task/domain"
	"foratask-backend/internal/task/repository"
	"foratask-backend/pkg/events"

	"github.com/google/uuid"
)

const (
	maxTitleLength       = 300
	maxDescriptionLength = 2000
)

// taskUsecase implements TaskUsecase interface
type taskUsecase struct {
	tasks  repository.TaskRepository
	engine *TransitionEngine
}

// NewTaskUsecase creates a new instance of taskUsecase. Status changes are
// delegated to engine, whose collaborators the CRUD paths share.
func NewTaskUsecase(tasks repository.TaskRepository, engine *TransitionEngine) TaskUsecase {
	return &taskUsecase{
		tasks:  tasks,
		engine: engine,
	}
}

func (u *taskUsecase) CreateTask(ctx context.Context, actor *authdomain.Actor, req CreateTaskRequest) (*domain.Task, error) {
	title, err := validateTitle(req.Title)
	if err != nil {
		return nil, err
	}
	description, err := validateDescription(req.Description)
	if err != nil {
		return nil, err
	}

	assignees := domain.Unique(req.Assignees)
	if len(assignees) == 0 {
		return nil, apperror.Validation("Task must have at least 1 assignee")
	}
	observers := domain.Unique(req.Observers)
	if len(observers) == 0 {
		return nil, apperror.Validation("Task must have at least 1 observer")
	}

	due, err := parseTime(req.DueDateTime)
	if err != nil {
		return nil, apperror.Validation("Invalid or missing due date")
	}

	priority := domain.PriorityMedium
	if req.Priority != "" {
		priority = domain.Priority(req.Priority)
		if !priority.Valid() {
			return nil, apperror.Validation("Priority must be one of: High, Medium, Low")
		}
	}

	taskType := domain.TaskTypeSingle
	if req.TaskType != "" {
		taskType = domain.TaskType(req.TaskType)
		if !taskType.Valid() {
			return nil, apperror.Validation("Task type must be Single or Recurring")
		}
	}

	var recurring *domain.RecurringSchedule
	if req.RecurringSchedule != nil && *req.RecurringSchedule != "" {
		s := domain.RecurringSchedule(*req.RecurringSchedule)
		if !s.Valid() {
			return nil, apperror.Validation("Recurring schedule must be one of: Daily, Weekly, Monthly, 3-Months")
		}
		recurring = &s
		taskType = domain.TaskTypeRecurring
	}
	if taskType == domain.TaskTypeRecurring && recurring == nil {
		return nil, apperror.Validation("Recurring tasks need a recurring schedule")
	}

	var reminder *time.Time
	if req.Reminder != nil && *req.Reminder != "" {
		r, err := parseTime(*req.Reminder)
		if err != nil {
			return nil, apperror.Validation("Invalid reminder time")
		}
		reminder = &r
	}

	offsets := domain.Unique(req.RepeatReminder)
	for _, key := range offsets {
		if !domain.ValidReminderOffset(key) {
			return nil, apperror.Validation(fmt.Sprintf("Unknown repeat reminder \"%s\", must be one of: 10m, 30m, 1h, 1d, 1w", key))
		}
	}

	task := &domain.Task{
		ID:                uuid.New().String(),
		CompanyID:         actor.CompanyID,
		Title:             title,
		Description:       description,
		CreatedBy:         actor.ID,
		DueDateTime:       due,
		Priority:          priority,
		Status:            domain.TaskStatusPending,
		TaskType:          taskType,
		RecurringSchedule: recurring,
		IsSelfTask:        domain.ComputeSelfTask(actor.ID, assignees, observers),
		Reminder:          reminder,
		RepeatReminders:   offsets,
		Assignees:         assignees,
		Observers:         observers,
	}
	task.Schedule = domain.BuildNotificationSchedule(task.ID, due, reminder, offsets)

	if err := u.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	log.Printf("[TaskUsecase] Task %s created by %s with %d reminders", task.ID, actor.ID, len(task.Schedule))

	u.announce(ctx, task, task.Participants(), actor.ID)
	u.engine.publish(ctx, events.TypeTaskCreated, task)

	return task, nil
}

func (u *taskUsecase) GetTask(ctx context.Context, actor *authdomain.Actor, taskID string) (*domain.Task, error) {
	task, err := u.loadAccessible(ctx, actor, taskID)
	if err != nil {
		return nil, err
	}
	return project(task, actor), nil
}

func (u *taskUsecase) ListTasks(ctx context.Context, actor *authdomain.Actor, status *string, limit, offset int) ([]*domain.Task, int64, error) {
	filter := repository.ListFilter{
		CompanyID: actor.CompanyID,
		Limit:     limit,
		Offset:    offset,
	}
	if !actor.IsAdmin() {
		filter.ViewerID = actor.ID
	}
	if status != nil && *status != "" {
		s := domain.TaskStatus(*status)
		if !s.Valid() {
			return nil, 0, apperror.Validation("invalid status filter")
		}
		filter.Status = &s
	}

	tasks, total, err := u.tasks.FindVisible(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	out := make([]*domain.Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, project(t, actor))
	}
	return out, total, nil
}

// EditTask applies the fields the actor may change. Observers, admins,
// creators and self-task owners may edit everything; a pure assignee only
// the status. A status change goes through the transition rules.
func (u *taskUsecase) EditTask(ctx context.Context, actor *authdomain.Actor, taskID string, updates TaskUpdateRequest) (*domain.Task, error) {
	release, err := u.engine.locker.Acquire(ctx, lockKey(taskID))
	if err != nil {
		return nil, lockError(err)
	}
	defer release()

	task, err := u.loadAccessible(ctx, actor, taskID)
	if err != nil {
		return nil, err
	}

	caps := domain.ResolveCapabilities(task, actor.ID, actor.IsAdmin())
	fullEdit := caps.HasAny(domain.CapAdmin, domain.CapObserver, domain.CapCreator, domain.CapSelfTask)
	if !fullEdit && !caps.Has(domain.CapAssignee) {
		return nil, apperror.Authorization("You are not allowed to update this task")
	}

	oldAssignees := append([]string{}, task.Assignees...)
	oldObservers := append([]string{}, task.Observers...)
	oldDue := task.DueDateTime

	changed := false
	if fullEdit {
		if changed, err = applyFields(task, updates); err != nil {
			return nil, err
		}
	}

	var requested *domain.TaskStatus
	if updates.Status != nil {
		s := domain.TaskStatus(*updates.Status)
		if !editableStatus(s) {
			return nil, apperror.Validation("Status must be one of: Completed, In Progress, Pending, For Approval")
		}
		requested = &s
		changed = true
	}
	if !changed {
		return nil, apperror.Validation("No valid fields to update")
	}

	task.IsSelfTask = domain.ComputeSelfTask(task.CreatedBy, task.Assignees, task.Observers)
	dueChanged := !task.DueDateTime.Equal(oldDue)
	now := u.engine.clock.Now()
	if dueChanged && task.Status == domain.TaskStatusOverdue && task.DueDateTime.After(now) {
		task.Status = domain.TaskStatusPending
	}

	caps = domain.ResolveCapabilities(task, actor.ID, actor.IsAdmin())
	if err := u.saveEdit(ctx, actor, task, caps, requested); err != nil {
		return nil, err
	}

	if dueChanged {
		if err := u.tasks.ReplaceSchedule(ctx, task.ID, rescheduled(task), true); err != nil {
			log.Printf("[TaskUsecase] Failed to recompute schedule for task %s: %v", task.ID, err)
		}
	}

	newcomers := domain.Unique(append(added(task.Assignees, oldAssignees), added(task.Observers, oldObservers)...))
	if len(newcomers) > 0 {
		u.announce(ctx, task, newcomers, actor.ID)
	}
	u.engine.publish(ctx, events.TypeTaskUpdated, task)

	if fresh, err := u.tasks.FindByID(ctx, task.ID); err == nil && fresh != nil {
		task = fresh
	}
	return project(task, actor), nil
}

// saveEdit writes the edited task, routing any requested status change.
func (u *taskUsecase) saveEdit(ctx context.Context, actor *authdomain.Actor, task *domain.Task, caps domain.CapabilitySet, requested *domain.TaskStatus) error {
	// A client echoing back the status it was shown is not a status change.
	if requested == nil || *requested == domain.ProjectForViewer(*task, caps).Status {
		return saveTask(ctx, u.tasks, task)
	}

	switch *requested {
	case domain.TaskStatusCompleted, domain.TaskStatusForApproval:
		return u.engine.applyCompletion(ctx, actor, task, caps)
	}

	previous := task.Status
	if (previous == domain.TaskStatusCompleted || previous == domain.TaskStatusForApproval) && !caps.CanFinalize() {
		return apperror.Conflict("only an observer or admin can reopen this task")
	}
	task.Status = *requested
	if err := saveTask(ctx, u.tasks, task); err != nil {
		task.Status = previous
		return err
	}
	if previous == domain.TaskStatusForApproval {
		if err := u.engine.notifier.DiscardPendingApprovals(ctx, task.ID); err != nil {
			log.Printf("[TaskUsecase] Failed to discard approvals for task %s: %v", task.ID, err)
		}
	}
	return nil
}

func (u *taskUsecase) DeleteTask(ctx context.Context, actor *authdomain.Actor, taskID string) error {
	release, err := u.engine.locker.Acquire(ctx, lockKey(taskID))
	if err != nil {
		return lockError(err)
	}
	defer release()

	task, err := u.loadAccessible(ctx, actor, taskID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && task.CreatedBy != actor.ID {
		return apperror.Authorization("only the creator or an admin can delete this task")
	}

	if err := u.tasks.Delete(ctx, task.ID); err != nil {
		return fmt.Errorf("delete task %s: %w", task.ID, err)
	}
	if err := u.engine.notifier.DiscardPendingApprovals(ctx, task.ID); err != nil {
		log.Printf("[TaskUsecase] Failed to discard approvals for deleted task %s: %v", task.ID, err)
	}
	u.engine.publish(ctx, events.TypeTaskDeleted, task)
	return nil
}

func (u *taskUsecase) GetCompletionHistory(ctx context.Context, actor *authdomain.Actor, taskID string, page, limit int) (*historydomain.Page, error) {
	if _, err := u.loadAccessible(ctx, actor, taskID); err != nil {
		return nil, err
	}
	return u.engine.history.History(ctx, taskID, page, limit)
}

func (u *taskUsecase) loadAccessible(ctx context.Context, actor *authdomain.Actor, taskID string) (*domain.Task, error) {
	task, err := u.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil || task.CompanyID != actor.CompanyID {
		return nil, apperror.NotFound("task not found")
	}
	if !canAccess(task, actor) {
		return nil, apperror.Authorization("you are not allowed to view this task")
	}
	return task, nil
}

// announce sends each user one system notification describing their role on the task.
func (u *taskUsecase) announce(ctx context.Context, task *domain.Task, userIDs []string, senderID string) {
	byMessage := make(map[string][]string)
	var order []string
	for _, id := range userIDs {
		msg := membershipMessage(task, id)
		if _, ok := byMessage[msg]; !ok {
			order = append(order, msg)
		}
		byMessage[msg] = append(byMessage[msg], id)
	}

	for _, msg := range order {
		_, err := u.engine.notifier.Notify(ctx, notification.Request{
			Recipients: byMessage[msg],
			SenderID:   senderID,
			TaskID:     task.ID,
			Type:       notificationdomain.TypeSystem,
			Message:    msg,
		})
		if err != nil {
			log.Printf("[TaskUsecase] Failed to notify members of task %s: %v", task.ID, err)
		}
	}
}

func membershipMessage(task *domain.Task, userID string) string {
	switch {
	case task.IsAssignee(userID) && task.IsObserver(userID):
		return fmt.Sprintf("You have been added to task: %s", task.Title)
	case task.IsAssignee(userID):
		return fmt.Sprintf("You have been assigned to task: %s", task.Title)
	default:
		return fmt.Sprintf("You are added as a viewer to task: %s", task.Title)
	}
}

func applyFields(task *domain.Task, updates TaskUpdateRequest) (bool, error) {
	changed := false

	if updates.Title != nil {
		title, err := validateTitle(*updates.Title)
		if err != nil {
			return false, err
		}
		task.Title = title
		changed = true
	}
	if updates.Description != nil {
		description, err := validateDescription(*updates.Description)
		if err != nil {
			return false, err
		}
		task.Description = description
		changed = true
	}
	if updates.Assignees != nil {
		assignees := domain.Unique(*updates.Assignees)
		if len(assignees) == 0 {
			return false, apperror.Validation("Task must have at least 1 assignee")
		}
		task.Assignees = assignees
		changed = true
	}
	if updates.Observers != nil {
		observers := domain.Unique(*updates.Observers)
		if len(observers) == 0 {
			return false, apperror.Validation("Task must have at least 1 observer")
		}
		task.Observers = observers
		changed = true
	}
	if updates.DueDateTime != nil {
		due, err := parseTime(*updates.DueDateTime)
		if err != nil {
			return false, apperror.Validation("Invalid or missing due date")
		}
		task.DueDateTime = due
		changed = true
	}
	if updates.Priority != nil {
		p := domain.Priority(*updates.Priority)
		if !p.Valid() {
			return false, apperror.Validation("Priority must be one of: High, Medium, Low")
		}
		task.Priority = p
		changed = true
	}

	return changed, nil
}

// rescheduled rebuilds the unresolved part of the schedule against the
// task's current due time. Triggers that already fired are not repeated.
func rescheduled(task *domain.Task) []domain.NotificationSchedule {
	fired := make(map[int64]struct{})
	for _, e := range task.Schedule {
		if e.Resolved() {
			fired[e.TriggerAt.UnixNano()] = struct{}{}
		}
	}

	var out []domain.NotificationSchedule
	for _, e := range domain.BuildNotificationSchedule(task.ID, task.DueDateTime, task.Reminder, task.RepeatReminders) {
		if _, ok := fired[e.TriggerAt.UnixNano()]; ok {
			continue
		}
		out = append(out, e)
	}
	return out
}

func editableStatus(s domain.TaskStatus) bool {
	switch s {
	case domain.TaskStatusCompleted, domain.TaskStatusInProgress, domain.TaskStatusPending, domain.TaskStatusForApproval:
		return true
	}
	return false
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperror.Validation("Title must be a non-empty string")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", apperror.Validation("Title must not exceed 300 characters")
	}
	return title, nil
}

func validateDescription(description string) (string, error) {
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return "", apperror.Validation("Description must not exceed 2000 characters")
	}
	return strings.TrimSpace(description), nil
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func project(task *domain.Task, actor *authdomain.Actor) *domain.Task {
	projected := domain.ProjectForViewer(*task, domain.ResolveCapabilities(task, actor.ID, actor.IsAdmin()))
	return &projected
}

// added returns the ids in ids that are not in old.
func added(ids, old []string) []string {
	var out []string
	for _, id := range ids {
		found := false
		for _, o := range old {
			if o == id {
				found = true
				break
			}
		}
		if !found {
			out = append(out, id)
		}
	}
	return out
}
