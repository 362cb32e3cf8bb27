package domain

import (
	"sort"
	"time"

	"gorm.io/datatypes"
)

// Priority represents task priority level
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusPending     TaskStatus = "Pending"
	TaskStatusInProgress  TaskStatus = "In Progress"
	TaskStatusForApproval TaskStatus = "For Approval"
	TaskStatusCompleted   TaskStatus = "Completed"
	TaskStatusOverdue     TaskStatus = "Overdue"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusForApproval, TaskStatusCompleted, TaskStatusOverdue:
		return true
	}
	return false
}

type TaskType string

const (
	TaskTypeSingle    TaskType = "Single"
	TaskTypeRecurring TaskType = "Recurring"
)

func (t TaskType) Valid() bool {
	return t == TaskTypeSingle || t == TaskTypeRecurring
}

type RecurringSchedule string

const (
	ScheduleDaily       RecurringSchedule = "Daily"
	ScheduleWeekly      RecurringSchedule = "Weekly"
	ScheduleMonthly     RecurringSchedule = "Monthly"
	ScheduleThreeMonths RecurringSchedule = "3-Months"
)

func (r RecurringSchedule) Valid() bool {
	switch r {
	case ScheduleDaily, ScheduleWeekly, ScheduleMonthly, ScheduleThreeMonths:
		return true
	}
	return false
}

type MemberRole string

const (
	RoleAssignee MemberRole = "assignee"
	RoleObserver MemberRole = "observer"
)

// TaskMember is one row of the task/participant join table.
type TaskMember struct {
	TaskID string     `json:"-" gorm:"primaryKey"`
	UserID string     `json:"userId" gorm:"primaryKey;index"`
	Role   MemberRole `json:"role" gorm:"primaryKey"`
}

type ScheduleKind string

const (
	ScheduleKindReminder ScheduleKind = "reminder"
	ScheduleKindOverdue  ScheduleKind = "overdue"
)

// NotificationSchedule is a planned notification trigger. NotificationID is
// set once, when a notification is generated for the entry, and never cleared.
type NotificationSchedule struct {
	ID             string       `json:"id" gorm:"primaryKey"`
	TaskID         string       `json:"-" gorm:"index;not null"`
	TriggerAt      time.Time    `json:"date" gorm:"index;not null"`
	Kind           ScheduleKind `json:"kind" gorm:"not null;default:reminder"`
	NotificationID *string      `json:"notifId"`
	CreatedAt      time.Time    `json:"-"`
}

func (n NotificationSchedule) Resolved() bool {
	return n.NotificationID != nil
}

// Task is a shared work item with assignees, observers and a lifecycle status.
type Task struct {
	ID                string                      `json:"id" gorm:"primaryKey"`
	CompanyID         string                      `json:"companyId" gorm:"index;not null"`
	Title             string                      `json:"title" gorm:"size:300;not null"`
	Description       string                      `json:"description,omitempty" gorm:"size:2000"`
	CreatedBy         string                      `json:"createdBy" gorm:"index;not null"`
	DueDateTime       time.Time                   `json:"dueDateTime" gorm:"index;not null"`
	Priority          Priority                    `json:"priority" gorm:"default:Medium"`
	Status            TaskStatus                  `json:"status" gorm:"index;default:Pending"`
	TaskType          TaskType                    `json:"taskType" gorm:"default:Single"`
	RecurringSchedule *RecurringSchedule          `json:"recurringSchedule"`
	IsSelfTask        bool                        `json:"isSelfTask"`
	Reminder          *time.Time                  `json:"reminder,omitempty"`
	RepeatReminders   datatypes.JSONSlice[string] `json:"repeatReminder"`
	Version           int                         `json:"version" gorm:"not null;default:1"`
	Members           []TaskMember                `json:"-" gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
	Schedule          []NotificationSchedule      `json:"notification" gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
	Assignees         []string                    `json:"assignees" gorm:"-"`
	Observers         []string                    `json:"observers" gorm:"-"`
	CreatedAt         time.Time                   `json:"createdAt"`
	UpdatedAt         time.Time                   `json:"updatedAt"`
}

// HydrateParticipants fills Assignees and Observers from Members.
func (t *Task) HydrateParticipants() {
	t.Assignees = t.Assignees[:0]
	t.Observers = t.Observers[:0]
	for _, m := range t.Members {
		switch m.Role {
		case RoleAssignee:
			t.Assignees = append(t.Assignees, m.UserID)
		case RoleObserver:
			t.Observers = append(t.Observers, m.UserID)
		}
	}
	sort.Strings(t.Assignees)
	sort.Strings(t.Observers)
}

// BuildMembers rebuilds Members from Assignees and Observers.
func (t *Task) BuildMembers() {
	t.Assignees = Unique(t.Assignees)
	t.Observers = Unique(t.Observers)

	members := make([]TaskMember, 0, len(t.Assignees)+len(t.Observers))
	for _, id := range t.Assignees {
		members = append(members, TaskMember{TaskID: t.ID, UserID: id, Role: RoleAssignee})
	}
	for _, id := range t.Observers {
		members = append(members, TaskMember{TaskID: t.ID, UserID: id, Role: RoleObserver})
	}
	t.Members = members
}

func (t *Task) IsAssignee(userID string) bool {
	return contains(t.Assignees, userID)
}

func (t *Task) IsObserver(userID string) bool {
	return contains(t.Observers, userID)
}

// Participants returns assignees ∪ observers without duplicates.
func (t *Task) Participants() []string {
	return Unique(append(append([]string{}, t.Assignees...), t.Observers...))
}

// ParticipantsExcept returns Participants minus the given user.
func (t *Task) ParticipantsExcept(userID string) []string {
	var out []string
	for _, id := range t.Participants() {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}

// ComputeSelfTask reports whether creator is the sole assignee and the sole observer.
func ComputeSelfTask(creator string, assignees, observers []string) bool {
	a := Unique(assignees)
	o := Unique(observers)
	return len(a) == 1 && len(o) == 1 && a[0] == creator && o[0] == creator
}

// Unique drops empty and duplicate ids, keeping first-seen order.
func Unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
