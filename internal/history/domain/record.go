package domain

import (
	"time"

	"gorm.io/datatypes"
)

// TaskSnapshot holds the task fields frozen at completion time.
type TaskSnapshot struct {
	Title             string  `json:"title" gorm:"not null"`
	Description       string  `json:"description,omitempty"`
	Priority          string  `json:"priority"`
	TaskType          string  `json:"taskType"`
	RecurringSchedule *string `json:"recurringSchedule"`
	IsSelfTask        bool    `json:"isSelfTask"`
}

// CompletionRecord is an immutable audit entry written once per completion.
type CompletionRecord struct {
	ID                 string                      `json:"id" gorm:"primaryKey"`
	TaskID             string                      `json:"taskId" gorm:"index:idx_history_task_completed,priority:1;not null"`
	CompanyID          string                      `json:"companyId" gorm:"index"`
	Snapshot           TaskSnapshot                `json:"taskSnapshot" gorm:"embedded;embeddedPrefix:snapshot_"`
	CompletedBy        string                      `json:"completedBy" gorm:"index;not null"`
	CompletedAt        time.Time                   `json:"completedAt" gorm:"index:idx_history_task_completed,priority:2;not null"`
	StatusAtCompletion string                      `json:"statusAtCompletion" gorm:"not null"`
	ApprovedBy         *string                     `json:"approvedBy"`
	ApprovedAt         *time.Time                  `json:"approvedAt"`
	WasAutoApproved    bool                        `json:"wasAutoApproved"`
	OriginalDueDate    time.Time                   `json:"originalDueDate" gorm:"not null"`
	CompletedOnTime    bool                        `json:"completedOnTime"`
	DaysOverdue        int                         `json:"daysOverdue"`
	HoursToComplete    *float64                    `json:"hoursToComplete"`
	AssigneesSnapshot  datatypes.JSONSlice[string] `json:"assigneesSnapshot"`
	ObserversSnapshot  datatypes.JSONSlice[string] `json:"observersSnapshot"`
	CycleNumber        int                         `json:"cycleNumber" gorm:"not null;default:1"`
	CycleStartDate     *time.Time                  `json:"cycleStartDate"`
	CycleEndDate       *time.Time                  `json:"cycleEndDate"`
	CreatedAt          time.Time                   `json:"createdAt"`
}

type Stats struct {
	TotalCompletions  int64   `json:"totalCompletions"`
	OnTimeCompletions int64   `json:"onTimeCompletions"`
	OnTimePercentage  float64 `json:"onTimePercentage"`
	AvgDaysOverdue    float64 `json:"avgDaysOverdue"`
}

type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

type Page struct {
	Records    []CompletionRecord `json:"history"`
	Stats      Stats              `json:"stats"`
	Pagination Pagination         `json:"pagination"`
}
