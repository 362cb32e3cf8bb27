package domain

import (
	"time"

	"gorm.io/datatypes"
)

type Type string

const (
	TypeTaskApproval Type = "taskApproval"
	TypeTaskRejected Type = "taskRejected"
	TypeSystem       Type = "system"
	TypeReminder     Type = "reminder"
	TypeOverdue      Type = "overdue"
)

// Pushable reports whether the periodic push scan delivers this type.
func (t Type) Pushable() bool {
	return t == TypeReminder || t == TypeOverdue
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// ApprovalOptions are the choices offered on every taskApproval notification.
var ApprovalOptions = []string{string(DecisionApprove), string(DecisionReject)}

// Notification is a message addressed to one user about one task.
type Notification struct {
	ID           string                      `json:"id" gorm:"primaryKey"`
	UserID       string                      `json:"userId" gorm:"index;not null"`
	SenderID     string                      `json:"senderId"`
	TaskID       string                      `json:"taskId" gorm:"index"`
	Type         Type                        `json:"type" gorm:"index;not null;default:system"`
	Message      string                      `json:"message" gorm:"not null"`
	Read         bool                        `json:"isRead" gorm:"column:is_read;not null;default:false"`
	Delivered    bool                        `json:"isSend" gorm:"index;not null;default:false"`
	Options      datatypes.JSONSlice[string] `json:"options,omitempty"`
	Decision     *Decision                   `json:"chosen,omitempty"`
	DecidedAt    *time.Time                  `json:"decidedAt,omitempty"`
	ReminderTime *time.Time                  `json:"reminderTime,omitempty"`
	CreatedAt    time.Time                   `json:"createdAt" gorm:"index"`
	ExpiresAt    time.Time                   `json:"expiresAt" gorm:"index"`
}

// Pending reports whether an approval request is still awaiting a decision.
func (n *Notification) Pending() bool {
	return n.Type == TypeTaskApproval && n.Decision == nil
}
