package domain

import "time"

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Actor is the authenticated caller of a request, resolved from its bearer token.
type Actor struct {
	ID        string `json:"id"`
	CompanyID string `json:"companyId"`
	Role      Role   `json:"role"`
}

func (a *Actor) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

// PushToken is a Firebase Cloud Messaging device token for push notifications
type PushToken struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	UserID     string    `json:"userId" gorm:"index;not null"`
	Token      string    `json:"-" gorm:"uniqueIndex;not null"` // Don't expose token in JSON
	DeviceInfo string    `json:"deviceInfo"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Endpoint is where a user can currently be reached by push.
type Endpoint struct {
	UserID string
	Tokens []string
}
