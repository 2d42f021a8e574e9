package models

import (
	"time"
)

// Roles a marketplace participant can hold
const (
	RoleHost    = "host"
	RoleCompany = "company"
)

// Account statuses
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusPending   = "pending"
)

// User is the read-only directory view of a marketplace participant.
// Registration and credentials are owned by the identity service; this
// service only consults id, role and status.
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url"`
	Role      string    `json:"role" gorm:"index"`
	Status    string    `json:"status" gorm:"index;default:active"`
	CreatedAt time.Time `json:"created_at"`
}

// Active reports whether the account may send and receive messages
func (u *User) Active() bool {
	return u.Status == StatusActive
}
