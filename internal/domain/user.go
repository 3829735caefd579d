// Package domain contains core domain types for the dealdesk assistant.
package domain

import (
	"time"
)

// User represents an acquisition staff member using the assistant.
type User struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FirstName returns the first word of the display name, or "there" when empty.
func (u *User) FirstName() string {
	if u == nil || u.DisplayName == "" {
		return "there"
	}
	for i, r := range u.DisplayName {
		if r == ' ' {
			return u.DisplayName[:i]
		}
	}
	return u.DisplayName
}
