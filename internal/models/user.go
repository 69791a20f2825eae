package models

import (
	"encoding/json"
	"time"
)

// User represents an authenticated back-office user.
// EmailVerifiedAt doubles as the activity flag: non-nil means active.
type User struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Name            string     `gorm:"size:255;not null" json:"name"`
	Email           string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password        string     `gorm:"size:255;not null" json:"-"` // bcrypt hash, never exposed
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	Roles           []Role     `gorm:"many2many:user_roles;" json:"roles,omitempty"`
}

// GetID returns the primary key.
func (u *User) GetID() uint { return u.ID }

// IsActive reports whether the account may sign in.
func (u *User) IsActive() bool { return u.EmailVerifiedAt != nil }

// RoleNames lists the names of the loaded roles.
func (u *User) RoleNames() []string {
	names := make([]string, len(u.Roles))
	for i, r := range u.Roles {
		names[i] = r.Name
	}
	return names
}

// MarshalJSON adds the derived is_active flag.
func (u User) MarshalJSON() ([]byte, error) {
	type plain User
	return json.Marshal(struct {
		plain
		IsActive bool `json:"is_active"`
	}{plain: plain(u), IsActive: u.IsActive()})
}
