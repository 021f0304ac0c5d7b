package user

import (
	"errors"
	"time"
)

var ErrUserNotFound = errors.New("user not found")

// DeviceToken is the push token registered by a user's current device.
type DeviceToken struct {
	Token      string     `json:"token"`
	Platform   string     `json:"platform"` // android | ios | web
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

// User is the projection of a user the notification core consumes. Profile
// fields beyond what the audience filters reference stay in their own
// services.
type User struct {
	ID           string      `json:"id"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"` // never expose hash in JSON
	Name         string      `json:"name"`
	Role         string      `json:"role"`
	Timezone     string      `json:"timezone"` // canonical lowercased IANA name
	DeviceToken  DeviceToken `json:"deviceToken"`
	Gender       string      `json:"gender,omitempty"`
	Age          int         `json:"age,omitempty"`
	IsActive     bool        `json:"isActive"`
	OptOut       *bool       `json:"optOut,omitempty"` // nil means opted in
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// Eligible reports whether the user can receive pushes at all. Audience
// filters are applied on top of this.
func (u User) Eligible() bool {
	if !u.IsActive || u.DeviceToken.Token == "" {
		return false
	}
	if u.OptOut != nil && *u.OptOut {
		return false
	}
	return true
}
