package auth

import (
	"time"

	"github.com/projtrack/projtrack/internal/access"
)

// User is the credential record behind a login.
type User struct {
	ID           int64
	Name         string
	Username     string
	Email        string
	Position     string
	PasswordHash string
	Role         access.GlobalRole
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity returns the evaluator view of the user.
func (u *User) Identity() *access.Identity {
	return &access.Identity{ID: u.ID, Name: u.Name, Role: u.Role}
}

// Profile is the user shape returned by the auth endpoints.
type Profile struct {
	ID        int64             `json:"id"`
	Name      string            `json:"name"`
	Username  string            `json:"username"`
	Email     string            `json:"email,omitempty"`
	Position  string            `json:"position,omitempty"`
	Role      access.GlobalRole `json:"role"`
	CreatedAt time.Time         `json:"created_at"`
}

// Profile converts the record to its public shape.
func (u *User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		Name:      u.Name,
		Username:  u.Username,
		Email:     u.Email,
		Position:  u.Position,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}
