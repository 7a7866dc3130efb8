package users

import (
	"time"

	"github.com/projtrack/projtrack/internal/access"
)

// User represents a user account for management.
type User struct {
	ID        int64             `json:"id"`
	Name      string            `json:"name"`
	Username  string            `json:"username"`
	Email     string            `json:"email,omitempty"`
	Position  string            `json:"position,omitempty"`
	Role      access.GlobalRole `json:"role"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Filter narrows a user listing.
type Filter struct {
	Role   access.GlobalRole
	Search string
}

// CreateInput is the body of a user creation request.
type CreateInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Username string `json:"username" validate:"omitempty,min=3,max=50,alphanum"`
	Email    string `json:"email" validate:"omitempty,email"`
	Position string `json:"position" validate:"max=100"`
	Role     string `json:"role"`
	Password string `json:"password" validate:"omitempty,min=8,max=72"`
}

// UpdateInput is the body of a user update. Nil fields are left alone; an
// empty email or position clears it.
type UpdateInput struct {
	Name     *string `json:"name" validate:"omitempty,max=100"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Position *string `json:"position" validate:"omitempty,max=100"`
	Role     *string `json:"role"`
}

// Changes is the validated form of UpdateInput.
type Changes struct {
	Name     *string
	Email    *string
	Position *string
	Role     *access.GlobalRole
}

// NewUser is the validated form of CreateInput handed to the repository.
type NewUser struct {
	Name         string
	Username     string
	Email        string
	Position     string
	Role         access.GlobalRole
	PasswordHash string
}

// Created is returned once, when a user is created. InitialPassword is set
// only when the password was generated.
type Created struct {
	User            User   `json:"user"`
	InitialPassword string `json:"initial_password,omitempty"`
}
