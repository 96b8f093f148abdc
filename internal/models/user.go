package models

import "github.com/google/uuid"

// User is a signed-up user of the signups demo.
type User struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	IsActive    bool      `json:"is_active"`
	IsSuperuser bool      `json:"is_superuser"`
}

// NewUser is the body of POST /users.
type NewUser struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required"`
}

// UserParams is the parameter object of every signups task.
type UserParams struct {
	User User `json:"user"`
}
