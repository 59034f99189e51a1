package domain

import "context"

// UserRepository provides access to durable user records.
type UserRepository interface {
	// GetUserByUsername retrieves a user by their unique username.
	// Returns ErrUserNotFound when no record matches.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	// CreateUser inserts a new user record. Returns ErrUsernameTaken when
	// the unique username index rejects the insert.
	CreateUser(ctx context.Context, user *User) error
}
