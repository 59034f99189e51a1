package domain

import (
	"errors"
	"regexp"
	"time"
	"unicode/utf8"
)

var (
	// ErrUserNotFound is returned when no user record matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrUsernameTaken is returned when a create collides with the unique
	// username index. Callers treat this as "someone else just created it".
	ErrUsernameTaken = errors.New("username already taken")
	// ErrInvalidUser is returned when a user record fails field validation.
	ErrInvalidUser = errors.New("invalid user record")
)

var alphanumeric = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// User represents a durable local identity. The gateway only reads and
// creates the bare record; role, team and organization assignments are owned
// by the authorization systems downstream and are carried opaquely.
type User struct {
	ID            string    `bson:"_id,omitempty" json:"id"`
	Username      string    `bson:"username" json:"username"`
	Fullname      string    `bson:"fullname,omitempty" json:"fullname,omitempty"`
	Role          string    `bson:"role,omitempty" json:"role,omitempty"`
	Team          string    `bson:"team,omitempty" json:"team,omitempty"`
	Teams         []string  `bson:"teams,omitempty" json:"teams,omitempty"`
	Organization  string    `bson:"organization,omitempty" json:"organization,omitempty"`
	Organizations []string  `bson:"organizations,omitempty" json:"organizations,omitempty"`
	CreatedDate   time.Time `bson:"createdDate" json:"createdDate"`
	ModifiedDate  time.Time `bson:"modifiedDate" json:"modifiedDate"`
}

// Validate checks the field constraints on a user record: username 6-50
// alphanumeric characters, fullname (when set) 5-30 characters.
func (u *User) Validate() error {
	if len(u.Username) < 6 || len(u.Username) > 50 || !alphanumeric.MatchString(u.Username) {
		return ErrInvalidUser
	}
	// Fullname bounds count runes, not bytes; names are not ASCII-only.
	if n := utf8.RuneCountInString(u.Fullname); u.Fullname != "" && (n < 5 || n > 30) {
		return ErrInvalidUser
	}
	return nil
}
