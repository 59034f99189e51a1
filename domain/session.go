package domain

import (
	"context"
	"errors"
)

var (
	// ErrSessionNotFound is returned by SessionStore.Get when no session
	// exists for the key. It means "no active session", never a store fault.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStoreUnavailable is returned when a backing store cannot be
	// reached or does not answer within the configured deadline.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidSession is returned when a payload violates the session
	// invariant (non-empty OID and UserID).
	ErrInvalidSession = errors.New("invalid session payload")
)

// SessionPayload is the authenticated principal attached to a session. It is
// built once per login by joining provider claims with the local user record
// and is never partially updated afterwards.
type SessionPayload struct {
	// OID is the provider-issued subject identifier. It doubles as the
	// session-store lookup key.
	OID         string `json:"oid"`
	UserID      string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	Name        string `json:"name,omitempty"`
}

// Validate enforces the persisted-session invariant.
func (p *SessionPayload) Validate() error {
	if p == nil || p.OID == "" || p.UserID == "" {
		return ErrInvalidSession
	}
	return nil
}

// SessionStore persists session payloads in an external key-value store,
// keyed by the provider subject identifier.
type SessionStore interface {
	// Get returns the payload stored under key, ErrSessionNotFound when
	// the key is absent, or an ErrStoreUnavailable-wrapped error when the
	// store cannot be consulted.
	Get(ctx context.Context, key string) (*SessionPayload, error)
	// Set stores the payload under key, overwriting any previous entry.
	Set(ctx context.Context, key string, payload *SessionPayload) error
	// Delete removes the entry for key. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, key string) error
}
