// Package reconcile maps verified identity-provider claims onto durable local
// user records, creating one at first login.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"go.pilab.hu/authgate/domain"
	"go.pilab.hu/authgate/internal/metrics"
)

// Reconciler joins provider claims with the local user record and produces
// the canonical session payload.
type Reconciler struct {
	users domain.UserRepository
}

// NewReconciler creates a new Reconciler.
func NewReconciler(users domain.UserRepository) *Reconciler {
	return &Reconciler{users: users}
}

// Reconcile validates the claims, ensures a local user record exists for the
// preferred username, and builds the session payload. It may create exactly
// one user record as a side effect of the first login for a username.
func (r *Reconciler) Reconcile(ctx context.Context, claims domain.Claims) (*domain.SessionPayload, error) {
	if err := claims.Validate(); err != nil {
		return nil, err
	}

	user, err := r.ensureUser(ctx, claims.PreferredUsername)
	if err != nil {
		return nil, err
	}

	return &domain.SessionPayload{
		OID:         claims.Subject,
		UserID:      user.ID,
		Username:    user.Username,
		DisplayName: claims.DisplayName,
		Name:        claims.Name,
	}, nil
}

// ensureUser is a logically single find-or-create operation expressed as
// lookup -> attempt-create -> re-lookup. The create is a check-then-act race
// under concurrent first-logins; the unique index on username rejects the
// losing insert, which is treated as "someone else just created it" and
// answered by retrying the lookup once.
func (r *Reconciler) ensureUser(ctx context.Context, username string) (*domain.User, error) {
	user, err := r.users.GetUserByUsername(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: lookup user: %v", domain.ErrStoreUnavailable, err)
	}

	created := &domain.User{Username: username}
	err = r.users.CreateUser(ctx, created)
	switch {
	case err == nil:
		metrics.UserRegisteredTotal.Inc()
		log.Info().Str("username", username).Msg("Created user record at first login")
	case errors.Is(err, domain.ErrUsernameTaken):
		// Lost the create race; the winner's record is authoritative.
		log.Debug().Str("username", username).Msg("Concurrent first-login created the user record")
	case errors.Is(err, domain.ErrInvalidUser):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: create user: %v", domain.ErrStoreUnavailable, err)
	}

	// Re-read after write to obtain the record in canonical, store-native
	// form (generated identifier, timestamps).
	user, err = r.users.GetUserByUsername(ctx, username)
	if err != nil {
		// A miss here means the record vanished between create and
		// re-read; surface it as unavailability rather than retrying
		// indefinitely.
		return nil, fmt.Errorf("%w: re-read user after create: %v", domain.ErrStoreUnavailable, err)
	}
	return user, nil
}
