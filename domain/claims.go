package domain

import "errors"

var (
	// ErrMissingSubject is returned when a verified provider response
	// carries no usable subject identifier. This is a provider-trust
	// violation: the flow must abort without creating any session.
	ErrMissingSubject = errors.New("provider claims missing subject")
	// ErrMissingUsername is returned when the verified response carries no
	// preferred username, which the reconciler needs as the join key to
	// the local user record.
	ErrMissingUsername = errors.New("provider claims missing preferred username")
)

// Claims are the verified attributes asserted by the identity provider about
// the authenticated subject, reduced to the named fields this gateway uses.
type Claims struct {
	// Subject is the provider's opaque, immutable identifier for the user
	// (the "oid" claim for Azure AD style providers, "sub" otherwise).
	Subject           string
	PreferredUsername string
	DisplayName       string
	Name              string
}

// Validate checks that the required claims are present.
func (c Claims) Validate() error {
	if c.Subject == "" {
		return ErrMissingSubject
	}
	if c.PreferredUsername == "" {
		return ErrMissingUsername
	}
	return nil
}
