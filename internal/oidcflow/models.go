package oidcflow

import "time"

// LoginFlowState holds the anti-forgery parameters for one pending
// authorization-code flow, between the redirect to the provider and the
// provider's callback.
type LoginFlowState struct {
	State     string // opaque value round-tripped through the provider
	Nonce     string // bound into the ID token, checked on callback
	CreatedAt time.Time
	ExpiresAt time.Time
}
