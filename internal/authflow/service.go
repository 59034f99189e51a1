// Package authflow drives the browser-facing authentication state machine:
// anonymous -> pending callback -> authenticated or denied, plus logout.
package authflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"go.pilab.hu/authgate/domain"
	"go.pilab.hu/authgate/internal/oidcflow"
)

// ErrProviderDenied is returned when the identity provider rejected or
// aborted the flow, or when the callback cannot be tied to a pending login.
var ErrProviderDenied = errors.New("identity provider denied the login")

// Reconciler maps verified provider claims onto a session payload.
type Reconciler interface {
	Reconcile(ctx context.Context, claims domain.Claims) (*domain.SessionPayload, error)
}

// Config holds the provider and flow settings for the state machine.
type Config struct {
	// Issuer is the provider's issuer URL; endpoints are discovered from
	// {Issuer}/.well-known/openid-configuration.
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// ResponseMode is forwarded to the authorization endpoint when set
	// (e.g. "form_post" for providers that post the callback).
	ResponseMode string
	// AllowedIssuers, when non-empty, restricts which issuers a verified
	// ID token may carry.
	AllowedIssuers map[string]struct{}
	// StoreTimeout bounds each backing-store round trip on the callback
	// path: the user reconciliation and the session commit.
	StoreTimeout time.Duration
	// FlowTTL bounds how long a login may stay pending before the
	// eventual callback is denied.
	FlowTTL time.Duration
}

// Service implements the authentication state machine on top of OIDC
// discovery, the identity reconciler and the session store.
type Service struct {
	oauthCfg     *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	flows        *oidcflow.FlowStore
	reconciler   Reconciler
	sessions     domain.SessionStore
	allowed      map[string]struct{}
	responseMode string
	storeTimeout time.Duration
}

// NewService discovers the provider endpoints and assembles the state
// machine. Discovery is a network call; the passed context bounds it.
func NewService(
	ctx context.Context,
	cfg Config,
	flows *oidcflow.FlowStore,
	reconciler Reconciler,
	sessions domain.SessionStore,
) (*Service, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC endpoints: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile"}
	}

	// AuthStyleInParams sends client credentials in the request body for
	// consistent behavior across provider implementations.
	endpoint := provider.Endpoint()
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	storeTimeout := cfg.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}

	return &Service{
		oauthCfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		verifier:     provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		flows:        flows,
		reconciler:   reconciler,
		sessions:     sessions,
		allowed:      cfg.AllowedIssuers,
		responseMode: cfg.ResponseMode,
		storeTimeout: storeTimeout,
	}, nil
}

// BeginLogin moves the browser from anonymous to pending: it records a
// pending flow (state + nonce) and returns the provider authorization URL to
// redirect to. No local session is created yet.
func (s *Service) BeginLogin(_ context.Context) (string, error) {
	flow := &oidcflow.LoginFlowState{
		State: uuid.NewString(),
		Nonce: uuid.NewString(),
	}
	s.flows.Store(flow)

	opts := []oauth2.AuthCodeOption{oidc.Nonce(flow.Nonce)}
	if s.responseMode != "" {
		opts = append(opts, oauth2.SetAuthURLParam("response_mode", s.responseMode))
	}

	return s.oauthCfg.AuthCodeURL(flow.State, opts...), nil
}

// CallbackRequest carries the parameters the provider posted back.
type CallbackRequest struct {
	State            string
	Code             string
	ProviderError    string // "error" parameter, set when the provider aborted
	ErrorDescription string
}

// CompleteCallback resolves a pending login to authenticated or denied. On
// success the session payload has been persisted under its subject key before
// the method returns: the commit is on the response's critical path, so the
// redirect that follows can immediately read its own write. On any error no
// session state survives.
func (s *Service) CompleteCallback(ctx context.Context, req CallbackRequest) (*domain.SessionPayload, error) {
	if req.ProviderError != "" {
		return nil, fmt.Errorf("%w: %s (%s)", ErrProviderDenied, req.ProviderError, req.ErrorDescription)
	}

	flow, err := s.flows.Consume(req.State)
	if err != nil {
		return nil, fmt.Errorf("%w: no pending login for state: %v", ErrProviderDenied, err)
	}

	token, err := s.oauthCfg.Exchange(ctx, req.Code)
	if err != nil {
		return nil, fmt.Errorf("%w: code exchange failed: %v", ErrProviderDenied, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("%w: token response carried no ID token", ErrProviderDenied)
	}

	idToken, err := s.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: ID token verification failed: %v", ErrProviderDenied, err)
	}
	if idToken.Nonce != flow.Nonce {
		return nil, fmt.Errorf("%w: nonce mismatch", ErrProviderDenied)
	}
	if len(s.allowed) > 0 {
		if _, ok := s.allowed[idToken.Issuer]; !ok {
			return nil, fmt.Errorf("%w: issuer %q not in the allowed set", ErrProviderDenied, idToken.Issuer)
		}
	}

	claims, err := extractClaims(idToken)
	if err != nil {
		return nil, err
	}

	// Reconciliation and the session commit each get the store timeout: a
	// hung backing store resolves the callback instead of parking the
	// browser mid-flow.
	reconcileCtx, cancelReconcile := context.WithTimeout(ctx, s.storeTimeout)
	defer cancelReconcile()
	payload, err := s.reconciler.Reconcile(reconcileCtx, claims)
	if err != nil {
		return nil, err
	}

	commitCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.sessions.Set(commitCtx, payload.OID, payload); err != nil {
		return nil, err
	}

	log.Info().Str("username", payload.Username).Msg("Login completed, session established")
	return payload, nil
}

// Logout tears down the server-side session. It is idempotent and
// best-effort: a missing session or an unreachable store never surfaces as a
// failure to the browser, only as a log line.
func (s *Service) Logout(ctx context.Context, sessionKey string) {
	if sessionKey == "" {
		return
	}
	deleteCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.sessions.Delete(deleteCtx, sessionKey); err != nil {
		log.Warn().Err(err).Msg("Best-effort session teardown failed during logout")
	}
}

// extractClaims reduces the verified ID token to the fixed claim set the
// gateway uses. Azure AD style providers carry the stable subject in "oid";
// "sub" is the fallback.
func extractClaims(idToken *oidc.IDToken) (domain.Claims, error) {
	var raw struct {
		ObjectID          string `json:"oid"`
		PreferredUsername string `json:"preferred_username"`
		Name              string `json:"name"`
		GivenName         string `json:"given_name"`
		FamilyName        string `json:"family_name"`
	}
	if err := idToken.Claims(&raw); err != nil {
		return domain.Claims{}, fmt.Errorf("%w: malformed ID token claims: %v", ErrProviderDenied, err)
	}

	subject := raw.ObjectID
	if subject == "" {
		subject = idToken.Subject
	}

	name := strings.TrimSpace(raw.GivenName + " " + raw.FamilyName)
	if name == "" {
		name = raw.Name
	}

	return domain.Claims{
		Subject:           subject,
		PreferredUsername: raw.PreferredUsername,
		DisplayName:       raw.Name,
		Name:              name,
	}, nil
}
