// Package echo exposes the gateway's browser-facing HTTP surface: the OIDC
// login flow, logout, and the session validate endpoint.
package echo

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/authgate/domain"
	"go.pilab.hu/authgate/internal/authflow"
	"go.pilab.hu/authgate/internal/metrics"
)

const (
	// SessionCookieName is the browser cookie carrying the session key.
	SessionCookieName = "authgate_session"
	// PrincipalHeader carries the serialized principal on validate
	// responses.
	PrincipalHeader = "user"
)

// LoginFlow is the authentication state machine as the HTTP layer sees it.
type LoginFlow interface {
	BeginLogin(ctx context.Context) (string, error)
	CompleteCallback(ctx context.Context, req authflow.CallbackRequest) (*domain.SessionPayload, error)
	Logout(ctx context.Context, sessionKey string)
}

// Options holds the redirect targets and cookie settings for the API.
type Options struct {
	CookieDomain          string
	CookieMaxAge          time.Duration
	StoreTimeout          time.Duration
	LoginSuccessURL       string
	LoginFailureURL       string
	PostLogoutRedirectURL string
}

// AuthAPI holds the handler dependencies.
type AuthAPI struct {
	flow     LoginFlow
	sessions domain.SessionStore
	opts     Options
}

// NewAuthAPI initializes the auth API.
func NewAuthAPI(flow LoginFlow, sessions domain.SessionStore, opts Options) *AuthAPI {
	if opts.CookieMaxAge <= 0 {
		opts.CookieMaxAge = 5 * 24 * time.Hour
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.LoginSuccessURL == "" {
		opts.LoginSuccessURL = "/"
	}
	if opts.LoginFailureURL == "" {
		opts.LoginFailureURL = "/login"
	}
	if opts.PostLogoutRedirectURL == "" {
		opts.PostLogoutRedirectURL = "/"
	}
	return &AuthAPI{flow: flow, sessions: sessions, opts: opts}
}

// RegisterRoutes registers the auth routes.
func (a *AuthAPI) RegisterRoutes(e *echo.Echo) {
	e.GET("/auth/login", a.LoginHandler)
	e.POST("/auth/openid/return", a.CallbackHandler)
	e.GET("/auth/logout", a.LogoutHandler)
	e.GET("/auth/validate", a.ValidateHandler, a.SessionMiddleware())
}

// LoginHandler starts the OIDC flow by redirecting the browser to the
// provider's authorization endpoint. A setup failure sends the browser to the
// login-failure page instead.
func (a *AuthAPI) LoginHandler(c echo.Context) error {
	authURL, err := a.flow.BeginLogin(c.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to start login flow")
		return c.Redirect(http.StatusFound, a.opts.LoginFailureURL)
	}
	return c.Redirect(http.StatusFound, authURL)
}

// CallbackHandler handles the provider's post-back. The session commit has
// completed before any redirect leaves the server; a failed callback clears
// whatever cookie the browser still holds and never reaches the authenticated
// landing page.
func (a *AuthAPI) CallbackHandler(c echo.Context) error {
	req := authflow.CallbackRequest{
		State:            c.FormValue("state"),
		Code:             c.FormValue("code"),
		ProviderError:    c.FormValue("error"),
		ErrorDescription: c.FormValue("error_description"),
	}

	payload, err := a.flow.CompleteCallback(c.Request().Context(), req)
	if err != nil {
		metrics.LoginFailureTotal.Inc()
		log.Warn().Err(err).Msg("Login callback denied")
		a.clearSessionCookie(c)
		return c.Redirect(http.StatusFound, a.opts.LoginFailureURL)
	}

	metrics.LoginSuccessTotal.Inc()
	a.setSessionCookie(c, payload.OID)
	return c.Redirect(http.StatusFound, a.opts.LoginSuccessURL)
}

// LogoutHandler destroys the server-side session, clears the cookie and
// redirects to the configured post-logout destination. It never surfaces a
// hard failure to the browser and may be invoked without an active session.
func (a *AuthAPI) LogoutHandler(c echo.Context) error {
	sessionKey := ""
	if cookie, err := c.Cookie(SessionCookieName); err == nil {
		sessionKey = cookie.Value
	}

	a.flow.Logout(c.Request().Context(), sessionKey)
	metrics.LogoutTotal.Inc()

	a.clearSessionCookie(c)
	return c.Redirect(http.StatusFound, a.opts.PostLogoutRedirectURL)
}

// ValidateHandler projects the resolved session into the response: 200 with
// the serialized principal when a session exists, 403 with an empty principal
// header when it does not. Store failures never reach this handler; the
// middleware surfaces them as a server error.
func (a *AuthAPI) ValidateHandler(c echo.Context) error {
	principal, ok := PrincipalFromContext(c)
	if !ok {
		metrics.ValidateRequestsTotal.WithLabelValues("denied").Inc()
		c.Response().Header().Set(PrincipalHeader, "")
		return c.NoContent(http.StatusForbidden)
	}

	data, err := json.Marshal(principal)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to serialize principal").SetInternal(err)
	}

	metrics.ValidateRequestsTotal.WithLabelValues("ok").Inc()
	c.Response().Header().Set(PrincipalHeader, string(data))
	return c.NoContent(http.StatusOK)
}

func (a *AuthAPI) setSessionCookie(c echo.Context, sessionKey string) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionKey,
		Path:     "/",
		Domain:   a.opts.CookieDomain,
		MaxAge:   int(a.opts.CookieMaxAge.Seconds()),
		HttpOnly: true,
		// The provider posts the callback cross-site, so no SameSite
		// attribute is emitted.
		SameSite: http.SameSiteDefaultMode,
	})
}

func (a *AuthAPI) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   a.opts.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
	})
}
