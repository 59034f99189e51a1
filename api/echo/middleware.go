package echo

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"go.pilab.hu/authgate/domain"
)

// principalContextKey is the echo context key the resolved principal is
// stored under.
const principalContextKey = "authgate.principal"

// SessionMiddleware resolves the session cookie to a principal through the
// session store. A request without a cookie, or with a cookie pointing at an
// absent session, proceeds without a principal; only a store fault aborts the
// request, as a server error rather than a denial.
func (a *AuthAPI) SessionMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), a.opts.StoreTimeout)
			defer cancel()

			payload, err := a.sessions.Get(ctx, cookie.Value)
			switch {
			case err == nil:
				c.Set(principalContextKey, payload)
			case errors.Is(err, domain.ErrSessionNotFound):
				// Stale cookie, no active session. Not a fault.
			default:
				return echo.NewHTTPError(http.StatusInternalServerError, "session store unavailable").SetInternal(err)
			}

			return next(c)
		}
	}
}

// PrincipalFromContext returns the principal the session middleware resolved
// for this request, if any.
func PrincipalFromContext(c echo.Context) (*domain.SessionPayload, bool) {
	payload, ok := c.Get(principalContextKey).(*domain.SessionPayload)
	return payload, ok
}
