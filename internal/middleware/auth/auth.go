// Package auth holds the echo guards that authenticate the caller from the
// session cookie and authorize it against the live role set.
package auth

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/ums/internal/apperr"
	"github.com/Skotchmaster/ums/internal/logging"
	"github.com/Skotchmaster/ums/internal/roles"
	"github.com/Skotchmaster/ums/internal/service/session"
)

const (
	SessionCookie = "session"

	currentKey = "ums.current"
)

// Validator is satisfied by *session.Service.
type Validator interface {
	ValidateSessionToken(ctx context.Context, rawToken string) (*session.Current, error)
}

type SessionAuth struct {
	Sessions Validator
}

func NewSessionAuth(v Validator) *SessionAuth {
	return &SessionAuth{Sessions: v}
}

// RequireAuth validates the session cookie and stores the caller in the
// echo context. The request logger is enriched with the user and session.
func (m *SessionAuth) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		ck, err := c.Cookie(SessionCookie)
		if err != nil || ck.Value == "" {
			return apperr.ErrUnauthenticated
		}

		cur, err := m.Sessions.ValidateSessionToken(ctx, ck.Value)
		if err != nil {
			return err
		}

		l := logging.FromContext(ctx).With("user_id", cur.UserID(), "session_id", cur.Session.ID)
		c.SetRequest(c.Request().WithContext(logging.IntoContext(ctx, l)))
		c.Set(currentKey, cur)
		return next(c)
	}
}

// Current returns the caller stored by RequireAuth, nil on public routes.
func Current(c echo.Context) *session.Current {
	cur, _ := c.Get(currentKey).(*session.Current)
	return cur
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cur := Current(c)
		if cur == nil {
			return apperr.ErrUnauthenticated
		}
		if !cur.Roles.IsAdmin() {
			logging.FromContext(c.Request().Context()).Warn("access_denied", "status", 403, "reason", "not an admin")
			return apperr.ErrForbidden
		}
		return next(c)
	}
}

// RequirePermission must run after RequireAuth.
func RequirePermission(p roles.Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cur := Current(c)
			if cur == nil {
				return apperr.ErrUnauthenticated
			}
			if !cur.Roles.Can(p) {
				logging.FromContext(c.Request().Context()).Warn("access_denied", "status", 403, "permission", string(p))
				return apperr.ErrForbidden
			}
			return next(c)
		}
	}
}
