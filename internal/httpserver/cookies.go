package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/ums/internal/middleware/auth"
	"github.com/Skotchmaster/ums/internal/middleware/csrf"
	"github.com/Skotchmaster/ums/internal/service/session"
)

// Cookies writes the session and csrf cookies. Secure is on in production.
type Cookies struct {
	Secure bool
	CSRF   csrf.Config
}

func NewCookies(secure bool) *Cookies {
	cfg := csrf.DefaultConfig()
	cfg.Secure = secure
	return &Cookies{Secure: secure, CSRF: cfg}
}

func (k *Cookies) SetSession(c echo.Context, iss *session.Issued) {
	c.SetCookie(&http.Cookie{
		Name:     auth.SessionCookie,
		Value:    iss.Token,
		Path:     "/",
		MaxAge:   int(iss.TTL.Seconds()),
		HttpOnly: true,
		Secure:   k.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	csrf.SetCookie(c, k.CSRF, iss.CSRFToken, iss.TTL)
}

// RefreshCSRF re-sends the csrf cookie of an existing session for the rest
// of its lifetime.
func (k *Cookies) RefreshCSRF(c echo.Context, sess *session.Current, now time.Time) {
	ttl := sess.Session.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return
	}
	csrf.SetCookie(c, k.CSRF, sess.Session.CSRFToken, ttl)
}

func (k *Cookies) Clear(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   k.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	csrf.ClearCookie(c, k.CSRF)
}
