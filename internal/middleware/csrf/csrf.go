// Package csrf enforces the double-submit check on authenticated,
// state-changing requests: the csrf cookie, the X-CSRF-Token header and the
// token stored on the session must all be equal.
package csrf

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/ums/internal/apperr"
	"github.com/Skotchmaster/ums/internal/logging"
	mwauth "github.com/Skotchmaster/ums/internal/middleware/auth"
	"github.com/Skotchmaster/ums/internal/service/session"
)

type Config struct {
	CookieName string
	HeaderName string

	CookiePath string
	Domain     string
	Secure     bool
	SameSite   http.SameSite

	// EnforceSameOrigin additionally rejects unsafe requests whose Origin or
	// Referer does not match the request host.
	EnforceSameOrigin bool
}

func DefaultConfig() Config {
	return Config{
		CookieName: "csrf",
		HeaderName: "X-CSRF-Token",
		CookiePath: "/",
		SameSite:   http.SameSiteLaxMode,
	}
}

func (cfg Config) withDefaults() Config {
	def := DefaultConfig()
	if cfg.CookieName == "" {
		cfg.CookieName = def.CookieName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = def.HeaderName
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = def.CookiePath
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = def.SameSite
	}
	return cfg
}

// Middleware must run after RequireAuth. Safe methods pass through.
func Middleware(cfg Config) echo.MiddlewareFunc {
	cfg = cfg.withDefaults()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			switch req.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}

			cur := mwauth.Current(c)
			if cur == nil {
				return apperr.ErrUnauthenticated
			}
			l := logging.FromContext(req.Context())

			if cfg.EnforceSameOrigin && !sameOrigin(req) {
				l.Warn("csrf_rejected", "status", 403, "reason", "origin mismatch")
				return apperr.ErrCSRFInvalid
			}

			cookie := ""
			if ck, err := c.Cookie(cfg.CookieName); err == nil {
				cookie = ck.Value
			}
			if err := session.CheckCSRF(cookie, req.Header.Get(cfg.HeaderName), cur.Session.CSRFToken); err != nil {
				l.Warn("csrf_rejected", "status", 403, "reason", "token mismatch")
				return err
			}
			return next(c)
		}
	}
}

// SetCookie hands the session's CSRF token to the client. The cookie is
// readable by scripts so they can echo it in the header.
func SetCookie(c echo.Context, cfg Config, token string, ttl time.Duration) {
	cfg = cfg.withDefaults()
	c.SetCookie(&http.Cookie{
		Name:     cfg.CookieName,
		Value:    token,
		Path:     cfg.CookiePath,
		Domain:   cfg.Domain,
		Secure:   cfg.Secure,
		HttpOnly: false,
		MaxAge:   int(ttl.Seconds()),
		SameSite: cfg.SameSite,
	})
}

func ClearCookie(c echo.Context, cfg Config) {
	cfg = cfg.withDefaults()
	c.SetCookie(&http.Cookie{
		Name:     cfg.CookieName,
		Value:    "",
		Path:     cfg.CookiePath,
		Domain:   cfg.Domain,
		Secure:   cfg.Secure,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		SameSite: cfg.SameSite,
	})
}

func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = r.Header.Get("Referer")
	}
	if origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, schemeOf(r)) && strings.EqualFold(u.Host, r.Host)
}

func schemeOf(r *http.Request) string {
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		return p
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
