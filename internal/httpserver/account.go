package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/ums/internal/apperr"
	"github.com/Skotchmaster/ums/internal/logging"
	mwauth "github.com/Skotchmaster/ums/internal/middleware/auth"
	"github.com/Skotchmaster/ums/internal/models"
	"github.com/Skotchmaster/ums/internal/service/auth"
	"github.com/Skotchmaster/ums/internal/service/session"
)

type AccountHTTP struct {
	Svc      *auth.AuthService
	Sessions *session.Service
	Cookies  *Cookies
}

type userView struct {
	ID              string            `json:"id"`
	Email           string            `json:"email"`
	Name            string            `json:"name"`
	Status          models.UserStatus `json:"status"`
	EmailVerifiedAt *time.Time        `json:"email_verified_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	LastLoginAt     *time.Time        `json:"last_login_at,omitempty"`
}

func viewUser(u *models.User) userView {
	return userView{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		Status:          u.Status,
		EmailVerifiedAt: u.EmailVerifiedAt,
		CreatedAt:       u.CreatedAt,
		LastLoginAt:     u.LastLoginAt,
	}
}

type sessionView struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	IP         string    `json:"ip"`
	UserAgent  string    `json:"user_agent"`
	Current    bool      `json:"current"`
}

func viewSessions(list []models.Session, currentID string) []sessionView {
	out := make([]sessionView, 0, len(list))
	for _, s := range list {
		out = append(out, sessionView{
			ID:         s.ID,
			CreatedAt:  s.CreatedAt,
			LastSeenAt: s.LastSeenAt,
			ExpiresAt:  s.ExpiresAt,
			IP:         s.IP,
			UserAgent:  s.UserAgent,
			Current:    s.ID == currentID,
		})
	}
	return out
}

func clientContext(c echo.Context) session.ClientContext {
	return session.ClientContext{IP: c.RealIP(), UserAgent: c.Request().UserAgent()}
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		logging.FromContext(c.Request().Context()).Warn("bind_failed", "status", 400, "error", err)
		return apperr.Validation("invalid body")
	}
	return nil
}

func (h *AccountHTTP) Signup(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}

	u, err := h.Svc.Signup(c.Request().Context(), auth.SignupInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	}, clientContext(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"user": viewUser(u)})
}

func (h *AccountHTTP) Login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Remember bool   `json:"remember"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := h.Svc.Login(c.Request().Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Remember: req.Remember,
	}, clientContext(c))
	if err != nil {
		return err
	}

	h.Cookies.SetSession(c, res.Issued)
	return c.JSON(http.StatusOK, echo.Map{
		"user":        viewUser(res.User),
		"roles":       res.Roles,
		"permissions": res.Roles.Permissions(),
		"csrf_token":  res.Issued.CSRFToken,
		"expires_at":  res.Issued.ExpiresAt,
	})
}

func (h *AccountHTTP) Logout(c echo.Context) error {
	if err := h.Svc.Logout(c.Request().Context(), mwauth.Current(c), clientContext(c)); err != nil {
		return err
	}
	h.Cookies.Clear(c)
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

func (h *AccountHTTP) LogoutAll(c echo.Context) error {
	n, err := h.Svc.LogoutAll(c.Request().Context(), mwauth.Current(c), clientContext(c))
	if err != nil {
		return err
	}
	h.Cookies.Clear(c)
	return c.JSON(http.StatusOK, echo.Map{"revoked": n})
}

func (h *AccountHTTP) Me(c echo.Context) error {
	cur := mwauth.Current(c)
	h.Cookies.RefreshCSRF(c, cur, time.Now())
	return c.JSON(http.StatusOK, echo.Map{
		"user":        viewUser(cur.User),
		"roles":       cur.Roles,
		"permissions": cur.Roles.Permissions(),
		"session": echo.Map{
			"id":         cur.Session.ID,
			"expires_at": cur.Session.ExpiresAt,
		},
		"csrf_token": cur.Session.CSRFToken,
	})
}

func (h *AccountHTTP) ListSessions(c echo.Context) error {
	cur := mwauth.Current(c)
	list, err := h.Sessions.ListActive(c.Request().Context(), cur.UserID())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": viewSessions(list, cur.Session.ID)})
}

func (h *AccountHTTP) RevokeSession(c echo.Context) error {
	cur := mwauth.Current(c)
	id := c.Param("id")
	if err := h.Svc.RevokeOwnSession(c.Request().Context(), cur, id, clientContext(c)); err != nil {
		return err
	}
	if id == cur.Session.ID {
		h.Cookies.Clear(c)
	}
	return c.NoContent(http.StatusNoContent)
}

// VerifyEmail also accepts invitations: invited accounts send the password
// they chose along with the token.
func (h *AccountHTTP) VerifyEmail(c echo.Context) error {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Token == "" {
		req.Token = c.QueryParam("token")
	}

	ctx := c.Request().Context()
	var (
		u   *models.User
		err error
	)
	if req.Password != "" {
		u, err = h.Svc.AcceptInvite(ctx, req.Token, req.Password, clientContext(c))
	} else {
		u, err = h.Svc.VerifyEmail(ctx, req.Token, clientContext(c))
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"user": viewUser(u)})
}

func (h *AccountHTTP) ResendVerification(c echo.Context) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.Svc.ResendVerification(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, echo.Map{"message": "if the account is awaiting verification, an email has been sent"})
}

func (h *AccountHTTP) RequestPasswordReset(c echo.Context) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.Svc.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, echo.Map{"message": "if the account exists, an email has been sent"})
}

func (h *AccountHTTP) ConfirmPasswordReset(c echo.Context) error {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.Svc.ResetPassword(c.Request().Context(), req.Token, req.Password, clientContext(c)); err != nil {
		return err
	}
	h.Cookies.Clear(c)
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}
