package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	ecM "github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/ums/internal/apperr"
	"github.com/Skotchmaster/ums/internal/logging"
	mwauth "github.com/Skotchmaster/ums/internal/middleware/auth"
	"github.com/Skotchmaster/ums/internal/middleware/csrf"
	"github.com/Skotchmaster/ums/internal/roles"
)

// Deps are the collaborators of the router. Account, Admin and Auth are nil
// when the database is disabled; the API then answers SERVICE_UNAVAILABLE.
type Deps struct {
	Account *AccountHTTP
	Admin   *AdminHTTP
	Auth    *mwauth.SessionAuth
	CSRF    csrf.Config

	// Ready reports whether the store can serve requests.
	Ready func(ctx context.Context) error
}

func (d *Deps) degraded() bool {
	return d.Account == nil || d.Admin == nil || d.Auth == nil
}

// Common is the middleware every route runs through.
func Common() []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{
		ecM.Recover(),
		ecM.RequestID(),
		ecM.Secure(),
		ecM.BodyLimit("1M"),
	}
}

func Register(e *echo.Echo, d *Deps) {
	e.HTTPErrorHandler = HTTPErrorHandler

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return ready(c, d) })

	api := e.Group("/api/v1")
	if d.degraded() {
		api.Any("/*", func(c echo.Context) error { return apperr.ErrServiceUnavailable })
		return
	}

	requireCSRF := csrf.Middleware(d.CSRF)
	perm := mwauth.RequirePermission

	acc := api.Group("/auth")
	acc.POST("/signup", d.Account.Signup)
	acc.POST("/login", d.Account.Login)
	acc.POST("/verify-email", d.Account.VerifyEmail)
	acc.POST("/resend-verification", d.Account.ResendVerification)
	acc.POST("/password-reset/request", d.Account.RequestPasswordReset)
	acc.POST("/password-reset/confirm", d.Account.ConfirmPasswordReset)

	private := acc.Group("", d.Auth.RequireAuth, requireCSRF)
	private.POST("/logout", d.Account.Logout)
	private.POST("/logout-all", d.Account.LogoutAll)
	private.GET("/me", d.Account.Me, perm(roles.ProfileRead))
	private.GET("/sessions", d.Account.ListSessions)
	private.DELETE("/sessions/:id", d.Account.RevokeSession)

	adm := api.Group("/admin", d.Auth.RequireAuth, mwauth.RequireAdmin, requireCSRF)
	adm.GET("/users", d.Admin.ListUsers, perm(roles.UsersRead))
	adm.GET("/users/:id", d.Admin.GetUser, perm(roles.UsersRead))
	adm.PATCH("/users/:id/status", d.Admin.SetUserStatus, perm(roles.UsersWrite))
	adm.DELETE("/users/:id", d.Admin.DeleteUser, perm(roles.UsersWrite))
	adm.POST("/users/:id/roles", d.Admin.AssignRole, perm(roles.RolesWrite))
	adm.DELETE("/users/:id/roles/:role", d.Admin.RevokeRole, perm(roles.RolesWrite))
	adm.GET("/users/:id/sessions", d.Admin.ListUserSessions, perm(roles.UsersRead))
	adm.DELETE("/users/:id/sessions/:sid", d.Admin.RevokeUserSession, perm(roles.SessionsWrite))

	adm.POST("/invites", d.Admin.Invite, perm(roles.InvitesWrite))

	adm.GET("/groups", d.Admin.ListGroups, perm(roles.GroupsRead))
	adm.POST("/groups", d.Admin.CreateGroup, perm(roles.GroupsWrite))
	adm.DELETE("/groups/:id", d.Admin.DeleteGroup, perm(roles.GroupsWrite))
	adm.GET("/groups/:id/members", d.Admin.GroupMembers, perm(roles.GroupsRead))
	adm.POST("/groups/:id/members", d.Admin.AddGroupMember, perm(roles.GroupsWrite))
	adm.DELETE("/groups/:id/members/:userID", d.Admin.RemoveGroupMember, perm(roles.GroupsWrite))

	adm.GET("/audit", d.Admin.ListAudit, perm(roles.AuditRead))

	adm.GET("/settings", d.Admin.ListSettings, perm(roles.SettingsRead))
	adm.PUT("/settings/:key", d.Admin.UpsertSetting, perm(roles.SettingsWrite))
}

func ready(c echo.Context, d *Deps) error {
	if d.degraded() || d.Ready == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded", "database": "disabled"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := d.Ready(ctx); err != nil {
		logging.FromContext(ctx).Warn("readiness_failed", "error", err)
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable", "database": "unreachable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
