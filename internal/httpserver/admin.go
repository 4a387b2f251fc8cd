package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	mwauth "github.com/Skotchmaster/ums/internal/middleware/auth"
	"github.com/Skotchmaster/ums/internal/service/admin"
	"github.com/Skotchmaster/ums/internal/util"
)

type AdminHTTP struct {
	Svc *admin.Service
}

func (h *AdminHTTP) ListUsers(c echo.Context) error {
	page, size := util.ParsePage(c.QueryParam("page"), c.QueryParam("size"))
	res, err := h.Svc.ListUsers(c.Request().Context(), mwauth.Current(c), admin.UserQuery{
		Query:  c.QueryParam("q"),
		Status: c.QueryParam("status"),
		Page:   page,
		Size:   size,
	})
	if err != nil {
		return err
	}
	users := make([]userView, 0, len(res.Users))
	for i := range res.Users {
		users = append(users, viewUser(&res.Users[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"users": users,
		"total": res.Total,
		"page":  res.Page,
		"size":  res.Size,
	})
}

func (h *AdminHTTP) GetUser(c echo.Context) error {
	d, err := h.Svc.GetUser(c.Request().Context(), mwauth.Current(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user":        viewUser(d.User),
		"roles":       d.Roles,
		"permissions": d.Permissions,
		"groups":      d.Groups,
	})
}

func (h *AdminHTTP) SetUserStatus(c echo.Context) error {
	var req struct {
		Status string `json:"status"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	u, err := h.Svc.SetUserStatus(c.Request().Context(), mwauth.Current(c), c.Param("id"), req.Status, clientContext(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"user": viewUser(u)})
}

func (h *AdminHTTP) DeleteUser(c echo.Context) error {
	if err := h.Svc.DeleteUser(c.Request().Context(), mwauth.Current(c), c.Param("id"), clientContext(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHTTP) Invite(c echo.Context) error {
	var req struct {
		Email string   `json:"email"`
		Name  string   `json:"name"`
		Roles []string `json:"roles"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	u, err := h.Svc.InviteUser(c.Request().Context(), mwauth.Current(c), admin.InviteInput{
		Email: req.Email,
		Name:  req.Name,
		Roles: req.Roles,
	}, clientContext(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"user": viewUser(u)})
}

func (h *AdminHTTP) AssignRole(c echo.Context) error {
	var req struct {
		Role string `json:"role"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.Svc.AssignRole(c.Request().Context(), mwauth.Current(c), c.Param("id"), req.Role, clientContext(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHTTP) RevokeRole(c echo.Context) error {
	if err := h.Svc.RevokeRole(c.Request().Context(), mwauth.Current(c), c.Param("id"), c.Param("role"), clientContext(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHTTP) ListUserSessions(c echo.Context) error {
	list, err := h.Svc.ListUserSessions(c.Request().Context(), mwauth.Current(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": viewSessions(list, mwauth.Current(c).Session.ID)})
}

func (h *AdminHTTP) RevokeUserSession(c echo.Context) error {
	if err := h.Svc.RevokeUserSession(c.Request().Context(), mwauth.Current(c), c.Param("id"), c.Param("sid"), clientContext(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHTTP) ListGroups(c echo.Context) error {
	groups, err := h.Svc.ListGroups(c.Request().Context(), mwauth.Current(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"groups": groups})
}

func (h *AdminHTTP) CreateGroup(c echo.Context) error {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	g, err := h.Svc.CreateGroup(c.Request().Context(), mwauth.Current(c), req.Name, req.Description, clientContext(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"group": g})
}

func (h *AdminHTTP) DeleteGroup(c echo.Context) error {
	if err := h.Svc.DeleteGroup(c.Request().Context(), mwauth.Current(c), c.Param("id"), clientContext(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHTTP) GroupMembers(c echo.Context) error {
	members, err := h.Svc.GroupMembers(c.Request().Context(), mwauth.Current(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"members": members})
}

func (h *AdminHTTP) AddGroupMember(c echo.Context) error {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.Svc.AddGroupMember(c.Request().Context(), mwauth.Current(c), c.Param("id"), req.UserID, clientContext(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHTTP) RemoveGroupMember(c echo.Context) error {
	if err := h.Svc.RemoveGroupMember(c.Request().Context(), mwauth.Current(c), c.Param("id"), c.Param("userID"), clientContext(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHTTP) ListAudit(c echo.Context) error {
	page, size := util.ParsePage(c.QueryParam("page"), c.QueryParam("size"))
	res, err := h.Svc.ListAudit(c.Request().Context(), mwauth.Current(c), admin.AuditQuery{
		Action:   c.QueryParam("action"),
		ActorID:  c.QueryParam("actor_id"),
		TargetID: c.QueryParam("target_id"),
		Page:     page,
		Size:     size,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *AdminHTTP) ListSettings(c echo.Context) error {
	settings, err := h.Svc.ListSettings(c.Request().Context(), mwauth.Current(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"settings": settings})
}

func (h *AdminHTTP) UpsertSetting(c echo.Context) error {
	var req struct {
		Value string `json:"value"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	st, err := h.Svc.UpsertSetting(c.Request().Context(), mwauth.Current(c), c.Param("key"), req.Value, clientContext(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"setting": st})
}
