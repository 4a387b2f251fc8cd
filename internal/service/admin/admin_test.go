package admin

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/ums/internal/apperr"
	"github.com/Skotchmaster/ums/internal/audit"
	"github.com/Skotchmaster/ums/internal/dbtest"
	"github.com/Skotchmaster/ums/internal/hash"
	"github.com/Skotchmaster/ums/internal/mail"
	"github.com/Skotchmaster/ums/internal/models"
	"github.com/Skotchmaster/ums/internal/repo"
	"github.com/Skotchmaster/ums/internal/roles"
	"github.com/Skotchmaster/ums/internal/service/auth"
	"github.com/Skotchmaster/ums/internal/service/session"
)

var cc = session.ClientContext{IP: "10.1.1.1", UserAgent: "admin-test"}

type env struct {
	svc  *Service
	rp   *repo.GormRepo
	auth *auth.AuthService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	rp := dbtest.NewRepo(t)
	sessions := session.New(rp, 0, 0)
	mailer := mail.New(nil, "http://localhost:3000")
	rec := audit.NewRecorder(nil, "ums_audit")
	return &env{
		svc:  New(rp, sessions, mailer, rec),
		rp:   rp,
		auth: auth.New(rp, sessions, mailer, rec),
	}
}

func (e *env) user(t *testing.T, email string, rs ...roles.Role) *models.User {
	t.Helper()
	ctx := context.Background()
	u := &models.User{
		ID:              uuid.NewString(),
		Email:           email,
		EmailNormalized: email,
		Status:          models.StatusActive,
	}
	require.NoError(t, e.rp.CreateUser(ctx, u))
	for _, r := range append([]roles.Role{roles.User}, rs...) {
		_, err := e.rp.AssignRole(ctx, &models.UserRole{UserID: u.ID, Role: r, AssignedAt: time.Now()})
		require.NoError(t, err)
	}
	return u
}

// login returns the validated caller and the raw session token.
func (e *env) login(t *testing.T, u *models.User) (*session.Current, string) {
	t.Helper()
	ctx := context.Background()
	iss, err := e.svc.Sessions.CreateSession(ctx, u.ID, false, cc)
	require.NoError(t, err)
	cur, err := e.svc.Sessions.ValidateSessionToken(ctx, iss.Token)
	require.NoError(t, err)
	return cur, iss.Token
}

func (e *env) audits(t *testing.T, action string) []models.AuditLog {
	t.Helper()
	rows, _, err := e.rp.ListAudit(context.Background(), repo.AuditFilter{Action: action, Page: repo.Page{Limit: 100}})
	require.NoError(t, err)
	return rows
}

func TestPermissionsAreCheckedInService(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	plain, _ := e.login(t, e.user(t, "u@x.com"))
	admin, _ := e.login(t, e.user(t, "admin@x.com", roles.Admin))
	target := e.user(t, "t@x.com")

	_, err := e.svc.ListUsers(ctx, plain, UserQuery{})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = e.svc.ListUsers(ctx, nil, UserQuery{})
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	err = e.svc.AssignRole(ctx, admin, target.ID, "ADMIN", cc)
	assert.ErrorIs(t, err, apperr.ErrForbidden, "roles:write is SUPER_ADMIN only")

	_, err = e.svc.UpsertSetting(ctx, admin, "site.name", "x", cc)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = e.svc.ListSettings(ctx, admin)
	require.NoError(t, err)
}

func TestDisableRevokesLiveSessionsImmediately(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin, _ := e.login(t, e.user(t, "admin@x.com", roles.Admin))
	target := e.user(t, "t@x.com")
	_, tok1 := e.login(t, target)
	_, tok2 := e.login(t, target)

	u, err := e.svc.SetUserStatus(ctx, admin, target.ID, "disabled", cc)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDisabled, u.Status)

	for _, tok := range []string{tok1, tok2} {
		_, err := e.svc.Sessions.ValidateSessionToken(ctx, tok)
		assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	}
	live, err := e.rp.UnrevokedSessions(ctx, target.ID)
	require.NoError(t, err)
	assert.Empty(t, live)

	_, err = e.svc.Sessions.CreateSession(ctx, target.ID, false, cc)
	assert.ErrorIs(t, err, apperr.ErrAccountDisabled)

	rows := e.audits(t, audit.ActionUserStatus)
	require.Len(t, rows, 1)
	assert.Equal(t, admin.UserID(), *rows[0].ActorID)
	assert.Equal(t, target.ID, *rows[0].TargetID)

	u, err = e.svc.SetUserStatus(ctx, admin, target.ID, "ACTIVE", cc)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, u.Status)
}

func TestSetUserStatus_Rules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	adminUser := e.user(t, "admin@x.com", roles.Admin)
	admin, _ := e.login(t, adminUser)
	super := e.user(t, "root@x.com", roles.SuperAdmin)
	target := e.user(t, "t@x.com")

	_, err := e.svc.SetUserStatus(ctx, admin, adminUser.ID, "DISABLED", cc)
	assert.ErrorIs(t, err, apperr.ErrValidation, "self disable")

	_, err = e.svc.SetUserStatus(ctx, admin, target.ID, "PENDING", cc)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.svc.SetUserStatus(ctx, admin, target.ID, "bogus", cc)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.svc.SetUserStatus(ctx, admin, uuid.NewString(), "DISABLED", cc)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = e.svc.SetUserStatus(ctx, admin, super.ID, "DISABLED", cc)
	assert.ErrorIs(t, err, apperr.ErrForbidden, "admins cannot touch super admins")

	assert.Empty(t, e.audits(t, audit.ActionUserStatus))
}

func TestLastSuperAdminIsProtected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rootUser := e.user(t, "root@x.com", roles.SuperAdmin)
	root, _ := e.login(t, rootUser)
	second := e.user(t, "root2@x.com", roles.SuperAdmin)

	require.NoError(t, e.svc.DeleteUser(ctx, root, second.ID, cc))

	err := e.svc.RevokeRole(ctx, root, rootUser.ID, "SUPER_ADMIN", cc)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	set, err := e.rp.UserRoles(ctx, rootUser.ID)
	require.NoError(t, err)
	assert.True(t, set.Has(roles.SuperAdmin))
}

func TestDeleteUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin, _ := e.login(t, e.user(t, "admin@x.com", roles.Admin))
	target := e.user(t, "t@x.com")
	_, tok := e.login(t, target)

	require.NoError(t, e.svc.DeleteUser(ctx, admin, target.ID, cc))

	_, err := e.svc.Sessions.ValidateSessionToken(ctx, tok)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	u, err := e.rp.UserByID(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeleted, u.Status)

	err = e.svc.DeleteUser(ctx, admin, target.ID, cc)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	err = e.svc.DeleteUser(ctx, admin, admin.UserID(), cc)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.Len(t, e.audits(t, audit.ActionUserDeleted), 1)
}

func TestInviteUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	root, _ := e.login(t, e.user(t, "root@x.com", roles.SuperAdmin))

	u, err := e.svc.InviteUser(ctx, root, InviteInput{Email: "New@X.com", Name: "New", Roles: []string{"admin"}}, cc)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, u.Status)
	assert.Nil(t, u.PasswordHash)

	set, err := e.rp.UserRoles(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, set.Has(roles.User))
	assert.True(t, set.Has(roles.Admin))

	rows, err := e.rp.OutboxFor(ctx, "New@X.com")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, mail.KindInvite, rows[0].Kind)

	tok, err := e.svc.Tokens.Lookup(ctx, e.rp, models.PurposeVerifyEmail, rows[0].Token)
	require.NoError(t, err)
	assert.WithinDuration(t, tok.CreatedAt.Add(7*24*time.Hour), tok.ExpiresAt, time.Second)

	_, err = e.auth.VerifyEmail(ctx, rows[0].Token, cc)
	assert.ErrorIs(t, err, apperr.ErrValidation, "invited accounts must choose a password")

	accepted, err := e.auth.AcceptInvite(ctx, rows[0].Token, "chosenpw1", cc)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, accepted.Status)

	_, err = e.auth.Login(ctx, auth.LoginInput{Email: "new@x.com", Password: "chosenpw1"}, cc)
	require.NoError(t, err)

	_, err = e.svc.InviteUser(ctx, root, InviteInput{Email: "new@x.com"}, cc)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Len(t, e.audits(t, audit.ActionUserInvited), 1)
}

func TestInviteUser_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin, _ := e.login(t, e.user(t, "admin@x.com", roles.Admin))

	_, err := e.svc.InviteUser(ctx, admin, InviteInput{Email: "bad"}, cc)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.svc.InviteUser(ctx, admin, InviteInput{Email: "n@x.com", Roles: []string{"OWNER"}}, cc)
	assert.ErrorIs(t, err, apperr.ErrValidation, "custom roles are rejected")

	_, err = e.svc.InviteUser(ctx, admin, InviteInput{Email: "n@x.com", Roles: []string{"ADMIN"}}, cc)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = e.svc.InviteUser(ctx, admin, InviteInput{Email: "n@x.com", Roles: []string{"user"}}, cc)
	require.NoError(t, err)
}

func TestRoleChangesApplyOnNextRequest(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	root, _ := e.login(t, e.user(t, "root@x.com", roles.SuperAdmin))
	target := e.user(t, "t@x.com")
	_, tok := e.login(t, target)

	require.NoError(t, e.svc.AssignRole(ctx, root, target.ID, "admin", cc))
	require.NoError(t, e.svc.AssignRole(ctx, root, target.ID, "ADMIN", cc))

	cur, err := e.svc.Sessions.ValidateSessionToken(ctx, tok)
	require.NoError(t, err)
	assert.True(t, cur.Roles.IsAdmin())

	require.NoError(t, e.svc.RevokeRole(ctx, root, target.ID, "ADMIN", cc))
	cur, err = e.svc.Sessions.ValidateSessionToken(ctx, tok)
	require.NoError(t, err)
	assert.False(t, cur.Roles.IsAdmin())

	err = e.svc.AssignRole(ctx, root, target.ID, "OWNER", cc)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.Len(t, e.audits(t, audit.ActionRoleAssigned), 2)
	assert.Len(t, e.audits(t, audit.ActionRoleRevoked), 1)
}

func TestUserSessions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin, _ := e.login(t, e.user(t, "admin@x.com", roles.Admin))
	target := e.user(t, "t@x.com")
	other := e.user(t, "o@x.com")
	tCur, tTok := e.login(t, target)
	oCur, _ := e.login(t, other)

	list, err := e.svc.ListUserSessions(ctx, admin, target.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	err = e.svc.RevokeUserSession(ctx, admin, target.ID, oCur.Session.ID, cc)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, e.svc.RevokeUserSession(ctx, admin, target.ID, tCur.Session.ID, cc))
	_, err = e.svc.Sessions.ValidateSessionToken(ctx, tTok)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	list, err = e.svc.ListUserSessions(ctx, admin, target.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGroups(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin, _ := e.login(t, e.user(t, "admin@x.com", roles.Admin))
	member := e.user(t, "m@x.com")

	g, err := e.svc.CreateGroup(ctx, admin, " Chefs ", "kitchen staff", cc)
	require.NoError(t, err)
	assert.Equal(t, "Chefs", g.Name)

	_, err = e.svc.CreateGroup(ctx, admin, "Chefs", "", cc)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = e.svc.CreateGroup(ctx, admin, "   ", "", cc)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	require.NoError(t, e.svc.AddGroupMember(ctx, admin, g.ID, member.ID, cc))
	require.NoError(t, e.svc.AddGroupMember(ctx, admin, g.ID, member.ID, cc))
	err = e.svc.AddGroupMember(ctx, admin, g.ID, uuid.NewString(), cc)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	members, err := e.svc.GroupMembers(ctx, admin, g.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)

	detail, err := e.svc.GetUser(ctx, admin, member.ID)
	require.NoError(t, err)
	require.Len(t, detail.Groups, 1)
	assert.Equal(t, "Chefs", detail.Groups[0].Name)

	require.NoError(t, e.svc.RemoveGroupMember(ctx, admin, g.ID, member.ID, cc))
	err = e.svc.RemoveGroupMember(ctx, admin, g.ID, member.ID, cc)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, e.svc.DeleteGroup(ctx, admin, g.ID, cc))
	err = e.svc.DeleteGroup(ctx, admin, g.ID, cc)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	groups, err := e.svc.ListGroups(ctx, admin)
	require.NoError(t, err)
	assert.Empty(t, groups)

	assert.Len(t, e.audits(t, audit.ActionGroupCreated), 1)
	assert.Len(t, e.audits(t, audit.ActionGroupMemberAdded), 2)
	assert.Len(t, e.audits(t, audit.ActionGroupMemberRemoved), 1)
	assert.Len(t, e.audits(t, audit.ActionGroupDeleted), 1)
}

func TestListUsersAndAudit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin, _ := e.login(t, e.user(t, "admin@x.com", roles.Admin))
	for _, email := range []string{"alice@x.com", "bob@x.com", "carol@x.com"} {
		e.user(t, email)
	}

	page, err := e.svc.ListUsers(ctx, admin, UserQuery{Page: 1, Size: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 4, page.Total)
	assert.Len(t, page.Users, 2)
	assert.Equal(t, 2, page.Size)

	page, err = e.svc.ListUsers(ctx, admin, UserQuery{Query: "BOB"})
	require.NoError(t, err)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "bob@x.com", page.Users[0].Email)

	_, err = e.svc.ListUsers(ctx, admin, UserQuery{Status: "weird"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.svc.CreateGroup(ctx, admin, "g1", "", cc)
	require.NoError(t, err)
	_, err = e.svc.CreateGroup(ctx, admin, "g2", "", cc)
	require.NoError(t, err)

	ap, err := e.svc.ListAudit(ctx, admin, AuditQuery{Action: audit.ActionGroupCreated, Size: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, ap.Total)
	require.Len(t, ap.Entries, 1)

	ap, err = e.svc.ListAudit(ctx, admin, AuditQuery{ActorID: admin.UserID()})
	require.NoError(t, err)
	assert.EqualValues(t, 2, ap.Total)
}

func TestSettings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	root, _ := e.login(t, e.user(t, "root@x.com", roles.SuperAdmin))

	_, err := e.svc.UpsertSetting(ctx, root, "Bad Key", "x", cc)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.svc.UpsertSetting(ctx, root, "signup.enabled", "true", cc)
	require.NoError(t, err)
	st, err := e.svc.UpsertSetting(ctx, root, "signup.enabled", "false", cc)
	require.NoError(t, err)
	assert.Equal(t, "false", st.Value)

	all, err := e.svc.ListSettings(ctx, root)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "false", all[0].Value)
	assert.Len(t, e.audits(t, audit.ActionSettingsUpdated), 2)

	_, err = e.svc.UpsertSetting(ctx, root, "smtp.api_key", "sk-very-secret-value", cc)
	require.NoError(t, err)
	rows := e.audits(t, audit.ActionSettingsUpdated)
	require.Len(t, rows, 3)
	var meta map[string]any
	for _, r := range rows {
		if strings.Contains(r.Metadata, "smtp.api_key") {
			require.NoError(t, json.Unmarshal([]byte(r.Metadata), &meta))
		}
	}
	require.NotNil(t, meta)
	assert.EqualValues(t, len("sk-very-secret-value"), meta["value_length"])
	assert.Equal(t, hash.Sha256Hex("sk-very-secret-value"), meta["value_sha256"])
	assert.NotContains(t, meta, "value")
	for _, r := range rows {
		assert.NotContains(t, r.Metadata, "sk-very-secret-value")
	}
}

func TestEnsureBootstrapAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	created, err := e.svc.EnsureBootstrapAdmin(ctx, "root@x.com", "rootpass1")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = e.svc.EnsureBootstrapAdmin(ctx, "ROOT@x.com", "rootpass1")
	require.NoError(t, err)
	assert.False(t, created)

	res, err := e.auth.Login(ctx, auth.LoginInput{Email: "root@x.com", Password: "rootpass1"}, cc)
	require.NoError(t, err)
	assert.True(t, res.Roles.Has(roles.SuperAdmin))
	assert.Equal(t, models.StatusActive, res.User.Status)

	_, err = e.svc.EnsureBootstrapAdmin(ctx, "root2@x.com", "short")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
