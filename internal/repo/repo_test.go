package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/ums/internal/dbtest"
	"github.com/Skotchmaster/ums/internal/models"
	"github.com/Skotchmaster/ums/internal/repo"
	"github.com/Skotchmaster/ums/internal/roles"
)

func newUser(t *testing.T, rp *repo.GormRepo, email string, status models.UserStatus) *models.User {
	t.Helper()
	u := &models.User{
		ID:              uuid.NewString(),
		Email:           email,
		EmailNormalized: email,
		Status:          status,
	}
	require.NoError(t, rp.CreateUser(context.Background(), u))
	return u
}

func TestUserByEmail_NotFound(t *testing.T) {
	rp := dbtest.NewRepo(t)

	_, err := rp.UserByEmail(context.Background(), "nobody@x.com")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	rp := dbtest.NewRepo(t)
	newUser(t, rp, "a@x.com", models.StatusActive)

	err := rp.CreateUser(context.Background(), &models.User{
		ID: uuid.NewString(), Email: "a@x.com", EmailNormalized: "a@x.com", Status: models.StatusPending,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, repo.ErrConflict)
}

func TestRevokeUserSessions_OnlyThatUser(t *testing.T) {
	rp := dbtest.NewRepo(t)
	ctx := context.Background()
	a := newUser(t, rp, "a@x.com", models.StatusActive)
	b := newUser(t, rp, "b@x.com", models.StatusActive)

	now := time.Now().UTC()
	for i, uid := range []string{a.ID, a.ID, b.ID} {
		require.NoError(t, rp.CreateSession(ctx, &models.Session{
			ID:         uuid.NewString(),
			TokenHash:  uuid.NewString() + string(rune('a'+i)),
			UserID:     uid,
			CSRFToken:  "csrf",
			LastSeenAt: now,
			ExpiresAt:  now.Add(time.Hour),
		}))
	}

	n, err := rp.RevokeUserSessions(ctx, a.ID, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	left, err := rp.UnrevokedSessions(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, left, 1)

	n, err = rp.RevokeUserSessions(ctx, a.ID, now)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestMarkTokenUsed_OnlyOnce(t *testing.T) {
	rp := dbtest.NewRepo(t)
	ctx := context.Background()
	u := newUser(t, rp, "a@x.com", models.StatusPending)

	tok := &models.OneTimeToken{
		ID: uuid.NewString(), UserID: u.ID, Purpose: models.PurposeVerifyEmail,
		TokenHash: "h", ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, rp.CreateToken(ctx, tok))

	ok, err := rp.MarkTokenUsed(ctx, tok.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rp.MarkTokenUsed(ctx, tok.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransaction_RollsBack(t *testing.T) {
	rp := dbtest.NewRepo(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := rp.Transaction(ctx, func(tx *repo.GormRepo) error {
		newUser(t, tx, "tx@x.com", models.StatusActive)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = rp.UserByEmail(ctx, "tx@x.com")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestRoles_AssignIdempotentAndRevoke(t *testing.T) {
	rp := dbtest.NewRepo(t)
	ctx := context.Background()
	u := newUser(t, rp, "a@x.com", models.StatusActive)

	created, err := rp.AssignRole(ctx, &models.UserRole{UserID: u.ID, Role: roles.Admin, AssignedAt: time.Now()})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = rp.AssignRole(ctx, &models.UserRole{UserID: u.ID, Role: roles.Admin, AssignedAt: time.Now()})
	require.NoError(t, err)
	assert.False(t, created)

	set, err := rp.UserRoles(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, roles.Set{roles.Admin}, set)

	n, err := rp.CountUsersWithRole(ctx, roles.Admin)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	removed, err := rp.RevokeRole(ctx, u.ID, roles.Admin)
	require.NoError(t, err)
	assert.True(t, removed)

	set, err = rp.UserRoles(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestPurgeUser_RemovesDependents(t *testing.T) {
	rp := dbtest.NewRepo(t)
	ctx := context.Background()
	u := newUser(t, rp, "a@x.com", models.StatusDeleted)
	now := time.Now().UTC()

	require.NoError(t, rp.CreateSession(ctx, &models.Session{
		ID: uuid.NewString(), TokenHash: "s", UserID: u.ID, CSRFToken: "c", LastSeenAt: now, ExpiresAt: now.Add(time.Hour),
	}))
	_, err := rp.AssignRole(ctx, &models.UserRole{UserID: u.ID, Role: roles.User, AssignedAt: now})
	require.NoError(t, err)
	g := &models.Group{ID: uuid.NewString(), Name: "cooks"}
	require.NoError(t, rp.CreateGroup(ctx, g))
	_, err = rp.AddGroupMember(ctx, g.ID, u.ID, now)
	require.NoError(t, err)

	require.NoError(t, rp.PurgeUser(ctx, u.ID))

	_, err = rp.UserByID(ctx, u.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = rp.SessionByTokenHash(ctx, "s")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	members, err := rp.GroupMembers(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestListUsers_FilterAndPage(t *testing.T) {
	rp := dbtest.NewRepo(t)
	ctx := context.Background()
	newUser(t, rp, "alice@x.com", models.StatusActive)
	newUser(t, rp, "bob@x.com", models.StatusDisabled)
	newUser(t, rp, "alina@x.com", models.StatusActive)

	users, total, err := rp.ListUsers(ctx, repo.UserFilter{Query: "ALI", Page: repo.Page{Limit: 10}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, users, 2)

	users, total, err = rp.ListUsers(ctx, repo.UserFilter{Status: models.StatusDisabled, Page: repo.Page{Limit: 10}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, "bob@x.com", users[0].Email)

	users, total, err = rp.ListUsers(ctx, repo.UserFilter{Page: repo.Page{Offset: 2, Limit: 2}})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, users, 1)
}

func TestSettings_Upsert(t *testing.T) {
	rp := dbtest.NewRepo(t)
	ctx := context.Background()

	require.NoError(t, rp.UpsertSetting(ctx, &models.Setting{Key: "site.name", Value: "Meals", UpdatedAt: time.Now()}))
	require.NoError(t, rp.UpsertSetting(ctx, &models.Setting{Key: "site.name", Value: "Meal Plans", UpdatedAt: time.Now()}))

	all, err := rp.ListSettings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Meal Plans", all[0].Value)
}

func TestAudit_ListFilters(t *testing.T) {
	rp := dbtest.NewRepo(t)
	ctx := context.Background()
	actor := "actor-1"

	require.NoError(t, rp.AppendAudit(ctx, &models.AuditLog{Action: "auth.login", ActorID: &actor}))
	require.NoError(t, rp.AppendAudit(ctx, &models.AuditLog{Action: "auth.logout", ActorID: &actor}))
	require.NoError(t, rp.AppendAudit(ctx, &models.AuditLog{Action: "auth.login"}))

	out, total, err := rp.ListAudit(ctx, repo.AuditFilter{Action: "auth.login", Page: repo.Page{Limit: 10}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, out, 2)

	out, total, err = rp.ListAudit(ctx, repo.AuditFilter{ActorID: actor, Page: repo.Page{Limit: 10}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, out, 2)
	assert.Equal(t, "auth.logout", out[0].Action)
}
