package admin

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/Skotchmaster/ums/internal/apperr"
	"github.com/Skotchmaster/ums/internal/audit"
	"github.com/Skotchmaster/ums/internal/models"
	"github.com/Skotchmaster/ums/internal/repo"
	"github.com/Skotchmaster/ums/internal/roles"
	"github.com/Skotchmaster/ums/internal/service/auth"
	"github.com/Skotchmaster/ums/internal/service/session"
	"github.com/Skotchmaster/ums/internal/util"
)

type UserQuery struct {
	Query  string
	Status string
	Page   int
	Size   int
}

type UserPage struct {
	Users []models.User `json:"users"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Size  int           `json:"size"`
}

type UserDetail struct {
	User        *models.User       `json:"user"`
	Roles       roles.Set          `json:"roles"`
	Permissions []roles.Permission `json:"permissions"`
	Groups      []models.Group     `json:"groups"`
}

type InviteInput struct {
	Email string
	Name  string
	Roles []string
}

func parseStatus(s string) (models.UserStatus, error) {
	st := models.UserStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case models.StatusActive, models.StatusPending, models.StatusDisabled, models.StatusDeleted:
		return st, nil
	}
	return "", apperr.Validation("unknown status")
}

func (s *Service) ListUsers(ctx context.Context, cur *session.Current, q UserQuery) (*UserPage, error) {
	if err := authorize(cur, roles.UsersRead); err != nil {
		return nil, err
	}
	f := repo.UserFilter{Query: q.Query}
	if q.Status != "" {
		st, err := parseStatus(q.Status)
		if err != nil {
			return nil, err
		}
		f.Status = st
	}
	page, size := q.Page, q.Size
	if page < 1 {
		page = 1
	}
	f.Offset, f.Limit = util.Calculate(page, size)

	users, total, err := s.Repo.ListUsers(ctx, f)
	if err != nil {
		return nil, s.read(ctx, "list_users", err)
	}
	return &UserPage{Users: users, Total: total, Page: page, Size: f.Limit}, nil
}

func (s *Service) GetUser(ctx context.Context, cur *session.Current, id string) (*UserDetail, error) {
	if err := authorize(cur, roles.UsersRead); err != nil {
		return nil, err
	}
	u, err := s.Repo.UserByID(ctx, id)
	if err != nil {
		return nil, s.read(ctx, "get_user", err)
	}
	set, err := s.Repo.UserRoles(ctx, id)
	if err != nil {
		return nil, s.read(ctx, "get_user", err)
	}
	groups, err := s.Repo.UserGroups(ctx, id)
	if err != nil {
		return nil, s.read(ctx, "get_user", err)
	}
	return &UserDetail{User: u, Roles: set, Permissions: set.Permissions(), Groups: groups}, nil
}

// SetUserStatus switches an account between ACTIVE and DISABLED. Disabling
// revokes every live session of the account in the same transaction.
func (s *Service) SetUserStatus(ctx context.Context, cur *session.Current, id, status string, cc session.ClientContext) (*models.User, error) {
	if err := authorize(cur, roles.UsersWrite); err != nil {
		return nil, err
	}
	st, err := parseStatus(status)
	if err != nil {
		return nil, err
	}
	if st != models.StatusActive && st != models.StatusDisabled {
		return nil, apperr.Validation("status must be ACTIVE or DISABLED")
	}
	if st == models.StatusDisabled && id == cur.UserID() {
		return nil, apperr.Validation("you cannot disable your own account")
	}

	var out *models.User
	err = s.mutate(ctx, "set_user_status", cur, cc, func(tx *repo.GormRepo, fx *effects) error {
		u, err := liveUser(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := guardSuperAdmin(ctx, tx, cur, u, st == models.StatusDisabled); err != nil {
			return err
		}
		if err := tx.SetUserStatus(ctx, u.ID, st); err != nil {
			return err
		}
		var revoked int64
		if st == models.StatusDisabled {
			if revoked, err = s.Sessions.WithRepo(tx).RevokeAllForUser(ctx, u.ID); err != nil {
				return err
			}
		}
		if err := fx.record(ctx, tx, audit.ActionUserStatus, u.ID, map[string]any{
			"from":             u.Status,
			"to":               st,
			"sessions_revoked": revoked,
		}); err != nil {
			return err
		}
		out, err = tx.UserByID(ctx, u.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteUser marks the account DELETED and revokes its sessions. The row is
// purged when the email signs up again.
func (s *Service) DeleteUser(ctx context.Context, cur *session.Current, id string, cc session.ClientContext) error {
	if err := authorize(cur, roles.UsersWrite); err != nil {
		return err
	}
	if id == cur.UserID() {
		return apperr.Validation("you cannot delete your own account")
	}
	return s.mutate(ctx, "delete_user", cur, cc, func(tx *repo.GormRepo, fx *effects) error {
		u, err := liveUser(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := guardSuperAdmin(ctx, tx, cur, u, true); err != nil {
			return err
		}
		if err := tx.SetUserStatus(ctx, u.ID, models.StatusDeleted); err != nil {
			return err
		}
		revoked, err := s.Sessions.WithRepo(tx).RevokeAllForUser(ctx, u.ID)
		if err != nil {
			return err
		}
		return fx.record(ctx, tx, audit.ActionUserDeleted, u.ID, map[string]any{
			"email":            u.Email,
			"sessions_revoked": revoked,
		})
	})
}

// InviteUser creates a PENDING account without password together with its
// roles and a 7 day verification token, and mails the invitation. Granting
// more than USER requires roles:write.
func (s *Service) InviteUser(ctx context.Context, cur *session.Current, in InviteInput, cc session.ClientContext) (*models.User, error) {
	if err := authorize(cur, roles.InvitesWrite); err != nil {
		return nil, err
	}
	if err := auth.ValidateEmail(in.Email); err != nil {
		return nil, err
	}
	set := roles.Set{roles.User}
	for _, name := range in.Roles {
		r, err := roles.Parse(name)
		if err != nil {
			return nil, apperr.Validation(err.Error())
		}
		if !set.Has(r) {
			set = append(set, r)
		}
	}
	if len(set) > 1 && !cur.Roles.Can(roles.RolesWrite) {
		return nil, apperr.New(apperr.KindForbidden, "granting roles requires roles:write")
	}
	email := strings.TrimSpace(in.Email)
	normalized := auth.NormalizeEmail(email)

	var user *models.User
	err := s.mutate(ctx, "invite_user", cur, cc, func(tx *repo.GormRepo, fx *effects) error {
		existing, err := tx.UserByEmail(ctx, normalized)
		switch {
		case err == nil && existing.Status != models.StatusDeleted:
			return apperr.New(apperr.KindConflict, "account already exists")
		case err == nil:
			if err := tx.PurgeUser(ctx, existing.ID); err != nil {
				return err
			}
		case !errors.Is(err, repo.ErrNotFound):
			return err
		}

		now := s.now()
		user = &models.User{
			ID:              uuid.NewString(),
			Email:           email,
			EmailNormalized: normalized,
			Status:          models.StatusPending,
			Name:            strings.TrimSpace(in.Name),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		by := cur.UserID()
		for _, r := range set {
			if _, err := tx.AssignRole(ctx, &models.UserRole{UserID: user.ID, Role: r, AssignedBy: &by, AssignedAt: now}); err != nil {
				return err
			}
		}

		raw, _, err := s.Tokens.Issue(ctx, tx, user.ID, models.PurposeVerifyEmail, s.InviteTTL)
		if err != nil {
			return err
		}
		inviter := cur.User.Name
		if inviter == "" {
			inviter = cur.User.Email
		}
		row, err := s.Mailer.Enqueue(ctx, tx, s.Mailer.InviteMessage(user.Email, inviter, raw))
		if err != nil {
			return err
		}
		fx.outbox = append(fx.outbox, row)

		return fx.record(ctx, tx, audit.ActionUserInvited, user.ID, map[string]any{
			"email": user.Email,
			"roles": set,
		})
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) AssignRole(ctx context.Context, cur *session.Current, userID, role string, cc session.ClientContext) error {
	if err := authorize(cur, roles.RolesWrite); err != nil {
		return err
	}
	r, err := roles.Parse(role)
	if err != nil {
		return apperr.Validation(err.Error())
	}
	return s.mutate(ctx, "assign_role", cur, cc, func(tx *repo.GormRepo, fx *effects) error {
		u, err := liveUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		by := cur.UserID()
		created, err := tx.AssignRole(ctx, &models.UserRole{UserID: u.ID, Role: r, AssignedBy: &by, AssignedAt: s.now()})
		if err != nil {
			return err
		}
		return fx.record(ctx, tx, audit.ActionRoleAssigned, u.ID, map[string]any{"role": r, "changed": created})
	})
}

func (s *Service) RevokeRole(ctx context.Context, cur *session.Current, userID, role string, cc session.ClientContext) error {
	if err := authorize(cur, roles.RolesWrite); err != nil {
		return err
	}
	r, err := roles.Parse(role)
	if err != nil {
		return apperr.Validation(err.Error())
	}
	return s.mutate(ctx, "revoke_role", cur, cc, func(tx *repo.GormRepo, fx *effects) error {
		u, err := liveUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if r == roles.SuperAdmin {
			if err := guardSuperAdmin(ctx, tx, cur, u, true); err != nil {
				return err
			}
		}
		removed, err := tx.RevokeRole(ctx, u.ID, r)
		if err != nil {
			return err
		}
		return fx.record(ctx, tx, audit.ActionRoleRevoked, u.ID, map[string]any{"role": r, "changed": removed})
	})
}

func (s *Service) ListUserSessions(ctx context.Context, cur *session.Current, userID string) ([]models.Session, error) {
	if err := authorize(cur, roles.UsersRead); err != nil {
		return nil, err
	}
	if _, err := s.Repo.UserByID(ctx, userID); err != nil {
		return nil, s.read(ctx, "list_user_sessions", err)
	}
	return s.Sessions.ListActive(ctx, userID)
}

// RevokeUserSession ends one session of the given user. A session owned by
// someone else is reported as NOT_FOUND.
func (s *Service) RevokeUserSession(ctx context.Context, cur *session.Current, userID, sessionID string, cc session.ClientContext) error {
	if err := authorize(cur, roles.SessionsWrite); err != nil {
		return err
	}
	return s.mutate(ctx, "revoke_user_session", cur, cc, func(tx *repo.GormRepo, fx *effects) error {
		sess, err := tx.SessionByID(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.UserID != userID {
			return apperr.New(apperr.KindNotFound, "session not found")
		}
		if err := s.Sessions.WithRepo(tx).Revoke(ctx, sess.ID); err != nil {
			return err
		}
		return fx.record(ctx, tx, audit.ActionSessionRevoked, userID, map[string]any{"session_id": sess.ID})
	})
}
