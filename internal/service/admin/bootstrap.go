package admin

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/Skotchmaster/ums/internal/apperr"
	"github.com/Skotchmaster/ums/internal/audit"
	"github.com/Skotchmaster/ums/internal/hash"
	"github.com/Skotchmaster/ums/internal/logging"
	"github.com/Skotchmaster/ums/internal/models"
	"github.com/Skotchmaster/ums/internal/repo"
	"github.com/Skotchmaster/ums/internal/roles"
	"github.com/Skotchmaster/ums/internal/service/auth"
)

// EnsureBootstrapAdmin creates an active, verified SUPER_ADMIN account when
// no account uses the email yet. It reports whether an account was created.
func (s *Service) EnsureBootstrapAdmin(ctx context.Context, email, password string) (bool, error) {
	l := logging.FromContext(ctx).With("svc", "admin.bootstrap")

	if err := auth.ValidateEmail(email); err != nil {
		return false, err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return false, err
	}
	normalized := auth.NormalizeEmail(email)

	if _, err := s.Repo.UserByEmail(ctx, normalized); err == nil {
		l.Info("bootstrap_admin_exists")
		return false, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return false, apperr.Internal(err)
	}

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		return false, apperr.Internal(err)
	}

	var entry *models.AuditLog
	err = s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		now := s.now()
		u := &models.User{
			ID:              uuid.NewString(),
			Email:           strings.TrimSpace(email),
			EmailNormalized: normalized,
			PasswordHash:    &pwHash,
			EmailVerifiedAt: &now,
			Status:          models.StatusActive,
			Name:            "Administrator",
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		for _, r := range []roles.Role{roles.User, roles.SuperAdmin} {
			if _, err := tx.AssignRole(ctx, &models.UserRole{UserID: u.ID, Role: r, AssignedAt: now}); err != nil {
				return err
			}
		}
		entry, err = s.Audit.Record(ctx, tx, audit.Event{
			Action:   audit.ActionRoleAssigned,
			TargetID: u.ID,
			Metadata: map[string]any{"role": roles.SuperAdmin, "bootstrap": true},
		})
		return err
	})
	if err != nil {
		l.Error("bootstrap_admin_failed", "error", err)
		return false, apperr.Internal(err)
	}
	s.Audit.Publish(ctx, entry)
	l.Info("bootstrap_admin_created")
	return true, nil
}
