// Package admin is the backend of the user management dashboard. Every
// operation takes the authenticated caller and checks its permission again,
// so the service is safe to call without the HTTP guards in front of it.
// Every mutation runs in one transaction together with its audit row.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Skotchmaster/ums/internal/apperr"
	"github.com/Skotchmaster/ums/internal/audit"
	"github.com/Skotchmaster/ums/internal/logging"
	"github.com/Skotchmaster/ums/internal/mail"
	"github.com/Skotchmaster/ums/internal/models"
	"github.com/Skotchmaster/ums/internal/repo"
	"github.com/Skotchmaster/ums/internal/roles"
	"github.com/Skotchmaster/ums/internal/service/onetime"
	"github.com/Skotchmaster/ums/internal/service/session"
)

type Service struct {
	Repo     *repo.GormRepo
	Sessions *session.Service
	Mailer   *mail.Mailer
	Audit    *audit.Recorder
	Tokens   *onetime.Tokens

	InviteTTL time.Duration
	Now       func() time.Time
}

func New(rp *repo.GormRepo, sessions *session.Service, mailer *mail.Mailer, rec *audit.Recorder) *Service {
	return &Service{
		Repo:      rp,
		Sessions:  sessions,
		Mailer:    mailer,
		Audit:     rec,
		Tokens:    &onetime.Tokens{},
		InviteTTL: onetime.InviteTTL,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// effects collects what has to happen once the transaction committed.
type effects struct {
	rec    *audit.Recorder
	actor  *session.Current
	ip     string
	outbox []*models.OutboxMessage
	audit  []*models.AuditLog
}

func (fx *effects) record(ctx context.Context, tx *repo.GormRepo, action, target string, meta map[string]any) error {
	entry, err := fx.rec.Record(ctx, tx, audit.Event{
		Action:   action,
		ActorID:  fx.actor.UserID(),
		TargetID: target,
		IP:       fx.ip,
		Metadata: meta,
	})
	if err != nil {
		return err
	}
	fx.audit = append(fx.audit, entry)
	return nil
}

// mutate runs fn in a transaction and performs the collected side effects
// after commit.
func (s *Service) mutate(ctx context.Context, op string, cur *session.Current, cc session.ClientContext, fn func(tx *repo.GormRepo, fx *effects) error) error {
	l := logging.FromContext(ctx).With("svc", "admin."+op, "actor_id", cur.UserID())

	fx := &effects{rec: s.Audit, actor: cur, ip: cc.IP}
	if err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		return fn(tx, fx)
	}); err != nil {
		return fail(l, op+"_failed", err)
	}

	for _, row := range fx.outbox {
		s.Mailer.Dispatch(ctx, s.Repo, row)
	}
	s.Audit.Publish(ctx, fx.audit...)
	l.Info(op + "_ok")
	return nil
}

func (s *Service) read(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	return fail(logging.FromContext(ctx).With("svc", "admin."+op), op+"_failed", err)
}

func authorize(cur *session.Current, p roles.Permission) error {
	if cur == nil {
		return apperr.ErrUnauthenticated
	}
	if !cur.Roles.Can(p) {
		return apperr.ErrForbidden
	}
	return nil
}

// fail maps repository errors onto error kinds and logs the outcome.
func fail(l *slog.Logger, msg string, err error) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		err = apperr.ErrNotFound
	case errors.Is(err, repo.ErrConflict):
		err = apperr.ErrConflict
	}
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		l.Error(msg, "status", 500, "error", err)
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return ae
		}
		return apperr.Internal(err)
	}
	l.Warn(msg, "status", kind.Status(), "reason", string(kind))
	return err
}

// liveUser loads a user that has not been deleted.
func liveUser(ctx context.Context, rp *repo.GormRepo, id string) (*models.User, error) {
	u, err := rp.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "user not found")
		}
		return nil, err
	}
	if u.Status == models.StatusDeleted {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	return u, nil
}

// guardSuperAdmin refuses changes that would leave no active SUPER_ADMIN
// and changes to a SUPER_ADMIN made by anyone who is not one.
func guardSuperAdmin(ctx context.Context, tx *repo.GormRepo, cur *session.Current, target *models.User, losesAccess bool) error {
	set, err := tx.UserRoles(ctx, target.ID)
	if err != nil {
		return err
	}
	if !set.Has(roles.SuperAdmin) {
		return nil
	}
	if !cur.Roles.Has(roles.SuperAdmin) {
		return apperr.New(apperr.KindForbidden, "only a super admin can change a super admin")
	}
	if !losesAccess || target.Status != models.StatusActive {
		return nil
	}
	n, err := tx.CountUsersWithRole(ctx, roles.SuperAdmin)
	if err != nil {
		return err
	}
	if n <= 1 {
		return apperr.Validation("the last active super admin cannot lose access")
	}
	return nil
}
