// Package auth implements the account flows of the end user: signup,
// login, logout, email verification and password reset.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/ums/internal/apperr"
	"github.com/Skotchmaster/ums/internal/audit"
	"github.com/Skotchmaster/ums/internal/hash"
	"github.com/Skotchmaster/ums/internal/logging"
	"github.com/Skotchmaster/ums/internal/mail"
	"github.com/Skotchmaster/ums/internal/models"
	"github.com/Skotchmaster/ums/internal/repo"
	"github.com/Skotchmaster/ums/internal/roles"
	"github.com/Skotchmaster/ums/internal/service/onetime"
	"github.com/Skotchmaster/ums/internal/service/session"
)

// dummyHash keeps login timing similar for unknown emails.
var dummyHash, _ = hash.HashPassword("not-a-real-password-0")

type AuthService struct {
	Repo     *repo.GormRepo
	Sessions *session.Service
	Mailer   *mail.Mailer
	Audit    *audit.Recorder
	Tokens   *onetime.Tokens

	VerifyTTL time.Duration
	InviteTTL time.Duration
	ResetTTL  time.Duration
	Now       func() time.Time
}

func New(rp *repo.GormRepo, sessions *session.Service, mailer *mail.Mailer, rec *audit.Recorder) *AuthService {
	return &AuthService{
		Repo:      rp,
		Sessions:  sessions,
		Mailer:    mailer,
		Audit:     rec,
		Tokens:    &onetime.Tokens{},
		VerifyTTL: onetime.VerifyTTL,
		InviteTTL: onetime.InviteTTL,
		ResetTTL:  onetime.ResetTTL,
	}
}

func (h *AuthService) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

type SignupInput struct {
	Email    string
	Password string
	Name     string
}

type LoginInput struct {
	Email    string
	Password string
	Remember bool
}

type LoginResult struct {
	Issued *session.Issued
	User   *models.User
	Roles  roles.Set
}

// afterCommit holds the best-effort side effects of a committed transaction.
type afterCommit struct {
	outbox []*models.OutboxMessage
	audit  []*models.AuditLog
}

func (h *AuthService) flush(ctx context.Context, ac *afterCommit) {
	for _, row := range ac.outbox {
		h.Mailer.Dispatch(ctx, h.Repo, row)
	}
	h.Audit.Publish(ctx, ac.audit...)
}

func (h *AuthService) Signup(ctx context.Context, in SignupInput, cc session.ClientContext) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.signup")

	if err := ValidateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	email := strings.TrimSpace(in.Email)
	normalized := NormalizeEmail(email)

	pwHash, err := hash.HashPassword(in.Password)
	if err != nil {
		l.Error("signup_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, apperr.Internal(err)
	}

	var (
		user *models.User
		ac   afterCommit
	)
	err = h.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
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

		now := h.now()
		user = &models.User{
			ID:              uuid.NewString(),
			Email:           email,
			EmailNormalized: normalized,
			PasswordHash:    &pwHash,
			Status:          models.StatusPending,
			Name:            strings.TrimSpace(in.Name),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		if _, err := tx.AssignRole(ctx, &models.UserRole{UserID: user.ID, Role: roles.User, AssignedAt: now}); err != nil {
			return err
		}

		raw, _, err := h.Tokens.Issue(ctx, tx, user.ID, models.PurposeVerifyEmail, h.VerifyTTL)
		if err != nil {
			return err
		}
		row, err := h.Mailer.Enqueue(ctx, tx, h.Mailer.VerificationMessage(user.Email, raw))
		if err != nil {
			return err
		}
		ac.outbox = append(ac.outbox, row)

		entry, err := h.Audit.Record(ctx, tx, audit.Event{
			Action:   audit.ActionSignup,
			ActorID:  user.ID,
			TargetID: user.ID,
			IP:       cc.IP,
		})
		if err != nil {
			return err
		}
		ac.audit = append(ac.audit, entry)
		return nil
	})
	if errors.Is(err, repo.ErrConflict) {
		err = apperr.New(apperr.KindConflict, "account already exists")
	}
	if err != nil {
		return nil, h.fail(l, "signup_failed", err)
	}

	h.flush(ctx, &ac)
	l.Info("signup_ok", "user_id", user.ID)
	return user, nil
}

func (h *AuthService) Login(ctx context.Context, in LoginInput, cc session.ClientContext) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")

	user, err := h.Repo.UserByEmail(ctx, NormalizeEmail(in.Email))
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			l.Error("login_failed", "status", 500, "error", err)
			return nil, apperr.Internal(err)
		}
		_ = hash.CheckPassword(dummyHash, in.Password)
		l.Warn("login_failed", "status", 401, "reason", "unknown email")
		return nil, apperr.New(apperr.KindUnauthenticated, "invalid email or password")
	}
	if user.PasswordHash == nil || !hash.CheckPassword(*user.PasswordHash, in.Password) {
		l.Warn("login_failed", "status", 401, "reason", "wrong password", "user_id", user.ID)
		return nil, apperr.New(apperr.KindUnauthenticated, "invalid email or password")
	}
	if !user.Status.CanSignIn() {
		l.Warn("login_failed", "status", 403, "reason", "account disabled", "user_id", user.ID)
		return nil, apperr.ErrAccountDisabled
	}

	var (
		res *LoginResult
		ac  afterCommit
	)
	err = h.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		issued, err := h.Sessions.WithRepo(tx).CreateSession(ctx, user.ID, in.Remember, cc)
		if err != nil {
			return err
		}
		if err := tx.TouchLastLogin(ctx, user.ID, issued.Session.CreatedAt); err != nil {
			return err
		}
		set, err := tx.UserRoles(ctx, user.ID)
		if err != nil {
			return err
		}
		entry, err := h.Audit.Record(ctx, tx, audit.Event{
			Action:   audit.ActionLogin,
			ActorID:  user.ID,
			TargetID: user.ID,
			IP:       cc.IP,
			Metadata: map[string]any{"session_id": issued.Session.ID, "remember": in.Remember},
		})
		if err != nil {
			return err
		}
		ac.audit = append(ac.audit, entry)
		res = &LoginResult{Issued: issued, User: user, Roles: set}
		return nil
	})
	if err != nil {
		return nil, h.fail(l, "login_failed", err)
	}

	h.flush(ctx, &ac)
	l.Info("login_ok", "user_id", user.ID, "session_id", res.Issued.Session.ID)
	return res, nil
}

// Logout revokes exactly the caller's current session.
func (h *AuthService) Logout(ctx context.Context, cur *session.Current, cc session.ClientContext) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout", "user_id", cur.UserID())

	var ac afterCommit
	err := h.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		if err := h.Sessions.WithRepo(tx).Revoke(ctx, cur.Session.ID); err != nil {
			return err
		}
		entry, err := h.Audit.Record(ctx, tx, audit.Event{
			Action:   audit.ActionLogout,
			ActorID:  cur.UserID(),
			TargetID: cur.UserID(),
			IP:       cc.IP,
			Metadata: map[string]any{"session_id": cur.Session.ID},
		})
		if err != nil {
			return err
		}
		ac.audit = append(ac.audit, entry)
		return nil
	})
	if err != nil {
		return h.fail(l, "logout_failed", err)
	}
	h.flush(ctx, &ac)
	return nil
}

// LogoutAll revokes every live session of the caller, the current one
// included, and reports how many were revoked.
func (h *AuthService) LogoutAll(ctx context.Context, cur *session.Current, cc session.ClientContext) (int64, error) {
	l := logging.FromContext(ctx).With("svc", "auth.logout_all", "user_id", cur.UserID())

	var (
		n  int64
		ac afterCommit
	)
	err := h.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		var err error
		if n, err = h.Sessions.WithRepo(tx).RevokeAllForUser(ctx, cur.UserID()); err != nil {
			return err
		}
		entry, err := h.Audit.Record(ctx, tx, audit.Event{
			Action:   audit.ActionLogoutAll,
			ActorID:  cur.UserID(),
			TargetID: cur.UserID(),
			IP:       cc.IP,
			Metadata: map[string]any{"revoked": n},
		})
		if err != nil {
			return err
		}
		ac.audit = append(ac.audit, entry)
		return nil
	})
	if err != nil {
		return 0, h.fail(l, "logout_all_failed", err)
	}
	h.flush(ctx, &ac)
	return n, nil
}

// RevokeOwnSession ends one of the caller's sessions. Sessions of other
// users are reported as NOT_FOUND.
func (h *AuthService) RevokeOwnSession(ctx context.Context, cur *session.Current, sessionID string, cc session.ClientContext) error {
	l := logging.FromContext(ctx).With("svc", "auth.revoke_session", "user_id", cur.UserID())

	var ac afterCommit
	err := h.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		sess, err := tx.SessionByID(ctx, sessionID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return apperr.New(apperr.KindNotFound, "session not found")
			}
			return err
		}
		if sess.UserID != cur.UserID() {
			return apperr.New(apperr.KindNotFound, "session not found")
		}
		if err := h.Sessions.WithRepo(tx).Revoke(ctx, sess.ID); err != nil {
			return err
		}
		entry, err := h.Audit.Record(ctx, tx, audit.Event{
			Action:   audit.ActionSessionRevoked,
			ActorID:  cur.UserID(),
			TargetID: cur.UserID(),
			IP:       cc.IP,
			Metadata: map[string]any{"session_id": sess.ID},
		})
		if err != nil {
			return err
		}
		ac.audit = append(ac.audit, entry)
		return nil
	})
	if err != nil {
		return h.fail(l, "revoke_session_failed", err)
	}
	h.flush(ctx, &ac)
	return nil
}

// VerifyEmail consumes a verification token and activates a PENDING
// account. Disabled and deleted accounts are refused and keep the token.
func (h *AuthService) VerifyEmail(ctx context.Context, rawToken string, cc session.ClientContext) (*models.User, error) {
	return h.verify(ctx, rawToken, "", cc)
}

// AcceptInvite is VerifyEmail for invited accounts, which have no password
// yet: the password is set in the same transaction that consumes the token.
func (h *AuthService) AcceptInvite(ctx context.Context, rawToken, password string, cc session.ClientContext) (*models.User, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	return h.verify(ctx, rawToken, password, cc)
}

func (h *AuthService) verify(ctx context.Context, rawToken, password string, cc session.ClientContext) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.verify_email")

	var pwHash string
	if password != "" {
		var err error
		if pwHash, err = hash.HashPassword(password); err != nil {
			l.Error("verify_email_failed", "status", 500, "reason", "cannot hash the password", "error", err)
			return nil, apperr.Internal(err)
		}
	}

	var (
		user *models.User
		ac   afterCommit
	)
	err := h.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		tok, err := h.Tokens.Lookup(ctx, tx, models.PurposeVerifyEmail, rawToken)
		if err != nil {
			return err
		}
		if user, err = h.tokenOwner(ctx, tx, tok); err != nil {
			return err
		}
		if user.PasswordHash == nil && pwHash == "" {
			return apperr.Validation("password is required to accept an invitation")
		}
		// only invited accounts choose a password here; everyone else resets it
		if user.PasswordHash != nil && pwHash != "" {
			return apperr.Validation("account already has a password")
		}
		if err := h.Tokens.Consume(ctx, tx, tok); err != nil {
			return err
		}
		if err := tx.MarkEmailVerified(ctx, user.ID, h.now()); err != nil {
			return err
		}
		if pwHash != "" {
			if err := tx.SetPasswordHash(ctx, user.ID, pwHash); err != nil {
				return err
			}
		}
		if user, err = tx.UserByID(ctx, user.ID); err != nil {
			return err
		}
		entry, err := h.Audit.Record(ctx, tx, audit.Event{
			Action:   audit.ActionVerifyEmail,
			ActorID:  user.ID,
			TargetID: user.ID,
			IP:       cc.IP,
			Metadata: map[string]any{"password_set": pwHash != ""},
		})
		if err != nil {
			return err
		}
		ac.audit = append(ac.audit, entry)
		return nil
	})
	if err != nil {
		return nil, h.fail(l, "verify_email_failed", err)
	}
	h.flush(ctx, &ac)
	l.Info("email_verified", "user_id", user.ID)
	return user, nil
}

// ResendVerification issues a fresh verification token for a PENDING
// account. Invited accounts, which have no password yet, get a new
// invitation with the invite lifetime instead. Every other case succeeds
// silently so the answer does not reveal whether the email is registered.
func (h *AuthService) ResendVerification(ctx context.Context, email string) error {
	l := logging.FromContext(ctx).With("svc", "auth.resend_verification")

	user, err := h.Repo.UserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		l.Error("resend_failed", "status", 500, "error", err)
		return apperr.Internal(err)
	}
	if user.Status != models.StatusPending {
		return nil
	}

	var row *models.OutboxMessage
	err = h.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		invited := user.PasswordHash == nil
		ttl := h.VerifyTTL
		if invited {
			ttl = h.InviteTTL
		}
		raw, _, err := h.Tokens.Issue(ctx, tx, user.ID, models.PurposeVerifyEmail, ttl)
		if err != nil {
			return err
		}
		msg := h.Mailer.VerificationMessage(user.Email, raw)
		if invited {
			msg = h.Mailer.InviteMessage(user.Email, "An administrator", raw)
		}
		row, err = h.Mailer.Enqueue(ctx, tx, msg)
		return err
	})
	if err != nil {
		return h.fail(l, "resend_failed", err)
	}
	h.Mailer.Dispatch(ctx, h.Repo, row)
	return nil
}

// RequestPasswordReset mails a one hour reset token. Unknown, disabled and
// deleted accounts get the same answer and no mail.
func (h *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	l := logging.FromContext(ctx).With("svc", "auth.reset_request")

	if err := ValidateEmail(email); err != nil {
		return err
	}
	user, err := h.Repo.UserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Info("reset_request_ignored", "reason", "unknown email")
			return nil
		}
		l.Error("reset_request_failed", "status", 500, "error", err)
		return apperr.Internal(err)
	}
	if !user.Status.CanSignIn() {
		l.Info("reset_request_ignored", "reason", "account disabled", "user_id", user.ID)
		return nil
	}

	var row *models.OutboxMessage
	err = h.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		raw, _, err := h.Tokens.Issue(ctx, tx, user.ID, models.PurposePasswordReset, h.ResetTTL)
		if err != nil {
			return err
		}
		row, err = h.Mailer.Enqueue(ctx, tx, h.Mailer.PasswordResetMessage(user.Email, raw))
		return err
	})
	if err != nil {
		return h.fail(l, "reset_request_failed", err)
	}
	h.Mailer.Dispatch(ctx, h.Repo, row)
	return nil
}

// ResetPassword consumes a reset token, sets the new password and revokes
// every session of the account in one transaction.
func (h *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string, cc session.ClientContext) error {
	l := logging.FromContext(ctx).With("svc", "auth.reset_password")

	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	pwHash, err := hash.HashPassword(newPassword)
	if err != nil {
		l.Error("reset_failed", "status", 500, "reason", "cannot hash the password", "error", err)
		return apperr.Internal(err)
	}

	var ac afterCommit
	err = h.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		tok, err := h.Tokens.Lookup(ctx, tx, models.PurposePasswordReset, rawToken)
		if err != nil {
			return err
		}
		user, err := h.tokenOwner(ctx, tx, tok)
		if err != nil {
			return err
		}
		if err := h.Tokens.Consume(ctx, tx, tok); err != nil {
			return err
		}
		if err := tx.SetPasswordHash(ctx, user.ID, pwHash); err != nil {
			return err
		}
		n, err := h.Sessions.WithRepo(tx).RevokeAllForUser(ctx, user.ID)
		if err != nil {
			return err
		}
		entry, err := h.Audit.Record(ctx, tx, audit.Event{
			Action:   audit.ActionPasswordReset,
			ActorID:  user.ID,
			TargetID: user.ID,
			IP:       cc.IP,
			Metadata: map[string]any{"sessions_revoked": n},
		})
		if err != nil {
			return err
		}
		ac.audit = append(ac.audit, entry)
		return nil
	})
	if err != nil {
		return h.fail(l, "reset_failed", err)
	}
	h.flush(ctx, &ac)
	return nil
}

// tokenOwner loads the account a token belongs to and refuses accounts that
// are switched off.
func (h *AuthService) tokenOwner(ctx context.Context, tx *repo.GormRepo, tok *models.OneTimeToken) (*models.User, error) {
	user, err := tx.UserByID(ctx, tok.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, apperr.ErrInvalidToken
		}
		return nil, err
	}
	if !user.Status.CanSignIn() {
		return nil, apperr.ErrAccountDisabled
	}
	return user, nil
}

// fail logs err and makes sure only typed errors leave the service.
func (h *AuthService) fail(l *slog.Logger, msg string, err error) error {
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
