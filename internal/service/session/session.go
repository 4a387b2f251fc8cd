// Package session issues, validates and revokes browser sessions.
//
// A session is identified by an opaque random token handed to the client in
// an HttpOnly cookie. Only the sha256 of that token is stored. Each session
// also carries a CSRF token that the client must echo back in a header on
// every state-changing request (double submit).
//
// A session is valid iff revoked_at is NULL and expires_at is in the
// future; expired and revoked sessions are indistinguishable to callers.
package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Skotchmaster/ums/internal/apperr"
	"github.com/Skotchmaster/ums/internal/hash"
	"github.com/Skotchmaster/ums/internal/logging"
	"github.com/Skotchmaster/ums/internal/models"
	"github.com/Skotchmaster/ums/internal/repo"
	"github.com/Skotchmaster/ums/internal/roles"
)

const (
	DefaultTTL         = 24 * time.Hour
	DefaultRememberTTL = 14 * 24 * time.Hour

	tokenBytes = 32
)

type ClientContext struct {
	IP        string
	UserAgent string
}

// Issued is what the HTTP layer turns into the session and csrf cookies.
type Issued struct {
	Token     string
	CSRFToken string
	ExpiresAt time.Time
	TTL       time.Duration
	Session   *models.Session
}

// Current is the authenticated caller of one request. It is built by
// ValidateSessionToken and passed explicitly to everything downstream.
type Current struct {
	Session *models.Session
	User    *models.User
	Roles   roles.Set
}

func (c *Current) UserID() string { return c.User.ID }

type Service struct {
	Repo        *repo.GormRepo
	TTL         time.Duration
	RememberTTL time.Duration
	Now         func() time.Time
}

func New(rp *repo.GormRepo, ttl, rememberTTL time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if rememberTTL <= 0 {
		rememberTTL = DefaultRememberTTL
	}
	return &Service{Repo: rp, TTL: ttl, RememberTTL: rememberTTL}
}

// WithRepo returns a copy of the service bound to rp, typically a
// transaction.
func (s *Service) WithRepo(rp *repo.GormRepo) *Service {
	cp := *s
	cp.Repo = rp
	return &cp
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) CreateSession(ctx context.Context, userID string, remember bool, cc ClientContext) (*Issued, error) {
	user, err := s.Repo.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, apperr.ErrUnauthenticated
		}
		return nil, apperr.Internal(err)
	}
	if !user.Status.CanSignIn() {
		return nil, apperr.ErrAccountDisabled
	}

	raw, err := hash.NewToken(tokenBytes)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	csrf, err := hash.NewToken(tokenBytes)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	ttl := s.TTL
	if remember {
		ttl = s.RememberTTL
	}
	now := s.now()

	sess := &models.Session{
		ID:         uuid.NewString(),
		TokenHash:  hash.Sha256Hex(raw),
		UserID:     user.ID,
		CSRFToken:  csrf,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(ttl),
		IP:         cc.IP,
		UserAgent:  truncate(cc.UserAgent, 512),
	}
	if err := s.Repo.CreateSession(ctx, sess); err != nil {
		return nil, apperr.Internal(err)
	}

	return &Issued{
		Token:     raw,
		CSRFToken: csrf,
		ExpiresAt: sess.ExpiresAt,
		TTL:       ttl,
		Session:   sess,
	}, nil
}

// ValidateSessionToken fails closed with UNAUTHENTICATED for unknown,
// revoked and expired tokens alike. Roles are read live on every call.
func (s *Service) ValidateSessionToken(ctx context.Context, rawToken string) (*Current, error) {
	if rawToken == "" {
		return nil, apperr.ErrUnauthenticated
	}

	sess, err := s.Repo.SessionByTokenHash(ctx, hash.Sha256Hex(rawToken))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, apperr.ErrUnauthenticated
		}
		return nil, apperr.Internal(err)
	}

	now := s.now()
	if !sess.ActiveAt(now) {
		return nil, apperr.ErrUnauthenticated
	}

	user, err := s.Repo.UserByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, apperr.ErrUnauthenticated
		}
		return nil, apperr.Internal(err)
	}
	if !user.Status.CanSignIn() {
		return nil, apperr.ErrUnauthenticated
	}

	set, err := s.Repo.UserRoles(ctx, user.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	// last_seen_at is a freshness hint only.
	if err := s.Repo.TouchSession(ctx, sess.ID, now); err != nil {
		logging.FromContext(ctx).Warn("session_touch_failed", "session_id", sess.ID, "error", err)
	} else {
		sess.LastSeenAt = now
	}

	return &Current{Session: sess, User: user, Roles: set}, nil
}

// Revoke ends exactly one session. Revoking an already revoked session is
// not an error.
func (s *Service) Revoke(ctx context.Context, sessionID string) error {
	if _, err := s.Repo.RevokeSession(ctx, sessionID, s.now()); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *Service) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	n, err := s.Repo.RevokeUserSessions(ctx, userID, s.now())
	if err != nil {
		return 0, apperr.Internal(err)
	}
	return n, nil
}

// ListActive returns the user's sessions that would still validate now.
func (s *Service) ListActive(ctx context.Context, userID string) ([]models.Session, error) {
	all, err := s.Repo.UnrevokedSessions(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	now := s.now()
	out := all[:0]
	for _, sess := range all {
		if sess.ActiveAt(now) {
			out = append(out, sess)
		}
	}
	return out, nil
}

// CheckCSRF requires the cookie value, the header value and the value
// stored on the session to be present and identical.
func CheckCSRF(cookie, header, stored string) error {
	if cookie == "" || header == "" || stored == "" {
		return apperr.ErrCSRFInvalid
	}
	if subtle.ConstantTimeCompare([]byte(cookie), []byte(stored)) != 1 ||
		subtle.ConstantTimeCompare([]byte(header), []byte(stored)) != 1 {
		return apperr.ErrCSRFInvalid
	}
	return nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
