// Package onetime issues and consumes single-use tokens for email
// verification and password reset.
package onetime

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/ums/internal/apperr"
	"github.com/Skotchmaster/ums/internal/hash"
	"github.com/Skotchmaster/ums/internal/models"
	"github.com/Skotchmaster/ums/internal/repo"
)

const (
	VerifyTTL = 24 * time.Hour
	InviteTTL = 7 * 24 * time.Hour
	ResetTTL  = time.Hour

	tokenBytes = 32
)

type Tokens struct {
	Now func() time.Time
}

func (t *Tokens) now() time.Time {
	if t != nil && t.Now != nil {
		return t.Now().UTC()
	}
	return time.Now().UTC()
}

// Issue stores the hash of a fresh token and returns the raw value, which
// is never persisted outside the outbox message that carries it.
func (t *Tokens) Issue(ctx context.Context, rp *repo.GormRepo, userID string, purpose models.TokenPurpose, ttl time.Duration) (string, *models.OneTimeToken, error) {
	raw, err := hash.NewToken(tokenBytes)
	if err != nil {
		return "", nil, err
	}
	now := t.now()
	row := &models.OneTimeToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Purpose:   purpose,
		TokenHash: hash.Sha256Hex(raw),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := rp.CreateToken(ctx, row); err != nil {
		return "", nil, err
	}
	return raw, row, nil
}

// Lookup returns the token iff it is currently usable. Unknown, used and
// expired tokens all yield INVALID_TOKEN.
func (t *Tokens) Lookup(ctx context.Context, rp *repo.GormRepo, purpose models.TokenPurpose, raw string) (*models.OneTimeToken, error) {
	if raw == "" {
		return nil, apperr.ErrInvalidToken
	}
	tok, err := rp.TokenByHash(ctx, purpose, hash.Sha256Hex(raw))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, apperr.ErrInvalidToken
		}
		return nil, apperr.Internal(err)
	}
	if !tok.UsableAt(t.now()) {
		return nil, apperr.ErrInvalidToken
	}
	return tok, nil
}

// Consume marks a looked-up token as used. Only one caller can win the
// compare-and-set; every other one gets INVALID_TOKEN. rp must be the
// transaction that also applies the token's effect.
func (t *Tokens) Consume(ctx context.Context, rp *repo.GormRepo, tok *models.OneTimeToken) error {
	ok, err := rp.MarkTokenUsed(ctx, tok.ID, t.now())
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return apperr.ErrInvalidToken
	}
	return nil
}
