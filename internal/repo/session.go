package repo

import (
	"context"
	"time"

	"github.com/Skotchmaster/ums/internal/models"
)

func (r *GormRepo) CreateSession(ctx context.Context, s *models.Session) error {
	return dbErr(r.db(ctx).Create(s).Error)
}

func (r *GormRepo) SessionByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	var s models.Session
	if err := r.db(ctx).Where("token_hash = ?", tokenHash).First(&s).Error; err != nil {
		return nil, dbErr(err)
	}
	return &s, nil
}

func (r *GormRepo) SessionByID(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	if err := r.db(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, dbErr(err)
	}
	return &s, nil
}

func (r *GormRepo) TouchSession(ctx context.Context, id string, at time.Time) error {
	return dbErr(r.db(ctx).Model(&models.Session{}).Where("id = ?", id).Update("last_seen_at", at).Error)
}

// RevokeSession revokes one session and reports whether it was still live.
func (r *GormRepo) RevokeSession(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db(ctx).Model(&models.Session{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", at)
	if res.Error != nil {
		return false, dbErr(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRepo) RevokeUserSessions(ctx context.Context, userID string, at time.Time) (int64, error) {
	res := r.db(ctx).Model(&models.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", at)
	if res.Error != nil {
		return 0, dbErr(res.Error)
	}
	return res.RowsAffected, nil
}

// UnrevokedSessions returns the sessions of a user that were never revoked,
// newest first. Expiry is left to the caller's clock.
func (r *GormRepo) UnrevokedSessions(ctx context.Context, userID string) ([]models.Session, error) {
	var out []models.Session
	if err := r.db(ctx).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, dbErr(err)
	}
	return out, nil
}
