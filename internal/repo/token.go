package repo

import (
	"context"
	"time"

	"github.com/Skotchmaster/ums/internal/models"
)

func (r *GormRepo) CreateToken(ctx context.Context, t *models.OneTimeToken) error {
	return dbErr(r.db(ctx).Create(t).Error)
}

func (r *GormRepo) TokenByHash(ctx context.Context, purpose models.TokenPurpose, tokenHash string) (*models.OneTimeToken, error) {
	var t models.OneTimeToken
	if err := r.db(ctx).
		Where("token_hash = ? AND purpose = ?", tokenHash, purpose).
		First(&t).Error; err != nil {
		return nil, dbErr(err)
	}
	return &t, nil
}

// MarkTokenUsed is the compare-and-set that makes a token single use: it
// only succeeds for the caller that flips used_at from NULL.
func (r *GormRepo) MarkTokenUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db(ctx).Model(&models.OneTimeToken{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", at)
	if res.Error != nil {
		return false, dbErr(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRepo) TokensForUser(ctx context.Context, userID string, purpose models.TokenPurpose) ([]models.OneTimeToken, error) {
	var out []models.OneTimeToken
	if err := r.db(ctx).
		Where("user_id = ? AND purpose = ?", userID, purpose).
		Order("created_at").
		Find(&out).Error; err != nil {
		return nil, dbErr(err)
	}
	return out, nil
}
