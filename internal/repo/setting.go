package repo

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/ums/internal/models"
)

func (r *GormRepo) ListSettings(ctx context.Context) ([]models.Setting, error) {
	var out []models.Setting
	if err := r.db(ctx).Order("setting_key").Find(&out).Error; err != nil {
		return nil, dbErr(err)
	}
	return out, nil
}

func (r *GormRepo) UpsertSetting(ctx context.Context, s *models.Setting) error {
	return dbErr(r.db(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "setting_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_by", "updated_at"}),
	}).Create(s).Error)
}
