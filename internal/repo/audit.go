package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/Skotchmaster/ums/internal/models"
)

type AuditFilter struct {
	Action   string
	ActorID  string
	TargetID string
	Page
}

func (f AuditFilter) scope(db *gorm.DB) *gorm.DB {
	if f.Action != "" {
		db = db.Where("action = ?", f.Action)
	}
	if f.ActorID != "" {
		db = db.Where("actor_id = ?", f.ActorID)
	}
	if f.TargetID != "" {
		db = db.Where("target_id = ?", f.TargetID)
	}
	return db
}

// AppendAudit is the only write path for audit rows.
func (r *GormRepo) AppendAudit(ctx context.Context, e *models.AuditLog) error {
	return dbErr(r.db(ctx).Create(e).Error)
}

func (r *GormRepo) ListAudit(ctx context.Context, f AuditFilter) ([]models.AuditLog, int64, error) {
	var total int64
	if err := r.db(ctx).Model(&models.AuditLog{}).Scopes(f.scope).Count(&total).Error; err != nil {
		return nil, 0, dbErr(err)
	}

	var out []models.AuditLog
	if err := r.db(ctx).Scopes(f.scope).
		Order("id DESC").
		Offset(f.Offset).Limit(f.Limit).
		Find(&out).Error; err != nil {
		return nil, 0, dbErr(err)
	}
	return out, total, nil
}
