package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/ums/internal/models"
)

type UserFilter struct {
	Query  string
	Status models.UserStatus
	Page
}

func (r *GormRepo) CreateUser(ctx context.Context, u *models.User) error {
	return dbErr(r.db(ctx).Create(u).Error)
}

func (r *GormRepo) UserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, dbErr(err)
	}
	return &user, nil
}

func (r *GormRepo) UserByEmail(ctx context.Context, normalized string) (*models.User, error) {
	var user models.User
	if err := r.db(ctx).Where("email_normalized = ?", normalized).First(&user).Error; err != nil {
		return nil, dbErr(err)
	}
	return &user, nil
}

func (f UserFilter) scope(db *gorm.DB) *gorm.DB {
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	if s := strings.TrimSpace(f.Query); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		db = db.Where("email_normalized LIKE ? OR LOWER(name) LIKE ?", like, like)
	}
	return db
}

func (r *GormRepo) ListUsers(ctx context.Context, f UserFilter) ([]models.User, int64, error) {
	var total int64
	if err := r.db(ctx).Model(&models.User{}).Scopes(f.scope).Count(&total).Error; err != nil {
		return nil, 0, dbErr(err)
	}

	var users []models.User
	if err := r.db(ctx).Scopes(f.scope).
		Order("created_at DESC").Order("id").
		Offset(f.Offset).Limit(f.Limit).
		Find(&users).Error; err != nil {
		return nil, 0, dbErr(err)
	}
	return users, total, nil
}

func (r *GormRepo) SetUserStatus(ctx context.Context, id string, status models.UserStatus) error {
	res := r.db(ctx).Model(&models.User{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return dbErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkEmailVerified moves a PENDING account to ACTIVE; other statuses keep
// their value and only get the verification timestamp.
func (r *GormRepo) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	if err := r.db(ctx).Model(&models.User{}).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Update("status", models.StatusActive).Error; err != nil {
		return dbErr(err)
	}
	return dbErr(r.db(ctx).Model(&models.User{}).
		Where("id = ? AND email_verified_at IS NULL", id).
		Update("email_verified_at", at).Error)
}

func (r *GormRepo) SetPasswordHash(ctx context.Context, id, hash string) error {
	return dbErr(r.db(ctx).Model(&models.User{}).Where("id = ?", id).Update("password_hash", hash).Error)
}

func (r *GormRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return dbErr(r.db(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_login_at", at).Error)
}

// PurgeUser hard-deletes a user together with every row that references it.
// Audit rows are kept: they are never deleted by the application.
func (r *GormRepo) PurgeUser(ctx context.Context, id string) error {
	db := r.db(ctx)
	for _, m := range []any{&models.Session{}, &models.OneTimeToken{}, &models.UserRole{}, &models.GroupMember{}} {
		if err := db.Where("user_id = ?", id).Delete(m).Error; err != nil {
			return dbErr(err)
		}
	}
	return dbErr(db.Where("id = ?", id).Delete(&models.User{}).Error)
}
