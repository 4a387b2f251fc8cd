package repo

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/ums/internal/models"
	"github.com/Skotchmaster/ums/internal/roles"
)

func (r *GormRepo) UserRoles(ctx context.Context, userID string) (roles.Set, error) {
	var names []string
	if err := r.db(ctx).Model(&models.UserRole{}).
		Where("user_id = ?", userID).
		Order("role").
		Pluck("role", &names).Error; err != nil {
		return nil, dbErr(err)
	}
	return roles.FromStrings(names), nil
}

// AssignRole is idempotent; it reports whether a new row was written.
func (r *GormRepo) AssignRole(ctx context.Context, ur *models.UserRole) (bool, error) {
	res := r.db(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(ur)
	if res.Error != nil {
		return false, dbErr(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRepo) RevokeRole(ctx context.Context, userID string, role roles.Role) (bool, error) {
	res := r.db(ctx).Where("user_id = ? AND role = ?", userID, role).Delete(&models.UserRole{})
	if res.Error != nil {
		return false, dbErr(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRepo) CountUsersWithRole(ctx context.Context, role roles.Role) (int64, error) {
	var n int64
	err := r.db(ctx).Model(&models.UserRole{}).
		Joins("JOIN users ON users.id = user_roles.user_id").
		Where("user_roles.role = ? AND users.status = ?", role, models.StatusActive).
		Count(&n).Error
	return n, dbErr(err)
}
