package repo

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/ums/internal/models"
)

func (r *GormRepo) CreateGroup(ctx context.Context, g *models.Group) error {
	return dbErr(r.db(ctx).Create(g).Error)
}

func (r *GormRepo) GroupByID(ctx context.Context, id string) (*models.Group, error) {
	var g models.Group
	if err := r.db(ctx).Where("id = ?", id).First(&g).Error; err != nil {
		return nil, dbErr(err)
	}
	return &g, nil
}

func (r *GormRepo) GroupByName(ctx context.Context, name string) (*models.Group, error) {
	var g models.Group
	if err := r.db(ctx).Where("name = ?", name).First(&g).Error; err != nil {
		return nil, dbErr(err)
	}
	return &g, nil
}

func (r *GormRepo) ListGroups(ctx context.Context) ([]models.Group, error) {
	var out []models.Group
	if err := r.db(ctx).Order("name").Find(&out).Error; err != nil {
		return nil, dbErr(err)
	}
	return out, nil
}

func (r *GormRepo) DeleteGroup(ctx context.Context, id string) error {
	db := r.db(ctx)
	if err := db.Where("group_id = ?", id).Delete(&models.GroupMember{}).Error; err != nil {
		return dbErr(err)
	}
	res := db.Where("id = ?", id).Delete(&models.Group{})
	if res.Error != nil {
		return dbErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepo) AddGroupMember(ctx context.Context, groupID, userID string, at time.Time) (bool, error) {
	res := r.db(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.GroupMember{GroupID: groupID, UserID: userID, AddedAt: at})
	if res.Error != nil {
		return false, dbErr(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRepo) RemoveGroupMember(ctx context.Context, groupID, userID string) (bool, error) {
	res := r.db(ctx).Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&models.GroupMember{})
	if res.Error != nil {
		return false, dbErr(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRepo) GroupMembers(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	var out []models.GroupMember
	if err := r.db(ctx).Where("group_id = ?", groupID).Order("added_at").Find(&out).Error; err != nil {
		return nil, dbErr(err)
	}
	return out, nil
}

func (r *GormRepo) UserGroups(ctx context.Context, userID string) ([]models.Group, error) {
	var out []models.Group
	if err := r.db(ctx).
		Joins("JOIN group_members ON group_members.group_id = user_groups.id").
		Where("group_members.user_id = ?", userID).
		Order("user_groups.name").
		Find(&out).Error; err != nil {
		return nil, dbErr(err)
	}
	return out, nil
}
