package admin

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/Skotchmaster/ums/internal/apperr"
	"github.com/Skotchmaster/ums/internal/audit"
	"github.com/Skotchmaster/ums/internal/models"
	"github.com/Skotchmaster/ums/internal/repo"
	"github.com/Skotchmaster/ums/internal/roles"
	"github.com/Skotchmaster/ums/internal/service/session"
)

const maxGroupName = 128

func (s *Service) ListGroups(ctx context.Context, cur *session.Current) ([]models.Group, error) {
	if err := authorize(cur, roles.GroupsRead); err != nil {
		return nil, err
	}
	out, err := s.Repo.ListGroups(ctx)
	if err != nil {
		return nil, s.read(ctx, "list_groups", err)
	}
	return out, nil
}

func (s *Service) CreateGroup(ctx context.Context, cur *session.Current, name, description string, cc session.ClientContext) (*models.Group, error) {
	if err := authorize(cur, roles.GroupsWrite); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxGroupName {
		return nil, apperr.Validation("group name must be 1 to 128 characters")
	}

	var g *models.Group
	err := s.mutate(ctx, "create_group", cur, cc, func(tx *repo.GormRepo, fx *effects) error {
		now := s.now()
		g = &models.Group{
			ID:          uuid.NewString(),
			Name:        name,
			Description: strings.TrimSpace(description),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.CreateGroup(ctx, g); err != nil {
			return err
		}
		return fx.record(ctx, tx, audit.ActionGroupCreated, g.ID, map[string]any{"name": g.Name})
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// DeleteGroup removes the group and its memberships; the users stay.
func (s *Service) DeleteGroup(ctx context.Context, cur *session.Current, id string, cc session.ClientContext) error {
	if err := authorize(cur, roles.GroupsWrite); err != nil {
		return err
	}
	return s.mutate(ctx, "delete_group", cur, cc, func(tx *repo.GormRepo, fx *effects) error {
		g, err := tx.GroupByID(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteGroup(ctx, g.ID); err != nil {
			return err
		}
		return fx.record(ctx, tx, audit.ActionGroupDeleted, g.ID, map[string]any{"name": g.Name})
	})
}

func (s *Service) GroupMembers(ctx context.Context, cur *session.Current, groupID string) ([]models.GroupMember, error) {
	if err := authorize(cur, roles.GroupsRead); err != nil {
		return nil, err
	}
	if _, err := s.Repo.GroupByID(ctx, groupID); err != nil {
		return nil, s.read(ctx, "group_members", err)
	}
	out, err := s.Repo.GroupMembers(ctx, groupID)
	if err != nil {
		return nil, s.read(ctx, "group_members", err)
	}
	return out, nil
}

// AddGroupMember is idempotent.
func (s *Service) AddGroupMember(ctx context.Context, cur *session.Current, groupID, userID string, cc session.ClientContext) error {
	if err := authorize(cur, roles.GroupsWrite); err != nil {
		return err
	}
	return s.mutate(ctx, "add_group_member", cur, cc, func(tx *repo.GormRepo, fx *effects) error {
		g, err := tx.GroupByID(ctx, groupID)
		if err != nil {
			return err
		}
		u, err := liveUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		added, err := tx.AddGroupMember(ctx, g.ID, u.ID, s.now())
		if err != nil {
			return err
		}
		return fx.record(ctx, tx, audit.ActionGroupMemberAdded, u.ID, map[string]any{"group_id": g.ID, "changed": added})
	})
}

func (s *Service) RemoveGroupMember(ctx context.Context, cur *session.Current, groupID, userID string, cc session.ClientContext) error {
	if err := authorize(cur, roles.GroupsWrite); err != nil {
		return err
	}
	return s.mutate(ctx, "remove_group_member", cur, cc, func(tx *repo.GormRepo, fx *effects) error {
		removed, err := tx.RemoveGroupMember(ctx, groupID, userID)
		if err != nil {
			return err
		}
		if !removed {
			return apperr.New(apperr.KindNotFound, "membership not found")
		}
		return fx.record(ctx, tx, audit.ActionGroupMemberRemoved, userID, map[string]any{"group_id": groupID})
	})
}
