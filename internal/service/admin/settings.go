package admin

import (
	"context"
	"regexp"

	"github.com/Skotchmaster/ums/internal/apperr"
	"github.com/Skotchmaster/ums/internal/audit"
	"github.com/Skotchmaster/ums/internal/hash"
	"github.com/Skotchmaster/ums/internal/models"
	"github.com/Skotchmaster/ums/internal/repo"
	"github.com/Skotchmaster/ums/internal/roles"
	"github.com/Skotchmaster/ums/internal/service/session"
	"github.com/Skotchmaster/ums/internal/util"
)

var settingKey = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,127}$`)

const maxSettingValue = 64 << 10

type AuditQuery struct {
	Action   string
	ActorID  string
	TargetID string
	Page     int
	Size     int
}

type AuditPage struct {
	Entries []models.AuditLog `json:"entries"`
	Total   int64             `json:"total"`
	Page    int               `json:"page"`
	Size    int               `json:"size"`
}

func (s *Service) ListAudit(ctx context.Context, cur *session.Current, q AuditQuery) (*AuditPage, error) {
	if err := authorize(cur, roles.AuditRead); err != nil {
		return nil, err
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	f := repo.AuditFilter{Action: q.Action, ActorID: q.ActorID, TargetID: q.TargetID}
	f.Offset, f.Limit = util.Calculate(page, q.Size)

	entries, total, err := s.Repo.ListAudit(ctx, f)
	if err != nil {
		return nil, s.read(ctx, "list_audit", err)
	}
	return &AuditPage{Entries: entries, Total: total, Page: page, Size: f.Limit}, nil
}

func (s *Service) ListSettings(ctx context.Context, cur *session.Current) ([]models.Setting, error) {
	if err := authorize(cur, roles.SettingsRead); err != nil {
		return nil, err
	}
	out, err := s.Repo.ListSettings(ctx)
	if err != nil {
		return nil, s.read(ctx, "list_settings", err)
	}
	return out, nil
}

func (s *Service) UpsertSetting(ctx context.Context, cur *session.Current, key, value string, cc session.ClientContext) (*models.Setting, error) {
	if err := authorize(cur, roles.SettingsWrite); err != nil {
		return nil, err
	}
	if !settingKey.MatchString(key) {
		return nil, apperr.Validation("setting key must match [a-z0-9][a-z0-9_.-]*")
	}
	if len(value) > maxSettingValue {
		return nil, apperr.Validation("setting value is too large")
	}

	by := cur.UserID()
	st := &models.Setting{Key: key, Value: value, UpdatedBy: &by, UpdatedAt: s.now()}
	err := s.mutate(ctx, "upsert_setting", cur, cc, func(tx *repo.GormRepo, fx *effects) error {
		if err := tx.UpsertSetting(ctx, st); err != nil {
			return err
		}
		// values may be secrets; the log keeps a fingerprint only
		return fx.record(ctx, tx, audit.ActionSettingsUpdated, "", map[string]any{
			"key":          key,
			"value_length": len(value),
			"value_sha256": hash.Sha256Hex(value),
		})
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}
