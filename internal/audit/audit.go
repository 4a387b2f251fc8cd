// Package audit appends the immutable record of security relevant actions.
// The SQL row is written inside the caller's transaction; the Kafka event
// is a best-effort copy published after commit.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Skotchmaster/ums/internal/logging"
	"github.com/Skotchmaster/ums/internal/models"
	"github.com/Skotchmaster/ums/internal/repo"
)

const (
	ActionLogin          = "auth.login"
	ActionLogout         = "auth.logout"
	ActionLogoutAll      = "auth.logout_all"
	ActionSignup         = "auth.signup"
	ActionVerifyEmail    = "auth.verify_email"
	ActionPasswordReset  = "auth.password_reset"
	ActionSessionRevoked = "session.revoked"

	ActionUserStatus   = "user.status_changed"
	ActionUserDeleted  = "user.deleted"
	ActionUserInvited  = "user.invited"
	ActionRoleAssigned = "role.assigned"
	ActionRoleRevoked  = "role.revoked"

	ActionGroupCreated       = "group.created"
	ActionGroupDeleted       = "group.deleted"
	ActionGroupMemberAdded   = "group.member_added"
	ActionGroupMemberRemoved = "group.member_removed"

	ActionSettingsUpdated = "settings.updated"
)

type Event struct {
	Action   string
	ActorID  string
	TargetID string
	IP       string
	Metadata map[string]any
}

// Publisher is satisfied by *mykafka.Producer.
type Publisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any) error
}

type Recorder struct {
	Publisher Publisher
	Topic     string
	Now       func() time.Time
}

func NewRecorder(p Publisher, topic string) *Recorder {
	return &Recorder{Publisher: p, Topic: topic}
}

func (r *Recorder) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Record appends one audit row through rp.
func (r *Recorder) Record(ctx context.Context, rp *repo.GormRepo, ev Event) (*models.AuditLog, error) {
	meta := "{}"
	if len(ev.Metadata) > 0 {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return nil, err
		}
		meta = string(b)
	}

	entry := &models.AuditLog{
		Action:    ev.Action,
		ActorID:   optional(ev.ActorID),
		TargetID:  optional(ev.TargetID),
		IP:        ev.IP,
		Metadata:  meta,
		CreatedAt: r.now(),
	}
	if err := rp.AppendAudit(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Publish mirrors committed entries to Kafka. Failures are logged only.
func (r *Recorder) Publish(ctx context.Context, entries ...*models.AuditLog) {
	if r.Publisher == nil {
		return
	}
	l := logging.FromContext(ctx).With("svc", "audit.publish")
	for _, e := range entries {
		if e == nil {
			continue
		}
		key := e.Action
		if e.TargetID != nil {
			key = *e.TargetID
		}
		if err := r.Publisher.PublishEvent(ctx, r.Topic, key, e); err != nil {
			l.Warn("kafka_publish_failed", "action", e.Action, "error", err)
		}
	}
}
