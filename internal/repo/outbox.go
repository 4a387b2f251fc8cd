package repo

import (
	"context"

	"github.com/Skotchmaster/ums/internal/models"
)

func (r *GormRepo) CreateOutboxMessage(ctx context.Context, m *models.OutboxMessage) error {
	return dbErr(r.db(ctx).Create(m).Error)
}

func (r *GormRepo) MarkOutboxDelivery(ctx context.Context, id uint, sent bool, smtpErr string) error {
	return dbErr(r.db(ctx).Model(&models.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{"smtp_sent": sent, "smtp_error": smtpErr}).Error)
}

// OutboxFor lists the messages sent to one recipient, oldest first. An empty
// recipient lists everything.
func (r *GormRepo) OutboxFor(ctx context.Context, to string) ([]models.OutboxMessage, error) {
	q := r.db(ctx).Order("id")
	if to != "" {
		q = q.Where("recipient = ?", to)
	}
	var out []models.OutboxMessage
	if err := q.Find(&out).Error; err != nil {
		return nil, dbErr(err)
	}
	return out, nil
}
