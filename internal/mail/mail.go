// Package mail delivers account notifications. Every message is written to
// the outbox table first; SMTP delivery is attempted afterwards and its
// outcome is only recorded on the outbox row.
package mail

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Skotchmaster/ums/internal/logging"
	"github.com/Skotchmaster/ums/internal/models"
	"github.com/Skotchmaster/ums/internal/repo"
)

const (
	KindVerifyEmail   = "verify_email"
	KindInvite        = "invite"
	KindPasswordReset = "password_reset"
)

type Message struct {
	To      string
	Subject string
	Body    string
	Kind    string
	Token   string
}

// Sender is the external transport. SMTPSender is the production one.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

type Mailer struct {
	Sender  Sender
	BaseURL string
}

func New(sender Sender, baseURL string) *Mailer {
	return &Mailer{Sender: sender, BaseURL: baseURL}
}

// Enqueue writes the message to the outbox through rp, which is usually a
// transaction so the message exists iff the surrounding change committed.
func (m *Mailer) Enqueue(ctx context.Context, rp *repo.GormRepo, msg Message) (*models.OutboxMessage, error) {
	row := &models.OutboxMessage{
		To:      msg.To,
		Subject: msg.Subject,
		Body:    msg.Body,
		Kind:    msg.Kind,
		Token:   msg.Token,
	}
	if err := rp.CreateOutboxMessage(ctx, row); err != nil {
		return nil, fmt.Errorf("outbox: %w", err)
	}
	return row, nil
}

// Dispatch hands an outbox row to SMTP. It never fails the caller: the
// outbox row is the record of truth, SMTP is best effort.
func (m *Mailer) Dispatch(ctx context.Context, rp *repo.GormRepo, row *models.OutboxMessage) {
	if m.Sender == nil || row == nil {
		return
	}
	l := logging.FromContext(ctx).With("svc", "mail.dispatch", "outbox_id", row.ID, "kind", row.Kind)

	msg := Message{To: row.To, Subject: row.Subject, Body: row.Body, Kind: row.Kind}
	sendErr := m.Sender.Send(ctx, msg)
	errText := ""
	if sendErr != nil {
		errText = sendErr.Error()
		l.Warn("smtp_send_failed", "error", sendErr)
	}
	if err := rp.MarkOutboxDelivery(ctx, row.ID, sendErr == nil, errText); err != nil {
		l.Warn("outbox_mark_failed", "error", err)
	}
}

func (m *Mailer) link(path, token string) string {
	return m.BaseURL + path + "?token=" + url.QueryEscape(token)
}

func (m *Mailer) VerificationMessage(to, token string) Message {
	return Message{
		To:      to,
		Subject: "Confirm your email address",
		Body: "Welcome!\n\nConfirm your email address by opening the link below. It expires in 24 hours.\n\n" +
			m.link("/verify-email", token) + "\n",
		Kind:  KindVerifyEmail,
		Token: token,
	}
}

func (m *Mailer) InviteMessage(to, inviter, token string) Message {
	return Message{
		To:      to,
		Subject: "You have been invited",
		Body: fmt.Sprintf("%s invited you to the meal planner.\n\nAccept the invitation within 7 days:\n\n%s\n",
			inviter, m.link("/verify-email", token)),
		Kind:  KindInvite,
		Token: token,
	}
}

func (m *Mailer) PasswordResetMessage(to, token string) Message {
	return Message{
		To:      to,
		Subject: "Reset your password",
		Body: "Someone asked to reset the password of this account. If it was you, open the link below within one hour.\n\n" +
			m.link("/reset-password", token) + "\n",
		Kind:  KindPasswordReset,
		Token: token,
	}
}
