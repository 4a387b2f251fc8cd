package mail

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/ums/internal/dbtest"
)

type fakeSender struct {
	sent []Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, m Message) error {
	f.sent = append(f.sent, m)
	return f.err
}

func TestMailer_OutboxWithoutSMTP(t *testing.T) {
	rp := dbtest.NewRepo(t)
	ctx := context.Background()
	m := New(nil, "http://app.test")

	row, err := m.Enqueue(ctx, rp, m.VerificationMessage("a@x.com", "tok/en"))
	require.NoError(t, err)
	m.Dispatch(ctx, rp, row)

	out, err := rp.OutboxFor(ctx, "a@x.com")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, KindVerifyEmail, out[0].Kind)
	assert.Equal(t, "tok/en", out[0].Token)
	assert.Contains(t, out[0].Body, "http://app.test/verify-email?token=tok%2Fen")
	assert.False(t, out[0].SMTPSent)
}

func TestMailer_SMTPFailureIsRecorded(t *testing.T) {
	rp := dbtest.NewRepo(t)
	ctx := context.Background()
	sender := &fakeSender{err: errors.New("connection refused")}
	m := New(sender, "http://app.test")

	row, err := m.Enqueue(ctx, rp, m.PasswordResetMessage("a@x.com", "t"))
	require.NoError(t, err)
	m.Dispatch(ctx, rp, row)

	require.Len(t, sender.sent, 1)
	out, err := rp.OutboxFor(ctx, "a@x.com")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.False(t, out[0].SMTPSent)
	assert.Equal(t, "connection refused", out[0].SMTPError)
}

func TestMailer_SMTPSuccess(t *testing.T) {
	rp := dbtest.NewRepo(t)
	ctx := context.Background()
	sender := &fakeSender{}
	m := New(sender, "http://app.test")

	row, err := m.Enqueue(ctx, rp, m.InviteMessage("b@x.com", "admin@x.com", "t"))
	require.NoError(t, err)
	m.Dispatch(ctx, rp, row)

	out, err := rp.OutboxFor(ctx, "b@x.com")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].SMTPSent)
	assert.Equal(t, "b@x.com", sender.sent[0].To)
	assert.Empty(t, sender.sent[0].Token)
}

func TestNewSMTPSender_TLSVerification(t *testing.T) {
	s := NewSMTPSender("smtp.example.com", 587, "u", "p", "from@x.com", false)
	assert.Nil(t, s.dialer.TLSConfig)
	assert.Equal(t, "u", s.dialer.Username)

	s = NewSMTPSender("localhost", 1025, "", "", "from@x.com", true)
	require.NotNil(t, s.dialer.TLSConfig)
	assert.True(t, s.dialer.TLSConfig.InsecureSkipVerify)
}
