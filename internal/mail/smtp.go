package mail

import (
	"context"
	"crypto/tls"

	"gopkg.in/gomail.v2"
)

type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(host string, port int, user, password, from string, insecure bool) *SMTPSender {
	d := gomail.NewDialer(host, port, user, password)
	if insecure {
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true, ServerName: host}
	}
	if user == "" {
		d.Auth = nil
	}
	return &SMTPSender{dialer: d, from: from}
}

func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/plain", m.Body)

	return s.dialer.DialAndSend(msg)
}
