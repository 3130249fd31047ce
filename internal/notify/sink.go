package notify

import (
	"context"
	"fmt"
	"log"

	mail "github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromName  string
	FromEmail string
}

// SMTPSink sends mail through an SMTP relay.
type SMTPSink struct {
	client    *mail.Client
	fromName  string
	fromEmail string
}

func NewSMTPSink(cfg SMTPConfig) (*SMTPSink, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPSink{client: client, fromName: cfg.FromName, fromEmail: cfg.FromEmail}, nil
}

func (s *SMTPSink) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("recipient %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	return s.client.DialAndSendWithContext(ctx, m)
}

// LogSink stands in for SMTP in development: the message is written to the log.
type LogSink struct{}

func (LogSink) Send(_ context.Context, msg Message) error {
	log.Printf("[NOTIFY] [INFO] no SMTP configured, mail to=%s subject=%q\n%s", msg.To, msg.Subject, msg.Text)
	return nil
}
