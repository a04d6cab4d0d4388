package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/taskflow/taskflow-go/internal/config"

	"gopkg.in/gomail.v2"
)

var ErrEmptyRecipient = errors.New("email recipient empty")

// SMTPSender sends mail through an SMTP relay with gomail.
type SMTPSender struct {
	from   string
	dialer *gomail.Dialer
	logger *slog.Logger

	// deliver is swapped out in tests.
	deliver func(m *gomail.Message) error
}

// NewSMTPSender creates an SMTPSender from the mail configuration.
func NewSMTPSender(cfg config.MailConfig, logger *slog.Logger) *SMTPSender {
	d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	return &SMTPSender{
		from:    cfg.From,
		dialer:  d,
		logger:  logger,
		deliver: func(m *gomail.Message) error { return d.DialAndSend(m) },
	}
}

// Send delivers msg. gomail has no context support, so the dial runs in its
// own goroutine and Send returns as soon as ctx is done.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return ErrEmptyRecipient
	}

	m := s.build(msg)

	done := make(chan error, 1)
	go func() {
		done <- s.deliver(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("send email: %w", ctx.Err())
	}

	s.logger.Info("email sent",
		slog.String("to", msg.To),
		slog.String("category", string(msg.Category)))
	return nil
}

func (s *SMTPSender) build(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("X-TaskFlow-Category", string(msg.Category))
	m.SetBody("text/plain", msg.Body)
	return m
}
