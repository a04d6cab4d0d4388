// Package mail delivers plain-text notification emails.
package mail

import (
	"context"
	"log/slog"
)

// Category classifies an email for logging and metrics.
type Category string

const (
	CategoryOTP        Category = "otp"
	CategoryReminder   Category = "reminder"
	CategoryOverdue    Category = "overdue"
	CategoryCompletion Category = "completion"
)

// Message is a single plain-text email.
type Message struct {
	To       string
	Subject  string
	Body     string
	Category Category
}

// Sender delivers one message. Implementations must return when ctx is done.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log instead of sending them. It is used
// when SMTP is not configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("email not sent, smtp disabled",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("category", string(msg.Category)))

	// OTP bodies carry live codes and never reach the log.
	if msg.Category != CategoryOTP {
		s.logger.Debug("email body", slog.String("to", msg.To), slog.String("body", msg.Body))
	}
	return nil
}
