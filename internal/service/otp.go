package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskflow/taskflow-go/internal/config"
	"github.com/taskflow/taskflow-go/internal/crypto"
	"github.com/taskflow/taskflow-go/internal/mail"
	"github.com/taskflow/taskflow-go/internal/model"
)

// OTPPurpose selects the lifetime and email wording of a code.
type OTPPurpose string

const (
	PurposeVerify OTPPurpose = "verify"
	PurposeReset  OTPPurpose = "reset"
)

// OTPManager owns the one-time code lifecycle: NoOtp -> Pending -> consumed
// or expired. It is the only writer of a user's OTP fields besides the
// repository statements that consume a code together with another change.
type OTPManager struct {
	users    UserStore
	mailer   MailQueue
	cooldown Cooldown
	cfg      config.OTPConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewOTPManager creates an OTPManager. cooldown may be nil, in which case
// resend throttling is disabled.
func NewOTPManager(users UserStore, mailer MailQueue, cooldown Cooldown, cfg config.OTPConfig, logger *slog.Logger) *OTPManager {
	return &OTPManager{
		users:    users,
		mailer:   mailer,
		cooldown: cooldown,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Allow starts a resend window for email and purpose. It returns
// ErrOTPCooldown while a previous window is open. Redis failures do not
// block sign-in flows.
func (m *OTPManager) Allow(ctx context.Context, email string, purpose OTPPurpose) error {
	if m.cooldown == nil || m.cfg.ResendCooldown <= 0 {
		return nil
	}

	ok, err := m.cooldown.Acquire(ctx, "otp:"+string(purpose)+":"+email, m.cfg.ResendCooldown)
	if err != nil {
		m.logger.Warn("otp cooldown unavailable", slog.String("email", email), slog.String("error", err.Error()))
		return nil
	}
	if !ok {
		return ErrOTPCooldown
	}
	return nil
}

// Issue generates a fresh code for user, persists it and queues the email.
// A failure to queue the email is logged and does not undo the code.
func (m *OTPManager) Issue(ctx context.Context, user *model.User, purpose OTPPurpose) (time.Time, error) {
	code, err := crypto.GenerateOTP()
	if err != nil {
		return time.Time{}, err
	}

	ttl := m.cfg.TTL
	if purpose == PurposeReset {
		ttl = m.cfg.ResetTTL
	}
	expiresAt := m.now().Add(ttl).UTC()

	if err := m.users.SetOTP(ctx, user.ID, code, expiresAt); err != nil {
		return time.Time{}, fmt.Errorf("store otp: %w", err)
	}
	user.OTPCode = &code
	user.OTPExpiresAt = &expiresAt

	msg := mail.VerificationCode(user.Email, code, ttl)
	if purpose == PurposeReset {
		msg = mail.PasswordResetCode(user.Email, code, ttl)
	}
	if !m.mailer.Enqueue(msg) {
		m.logger.Warn("otp email not queued", slog.Int64("user_id", user.ID), slog.String("purpose", string(purpose)))
	}

	return expiresAt, nil
}

// Validate checks candidate against the pending code. The same grace window
// applies to every flow.
func (m *OTPManager) Validate(user *model.User, candidate string) error {
	if !user.HasOTP() || user.OTPExpiresAt == nil {
		return ErrOTPMissing
	}
	if m.expired(*user.OTPExpiresAt) {
		return ErrOTPExpired
	}
	if !crypto.OTPEqual(*user.OTPCode, candidate) {
		return ErrOTPMismatch
	}
	return nil
}

// Consume clears the pending code.
func (m *OTPManager) Consume(ctx context.Context, user *model.User) error {
	if err := m.users.ClearOTP(ctx, user.ID); err != nil {
		return fmt.Errorf("clear otp: %w", err)
	}
	user.OTPCode = nil
	user.OTPExpiresAt = nil
	return nil
}

// Status describes the pending code without revealing it.
func (m *OTPManager) Status(user *model.User) model.OTPStatusResponse {
	if !user.HasOTP() || user.OTPExpiresAt == nil {
		return model.OTPStatusResponse{}
	}
	return model.OTPStatusResponse{
		HasOTP:    true,
		IsExpired: m.expired(*user.OTPExpiresAt),
		ExpiresAt: user.OTPExpiresAt,
	}
}

func (m *OTPManager) expired(expiresAt time.Time) bool {
	return m.now().After(expiresAt.Add(m.cfg.Grace))
}
