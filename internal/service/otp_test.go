package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/taskflow/taskflow-go/internal/config"
	"github.com/taskflow/taskflow-go/internal/mail"
	"github.com/taskflow/taskflow-go/internal/model"
)

var testOTPConfig = config.OTPConfig{
	TTL:            5 * time.Minute,
	ResetTTL:       2 * time.Minute,
	Grace:          30 * time.Second,
	ResendCooldown: time.Minute,
}

func newTestOTPManager(store *memStore, mailer *fakeMailQueue, now *time.Time) *OTPManager {
	m := NewOTPManager(store, mailer, nil, testOTPConfig, discardLogger())
	m.now = func() time.Time { return *now }
	return m
}

func pendingUser(code string, expiresAt time.Time) *model.User {
	return &model.User{ID: 1, Email: "a@b.com", OTPCode: &code, OTPExpiresAt: &expiresAt}
}

func TestOTPValidate(t *testing.T) {
	expiry := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		user      *model.User
		now       time.Time
		candidate string
		want      error
	}{
		{name: "no code pending", user: &model.User{ID: 1}, now: expiry, candidate: "123456", want: ErrOTPMissing},
		{name: "match before expiry", user: pendingUser("123456", expiry), now: expiry.Add(-time.Minute), candidate: "123456"},
		{name: "match inside grace", user: pendingUser("123456", expiry), now: expiry.Add(30 * time.Second), candidate: "123456"},
		{name: "expired past grace", user: pendingUser("123456", expiry), now: expiry.Add(31 * time.Second), candidate: "123456", want: ErrOTPExpired},
		{name: "different code", user: pendingUser("123456", expiry), now: expiry, candidate: "654321", want: ErrOTPMismatch},
		{name: "no numeric coercion", user: pendingUser("102345", expiry), now: expiry, candidate: "0102345", want: ErrOTPMismatch},
		{name: "signed number", user: pendingUser("123456", expiry), now: expiry, candidate: "+123456", want: ErrOTPMismatch},
		{name: "trimmed candidate", user: pendingUser("123456", expiry), now: expiry, candidate: " 123456 "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := tt.now
			m := newTestOTPManager(newMemStore(), &fakeMailQueue{}, &now)

			err := m.Validate(tt.user, tt.candidate)
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOTPIssue(t *testing.T) {
	tests := []struct {
		name    string
		purpose OTPPurpose
		ttl     time.Duration
		subject string
	}{
		{name: "verification", purpose: PurposeVerify, ttl: 5 * time.Minute, subject: "verification"},
		{name: "password reset", purpose: PurposeReset, ttl: 2 * time.Minute, subject: "reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			store := newMemStore()
			mailer := &fakeMailQueue{}
			m := newTestOTPManager(store, mailer, &now)

			user := &model.User{Email: "a@b.com"}
			if err := store.Create(context.Background(), user); err != nil {
				t.Fatalf("Create() unexpected error: %v", err)
			}

			expiresAt, err := m.Issue(context.Background(), user, tt.purpose)
			if err != nil {
				t.Fatalf("Issue() unexpected error: %v", err)
			}
			if !expiresAt.Equal(now.Add(tt.ttl)) {
				t.Errorf("expiresAt = %v, want %v", expiresAt, now.Add(tt.ttl))
			}

			stored, _ := store.GetByID(context.Background(), user.ID)
			if !stored.HasOTP() || len(*stored.OTPCode) != 6 {
				t.Fatalf("code not persisted: %+v", stored)
			}

			msgs := mailer.byCategory(mail.CategoryOTP)
			if len(msgs) != 1 {
				t.Fatalf("queued %d otp emails, want 1", len(msgs))
			}
			if !strings.Contains(msgs[0].Body, *stored.OTPCode) {
				t.Errorf("email body does not carry the code: %q", msgs[0].Body)
			}
			if !strings.Contains(msgs[0].Subject, tt.subject) {
				t.Errorf("subject %q does not mention %q", msgs[0].Subject, tt.subject)
			}
		})
	}
}

func TestOTPIssueSurvivesMailFailure(t *testing.T) {
	now := time.Now()
	store := newMemStore()
	m := newTestOTPManager(store, &fakeMailQueue{reject: true}, &now)

	user := &model.User{Email: "a@b.com"}
	_ = store.Create(context.Background(), user)

	if _, err := m.Issue(context.Background(), user, PurposeVerify); err != nil {
		t.Fatalf("Issue() should not fail when the email cannot be queued: %v", err)
	}
	stored, _ := store.GetByID(context.Background(), user.ID)
	if !stored.HasOTP() {
		t.Error("code should stay persisted")
	}
}

func TestOTPConsume(t *testing.T) {
	now := time.Now()
	store := newMemStore()
	m := newTestOTPManager(store, &fakeMailQueue{}, &now)

	user := &model.User{Email: "a@b.com"}
	_ = store.Create(context.Background(), user)
	if _, err := m.Issue(context.Background(), user, PurposeVerify); err != nil {
		t.Fatalf("Issue() unexpected error: %v", err)
	}

	if err := m.Consume(context.Background(), user); err != nil {
		t.Fatalf("Consume() unexpected error: %v", err)
	}
	stored, _ := store.GetByID(context.Background(), user.ID)
	if stored.HasOTP() || stored.OTPExpiresAt != nil {
		t.Errorf("code not cleared: %+v", stored)
	}
	if err := m.Validate(user, "123456"); !errors.Is(err, ErrOTPMissing) {
		t.Errorf("Validate() after Consume error = %v, want ErrOTPMissing", err)
	}
}

func TestOTPAllowCooldown(t *testing.T) {
	m := NewOTPManager(newMemStore(), &fakeMailQueue{}, &fakeCooldown{}, testOTPConfig, discardLogger())
	ctx := context.Background()

	if err := m.Allow(ctx, "a@b.com", PurposeVerify); err != nil {
		t.Fatalf("first Allow() unexpected error: %v", err)
	}
	if err := m.Allow(ctx, "a@b.com", PurposeVerify); !errors.Is(err, ErrOTPCooldown) {
		t.Errorf("second Allow() error = %v, want ErrOTPCooldown", err)
	}
	if err := m.Allow(ctx, "a@b.com", PurposeReset); err != nil {
		t.Errorf("Allow() for another purpose unexpected error: %v", err)
	}

	noCooldown := NewOTPManager(newMemStore(), &fakeMailQueue{}, nil, testOTPConfig, discardLogger())
	for i := 0; i < 3; i++ {
		if err := noCooldown.Allow(ctx, "a@b.com", PurposeVerify); err != nil {
			t.Fatalf("Allow() without cooldown unexpected error: %v", err)
		}
	}
}

func TestOTPStatus(t *testing.T) {
	expiry := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		user        *model.User
		now         time.Time
		wantHas     bool
		wantExpired bool
	}{
		{name: "none", user: &model.User{}, now: expiry},
		{name: "pending", user: pendingUser("123456", expiry), now: expiry.Add(-time.Minute), wantHas: true},
		{name: "inside grace", user: pendingUser("123456", expiry), now: expiry.Add(10 * time.Second), wantHas: true},
		{name: "expired", user: pendingUser("123456", expiry), now: expiry.Add(time.Minute), wantHas: true, wantExpired: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := tt.now
			m := newTestOTPManager(newMemStore(), &fakeMailQueue{}, &now)

			got := m.Status(tt.user)
			if got.HasOTP != tt.wantHas || got.IsExpired != tt.wantExpired {
				t.Errorf("Status() = %+v, want has=%v expired=%v", got, tt.wantHas, tt.wantExpired)
			}
			if tt.wantHas && (got.ExpiresAt == nil || !got.ExpiresAt.Equal(expiry)) {
				t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, expiry)
			}
		})
	}
}
