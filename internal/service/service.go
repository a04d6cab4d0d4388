package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/taskflow/taskflow-go/internal/mail"
	"github.com/taskflow/taskflow-go/internal/model"
	"github.com/taskflow/taskflow-go/internal/repository"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("user already exists")
	ErrNotVerified        = errors.New("email not verified")
	ErrAlreadyVerified    = errors.New("email already verified")
	ErrUserNotFound       = errors.New("user not found")
	ErrTaskNotFound       = errors.New("task not found")
	ErrOTPExpired         = errors.New("verification code expired")
	ErrOTPMismatch        = errors.New("invalid verification code")
	ErrOTPMissing         = errors.New("no verification code pending")
	ErrOTPCooldown        = errors.New("please wait before requesting another code")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
)

// UserStore is the user persistence the account flows need.
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	UpdateSignup(ctx context.Context, id int64, name, passwordHash string) error
	SetOTP(ctx context.Context, id int64, code string, expiresAt time.Time) error
	ClearOTP(ctx context.Context, id int64) error
	MarkVerified(ctx context.Context, id int64) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	UpdateProfile(ctx context.Context, user *model.User) error
	DeleteWithTasks(ctx context.Context, id int64) (int64, error)
}

// UserLookup fetches a single user.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// TaskStore is the task persistence used by TaskService.
type TaskStore interface {
	Create(ctx context.Context, task *model.Task) error
	GetByID(ctx context.Context, id, userID int64) (*model.Task, error)
	List(ctx context.Context, f repository.TaskFilter) ([]model.Task, int64, error)
	Update(ctx context.Context, task *model.Task) error
	SetCompleted(ctx context.Context, id, userID int64, completed bool) (bool, error)
	Delete(ctx context.Context, id, userID int64) error
}

// MailQueue accepts fire-and-forget mail. mail.Dispatcher implements it.
type MailQueue interface {
	Enqueue(msg mail.Message) bool
}

// Cooldown throttles repeated actions per key. lock.Cooldown implements it.
type Cooldown interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// normalizeEmail lower-cases and trims so lookups are case-insensitive.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func mapUserErr(err error) error {
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrUserNotFound
	}
	return err
}

func mapTaskErr(err error) error {
	if errors.Is(err, repository.ErrTaskNotFound) {
		return ErrTaskNotFound
	}
	return err
}
