package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/taskflow/taskflow-go/internal/model"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

const userColumns = `id, name, email, password_hash, otp_code, otp_expires_at,
	is_verified, profile_picture, created_at, updated_at`

// UserRepository handles user persistence operations.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user and sets the generated ID on the user struct.
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	query := `INSERT INTO users (name, email, password_hash, otp_code, otp_expires_at, is_verified)
		VALUES (?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		user.Name, user.Email, user.PasswordHash, user.OTPCode, user.OTPExpiresAt, user.IsVerified,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrDuplicateEmail
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}

	user.ID = id
	return nil
}

// GetByEmail retrieves a user by their (normalized) email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// UpdateSignup refreshes the name and password of an unverified account that
// signs up again.
func (r *UserRepository) UpdateSignup(ctx context.Context, id int64, name, passwordHash string) error {
	query := `UPDATE users SET name = ?, password_hash = ? WHERE id = ?`
	return r.exec(ctx, query, name, passwordHash, id)
}

// SetOTP stores a pending one-time code.
func (r *UserRepository) SetOTP(ctx context.Context, id int64, code string, expiresAt time.Time) error {
	query := `UPDATE users SET otp_code = ?, otp_expires_at = ? WHERE id = ?`
	return r.exec(ctx, query, code, expiresAt, id)
}

// ClearOTP removes any pending one-time code.
func (r *UserRepository) ClearOTP(ctx context.Context, id int64) error {
	query := `UPDATE users SET otp_code = NULL, otp_expires_at = NULL WHERE id = ?`
	return r.exec(ctx, query, id)
}

// MarkVerified flags the account verified and consumes its code in one statement.
func (r *UserRepository) MarkVerified(ctx context.Context, id int64) error {
	query := `UPDATE users SET is_verified = TRUE, otp_code = NULL, otp_expires_at = NULL WHERE id = ?`
	return r.exec(ctx, query, id)
}

// UpdatePassword stores a new hash and consumes the reset code in one statement.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	query := `UPDATE users SET password_hash = ?, otp_code = NULL, otp_expires_at = NULL WHERE id = ?`
	return r.exec(ctx, query, passwordHash, id)
}

// UpdateProfile persists the editable profile fields of user.
func (r *UserRepository) UpdateProfile(ctx context.Context, user *model.User) error {
	query := `UPDATE users SET name = ?, profile_picture = ? WHERE id = ?`
	return r.exec(ctx, query, user.Name, user.ProfilePicture, user.ID)
}

// DeleteWithTasks removes the user and every task they own in one
// transaction. It returns the number of tasks deleted.
func (r *UserRepository) DeleteWithTasks(ctx context.Context, id int64) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete tasks: %w", err)
	}
	tasksDeleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	result, err = tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrUserNotFound
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	return tasksDeleted, nil
}

// exec runs a single-user UPDATE. MySQL reports zero affected rows when the
// values are unchanged, so a missing row is not inferred from RowsAffected.
func (r *UserRepository) exec(ctx context.Context, query string, args ...any) error {
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var (
		otpCode   sql.NullString
		otpExpiry sql.NullTime
		picture   sql.NullString
	)

	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &otpCode, &otpExpiry,
		&user.IsVerified, &picture, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if otpCode.Valid {
		user.OTPCode = &otpCode.String
	}
	if otpExpiry.Valid {
		user.OTPExpiresAt = &otpExpiry.Time
	}
	if picture.Valid {
		user.ProfilePicture = &picture.String
	}

	return user, nil
}
