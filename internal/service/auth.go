package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/taskflow/taskflow-go/internal/crypto"
	"github.com/taskflow/taskflow-go/internal/model"
	"github.com/taskflow/taskflow-go/internal/repository"
	"github.com/taskflow/taskflow-go/internal/validate"
)

// AuthService handles signup, verification, login, password reset and
// profile management.
type AuthService struct {
	users     UserStore
	otp       *OTPManager
	tokens    *crypto.TokenManager
	hasher    *crypto.PasswordHasher
	validator *validate.Validator
	logger    *slog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(users UserStore, otp *OTPManager, tokens *crypto.TokenManager, hasher *crypto.PasswordHasher, v *validate.Validator, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:     users,
		otp:       otp,
		tokens:    tokens,
		hasher:    hasher,
		validator: v,
		logger:    logger,
	}
}

// Signup creates an unverified account, or refreshes one that never finished
// verification, and sends a verification code.
func (s *AuthService) Signup(ctx context.Context, req model.SignupRequest) (model.SignupResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return model.SignupResponse{}, err
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	switch {
	case err == nil && user.IsVerified:
		return model.SignupResponse{}, ErrEmailTaken
	case err != nil && !errors.Is(err, repository.ErrUserNotFound):
		return model.SignupResponse{}, err
	}

	if err := s.otp.Allow(ctx, req.Email, PurposeVerify); err != nil {
		return model.SignupResponse{}, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return model.SignupResponse{}, err
	}

	if user != nil {
		if err := s.users.UpdateSignup(ctx, user.ID, req.Name, hash); err != nil {
			return model.SignupResponse{}, fmt.Errorf("refresh signup: %w", err)
		}
		user.Name = req.Name
		user.PasswordHash = hash
	} else {
		user = &model.User{Name: req.Name, Email: req.Email, PasswordHash: hash}
		if err := s.users.Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicateEmail) {
				return model.SignupResponse{}, ErrEmailTaken
			}
			return model.SignupResponse{}, fmt.Errorf("create user: %w", err)
		}
	}

	expiresAt, err := s.otp.Issue(ctx, user, PurposeVerify)
	if err != nil {
		return model.SignupResponse{}, err
	}

	s.logger.Info("signup code issued", slog.Int64("user_id", user.ID))
	return model.SignupResponse{
		Message:   "Verification code sent to your email",
		Email:     user.Email,
		ExpiresAt: expiresAt,
	}, nil
}

// Login authenticates a verified user and returns a session token.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (model.AuthResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return model.AuthResponse{}, err
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.AuthResponse{}, ErrInvalidCredentials
		}
		return model.AuthResponse{}, err
	}

	match, err := s.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		return model.AuthResponse{}, err
	}
	if !match {
		return model.AuthResponse{}, ErrInvalidCredentials
	}
	if !user.IsVerified {
		return model.AuthResponse{}, ErrNotVerified
	}

	return s.session(user, "Login successful")
}

// ResendOTP issues a new verification code for an unverified account.
func (s *AuthService) ResendOTP(ctx context.Context, req model.EmailRequest) (model.SignupResponse, error) {
	user, err := s.lookup(ctx, &req)
	if err != nil {
		return model.SignupResponse{}, err
	}
	if user.IsVerified {
		return model.SignupResponse{}, ErrAlreadyVerified
	}

	if err := s.otp.Allow(ctx, user.Email, PurposeVerify); err != nil {
		return model.SignupResponse{}, err
	}
	expiresAt, err := s.otp.Issue(ctx, user, PurposeVerify)
	if err != nil {
		return model.SignupResponse{}, err
	}

	return model.SignupResponse{
		Message:   "New verification code sent to your email",
		Email:     user.Email,
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyOTP checks a signup code, marks the account verified and returns a
// session token. An already verified account gets a token without any
// state change.
func (s *AuthService) VerifyOTP(ctx context.Context, req model.VerifyOTPRequest) (model.AuthResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return model.AuthResponse{}, err
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return model.AuthResponse{}, mapUserErr(err)
	}
	if user.IsVerified {
		return s.session(user, "Email already verified")
	}

	if err := s.otp.Validate(user, req.OTP); err != nil {
		return model.AuthResponse{}, err
	}

	if err := s.users.MarkVerified(ctx, user.ID); err != nil {
		return model.AuthResponse{}, fmt.Errorf("mark verified: %w", err)
	}
	user.IsVerified = true
	user.OTPCode = nil
	user.OTPExpiresAt = nil

	s.logger.Info("email verified", slog.Int64("user_id", user.ID))
	return s.session(user, "Email verified successfully")
}

// ForgotPassword sends a password reset code to a verified account.
func (s *AuthService) ForgotPassword(ctx context.Context, req model.EmailRequest) (model.SignupResponse, error) {
	user, err := s.lookup(ctx, &req)
	if err != nil {
		return model.SignupResponse{}, err
	}
	if !user.IsVerified {
		return model.SignupResponse{}, ErrNotVerified
	}

	if err := s.otp.Allow(ctx, user.Email, PurposeReset); err != nil {
		return model.SignupResponse{}, err
	}
	expiresAt, err := s.otp.Issue(ctx, user, PurposeReset)
	if err != nil {
		return model.SignupResponse{}, err
	}

	return model.SignupResponse{
		Message:   "Password reset code sent to your email",
		Email:     user.Email,
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyResetOTP checks a reset code and returns a short-lived reset token.
// The code stays pending until the password is actually changed.
func (s *AuthService) VerifyResetOTP(ctx context.Context, req model.VerifyOTPRequest) (model.ResetTokenResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return model.ResetTokenResponse{}, err
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return model.ResetTokenResponse{}, mapUserErr(err)
	}
	// A pending code on an unverified account is a signup code.
	if !user.IsVerified {
		return model.ResetTokenResponse{}, ErrNotVerified
	}
	if err := s.otp.Validate(user, req.OTP); err != nil {
		return model.ResetTokenResponse{}, err
	}

	token, err := s.tokens.IssueReset(user.ID)
	if err != nil {
		return model.ResetTokenResponse{}, err
	}

	return model.ResetTokenResponse{
		Message:    "Code verified, you can now reset your password",
		ResetToken: token,
		Verified:   true,
	}, nil
}

// ResetPassword stores a new password. Both the reset token and the code
// must still be valid and belong to the same account.
func (s *AuthService) ResetPassword(ctx context.Context, req model.ResetPasswordRequest) (model.MessageResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return model.MessageResponse{}, err
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return model.MessageResponse{}, mapUserErr(err)
	}
	if !user.IsVerified {
		return model.MessageResponse{}, ErrNotVerified
	}

	claims, err := s.tokens.ParseReset(req.ResetToken)
	if err != nil || claims.UserID != user.ID {
		return model.MessageResponse{}, ErrInvalidResetToken
	}
	if err := s.otp.Validate(user, req.OTP); err != nil {
		return model.MessageResponse{}, err
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return model.MessageResponse{}, err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return model.MessageResponse{}, fmt.Errorf("update password: %w", err)
	}

	s.logger.Info("password reset", slog.Int64("user_id", user.ID))
	return model.MessageResponse{Message: "Password reset successfully"}, nil
}

// CheckOTPStatus reports whether a code is pending for email and whether it
// has expired.
func (s *AuthService) CheckOTPStatus(ctx context.Context, req model.EmailRequest) (model.OTPStatusResponse, error) {
	user, err := s.lookup(ctx, &req)
	if err != nil {
		return model.OTPStatusResponse{}, err
	}
	if !user.HasOTP() {
		return model.OTPStatusResponse{}, ErrOTPMissing
	}
	return s.otp.Status(user), nil
}

// GetProfile returns the account of userID.
func (s *AuthService) GetProfile(ctx context.Context, userID int64) (model.UserResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.UserResponse{}, mapUserErr(err)
	}
	return model.NewUserResponse(user), nil
}

// UpdateProfile changes the name and/or profile picture of userID.
func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, req model.UpdateProfileRequest) (model.UserResponse, error) {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		req.Name = &name
	}
	if err := s.validator.Struct(req); err != nil {
		return model.UserResponse{}, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.UserResponse{}, mapUserErr(err)
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.ProfilePicture != nil {
		if *req.ProfilePicture == "" {
			user.ProfilePicture = nil
		} else {
			user.ProfilePicture = req.ProfilePicture
		}
	}

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return model.UserResponse{}, fmt.Errorf("update profile: %w", err)
	}

	return model.NewUserResponse(user), nil
}

// DeleteAccount removes userID and every task they own.
func (s *AuthService) DeleteAccount(ctx context.Context, userID int64) (model.DeleteAccountResponse, error) {
	n, err := s.users.DeleteWithTasks(ctx, userID)
	if err != nil {
		return model.DeleteAccountResponse{}, mapUserErr(err)
	}

	s.logger.Info("account deleted", slog.Int64("user_id", userID), slog.Int64("tasks_deleted", n))
	return model.DeleteAccountResponse{
		Message:      "Account and all associated tasks deleted successfully",
		TasksDeleted: n,
	}, nil
}

func (s *AuthService) lookup(ctx context.Context, req *model.EmailRequest) (*model.User, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, mapUserErr(err)
	}
	return user, nil
}

func (s *AuthService) session(user *model.User, message string) (model.AuthResponse, error) {
	token, err := s.tokens.IssueSession(user.ID)
	if err != nil {
		return model.AuthResponse{}, err
	}
	return model.AuthResponse{
		Message: message,
		Token:   token,
		User:    model.NewUserResponse(user),
	}, nil
}
