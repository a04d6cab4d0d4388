package model

import "time"

// User represents a user in the database.
type User struct {
	ID             int64
	Name           string
	Email          string
	PasswordHash   string
	OTPCode        *string
	OTPExpiresAt   *time.Time
	IsVerified     bool
	ProfilePicture *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasOTP reports whether a one-time code is pending for the user.
func (u *User) HasOTP() bool {
	return u.OTPCode != nil && *u.OTPCode != ""
}

// SignupRequest represents a user registration request.
type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=128"`
}

// LoginRequest represents a user login request.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// EmailRequest carries just an email, used by resend-otp, forgot-password and check-otp-status.
type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// VerifyOTPRequest is used by verify-otp and verify-reset-otp.
type VerifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,otp"`
}

// ResetPasswordRequest completes a password reset.
type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	OTP         string `json:"otp" validate:"required,otp"`
	NewPassword string `json:"new_password" validate:"required,min=6,max=128"`
	ResetToken  string `json:"reset_token" validate:"required"`
}

// UpdateProfileRequest carries optional profile fields.
type UpdateProfileRequest struct {
	Name           *string `json:"name" validate:"omitempty,min=1,max=100"`
	ProfilePicture *string `json:"profile_picture" validate:"omitempty,max=2048"`
}

// AuthResponse represents an authentication response with a JWT token and user info.
type AuthResponse struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    UserResponse `json:"user"`
}

// SignupResponse is returned once a code has been issued.
type SignupResponse struct {
	Message   string    `json:"message"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ResetTokenResponse is returned by verify-reset-otp.
type ResetTokenResponse struct {
	Message    string `json:"message"`
	ResetToken string `json:"reset_token"`
	Verified   bool   `json:"verified"`
}

// OTPStatusResponse describes the pending code for an email.
type OTPStatusResponse struct {
	HasOTP    bool       `json:"has_otp"`
	IsExpired bool       `json:"is_expired"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// MessageResponse is a body carrying only a human-readable message.
type MessageResponse struct {
	Message string `json:"message"`
}

// DeleteAccountResponse reports the cascade performed on account deletion.
type DeleteAccountResponse struct {
	Message      string `json:"message"`
	TasksDeleted int64  `json:"tasks_deleted"`
}

// UserResponse represents user data safe for API responses (no sensitive fields).
type UserResponse struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	IsVerified     bool      `json:"is_verified"`
	ProfilePicture *string   `json:"profile_picture,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewUserResponse strips credentials and OTP state from a user.
func NewUserResponse(u *User) UserResponse {
	return UserResponse{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		IsVerified:     u.IsVerified,
		ProfilePicture: u.ProfilePicture,
		CreatedAt:      u.CreatedAt,
	}
}
