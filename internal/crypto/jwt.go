package crypto

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer     = "taskflow"
	sessionAudience = "taskflow-api"
	resetAudience   = "taskflow-reset"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims represents the JWT claims for TaskFlow tokens.
type Claims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"user_id"`
}

// TokenManager signs and validates session and password-reset tokens with a
// single HMAC secret. The two kinds differ by audience so a reset token can
// never be used as a session.
type TokenManager struct {
	secret     []byte
	sessionTTL time.Duration
	resetTTL   time.Duration
	now        func() time.Time
}

// NewTokenManager creates a TokenManager.
func NewTokenManager(secret string, sessionTTL, resetTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		resetTTL:   resetTTL,
		now:        time.Now,
	}
}

// IssueSession returns a bearer token for userID.
func (m *TokenManager) IssueSession(userID int64) (string, error) {
	return m.issue(userID, sessionAudience, m.sessionTTL)
}

// ParseSession validates a bearer token and returns its claims.
func (m *TokenManager) ParseSession(token string) (*Claims, error) {
	return m.parse(token, sessionAudience)
}

// IssueReset returns a short-lived token proving a reset code was verified.
func (m *TokenManager) IssueReset(userID int64) (string, error) {
	return m.issue(userID, resetAudience, m.resetTTL)
}

// ParseReset validates a password-reset token.
func (m *TokenManager) ParseReset(token string) (*Claims, error) {
	return m.parse(token, resetAudience)
}

func (m *TokenManager) issue(userID int64, audience string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatInt(userID, 10),
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID: userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *TokenManager) parse(tokenString, audience string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithAudience(audience), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
