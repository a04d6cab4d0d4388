package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"
)

const (
	OTPLength = 6

	otpMin = 100000
	otpMax = 999999
)

// GenerateOTP returns a uniformly random six-digit code in [100000, 999999]
// drawn from crypto/rand. Codes never start with zero.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", fmt.Errorf("generating otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+otpMin), nil
}

// OTPEqual compares a stored code against user input in constant time.
// Surrounding whitespace in the candidate is ignored.
func OTPEqual(stored, candidate string) bool {
	candidate = strings.TrimSpace(candidate)
	if stored == "" || len(candidate) != len(stored) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}
