package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrPasswordMismatch = errors.New("password does not match")
)

const (
	// DefaultCost is the bcrypt work factor used for new password hashes
	DefaultCost = 12
	// MinPasswordLength applies to registration and password changes
	MinPasswordLength = 8
)

// HashPassword hashes a plaintext password for storage. The length check
// runs here too so a caller that skipped IsPasswordValid cannot persist a
// hash of a too-short password.
func HashPassword(password string) (string, error) {
	if !IsPasswordValid(password) {
		return "", ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), DefaultCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// VerifyPassword compares a stored hash against a login attempt. A mismatch
// returns ErrPasswordMismatch; any other error means the stored hash itself
// is unusable.
func VerifyPassword(hashedPassword, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}

// IsPasswordValid reports whether a candidate password meets the minimum
// length policy
func IsPasswordValid(password string) bool {
	return len(password) >= MinPasswordLength
}
