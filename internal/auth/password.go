package auth

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/dgallion1/ragassist/internal/apperr"
)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePassword enforces the minimum length and bcrypt's 72 byte input cap.
func ValidatePassword(password string, minLen int) error {
	if utf8.RuneCountInString(password) < minLen {
		return apperr.New(apperr.Validation, "password must be at least %d characters long", minLen)
	}
	if len(password) > 72 {
		return apperr.Wrap(bcrypt.ErrPasswordTooLong, apperr.Validation, "password must be at most 72 bytes")
	}
	return nil
}
