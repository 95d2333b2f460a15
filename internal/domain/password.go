package domain

import (
	"fmt"
	"net/mail"
	"strings"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72
)

// ValidatePassword enforces the account password policy.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password must be <= %d bytes", ErrInvalidInput, maxPasswordLength)
	}
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: password must not be blank", ErrInvalidInput)
	}
	return nil
}

// NormalizeEmail lower-cases and shape-checks an address. Email is the account
// linking key, so every path into storage goes through here.
func NormalizeEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed || !strings.Contains(addr.Address, "@") {
		return "", fmt.Errorf("%w: email is invalid", ErrInvalidInput)
	}
	local, host, _ := strings.Cut(addr.Address, "@")
	if local == "" || !strings.Contains(host, ".") {
		return "", fmt.Errorf("%w: email is invalid", ErrInvalidInput)
	}
	return strings.ToLower(addr.Address), nil
}
