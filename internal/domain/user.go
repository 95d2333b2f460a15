package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the single account record shared by password and federated sign-in.
type User struct {
	UserID          uuid.UUID
	Email           string
	Name            string
	PasswordHash    string
	Role            string
	EmailVerified   bool
	AvatarURL       string
	OAuthProvider   string
	OAuthSubject    string
	TwoFactorSecret string
	TwoFactorOn     bool
	// TwoFactorLastStep is the newest accepted TOTP step, 0 if none.
	TwoFactorLastStep int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasPassword reports whether the account can use password login.
func (u User) HasPassword() bool {
	return strings.TrimSpace(u.PasswordHash) != ""
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Session is an advisory device record. Token validity never depends on it.
type Session struct {
	SessionID        uuid.UUID
	UserID           uuid.UUID
	TokenFingerprint string
	UserAgent        string
	IPAddress        string
	CreatedAt        time.Time
	LastActiveAt     time.Time
	ExpiresAt        time.Time
}

// OAuthIdentity records one provider assertion of an account's email.
type OAuthIdentity struct {
	UserID      uuid.UUID
	Provider    string
	Subject     string
	Email       string
	LinkedAt    time.Time
	LastLoginAt time.Time
}
