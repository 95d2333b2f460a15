package postgres

import (
	"time"

	"github.com/google/uuid"
)

type userModel struct {
	UserID                 uuid.UUID  `gorm:"column:user_id;type:uuid;primaryKey"`
	Email                  string     `gorm:"column:email"`
	Name                   string     `gorm:"column:name"`
	PasswordHash           *string    `gorm:"column:password_hash"`
	Role                   string     `gorm:"column:role"`
	EmailVerified          bool       `gorm:"column:email_verified"`
	EmailVerificationToken *string    `gorm:"column:email_verification_token"`
	PasswordResetToken     *string    `gorm:"column:password_reset_token"`
	PasswordResetExpiresAt *time.Time `gorm:"column:password_reset_expires_at"`
	OAuthProvider          *string    `gorm:"column:oauth_provider"`
	OAuthSubject           *string    `gorm:"column:oauth_subject"`
	TwoFactorSecret        *string    `gorm:"column:two_factor_secret"`
	TwoFactorEnabled       bool       `gorm:"column:two_factor_enabled"`
	TwoFactorLastStep      *int64     `gorm:"column:two_factor_last_step"`
	AvatarURL              string     `gorm:"column:avatar_url"`
	CreatedAt              time.Time  `gorm:"column:created_at"`
	UpdatedAt              time.Time  `gorm:"column:updated_at"`
}

func (userModel) TableName() string { return "users" }

type recoveryCodeModel struct {
	CodeID    uuid.UUID  `gorm:"column:code_id;type:uuid;primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id"`
	CodeHash  string     `gorm:"column:code_hash"`
	CreatedAt time.Time  `gorm:"column:created_at"`
	UsedAt    *time.Time `gorm:"column:used_at"`
}

func (recoveryCodeModel) TableName() string { return "recovery_codes" }

type deviceSessionModel struct {
	SessionID        uuid.UUID `gorm:"column:session_id;type:uuid;primaryKey"`
	UserID           uuid.UUID `gorm:"column:user_id"`
	TokenFingerprint string    `gorm:"column:token_fingerprint"`
	UserAgent        string    `gorm:"column:user_agent"`
	IPAddress        *string   `gorm:"column:ip_address"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	LastActiveAt     time.Time `gorm:"column:last_active_at"`
	ExpiresAt        time.Time `gorm:"column:expires_at"`
}

func (deviceSessionModel) TableName() string { return "device_sessions" }

type oauthIdentityModel struct {
	Provider    string    `gorm:"column:provider;primaryKey"`
	Subject     string    `gorm:"column:subject;primaryKey"`
	UserID      uuid.UUID `gorm:"column:user_id"`
	Email       string    `gorm:"column:email"`
	LinkedAt    time.Time `gorm:"column:linked_at"`
	LastLoginAt time.Time `gorm:"column:last_login_at"`
}

func (oauthIdentityModel) TableName() string { return "oauth_identities" }
