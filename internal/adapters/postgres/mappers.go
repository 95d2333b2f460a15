package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/viralforge/identity-core/internal/domain"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

func toDomainUser(row userModel) domain.User {
	return domain.User{
		UserID:            row.UserID,
		Email:             row.Email,
		Name:              row.Name,
		PasswordHash:      derefString(row.PasswordHash),
		Role:              row.Role,
		EmailVerified:     row.EmailVerified,
		AvatarURL:         row.AvatarURL,
		OAuthProvider:     derefString(row.OAuthProvider),
		OAuthSubject:      derefString(row.OAuthSubject),
		TwoFactorSecret:   derefString(row.TwoFactorSecret),
		TwoFactorOn:       row.TwoFactorEnabled,
		TwoFactorLastStep: derefInt64(row.TwoFactorLastStep),
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
}

func toDomainSession(row deviceSessionModel) domain.Session {
	return domain.Session{
		SessionID:        row.SessionID,
		UserID:           row.UserID,
		TokenFingerprint: row.TokenFingerprint,
		UserAgent:        row.UserAgent,
		IPAddress:        derefString(row.IPAddress),
		CreatedAt:        row.CreatedAt,
		LastActiveAt:     row.LastActiveAt,
		ExpiresAt:        row.ExpiresAt,
	}
}

func toDomainIdentity(row oauthIdentityModel) domain.OAuthIdentity {
	return domain.OAuthIdentity{
		UserID:      row.UserID,
		Provider:    row.Provider,
		Subject:     row.Subject,
		Email:       row.Email,
		LinkedAt:    row.LinkedAt,
		LastLoginAt: row.LastLoginAt,
	}
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// isUniqueViolation recognizes duplicate keys whether or not gorm has
// translated the driver error.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}
