package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/identity-core/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type recoveryRepository struct {
	db *gorm.DB
}

func (r *recoveryRepository) SetPasswordResetToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt, updatedAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"password_reset_token":      tokenHash,
			"password_reset_expires_at": expiresAt,
			"updated_at":                updatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ConsumePasswordResetToken sets the new hash and clears the token in one
// conditional UPDATE. An unknown, used or expired token matches no row and
// leaves the account untouched.
func (r *recoveryRepository) ConsumePasswordResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (uuid.UUID, error) {
	var rec userModel
	res := r.db.WithContext(ctx).
		Model(&rec).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "user_id"}}}).
		Where("password_reset_token = ?", tokenHash).
		Where("password_reset_expires_at > ?", now).
		Updates(map[string]any{
			"password_hash":             passwordHash,
			"password_reset_token":      nil,
			"password_reset_expires_at": nil,
			"updated_at":                now,
		})
	if res.Error != nil {
		return uuid.Nil, res.Error
	}
	if res.RowsAffected == 0 {
		return uuid.Nil, domain.ErrInvalidToken
	}
	return rec.UserID, nil
}

func (r *recoveryRepository) SetEmailVerificationToken(ctx context.Context, userID uuid.UUID, tokenHash string, updatedAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ?", userID).
		Where("email_verified = FALSE").
		Updates(map[string]any{
			"email_verification_token": tokenHash,
			"updated_at":               updatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *recoveryRepository) ConsumeEmailVerificationToken(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	var rec userModel
	res := r.db.WithContext(ctx).
		Model(&rec).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "user_id"}}}).
		Where("email_verification_token = ?", tokenHash).
		Updates(map[string]any{
			"email_verified":           true,
			"email_verification_token": nil,
			"updated_at":               now,
		})
	if res.Error != nil {
		return uuid.Nil, res.Error
	}
	if res.RowsAffected == 0 {
		return uuid.Nil, domain.ErrInvalidToken
	}
	return rec.UserID, nil
}
