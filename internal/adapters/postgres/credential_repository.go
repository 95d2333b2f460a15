package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/identity-core/internal/domain"
	"gorm.io/gorm"
)

type credentialRepository struct {
	db *gorm.DB
}

// UpdatePassword also drops any outstanding reset token.
func (r *credentialRepository) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string, updatedAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"password_hash":             passwordHash,
			"password_reset_token":      nil,
			"password_reset_expires_at": nil,
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

func (r *credentialRepository) ReplacePasswordHash(ctx context.Context, userID uuid.UUID, previousHash, nextHash string, updatedAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ?", userID).
		Where("password_hash = ?", previousHash).
		Updates(map[string]any{
			"password_hash": nextHash,
			"updated_at":    updatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}
