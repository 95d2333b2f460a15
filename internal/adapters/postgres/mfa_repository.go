package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/identity-core/internal/domain"
	"gorm.io/gorm"
)

type mfaRepository struct {
	db *gorm.DB
}

// SetPendingSecret stores an unconfirmed secret. It refuses to overwrite the
// secret of an account whose second factor is already enabled.
func (r *mfaRepository) SetPendingSecret(ctx context.Context, userID uuid.UUID, secret string, updatedAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ?", userID).
		Where("two_factor_enabled = FALSE").
		Updates(map[string]any{
			"two_factor_secret":    secret,
			"two_factor_last_step": nil,
			"updated_at":           updatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

// Enable flips the flag and replaces the recovery codes in one transaction.
// The row must still hold the secret the confirming code was checked against.
func (r *mfaRepository) Enable(ctx context.Context, userID uuid.UUID, secret string, step int64, recoveryCodeHashes []string, updatedAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&userModel{}).
			Where("user_id = ?", userID).
			Where("two_factor_enabled = FALSE").
			Where("two_factor_secret = ?", secret).
			Updates(map[string]any{
				"two_factor_enabled":   true,
				"two_factor_last_step": step,
				"updated_at":           updatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrConflict
		}
		if err := tx.Where("user_id = ?", userID).Delete(&recoveryCodeModel{}).Error; err != nil {
			return err
		}
		if len(recoveryCodeHashes) == 0 {
			return nil
		}
		records := make([]recoveryCodeModel, 0, len(recoveryCodeHashes))
		for _, hash := range recoveryCodeHashes {
			records = append(records, recoveryCodeModel{
				CodeID:    uuid.New(),
				UserID:    userID,
				CodeHash:  hash,
				CreatedAt: updatedAt,
			})
		}
		return tx.Create(&records).Error
	})
}

// Disable clears the secret, the flag and every recovery code together.
func (r *mfaRepository) Disable(ctx context.Context, userID uuid.UUID, updatedAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&userModel{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{
				"two_factor_enabled":   false,
				"two_factor_secret":    nil,
				"two_factor_last_step": nil,
				"updated_at":           updatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return tx.Where("user_id = ?", userID).Delete(&recoveryCodeModel{}).Error
	})
}

// ClaimTOTPStep is a compare-and-set on the last accepted step, so two
// requests carrying the same code cannot both succeed.
func (r *mfaRepository) ClaimTOTPStep(ctx context.Context, userID uuid.UUID, step int64, updatedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ?", userID).
		Where("two_factor_last_step IS NULL OR two_factor_last_step < ?", step).
		Updates(map[string]any{
			"two_factor_last_step": step,
			"updated_at":           updatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *mfaRepository) ConsumeRecoveryCode(ctx context.Context, userID uuid.UUID, codeHash string, usedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&recoveryCodeModel{}).
		Where("user_id = ?", userID).
		Where("code_hash = ?", codeHash).
		Where("used_at IS NULL").
		Update("used_at", usedAt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *mfaRepository) CountRecoveryCodes(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&recoveryCodeModel{}).
		Where("user_id = ?", userID).
		Where("used_at IS NULL").
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}
