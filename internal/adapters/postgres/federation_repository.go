package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/identity-core/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type federationRepository struct {
	db *gorm.DB
}

// LinkProvider is a no-op for accounts already carrying a provider; the first
// linked provider stays on the user row.
func (r *federationRepository) LinkProvider(ctx context.Context, userID uuid.UUID, provider, subject string, updatedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ?", userID).
		Where("oauth_provider IS NULL").
		Updates(map[string]any{
			"oauth_provider": provider,
			"oauth_subject":  subject,
			"updated_at":     updatedAt,
		}).Error
}

func (r *federationRepository) FillProfile(ctx context.Context, userID uuid.UUID, name, avatarURL string, updatedAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if name != "" {
			if err := tx.Model(&userModel{}).
				Where("user_id = ?", userID).
				Where("name = ''").
				Updates(map[string]any{"name": name, "updated_at": updatedAt}).Error; err != nil {
				return err
			}
		}
		if avatarURL != "" {
			if err := tx.Model(&userModel{}).
				Where("user_id = ?", userID).
				Where("avatar_url = ''").
				Updates(map[string]any{"avatar_url": avatarURL, "updated_at": updatedAt}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *federationRepository) UpsertIdentity(ctx context.Context, identity domain.OAuthIdentity) error {
	rec := oauthIdentityModel{
		Provider:    identity.Provider,
		Subject:     identity.Subject,
		UserID:      identity.UserID,
		Email:       identity.Email,
		LinkedAt:    identity.LinkedAt,
		LastLoginAt: identity.LastLoginAt,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider"}, {Name: "subject"}},
		DoUpdates: clause.Assignments(map[string]any{
			"email":         rec.Email,
			"last_login_at": rec.LastLoginAt,
		}),
	}).Create(&rec).Error
}

func (r *federationRepository) ListIdentities(ctx context.Context, userID uuid.UUID) ([]domain.OAuthIdentity, error) {
	var rows []oauthIdentityModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("linked_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.OAuthIdentity, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainIdentity(row))
	}
	return out, nil
}
