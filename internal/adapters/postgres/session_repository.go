package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/identity-core/internal/domain"
	"github.com/viralforge/identity-core/internal/ports"
	"gorm.io/gorm"
)

type sessionRepository struct {
	db *gorm.DB
}

func (r *sessionRepository) Create(ctx context.Context, params ports.SessionCreateParams) (domain.Session, error) {
	rec := deviceSessionModel{
		SessionID:        uuid.New(),
		UserID:           params.UserID,
		TokenFingerprint: params.TokenFingerprint,
		UserAgent:        params.UserAgent,
		IPAddress:        nullableString(params.IPAddress),
		CreatedAt:        params.CreatedAt,
		LastActiveAt:     params.CreatedAt,
		ExpiresAt:        params.ExpiresAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return domain.Session{}, err
	}
	return toDomainSession(rec), nil
}

func (r *sessionRepository) ListByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]domain.Session, error) {
	var rows []deviceSessionModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("expires_at > ?", now).
		Order("last_active_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Session, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainSession(row))
	}
	return out, nil
}

func (r *sessionRepository) TouchByFingerprint(ctx context.Context, userID uuid.UUID, fingerprint string, touchedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&deviceSessionModel{}).
		Where("user_id = ?", userID).
		Where("token_fingerprint = ?", fingerprint).
		Update("last_active_at", touchedAt).Error
}

// DeleteByID is scoped to the owner; another user's session reads as not found.
func (r *sessionRepository) DeleteByID(ctx context.Context, userID, sessionID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Where("user_id = ?", userID).
		Delete(&deviceSessionModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *sessionRepository) DeleteByFingerprint(ctx context.Context, userID uuid.UUID, fingerprint string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("token_fingerprint = ?", fingerprint).
		Delete(&deviceSessionModel{}).Error
}

func (r *sessionRepository) DeleteOthers(ctx context.Context, userID uuid.UUID, keepFingerprint string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("token_fingerprint <> ?", keepFingerprint).
		Delete(&deviceSessionModel{})
	return res.RowsAffected, res.Error
}

func (r *sessionRepository) PurgeExpired(ctx context.Context, userID uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("expires_at <= ?", now).
		Delete(&deviceSessionModel{}).Error
}
