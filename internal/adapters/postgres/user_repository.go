package postgres

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/viralforge/identity-core/internal/domain"
	"github.com/viralforge/identity-core/internal/ports"
	"gorm.io/gorm"
)

type userRepository struct {
	db *gorm.DB
}

// Create relies on the unique index over lower(email) to settle concurrent
// signups: the loser gets domain.ErrConflict.
func (r *userRepository) Create(ctx context.Context, params ports.CreateUserParams) (domain.User, error) {
	rec := userModel{
		UserID:                 uuid.New(),
		Email:                  strings.ToLower(strings.TrimSpace(params.Email)),
		Name:                   params.Name,
		PasswordHash:           nullableString(params.PasswordHash),
		Role:                   params.Role,
		EmailVerified:          params.EmailVerified,
		EmailVerificationToken: nullableString(params.VerificationTokenHash),
		OAuthProvider:          nullableString(params.OAuthProvider),
		OAuthSubject:           nullableString(params.OAuthSubject),
		AvatarURL:              params.AvatarURL,
		CreatedAt:              params.CreatedAt,
		UpdatedAt:              params.CreatedAt,
	}
	if rec.Role == "" {
		rec.Role = domain.RoleUser
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, domain.ErrConflict
		}
		return domain.User{}, err
	}
	return toDomainUser(rec), nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	var rec userModel
	if err := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		Take(&rec).Error; err != nil {
		return domain.User{}, notFoundOr(err)
	}
	return toDomainUser(rec), nil
}

func (r *userRepository) GetByID(ctx context.Context, userID uuid.UUID) (domain.User, error) {
	var rec userModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&rec).Error; err != nil {
		return domain.User{}, notFoundOr(err)
	}
	return toDomainUser(rec), nil
}
