package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/viralforge/identity-core/internal/domain"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	assert.True(t, isUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}

func TestNotFoundOr(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, notFoundOr(gorm.ErrRecordNotFound), domain.ErrNotFound)
	other := errors.New("other")
	assert.Equal(t, other, notFoundOr(other))
}

func TestToDomainUserNullables(t *testing.T) {
	t.Parallel()

	u := toDomainUser(userModel{Email: "a@example.com", Role: domain.RoleUser})
	assert.False(t, u.HasPassword())
	assert.Empty(t, u.OAuthProvider)

	assert.Zero(t, u.TwoFactorLastStep)

	hash := "$2a$10$abc"
	step := int64(57000000)
	u = toDomainUser(userModel{PasswordHash: &hash, TwoFactorEnabled: true, TwoFactorLastStep: &step})
	assert.True(t, u.HasPassword())
	assert.True(t, u.TwoFactorOn)
	assert.Equal(t, step, u.TwoFactorLastStep)
	assert.Nil(t, nullableString("   "))
}
