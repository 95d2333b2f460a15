package application

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

// GetUserIdentity returns a narrow projection of an account for administrators,
// including every provider that has asserted the account's email.
func (s *Service) GetUserIdentity(ctx context.Context, userID uuid.UUID) (UserIdentity, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return UserIdentity{}, err
	}
	identities, err := s.federation.ListIdentities(ctx, userID)
	if err != nil {
		return UserIdentity{}, err
	}

	seen := map[string]struct{}{}
	providers := make([]string, 0, len(identities)+1)
	add := func(p string) {
		if p == "" {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		providers = append(providers, p)
	}
	add(user.OAuthProvider)
	for _, it := range identities {
		add(it.Provider)
	}
	sort.Strings(providers)

	return UserIdentity{
		UserID:           user.UserID,
		Email:            user.Email,
		Name:             user.Name,
		Role:             user.Role,
		EmailVerified:    user.EmailVerified,
		TwoFactorEnabled: user.TwoFactorOn,
		Providers:        providers,
		CreatedAt:        user.CreatedAt,
	}, nil
}
