package http

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/identity-core/internal/domain"
	"github.com/viralforge/identity-core/internal/ports"
)

// memStore is an in-memory stand-in for the users, identities, second-factor
// and sessions tables. Password-state operations the handler tests never
// reach are absent.
type memStore struct {
	mu            sync.Mutex
	users         map[uuid.UUID]domain.User
	identities    []domain.OAuthIdentity
	resetTokens   map[string]uuid.UUID
	sessions      map[uuid.UUID]domain.Session
	recoveryCodes map[uuid.UUID]map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		users:         map[uuid.UUID]domain.User{},
		resetTokens:   map[string]uuid.UUID{},
		sessions:      map[uuid.UUID]domain.Session{},
		recoveryCodes: map[uuid.UUID]map[string]bool{},
	}
}

func (m *memStore) put(u domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.UserID] = u
}

func (m *memStore) Create(_ context.Context, p ports.CreateUserParams) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, p.Email) {
			return domain.User{}, fmt.Errorf("%w: email already registered", domain.ErrConflict)
		}
	}
	u := domain.User{
		UserID:        uuid.New(),
		Email:         p.Email,
		Name:          p.Name,
		PasswordHash:  p.PasswordHash,
		Role:          p.Role,
		EmailVerified: p.EmailVerified,
		AvatarURL:     p.AvatarURL,
		OAuthProvider: p.OAuthProvider,
		OAuthSubject:  p.OAuthSubject,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.CreatedAt,
	}
	m.users[u.UserID] = u
	return u, nil
}

func (m *memStore) GetByEmail(_ context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (m *memStore) SetPasswordResetToken(_ context.Context, userID uuid.UUID, tokenHash string, _, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetTokens[tokenHash] = userID
	return nil
}

func (m *memStore) ConsumePasswordResetToken(context.Context, string, string, time.Time) (uuid.UUID, error) {
	return uuid.Nil, domain.ErrInvalidToken
}

func (m *memStore) SetEmailVerificationToken(context.Context, uuid.UUID, string, time.Time) error {
	return nil
}

func (m *memStore) ConsumeEmailVerificationToken(context.Context, string, time.Time) (uuid.UUID, error) {
	return uuid.Nil, domain.ErrInvalidToken
}

func (m *memStore) LinkProvider(_ context.Context, userID uuid.UUID, provider, subject string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[userID]
	if u.OAuthProvider == "" {
		u.OAuthProvider, u.OAuthSubject = provider, subject
		m.users[userID] = u
	}
	return nil
}

func (m *memStore) FillProfile(_ context.Context, userID uuid.UUID, name, avatarURL string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[userID]
	if u.Name == "" {
		u.Name = name
	}
	if u.AvatarURL == "" {
		u.AvatarURL = avatarURL
	}
	m.users[userID] = u
	return nil
}

func (m *memStore) UpsertIdentity(_ context.Context, identity domain.OAuthIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, it := range m.identities {
		if it.Provider == identity.Provider && it.Subject == identity.Subject {
			m.identities[i] = identity
			return nil
		}
	}
	m.identities = append(m.identities, identity)
	return nil
}

func (m *memStore) ListIdentities(_ context.Context, userID uuid.UUID) ([]domain.OAuthIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OAuthIdentity
	for _, it := range m.identities {
		if it.UserID == userID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memStore) SetPendingSecret(_ context.Context, userID uuid.UUID, secret string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.TwoFactorOn {
		return domain.ErrConflict
	}
	u.TwoFactorSecret, u.TwoFactorLastStep = secret, 0
	m.users[userID] = u
	return nil
}

func (m *memStore) Enable(_ context.Context, userID uuid.UUID, secret string, step int64, hashes []string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.TwoFactorOn || u.TwoFactorSecret != secret {
		return domain.ErrConflict
	}
	u.TwoFactorOn, u.TwoFactorLastStep = true, step
	m.users[userID] = u
	codes := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		codes[h] = false
	}
	m.recoveryCodes[userID] = codes
	return nil
}

func (m *memStore) Disable(_ context.Context, userID uuid.UUID, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.TwoFactorOn, u.TwoFactorSecret, u.TwoFactorLastStep = false, "", 0
	m.users[userID] = u
	delete(m.recoveryCodes, userID)
	return nil
}

func (m *memStore) ClaimTOTPStep(_ context.Context, userID uuid.UUID, step int64, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || (u.TwoFactorLastStep != 0 && u.TwoFactorLastStep >= step) {
		return false, nil
	}
	u.TwoFactorLastStep = step
	m.users[userID] = u
	return true, nil
}

func (m *memStore) ConsumeRecoveryCode(_ context.Context, userID uuid.UUID, codeHash string, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	used, ok := m.recoveryCodes[userID][codeHash]
	if !ok || used {
		return false, nil
	}
	m.recoveryCodes[userID][codeHash] = true
	return true, nil
}

func (m *memStore) CountRecoveryCodes(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, used := range m.recoveryCodes[userID] {
		if !used {
			n++
		}
	}
	return n, nil
}

// memSessions implements ports.SessionRepository over the same lock.
type memSessions struct{ *memStore }

func (m memSessions) Create(_ context.Context, p ports.SessionCreateParams) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := domain.Session{
		SessionID:        uuid.New(),
		UserID:           p.UserID,
		TokenFingerprint: p.TokenFingerprint,
		UserAgent:        p.UserAgent,
		IPAddress:        p.IPAddress,
		CreatedAt:        p.CreatedAt,
		LastActiveAt:     p.CreatedAt,
		ExpiresAt:        p.ExpiresAt,
	}
	m.sessions[s.SessionID] = s
	return s, nil
}

func (m memSessions) ListByUser(_ context.Context, userID uuid.UUID, now time.Time) ([]domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Session
	for _, s := range m.sessions {
		if s.UserID == userID && s.ExpiresAt.After(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m memSessions) TouchByFingerprint(_ context.Context, userID uuid.UUID, fingerprint string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID && s.TokenFingerprint == fingerprint {
			s.LastActiveAt = at
			m.sessions[id] = s
		}
	}
	return nil
}

func (m memSessions) DeleteByID(_ context.Context, userID, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.UserID != userID {
		return domain.ErrNotFound
	}
	delete(m.sessions, sessionID)
	return nil
}

func (m memSessions) DeleteByFingerprint(_ context.Context, userID uuid.UUID, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID && s.TokenFingerprint == fingerprint {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m memSessions) DeleteOthers(_ context.Context, userID uuid.UUID, keep string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.UserID == userID && s.TokenFingerprint != keep {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m memSessions) PurgeExpired(_ context.Context, userID uuid.UUID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID && !s.ExpiresAt.After(now) {
			delete(m.sessions, id)
		}
	}
	return nil
}
