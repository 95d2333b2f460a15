package application_test

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/identity-core/internal/domain"
	"github.com/viralforge/identity-core/internal/ports"
)

type resetToken struct {
	userID    uuid.UUID
	expiresAt time.Time
}

type recoveryCode struct {
	hash string
	used bool
}

// fakeStore backs every user-row repository with one map, like the single
// users table does.
type fakeStore struct {
	mu            sync.Mutex
	byID          map[uuid.UUID]domain.User
	resetTokens   map[string]resetToken
	verifyTokens  map[string]uuid.UUID
	recoveryCodes map[uuid.UUID][]recoveryCode
	identities    map[string]domain.OAuthIdentity
	// createHook runs before an insert, outside the lock.
	createHook func(email string)
	// enableHook runs before Enable, outside the lock.
	enableHook func(userID uuid.UUID)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byID:          map[uuid.UUID]domain.User{},
		resetTokens:   map[string]resetToken{},
		verifyTokens:  map[string]uuid.UUID{},
		recoveryCodes: map[uuid.UUID][]recoveryCode{},
		identities:    map[string]domain.OAuthIdentity{},
	}
}

func (f *fakeStore) Create(_ context.Context, params ports.CreateUserParams) (domain.User, error) {
	if f.createHook != nil {
		f.createHook(params.Email)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if strings.EqualFold(u.Email, params.Email) {
			return domain.User{}, fmt.Errorf("%w: email already registered", domain.ErrConflict)
		}
	}
	user := domain.User{
		UserID:        uuid.New(),
		Email:         params.Email,
		Name:          params.Name,
		PasswordHash:  params.PasswordHash,
		Role:          params.Role,
		EmailVerified: params.EmailVerified,
		AvatarURL:     params.AvatarURL,
		OAuthProvider: params.OAuthProvider,
		OAuthSubject:  params.OAuthSubject,
		CreatedAt:     params.CreatedAt,
		UpdatedAt:     params.CreatedAt,
	}
	f.byID[user.UserID] = user
	if params.VerificationTokenHash != "" {
		f.verifyTokens[params.VerificationTokenHash] = user.UserID
	}
	return user, nil
}

func (f *fakeStore) GetByEmail(_ context.Context, email string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (f *fakeStore) GetByID(_ context.Context, userID uuid.UUID) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) update(userID uuid.UUID, fn func(*domain.User) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	if err := fn(&u); err != nil {
		return err
	}
	f.byID[userID] = u
	return nil
}

func (f *fakeStore) UpdatePassword(_ context.Context, userID uuid.UUID, passwordHash string, at time.Time) error {
	return f.update(userID, func(u *domain.User) error {
		u.PasswordHash = passwordHash
		u.UpdatedAt = at
		return nil
	})
}

func (f *fakeStore) ReplacePasswordHash(_ context.Context, userID uuid.UUID, previous, next string, at time.Time) error {
	return f.update(userID, func(u *domain.User) error {
		if u.PasswordHash != previous {
			return domain.ErrConflict
		}
		u.PasswordHash = next
		u.UpdatedAt = at
		return nil
	})
}

func (f *fakeStore) SetPasswordResetToken(_ context.Context, userID uuid.UUID, tokenHash string, expiresAt, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range f.resetTokens {
		if v.userID == userID {
			delete(f.resetTokens, k)
		}
	}
	f.resetTokens[tokenHash] = resetToken{userID: userID, expiresAt: expiresAt}
	return nil
}

func (f *fakeStore) ConsumePasswordResetToken(_ context.Context, tokenHash, passwordHash string, now time.Time) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.resetTokens[tokenHash]
	if !ok || !tok.expiresAt.After(now) {
		return uuid.Nil, domain.ErrInvalidToken
	}
	delete(f.resetTokens, tokenHash)
	u := f.byID[tok.userID]
	u.PasswordHash = passwordHash
	f.byID[tok.userID] = u
	return tok.userID, nil
}

func (f *fakeStore) SetEmailVerificationToken(_ context.Context, userID uuid.UUID, tokenHash string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byID[userID].EmailVerified {
		return domain.ErrConflict
	}
	for k, v := range f.verifyTokens {
		if v == userID {
			delete(f.verifyTokens, k)
		}
	}
	f.verifyTokens[tokenHash] = userID
	return nil
}

func (f *fakeStore) ConsumeEmailVerificationToken(_ context.Context, tokenHash string, _ time.Time) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.verifyTokens[tokenHash]
	if !ok {
		return uuid.Nil, domain.ErrInvalidToken
	}
	delete(f.verifyTokens, tokenHash)
	u := f.byID[userID]
	u.EmailVerified = true
	f.byID[userID] = u
	return userID, nil
}

func (f *fakeStore) LinkProvider(_ context.Context, userID uuid.UUID, provider, subject string, _ time.Time) error {
	return f.update(userID, func(u *domain.User) error {
		if u.OAuthProvider == "" {
			u.OAuthProvider = provider
			u.OAuthSubject = subject
		}
		return nil
	})
}

func (f *fakeStore) FillProfile(_ context.Context, userID uuid.UUID, name, avatarURL string, _ time.Time) error {
	return f.update(userID, func(u *domain.User) error {
		if u.Name == "" {
			u.Name = name
		}
		if u.AvatarURL == "" {
			u.AvatarURL = avatarURL
		}
		return nil
	})
}

func (f *fakeStore) UpsertIdentity(_ context.Context, identity domain.OAuthIdentity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := identity.Provider + "|" + identity.Subject
	if existing, ok := f.identities[key]; ok {
		identity.LinkedAt = existing.LinkedAt
	}
	f.identities[key] = identity
	return nil
}

func (f *fakeStore) ListIdentities(_ context.Context, userID uuid.UUID) ([]domain.OAuthIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.OAuthIdentity
	for _, it := range f.identities {
		if it.UserID == userID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (f *fakeStore) SetPendingSecret(_ context.Context, userID uuid.UUID, secret string, _ time.Time) error {
	return f.update(userID, func(u *domain.User) error {
		if u.TwoFactorOn {
			return domain.ErrConflict
		}
		u.TwoFactorSecret = secret
		u.TwoFactorLastStep = 0
		return nil
	})
}

func (f *fakeStore) Enable(_ context.Context, userID uuid.UUID, secret string, step int64, hashes []string, _ time.Time) error {
	if f.enableHook != nil {
		f.enableHook(userID)
	}
	if err := f.update(userID, func(u *domain.User) error {
		if u.TwoFactorOn || u.TwoFactorSecret == "" || u.TwoFactorSecret != secret {
			return domain.ErrConflict
		}
		u.TwoFactorOn = true
		u.TwoFactorLastStep = step
		return nil
	}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	codes := make([]recoveryCode, 0, len(hashes))
	for _, h := range hashes {
		codes = append(codes, recoveryCode{hash: h})
	}
	f.recoveryCodes[userID] = codes
	return nil
}

func (f *fakeStore) Disable(_ context.Context, userID uuid.UUID, _ time.Time) error {
	if err := f.update(userID, func(u *domain.User) error {
		u.TwoFactorOn = false
		u.TwoFactorSecret = ""
		u.TwoFactorLastStep = 0
		return nil
	}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.recoveryCodes, userID)
	return nil
}

func (f *fakeStore) ClaimTOTPStep(_ context.Context, userID uuid.UUID, step int64, _ time.Time) (bool, error) {
	claimed := false
	err := f.update(userID, func(u *domain.User) error {
		if u.TwoFactorLastStep == 0 || u.TwoFactorLastStep < step {
			u.TwoFactorLastStep = step
			claimed = true
		}
		return nil
	})
	return claimed, err
}

func (f *fakeStore) ConsumeRecoveryCode(_ context.Context, userID uuid.UUID, codeHash string, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	codes := f.recoveryCodes[userID]
	for i := range codes {
		if codes[i].hash == codeHash && !codes[i].used {
			codes[i].used = true
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CountRecoveryCodes(_ context.Context, userID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.recoveryCodes[userID] {
		if !c.used {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) userByEmail(email string) domain.User {
	u, _ := f.GetByEmail(context.Background(), email)
	return u
}

func (f *fakeStore) put(u domain.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[u.UserID] = u
}

type fakeSessions struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Session
}

func (f *fakeSessions) Create(_ context.Context, params ports.SessionCreateParams) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := domain.Session{
		SessionID:        uuid.New(),
		UserID:           params.UserID,
		TokenFingerprint: params.TokenFingerprint,
		UserAgent:        params.UserAgent,
		IPAddress:        params.IPAddress,
		CreatedAt:        params.CreatedAt,
		LastActiveAt:     params.CreatedAt,
		ExpiresAt:        params.ExpiresAt,
	}
	f.byID[s.SessionID] = s
	return s, nil
}

func (f *fakeSessions) ListByUser(_ context.Context, userID uuid.UUID, now time.Time) ([]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Session
	for _, s := range f.byID {
		if s.UserID == userID && s.ExpiresAt.After(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessions) TouchByFingerprint(_ context.Context, userID uuid.UUID, fingerprint string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.byID {
		if s.UserID == userID && s.TokenFingerprint == fingerprint {
			s.LastActiveAt = at
			f.byID[id] = s
		}
	}
	return nil
}

func (f *fakeSessions) DeleteByID(_ context.Context, userID, sessionID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[sessionID]
	if !ok || s.UserID != userID {
		return domain.ErrNotFound
	}
	delete(f.byID, sessionID)
	return nil
}

func (f *fakeSessions) DeleteByFingerprint(_ context.Context, userID uuid.UUID, fingerprint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.byID {
		if s.UserID == userID && s.TokenFingerprint == fingerprint {
			delete(f.byID, id)
		}
	}
	return nil
}

func (f *fakeSessions) DeleteOthers(_ context.Context, userID uuid.UUID, keep string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.byID {
		if s.UserID == userID && s.TokenFingerprint != keep {
			delete(f.byID, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessions) PurgeExpired(_ context.Context, userID uuid.UUID, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.byID {
		if s.UserID == userID && !s.ExpiresAt.After(now) {
			delete(f.byID, id)
		}
	}
	return nil
}

func (f *fakeSessions) count(userID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.byID {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

type fakeLockouts struct {
	mu    sync.Mutex
	state map[string]ports.LockoutState
}

func (f *fakeLockouts) Get(_ context.Context, key string) (ports.LockoutState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state[key], nil
}

func (f *fakeLockouts) RecordFailure(_ context.Context, key string, now time.Time, threshold int, window time.Duration) (ports.LockoutState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.state[key]
	st.FailedCount++
	if st.FailedCount >= threshold {
		until := now.Add(window)
		st.LockedUntil = &until
	}
	f.state[key] = st
	return st, nil
}

func (f *fakeLockouts) Clear(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.state, key)
	return nil
}

type fakeLimiter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (f *fakeLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return f.counts[key] <= limit, nil
}

type fakeChallenges struct {
	mu    sync.Mutex
	items map[string]ports.TwoFactorChallenge
}

func (f *fakeChallenges) Put(_ context.Context, token string, c ports.TwoFactorChallenge, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[token] = c
	return nil
}

func (f *fakeChallenges) Get(_ context.Context, token string) (*ports.TwoFactorChallenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[token]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeChallenges) Consume(_ context.Context, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[token]; !ok {
		return false, nil
	}
	delete(f.items, token)
	return true, nil
}

type fakeStates struct {
	mu    sync.Mutex
	items map[string]ports.OAuthState
}

func (f *fakeStates) Put(_ context.Context, state string, v ports.OAuthState, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[state] = v
	return nil
}

func (f *fakeStates) Take(_ context.Context, state string) (*ports.OAuthState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.items[state]
	if !ok {
		return nil, nil
	}
	delete(f.items, state)
	return &v, nil
}

func (f *fakeStates) only() (string, ports.OAuthState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range f.items {
		return k, v
	}
	return "", ports.OAuthState{}
}

// fakeTOTP accepts validTOTPCode for any secret, in the step of the clock.
type fakeTOTP struct{}

const validTOTPCode = "123456"

func (fakeTOTP) GenerateSecret() (string, error) { return "JBSWY3DPEHPK3PXP", nil }

func (fakeTOTP) ProvisioningURI(secret, account string) string {
	return "otpauth://totp/Test:" + account + "?secret=" + secret
}

func (fakeTOTP) Verify(secret, code string, now time.Time) (int64, bool) {
	if secret == "" || code != validTOTPCode {
		return 0, false
	}
	return now.Unix() / 30, true
}

// countingHasher records how many verifications reach the real hasher.
type countingHasher struct {
	ports.PasswordHasher
	mu       sync.Mutex
	verifies int
}

func (h *countingHasher) Verify(password, stored string) bool {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return h.PasswordHasher.Verify(password, stored)
}

func (h *countingHasher) verifyCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verifies
}

type fakeProvider struct {
	name        string
	pkce        bool
	identity    ports.ExternalIdentity
	exchangeErr error
	mu          sync.Mutex
	verifiers   []string
}

func (p *fakeProvider) Name() string   { return p.name }
func (p *fakeProvider) UsesPKCE() bool { return p.pkce }

func (p *fakeProvider) AuthorizeURL(state, verifier string) string {
	return "https://provider.test/authorize?state=" + state + "&has_verifier=" + fmt.Sprint(verifier != "")
}

func (p *fakeProvider) ExchangeToken(_ context.Context, cb ports.ProviderCallback, verifier string) (ports.ProviderToken, error) {
	p.mu.Lock()
	p.verifiers = append(p.verifiers, verifier)
	p.mu.Unlock()
	if p.exchangeErr != nil {
		return ports.ProviderToken{}, p.exchangeErr
	}
	if cb.Code == "" {
		return ports.ProviderToken{}, domain.ErrUpstream
	}
	return ports.ProviderToken{AccessToken: "access-" + cb.Code}, nil
}

func (p *fakeProvider) FetchIdentity(context.Context, ports.ProviderToken, ports.ProviderCallback) (ports.ExternalIdentity, error) {
	id := p.identity
	id.Provider = p.name
	return id, nil
}

type fakeDirectory map[string]ports.IdentityProvider

func (d fakeDirectory) Provider(name string) (ports.IdentityProvider, bool) {
	p, ok := d[strings.ToLower(name)]
	return p, ok
}

func (d fakeDirectory) Names() []string {
	out := make([]string, 0, len(d))
	for k := range d {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []ports.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n ports.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) last(kind string) (ports.Notification, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].Kind == kind {
			return f.sent[i], true
		}
	}
	return ports.Notification{}, false
}
