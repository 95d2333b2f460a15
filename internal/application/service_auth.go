package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/viralforge/identity-core/internal/domain"
	"github.com/viralforge/identity-core/internal/ports"
)

// Register creates a password account and signs it in. A verification link is
// sent, but an unverified address does not block sign-in.
func (s *Service) Register(ctx context.Context, req RegisterRequest, client ClientInfo) (AuthResult, error) {
	email, err := domain.NormalizeEmail(req.Email)
	if err != nil {
		s.metrics.Registration("invalid")
		return AuthResult{}, err
	}
	if err := domain.ValidatePassword(req.Password); err != nil {
		s.metrics.Registration("invalid")
		return AuthResult{}, err
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}
	verifyToken, err := randomHex(32)
	if err != nil {
		return AuthResult{}, err
	}

	user, err := s.users.Create(ctx, ports.CreateUserParams{
		Email:                 email,
		Name:                  displayNameOrDefault(req.Name, email),
		PasswordHash:          passwordHash,
		Role:                  domain.RoleUser,
		VerificationTokenHash: hashToken(verifyToken),
		CreatedAt:             s.nowFn(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.metrics.Registration("conflict")
		}
		return AuthResult{}, err
	}
	s.metrics.Registration("success")
	s.logEvent(ctx, slog.LevelInfo, "account registered", "register", "success", "user_id", user.UserID.String())

	s.notify(ctx, ports.Notification{
		Kind:   ports.NotificationEmailVerification,
		UserID: user.UserID.String(),
		Email:  user.Email,
		Name:   user.Name,
		Link:   s.frontendLink("/verify-email", url.Values{"token": {verifyToken}}),
	})

	return s.issueSession(ctx, user, client, "register")
}

// Login verifies a password. Unknown email and wrong password produce the same
// error. Accounts with a second factor receive a challenge instead of a token.
func (s *Service) Login(ctx context.Context, req LoginRequest, client ClientInfo) (LoginResult, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return LoginResult{}, fmt.Errorf("%w: email and password are required", domain.ErrInvalidInput)
	}
	if ip := strings.TrimSpace(client.IPAddress); ip != "" {
		if !s.allow(ctx, "login:ip:"+ip, s.cfg.LoginRateLimitPerIP, s.cfg.LoginRateLimitWindow) {
			s.metrics.Login("password", "rate_limited")
			return LoginResult{}, domain.ErrRateLimited
		}
	}

	email, err := domain.NormalizeEmail(req.Email)
	if err != nil {
		s.metrics.Login("password", "failure")
		return LoginResult{}, domain.ErrInvalidCredentials
	}

	lockKey := "login:" + email
	if s.isLockedOut(ctx, lockKey) {
		s.metrics.Login("password", "locked")
		return LoginResult{}, fmt.Errorf("%w: too many failed attempts", domain.ErrRateLimited)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return LoginResult{}, err
		}
		s.verifyDummyPassword(req.Password)
		return LoginResult{}, s.loginFailure(ctx, lockKey, "")
	}
	if !user.HasPassword() {
		s.metrics.Login("password", "passwordless")
		return LoginResult{}, domain.ErrPasswordlessAccount
	}
	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		return LoginResult{}, s.loginFailure(ctx, lockKey, user.UserID.String())
	}

	if s.lockouts != nil {
		if err := s.lockouts.Clear(ctx, lockKey); err != nil {
			s.logEvent(ctx, slog.LevelWarn, "failed to clear lockout state", "login", "warning", "error", err)
		}
	}
	s.upgradeLegacyHash(ctx, user, req.Password)

	if user.TwoFactorOn {
		challengeToken, err := randomHex(32)
		if err != nil {
			return LoginResult{}, err
		}
		if err := s.challenges.Put(ctx, challengeToken, ports.TwoFactorChallenge{
			UserID:    user.UserID,
			UserAgent: client.UserAgent,
			IPAddress: client.IPAddress,
			ExpiresAt: s.nowFn().Add(s.cfg.TwoFactorChallengeTTL),
		}, s.cfg.TwoFactorChallengeTTL); err != nil {
			return LoginResult{}, fmt.Errorf("store 2fa challenge: %w", err)
		}
		s.metrics.Login("password", "challenge")
		return LoginResult{RequiresTwoFactor: true, ChallengeToken: challengeToken}, nil
	}

	auth, err := s.issueSession(ctx, user, client, "password")
	if err != nil {
		return LoginResult{}, err
	}
	s.metrics.Login("password", "success")
	return LoginResult{User: &auth.User, Token: auth.Token, ExpiresAt: auth.ExpiresAt}, nil
}

func (s *Service) isLockedOut(ctx context.Context, key string) bool {
	if s.lockouts == nil {
		return false
	}
	state, err := s.lockouts.Get(ctx, key)
	if err != nil {
		s.logEvent(ctx, slog.LevelWarn, "lockout state unavailable", "login", "warning", "error", err)
		return false
	}
	return state.LockedUntil != nil && state.LockedUntil.After(s.nowFn())
}

// loginFailure records a failed attempt against the email and returns the
// error the caller should see.
func (s *Service) loginFailure(ctx context.Context, lockKey, userID string) error {
	s.metrics.Login("password", "failure")
	if s.lockouts == nil {
		return domain.ErrInvalidCredentials
	}
	now := s.nowFn()
	state, err := s.lockouts.RecordFailure(ctx, lockKey, now, s.cfg.FailedLoginThreshold, s.cfg.LockoutDuration)
	if err != nil {
		s.logEvent(ctx, slog.LevelError, "failed to update lockout state", "login", "failure",
			"error_code", "LOCKOUT_STATE_UNAVAILABLE",
			"error", err,
		)
		return domain.ErrInvalidCredentials
	}
	if state.LockedUntil != nil && state.LockedUntil.After(now) {
		s.logEvent(ctx, slog.LevelWarn, "account lockout triggered", "login", "blocked",
			"user_id", userID,
			"locked_until", state.LockedUntil,
		)
	}
	return domain.ErrInvalidCredentials
}

// upgradeLegacyHash replaces a legacy digest with an adaptive hash after the
// plaintext has been proven. Failure leaves the old hash in place.
func (s *Service) upgradeLegacyHash(ctx context.Context, user domain.User, password string) {
	if !s.hasher.NeedsRehash(user.PasswordHash) {
		return
	}
	next, err := s.hasher.Hash(password)
	if err == nil {
		err = s.credentials.ReplacePasswordHash(ctx, user.UserID, user.PasswordHash, next, s.nowFn())
	}
	if err != nil {
		s.logEvent(ctx, slog.LevelWarn, "password rehash skipped", "login_rehash", "failure",
			"user_id", user.UserID.String(),
			"error", err,
		)
		return
	}
	s.logEvent(ctx, slog.LevelInfo, "password hash upgraded", "login_rehash", "success", "user_id", user.UserID.String())
}

// CompleteTwoFactorLogin finishes a challenged login with an authenticator
// code or an unused recovery code. A wrong code leaves the challenge usable
// until the attempt budget runs out.
func (s *Service) CompleteTwoFactorLogin(ctx context.Context, req TwoFactorLoginRequest, client ClientInfo) (AuthResult, error) {
	challengeToken := strings.TrimSpace(req.ChallengeToken)
	code := cleanCode(req.Code)
	if challengeToken == "" || code == "" {
		return AuthResult{}, fmt.Errorf("%w: challengeToken and code are required", domain.ErrInvalidInput)
	}

	challenge, err := s.challenges.Get(ctx, challengeToken)
	if err != nil {
		return AuthResult{}, fmt.Errorf("load 2fa challenge: %w", err)
	}
	if challenge == nil || !challenge.ExpiresAt.After(s.nowFn()) {
		s.metrics.TwoFactor("login", "expired")
		return AuthResult{}, fmt.Errorf("%w: challenge expired", domain.ErrInvalidToken)
	}
	if !s.allow(ctx, "2fa-login:"+hashToken(challengeToken), s.cfg.TwoFactorMaxAttempts, s.cfg.TwoFactorChallengeTTL) {
		_, _ = s.challenges.Consume(ctx, challengeToken)
		s.metrics.TwoFactor("login", "rate_limited")
		return AuthResult{}, domain.ErrRateLimited
	}

	user, err := s.users.GetByID(ctx, challenge.UserID)
	if err != nil {
		return AuthResult{}, err
	}
	if !user.TwoFactorOn || user.TwoFactorSecret == "" {
		_, _ = s.challenges.Consume(ctx, challengeToken)
		return AuthResult{}, fmt.Errorf("%w: challenge expired", domain.ErrInvalidToken)
	}

	method := "totp"
	var step int64
	if looksLikeTOTP(code) {
		var ok bool
		if step, ok = s.totp.Verify(user.TwoFactorSecret, code, s.nowFn()); !ok {
			return AuthResult{}, s.secondFactorRejected(ctx, user, method)
		}
	} else {
		method = "recovery_code"
	}

	// Take the challenge before spending a single-use factor.
	consumed, err := s.challenges.Consume(ctx, challengeToken)
	if err != nil {
		return AuthResult{}, fmt.Errorf("consume 2fa challenge: %w", err)
	}
	if !consumed {
		return AuthResult{}, fmt.Errorf("%w: challenge already used", domain.ErrInvalidToken)
	}

	var verified bool
	if method == "totp" {
		verified, err = s.mfa.ClaimTOTPStep(ctx, user.UserID, step, s.nowFn())
	} else {
		verified, err = s.mfa.ConsumeRecoveryCode(ctx, user.UserID, recoveryCodeHash(code), s.nowFn())
	}
	if err != nil {
		s.restoreChallenge(ctx, challengeToken, *challenge)
		return AuthResult{}, fmt.Errorf("verify second factor: %w", err)
	}
	if !verified {
		s.restoreChallenge(ctx, challengeToken, *challenge)
		return AuthResult{}, s.secondFactorRejected(ctx, user, method)
	}

	s.metrics.TwoFactor("login", "success")
	s.metrics.Login(method, "success")
	if method == "recovery_code" {
		s.logEvent(ctx, slog.LevelInfo, "recovery code used", "two_factor_login", "success", "user_id", user.UserID.String())
	}
	if client.UserAgent == "" {
		client.UserAgent = challenge.UserAgent
	}
	if client.IPAddress == "" {
		client.IPAddress = challenge.IPAddress
	}
	return s.issueSession(ctx, user, client, "two_factor")
}

func (s *Service) secondFactorRejected(ctx context.Context, user domain.User, method string) error {
	s.metrics.TwoFactor("login", "failure")
	s.logEvent(ctx, slog.LevelWarn, "second factor rejected", "two_factor_login", "failure",
		"user_id", user.UserID.String(),
		"method", method,
	)
	return fmt.Errorf("%w: invalid verification code", domain.ErrInvalidCredentials)
}

// restoreChallenge puts a consumed challenge back for its remaining lifetime
// after the factor presented with it was rejected.
func (s *Service) restoreChallenge(ctx context.Context, token string, challenge ports.TwoFactorChallenge) {
	ttl := challenge.ExpiresAt.Sub(s.nowFn())
	if ttl <= 0 {
		return
	}
	if err := s.challenges.Put(ctx, token, challenge, ttl); err != nil {
		s.logEvent(ctx, slog.LevelWarn, "2fa challenge restore failed", "two_factor_login", "warning",
			"user_id", challenge.UserID.String(),
			"error", err,
		)
	}
}

// Me resolves an optional bearer token to the current account. Missing or
// invalid tokens yield (nil, nil).
func (s *Service) Me(ctx context.Context, token string) (*UserView, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, nil
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := s.sessions.TouchByFingerprint(ctx, user.UserID, tokenFingerprint(token), s.nowFn()); err != nil {
		s.logEvent(ctx, slog.LevelDebug, "session touch failed", "me", "warning", "user_id", user.UserID.String(), "error", err)
	}
	view := toUserView(user)
	return &view, nil
}

// ValidateToken is the verification gate shared by HTTP middleware and the
// internal RPC. Every failure is ErrInvalidToken.
func (s *Service) ValidateToken(_ context.Context, token string) (ports.AuthClaims, error) {
	if strings.TrimSpace(token) == "" {
		return ports.AuthClaims{}, domain.ErrInvalidToken
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return ports.AuthClaims{}, domain.ErrInvalidToken
	}
	return claims, nil
}

// issueSession signs a token and records the device session. Session
// bookkeeping is advisory and never fails the sign-in.
func (s *Service) issueSession(ctx context.Context, user domain.User, client ClientInfo, flow string) (AuthResult, error) {
	token, claims, err := s.tokens.Issue(user.UserID, user.Email, user.Role)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}
	s.metrics.TokenIssued(flow)

	now := s.nowFn()
	if _, err := s.sessions.Create(ctx, ports.SessionCreateParams{
		UserID:           user.UserID,
		TokenFingerprint: tokenFingerprint(token),
		UserAgent:        client.UserAgent,
		IPAddress:        client.IPAddress,
		CreatedAt:        now,
		ExpiresAt:        claims.ExpiresAt,
	}); err != nil {
		s.logEvent(ctx, slog.LevelWarn, "failed to record session", "issue_session", "warning",
			"user_id", user.UserID.String(),
			"flow", flow,
			"error", err,
		)
	} else if err := s.sessions.PurgeExpired(ctx, user.UserID, now); err != nil {
		s.logEvent(ctx, slog.LevelDebug, "expired session purge failed", "issue_session", "warning",
			"user_id", user.UserID.String(),
			"error", err,
		)
	}

	return AuthResult{User: toUserView(user), Token: token, ExpiresAt: claims.ExpiresAt}, nil
}
