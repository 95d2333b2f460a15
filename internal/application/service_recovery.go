package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/viralforge/identity-core/internal/domain"
	"github.com/viralforge/identity-core/internal/ports"
)

// ForgotPassword issues a reset link when the address belongs to an account.
// The outcome is never reported to the caller, so it cannot be used to test
// which addresses are registered.
func (s *Service) ForgotPassword(ctx context.Context, rawEmail string, client ClientInfo) {
	email, err := domain.NormalizeEmail(rawEmail)
	if err != nil {
		return
	}
	if !s.allow(ctx, "forgot:email:"+email, s.cfg.RecoveryRateLimit, s.cfg.RecoveryRateLimitWindow) {
		s.logEvent(ctx, slog.LevelWarn, "password reset throttled", "forgot_password", "blocked")
		return
	}
	if ip := strings.TrimSpace(client.IPAddress); ip != "" {
		if !s.allow(ctx, "forgot:ip:"+ip, s.cfg.RecoveryRateLimit*10, s.cfg.RecoveryRateLimitWindow) {
			s.logEvent(ctx, slog.LevelWarn, "password reset throttled", "forgot_password", "blocked")
			return
		}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logEvent(ctx, slog.LevelError, "password reset lookup failed", "forgot_password", "failure", "error", err)
		}
		return
	}

	token, err := randomHex(32)
	if err != nil {
		s.logEvent(ctx, slog.LevelError, "password reset token generation failed", "forgot_password", "failure", "error", err)
		return
	}
	now := s.nowFn()
	if err := s.recovery.SetPasswordResetToken(ctx, user.UserID, hashToken(token), now.Add(s.cfg.PasswordResetTTL), now); err != nil {
		s.logEvent(ctx, slog.LevelError, "password reset token not stored", "forgot_password", "failure",
			"user_id", user.UserID.String(),
			"error", err,
		)
		return
	}
	s.notify(ctx, ports.Notification{
		Kind:   ports.NotificationPasswordReset,
		UserID: user.UserID.String(),
		Email:  user.Email,
		Name:   user.Name,
		Link:   s.frontendLink("/reset-password", url.Values{"token": {token}}),
	})
	s.logEvent(ctx, slog.LevelInfo, "password reset issued", "forgot_password", "success", "user_id", user.UserID.String())
}

// ResetPassword consumes a reset token and sets the new password in one step.
// Unknown, used and expired tokens are indistinguishable.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return fmt.Errorf("%w: token is required", domain.ErrInvalidInput)
	}
	if err := domain.ValidatePassword(req.Password); err != nil {
		return err
	}
	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	userID, err := s.recovery.ConsumePasswordResetToken(ctx, hashToken(token), passwordHash, s.nowFn())
	if err != nil {
		return asInvalidInput(err, "reset token is invalid or expired")
	}

	s.logEvent(ctx, slog.LevelInfo, "password reset completed", "reset_password", "success", "user_id", userID.String())
	if user, err := s.users.GetByID(ctx, userID); err == nil {
		if s.lockouts != nil {
			_ = s.lockouts.Clear(ctx, "login:"+user.Email)
		}
		s.notify(ctx, ports.Notification{
			Kind:   ports.NotificationPasswordChanged,
			UserID: userID.String(),
			Email:  user.Email,
			Name:   user.Name,
		})
	}
	return nil
}

// ChangePassword requires proof of the current password. Other device
// sessions are removed from the registry afterwards.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, currentToken string, req ChangePasswordRequest) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasPassword() {
		return domain.ErrPasswordlessAccount
	}
	if req.CurrentPassword == "" || !s.hasher.Verify(req.CurrentPassword, user.PasswordHash) {
		return fmt.Errorf("%w: current password is incorrect", domain.ErrInvalidInput)
	}
	if err := domain.ValidatePassword(req.NewPassword); err != nil {
		return err
	}
	if req.NewPassword == req.CurrentPassword {
		return fmt.Errorf("%w: new password must differ from the current one", domain.ErrInvalidInput)
	}

	passwordHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.credentials.UpdatePassword(ctx, user.UserID, passwordHash, s.nowFn()); err != nil {
		return err
	}

	removed, err := s.sessions.DeleteOthers(ctx, user.UserID, tokenFingerprint(currentToken))
	if err != nil {
		s.logEvent(ctx, slog.LevelWarn, "failed to prune sessions after password change", "change_password", "warning",
			"user_id", user.UserID.String(),
			"error", err,
		)
	}
	s.logEvent(ctx, slog.LevelInfo, "password changed", "change_password", "success",
		"user_id", user.UserID.String(),
		"sessions_removed", removed,
	)
	s.notify(ctx, ports.Notification{
		Kind:   ports.NotificationPasswordChanged,
		UserID: user.UserID.String(),
		Email:  user.Email,
		Name:   user.Name,
	})
	return nil
}

// VerifyEmail consumes an email verification token.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: token is required", domain.ErrInvalidInput)
	}
	userID, err := s.recovery.ConsumeEmailVerificationToken(ctx, hashToken(token), s.nowFn())
	if err != nil {
		return asInvalidInput(err, "verification token is invalid")
	}
	s.logEvent(ctx, slog.LevelInfo, "email verified", "verify_email", "success", "user_id", userID.String())
	return nil
}

// ResendVerification replaces any outstanding verification token with a new one.
func (s *Service) ResendVerification(ctx context.Context, userID uuid.UUID) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return fmt.Errorf("%w: email already verified", domain.ErrConflict)
	}
	if !s.allow(ctx, "verify-resend:"+user.UserID.String(), s.cfg.RecoveryRateLimit, s.cfg.RecoveryRateLimitWindow) {
		return domain.ErrRateLimited
	}

	token, err := randomHex(32)
	if err != nil {
		return err
	}
	if err := s.recovery.SetEmailVerificationToken(ctx, user.UserID, hashToken(token), s.nowFn()); err != nil {
		return err
	}
	s.notify(ctx, ports.Notification{
		Kind:   ports.NotificationEmailVerification,
		UserID: user.UserID.String(),
		Email:  user.Email,
		Name:   user.Name,
		Link:   s.frontendLink("/verify-email", url.Values{"token": {token}}),
	})
	return nil
}
