package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/viralforge/identity-core/internal/domain"
	"github.com/viralforge/identity-core/internal/ports"
)

// TwoFactorSetup generates an unconfirmed secret. It stays inert until
// TwoFactorConfirm sees a valid code for it.
func (s *Service) TwoFactorSetup(ctx context.Context, userID uuid.UUID) (TwoFactorSetupResult, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return TwoFactorSetupResult{}, err
	}
	if user.TwoFactorOn {
		return TwoFactorSetupResult{}, fmt.Errorf("%w: two-factor authentication is already enabled", domain.ErrConflict)
	}

	secret, err := s.totp.GenerateSecret()
	if err != nil {
		return TwoFactorSetupResult{}, fmt.Errorf("generate totp secret: %w", err)
	}
	if err := s.mfa.SetPendingSecret(ctx, user.UserID, secret, s.nowFn()); err != nil {
		return TwoFactorSetupResult{}, err
	}
	s.metrics.TwoFactor("setup", "success")
	return TwoFactorSetupResult{
		Secret:          secret,
		ProvisioningURI: s.totp.ProvisioningURI(secret, user.Email),
	}, nil
}

// TwoFactorConfirm enables the pending secret and returns the recovery codes.
// The plaintext codes are only ever visible in this response.
func (s *Service) TwoFactorConfirm(ctx context.Context, userID uuid.UUID, code string) (TwoFactorConfirmResult, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return TwoFactorConfirmResult{}, err
	}
	if user.TwoFactorOn {
		return TwoFactorConfirmResult{}, fmt.Errorf("%w: two-factor authentication is already enabled", domain.ErrConflict)
	}
	if user.TwoFactorSecret == "" {
		return TwoFactorConfirmResult{}, fmt.Errorf("%w: two-factor setup has not been started", domain.ErrInvalidInput)
	}
	step, ok := s.totp.Verify(user.TwoFactorSecret, cleanCode(code), s.nowFn())
	if !ok {
		s.metrics.TwoFactor("confirm", "failure")
		return TwoFactorConfirmResult{}, fmt.Errorf("%w: invalid verification code", domain.ErrInvalidInput)
	}

	codes, err := generateRecoveryCodes(s.cfg.RecoveryCodeCount)
	if err != nil {
		return TwoFactorConfirmResult{}, err
	}
	hashes := make([]string, 0, len(codes))
	for _, c := range codes {
		hashes = append(hashes, recoveryCodeHash(c))
	}
	if err := s.mfa.Enable(ctx, user.UserID, user.TwoFactorSecret, step, hashes, s.nowFn()); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.metrics.TwoFactor("confirm", "conflict")
			return TwoFactorConfirmResult{}, fmt.Errorf("%w: two-factor setup changed, scan the new code", domain.ErrConflict)
		}
		return TwoFactorConfirmResult{}, err
	}

	s.metrics.TwoFactor("confirm", "success")
	s.logEvent(ctx, slog.LevelInfo, "two-factor enabled", "two_factor_confirm", "success", "user_id", user.UserID.String())
	s.notify(ctx, ports.Notification{
		Kind:   ports.NotificationTwoFactorChanged,
		UserID: user.UserID.String(),
		Email:  user.Email,
		Name:   user.Name,
	})
	return TwoFactorConfirmResult{RecoveryCodes: codes}, nil
}

// TwoFactorDisable turns the second factor off given the account password or a
// current authenticator code.
func (s *Service) TwoFactorDisable(ctx context.Context, userID uuid.UUID, req TwoFactorDisableRequest) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorOn {
		return fmt.Errorf("%w: two-factor authentication is not enabled", domain.ErrInvalidInput)
	}
	code := cleanCode(req.Code)
	if req.Password == "" && code == "" {
		return fmt.Errorf("%w: password or code is required", domain.ErrInvalidInput)
	}

	proven := false
	if req.Password != "" && user.HasPassword() {
		proven = s.hasher.Verify(req.Password, user.PasswordHash)
	}
	if !proven && code != "" {
		if step, ok := s.totp.Verify(user.TwoFactorSecret, code, s.nowFn()); ok {
			proven, err = s.mfa.ClaimTOTPStep(ctx, user.UserID, step, s.nowFn())
			if err != nil {
				return err
			}
		}
	}
	if !proven {
		s.metrics.TwoFactor("disable", "failure")
		return fmt.Errorf("%w: invalid password or code", domain.ErrInvalidInput)
	}

	if err := s.mfa.Disable(ctx, user.UserID, s.nowFn()); err != nil {
		return err
	}
	s.metrics.TwoFactor("disable", "success")
	s.logEvent(ctx, slog.LevelInfo, "two-factor disabled", "two_factor_disable", "success", "user_id", user.UserID.String())
	s.notify(ctx, ports.Notification{
		Kind:   ports.NotificationTwoFactorChanged,
		UserID: user.UserID.String(),
		Email:  user.Email,
		Name:   user.Name,
	})
	return nil
}

// TwoFactorStatus reports whether the second factor is on and how many
// recovery codes are unused.
func (s *Service) TwoFactorStatus(ctx context.Context, userID uuid.UUID) (TwoFactorStatus, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return TwoFactorStatus{}, err
	}
	status := TwoFactorStatus{Enabled: user.TwoFactorOn}
	if user.TwoFactorOn {
		status.RecoveryCodesRemaining, err = s.mfa.CountRecoveryCodes(ctx, userID)
		if err != nil {
			return TwoFactorStatus{}, err
		}
	}
	return status, nil
}
