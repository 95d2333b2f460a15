package application

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/viralforge/identity-core/internal/domain"
	"github.com/viralforge/identity-core/internal/ports"
)

const serviceName = "identity-core"

// logEvent writes one application log line with the shared field set.
// Callers must not pass secrets, tokens or codes in attrs.
func (s *Service) logEvent(ctx context.Context, level slog.Level, msg, operation, outcome string, attrs ...any) {
	fields := []any{
		"service", serviceName,
		"module", "application",
		"layer", "application",
		"operation", operation,
		"outcome", outcome,
	}
	s.logger.Log(ctx, level, msg, append(fields, attrs...)...)
}

// hashToken stores one-way token fingerprints instead of raw secrets.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

// tokenFingerprint identifies a bearer token on its session row.
func tokenFingerprint(token string) string {
	if strings.TrimSpace(token) == "" {
		return ""
	}
	return hashToken(token)
}

// randomHex returns a cryptographically random hex token.
func randomHex(bytesLen int) (string, error) {
	raw := make([]byte, bytesLen)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// generateRecoveryCodes returns n distinct codes shaped XXXXX-XXXXX.
func generateRecoveryCodes(n int) ([]string, error) {
	seen := make(map[string]struct{}, n)
	codes := make([]string, 0, n)
	raw := make([]byte, 10)
	for len(codes) < n {
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("read random: %w", err)
		}
		encoded := base32.StdEncoding.EncodeToString(raw)[:10]
		code := encoded[:5] + "-" + encoded[5:]
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// recoveryCodeHash accepts codes with or without the separator and in any case.
func recoveryCodeHash(code string) string {
	cleaned := strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(code)))
	return hashToken(cleaned)
}

// looksLikeTOTP reports whether the input is a six digit authenticator code.
func looksLikeTOTP(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func cleanCode(code string) string {
	return strings.ReplaceAll(strings.TrimSpace(code), " ", "")
}

// allow applies a fixed-window limit. A broken limiter fails open and is logged.
func (s *Service) allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	if s.limiter == nil || limit <= 0 || strings.TrimSpace(key) == "" {
		return true
	}
	ok, err := s.limiter.Allow(ctx, key, limit, window)
	if err != nil {
		s.logEvent(ctx, slog.LevelWarn, "rate-limit state unavailable", "rate_limit", "warning", "error", err)
		return true
	}
	return ok
}

// frontendLink builds a link into the browser application.
func (s *Service) frontendLink(path string, query url.Values) string {
	base := strings.TrimRight(s.cfg.FrontendURL, "/")
	link := base + path
	if len(query) > 0 {
		link += "?" + query.Encode()
	}
	return link
}

// notify hands a message to the notifier. Delivery failures never fail the caller.
func (s *Service) notify(ctx context.Context, n ports.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logEvent(ctx, slog.LevelWarn, "notification dispatch failed", "notify", "failure",
			"kind", n.Kind,
			"user_id", n.UserID,
			"error", err,
		)
	}
}

// displayNameOrDefault falls back to the local part of the address.
func displayNameOrDefault(name, email string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return clip(trimmed, 100)
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}

// clip shortens s to at most max bytes without splitting a UTF-8 sequence.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && max-cut < utf8.UTFMax && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// verifyDummyPassword spends one hash verification on an account that does
// not exist.
func (s *Service) verifyDummyPassword(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("placeholder-password-for-unknown-accounts")
		if err == nil {
			s.dummyHash = hash
		}
	})
	if s.dummyHash != "" {
		_ = s.hasher.Verify(password, s.dummyHash)
	}
}

// asInvalidInput reports a rejected single-use token as a validation failure
// so the HTTP layer answers 400 rather than 401.
func asInvalidInput(err error, msg string) error {
	if errors.Is(err, domain.ErrInvalidToken) {
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, msg)
	}
	return err
}
