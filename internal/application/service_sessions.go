package application

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// ListSessions returns the caller's unexpired device sessions, flagging the one
// that belongs to currentToken.
func (s *Service) ListSessions(ctx context.Context, userID uuid.UUID, currentToken string) ([]SessionView, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID, s.nowFn())
	if err != nil {
		return nil, err
	}
	current := tokenFingerprint(currentToken)
	result := make([]SessionView, 0, len(sessions))
	for _, it := range sessions {
		result = append(result, toSessionView(it, current))
	}
	return result, nil
}

// RevokeSession removes one session owned by userID. Another user's session
// reports domain.ErrNotFound.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	if err := s.sessions.DeleteByID(ctx, userID, sessionID); err != nil {
		return err
	}
	s.logEvent(ctx, slog.LevelInfo, "session revoked", "revoke_session", "success",
		"user_id", userID.String(),
		"session_id", sessionID.String(),
	)
	return nil
}

// RevokeOtherSessions removes every session except the caller's.
func (s *Service) RevokeOtherSessions(ctx context.Context, userID uuid.UUID, currentToken string) (int64, error) {
	removed, err := s.sessions.DeleteOthers(ctx, userID, tokenFingerprint(currentToken))
	if err != nil {
		return 0, err
	}
	s.logEvent(ctx, slog.LevelInfo, "other sessions revoked", "revoke_other_sessions", "success",
		"user_id", userID.String(),
		"sessions_removed", removed,
	)
	return removed, nil
}

// Logout drops the session row for token. The token itself stays valid until
// it expires; there is no revocation list.
func (s *Service) Logout(ctx context.Context, token string) {
	if strings.TrimSpace(token) == "" {
		return
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return
	}
	if err := s.sessions.DeleteByFingerprint(ctx, claims.UserID, tokenFingerprint(token)); err != nil {
		s.logEvent(ctx, slog.LevelWarn, "failed to remove session on logout", "logout", "warning",
			"user_id", claims.UserID.String(),
			"error", err,
		)
		return
	}
	s.logEvent(ctx, slog.LevelInfo, "logged out", "logout", "success", "user_id", claims.UserID.String())
}
