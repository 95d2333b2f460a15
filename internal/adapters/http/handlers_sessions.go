package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	items, err := h.service.ListSessions(r.Context(), claims.UserID, tokenFromContext(r.Context()))
	if err != nil {
		writeMappedError(r.Context(), w, "list_sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": items})
}

func (h *Handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeValidationError(r.Context(), w, "revoke_session", errors.New("invalid session id"))
		return
	}
	if err := h.service.RevokeSession(r.Context(), claims.UserID, sessionID); err != nil {
		writeMappedError(r.Context(), w, "revoke_session", err)
		return
	}
	writeOK(w)
}

func (h *Handler) revokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	removed, err := h.service.RevokeOtherSessions(r.Context(), claims.UserID, tokenFromContext(r.Context()))
	if err != nil {
		writeMappedError(r.Context(), w, "revoke_other_sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "revoked": removed})
}
