package http

import (
	"errors"
	"net/http"

	"github.com/viralforge/identity-core/internal/application"
	"github.com/viralforge/identity-core/internal/domain"
)

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req application.RegisterRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "register", err)
		return
	}

	res, err := h.service.Register(r.Context(), req, h.clientInfo(r))
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			logHTTPOperationError(r.Context(), "register", http.StatusConflict, "CONFLICT", "email already registered", nil)
			writeError(w, http.StatusConflict, "CONFLICT", "Email already registered")
			return
		}
		writeMappedError(r.Context(), w, "register", err)
		return
	}
	h.setAuthCookie(w, res.Token, res.ExpiresAt)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req application.LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "login", err)
		return
	}

	res, err := h.service.Login(r.Context(), req, h.clientInfo(r))
	if err != nil {
		writeMappedError(r.Context(), w, "login", err)
		return
	}
	if res.Token != "" {
		h.setAuthCookie(w, res.Token, res.ExpiresAt)
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) twoFactorLogin(w http.ResponseWriter, r *http.Request) {
	var req application.TwoFactorLoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "two_factor_login", err)
		return
	}

	res, err := h.service.CompleteTwoFactorLogin(r.Context(), req, h.clientInfo(r))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			logHTTPOperationError(r.Context(), "two_factor_login", http.StatusUnauthorized, "INVALID_CODE", "invalid verification code", nil)
			writeError(w, http.StatusUnauthorized, "INVALID_CODE", "Invalid verification code")
			return
		}
		writeMappedError(r.Context(), w, "two_factor_login", err)
		return
	}
	h.setAuthCookie(w, res.Token, res.ExpiresAt)
	writeJSON(w, http.StatusOK, res)
}

// me never fails on a missing or bad token; anonymous callers get a null user.
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Me(r.Context(), requestToken(r))
	if err != nil {
		writeMappedError(r.Context(), w, "me", err)
		return
	}
	if user == nil {
		writeJSON(w, http.StatusOK, map[string]any{"user": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "subscription": nil})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	h.service.Logout(r.Context(), requestToken(r))
	h.clearAuthCookie(w)
	writeOK(w)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	var req application.ChangePasswordRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "change_password", err)
		return
	}
	if err := h.service.ChangePassword(r.Context(), claims.UserID, tokenFromContext(r.Context()), req); err != nil {
		writeMappedError(r.Context(), w, "change_password", err)
		return
	}
	writeOK(w)
}
