package http

import (
	"net/http"

	"github.com/viralforge/identity-core/internal/application"
)

// forgotPassword always acknowledges, whatever the address.
func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeBody(w, r, &req); err == nil {
		h.service.ForgotPassword(r.Context(), req.Email, h.clientInfo(r))
	}
	writeOK(w)
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req application.ResetPasswordRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "reset_password", err)
		return
	}
	if err := h.service.ResetPassword(r.Context(), req); err != nil {
		writeMappedError(r.Context(), w, "reset_password", err)
		return
	}
	writeOK(w)
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "verify_email", err)
		return
	}
	if err := h.service.VerifyEmail(r.Context(), req.Token); err != nil {
		writeMappedError(r.Context(), w, "verify_email", err)
		return
	}
	writeOK(w)
}

func (h *Handler) resendVerification(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	if err := h.service.ResendVerification(r.Context(), claims.UserID); err != nil {
		writeMappedError(r.Context(), w, "resend_verification", err)
		return
	}
	writeOK(w)
}
