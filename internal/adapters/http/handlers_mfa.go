package http

import (
	"net/http"

	"github.com/viralforge/identity-core/internal/application"
)

func (h *Handler) twoFactorStatus(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	status, err := h.service.TwoFactorStatus(r.Context(), claims.UserID)
	if err != nil {
		writeMappedError(r.Context(), w, "two_factor_status", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) twoFactorSetup(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	res, err := h.service.TwoFactorSetup(r.Context(), claims.UserID)
	if err != nil {
		writeMappedError(r.Context(), w, "two_factor_setup", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) twoFactorVerify(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "two_factor_verify", err)
		return
	}
	res, err := h.service.TwoFactorConfirm(r.Context(), claims.UserID, req.Code)
	if err != nil {
		writeMappedError(r.Context(), w, "two_factor_verify", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "recoveryCodes": res.RecoveryCodes})
}

func (h *Handler) twoFactorDisable(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	var req application.TwoFactorDisableRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "two_factor_disable", err)
		return
	}
	if err := h.service.TwoFactorDisable(r.Context(), claims.UserID, req); err != nil {
		writeMappedError(r.Context(), w, "two_factor_disable", err)
		return
	}
	writeOK(w)
}
