package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (h *Handler) getUserIdentity(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeValidationError(r.Context(), w, "get_user_identity", errors.New("invalid user id"))
		return
	}
	identity, err := h.service.GetUserIdentity(r.Context(), userID)
	if err != nil {
		writeMappedError(r.Context(), w, "get_user_identity", err)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}
