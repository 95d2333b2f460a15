package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/identity-core/internal/ports"
)

const (
	oauthStateCookieName = "oauth_state"
	oauthCookiePath      = "/auth/oauth"
)

func (h *Handler) oauthProviders(w http.ResponseWriter, _ *http.Request) {
	names := h.service.ProviderNames()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": names})
}

func (h *Handler) oauthStart(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	start, err := h.service.OAuthAuthorize(r.Context(), provider, r.URL.Query().Get("redirect"))
	if err != nil {
		logHTTPOperationError(r.Context(), "oauth_start", http.StatusFound, "OAUTH_START_FAILED", "oauth start failed", err)
		http.Redirect(w, r, h.service.OAuthFailureRedirect(err), http.StatusFound)
		return
	}
	h.setOAuthStateCookie(w, start.State)
	http.Redirect(w, r, start.URL, http.StatusFound)
}

// oauthCallback accepts query callbacks and form_post callbacks. Both outcomes
// are browser redirects; failures carry only a coarse code.
func (h *Handler) oauthCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	callback, err := readProviderCallback(w, r)
	if err != nil {
		http.Redirect(w, r, h.service.OAuthFailureRedirect(err), http.StatusFound)
		return
	}
	if c, err := r.Cookie(oauthStateCookieName); err == nil {
		callback.BrowserState = c.Value
	}
	h.clearOAuthStateCookie(w)

	result, err := h.service.OAuthCallback(r.Context(), provider, callback, h.clientInfo(r))
	if err != nil {
		http.Redirect(w, r, h.service.OAuthFailureRedirect(err), http.StatusFound)
		return
	}
	h.setAuthCookie(w, result.Auth.Token, result.Auth.ExpiresAt)
	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

func readProviderCallback(w http.ResponseWriter, r *http.Request) (ports.ProviderCallback, error) {
	values := r.URL.Query()
	if r.Method == http.MethodPost {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return ports.ProviderCallback{}, err
		}
		values = r.PostForm
	}
	form := make(map[string]string, len(values))
	for key := range values {
		form[key] = values.Get(key)
	}
	return ports.ProviderCallback{
		Code:       values.Get("code"),
		State:      values.Get("state"),
		Error:      values.Get("error"),
		FormValues: form,
	}, nil
}
