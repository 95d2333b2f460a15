package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/viralforge/identity-core/internal/application"
)

const maxBodyBytes = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("request body must be valid JSON")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

const maxUserAgentBytes = 512

// readIP uses the socket peer unless the service sits behind a proxy that
// overwrites the forwarding headers. The header order matches
// httprate.KeyByRealIP so limits and session records agree.
func (h *Handler) readIP(r *http.Request) string {
	if h.opts.TrustProxyHeaders {
		for _, name := range []string{"True-Client-IP", "X-Real-IP"} {
			if v := strings.TrimSpace(r.Header.Get(name)); v != "" {
				return v
			}
		}
		if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func (h *Handler) clientInfo(r *http.Request) application.ClientInfo {
	return application.ClientInfo{
		UserAgent: clipUTF8(strings.ToValidUTF8(r.UserAgent(), ""), maxUserAgentBytes),
		IPAddress: h.readIP(r),
	}
}

// clipUTF8 cuts s to at most max bytes on a rune boundary.
func clipUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// setAuthCookie mirrors the bearer token into an HttpOnly cookie that lives
// as long as the token.
func (h *Handler) setAuthCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.opts.CookieDomain,
		MaxAge:   maxAge,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.opts.CookieDomain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// setOAuthStateCookie binds an authorize request to this browser. The
// callback may arrive as a cross-site form POST, which only carries
// SameSite=None cookies.
func (h *Handler) setOAuthStateCookie(w http.ResponseWriter, state string) {
	ttl := h.opts.OAuthStateTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	sameSite := http.SameSiteLaxMode
	if h.opts.CookieSecure {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    state,
		Path:     oauthCookiePath,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.opts.CookieSecure,
		SameSite: sameSite,
	})
}

func (h *Handler) clearOAuthStateCookie(w http.ResponseWriter) {
	sameSite := http.SameSiteLaxMode
	if h.opts.CookieSecure {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    "",
		Path:     oauthCookiePath,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.opts.CookieSecure,
		SameSite: sameSite,
	})
}

func writeMappedError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	status, code, msg := mapDomainError(err)
	logHTTPOperationError(ctx, operation, status, code, msg, err)
	writeError(w, status, code, msg)
}

func writeValidationError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	code := "VALIDATION_ERROR"
	msg := err.Error()
	logHTTPOperationError(ctx, operation, http.StatusBadRequest, code, msg, err)
	writeError(w, http.StatusBadRequest, code, msg)
}
