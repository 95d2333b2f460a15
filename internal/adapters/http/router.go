package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/viralforge/identity-core/internal/application"
	"github.com/viralforge/identity-core/internal/domain"
)

// Options configures the transport concerns the application layer does not see.
type Options struct {
	CookieSecure bool
	CookieDomain string
	// OAuthStateTTL bounds the state cookie set by the authorize redirect.
	OAuthStateTTL time.Duration
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Only enable it behind a proxy that sets those headers.
	TrustProxyHeaders bool
	// CORSOrigins are the browser origins allowed to call with credentials.
	CORSOrigins []string
	// IPRateLimit caps /auth requests per client address per minute. Zero disables it.
	IPRateLimit int
	// Ready reports whether backing stores are reachable.
	Ready func(ctx context.Context) error
	// Metrics is served on /metrics when set.
	Metrics  http.Handler
	Observer RequestObserver
}

// Handler is the HTTP adapter entrypoint for auth use-cases.
type Handler struct {
	service *application.Service
	opts    Options
}

// NewHandler constructs an HTTP handler bound to application service.
func NewHandler(service *application.Service, opts Options) *Handler {
	return &Handler{service: service, opts: opts}
}

// NewRouter registers HTTP routes and the middleware stack.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(accessLogMiddleware(handler.opts.Observer))
	if len(handler.opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   handler.opts.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	if handler.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", handler.opts.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		if handler.opts.IPRateLimit > 0 {
			keyFunc := httprate.KeyByIP
			if handler.opts.TrustProxyHeaders {
				keyFunc = httprate.KeyByRealIP
			}
			r.Use(httprate.Limit(handler.opts.IPRateLimit, time.Minute,
				httprate.WithKeyFuncs(keyFunc),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					writeMappedError(r.Context(), w, "ip_rate_limit", domain.ErrRateLimited)
				}),
			))
		}
		r.Post("/register", handler.register)
		r.Post("/login", handler.login)
		r.Post("/logout", handler.logout)
		r.Get("/me", handler.me)
		r.Post("/forgot-password", handler.forgotPassword)
		r.Post("/reset-password", handler.resetPassword)
		r.Post("/verify-email", handler.verifyEmail)
		r.Post("/2fa/login", handler.twoFactorLogin)

		r.Get("/oauth/providers", handler.oauthProviders)
		r.Get("/oauth/{provider}", handler.oauthStart)
		r.Get("/oauth/{provider}/callback", handler.oauthCallback)
		r.Post("/oauth/{provider}/callback", handler.oauthCallback)

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Post("/change-password", handler.changePassword)
			r.Post("/verify-email/resend", handler.resendVerification)
			r.Get("/2fa/status", handler.twoFactorStatus)
			r.Post("/2fa/setup", handler.twoFactorSetup)
			r.Post("/2fa/verify", handler.twoFactorVerify)
			r.Post("/2fa/disable", handler.twoFactorDisable)
			r.Get("/sessions", handler.listSessions)
			r.Delete("/sessions", handler.revokeOtherSessions)
			r.Delete("/sessions/{sessionID}", handler.revokeSession)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(handler.authMiddleware)
		r.Use(requireRole(domain.RoleAdmin))
		r.Get("/users/{userID}", handler.getUserIdentity)
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.opts.Ready != nil {
		if err := h.opts.Ready(r.Context()); err != nil {
			logHTTPOperationError(r.Context(), "readyz", http.StatusServiceUnavailable, "NOT_READY", "dependency unavailable", err)
			writeError(w, http.StatusServiceUnavailable, "NOT_READY", "dependency unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
