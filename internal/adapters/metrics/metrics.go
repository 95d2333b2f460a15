package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns every collector this service exports.
type Registry struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	registrations   *prometheus.CounterVec
	logins          *prometheus.CounterVec
	oauthCallbacks  *prometheus.CounterVec
	twoFactorEvents *prometheus.CounterVec
	tokensIssued    *prometheus.CounterVec
}

func New(serviceName string) *Registry {
	constLabels := prometheus.Labels{"service": serviceName}
	r := &Registry{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "Duration of HTTP requests.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"method", "route"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "auth_registrations_total",
			Help:        "Total number of registration attempts.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "auth_logins_total",
			Help:        "Total number of login attempts.",
			ConstLabels: constLabels,
		}, []string{"method", "result"}),
		oauthCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "auth_oauth_callbacks_total",
			Help:        "Total number of federated sign-in callbacks.",
			ConstLabels: constLabels,
		}, []string{"provider", "result"}),
		twoFactorEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "auth_two_factor_events_total",
			Help:        "Second-factor enrollment and verification events.",
			ConstLabels: constLabels,
		}, []string{"event", "result"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "auth_tokens_issued_total",
			Help:        "Total number of bearer tokens issued.",
			ConstLabels: constLabels,
		}, []string{"flow"}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.httpRequests,
		r.httpDuration,
		r.registrations,
		r.logins,
		r.oauthCallbacks,
		r.twoFactorEvents,
		r.tokensIssued,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

func (r *Registry) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (r *Registry) Registration(result string) {
	r.registrations.WithLabelValues(result).Inc()
}

func (r *Registry) Login(method, result string) {
	r.logins.WithLabelValues(method, result).Inc()
}

func (r *Registry) OAuthCallback(provider, result string) {
	r.oauthCallbacks.WithLabelValues(provider, result).Inc()
}

func (r *Registry) TwoFactor(event, result string) {
	r.twoFactorEvents.WithLabelValues(event, result).Inc()
}

func (r *Registry) TokenIssued(flow string) {
	r.tokensIssued.WithLabelValues(flow).Inc()
}
