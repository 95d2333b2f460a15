package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const minJWTSecretLength = 32

// ProviderNames lists every federated provider the service knows how to speak to.
var ProviderNames = []string{"google", "github", "microsoft", "discord", "gitlab", "apple"}

// ProviderSettings is the client registration for one federated provider.
// A provider without a client id stays disabled.
type ProviderSettings struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// Apple only.
	TeamID        string
	KeyID         string
	PrivateKeyPEM string
}

// Config is the resolved runtime configuration.
// It merges file defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string
	MaxDBConns  int32

	JWTSecret  string
	JWTIssuer  string
	TokenTTL   time.Duration
	BcryptCost int

	FrontendURL   string
	PublicBaseURL string
	CookieSecure  bool
	CookieDomain  string
	CORSOrigins   []string
	HTTPRateLimit int
	// TrustProxyHeaders reads client addresses from forwarding headers.
	TrustProxyHeaders bool

	FailedThreshold      int
	LockoutDuration      time.Duration
	LoginRateLimitPerIP  int
	LoginRateLimitWindow time.Duration
	RecoveryRateLimit    int
	PasswordResetTTL     time.Duration
	TwoFactorChallenge   time.Duration
	OAuthStateTTL        time.Duration
	OAuthHTTPTimeout     time.Duration

	NotificationChannel  string
	PublishNotifications bool

	Providers map[string]ProviderSettings
}

// configFile mirrors the YAML schema used by configs/default.yaml.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
		MaxDBConns  int    `yaml:"max_db_conns"`
	} `yaml:"dependencies"`
	Auth struct {
		Issuer          string   `yaml:"issuer"`
		TokenTTLHours   int      `yaml:"token_ttl_hours"`
		BcryptCost      int      `yaml:"bcrypt_cost"`
		FrontendURL     string   `yaml:"frontend_url"`
		PublicBaseURL   string   `yaml:"public_base_url"`
		CookieSecure    *bool    `yaml:"cookie_secure"`
		CookieDomain    string   `yaml:"cookie_domain"`
		CORSOrigins     []string `yaml:"cors_origins"`
		TrustProxy      *bool    `yaml:"trust_proxy_headers"`
		FailedThreshold int      `yaml:"failed_login_threshold"`
		LockoutMinutes  int      `yaml:"lockout_minutes"`
	} `yaml:"auth"`
	OAuth struct {
		HTTPTimeoutSeconds int `yaml:"http_timeout_seconds"`
		Providers          map[string]struct {
			ClientID    string   `yaml:"client_id"`
			RedirectURL string   `yaml:"redirect_url"`
			Scopes      []string `yaml:"scopes"`
			TeamID      string   `yaml:"team_id"`
			KeyID       string   `yaml:"key_id"`
		} `yaml:"providers"`
	} `yaml:"oauth"`
	Notifications struct {
		Channel string `yaml:"channel"`
		Publish *bool  `yaml:"publish"`
	} `yaml:"notifications"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// A missing file is not an error; a malformed one is.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:            "identity-core",
		HTTPPort:             8080,
		GRPCPort:             9090,
		MaxDBConns:           20,
		JWTIssuer:            "identity-core",
		TokenTTL:             7 * 24 * time.Hour,
		BcryptCost:           12,
		FrontendURL:          "http://localhost:3000",
		PublicBaseURL:        "http://localhost:8080",
		CookieSecure:         true,
		HTTPRateLimit:        300,
		FailedThreshold:      5,
		LockoutDuration:      15 * time.Minute,
		LoginRateLimitPerIP:  30,
		LoginRateLimitWindow: time.Minute,
		RecoveryRateLimit:    3,
		PasswordResetTTL:     time.Hour,
		TwoFactorChallenge:   5 * time.Minute,
		OAuthStateTTL:        10 * time.Minute,
		OAuthHTTPTimeout:     10 * time.Second,
		NotificationChannel:  "identity.notifications",
		PublishNotifications: true,
		Providers:            map[string]ProviderSettings{},
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		if err := applyConfigFile(&cfg, raw); err != nil {
			return Config{}, err
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.JWTSecret = envOrDefault("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTIssuer = envOrDefault("JWT_ISSUER", cfg.JWTIssuer)
	cfg.FrontendURL = strings.TrimRight(envOrDefault("FRONTEND_URL", cfg.FrontendURL), "/")
	cfg.PublicBaseURL = strings.TrimRight(envOrDefault("PUBLIC_BASE_URL", cfg.PublicBaseURL), "/")
	cfg.CookieSecure = envBool("COOKIE_SECURE", cfg.CookieSecure)
	cfg.CookieDomain = envOrDefault("COOKIE_DOMAIN", cfg.CookieDomain)
	cfg.CORSOrigins = envCSV("CORS_ORIGINS", cfg.CORSOrigins)
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{cfg.FrontendURL}
	}
	cfg.TrustProxyHeaders = envBool("TRUST_PROXY_HEADERS", cfg.TrustProxyHeaders)
	cfg.NotificationChannel = envOrDefault("NOTIFICATION_CHANNEL", cfg.NotificationChannel)
	cfg.PublishNotifications = envBool("PUBLISH_NOTIFICATIONS", cfg.PublishNotifications)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.BcryptCost = envInt("BCRYPT_ROUNDS", cfg.BcryptCost)
	cfg.FailedThreshold = envInt("FAILED_LOGIN_THRESHOLD", cfg.FailedThreshold)
	cfg.LoginRateLimitPerIP = envInt("LOGIN_RATE_LIMIT_PER_IP", cfg.LoginRateLimitPerIP)
	cfg.HTTPRateLimit = envInt("HTTP_RATE_LIMIT_PER_MINUTE", cfg.HTTPRateLimit)
	cfg.RecoveryRateLimit = envInt("RECOVERY_RATE_LIMIT", cfg.RecoveryRateLimit)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))

	cfg.TokenTTL = time.Duration(envInt("TOKEN_EXPIRY_HOURS", int(cfg.TokenTTL.Hours()))) * time.Hour
	cfg.LockoutDuration = time.Duration(envInt("ACCOUNT_LOCKOUT_MINUTES", int(cfg.LockoutDuration.Minutes()))) * time.Minute
	cfg.PasswordResetTTL = time.Duration(envInt("PASSWORD_RESET_TTL_MINUTES", int(cfg.PasswordResetTTL.Minutes()))) * time.Minute
	cfg.OAuthHTTPTimeout = time.Duration(envInt("OAUTH_HTTP_TIMEOUT_SECONDS", int(cfg.OAuthHTTPTimeout.Seconds()))) * time.Second

	for _, name := range ProviderNames {
		cfg.Providers[name] = providerFromEnv(name, cfg.Providers[name], cfg.PublicBaseURL)
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if len(cfg.JWTSecret) < minJWTSecretLength {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLength)
	}
	return cfg, nil
}

func applyConfigFile(cfg *Config, raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if f.Service.ID != "" {
		cfg.ServiceID = f.Service.ID
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		cfg.GRPCPort = f.Service.GRPCPort
	}
	if f.Dependencies.PostgresURL != "" {
		cfg.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if f.Dependencies.MaxDBConns > 0 {
		cfg.MaxDBConns = int32(f.Dependencies.MaxDBConns)
	}
	if f.Auth.Issuer != "" {
		cfg.JWTIssuer = f.Auth.Issuer
	}
	if f.Auth.TokenTTLHours > 0 {
		cfg.TokenTTL = time.Duration(f.Auth.TokenTTLHours) * time.Hour
	}
	if f.Auth.BcryptCost > 0 {
		cfg.BcryptCost = f.Auth.BcryptCost
	}
	if f.Auth.FrontendURL != "" {
		cfg.FrontendURL = f.Auth.FrontendURL
	}
	if f.Auth.PublicBaseURL != "" {
		cfg.PublicBaseURL = f.Auth.PublicBaseURL
	}
	if f.Auth.CookieSecure != nil {
		cfg.CookieSecure = *f.Auth.CookieSecure
	}
	if f.Auth.CookieDomain != "" {
		cfg.CookieDomain = f.Auth.CookieDomain
	}
	if len(f.Auth.CORSOrigins) > 0 {
		cfg.CORSOrigins = f.Auth.CORSOrigins
	}
	if f.Auth.TrustProxy != nil {
		cfg.TrustProxyHeaders = *f.Auth.TrustProxy
	}
	if f.Auth.FailedThreshold > 0 {
		cfg.FailedThreshold = f.Auth.FailedThreshold
	}
	if f.Auth.LockoutMinutes > 0 {
		cfg.LockoutDuration = time.Duration(f.Auth.LockoutMinutes) * time.Minute
	}
	if f.OAuth.HTTPTimeoutSeconds > 0 {
		cfg.OAuthHTTPTimeout = time.Duration(f.OAuth.HTTPTimeoutSeconds) * time.Second
	}
	for name, p := range f.OAuth.Providers {
		name = strings.ToLower(strings.TrimSpace(name))
		cfg.Providers[name] = ProviderSettings{
			ClientID:    p.ClientID,
			RedirectURL: p.RedirectURL,
			Scopes:      p.Scopes,
			TeamID:      p.TeamID,
			KeyID:       p.KeyID,
		}
	}
	if f.Notifications.Channel != "" {
		cfg.NotificationChannel = f.Notifications.Channel
	}
	if f.Notifications.Publish != nil {
		cfg.PublishNotifications = *f.Notifications.Publish
	}
	return nil
}

// providerFromEnv layers <NAME>_* variables over file settings. Secrets are
// only ever read from the environment.
func providerFromEnv(name string, p ProviderSettings, publicBaseURL string) ProviderSettings {
	prefix := strings.ToUpper(name) + "_"
	p.ClientID = envOrDefault(prefix+"CLIENT_ID", p.ClientID)
	p.ClientSecret = envOrDefault(prefix+"CLIENT_SECRET", p.ClientSecret)
	p.RedirectURL = envOrDefault(prefix+"REDIRECT_URL", p.RedirectURL)
	p.Scopes = envCSV(prefix+"SCOPES", p.Scopes)
	if name == "apple" {
		p.TeamID = envOrDefault("APPLE_TEAM_ID", p.TeamID)
		p.KeyID = envOrDefault("APPLE_KEY_ID", p.KeyID)
		p.PrivateKeyPEM = strings.ReplaceAll(envOrDefault("APPLE_PRIVATE_KEY", p.PrivateKeyPEM), `\n`, "\n")
	}
	if p.RedirectURL == "" && p.ClientID != "" {
		p.RedirectURL = publicBaseURL + "/auth/oauth/" + name + "/callback"
	}
	return p
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
