package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "github.com/viralforge/identity-core/internal/adapters/cache"
	eventadapter "github.com/viralforge/identity-core/internal/adapters/events"
	grpcadapter "github.com/viralforge/identity-core/internal/adapters/grpc"
	httpadapter "github.com/viralforge/identity-core/internal/adapters/http"
	"github.com/viralforge/identity-core/internal/adapters/metrics"
	"github.com/viralforge/identity-core/internal/adapters/postgres"
	"github.com/viralforge/identity-core/internal/adapters/security"
	"github.com/viralforge/identity-core/internal/application"
	"github.com/viralforge/identity-core/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("bootstrapping identity service",
		"service", cfg.ServiceID,
		"http_port", cfg.HTTPPort,
		"grpc_port", cfg.GRPCPort,
	)

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if err := postgres.RunMigrations(ctx, db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	closeAll := func() {
		_ = redisClient.Close()
		_ = sqlDB.Close()
	}

	tokens, err := security.NewJWTIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("init jwt issuer: %w", err)
	}
	providers, err := security.NewProviderRegistry(providersConfig(cfg))
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("init oauth providers: %w", err)
	}
	logger.Info("oauth providers configured", "providers", providers.Names())

	var notifier ports.Notifier = eventadapter.NewLoggingNotifier(logger)
	if cfg.PublishNotifications {
		notifier = eventadapter.NewRedisNotifier(redisClient, cfg.NotificationChannel, logger)
	}

	registry := metrics.New(cfg.ServiceID)
	repos := postgres.NewRepositories(db)
	throttle := cacheadapter.NewThrottleStore(redisClient)

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			FrontendURL:           cfg.FrontendURL,
			FailedLoginThreshold:  cfg.FailedThreshold,
			LockoutDuration:       cfg.LockoutDuration,
			LoginRateLimitPerIP:   cfg.LoginRateLimitPerIP,
			LoginRateLimitWindow:  cfg.LoginRateLimitWindow,
			RecoveryRateLimit:     cfg.RecoveryRateLimit,
			PasswordResetTTL:      cfg.PasswordResetTTL,
			TwoFactorChallengeTTL: cfg.TwoFactorChallenge,
			OAuthStateTTL:         cfg.OAuthStateTTL,
		},
		Users:       repos.Users,
		Credentials: repos.Credentials,
		Recovery:    repos.Recovery,
		Federation:  repos.Federation,
		MFA:         repos.MFA,
		Sessions:    repos.Sessions,
		Lockouts:    throttle,
		RateLimiter: throttle,
		Challenges:  cacheadapter.NewTwoFactorChallengeStore(redisClient),
		OAuthState:  cacheadapter.NewOAuthStateStore(redisClient),
		Providers:   providers,
		Hasher:      security.NewPasswordHasher(cfg.BcryptCost),
		Tokens:      tokens,
		TOTP:        security.NewTOTP(cfg.JWTIssuer),
		Notifier:    notifier,
		Metrics:     registry,
		Logger:      logger,
	})

	handler := httpadapter.NewHandler(svc, httpadapter.Options{
		CookieSecure:      cfg.CookieSecure,
		CookieDomain:      cfg.CookieDomain,
		CORSOrigins:       cfg.CORSOrigins,
		IPRateLimit:       cfg.HTTPRateLimit,
		OAuthStateTTL:     cfg.OAuthStateTTL,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		Ready: func(ctx context.Context) error {
			if err := postgres.Ping(ctx, db); err != nil {
				return err
			}
			return redisClient.Ping(ctx).Err()
		},
		Metrics:  registry.Handler(),
		Observer: registry,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	grpcadapter.Register(grpcServer, grpcadapter.NewAuthInternalServer(svc))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("listen gRPC: %w", err)
	}

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		cleanupFn: func(context.Context) {
			closeAll()
		},
	}, nil
}

func providersConfig(cfg Config) security.ProvidersConfig {
	conv := func(name string) security.ProviderConfig {
		p := cfg.Providers[name]
		return security.ProviderConfig{
			ClientID:      p.ClientID,
			ClientSecret:  p.ClientSecret,
			RedirectURL:   p.RedirectURL,
			Scopes:        p.Scopes,
			TeamID:        p.TeamID,
			KeyID:         p.KeyID,
			PrivateKeyPEM: p.PrivateKeyPEM,
		}
	}
	return security.ProvidersConfig{
		HTTPClient: &http.Client{Timeout: cfg.OAuthHTTPTimeout},
		Google:     conv("google"),
		GitHub:     conv("github"),
		Microsoft:  conv("microsoft"),
		Discord:    conv("discord"),
		GitLab:     conv("gitlab"),
		Apple:      conv("apple"),
	}
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		r.logger.Error("server failure", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return runErr
}
