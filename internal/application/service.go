package application

import (
	"log/slog"
	"sync"
	"time"

	"github.com/viralforge/identity-core/internal/ports"
)

type Service struct {
	cfg         Config
	users       ports.UserRepository
	credentials ports.CredentialRepository
	recovery    ports.RecoveryRepository
	federation  ports.FederationRepository
	mfa         ports.MFARepository
	sessions    ports.SessionRepository
	lockouts    ports.LockoutStore
	limiter     ports.RateLimiter
	challenges  ports.TwoFactorChallengeStore
	oauthState  ports.OAuthStateStore
	providers   ports.ProviderDirectory
	hasher      ports.PasswordHasher
	tokens      ports.TokenIssuer
	totp        ports.TOTP
	notifier    ports.Notifier
	metrics     ports.AuthMetrics
	logger      *slog.Logger
	nowFn       func() time.Time

	// dummyHash is verified against when the email is unknown so that
	// path costs the same as a wrong password.
	dummyOnce sync.Once
	dummyHash string
}

type Dependencies struct {
	Config      Config
	Users       ports.UserRepository
	Credentials ports.CredentialRepository
	Recovery    ports.RecoveryRepository
	Federation  ports.FederationRepository
	MFA         ports.MFARepository
	Sessions    ports.SessionRepository
	Lockouts    ports.LockoutStore
	RateLimiter ports.RateLimiter
	Challenges  ports.TwoFactorChallengeStore
	OAuthState  ports.OAuthStateStore
	Providers   ports.ProviderDirectory
	Hasher      ports.PasswordHasher
	Tokens      ports.TokenIssuer
	TOTP        ports.TOTP
	Notifier    ports.Notifier
	Metrics     ports.AuthMetrics
	Logger      *slog.Logger
	// Now overrides the clock. Tests only.
	Now func() time.Time
}

func NewService(deps Dependencies) *Service {
	s := &Service{
		cfg:         deps.Config.withDefaults(),
		users:       deps.Users,
		credentials: deps.Credentials,
		recovery:    deps.Recovery,
		federation:  deps.Federation,
		mfa:         deps.MFA,
		sessions:    deps.Sessions,
		lockouts:    deps.Lockouts,
		limiter:     deps.RateLimiter,
		challenges:  deps.Challenges,
		oauthState:  deps.OAuthState,
		providers:   deps.Providers,
		hasher:      deps.Hasher,
		tokens:      deps.Tokens,
		totp:        deps.TOTP,
		notifier:    deps.Notifier,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		nowFn:       func() time.Time { return time.Now().UTC() },
	}
	if deps.Now != nil {
		s.nowFn = deps.Now
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

type noopMetrics struct{}

func (noopMetrics) Registration(string)          {}
func (noopMetrics) Login(string, string)         {}
func (noopMetrics) OAuthCallback(string, string) {}
func (noopMetrics) TwoFactor(string, string)     {}
func (noopMetrics) TokenIssued(string)           {}
