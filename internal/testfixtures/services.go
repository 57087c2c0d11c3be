package testfixtures

import (
	"io"
	"log/slog"
	"time"

	"github.com/example/roombooking/internal/application"
	"github.com/example/roombooking/internal/bootstrap"
	"github.com/example/roombooking/internal/persistence"
)

// TestSessionSecret keys session token hashes in tests.
const TestSessionSecret = "test-session-secret"

// FastArgon2idParams keeps password hashing cheap in tests.
var FastArgon2idParams = application.Argon2idParams{
	Memory:      1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  8,
	KeyLength:   16,
}

// FastPasswordHash hashes with FastArgon2idParams.
func FastPasswordHash(password string) (string, error) {
	return application.CreatePasswordHash(password, FastArgon2idParams)
}

// ServiceFactory assists tests with constructing application services using
// a controllable clock and cheap password hashing.
type ServiceFactory struct {
	Clock             *Clock
	Location          *time.Location
	SessionTTL        time.Duration
	PrincipalCacheTTL time.Duration
	Logger            *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:      NewClock(time.Time{}),
		Location:   time.UTC,
		SessionTTL: time.Hour,
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithPrincipalCache enables the principal cache with the given TTL.
func WithPrincipalCache(ttl time.Duration) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.PrincipalCacheTTL = ttl
	}
}

// WithLogger routes service logs to logger.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// NewServices builds the application services on top of store.
func (f *ServiceFactory) NewServices(store persistence.Store) *bootstrap.Services {
	logger := f.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return bootstrap.NewServices(store, bootstrap.Options{
		Now:               f.Clock.NowFunc(),
		Location:          f.Location,
		SessionSecret:     []byte(TestSessionSecret),
		SessionTTL:        f.SessionTTL,
		PrincipalCacheTTL: f.PrincipalCacheTTL,
		PasswordHasher:    FastPasswordHash,
		Logger:            logger,
	})
}
