// Package bootstrap wires the storage backends into the application services.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/roombooking/internal/application"
	"github.com/example/roombooking/internal/config"
	"github.com/example/roombooking/internal/persistence"
	"github.com/example/roombooking/internal/persistence/postgres"
	"github.com/example/roombooking/internal/persistence/sqlite"
	"github.com/example/roombooking/internal/scheduler"
)

// OpenStore opens the backend named by driver. The caller runs migrations.
func OpenStore(ctx context.Context, driver, sqlitePath, postgresDSN string, logger *slog.Logger) (persistence.Store, error) {
	switch driver {
	case config.DriverSQLite, "":
		store, err := sqlite.OpenWithLogger(sqlitePath, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, postgresDSN, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", driver)
}

// Options tunes the services built by NewServices.
type Options struct {
	Now               func() time.Time
	Location          *time.Location
	SessionSecret     []byte
	SessionTTL        time.Duration
	PrincipalCacheTTL time.Duration
	// PasswordHasher defaults to application.HashPassword.
	PasswordHasher application.PasswordHasher
	Logger         *slog.Logger
}

// Services groups the application services sharing one store.
type Services struct {
	Rooms    *application.RoomService
	Bookings *application.BookingService
	Users    *application.UserService
	Roles    *application.RoleService
	Auth     *application.AuthService
	Seeder   *application.Seeder
}

// NewServices builds every application service on top of store.
func NewServices(store persistence.Store, opts Options) *Services {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	roles := newRoleRepositoryAdapter(store)
	rooms := newRoomRepositoryAdapter(store)
	users := newUserRepositoryAdapter(store)
	bookings := newBookingRepositoryAdapter(store)
	sessions := newSessionRepositoryAdapter(store)

	validator := scheduler.NewValidator(now, loc)
	availability := application.NewAvailabilityEngineWithLogger(bookings, logger)

	auth := application.NewAuthServiceWithLogger(users, sessions, application.AuthConfig{
		SessionSecret:     opts.SessionSecret,
		SessionTTL:        opts.SessionTTL,
		PrincipalCacheTTL: opts.PrincipalCacheTTL,
	}, now, logger)

	return &Services{
		Rooms:    application.NewRoomServiceWithLogger(rooms, roles, availability, validator, now, logger),
		Bookings: application.NewBookingServiceWithLogger(bookings, availability, validator, now, logger),
		Users:    application.NewUserServiceWithLogger(users, roles, opts.PasswordHasher, auth, now, logger),
		Roles:    application.NewRoleService(roles, logger),
		Auth:     auth,
		Seeder:   application.NewSeeder(roles, users, rooms, opts.PasswordHasher, now, logger),
	}
}
