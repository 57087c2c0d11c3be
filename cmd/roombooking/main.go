package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/roombooking/internal/application"
	"github.com/example/roombooking/internal/bootstrap"
	"github.com/example/roombooking/internal/config"
	httptransport "github.com/example/roombooking/internal/http"
	"github.com/example/roombooking/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		os.Exit(1)
	}
}

// run starts the service and blocks until ctx is cancelled. Failures are
// logged before they are returned.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet("roombooking", flag.ContinueOnError)
	flags.SetOutput(stdout)
	configPath := flags.String("config", "", "path to a YAML configuration file")
	seed := flags.Bool("seed", false, "seed an empty database with roles, an administrator and sample rooms")
	migrateOnly := flags.Bool("migrate-only", false, "apply migrations (and seed when requested), then exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.New(stdout, slog.LevelInfo).Error("failed to load configuration", "error", err)
		return err
	}
	logger := logging.New(stdout, cfg.LogLevel)

	store, err := bootstrap.OpenStore(ctx, cfg.DBDriver, cfg.SQLitePath, cfg.PostgresDSN, logger)
	if err != nil {
		logger.Error("failed to open storage", "driver", cfg.DBDriver, "error", err)
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := store.Migrate(ctx); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		return err
	}

	services := bootstrap.NewServices(store, bootstrap.Options{
		Now:               time.Now,
		Location:          cfg.DefaultTimezone,
		SessionSecret:     []byte(cfg.SessionSecret),
		SessionTTL:        cfg.SessionTTL,
		PrincipalCacheTTL: cfg.PrincipalCacheTTL,
		Logger:            logger,
	})

	if *seed || cfg.Seed {
		if err := seedDatabase(ctx, services.Seeder, cfg, logger); err != nil {
			return err
		}
	}

	if *migrateOnly {
		logger.Info("database is up to date", "driver", cfg.DBDriver)
		return nil
	}

	secure := cfg.Production()
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:         httptransport.NewAuthHandler(services.Auth, secure, logger),
		Users:        httptransport.NewUserHandler(services.Users, services.Auth, secure, logger),
		Rooms:        httptransport.NewRoomHandler(services.Rooms, logger),
		Bookings:     httptransport.NewBookingHandler(services.Bookings, logger),
		Roles:        httptransport.NewRoleHandler(services.Roles, logger),
		Health:       httptransport.NewHealthHandler(store, time.Now, logger),
		Sessions:     services.Auth,
		LoginLimiter: httptransport.NewIPRateLimiter(rate.Limit(cfg.LoginRatePerSec), cfg.LoginRateBurst),
		CORSOrigins:  cfg.CORSAllowedOrigins,
		Logger:       logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("room booking API listening", "addr", server.Addr, "environment", cfg.Environment, "driver", cfg.DBDriver)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}

func seedDatabase(ctx context.Context, seeder *application.Seeder, cfg config.Config, logger *slog.Logger) error {
	password := cfg.SeedAdminPassword
	generated := password == ""
	if generated {
		password = randomHex(12)
	}

	seeded, err := seeder.Seed(ctx, application.SeedParams{
		AdminUsername: cfg.SeedAdminUsername,
		AdminPassword: password,
	})
	if err != nil {
		logger.Error("failed to seed database", "error", err, "error_kind", application.ErrorKind(err))
		return err
	}
	if !seeded {
		logger.Info("database already has users, skipping seed")
		return nil
	}
	if generated {
		logger.Warn("generated initial administrator password, change it after first login",
			"username", cfg.SeedAdminUsername,
			"password", password,
		)
	}
	return nil
}

func randomHex(bytes int) string {
	if bytes <= 0 {
		bytes = 16
	}
	buf := make([]byte, bytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
