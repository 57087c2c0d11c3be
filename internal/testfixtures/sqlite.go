package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/roombooking/internal/application"
	"github.com/example/roombooking/internal/bootstrap"
	"github.com/example/roombooking/internal/persistence"
	"github.com/example/roombooking/internal/persistence/sqlite"
)

// SQLiteHarness provides a migrated temporary SQLite store together with the
// application services built on it.
type SQLiteHarness struct {
	Store    *sqlite.Storage
	Services *bootstrap.Services
	Clock    *Clock

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. Callers may optionally invoke Close, but the helper
// will also register a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB, opts ...ServiceFactoryOption) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "roombooking.db")
	storage, err := sqlite.Open(path)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := storage.Migrate(context.Background()); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	factory := NewServiceFactory(opts...)
	harness := &SQLiteHarness{
		Store:    storage,
		Services: factory.NewServices(storage),
		Clock:    factory.Clock,
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// SeedRoles inserts the standard role catalog.
func (h *SQLiteHarness) SeedRoles(tb testing.TB) {
	tb.Helper()
	for _, role := range application.SeedRoles {
		if err := h.Store.CreateRole(context.Background(), persistence.Role{Name: role}); err != nil {
			tb.Fatalf("failed to create role %s: %v", role, err)
		}
	}
}

// CreateUser stores the fixture and returns it with its assigned ID. The
// fixture's roles must already exist.
func (h *SQLiteHarness) CreateUser(tb testing.TB, fixture UserFixture) UserFixture {
	tb.Helper()
	hash, err := FastPasswordHash(fixture.Password)
	if err != nil {
		tb.Fatalf("failed to hash password: %v", err)
	}
	stored, err := h.Store.CreateUser(context.Background(), fixture.Persistence(hash))
	if err != nil {
		tb.Fatalf("failed to create user %s: %v", fixture.Username, err)
	}
	fixture.ID = stored.ID
	return fixture
}

// CreateRoom stores the fixture.
func (h *SQLiteHarness) CreateRoom(tb testing.TB, fixture RoomFixture) RoomFixture {
	tb.Helper()
	if err := h.Store.CreateRoom(context.Background(), fixture.Persistence()); err != nil {
		tb.Fatalf("failed to create room %s: %v", fixture.Number, err)
	}
	return fixture
}

// Login authenticates the fixture and returns its bearer token.
func (h *SQLiteHarness) Login(tb testing.TB, fixture UserFixture) string {
	tb.Helper()
	result, err := h.Services.Auth.Authenticate(context.Background(), application.AuthenticateParams{
		Username: fixture.Username,
		Password: fixture.Password,
	})
	if err != nil {
		tb.Fatalf("failed to log in %s: %v", fixture.Username, err)
	}
	return result.Session.Token
}
