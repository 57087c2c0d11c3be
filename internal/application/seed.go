package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/roombooking/internal/persistence"
)

// Seed roles.
const (
	RoleManager  = "manager"
	RoleEmployee = "employee"
	RoleGuest    = "guest"
)

// SeedRoles is the catalog installed into an empty database.
var SeedRoles = []string{RoleAdmin, RoleManager, RoleEmployee, RoleGuest}

// SeedRooms are the sample rooms installed into an empty database.
var SeedRooms = []RoomInput{
	{Number: "A101", Capacity: 10, Description: "Meeting room with projector"},
	{Number: "A102", Capacity: 6, Description: "Small meeting room"},
	{Number: "B201", Capacity: 20, Description: "Training room", RequestOnly: true},
	{Number: "B202", Capacity: 4, Description: "Quiet room", Roles: []string{RoleEmployee, RoleManager}},
	{Number: "C301", Capacity: 50, Description: "Auditorium", RequestOnly: true, Roles: []string{RoleManager}},
	{Number: "C302", Capacity: 8, Description: "Board room", Roles: []string{RoleManager, RoleAdmin}},
}

// SeedParams configures the initial administrator.
type SeedParams struct {
	AdminUsername string
	AdminPassword string
}

// Seeder installs roles, an administrator and sample rooms into a database
// that has no users yet.
type Seeder struct {
	roles  RoleRepository
	users  UserRepository
	rooms  RoomRepository
	hash   PasswordHasher
	now    func() time.Time
	logger *slog.Logger
}

// NewSeeder constructs a Seeder.
func NewSeeder(roles RoleRepository, users UserRepository, rooms RoomRepository, hash PasswordHasher, now func() time.Time, logger *slog.Logger) *Seeder {
	if hash == nil {
		hash = HashPassword
	}
	if now == nil {
		now = time.Now
	}
	return &Seeder{roles: roles, users: users, rooms: rooms, hash: hash, now: now, logger: defaultLogger(logger)}
}

// Seed reports whether it wrote anything. A database that already holds a
// user is left untouched.
func (s *Seeder) Seed(ctx context.Context, params SeedParams) (seeded bool, err error) {
	if s == nil {
		return false, fmt.Errorf("Seeder is nil")
	}
	logger := serviceLogger(ctx, s.logger, "Seeder", "Seed")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to seed database", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "seed finished", "seeded", seeded)
	}()

	if params.AdminPassword == "" {
		return false, errors.New("seed: admin password is required")
	}
	username := params.AdminUsername
	if username == "" {
		username = RoleAdmin
	}

	count, err := s.users.CountUsers(ctx)
	if err != nil {
		return false, storageError("count users", err)
	}
	if count > 0 {
		return false, nil
	}

	for _, role := range SeedRoles {
		if err := s.roles.CreateRole(ctx, role); err != nil && !errors.Is(err, persistence.ErrDuplicate) {
			return false, storageError("create role", err)
		}
	}

	hash, err := s.hash(params.AdminPassword)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC().Truncate(time.Second)
	if _, err := s.users.CreateUser(ctx, UserCredentials{
		User:         User{Username: username, Name: "Administrator", Roles: []string{RoleAdmin}, CreatedAt: now},
		PasswordHash: hash,
	}); err != nil {
		return false, storageError("create admin", err)
	}

	for _, input := range SeedRooms {
		err := s.rooms.CreateRoom(ctx, Room{
			Number:       input.Number,
			Capacity:     input.Capacity,
			Description:  input.Description,
			RequestOnly:  input.RequestOnly,
			AllowedRoles: normalizeRoles(input.Roles),
			CreatedAt:    now,
		})
		if err != nil && !errors.Is(err, persistence.ErrDuplicate) {
			return false, storageError("create room", err)
		}
	}
	return true, nil
}
