package persistence

import (
	"context"
	"time"
)

// RoleRepository exposes read access to the role catalog.
type RoleRepository interface {
	CreateRole(ctx context.Context, role Role) error
	ListRoles(ctx context.Context) ([]Role, error)
	MissingRoles(ctx context.Context, names []string) ([]string, error)
}

// UserRepository exposes account operations. CreateUser assigns the ID.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	SetUserRoles(ctx context.Context, id int64, roles []string) error
	CountUsers(ctx context.Context) (int, error)
}

// RoomRepository exposes room catalog operations. Deleting a room removes
// its bookings.
type RoomRepository interface {
	CreateRoom(ctx context.Context, room Room) error
	GetRoom(ctx context.Context, number string) (Room, error)
	ListRooms(ctx context.Context, minCapacity int) ([]Room, error)
	DeleteRoom(ctx context.Context, number string) error
}

// BookingQuery filters the accepted bookings overlapping a window.
// An empty RoomNumber matches every room and a zero ExcludeID excludes nothing.
type BookingQuery struct {
	RoomNumber string
	Start      time.Time
	End        time.Time
	ExcludeID  int64
}

// BookingReader is the read side shared by the repository and its transactions.
type BookingReader interface {
	GetBooking(ctx context.Context, id int64) (Booking, error)
	ListAcceptedOverlapping(ctx context.Context, query BookingQuery) ([]Booking, error)
}

// BookingTx is the set of operations available inside a serialized booking
// transaction. Availability checks and the writes that depend on them must
// go through the same BookingTx.
type BookingTx interface {
	BookingReader
	GetRoom(ctx context.Context, number string) (Room, error)
	InsertBooking(ctx context.Context, booking Booking) (Booking, error)
	UpdateBookingTimes(ctx context.Context, id int64, start, end time.Time) error
	AcceptBooking(ctx context.Context, id int64, decidedAt time.Time) error
}

// BookingRepository stores bookings.
type BookingRepository interface {
	BookingReader
	ListBookingsForUser(ctx context.Context, userID int64) ([]Booking, error)
	ListPendingBookings(ctx context.Context) ([]Booking, error)
	DeleteBooking(ctx context.Context, id int64) error
	DeleteUserBooking(ctx context.Context, userID, id int64) error
	WithinBookingTx(ctx context.Context, fn func(tx BookingTx) error) error
}

// SessionRepository stores authentication session state keyed by token hash.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, tokenHash string) (Session, error)
	RevokeSession(ctx context.Context, tokenHash string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}

// Store is implemented by each storage backend.
type Store interface {
	RoleRepository
	UserRepository
	RoomRepository
	BookingRepository
	SessionRepository

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
