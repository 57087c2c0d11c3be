package application

import (
	"time"

	"github.com/example/roombooking/internal/scheduler"
)

// Room represents a bookable room in the directory.
type Room struct {
	Number       string
	Capacity     int
	Description  string
	RequestOnly  bool
	AllowedRoles []string
	CreatedAt    time.Time
}

// RoomInput captures caller provided room fields.
type RoomInput struct {
	Number      string
	Capacity    int
	Description string
	RequestOnly bool
	Roles       []string
}

// CreateRoomParams wraps the data required to create a room.
type CreateRoomParams struct {
	Principal Principal
	Input     RoomInput
}

// SearchRoomsParams filters the room listing. Start and End are raw
// timestamps; both or neither must be set.
type SearchRoomsParams struct {
	Principal   Principal
	MinCapacity int
	Start       string
	End         string
}

// RoomAvailability annotates a room with its state for one search.
type RoomAvailability struct {
	Room            Room
	Available       bool
	SufficientRoles bool
}

// SearchRoomsResult echoes the normalized filters alongside the rooms.
// Window is nil when no time range was requested.
type SearchRoomsResult struct {
	MinCapacity int
	Window      *scheduler.Range
	Rooms       []RoomAvailability
}

// Booking represents a reservation. Username is filled for admin listings.
type Booking struct {
	ID         int64
	UserID     int64
	Username   string
	RoomNumber string
	Start      time.Time
	End        time.Time
	Accepted   bool
	CreatedAt  time.Time
	DecidedAt  *time.Time
}

// Range returns the booked interval.
func (b Booking) Range() scheduler.Range {
	return scheduler.Range{Start: b.Start, End: b.End}
}

func (b Booking) reservation() scheduler.Reservation {
	return scheduler.Reservation{
		ID:         b.ID,
		RoomNumber: b.RoomNumber,
		Accepted:   b.Accepted,
		Range:      b.Range(),
	}
}

// BookingWindow selects accepted bookings overlapping Range. An empty
// RoomNumber spans every room and a zero ExcludeID excludes nothing.
type BookingWindow struct {
	RoomNumber string
	Range      scheduler.Range
	ExcludeID  int64
}

// CreateBookingParams wraps the data required to book a room. IsRequest
// selects the approval path.
type CreateBookingParams struct {
	Principal  Principal
	RoomNumber string
	Start      string
	End        string
	IsRequest  bool
}

// UpdateBookingParams wraps the data required to move an owned booking.
type UpdateBookingParams struct {
	Principal Principal
	BookingID int64
	Start     string
	End       string
}

// User represents an account exposed by the application services.
type User struct {
	ID        int64
	Username  string
	Name      string
	Roles     []string
	CreatedAt time.Time
}

// UserCredentials models the authentication attributes persisted for a user.
type UserCredentials struct {
	User         User
	PasswordHash string
}

// RegisterUserParams captures a self registration.
type RegisterUserParams struct {
	Username string
	Password string
	Name     string
}

// SetRolesParams replaces a user's role set.
type SetRolesParams struct {
	Principal Principal
	Username  string
	Roles     []string
}

// Session represents an authenticated session issued to a user. Token is only
// populated on the value returned by Authenticate.
type Session struct {
	ID          string
	UserID      int64
	Token       string
	TokenHash   string
	Fingerprint string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	RevokedAt   *time.Time
}

// AuthenticateParams captures the data required to authenticate a user.
type AuthenticateParams struct {
	Username    string
	Password    string
	Fingerprint string
}

// AuthenticateResult captures the outcome of a successful authentication attempt.
type AuthenticateResult struct {
	User    User
	Session Session
}
