package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/roombooking/internal/application"
	"github.com/example/roombooking/internal/persistence"
)

var (
	userCounter    uint64
	roomCounter    uint64
	bookingCounter uint64
)

// referenceTime is a Monday morning far enough ahead that fixture bookings
// never start in the past.
var referenceTime = time.Date(2030, time.January, 7, 8, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserFixture represents a deterministic account. Password is kept in plain
// text so that tests can log in with it.
type UserFixture struct {
	ID        int64
	Username  string
	Name      string
	Password  string
	Roles     []string
	CreatedAt time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a deterministic user fixture with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	username := fmt.Sprintf("user%03d", idx)
	fixture := UserFixture{
		Username:  username,
		Name:      fmt.Sprintf("User %03d", idx),
		Password:  "password-" + username,
		CreatedAt: referenceTime.Add(-time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUsername overrides the generated username.
func WithUsername(username string) UserOption {
	return func(f *UserFixture) {
		f.Username = username
	}
}

// WithUserPassword overrides the generated password.
func WithUserPassword(password string) UserOption {
	return func(f *UserFixture) {
		f.Password = password
	}
}

// WithUserRoles sets the roles of the fixture.
func WithUserRoles(roles ...string) UserOption {
	return func(f *UserFixture) {
		f.Roles = append([]string(nil), roles...)
	}
}

// Principal returns the identity the fixture acts as once stored.
func (f UserFixture) Principal() application.Principal {
	return application.Principal{
		UserID:   f.ID,
		Username: f.Username,
		Roles:    append([]string(nil), f.Roles...),
	}
}

// Persistence returns the fixture as a persistence.User with the given hash.
func (f UserFixture) Persistence(passwordHash string) persistence.User {
	return persistence.User{
		ID:           f.ID,
		Username:     f.Username,
		Name:         f.Name,
		PasswordHash: passwordHash,
		Roles:        append([]string(nil), f.Roles...),
		CreatedAt:    f.CreatedAt,
	}
}

// ----------------------------- Room fixtures -----------------------------

// RoomFixture represents a deterministic room.
type RoomFixture struct {
	Number      string
	Capacity    int
	Description string
	RequestOnly bool
	Roles       []string
	CreatedAt   time.Time
}

// RoomOption configures the generated room fixture.
type RoomOption func(*RoomFixture)

// NewRoomFixture returns a deterministic room fixture with optional overrides.
func NewRoomFixture(opts ...RoomOption) RoomFixture {
	idx := atomic.AddUint64(&roomCounter, 1)
	fixture := RoomFixture{
		Number:      fmt.Sprintf("R%03d", idx),
		Capacity:    int(4 + idx%4),
		Description: fmt.Sprintf("Room %03d", idx),
		CreatedAt:   referenceTime.Add(-time.Duration(idx) * time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithRoomNumber overrides the generated room number.
func WithRoomNumber(number string) RoomOption {
	return func(f *RoomFixture) {
		f.Number = number
	}
}

// WithRoomCapacity overrides the generated capacity.
func WithRoomCapacity(capacity int) RoomOption {
	return func(f *RoomFixture) {
		f.Capacity = capacity
	}
}

// WithRequestOnly marks the room as bookable by request only.
func WithRequestOnly() RoomOption {
	return func(f *RoomFixture) {
		f.RequestOnly = true
	}
}

// WithRoomRoles restricts the room to holders of every given role.
func WithRoomRoles(roles ...string) RoomOption {
	return func(f *RoomFixture) {
		f.Roles = append([]string(nil), roles...)
	}
}

// Input returns the fixture as admin input for RoomService.CreateRoom.
func (f RoomFixture) Input() application.RoomInput {
	return application.RoomInput{
		Number:      f.Number,
		Capacity:    f.Capacity,
		Description: f.Description,
		RequestOnly: f.RequestOnly,
		Roles:       append([]string(nil), f.Roles...),
	}
}

// Persistence returns the fixture as a persistence.Room value.
func (f RoomFixture) Persistence() persistence.Room {
	return persistence.Room{
		Number:       f.Number,
		Capacity:     f.Capacity,
		Description:  f.Description,
		RequestOnly:  f.RequestOnly,
		AllowedRoles: append([]string(nil), f.Roles...),
		CreatedAt:    f.CreatedAt,
	}
}

// ---------------------------- Booking fixtures ---------------------------

// BookingFixture represents a booking of a room on the reference day.
type BookingFixture struct {
	UserID     int64
	RoomNumber string
	Start      time.Time
	End        time.Time
	Accepted   bool
}

// BookingOption configures the generated booking fixture.
type BookingOption func(*BookingFixture)

// NewBookingFixture returns an accepted one hour booking. Consecutive fixtures
// occupy consecutive hours of the day after ReferenceTime.
func NewBookingFixture(userID int64, roomNumber string, opts ...BookingOption) BookingFixture {
	idx := atomic.AddUint64(&bookingCounter, 1)
	start := referenceTime.Add(24*time.Hour + time.Duration(idx%12)*time.Hour)
	fixture := BookingFixture{
		UserID:     userID,
		RoomNumber: roomNumber,
		Start:      start,
		End:        start.Add(time.Hour),
		Accepted:   true,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithBookingTimes overrides the booked interval.
func WithBookingTimes(start, end time.Time) BookingOption {
	return func(f *BookingFixture) {
		f.Start = start
		f.End = end
	}
}

// Pending marks the booking as an unanswered request.
func Pending() BookingOption {
	return func(f *BookingFixture) {
		f.Accepted = false
	}
}

// Persistence returns the fixture as a persistence.Booking value.
func (f BookingFixture) Persistence() persistence.Booking {
	return persistence.Booking{
		UserID:     f.UserID,
		RoomNumber: f.RoomNumber,
		Start:      f.Start,
		End:        f.End,
		Accepted:   f.Accepted,
		CreatedAt:  referenceTime,
	}
}

// Hour returns the given hour of the day after ReferenceTime, formatted the
// way the API expects.
func Hour(hour, minute int) string {
	day := referenceTime.AddDate(0, 0, 1)
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC).Format(time.RFC3339)
}
