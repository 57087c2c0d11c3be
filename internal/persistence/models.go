package persistence

import "time"

// Role is a named permission group shared by users and rooms.
type Role struct {
	Name string
}

// User represents an account in the booking domain.
type User struct {
	ID           int64
	Username     string
	Name         string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}

// Room represents a bookable room keyed by its number.
type Room struct {
	Number       string
	Capacity     int
	Description  string
	RequestOnly  bool
	AllowedRoles []string
	CreatedAt    time.Time
}

// Booking represents a reservation of a room by a user. Username is only
// populated by queries that join the owning user.
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

// Session represents an authentication session persisted for a user.
type Session struct {
	ID          string
	UserID      int64
	TokenHash   string
	Fingerprint string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	RevokedAt   *time.Time
}
