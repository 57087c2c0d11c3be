package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/example/roombooking/internal/scheduler"
)

// Time range failures are owned by the scheduler package.
var (
	ErrInvalidTimeFormat = scheduler.ErrInvalidTimeFormat
	ErrInvalidInterval   = scheduler.ErrInvalidInterval
	ErrPastStartTime     = scheduler.ErrPastStartTime
	ErrInvalidOrdering   = scheduler.ErrInvalidOrdering
)

var (
	// ErrRoomNotFound is returned when the referenced room does not exist.
	ErrRoomNotFound = errors.New("application: room not found")
	// ErrDuplicateRoom is returned when a room number is already taken.
	ErrDuplicateRoom = errors.New("application: room already exists")
	// ErrRoleNotFound is returned when a request names an unknown role.
	ErrRoleNotFound = errors.New("application: role not found")
	// ErrRequestOnlyRoom is returned when a request-only room is booked directly.
	ErrRequestOnlyRoom = errors.New("application: room is request only")
	// ErrForbidden is returned when the principal's roles do not permit the action.
	ErrForbidden = errors.New("application: insufficient permissions")
	// ErrSlotUnavailable is returned when an accepted booking already occupies the slot.
	ErrSlotUnavailable = errors.New("application: room is unavailable")
	// ErrBookingNotFound is returned when a booking does not exist or is not visible to the caller.
	ErrBookingNotFound = errors.New("application: booking not found")
	// ErrUnauthorized is returned when no valid credential accompanies the call.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrUserNotFound is returned when the referenced user does not exist.
	ErrUserNotFound = errors.New("application: user not found")
	// ErrDuplicateUsername is returned when a username is already registered.
	ErrDuplicateUsername = errors.New("application: username already registered")
	// ErrInvalidCredentials is returned when a username/password pair does not match.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrSessionExpired is returned when a session token is past its expiry.
	ErrSessionExpired = errors.New("application: session expired")
	// ErrSessionRevoked is returned when a session token was logged out.
	ErrSessionRevoked = errors.New("application: session revoked")
	// ErrStorage matches every *StorageError.
	ErrStorage = errors.New("application: storage failure")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// StorageError wraps an unexpected persistence failure. The wrapped error is
// meant for logs only.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("application: storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStorage) match any StorageError.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// storageError is the single boundary that turns an unclassified repository
// error into a StorageError. Errors that already belong to the application
// taxonomy pass through untouched.
func storageError(op string, err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	var sErr *StorageError
	if errors.As(err, &sErr) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func isDomainError(err error) bool {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return true
	}
	for _, sentinel := range domainErrors {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

var domainErrors = []error{
	ErrInvalidTimeFormat,
	ErrInvalidInterval,
	ErrPastStartTime,
	ErrInvalidOrdering,
	ErrRoomNotFound,
	ErrDuplicateRoom,
	ErrRoleNotFound,
	ErrRequestOnlyRoom,
	ErrForbidden,
	ErrSlotUnavailable,
	ErrBookingNotFound,
	ErrUnauthorized,
	ErrUserNotFound,
	ErrDuplicateUsername,
	ErrInvalidCredentials,
	ErrSessionExpired,
	ErrSessionRevoked,
}
