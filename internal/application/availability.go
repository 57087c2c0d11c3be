package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/roombooking/internal/scheduler"
)

// AcceptedBookingReader lists accepted bookings overlapping a window. Both
// the booking repository and its transactions satisfy it.
type AcceptedBookingReader interface {
	ListAcceptedOverlapping(ctx context.Context, window BookingWindow) ([]Booking, error)
}

// AvailabilityEngine decides whether a room is free for a range. Only
// accepted bookings occupy a slot.
type AvailabilityEngine struct {
	bookings AcceptedBookingReader
	logger   *slog.Logger
}

// NewAvailabilityEngine constructs an engine reading from bookings.
func NewAvailabilityEngine(bookings AcceptedBookingReader) *AvailabilityEngine {
	return NewAvailabilityEngineWithLogger(bookings, nil)
}

// NewAvailabilityEngineWithLogger constructs an engine with a specified logger.
func NewAvailabilityEngineWithLogger(bookings AcceptedBookingReader, logger *slog.Logger) *AvailabilityEngine {
	return &AvailabilityEngine{bookings: bookings, logger: defaultLogger(logger)}
}

// Conflicts returns the accepted bookings of roomNumber that overlap rng,
// ignoring excludeID. Reads go through q when it is set, so a caller holding
// a booking transaction sees its own snapshot.
func (e *AvailabilityEngine) Conflicts(ctx context.Context, q AcceptedBookingReader, roomNumber string, rng scheduler.Range, excludeID int64) ([]scheduler.Conflict, error) {
	if e == nil {
		return nil, fmt.Errorf("AvailabilityEngine is nil")
	}
	if q == nil {
		q = e.bookings
	}
	if q == nil {
		return nil, fmt.Errorf("booking repository not configured")
	}

	existing, err := q.ListAcceptedOverlapping(ctx, BookingWindow{
		RoomNumber: roomNumber,
		Range:      rng,
		ExcludeID:  excludeID,
	})
	if err != nil {
		return nil, storageError("list overlapping bookings", err)
	}

	reservations := make([]scheduler.Reservation, 0, len(existing))
	for _, booking := range existing {
		reservations = append(reservations, booking.reservation())
	}
	conflicts := scheduler.DetectConflicts(reservations, scheduler.Reservation{
		ID:         excludeID,
		RoomNumber: roomNumber,
		Range:      rng,
	})

	if len(conflicts) > 0 {
		serviceLogger(ctx, e.logger, "AvailabilityEngine", "Conflicts",
			"room_number", roomNumber,
			"conflict_count", len(conflicts),
		).DebugContext(ctx, "slot occupied")
	}
	return conflicts, nil
}

// IsAvailable reports whether no accepted booking of roomNumber overlaps rng.
func (e *AvailabilityEngine) IsAvailable(ctx context.Context, q AcceptedBookingReader, roomNumber string, rng scheduler.Range, excludeID int64) (bool, error) {
	conflicts, err := e.Conflicts(ctx, q, roomNumber, rng, excludeID)
	if err != nil {
		return false, err
	}
	return len(conflicts) == 0, nil
}

// ConflictingRoomNumbers returns every room holding an accepted booking that
// overlaps rng, using the same predicate as IsAvailable.
func (e *AvailabilityEngine) ConflictingRoomNumbers(ctx context.Context, rng scheduler.Range) (map[string]struct{}, error) {
	if e == nil {
		return nil, fmt.Errorf("AvailabilityEngine is nil")
	}
	if e.bookings == nil {
		return nil, fmt.Errorf("booking repository not configured")
	}

	existing, err := e.bookings.ListAcceptedOverlapping(ctx, BookingWindow{Range: rng})
	if err != nil {
		return nil, storageError("list overlapping bookings", err)
	}

	reservations := make([]scheduler.Reservation, 0, len(existing))
	for _, booking := range existing {
		reservations = append(reservations, booking.reservation())
	}
	return scheduler.BlockedRooms(reservations, rng), nil
}
