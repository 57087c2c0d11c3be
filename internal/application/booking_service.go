package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/roombooking/internal/persistence"
	"github.com/example/roombooking/internal/scheduler"
)

// BookingTx is the serialized unit of work for writes whose legality depends
// on the current set of accepted bookings.
type BookingTx interface {
	AcceptedBookingReader
	GetRoom(ctx context.Context, number string) (Room, error)
	GetBooking(ctx context.Context, id int64) (Booking, error)
	InsertBooking(ctx context.Context, booking Booking) (Booking, error)
	UpdateBookingTimes(ctx context.Context, id int64, start, end time.Time) error
	AcceptBooking(ctx context.Context, id int64, decidedAt time.Time) error
}

// BookingRepository captures the persistence operations needed by the service.
type BookingRepository interface {
	AcceptedBookingReader
	GetBooking(ctx context.Context, id int64) (Booking, error)
	ListBookingsForUser(ctx context.Context, userID int64) ([]Booking, error)
	ListPendingBookings(ctx context.Context) ([]Booking, error)
	DeleteBooking(ctx context.Context, id int64) error
	DeleteUserBooking(ctx context.Context, userID, id int64) error
	WithinBookingTx(ctx context.Context, fn func(tx BookingTx) error) error
}

// BookingService runs the booking lifecycle: direct bookings, requests and
// their approval, updates and deletions.
type BookingService struct {
	bookings     BookingRepository
	availability *AvailabilityEngine
	validator    *scheduler.Validator
	now          func() time.Time
	logger       *slog.Logger
}

// NewBookingService constructs a booking service with the provided dependencies.
func NewBookingService(bookings BookingRepository, availability *AvailabilityEngine, validator *scheduler.Validator, now func() time.Time) *BookingService {
	return NewBookingServiceWithLogger(bookings, availability, validator, now, nil)
}

// NewBookingServiceWithLogger constructs a booking service with a specified logger.
func NewBookingServiceWithLogger(bookings BookingRepository, availability *AvailabilityEngine, validator *scheduler.Validator, now func() time.Time, logger *slog.Logger) *BookingService {
	if now == nil {
		now = time.Now
	}
	if validator == nil {
		validator = scheduler.NewValidator(now, time.UTC)
	}
	if availability == nil {
		availability = NewAvailabilityEngineWithLogger(bookings, logger)
	}
	return &BookingService{
		bookings:     bookings,
		availability: availability,
		validator:    validator,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

func (s *BookingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingService", operation, attrs...)
}

func (s *BookingService) ready() error {
	if s == nil {
		return fmt.Errorf("BookingService is nil")
	}
	if s.bookings == nil {
		return fmt.Errorf("booking repository not configured")
	}
	return nil
}

// CreateBooking books a room for the principal. A direct booking is accepted
// immediately; a request stays pending until an administrator approves it.
// Checks run in order and the first failure wins: time range, room
// existence, request-only policy, role gate, availability.
func (s *BookingService) CreateBooking(ctx context.Context, params CreateBookingParams) (booking Booking, err error) {
	if err = s.ready(); err != nil {
		return
	}

	roomNumber := strings.TrimSpace(params.RoomNumber)
	logger := s.loggerWith(ctx, "CreateBooking",
		"principal_id", params.Principal.UserID,
		"room_number", roomNumber,
		"is_request", params.IsRequest,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("booking_id", booking.ID, "accepted", booking.Accepted).InfoContext(ctx, "booking created")
	}()

	if roomNumber == "" {
		vErr := &ValidationError{}
		vErr.add("room_number", "room_number is required")
		err = vErr
		return
	}

	var rng scheduler.Range
	rng, err = s.validator.Validate(params.Start, params.End)
	if err != nil {
		return
	}

	err = s.bookings.WithinBookingTx(ctx, func(tx BookingTx) error {
		room, err := tx.GetRoom(ctx, roomNumber)
		if err != nil {
			return mapRoomRepoError("get room", err)
		}
		if room.RequestOnly && !params.IsRequest {
			return ErrRequestOnlyRoom
		}
		if !UserMayAccessRoom(room, params.Principal.Roles) {
			return ErrForbidden
		}

		available, err := s.availability.IsAvailable(ctx, tx, room.Number, rng, 0)
		if err != nil {
			return err
		}
		if !available {
			return ErrSlotUnavailable
		}

		booking, err = tx.InsertBooking(ctx, Booking{
			UserID:     params.Principal.UserID,
			RoomNumber: room.Number,
			Start:      rng.Start,
			End:        rng.End,
			Accepted:   !params.IsRequest,
			CreatedAt:  s.now().UTC().Truncate(time.Second),
		})
		return err
	})
	if err != nil {
		booking = Booking{}
		err = mapBookingRepoError("create booking", err)
	}
	return
}

// ListOwnBookings returns the principal's bookings ordered by start.
func (s *BookingService) ListOwnBookings(ctx context.Context, principal Principal) (bookings []Booking, err error) {
	if err = s.ready(); err != nil {
		return
	}

	bookings, err = s.bookings.ListBookingsForUser(ctx, principal.UserID)
	if err != nil {
		err = storageError("list bookings", err)
		s.loggerWith(ctx, "ListOwnBookings", "principal_id", principal.UserID).
			ErrorContext(ctx, "failed to list bookings", "error", err, "error_kind", ErrorKind(err))
	}
	return
}

// GetOwnBooking returns a booking owned by the principal. A booking that
// exists but belongs to someone else is reported as ErrBookingNotFound.
func (s *BookingService) GetOwnBooking(ctx context.Context, principal Principal, id int64) (Booking, error) {
	if err := s.ready(); err != nil {
		return Booking{}, err
	}

	booking, err := s.bookings.GetBooking(ctx, id)
	if err != nil {
		return Booking{}, mapBookingRepoError("get booking", err)
	}
	if booking.UserID != principal.UserID {
		return Booking{}, ErrBookingNotFound
	}
	return booking, nil
}

// ListPendingRequests returns every pending request ordered by start, with
// the requester's username. Administrators only.
func (s *BookingService) ListPendingRequests(ctx context.Context, principal Principal) (bookings []Booking, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "ListPendingRequests", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list booking requests", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(bookings)).InfoContext(ctx, "booking requests listed")
	}()

	if !principal.IsAdmin() {
		err = ErrForbidden
		return
	}

	bookings, err = s.bookings.ListPendingBookings(ctx)
	if err != nil {
		err = storageError("list pending bookings", err)
	}
	return
}

// AcceptBooking approves a booking. Availability is checked again at accept
// time since other bookings may have been accepted since the request was
// made. Accepting an accepted booking succeeds when its slot is still free.
func (s *BookingService) AcceptBooking(ctx context.Context, principal Principal, id int64) (booking Booking, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "AcceptBooking",
		"principal_id", principal.UserID,
		"booking_id", id,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to accept booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("room_number", booking.RoomNumber).InfoContext(ctx, "booking accepted")
	}()

	if !principal.IsAdmin() {
		err = ErrForbidden
		return
	}

	err = s.bookings.WithinBookingTx(ctx, func(tx BookingTx) error {
		existing, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}

		available, err := s.availability.IsAvailable(ctx, tx, existing.RoomNumber, existing.Range(), existing.ID)
		if err != nil {
			return err
		}
		if !available {
			return ErrSlotUnavailable
		}

		if err := tx.AcceptBooking(ctx, existing.ID, s.now().UTC().Truncate(time.Second)); err != nil {
			return err
		}
		booking, err = tx.GetBooking(ctx, existing.ID)
		return err
	})
	if err != nil {
		booking = Booking{}
		err = mapBookingRepoError("accept booking", err)
	}
	return
}

// UpdateBooking moves an owned booking to a new range. The new range must not
// collide with any other accepted booking on the room, whether the moved
// booking is accepted or still pending. The accepted flag is left unchanged.
func (s *BookingService) UpdateBooking(ctx context.Context, params UpdateBookingParams) (booking Booking, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "UpdateBooking",
		"principal_id", params.Principal.UserID,
		"booking_id", params.BookingID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking updated")
	}()

	var rng scheduler.Range
	rng, err = s.validator.Validate(params.Start, params.End)
	if err != nil {
		return
	}

	err = s.bookings.WithinBookingTx(ctx, func(tx BookingTx) error {
		existing, err := tx.GetBooking(ctx, params.BookingID)
		if err != nil {
			return err
		}
		if existing.UserID != params.Principal.UserID {
			return ErrBookingNotFound
		}

		available, err := s.availability.IsAvailable(ctx, tx, existing.RoomNumber, rng, existing.ID)
		if err != nil {
			return err
		}
		if !available {
			return ErrSlotUnavailable
		}

		if err := tx.UpdateBookingTimes(ctx, existing.ID, rng.Start, rng.End); err != nil {
			return err
		}
		booking, err = tx.GetBooking(ctx, existing.ID)
		return err
	})
	if err != nil {
		booking = Booking{}
		err = mapBookingRepoError("update booking", err)
	}
	return
}

// DeleteBooking removes a booking owned by the principal.
func (s *BookingService) DeleteBooking(ctx context.Context, principal Principal, id int64) error {
	if err := s.ready(); err != nil {
		return err
	}

	logger := s.loggerWith(ctx, "DeleteBooking",
		"principal_id", principal.UserID,
		"booking_id", id,
	)

	if err := s.bookings.DeleteUserBooking(ctx, principal.UserID, id); err != nil {
		err = mapBookingRepoError("delete booking", err)
		logger.ErrorContext(ctx, "failed to delete booking", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "booking deleted")
	return nil
}

// DeclineRequest rejects a booking on behalf of an administrator. The
// booking is removed; declining it again yields ErrBookingNotFound.
func (s *BookingService) DeclineRequest(ctx context.Context, principal Principal, id int64) error {
	if err := s.ready(); err != nil {
		return err
	}
	if !principal.IsAdmin() {
		return ErrForbidden
	}

	logger := s.loggerWith(ctx, "DeclineRequest",
		"principal_id", principal.UserID,
		"booking_id", id,
	)

	if err := s.bookings.DeleteBooking(ctx, id); err != nil {
		err = mapBookingRepoError("decline booking", err)
		logger.ErrorContext(ctx, "failed to decline booking", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "booking declined")
	return nil
}

func mapBookingRepoError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return ErrBookingNotFound
	case errors.Is(err, persistence.ErrOverlap):
		return ErrSlotUnavailable
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return ErrRoomNotFound
	case errors.Is(err, persistence.ErrConstraintViolation):
		return ErrInvalidOrdering
	}
	return storageError(op, err)
}
