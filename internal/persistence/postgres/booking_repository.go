package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/example/roombooking/internal/persistence"
)

const bookingSelect = `SELECT b.id, b.user_id, u.username, b.room_number, b.start_time, b.end_time, b.accepted, b.created_at, b.decided_at
	FROM bookings b JOIN users u ON u.id = b.user_id`

// GetBooking retrieves any booking by id.
func (s *Storage) GetBooking(ctx context.Context, id int64) (persistence.Booking, error) {
	return getBooking(ctx, s.pool, id)
}

// ListAcceptedOverlapping returns accepted bookings overlapping the query window.
func (s *Storage) ListAcceptedOverlapping(ctx context.Context, query persistence.BookingQuery) ([]persistence.Booking, error) {
	return listAcceptedOverlapping(ctx, s.pool, query)
}

// ListBookingsForUser returns the bookings owned by a user ordered by start.
func (s *Storage) ListBookingsForUser(ctx context.Context, userID int64) ([]persistence.Booking, error) {
	return queryBookings(ctx, s.pool, bookingSelect+` WHERE b.user_id = $1 ORDER BY b.start_time, b.id`, userID)
}

// ListPendingBookings returns every unaccepted booking ordered by start.
func (s *Storage) ListPendingBookings(ctx context.Context) ([]persistence.Booking, error) {
	return queryBookings(ctx, s.pool, bookingSelect+` WHERE NOT b.accepted ORDER BY b.start_time, b.id`)
}

// DeleteBooking removes any booking.
func (s *Storage) DeleteBooking(ctx context.Context, id int64) error {
	return execOne(ctx, s.pool, `DELETE FROM bookings WHERE id = $1`, id)
}

// DeleteUserBooking removes a booking only when it belongs to userID.
func (s *Storage) DeleteUserBooking(ctx context.Context, userID, id int64) error {
	return execOne(ctx, s.pool, `DELETE FROM bookings WHERE id = $1 AND user_id = $2`, id, userID)
}

// WithinBookingTx runs fn in a SERIALIZABLE transaction. A concurrent
// writer that invalidates the availability check fails with
// persistence.ErrOverlap at statement or commit time.
func (s *Storage) WithinBookingTx(ctx context.Context, fn func(tx persistence.BookingTx) error) error {
	return s.withTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		return fn(&bookingTx{tx: tx})
	})
}

type bookingTx struct {
	tx pgx.Tx
}

func (b *bookingTx) GetRoom(ctx context.Context, number string) (persistence.Room, error) {
	return getRoom(ctx, b.tx, number)
}

func (b *bookingTx) GetBooking(ctx context.Context, id int64) (persistence.Booking, error) {
	return getBooking(ctx, b.tx, id)
}

func (b *bookingTx) ListAcceptedOverlapping(ctx context.Context, query persistence.BookingQuery) ([]persistence.Booking, error) {
	return listAcceptedOverlapping(ctx, b.tx, query)
}

func (b *bookingTx) InsertBooking(ctx context.Context, booking persistence.Booking) (persistence.Booking, error) {
	var id int64
	if err := b.tx.QueryRow(ctx,
		`INSERT INTO bookings (user_id, room_number, start_time, end_time, accepted, created_at, decided_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		booking.UserID,
		booking.RoomNumber,
		booking.Start.UTC(),
		booking.End.UTC(),
		booking.Accepted,
		booking.CreatedAt.UTC(),
		booking.DecidedAt,
	).Scan(&id); err != nil {
		return persistence.Booking{}, mapError(err)
	}
	return getBooking(ctx, b.tx, id)
}

func (b *bookingTx) UpdateBookingTimes(ctx context.Context, id int64, start, end time.Time) error {
	return execOne(ctx, b.tx,
		`UPDATE bookings SET start_time = $1, end_time = $2 WHERE id = $3`,
		start.UTC(), end.UTC(), id)
}

func (b *bookingTx) AcceptBooking(ctx context.Context, id int64, decidedAt time.Time) error {
	return execOne(ctx, b.tx,
		`UPDATE bookings SET accepted = TRUE, decided_at = $1 WHERE id = $2`,
		decidedAt.UTC(), id)
}

func getBooking(ctx context.Context, q querier, id int64) (persistence.Booking, error) {
	return scanBooking(q.QueryRow(ctx, bookingSelect+` WHERE b.id = $1`, id))
}

func listAcceptedOverlapping(ctx context.Context, q querier, query persistence.BookingQuery) ([]persistence.Booking, error) {
	stmt := bookingSelect + ` WHERE b.accepted AND b.start_time < $1 AND b.end_time > $2 AND b.id <> $3`
	args := []any{query.End.UTC(), query.Start.UTC(), query.ExcludeID}
	if query.RoomNumber != "" {
		stmt += ` AND b.room_number = $4`
		args = append(args, query.RoomNumber)
	}
	stmt += ` ORDER BY b.start_time, b.id`
	return queryBookings(ctx, q, stmt, args...)
}

func queryBookings(ctx context.Context, q querier, stmt string, args ...any) ([]persistence.Booking, error) {
	rows, err := q.Query(ctx, stmt, args...)
	if err != nil {
		return nil, mapError(err)
	}
	bookings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (persistence.Booking, error) {
		return scanBooking(row)
	})
	if err != nil {
		return nil, mapError(err)
	}
	if len(bookings) == 0 {
		return nil, nil
	}
	return bookings, nil
}

func scanBooking(row pgx.Row) (persistence.Booking, error) {
	var booking persistence.Booking
	if err := row.Scan(
		&booking.ID,
		&booking.UserID,
		&booking.Username,
		&booking.RoomNumber,
		&booking.Start,
		&booking.End,
		&booking.Accepted,
		&booking.CreatedAt,
		&booking.DecidedAt,
	); err != nil {
		return persistence.Booking{}, mapError(err)
	}
	booking.Start = booking.Start.UTC()
	booking.End = booking.End.UTC()
	booking.CreatedAt = booking.CreatedAt.UTC()
	if booking.DecidedAt != nil {
		decided := booking.DecidedAt.UTC()
		booking.DecidedAt = &decided
	}
	return booking, nil
}
