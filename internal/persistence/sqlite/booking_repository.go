package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/roombooking/internal/persistence"
)

const bookingColumns = `b.id, b.user_id, u.username, b.room_number, b.start_time, b.end_time, b.accepted, b.created_at, b.decided_at`

const bookingFrom = ` FROM bookings b JOIN users u ON u.id = b.user_id`

// GetBooking retrieves any booking by id.
func (s *Storage) GetBooking(ctx context.Context, id int64) (persistence.Booking, error) {
	return getBooking(ctx, s.pool.DB(), id)
}

// ListAcceptedOverlapping returns accepted bookings overlapping the query window.
func (s *Storage) ListAcceptedOverlapping(ctx context.Context, query persistence.BookingQuery) ([]persistence.Booking, error) {
	return listAcceptedOverlapping(ctx, s.pool.DB(), query)
}

// ListBookingsForUser returns the bookings owned by a user ordered by start.
func (s *Storage) ListBookingsForUser(ctx context.Context, userID int64) ([]persistence.Booking, error) {
	return queryBookings(ctx, s.pool.DB(),
		`SELECT `+bookingColumns+bookingFrom+` WHERE b.user_id = ? ORDER BY b.start_time, b.id`, userID)
}

// ListPendingBookings returns every unaccepted booking ordered by start.
func (s *Storage) ListPendingBookings(ctx context.Context) ([]persistence.Booking, error) {
	return queryBookings(ctx, s.pool.DB(),
		`SELECT `+bookingColumns+bookingFrom+` WHERE b.accepted = 0 ORDER BY b.start_time, b.id`)
}

// DeleteBooking removes any booking.
func (s *Storage) DeleteBooking(ctx context.Context, id int64) error {
	return execOne(ctx, s.pool.DB(), `DELETE FROM bookings WHERE id = ?`, id)
}

// DeleteUserBooking removes a booking only when it belongs to userID.
func (s *Storage) DeleteUserBooking(ctx context.Context, userID, id int64) error {
	return execOne(ctx, s.pool.DB(), `DELETE FROM bookings WHERE id = ? AND user_id = ?`, id, userID)
}

// WithinBookingTx runs fn in an immediate transaction. Writers are
// serialized, so an availability check made through tx stays valid until
// commit.
func (s *Storage) WithinBookingTx(ctx context.Context, fn func(tx persistence.BookingTx) error) error {
	return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		return fn(&bookingTx{tx: tx})
	})
}

type bookingTx struct {
	tx *sql.Tx
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
	result, err := b.tx.ExecContext(ctx,
		`INSERT INTO bookings (user_id, room_number, start_time, end_time, accepted, created_at, decided_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		booking.UserID,
		booking.RoomNumber,
		formatTime(booking.Start),
		formatTime(booking.End),
		boolToInt(booking.Accepted),
		formatTime(booking.CreatedAt),
		formatNullableTime(booking.DecidedAt),
	)
	if err != nil {
		return persistence.Booking{}, mapError(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return persistence.Booking{}, fmt.Errorf("sqlite: read booking id: %w", err)
	}
	return getBooking(ctx, b.tx, id)
}

func (b *bookingTx) UpdateBookingTimes(ctx context.Context, id int64, start, end time.Time) error {
	return execOne(ctx, b.tx,
		`UPDATE bookings SET start_time = ?, end_time = ? WHERE id = ?`,
		formatTime(start), formatTime(end), id)
}

func (b *bookingTx) AcceptBooking(ctx context.Context, id int64, decidedAt time.Time) error {
	return execOne(ctx, b.tx,
		`UPDATE bookings SET accepted = 1, decided_at = ? WHERE id = ?`,
		formatTime(decidedAt), id)
}

func getBooking(ctx context.Context, q querier, id int64) (persistence.Booking, error) {
	return scanBooking(q.QueryRowContext(ctx, `SELECT `+bookingColumns+bookingFrom+` WHERE b.id = ?`, id))
}

func listAcceptedOverlapping(ctx context.Context, q querier, query persistence.BookingQuery) ([]persistence.Booking, error) {
	stmt := `SELECT ` + bookingColumns + bookingFrom + `
		WHERE b.accepted = 1 AND b.start_time < ? AND b.end_time > ? AND b.id != ?`
	args := []any{formatTime(query.End), formatTime(query.Start), query.ExcludeID}
	if query.RoomNumber != "" {
		stmt += ` AND b.room_number = ?`
		args = append(args, query.RoomNumber)
	}
	stmt += ` ORDER BY b.start_time, b.id`
	return queryBookings(ctx, q, stmt, args...)
}

func queryBookings(ctx context.Context, q querier, stmt string, args ...any) ([]persistence.Booking, error) {
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var bookings []persistence.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}
	return bookings, mapError(rows.Err())
}

func scanBooking(row rowScanner) (persistence.Booking, error) {
	var (
		booking               persistence.Booking
		start, end, createdAt string
		accepted              int
		decidedAt             sql.NullString
	)
	if err := row.Scan(
		&booking.ID,
		&booking.UserID,
		&booking.Username,
		&booking.RoomNumber,
		&start,
		&end,
		&accepted,
		&createdAt,
		&decidedAt,
	); err != nil {
		return persistence.Booking{}, mapError(err)
	}

	var err error
	if booking.Start, err = parseTime(start); err != nil {
		return persistence.Booking{}, err
	}
	if booking.End, err = parseTime(end); err != nil {
		return persistence.Booking{}, err
	}
	if booking.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Booking{}, err
	}
	if booking.DecidedAt, err = parseNullableTime(decidedAt); err != nil {
		return persistence.Booking{}, err
	}
	booking.Accepted = accepted != 0
	return booking, nil
}

// execOne runs stmt and reports ErrNotFound when no row was touched.
func execOne(ctx context.Context, q querier, stmt string, args ...any) error {
	result, err := q.ExecContext(ctx, stmt, args...)
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
