package sqlite

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/example/roombooking/internal/persistence"
)

const roomColumns = `room_number, capacity, description, request_only, created_at`

// CreateRoom inserts a room together with its allowed roles.
func (s *Storage) CreateRoom(ctx context.Context, room persistence.Room) error {
	if strings.TrimSpace(room.Number) == "" || room.Capacity <= 0 {
		return persistence.ErrConstraintViolation
	}

	return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rooms (`+roomColumns+`) VALUES (?, ?, ?, ?, ?)`,
			room.Number, room.Capacity, room.Description, boolToInt(room.RequestOnly), formatTime(room.CreatedAt),
		); err != nil {
			return mapError(err)
		}
		for _, role := range room.AllowedRoles {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO room_roles (room_number, role) VALUES (?, ?)`, room.Number, role); err != nil {
				return mapError(err)
			}
		}
		return nil
	})
}

// GetRoom retrieves a room by number.
func (s *Storage) GetRoom(ctx context.Context, number string) (persistence.Room, error) {
	return getRoom(ctx, s.pool.DB(), number)
}

func getRoom(ctx context.Context, q querier, number string) (persistence.Room, error) {
	if strings.TrimSpace(number) == "" {
		return persistence.Room{}, persistence.ErrNotFound
	}
	room, err := scanRoom(q.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE room_number = ?`, number))
	if err != nil {
		return persistence.Room{}, err
	}

	rows, err := q.QueryContext(ctx, `SELECT role FROM room_roles WHERE room_number = ? ORDER BY role`, number)
	if err != nil {
		return persistence.Room{}, mapError(err)
	}
	defer rows.Close()
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return persistence.Room{}, mapError(err)
		}
		room.AllowedRoles = append(room.AllowedRoles, role)
	}
	return room, mapError(rows.Err())
}

// ListRooms returns rooms with at least minCapacity seats, ordered by number.
func (s *Storage) ListRooms(ctx context.Context, minCapacity int) ([]persistence.Room, error) {
	rows, err := s.pool.DB().QueryContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE capacity >= ? ORDER BY room_number`, minCapacity)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var rooms []persistence.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	if len(rooms) == 0 {
		return nil, nil
	}

	roles, err := s.allRoomRoles(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rooms {
		rooms[i].AllowedRoles = roles[rooms[i].Number]
	}
	return rooms, nil
}

// DeleteRoom removes a room. Its bookings and role links cascade.
func (s *Storage) DeleteRoom(ctx context.Context, number string) error {
	result, err := s.pool.DB().ExecContext(ctx, `DELETE FROM rooms WHERE room_number = ?`, number)
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

func scanRoom(row rowScanner) (persistence.Room, error) {
	var (
		room        persistence.Room
		requestOnly int
		createdAt   string
	)
	if err := row.Scan(&room.Number, &room.Capacity, &room.Description, &requestOnly, &createdAt); err != nil {
		return persistence.Room{}, mapError(err)
	}
	ts, err := parseTime(createdAt)
	if err != nil {
		return persistence.Room{}, err
	}
	room.RequestOnly = requestOnly != 0
	room.CreatedAt = ts
	return room, nil
}

func (s *Storage) allRoomRoles(ctx context.Context) (map[string][]string, error) {
	rows, err := s.pool.DB().QueryContext(ctx, `SELECT room_number, role FROM room_roles`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var number, role string
		if err := rows.Scan(&number, &role); err != nil {
			return nil, mapError(err)
		}
		out[number] = append(out[number], role)
	}
	for number := range out {
		sort.Strings(out[number])
	}
	return out, mapError(rows.Err())
}
