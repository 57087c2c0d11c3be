package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/example/roombooking/internal/persistence"
)

// CreateRole inserts a role into the catalog.
func (s *Storage) CreateRole(ctx context.Context, role persistence.Role) error {
	name := strings.TrimSpace(role.Name)
	if name == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO roles (name) VALUES ($1)`, name)
	return mapError(err)
}

// ListRoles returns every role ordered by name.
func (s *Storage) ListRoles(ctx context.Context) ([]persistence.Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM roles ORDER BY name`)
	if err != nil {
		return nil, mapError(err)
	}
	roles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (persistence.Role, error) {
		var role persistence.Role
		err := row.Scan(&role.Name)
		return role, err
	})
	return roles, mapError(err)
}

// MissingRoles returns the subset of names that are not in the catalog.
func (s *Storage) MissingRoles(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT n FROM unnest($1::text[]) AS n WHERE NOT EXISTS (SELECT 1 FROM roles WHERE name = n)`, names)
	if err != nil {
		return nil, mapError(err)
	}
	missing, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapError(err)
	}
	if len(missing) == 0 {
		return nil, nil
	}
	return missing, nil
}

const userSelect = `SELECT u.id, u.username, u.name, u.password_hash, u.created_at,
	ARRAY(SELECT ur.role FROM user_roles ur WHERE ur.user_id = u.id ORDER BY ur.role)
	FROM users u`

// CreateUser inserts a user together with its role memberships.
func (s *Storage) CreateUser(ctx context.Context, user persistence.User) (persistence.User, error) {
	if strings.TrimSpace(user.Username) == "" || user.PasswordHash == "" {
		return persistence.User{}, persistence.ErrConstraintViolation
	}
	err := s.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO users (username, name, password_hash, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
			user.Username, user.Name, user.PasswordHash, user.CreatedAt.UTC(),
		).Scan(&user.ID); err != nil {
			return mapError(err)
		}
		return insertUserRoles(ctx, tx, user.ID, user.Roles)
	})
	if err != nil {
		return persistence.User{}, err
	}
	return s.GetUser(ctx, user.ID)
}

// GetUser retrieves a user by id.
func (s *Storage) GetUser(ctx context.Context, id int64) (persistence.User, error) {
	return scanUser(s.pool.QueryRow(ctx, userSelect+` WHERE u.id = $1`, id))
}

// GetUserByUsername retrieves a user by login name.
func (s *Storage) GetUserByUsername(ctx context.Context, username string) (persistence.User, error) {
	return scanUser(s.pool.QueryRow(ctx, userSelect+` WHERE u.username = $1`, username))
}

// ListUsers returns every user ordered by id.
func (s *Storage) ListUsers(ctx context.Context) ([]persistence.User, error) {
	rows, err := s.pool.Query(ctx, userSelect+` ORDER BY u.id`)
	if err != nil {
		return nil, mapError(err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (persistence.User, error) {
		return scanUser(row)
	})
	return users, mapError(err)
}

// SetUserRoles replaces the role set of a user.
func (s *Storage) SetUserRoles(ctx context.Context, id int64, roles []string) error {
	return s.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := execOne(ctx, tx, `UPDATE users SET id = id WHERE id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, id); err != nil {
			return mapError(err)
		}
		return insertUserRoles(ctx, tx, id, roles)
	})
}

// CountUsers reports how many accounts exist.
func (s *Storage) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, mapError(err)
}

func insertUserRoles(ctx context.Context, tx pgx.Tx, userID int64, roles []string) error {
	for _, role := range roles {
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, role); err != nil {
			return mapError(err)
		}
	}
	return nil
}

func scanUser(row pgx.Row) (persistence.User, error) {
	var user persistence.User
	if err := row.Scan(&user.ID, &user.Username, &user.Name, &user.PasswordHash, &user.CreatedAt, &user.Roles); err != nil {
		return persistence.User{}, mapError(err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	if len(user.Roles) == 0 {
		user.Roles = nil
	}
	return user, nil
}

const roomSelect = `SELECT r.room_number, r.capacity, r.description, r.request_only, r.created_at,
	ARRAY(SELECT rr.role FROM room_roles rr WHERE rr.room_number = r.room_number ORDER BY rr.role)
	FROM rooms r`

// CreateRoom inserts a room together with its allowed roles.
func (s *Storage) CreateRoom(ctx context.Context, room persistence.Room) error {
	if strings.TrimSpace(room.Number) == "" || room.Capacity <= 0 {
		return persistence.ErrConstraintViolation
	}
	return s.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO rooms (room_number, capacity, description, request_only, created_at) VALUES ($1, $2, $3, $4, $5)`,
			room.Number, room.Capacity, room.Description, room.RequestOnly, room.CreatedAt.UTC(),
		); err != nil {
			return mapError(err)
		}
		for _, role := range room.AllowedRoles {
			if _, err := tx.Exec(ctx,
				`INSERT INTO room_roles (room_number, role) VALUES ($1, $2) ON CONFLICT DO NOTHING`, room.Number, role); err != nil {
				return mapError(err)
			}
		}
		return nil
	})
}

// GetRoom retrieves a room by number.
func (s *Storage) GetRoom(ctx context.Context, number string) (persistence.Room, error) {
	return getRoom(ctx, s.pool, number)
}

func getRoom(ctx context.Context, q querier, number string) (persistence.Room, error) {
	return scanRoom(q.QueryRow(ctx, roomSelect+` WHERE r.room_number = $1`, number))
}

// ListRooms returns rooms with at least minCapacity seats, ordered by number.
func (s *Storage) ListRooms(ctx context.Context, minCapacity int) ([]persistence.Room, error) {
	rows, err := s.pool.Query(ctx, roomSelect+` WHERE r.capacity >= $1 ORDER BY r.room_number`, minCapacity)
	if err != nil {
		return nil, mapError(err)
	}
	rooms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (persistence.Room, error) {
		return scanRoom(row)
	})
	if err != nil {
		return nil, mapError(err)
	}
	if len(rooms) == 0 {
		return nil, nil
	}
	return rooms, nil
}

// DeleteRoom removes a room. Its bookings and role links cascade.
func (s *Storage) DeleteRoom(ctx context.Context, number string) error {
	return execOne(ctx, s.pool, `DELETE FROM rooms WHERE room_number = $1`, number)
}

func scanRoom(row pgx.Row) (persistence.Room, error) {
	var room persistence.Room
	if err := row.Scan(&room.Number, &room.Capacity, &room.Description, &room.RequestOnly, &room.CreatedAt, &room.AllowedRoles); err != nil {
		return persistence.Room{}, mapError(err)
	}
	room.CreatedAt = room.CreatedAt.UTC()
	if len(room.AllowedRoles) == 0 {
		room.AllowedRoles = nil
	}
	return room, nil
}

const sessionColumns = `id, user_id, token_hash, fingerprint, expires_at, created_at, updated_at, revoked_at`

// CreateSession stores a new session for a user.
func (s *Storage) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	if session.ID == "" || session.UserID == 0 || strings.TrimSpace(session.TokenHash) == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}
	return scanSession(s.pool.QueryRow(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+sessionColumns,
		session.ID, session.UserID, session.TokenHash, session.Fingerprint,
		session.ExpiresAt.UTC(), session.CreatedAt.UTC(), session.UpdatedAt.UTC(), session.RevokedAt,
	))
}

// GetSession retrieves a session by the hash of its token.
func (s *Storage) GetSession(ctx context.Context, tokenHash string) (persistence.Session, error) {
	return scanSession(s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token_hash = $1`, tokenHash))
}

// RevokeSession stamps the revocation time on a session.
func (s *Storage) RevokeSession(ctx context.Context, tokenHash string, revokedAt time.Time) (persistence.Session, error) {
	return scanSession(s.pool.QueryRow(ctx,
		`UPDATE sessions SET revoked_at = $2, updated_at = $2 WHERE token_hash = $1 RETURNING `+sessionColumns,
		tokenHash, revokedAt.UTC(),
	))
}

// DeleteExpiredSessions removes sessions that expired at or before reference.
func (s *Storage) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, reference.UTC())
	return mapError(err)
}

func scanSession(row pgx.Row) (persistence.Session, error) {
	var session persistence.Session
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.TokenHash,
		&session.Fingerprint,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.UpdatedAt,
		&session.RevokedAt,
	); err != nil {
		return persistence.Session{}, mapError(err)
	}
	session.ExpiresAt = session.ExpiresAt.UTC()
	session.CreatedAt = session.CreatedAt.UTC()
	session.UpdatedAt = session.UpdatedAt.UTC()
	if session.RevokedAt != nil {
		revoked := session.RevokedAt.UTC()
		session.RevokedAt = &revoked
	}
	return session, nil
}
