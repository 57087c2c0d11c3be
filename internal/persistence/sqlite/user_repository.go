package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/example/roombooking/internal/persistence"
)

// CreateRole inserts a role into the catalog.
func (s *Storage) CreateRole(ctx context.Context, role persistence.Role) error {
	name := strings.TrimSpace(role.Name)
	if name == "" {
		return persistence.ErrConstraintViolation
	}
	if _, err := s.pool.DB().ExecContext(ctx, `INSERT INTO roles (name) VALUES (?)`, name); err != nil {
		return mapError(err)
	}
	return nil
}

// ListRoles returns every role ordered by name.
func (s *Storage) ListRoles(ctx context.Context) ([]persistence.Role, error) {
	rows, err := s.pool.DB().QueryContext(ctx, `SELECT name FROM roles ORDER BY name`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var roles []persistence.Role
	for rows.Next() {
		var role persistence.Role
		if err := rows.Scan(&role.Name); err != nil {
			return nil, mapError(err)
		}
		roles = append(roles, role)
	}
	return roles, mapError(rows.Err())
}

// MissingRoles returns the subset of names that are not in the catalog.
func (s *Storage) MissingRoles(ctx context.Context, names []string) ([]string, error) {
	return missingRoles(ctx, s.pool.DB(), names)
}

func missingRoles(ctx context.Context, q querier, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	args := make([]any, len(names))
	for i, name := range names {
		args[i] = name
	}
	rows, err := q.QueryContext(ctx, `SELECT name FROM roles WHERE name IN (`+placeholders(len(names))+`)`, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	known := make(map[string]struct{}, len(names))
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, mapError(err)
		}
		known[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	var missing []string
	for _, name := range names {
		if _, ok := known[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

// CreateUser inserts a user together with its role memberships.
func (s *Storage) CreateUser(ctx context.Context, user persistence.User) (persistence.User, error) {
	if strings.TrimSpace(user.Username) == "" || user.PasswordHash == "" {
		return persistence.User{}, persistence.ErrConstraintViolation
	}

	err := s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO users (username, name, password_hash, created_at) VALUES (?, ?, ?, ?)`,
			user.Username, user.Name, user.PasswordHash, formatTime(user.CreatedAt),
		)
		if err != nil {
			return mapError(err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("sqlite: read user id: %w", err)
		}
		user.ID = id
		return replaceUserRoles(ctx, tx, id, user.Roles)
	})
	if err != nil {
		return persistence.User{}, err
	}
	return s.GetUser(ctx, user.ID)
}

// GetUser retrieves a user by id.
func (s *Storage) GetUser(ctx context.Context, id int64) (persistence.User, error) {
	row := s.pool.DB().QueryRowContext(ctx,
		`SELECT id, username, name, password_hash, created_at FROM users WHERE id = ?`, id)
	return s.scanUserWithRoles(ctx, row)
}

// GetUserByUsername retrieves a user by login name.
func (s *Storage) GetUserByUsername(ctx context.Context, username string) (persistence.User, error) {
	row := s.pool.DB().QueryRowContext(ctx,
		`SELECT id, username, name, password_hash, created_at FROM users WHERE username = ?`, username)
	return s.scanUserWithRoles(ctx, row)
}

// ListUsers returns every user ordered by id.
func (s *Storage) ListUsers(ctx context.Context) ([]persistence.User, error) {
	rows, err := s.pool.DB().QueryContext(ctx,
		`SELECT id, username, name, password_hash, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var users []persistence.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	roles, err := s.allUserRoles(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].Roles = roles[users[i].ID]
	}
	return users, nil
}

// SetUserRoles replaces the role set of a user.
func (s *Storage) SetUserRoles(ctx context.Context, id int64, roles []string) error {
	return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, id).Scan(&exists); err != nil {
			return mapError(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = ?`, id); err != nil {
			return mapError(err)
		}
		return replaceUserRoles(ctx, tx, id, roles)
	})
}

// CountUsers reports how many accounts exist.
func (s *Storage) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, mapError(err)
	}
	return count, nil
}

func replaceUserRoles(ctx context.Context, tx *sql.Tx, userID int64, roles []string) error {
	for _, role := range roles {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_roles (user_id, role) VALUES (?, ?)`, userID, role); err != nil {
			return mapError(err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (persistence.User, error) {
	var (
		user      persistence.User
		createdAt string
	)
	if err := row.Scan(&user.ID, &user.Username, &user.Name, &user.PasswordHash, &createdAt); err != nil {
		return persistence.User{}, mapError(err)
	}
	ts, err := parseTime(createdAt)
	if err != nil {
		return persistence.User{}, err
	}
	user.CreatedAt = ts
	return user, nil
}

func (s *Storage) scanUserWithRoles(ctx context.Context, row *sql.Row) (persistence.User, error) {
	user, err := scanUser(row)
	if err != nil {
		return persistence.User{}, err
	}
	user.Roles, err = s.userRoles(ctx, user.ID)
	if err != nil {
		return persistence.User{}, err
	}
	return user, nil
}

func (s *Storage) userRoles(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.pool.DB().QueryContext(ctx,
		`SELECT role FROM user_roles WHERE user_id = ? ORDER BY role`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, mapError(err)
		}
		roles = append(roles, role)
	}
	return roles, mapError(rows.Err())
}

func (s *Storage) allUserRoles(ctx context.Context) (map[int64][]string, error) {
	rows, err := s.pool.DB().QueryContext(ctx, `SELECT user_id, role FROM user_roles`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make(map[int64][]string)
	for rows.Next() {
		var (
			id   int64
			role string
		)
		if err := rows.Scan(&id, &role); err != nil {
			return nil, mapError(err)
		}
		out[id] = append(out[id], role)
	}
	for id := range out {
		sort.Strings(out[id])
	}
	return out, mapError(rows.Err())
}
