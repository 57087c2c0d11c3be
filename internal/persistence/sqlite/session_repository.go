package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/example/roombooking/internal/persistence"
)

const sessionColumns = `id, user_id, token_hash, fingerprint, expires_at, created_at, updated_at, revoked_at`

// CreateSession stores a new session for a user.
func (s *Storage) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	if session.ID == "" || session.UserID == 0 || strings.TrimSpace(session.TokenHash) == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}

	if _, err := s.pool.DB().ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		session.TokenHash,
		session.Fingerprint,
		formatTime(session.ExpiresAt),
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
		formatNullableTime(session.RevokedAt),
	); err != nil {
		return persistence.Session{}, mapError(err)
	}
	return s.GetSession(ctx, session.TokenHash)
}

// GetSession retrieves a session by the hash of its token.
func (s *Storage) GetSession(ctx context.Context, tokenHash string) (persistence.Session, error) {
	if strings.TrimSpace(tokenHash) == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return scanSession(s.pool.DB().QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE token_hash = ?`, tokenHash))
}

// RevokeSession stamps the revocation time on a session.
func (s *Storage) RevokeSession(ctx context.Context, tokenHash string, revokedAt time.Time) (persistence.Session, error) {
	stamp := formatTime(revokedAt)
	if err := execOne(ctx, s.pool.DB(),
		`UPDATE sessions SET revoked_at = ?, updated_at = ? WHERE token_hash = ?`,
		stamp, stamp, tokenHash,
	); err != nil {
		return persistence.Session{}, err
	}
	return s.GetSession(ctx, tokenHash)
}

// DeleteExpiredSessions removes sessions that expired at or before reference.
func (s *Storage) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	if _, err := s.pool.DB().ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`, formatTime(reference)); err != nil {
		return mapError(err)
	}
	return nil
}

func scanSession(row rowScanner) (persistence.Session, error) {
	var (
		session                         persistence.Session
		expiresAt, createdAt, updatedAt string
		revokedAt                       sql.NullString
	)
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.TokenHash,
		&session.Fingerprint,
		&expiresAt,
		&createdAt,
		&updatedAt,
		&revokedAt,
	); err != nil {
		return persistence.Session{}, mapError(err)
	}

	var err error
	if session.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return persistence.Session{}, err
	}
	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Session{}, err
	}
	if session.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Session{}, err
	}
	if session.RevokedAt, err = parseNullableTime(revokedAt); err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}
