package application

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/roombooking/internal/persistence"
)

// CredentialStore exposes user credential lookup operations required by the auth service.
type CredentialStore interface {
	GetUserCredentialsByUsername(ctx context.Context, username string) (UserCredentials, error)
	GetUser(ctx context.Context, id int64) (User, error)
}

// SessionRepository captures the persistence interactions for issued
// sessions. Sessions are addressed by the hash of their token.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, tokenHash string) (Session, error)
	RevokeSession(ctx context.Context, tokenHash string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}

// PasswordVerifier compares a stored hash with a candidate password.
type PasswordVerifier func(hashedPassword, password string) error

// AuthConfig holds the session settings of the auth service.
type AuthConfig struct {
	// SessionSecret keys the HMAC under which tokens are stored.
	SessionSecret []byte
	SessionTTL    time.Duration
	// PrincipalCacheTTL bounds how long a validated principal is reused.
	// Zero disables the cache.
	PrincipalCacheTTL time.Duration
}

// AuthService coordinates login, logout and session validation.
type AuthService struct {
	credentials    CredentialStore
	sessions       SessionRepository
	verifyPassword PasswordVerifier
	tokenGenerator func() (string, error)
	secret         []byte
	sessionTTL     time.Duration
	cache          *principalCache
	now            func() time.Time
	logger         *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(credentials CredentialStore, sessions SessionRepository, cfg AuthConfig, now func() time.Time) *AuthService {
	return NewAuthServiceWithLogger(credentials, sessions, cfg, now, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(credentials CredentialStore, sessions SessionRepository, cfg AuthConfig, now func() time.Time, logger *slog.Logger) *AuthService {
	if now == nil {
		now = time.Now
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AuthService{
		credentials:    credentials,
		sessions:       sessions,
		verifyPassword: VerifyPassword,
		tokenGenerator: newSessionToken,
		secret:         append([]byte(nil), cfg.SessionSecret...),
		sessionTTL:     ttl,
		cache:          newPrincipalCache(cfg.PrincipalCacheTTL, now),
		now:            now,
		logger:         defaultLogger(logger),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// SessionTTL reports how long issued sessions stay valid.
func (s *AuthService) SessionTTL() time.Duration {
	if s == nil {
		return 0
	}
	return s.sessionTTL
}

// Authenticate validates credentials and issues a new session token.
func (s *AuthService) Authenticate(ctx context.Context, params AuthenticateParams) (result AuthenticateResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.credentials == nil || s.sessions == nil {
		err = fmt.Errorf("auth stores not configured")
		return
	}

	username := strings.TrimSpace(params.Username)
	logger := s.loggerWith(ctx, "Authenticate", "username", username)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "authentication failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"user_id", result.User.ID,
			"session_id", result.Session.ID,
		).InfoContext(ctx, "authentication succeeded")
	}()

	if username == "" || params.Password == "" {
		err = ErrInvalidCredentials
		return
	}

	var creds UserCredentials
	creds, err = s.credentials.GetUserCredentialsByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrInvalidCredentials
			return
		}
		err = storageError("get credentials", err)
		return
	}

	if err = s.verifyPassword(creds.PasswordHash, params.Password); err != nil {
		err = ErrInvalidCredentials
		return
	}

	var token string
	token, err = s.tokenGenerator()
	if err != nil {
		err = fmt.Errorf("generate session token: %w", err)
		return
	}

	now := s.now().UTC().Truncate(time.Second)
	if err = s.sessions.DeleteExpiredSessions(ctx, now); err != nil {
		err = storageError("prune sessions", err)
		return
	}

	var session Session
	session, err = s.sessions.CreateSession(ctx, Session{
		ID:          uuid.NewString(),
		UserID:      creds.User.ID,
		TokenHash:   s.hashToken(token),
		Fingerprint: strings.TrimSpace(params.Fingerprint),
		ExpiresAt:   now.Add(s.sessionTTL),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		err = storageError("create session", err)
		return
	}
	session.Token = token

	result = AuthenticateResult{User: creds.User, Session: session}
	return
}

// ValidateSession resolves a bearer token into the principal it was issued to.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (principal Principal, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.credentials == nil || s.sessions == nil {
		err = fmt.Errorf("auth stores not configured")
		return
	}

	trimmed := strings.TrimSpace(token)
	logger := s.loggerWith(ctx, "ValidateSession", "token_provided", trimmed != "")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "session validation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("principal_id", principal.UserID).DebugContext(ctx, "session validated")
	}()

	if trimmed == "" {
		err = ErrUnauthorized
		return
	}

	hash := s.hashToken(trimmed)
	if cached, ok := s.cache.Get(hash); ok {
		principal = cached
		return
	}

	var session Session
	session, err = s.sessions.GetSession(ctx, hash)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrUnauthorized
			return
		}
		err = storageError("get session", err)
		return
	}

	now := s.now()
	if session.RevokedAt != nil && !session.RevokedAt.IsZero() {
		err = ErrSessionRevoked
		return
	}
	if !session.ExpiresAt.After(now) {
		err = ErrSessionExpired
		return
	}

	var user User
	user, err = s.credentials.GetUser(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrUnauthorized
			return
		}
		err = storageError("get user", err)
		return
	}

	principal = Principal{UserID: user.ID, Username: user.Username, Roles: user.Roles}
	s.cache.Set(hash, principal, session.ExpiresAt)
	return
}

// RevokeSession logs a token out.
func (s *AuthService) RevokeSession(ctx context.Context, token string) error {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}
	if s.sessions == nil {
		return fmt.Errorf("session repository not configured")
	}

	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return ErrUnauthorized
	}

	logger := s.loggerWith(ctx, "RevokeSession")
	hash := s.hashToken(trimmed)
	s.cache.Invalidate(hash)

	if _, err := s.sessions.RevokeSession(ctx, hash, s.now().UTC().Truncate(time.Second)); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrUnauthorized
		} else {
			err = storageError("revoke session", err)
		}
		logger.ErrorContext(ctx, "failed to revoke session", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "session revoked")
	return nil
}

// InvalidateUser forgets cached principals of a user, so that role changes
// take effect on the next request.
func (s *AuthService) InvalidateUser(userID int64) {
	if s == nil {
		return
	}
	s.cache.InvalidateUser(userID)
}

func (s *AuthService) hashToken(token string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
