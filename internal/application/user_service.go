package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/roombooking/internal/persistence"
)

// UserRepository captures the persistence operations needed by the user service.
type UserRepository interface {
	CreateUser(ctx context.Context, user UserCredentials) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	SetUserRoles(ctx context.Context, id int64, roles []string) error
	CountUsers(ctx context.Context) (int, error)
}

// PrincipalInvalidator drops cached identities of a user.
type PrincipalInvalidator interface {
	InvalidateUser(userID int64)
}

// UserService handles registration, profile lookup and role assignment.
type UserService struct {
	users       UserRepository
	roles       RoleCatalog
	hash        PasswordHasher
	invalidator PrincipalInvalidator
	now         func() time.Time
	logger      *slog.Logger
}

// NewUserService wires dependencies for the user service.
func NewUserService(users UserRepository, roles RoleCatalog, hash PasswordHasher, invalidator PrincipalInvalidator, now func() time.Time) *UserService {
	return NewUserServiceWithLogger(users, roles, hash, invalidator, now, nil)
}

// NewUserServiceWithLogger wires dependencies for the user service with a specified logger.
func NewUserServiceWithLogger(users UserRepository, roles RoleCatalog, hash PasswordHasher, invalidator PrincipalInvalidator, now func() time.Time, logger *slog.Logger) *UserService {
	if hash == nil {
		hash = HashPassword
	}
	if now == nil {
		now = time.Now
	}
	return &UserService{
		users:       users,
		roles:       roles,
		hash:        hash,
		invalidator: invalidator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *UserService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "UserService", operation, attrs...)
}

// Register creates an account with no roles.
func (s *UserService) Register(ctx context.Context, params RegisterUserParams) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user repository not configured")
		return
	}

	username := strings.TrimSpace(params.Username)
	logger := s.loggerWith(ctx, "Register", "username", username)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to register user", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID).InfoContext(ctx, "user registered")
	}()

	vErr := &ValidationError{}
	if username == "" {
		vErr.add("username", "username is required")
	}
	if params.Password == "" {
		vErr.add("password", "password is required")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var hash string
	hash, err = s.hash(params.Password)
	if err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}

	user, err = s.users.CreateUser(ctx, UserCredentials{
		User: User{
			Username:  username,
			Name:      strings.TrimSpace(params.Name),
			CreatedAt: s.now().UTC().Truncate(time.Second),
		},
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			err = ErrDuplicateUsername
			return
		}
		err = storageError("create user", err)
	}
	return
}

// Me returns the principal's own account.
func (s *UserService) Me(ctx context.Context, principal Principal) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("UserService is nil")
	}
	if s.users == nil {
		return User{}, fmt.Errorf("user repository not configured")
	}

	user, err := s.users.GetUser(ctx, principal.UserID)
	if err != nil {
		return User{}, mapUserRepoError("get user", err)
	}
	return user, nil
}

// ListUsers returns every account ordered by id. Administrators only.
func (s *UserService) ListUsers(ctx context.Context, principal Principal) ([]User, error) {
	if s == nil {
		return nil, fmt.Errorf("UserService is nil")
	}
	if !principal.IsAdmin() {
		return nil, ErrForbidden
	}
	if s.users == nil {
		return nil, nil
	}

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, storageError("list users", err)
	}
	return users, nil
}

// SetRoles replaces a user's role set. Administrators only.
func (s *UserService) SetRoles(ctx context.Context, params SetRolesParams) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user repository not configured")
		return
	}

	username := strings.TrimSpace(params.Username)
	logger := s.loggerWith(ctx, "SetRoles",
		"principal_id", params.Principal.UserID,
		"username", username,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to set roles", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("roles", user.Roles).InfoContext(ctx, "roles replaced")
	}()

	if !params.Principal.IsAdmin() {
		err = ErrForbidden
		return
	}

	user, err = s.users.GetUserByUsername(ctx, username)
	if err != nil {
		err = mapUserRepoError("get user", err)
		return
	}

	roles := normalizeRoles(params.Roles)
	if len(roles) > 0 && s.roles != nil {
		var missing []string
		missing, err = s.roles.MissingRoles(ctx, roles)
		if err != nil {
			err = storageError("resolve roles", err)
			return
		}
		if len(missing) > 0 {
			err = fmt.Errorf("%w: %s", ErrRoleNotFound, strings.Join(missing, ", "))
			return
		}
	}

	if err = s.users.SetUserRoles(ctx, user.ID, roles); err != nil {
		err = mapUserRepoError("set roles", err)
		return
	}
	if s.invalidator != nil {
		s.invalidator.InvalidateUser(user.ID)
	}

	user, err = s.users.GetUser(ctx, user.ID)
	if err != nil {
		err = mapUserRepoError("get user", err)
	}
	return
}

func mapUserRepoError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return ErrUserNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrDuplicateUsername
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return ErrRoleNotFound
	}
	return storageError(op, err)
}
