package application

import (
	"context"
	"fmt"
	"log/slog"
)

// RoleRepository captures the role catalog operations.
type RoleRepository interface {
	RoleCatalog
	CreateRole(ctx context.Context, name string) error
	ListRoles(ctx context.Context) ([]string, error)
}

// RoleService exposes the role catalog to administrators.
type RoleService struct {
	roles  RoleRepository
	logger *slog.Logger
}

// NewRoleService constructs a role service.
func NewRoleService(roles RoleRepository, logger *slog.Logger) *RoleService {
	return &RoleService{roles: roles, logger: defaultLogger(logger)}
}

// ListRoles returns every role name in order.
func (s *RoleService) ListRoles(ctx context.Context, principal Principal) ([]string, error) {
	if s == nil {
		return nil, fmt.Errorf("RoleService is nil")
	}
	if !principal.IsAdmin() {
		return nil, ErrForbidden
	}
	if s.roles == nil {
		return nil, nil
	}

	roles, err := s.roles.ListRoles(ctx)
	if err != nil {
		err = storageError("list roles", err)
		serviceLogger(ctx, s.logger, "RoleService", "ListRoles", "principal_id", principal.UserID).
			ErrorContext(ctx, "failed to list roles", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	return roles, nil
}
