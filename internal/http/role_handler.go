package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/roombooking/internal/application"
)

type roleService interface {
	ListRoles(ctx context.Context, principal application.Principal) ([]string, error)
}

type RoleHandler struct {
	service   roleService
	responder responder
	logger    *slog.Logger
}

func NewRoleHandler(service roleService, logger *slog.Logger) *RoleHandler {
	base := defaultLogger(logger)
	return &RoleHandler{service: service, responder: newResponder(base), logger: base}
}

// List handles GET /roles.
func (h *RoleHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	roles, err := h.service.ListRoles(r.Context(), principal)
	if err != nil {
		handlerLogger(r.Context(), h.logger, "RoleHandler", "List").ErrorContext(r.Context(), "role list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	if roles == nil {
		roles = []string{}
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listRolesResponse{Roles: roles})
}

type listRolesResponse struct {
	Roles []string `json:"roles"`
}
