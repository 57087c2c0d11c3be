package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/roombooking/internal/application"
	"github.com/example/roombooking/internal/logging"
)

var (
	errBadRequestBody      = errors.New("request body is malformed")
	errInvalidBookingID    = errors.New("booking id must be a positive integer")
	errInvalidMinCapacity  = errors.New("min_capacity must be an integer")
	errMissingSessionToken = errors.New("authentication token is required")
	errMissingUsername     = errors.New("username is required")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := statusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request rejected", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

func (r responder) writeMessage(ctx context.Context, w http.ResponseWriter, status int, message string) {
	r.writeJSON(ctx, w, status, messageResponse{Message: message})
}

// handleServiceError translates the application error taxonomy into a status
// code and a message that never carries storage detail.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	status := statusForError(err)
	resp := errorResponse{
		ErrorCode: strings.ToUpper(application.ErrorKind(err)),
		Message:   messageForError(err, status),
	}

	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		resp.Errors = cloneFieldErrors(vErr.FieldErrors)
	}

	if status >= http.StatusInternalServerError {
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err, "error_kind", application.ErrorKind(err))
	}
	r.writeJSON(ctx, w, status, resp)
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func statusForError(err error) int {
	var vErr *application.ValidationError
	switch {
	case errors.As(err, &vErr),
		errors.Is(err, application.ErrInvalidTimeFormat),
		errors.Is(err, application.ErrInvalidInterval),
		errors.Is(err, application.ErrPastStartTime),
		errors.Is(err, application.ErrInvalidOrdering),
		errors.Is(err, application.ErrSlotUnavailable),
		errors.Is(err, application.ErrRequestOnlyRoom),
		errors.Is(err, application.ErrDuplicateRoom),
		errors.Is(err, application.ErrDuplicateUsername),
		errors.Is(err, application.ErrInvalidCredentials):
		return http.StatusBadRequest
	case errors.Is(err, application.ErrUnauthorized),
		errors.Is(err, application.ErrSessionExpired),
		errors.Is(err, application.ErrSessionRevoked):
		return http.StatusUnauthorized
	case errors.Is(err, application.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, application.ErrBookingNotFound),
		errors.Is(err, application.ErrRoomNotFound),
		errors.Is(err, application.ErrUserNotFound),
		errors.Is(err, application.ErrRoleNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func messageForError(err error, status int) string {
	switch {
	case errors.Is(err, application.ErrInvalidTimeFormat):
		return "start_datetime and end_datetime must be ISO 8601 timestamps"
	case errors.Is(err, application.ErrInvalidInterval):
		return "booking times must fall on 15 minute boundaries"
	case errors.Is(err, application.ErrPastStartTime):
		return "start_datetime must not be in the past"
	case errors.Is(err, application.ErrInvalidOrdering):
		return "end_datetime must be after start_datetime"
	case errors.Is(err, application.ErrSlotUnavailable):
		return "the room is already booked for the requested time"
	case errors.Is(err, application.ErrRequestOnlyRoom):
		return "this room can only be booked by request"
	case errors.Is(err, application.ErrDuplicateRoom):
		return "a room with this number already exists"
	case errors.Is(err, application.ErrDuplicateUsername):
		return "username already registered"
	case errors.Is(err, application.ErrInvalidCredentials):
		return "incorrect username or password"
	case errors.Is(err, application.ErrSessionExpired):
		return "session expired, please log in again"
	case errors.Is(err, application.ErrSessionRevoked):
		return "session was logged out, please log in again"
	case errors.Is(err, application.ErrForbidden):
		return "you do not have permission to perform this action"
	case errors.Is(err, application.ErrBookingNotFound):
		return "booking not found"
	case errors.Is(err, application.ErrRoomNotFound):
		return "room not found"
	case errors.Is(err, application.ErrUserNotFound):
		return "user not found"
	case errors.Is(err, application.ErrRoleNotFound):
		return "role not found"
	}
	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		return "request contains invalid fields"
	}
	return statusMessage(status)
}

func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "the request is invalid"
	case http.StatusUnauthorized:
		return "authentication required"
	case http.StatusForbidden:
		return "you do not have permission to perform this action"
	case http.StatusNotFound:
		return "resource not found"
	case http.StatusTooManyRequests:
		return "too many requests, try again later"
	case http.StatusServiceUnavailable:
		return "service unavailable"
	default:
		return "internal server error"
	}
}

func cloneFieldErrors(fields map[string]string) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(fields))
	for field, msg := range fields {
		out[field] = msg
	}
	return out
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}
