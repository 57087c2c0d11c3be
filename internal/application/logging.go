package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/roombooking/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidTimeFormat, "invalid_time_format"},
	{ErrInvalidInterval, "invalid_interval"},
	{ErrPastStartTime, "past_start_time"},
	{ErrInvalidOrdering, "invalid_ordering"},
	{ErrRoomNotFound, "room_not_found"},
	{ErrDuplicateRoom, "duplicate_room"},
	{ErrRoleNotFound, "role_not_found"},
	{ErrRequestOnlyRoom, "request_only_room"},
	{ErrForbidden, "forbidden"},
	{ErrSlotUnavailable, "slot_unavailable"},
	{ErrBookingNotFound, "booking_not_found"},
	{ErrUnauthorized, "unauthorized"},
	{ErrUserNotFound, "user_not_found"},
	{ErrDuplicateUsername, "duplicate_username"},
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrSessionExpired, "session_expired"},
	{ErrSessionRevoked, "session_revoked"},
	{ErrStorage, "storage"},
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range errorKinds {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}
