package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/roombooking/internal/persistence"
	"github.com/example/roombooking/internal/scheduler"
)

// RoomRepository captures the persistence operations needed by the service.
type RoomRepository interface {
	CreateRoom(ctx context.Context, room Room) error
	GetRoom(ctx context.Context, number string) (Room, error)
	ListRooms(ctx context.Context, minCapacity int) ([]Room, error)
	DeleteRoom(ctx context.Context, number string) error
}

// RoleCatalog resolves role names.
type RoleCatalog interface {
	MissingRoles(ctx context.Context, names []string) ([]string, error)
}

// RoomService owns the room directory: creation, deletion, listings and the
// availability annotated search.
type RoomService struct {
	rooms        RoomRepository
	roles        RoleCatalog
	availability *AvailabilityEngine
	validator    *scheduler.Validator
	now          func() time.Time
	logger       *slog.Logger
}

// NewRoomService constructs a room service with the provided dependencies.
func NewRoomService(rooms RoomRepository, roles RoleCatalog, availability *AvailabilityEngine, validator *scheduler.Validator, now func() time.Time) *RoomService {
	return NewRoomServiceWithLogger(rooms, roles, availability, validator, now, nil)
}

// NewRoomServiceWithLogger constructs a room service with a specified logger.
func NewRoomServiceWithLogger(rooms RoomRepository, roles RoleCatalog, availability *AvailabilityEngine, validator *scheduler.Validator, now func() time.Time, logger *slog.Logger) *RoomService {
	if now == nil {
		now = time.Now
	}
	if validator == nil {
		validator = scheduler.NewValidator(now, time.UTC)
	}
	return &RoomService{
		rooms:        rooms,
		roles:        roles,
		availability: availability,
		validator:    validator,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

func (s *RoomService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RoomService", operation, attrs...)
}

// GetRoom looks up a room. When requestOnly is set, a room whose flag differs
// is reported as missing.
func (s *RoomService) GetRoom(ctx context.Context, number string, requestOnly *bool) (Room, error) {
	if s == nil {
		return Room{}, fmt.Errorf("RoomService is nil")
	}
	if s.rooms == nil {
		return Room{}, fmt.Errorf("room repository not configured")
	}

	room, err := s.rooms.GetRoom(ctx, strings.TrimSpace(number))
	if err != nil {
		return Room{}, mapRoomRepoError("get room", err)
	}
	if requestOnly != nil && room.RequestOnly != *requestOnly {
		return Room{}, ErrRoomNotFound
	}
	return room, nil
}

// CreateRoom validates input and persists a new room for administrators.
func (s *RoomService) CreateRoom(ctx context.Context, params CreateRoomParams) (room Room, err error) {
	if s == nil {
		err = fmt.Errorf("RoomService is nil")
		return
	}
	if s.rooms == nil {
		err = fmt.Errorf("room repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateRoom",
		"principal_id", params.Principal.UserID,
		"room_number", params.Input.Number,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create room", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "room created")
	}()

	if !params.Principal.IsAdmin() {
		err = ErrForbidden
		return
	}

	if vErr := validateRoomInput(params.Input); vErr.HasErrors() {
		err = vErr
		return
	}

	room = Room{
		Number:       strings.TrimSpace(params.Input.Number),
		Capacity:     params.Input.Capacity,
		Description:  strings.TrimSpace(params.Input.Description),
		RequestOnly:  params.Input.RequestOnly,
		AllowedRoles: normalizeRoles(params.Input.Roles),
		CreatedAt:    s.now().UTC().Truncate(time.Second),
	}

	if _, getErr := s.rooms.GetRoom(ctx, room.Number); getErr == nil {
		err = ErrDuplicateRoom
		return
	} else if !errors.Is(getErr, persistence.ErrNotFound) {
		err = storageError("get room", getErr)
		return
	}

	if err = s.resolveRoles(ctx, room.AllowedRoles); err != nil {
		return
	}

	if err = s.rooms.CreateRoom(ctx, room); err != nil {
		err = mapRoomRepoError("create room", err)
		return
	}
	return
}

func (s *RoomService) resolveRoles(ctx context.Context, names []string) error {
	if len(names) == 0 || s.roles == nil {
		return nil
	}
	missing, err := s.roles.MissingRoles(ctx, names)
	if err != nil {
		return storageError("resolve roles", err)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrRoleNotFound, strings.Join(missing, ", "))
	}
	return nil
}

// DeleteRoom removes a room and, through the store, every booking of it.
func (s *RoomService) DeleteRoom(ctx context.Context, principal Principal, number string) error {
	if s == nil {
		return fmt.Errorf("RoomService is nil")
	}
	if !principal.IsAdmin() {
		return ErrForbidden
	}
	if s.rooms == nil {
		return fmt.Errorf("room repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteRoom",
		"principal_id", principal.UserID,
		"room_number", number,
	)

	if err := s.rooms.DeleteRoom(ctx, strings.TrimSpace(number)); err != nil {
		err = mapRoomRepoError("delete room", err)
		logger.ErrorContext(ctx, "failed to delete room", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "room deleted")
	return nil
}

// ListRooms returns every room ordered by number.
func (s *RoomService) ListRooms(ctx context.Context, principal Principal) (rooms []Room, err error) {
	if s == nil {
		err = fmt.Errorf("RoomService is nil")
		return
	}
	if s.rooms == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "ListRooms", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list rooms", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(rooms)).InfoContext(ctx, "rooms listed")
	}()

	rooms, err = s.rooms.ListRooms(ctx, 0)
	if err != nil {
		err = storageError("list rooms", err)
		return
	}
	sortRooms(rooms)
	return
}

// SearchRooms lists rooms with at least MinCapacity seats. Each room is
// marked with whether the principal's roles permit booking it and, when a
// window is given, whether an accepted booking already occupies it.
// Available rooms come first.
func (s *RoomService) SearchRooms(ctx context.Context, params SearchRoomsParams) (result SearchRoomsResult, err error) {
	if s == nil {
		err = fmt.Errorf("RoomService is nil")
		return
	}
	if s.rooms == nil {
		err = fmt.Errorf("room repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "SearchRooms",
		"principal_id", params.Principal.UserID,
		"min_capacity", params.MinCapacity,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to search rooms", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(result.Rooms)).InfoContext(ctx, "rooms searched")
	}()

	vErr := &ValidationError{}
	if params.MinCapacity < 0 {
		vErr.add("min_capacity", "min_capacity must not be negative")
	}
	start, end := strings.TrimSpace(params.Start), strings.TrimSpace(params.End)
	if (start == "") != (end == "") {
		vErr.add("start_datetime", "start_datetime and end_datetime must be given together")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	result.MinCapacity = params.MinCapacity
	blocked := map[string]struct{}{}
	if start != "" {
		var window scheduler.Range
		window, err = s.validator.Validate(start, end)
		if err != nil {
			return
		}
		result.Window = &window

		if s.availability != nil {
			blocked, err = s.availability.ConflictingRoomNumbers(ctx, window)
			if err != nil {
				return
			}
		}
	}

	var rooms []Room
	rooms, err = s.rooms.ListRooms(ctx, params.MinCapacity)
	if err != nil {
		err = storageError("list rooms", err)
		return
	}
	sortRooms(rooms)

	var available, unavailable []RoomAvailability
	for _, room := range rooms {
		entry := RoomAvailability{
			Room:            room,
			SufficientRoles: UserMayAccessRoom(room, params.Principal.Roles),
		}
		if _, taken := blocked[room.Number]; taken {
			unavailable = append(unavailable, entry)
			continue
		}
		entry.Available = true
		available = append(available, entry)
	}
	result.Rooms = append(available, unavailable...)
	return
}

func validateRoomInput(input RoomInput) *ValidationError {
	vErr := &ValidationError{}

	if strings.TrimSpace(input.Number) == "" {
		vErr.add("room_number", "room_number is required")
	}
	if input.Capacity <= 0 {
		vErr.add("capacity", "capacity must be positive")
	}
	for _, role := range input.Roles {
		if strings.TrimSpace(role) == "" {
			vErr.add("roles", "role names must not be blank")
			break
		}
	}

	return vErr
}

func mapRoomRepoError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return ErrRoomNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrDuplicateRoom
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return ErrRoleNotFound
	case errors.Is(err, persistence.ErrConstraintViolation):
		vErr := &ValidationError{}
		vErr.add("capacity", "capacity must be positive")
		return vErr
	}
	return storageError(op, err)
}

// normalizeRoles trims, deduplicates and sorts role names.
func normalizeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

func sortRooms(rooms []Room) {
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].Number < rooms[j].Number
	})
}
