package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/roombooking/internal/application"
)

type roomService interface {
	CreateRoom(ctx context.Context, params application.CreateRoomParams) (application.Room, error)
	DeleteRoom(ctx context.Context, principal application.Principal, number string) error
	ListRooms(ctx context.Context, principal application.Principal) ([]application.Room, error)
	SearchRooms(ctx context.Context, params application.SearchRoomsParams) (application.SearchRoomsResult, error)
}

type RoomHandler struct {
	service   roomService
	responder responder
	logger    *slog.Logger
}

func NewRoomHandler(service roomService, logger *slog.Logger) *RoomHandler {
	base := defaultLogger(logger)
	return &RoomHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *RoomHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "RoomHandler", operation, attrs...)
}

// Search handles GET /rooms. Without a time window every room counts as
// available.
func (h *RoomHandler) Search(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	minCapacity := 0
	if raw := strings.TrimSpace(query.Get("min_capacity")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.log(r.Context(), "Search", "error_kind", "bad_request").WarnContext(r.Context(), "invalid min_capacity", "value", raw)
			h.responder.writeJSON(r.Context(), w, http.StatusBadRequest, errorResponse{
				ErrorCode: "VALIDATION",
				Message:   "request contains invalid fields",
				Errors:    map[string]string{"min_capacity": errInvalidMinCapacity.Error()},
			})
			return
		}
		minCapacity = parsed
	}

	logger := h.log(r.Context(), "Search", "min_capacity", minCapacity)
	principal, _ := PrincipalFromContext(r.Context())
	result, err := h.service.SearchRooms(r.Context(), application.SearchRoomsParams{
		Principal:   principal,
		MinCapacity: minCapacity,
		Start:       strings.TrimSpace(query.Get("start_datetime")),
		End:         strings.TrimSpace(query.Get("end_datetime")),
	})
	if err != nil {
		logger.WarnContext(r.Context(), "room search failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(result.Rooms)).InfoContext(r.Context(), "rooms searched")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSearchRoomsResponse(result))
}

// ListAll handles GET /rooms/all.
func (h *RoomHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "ListAll")
	rooms, err := h.service.ListRooms(r.Context(), principal)
	if err != nil {
		logger.ErrorContext(r.Context(), "room list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(rooms)).InfoContext(r.Context(), "rooms listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listRoomsResponse{Rooms: toRoomDTOs(rooms)})
}

// Create handles POST /rooms.
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req roomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode room request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Create", "room_number", req.RoomNumber)

	room, err := h.service.CreateRoom(r.Context(), application.CreateRoomParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		logger.WarnContext(r.Context(), "room creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "room created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toRoomDTO(room))
}

// Delete handles DELETE /rooms/{number}. Bookings of the room go with it.
func (h *RoomHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	number := strings.TrimSpace(chi.URLParam(r, "number"))
	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Delete", "room_number", number)
	if err := h.service.DeleteRoom(r.Context(), principal, number); err != nil {
		logger.WarnContext(r.Context(), "room delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "room deleted")
	h.responder.writeMessage(r.Context(), w, http.StatusOK, fmt.Sprintf("room %s deleted", number))
}

type roomRequest struct {
	RoomNumber  string   `json:"room_number"`
	Capacity    int      `json:"capacity"`
	Description *string  `json:"description"`
	RequestOnly *bool    `json:"request_only"`
	Roles       []string `json:"roles"`
}

func (r roomRequest) toInput() application.RoomInput {
	input := application.RoomInput{
		Number:   strings.TrimSpace(r.RoomNumber),
		Capacity: r.Capacity,
		Roles:    r.Roles,
	}
	if r.Description != nil {
		input.Description = strings.TrimSpace(*r.Description)
	}
	if r.RequestOnly != nil {
		input.RequestOnly = *r.RequestOnly
	}
	return input
}

type listRoomsResponse struct {
	Rooms []roomDTO `json:"rooms"`
}

type roomDTO struct {
	RoomNumber  string   `json:"room_number"`
	Capacity    int      `json:"capacity"`
	Description string   `json:"description"`
	RequestOnly bool     `json:"request_only"`
	Roles       []string `json:"roles"`
	CreatedAt   string   `json:"created_at"`
}

func toRoomDTO(room application.Room) roomDTO {
	roles := room.AllowedRoles
	if roles == nil {
		roles = []string{}
	}
	return roomDTO{
		RoomNumber:  room.Number,
		Capacity:    room.Capacity,
		Description: room.Description,
		RequestOnly: room.RequestOnly,
		Roles:       roles,
		CreatedAt:   room.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toRoomDTOs(rooms []application.Room) []roomDTO {
	out := make([]roomDTO, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, toRoomDTO(room))
	}
	return out
}

type searchRoomsResponse struct {
	Filters roomFilters        `json:"filters"`
	Rooms   []availableRoomDTO `json:"rooms"`
}

type roomFilters struct {
	MinCapacity   int     `json:"min_capacity"`
	StartDatetime *string `json:"start_datetime"`
	EndDatetime   *string `json:"end_datetime"`
}

type availableRoomDTO struct {
	roomDTO
	Available       bool `json:"available"`
	SufficientRoles bool `json:"sufficient_roles"`
}

func toSearchRoomsResponse(result application.SearchRoomsResult) searchRoomsResponse {
	resp := searchRoomsResponse{
		Filters: roomFilters{MinCapacity: result.MinCapacity},
		Rooms:   make([]availableRoomDTO, 0, len(result.Rooms)),
	}
	if result.Window != nil {
		start := result.Window.Start.Format(time.RFC3339)
		end := result.Window.End.Format(time.RFC3339)
		resp.Filters.StartDatetime = &start
		resp.Filters.EndDatetime = &end
	}
	for _, entry := range result.Rooms {
		resp.Rooms = append(resp.Rooms, availableRoomDTO{
			roomDTO:         toRoomDTO(entry.Room),
			Available:       entry.Available,
			SufficientRoles: entry.SufficientRoles,
		})
	}
	return resp
}
