package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/roombooking/internal/application"
)

type bookingService interface {
	CreateBooking(ctx context.Context, params application.CreateBookingParams) (application.Booking, error)
	ListOwnBookings(ctx context.Context, principal application.Principal) ([]application.Booking, error)
	GetOwnBooking(ctx context.Context, principal application.Principal, id int64) (application.Booking, error)
	ListPendingRequests(ctx context.Context, principal application.Principal) ([]application.Booking, error)
	AcceptBooking(ctx context.Context, principal application.Principal, id int64) (application.Booking, error)
	UpdateBooking(ctx context.Context, params application.UpdateBookingParams) (application.Booking, error)
	DeleteBooking(ctx context.Context, principal application.Principal, id int64) error
	DeclineRequest(ctx context.Context, principal application.Principal, id int64) error
}

type BookingHandler struct {
	service   bookingService
	responder responder
	logger    *slog.Logger
}

func NewBookingHandler(service bookingService, logger *slog.Logger) *BookingHandler {
	base := defaultLogger(logger)
	return &BookingHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *BookingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "BookingHandler", operation, attrs...)
}

// Create handles POST /bookings.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, false)
}

// CreateRequest handles POST /bookings/request. The booking stays pending
// until an administrator approves it.
func (h *BookingHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, true)
}

func (h *BookingHandler) create(w http.ResponseWriter, r *http.Request, isRequest bool) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	operation := "Create"
	if isRequest {
		operation = "CreateRequest"
	}

	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), operation, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode booking request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	roomNumber := strings.TrimSpace(req.RoomNumber)
	logger := h.log(r.Context(), operation, "room_number", roomNumber)

	booking, err := h.service.CreateBooking(r.Context(), application.CreateBookingParams{
		Principal:  principal,
		RoomNumber: roomNumber,
		Start:      req.StartDatetime,
		End:        req.EndDatetime,
		IsRequest:  isRequest,
	})
	if err != nil {
		logger.WarnContext(r.Context(), "booking creation failed", "error", err, "error_kind", application.ErrorKind(err))
		if errors.Is(err, application.ErrRoomNotFound) {
			h.responder.writeJSON(r.Context(), w, http.StatusBadRequest, errorResponse{
				ErrorCode: strings.ToUpper(application.ErrorKind(err)),
				Message:   fmt.Sprintf("room %s does not exist", roomNumber),
			})
			return
		}
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "booking created", "booking_id", booking.ID, "accepted", booking.Accepted)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toBookingDTO(booking))
}

// List handles GET /bookings.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "List")
	bookings, err := h.service.ListOwnBookings(r.Context(), principal)
	if err != nil {
		logger.ErrorContext(r.Context(), "booking list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(bookings)).InfoContext(r.Context(), "bookings listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listBookingsResponse{Bookings: toBookingDTOs(bookings)})
}

// ListRequests handles GET /bookings/request.
func (h *BookingHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "ListRequests")
	bookings, err := h.service.ListPendingRequests(r.Context(), principal)
	if err != nil {
		logger.ErrorContext(r.Context(), "pending request list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(bookings)).InfoContext(r.Context(), "pending requests listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listBookingsResponse{Bookings: toBookingDTOs(bookings)})
}

// Get handles GET /bookings/{id}.
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := h.bookingID(w, r, "Get")
	if !ok {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	booking, err := h.service.GetOwnBooking(r.Context(), principal, id)
	if err != nil {
		h.log(r.Context(), "Get", "booking_id", id).WarnContext(r.Context(), "booking lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toBookingDTO(booking))
}

// Update handles PUT /bookings/{id}.
func (h *BookingHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := h.bookingID(w, r, "Update")
	if !ok {
		return
	}
	logger := h.log(r.Context(), "Update", "booking_id", id)

	var req bookingTimesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(r.Context(), "failed to decode booking update", "error", err, "error_kind", "bad_request")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	booking, err := h.service.UpdateBooking(r.Context(), application.UpdateBookingParams{
		Principal: principal,
		BookingID: id,
		Start:     req.StartDatetime,
		End:       req.EndDatetime,
	})
	if err != nil {
		logger.WarnContext(r.Context(), "booking update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "booking updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toBookingDTO(booking))
}

// Delete handles DELETE /bookings/{id}.
func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := h.bookingID(w, r, "Delete")
	if !ok {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Delete", "booking_id", id)
	if err := h.service.DeleteBooking(r.Context(), principal, id); err != nil {
		logger.WarnContext(r.Context(), "booking delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "booking deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, bookingConfirmation{ID: id, Message: fmt.Sprintf("booking %d deleted", id)})
}

// Approve handles PUT /bookings/{id}/approve.
func (h *BookingHandler) Approve(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := h.bookingID(w, r, "Approve")
	if !ok {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Approve", "booking_id", id)
	booking, err := h.service.AcceptBooking(r.Context(), principal, id)
	if err != nil {
		logger.WarnContext(r.Context(), "booking approval failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "booking request approved", "room_number", booking.RoomNumber)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, bookingConfirmation{
		ID:      booking.ID,
		Message: fmt.Sprintf("approved booking request %d on room %s", booking.ID, booking.RoomNumber),
	})
}

// Decline handles DELETE /bookings/{id}/decline.
func (h *BookingHandler) Decline(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := h.bookingID(w, r, "Decline")
	if !ok {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Decline", "booking_id", id)
	if err := h.service.DeclineRequest(r.Context(), principal, id); err != nil {
		logger.WarnContext(r.Context(), "booking decline failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "booking request declined")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, bookingConfirmation{ID: id, Message: fmt.Sprintf("declined booking request %d", id)})
}

func (h *BookingHandler) bookingID(w http.ResponseWriter, r *http.Request, operation string) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.log(r.Context(), operation, "error_kind", "bad_request").WarnContext(r.Context(), "invalid booking id", "value", raw)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidBookingID)
		return 0, false
	}
	return id, true
}

type bookingTimesRequest struct {
	StartDatetime string `json:"start_datetime"`
	EndDatetime   string `json:"end_datetime"`
}

type bookingRequest struct {
	RoomNumber string `json:"room_number"`
	bookingTimesRequest
}

type listBookingsResponse struct {
	Bookings []bookingDTO `json:"bookings"`
}

type bookingConfirmation struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

type bookingDTO struct {
	ID         int64   `json:"id"`
	UserID     int64   `json:"user_id"`
	Username   string  `json:"username,omitempty"`
	RoomNumber string  `json:"room_number"`
	StartTime  string  `json:"start_time"`
	EndTime    string  `json:"end_time"`
	Accepted   bool    `json:"accepted"`
	CreatedAt  string  `json:"created_at"`
	DecidedAt  *string `json:"decided_at,omitempty"`
}

func toBookingDTO(booking application.Booking) bookingDTO {
	dto := bookingDTO{
		ID:         booking.ID,
		UserID:     booking.UserID,
		Username:   booking.Username,
		RoomNumber: booking.RoomNumber,
		StartTime:  booking.Start.UTC().Format(time.RFC3339),
		EndTime:    booking.End.UTC().Format(time.RFC3339),
		Accepted:   booking.Accepted,
		CreatedAt:  booking.CreatedAt.UTC().Format(time.RFC3339),
	}
	if booking.DecidedAt != nil {
		decided := booking.DecidedAt.UTC().Format(time.RFC3339)
		dto.DecidedAt = &decided
	}
	return dto
}

func toBookingDTOs(bookings []application.Booking) []bookingDTO {
	out := make([]bookingDTO, 0, len(bookings))
	for _, booking := range bookings {
		out = append(out, toBookingDTO(booking))
	}
	return out
}
