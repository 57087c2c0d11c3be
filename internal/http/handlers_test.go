package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/example/roombooking/internal/application"
	"github.com/example/roombooking/internal/testfixtures"
)

type apiHarness struct {
	*testfixtures.SQLiteHarness
	router      http.Handler
	adminToken  string
	userToken   string
	mgrToken    string
	employee    testfixtures.UserFixture
	pingFailure error
}

func (h *apiHarness) Ping(ctx context.Context) error {
	if h.pingFailure != nil {
		return h.pingFailure
	}
	return h.Store.Ping(ctx)
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	h := &apiHarness{SQLiteHarness: testfixtures.NewSQLiteHarness(t)}
	seeded, err := h.Services.Seeder.Seed(context.Background(), application.SeedParams{AdminUsername: "root", AdminPassword: "pw"})
	require.NoError(t, err)
	require.True(t, seeded)

	h.employee = h.CreateUser(t, testfixtures.NewUserFixture(testfixtures.WithUserRoles(application.RoleEmployee)))
	manager := h.CreateUser(t, testfixtures.NewUserFixture(testfixtures.WithUserRoles(application.RoleEmployee, application.RoleManager)))
	h.adminToken = h.Login(t, testfixtures.NewUserFixture(testfixtures.WithUsername("root"), testfixtures.WithUserPassword("pw")))
	h.userToken = h.Login(t, h.employee)
	h.mgrToken = h.Login(t, manager)

	logger := discardLogger()
	services := h.Services
	h.router = NewRouter(RouterConfig{
		Auth:         NewAuthHandler(services.Auth, false, logger),
		Users:        NewUserHandler(services.Users, services.Auth, false, logger),
		Rooms:        NewRoomHandler(services.Rooms, logger),
		Bookings:     NewBookingHandler(services.Bookings, logger),
		Roles:        NewRoleHandler(services.Roles, logger),
		Health:       NewHealthHandler(h, h.Clock.NowFunc(), logger),
		Sessions:     services.Auth,
		LoginLimiter: NewIPRateLimiter(rate.Limit(0.001), 3),
		Logger:       logger,
	})
	return h
}

func (h *apiHarness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func bookingBody(room string, start, end string) map[string]string {
	return map[string]string{"room_number": room, "start_datetime": start, "end_datetime": end}
}

func TestAuthHandlers(t *testing.T) {
	t.Parallel()

	t.Run("registration opens a session", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		rec := h.do(t, http.MethodPost, "/users", "", map[string]string{"username": "newbie", "password": "secret", "name": "New Bie"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		resp := decodeBody[tokenResponse](t, rec)
		assert.Equal(t, "newbie", resp.User.Username)
		assert.Empty(t, resp.User.Roles)
		assert.NotEmpty(t, resp.AccessToken)
		assert.Contains(t, rec.Header().Get("Set-Cookie"), sessionCookieName+"="+resp.AccessToken)

		me := h.do(t, http.MethodGet, "/users/me", resp.AccessToken, nil)
		require.Equal(t, http.StatusOK, me.Code)
		assert.Equal(t, "New Bie", decodeBody[userDTO](t, me).Name)

		dup := h.do(t, http.MethodPost, "/users", "", map[string]string{"username": "newbie", "password": "x", "name": "Again"})
		assert.Equal(t, http.StatusBadRequest, dup.Code)
		assert.Equal(t, "DUPLICATE_USERNAME", decodeError(t, dup).ErrorCode)
	})

	t.Run("login accepts form credentials and sets the cookie", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		form := url.Values{"username": {h.employee.Username}, "password": {h.employee.Password}}
		req := httptest.NewRequest(http.MethodPost, "/users/token", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		h.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decodeBody[tokenResponse](t, rec)
		assert.Equal(t, "bearer", resp.TokenType)

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, sessionCookieName, cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)

		byCookie := httptest.NewRequest(http.MethodGet, "/users/me", nil)
		byCookie.AddCookie(cookies[0])
		meRec := httptest.NewRecorder()
		h.router.ServeHTTP(meRec, byCookie)
		assert.Equal(t, http.StatusOK, meRec.Code)
	})

	t.Run("bad credentials are rejected uniformly", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		wrongPassword := h.do(t, http.MethodPost, "/users/token", "", map[string]string{"username": h.employee.Username, "password": "nope"})
		unknownUser := h.do(t, http.MethodPost, "/users/token", "", map[string]string{"username": "ghost", "password": "nope"})

		assert.Equal(t, http.StatusBadRequest, wrongPassword.Code)
		assert.Equal(t, wrongPassword.Body.String(), unknownUser.Body.String())
	})

	t.Run("login is throttled per client", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		codes := make([]int, 0, 4)
		for i := 0; i < 4; i++ {
			codes = append(codes, h.do(t, http.MethodPost, "/users/token", "", map[string]string{"username": "ghost", "password": "x"}).Code)
		}
		assert.Equal(t, []int{400, 400, 400, 429}, codes)
	})

	t.Run("logout revokes the session", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		rec := h.do(t, http.MethodPost, "/users/logout", h.userToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")

		after := h.do(t, http.MethodGet, "/bookings", h.userToken, nil)
		assert.Equal(t, http.StatusUnauthorized, after.Code)
		assert.Equal(t, "SESSION_REVOKED", decodeError(t, after).ErrorCode)
	})
}

func TestUserHandlers(t *testing.T) {
	t.Parallel()

	t.Run("require administrator authorization", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodGet, "/users", h.userToken, nil).Code)
		assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodGet, "/roles", h.userToken, nil).Code)
		assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodGet, "/users", "", nil).Code)

		users := h.do(t, http.MethodGet, "/users", h.adminToken, nil)
		require.Equal(t, http.StatusOK, users.Code)
		assert.Len(t, decodeBody[listUsersResponse](t, users).Users, 3)

		roles := h.do(t, http.MethodGet, "/roles", h.adminToken, nil)
		require.Equal(t, http.StatusOK, roles.Code)
		assert.ElementsMatch(t, application.SeedRoles, decodeBody[listRolesResponse](t, roles).Roles)
	})

	t.Run("role changes apply to existing sessions", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)
		path := fmt.Sprintf("/users/%s/roles", h.employee.Username)

		rec := h.do(t, http.MethodPut, path, h.adminToken, map[string][]string{"roles": {"employee", "manager"}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, []string{"employee", "manager"}, decodeBody[userDTO](t, rec).Roles)

		me := h.do(t, http.MethodGet, "/users/me", h.userToken, nil)
		assert.Equal(t, []string{"employee", "manager"}, decodeBody[userDTO](t, me).Roles)

		unknownRole := h.do(t, http.MethodPut, path, h.adminToken, map[string][]string{"roles": {"wizard"}})
		assert.Equal(t, http.StatusNotFound, unknownRole.Code)
		unknownUser := h.do(t, http.MethodPut, "/users/ghost/roles", h.adminToken, map[string][]string{"roles": {"employee"}})
		assert.Equal(t, http.StatusNotFound, unknownUser.Code)
	})
}

func TestRoomHandlers(t *testing.T) {
	t.Parallel()

	t.Run("allow non-admins to search and list rooms", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		created := h.do(t, http.MethodPost, "/bookings", h.userToken, bookingBody("A101", testfixtures.Hour(10, 0), testfixtures.Hour(11, 0)))
		require.Equal(t, http.StatusCreated, created.Code, created.Body.String())

		query := url.Values{
			"min_capacity":   {"10"},
			"start_datetime": {testfixtures.Hour(10, 30)},
			"end_datetime":   {testfixtures.Hour(11, 30)},
		}
		rec := h.do(t, http.MethodGet, "/rooms?"+query.Encode(), h.userToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := decodeBody[searchRoomsResponse](t, rec)
		assert.Equal(t, 10, resp.Filters.MinCapacity)
		require.NotNil(t, resp.Filters.StartDatetime)
		byNumber := map[string]availableRoomDTO{}
		for _, room := range resp.Rooms {
			byNumber[room.RoomNumber] = room
		}
		assert.NotContains(t, byNumber, "A102")
		assert.False(t, byNumber["A101"].Available)
		assert.True(t, byNumber["B201"].Available)
		assert.False(t, byNumber["C301"].SufficientRoles)

		all := h.do(t, http.MethodGet, "/rooms/all", h.userToken, nil)
		require.Equal(t, http.StatusOK, all.Code)
		assert.Len(t, decodeBody[listRoomsResponse](t, all).Rooms, len(application.SeedRooms))
	})

	t.Run("reject malformed search filters", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		badCapacity := h.do(t, http.MethodGet, "/rooms?min_capacity=lots", h.userToken, nil)
		assert.Equal(t, http.StatusBadRequest, badCapacity.Code)
		assert.Contains(t, decodeError(t, badCapacity).Errors, "min_capacity")

		halfWindow := h.do(t, http.MethodGet, "/rooms?start_datetime="+url.QueryEscape(testfixtures.Hour(9, 0)), h.userToken, nil)
		assert.Equal(t, http.StatusBadRequest, halfWindow.Code)

		offGrid := url.Values{"start_datetime": {testfixtures.Hour(11, 20)}, "end_datetime": {testfixtures.Hour(12, 0)}}
		rec := h.do(t, http.MethodGet, "/rooms?"+offGrid.Encode(), h.userToken, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_INTERVAL", decodeError(t, rec).ErrorCode)
	})

	t.Run("require admin role for mutations", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)
		room := map[string]any{"room_number": "D401", "capacity": 12, "roles": []string{"manager"}}

		assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodPost, "/rooms", h.userToken, room).Code)
		assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodDelete, "/rooms/A101", h.userToken, nil).Code)

		created := h.do(t, http.MethodPost, "/rooms", h.adminToken, room)
		require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
		dto := decodeBody[roomDTO](t, created)
		assert.Equal(t, []string{"manager"}, dto.Roles)
		assert.False(t, dto.RequestOnly)

		dup := h.do(t, http.MethodPost, "/rooms", h.adminToken, room)
		assert.Equal(t, http.StatusBadRequest, dup.Code)

		unknownRole := h.do(t, http.MethodPost, "/rooms", h.adminToken, map[string]any{"room_number": "D402", "capacity": 3, "roles": []string{"wizard"}})
		assert.Equal(t, http.StatusNotFound, unknownRole.Code)

		assert.Equal(t, http.StatusOK, h.do(t, http.MethodDelete, "/rooms/D401", h.adminToken, nil).Code)
		assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodDelete, "/rooms/D401", h.adminToken, nil).Code)
	})
}

func TestBookingHandlers(t *testing.T) {
	t.Parallel()

	t.Run("map service errors to status codes", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		cases := []struct {
			name   string
			token  string
			body   map[string]string
			path   string
			status int
			code   string
		}{
			{"quantization", h.userToken, bookingBody("A101", testfixtures.Hour(10, 5), testfixtures.Hour(11, 0)), "/bookings", 400, "INVALID_INTERVAL"},
			{"ordering", h.userToken, bookingBody("A101", testfixtures.Hour(11, 0), testfixtures.Hour(10, 0)), "/bookings", 400, "INVALID_ORDERING"},
			{"format", h.userToken, bookingBody("A101", "tomorrow", testfixtures.Hour(10, 0)), "/bookings", 400, "INVALID_TIME_FORMAT"},
			{"unknown room", h.userToken, bookingBody("Z999", testfixtures.Hour(10, 0), testfixtures.Hour(11, 0)), "/bookings", 400, "ROOM_NOT_FOUND"},
			{"request only", h.userToken, bookingBody("B201", testfixtures.Hour(10, 0), testfixtures.Hour(11, 0)), "/bookings", 400, "REQUEST_ONLY_ROOM"},
			{"roles", h.userToken, bookingBody("C301", testfixtures.Hour(10, 0), testfixtures.Hour(11, 0)), "/bookings/request", 403, "FORBIDDEN"},
			{"past", h.userToken, bookingBody("A101", "2020-01-01T10:00:00Z", "2020-01-01T11:00:00Z"), "/bookings", 400, "PAST_START_TIME"},
		}
		for _, tc := range cases {
			rec := h.do(t, http.MethodPost, tc.path, tc.token, tc.body)
			assert.Equal(t, tc.status, rec.Code, tc.name)
			assert.Equal(t, tc.code, decodeError(t, rec).ErrorCode, tc.name)
		}
	})

	t.Run("own bookings are private", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		created := h.do(t, http.MethodPost, "/bookings", h.userToken, bookingBody("A101", testfixtures.Hour(10, 0), testfixtures.Hour(12, 0)))
		require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
		booking := decodeBody[bookingDTO](t, created)
		assert.True(t, booking.Accepted)
		assert.Equal(t, testfixtures.Hour(10, 0), booking.StartTime)

		path := fmt.Sprintf("/bookings/%d", booking.ID)
		assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, path, h.userToken, nil).Code)
		assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, path, h.mgrToken, nil).Code)
		assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodDelete, path, h.mgrToken, nil).Code)
		assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/bookings/abc", h.userToken, nil).Code)

		clash := h.do(t, http.MethodPost, "/bookings", h.mgrToken, bookingBody("A101", testfixtures.Hour(11, 0), testfixtures.Hour(13, 0)))
		assert.Equal(t, http.StatusBadRequest, clash.Code)
		assert.Equal(t, "SLOT_UNAVAILABLE", decodeError(t, clash).ErrorCode)

		list := h.do(t, http.MethodGet, "/bookings", h.userToken, nil)
		require.Equal(t, http.StatusOK, list.Code)
		assert.Len(t, decodeBody[listBookingsResponse](t, list).Bookings, 1)

		moved := h.do(t, http.MethodPut, path, h.userToken, map[string]string{"start_datetime": testfixtures.Hour(14, 0), "end_datetime": testfixtures.Hour(15, 0)})
		require.Equal(t, http.StatusOK, moved.Code, moved.Body.String())
		assert.Equal(t, testfixtures.Hour(14, 0), decodeBody[bookingDTO](t, moved).StartTime)

		require.Equal(t, http.StatusOK, h.do(t, http.MethodDelete, path, h.userToken, nil).Code)
		assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, path, h.userToken, nil).Code)
	})

	t.Run("request review by administrators", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		first := decodeBody[bookingDTO](t, h.do(t, http.MethodPost, "/bookings/request", h.userToken, bookingBody("B201", testfixtures.Hour(9, 0), testfixtures.Hour(10, 0))))
		second := decodeBody[bookingDTO](t, h.do(t, http.MethodPost, "/bookings/request", h.mgrToken, bookingBody("B201", testfixtures.Hour(9, 30), testfixtures.Hour(10, 30))))
		assert.False(t, first.Accepted)

		assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodGet, "/bookings/request", h.userToken, nil).Code)
		pending := h.do(t, http.MethodGet, "/bookings/request", h.adminToken, nil)
		require.Equal(t, http.StatusOK, pending.Code)
		listed := decodeBody[listBookingsResponse](t, pending).Bookings
		require.Len(t, listed, 2)
		assert.NotEmpty(t, listed[0].Username)

		approve := h.do(t, http.MethodPut, fmt.Sprintf("/bookings/%d/approve", first.ID), h.adminToken, nil)
		require.Equal(t, http.StatusOK, approve.Code, approve.Body.String())
		assert.Equal(t, first.ID, decodeBody[bookingConfirmation](t, approve).ID)

		conflict := h.do(t, http.MethodPut, fmt.Sprintf("/bookings/%d/approve", second.ID), h.adminToken, nil)
		assert.Equal(t, http.StatusBadRequest, conflict.Code)

		decline := fmt.Sprintf("/bookings/%d/decline", second.ID)
		assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodDelete, decline, h.userToken, nil).Code)
		assert.Equal(t, http.StatusOK, h.do(t, http.MethodDelete, decline, h.adminToken, nil).Code)
		assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodDelete, decline, h.adminToken, nil).Code)
		assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodPut, "/bookings/9999/approve", h.adminToken, nil).Code)
	})
}

func TestHealthHandler(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t)

	ok := h.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, ok.Code)
	resp := decodeBody[healthResponse](t, ok)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, testfixtures.ReferenceTime().Format("2006-01-02T15:04:05Z07:00"), resp.Timestamp)

	h.pingFailure = errors.New("connection refused")
	down := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, down.Code)
	assert.Equal(t, "unavailable", decodeBody[healthResponse](t, down).Storage)
}

func TestRouterFallbacks(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t)

	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/nowhere", "", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, h.do(t, http.MethodPatch, "/health", "", nil).Code)
}
