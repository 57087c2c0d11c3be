package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/example/roombooking/internal/application"
	"github.com/example/roombooking/internal/logging"
)

type fakeSessionValidator struct {
	principal application.Principal
	err       error
	tokens    []string
}

func (f *fakeSessionValidator) ValidateSession(ctx context.Context, token string) (application.Principal, error) {
	f.tokens = append(f.tokens, token)
	return f.principal, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestSessionMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("rejects requests without valid session tokens", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name         string
			cookie       *http.Cookie
			header       string
			err          error
			expectedCode string
		}{
			{name: "missing credentials"},
			{name: "non bearer header", header: "Basic abc"},
			{name: "unknown token", header: "Bearer unknown", err: application.ErrUnauthorized, expectedCode: "UNAUTHORIZED"},
			{name: "expired cookie", cookie: &http.Cookie{Name: sessionCookieName, Value: "old"}, err: application.ErrSessionExpired, expectedCode: "SESSION_EXPIRED"},
			{name: "revoked cookie", cookie: &http.Cookie{Name: sessionCookieName, Value: "gone"}, err: application.ErrSessionRevoked, expectedCode: "SESSION_REVOKED"},
		}

		for _, tc := range tests {
			tc := tc
			t.Run(tc.name, func(t *testing.T) {
				t.Parallel()

				req := httptest.NewRequest(http.MethodGet, "/protected", nil)
				if tc.cookie != nil {
					req.AddCookie(tc.cookie)
				}
				if tc.header != "" {
					req.Header.Set("Authorization", tc.header)
				}
				rec := httptest.NewRecorder()

				handler := RequireSession(&fakeSessionValidator{err: tc.err}, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					t.Fatal("next handler should not be called when authentication fails")
				}))
				handler.ServeHTTP(rec, req)

				assert.Equal(t, http.StatusUnauthorized, rec.Code)
				assert.Equal(t, tc.expectedCode, decodeError(t, rec).ErrorCode)
			})
		}
	})

	t.Run("attaches authenticated principal to request context", func(t *testing.T) {
		t.Parallel()

		principal := application.Principal{UserID: 7, Username: "alice", Roles: []string{"employee"}}
		validator := &fakeSessionValidator{principal: principal}

		for _, req := range []*http.Request{
			httptest.NewRequest(http.MethodGet, "/protected", nil),
			httptest.NewRequest(http.MethodGet, "/protected", nil),
		} {
			if len(validator.tokens) == 0 {
				req.Header.Set("Authorization", "bearer valid-token")
			} else {
				req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "valid-token"})
			}
			rec := httptest.NewRecorder()

			var captured application.Principal
			handler := RequireSession(validator, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				p, ok := PrincipalFromContext(r.Context())
				require.True(t, ok)
				captured = p
				w.WriteHeader(http.StatusOK)
			}))
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, principal, captured)
		}
		assert.Equal(t, []string{"valid-token", "valid-token"}, validator.tokens)
	})

	t.Run("converts storage failures into 500 responses", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer transient")
		rec := httptest.NewRecorder()

		storageErr := &application.StorageError{Op: "get session", Err: errors.New("disk I/O error")}
		handler := RequireSession(&fakeSessionValidator{err: storageErr}, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("next handler should not be called")
		}))
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "disk I/O")
	})
}

func TestRequireRoles(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := RequireAdmin(discardLogger())(next)

	cases := []struct {
		name      string
		principal *application.Principal
		want      int
	}{
		{name: "no principal", want: http.StatusUnauthorized},
		{name: "employee", principal: &application.Principal{UserID: 1, Roles: []string{"employee"}}, want: http.StatusForbidden},
		{name: "admin", principal: &application.Principal{UserID: 2, Roles: []string{"admin"}}, want: http.StatusNoContent},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.principal != nil {
				req = req.WithContext(ContextWithPrincipal(req.Context(), *tc.principal))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := logging.New(&buf, slog.LevelInfo)

	handler := middleware.RequestID(RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NotNil(t, logging.FromContext(r.Context()))
		w.WriteHeader(http.StatusCreated)
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings", nil))

	require.Equal(t, http.StatusCreated, rec.Code)
	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record))
	assert.Equal(t, "request completed", record["msg"])
	assert.Equal(t, "/bookings", record["path"])
	assert.Equal(t, float64(http.StatusCreated), record["status"])
	assert.NotEmpty(t, record["request_id"])
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	limiter := NewIPRateLimiter(rate.Limit(0.001), 2)
	handler := RateLimit(limiter, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/users/token", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:1002"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1000"))
}

func TestCORS(t *testing.T) {
	t.Parallel()

	handler := CORS([]string{"https://rooms.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/bookings", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	allowed := preflight("https://rooms.example.com")
	assert.Equal(t, "https://rooms.example.com", allowed.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", allowed.Header().Get("Access-Control-Allow-Credentials"))

	denied := preflight("https://evil.example.com")
	assert.Empty(t, denied.Header().Get("Access-Control-Allow-Origin"))
}

func TestExtractTokenFromRequest(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, extractTokenFromRequest(req))

	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "from-cookie"})
	assert.Equal(t, "from-cookie", extractTokenFromRequest(req))

	req.Header.Set("Authorization", "BEARER from-header")
	assert.Equal(t, "from-header", extractTokenFromRequest(req))
}
