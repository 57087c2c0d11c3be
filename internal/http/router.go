package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	Auth     *AuthHandler
	Users    *UserHandler
	Rooms    *RoomHandler
	Bookings *BookingHandler
	Roles    *RoleHandler
	Health   *HealthHandler

	// Sessions resolves tokens for every route except registration, login
	// and health.
	Sessions SessionValidator
	// LoginLimiter throttles POST /users/token. Nil disables throttling.
	LoginLimiter *IPRateLimiter
	CORSOrigins  []string
	Logger       *slog.Logger
	Middleware   []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	responder := newResponder(logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(CORS(cfg.CORSOrigins))
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		responder.writeError(req.Context(), w, http.StatusNotFound, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		responder.writeJSON(req.Context(), w, http.StatusMethodNotAllowed, errorResponse{Message: http.StatusText(http.StatusMethodNotAllowed)})
	})

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Check)
	}

	authenticated := RequireSession(cfg.Sessions, logger)
	admin := RequireAdmin(logger)

	r.Route("/users", func(r chi.Router) {
		if cfg.Users != nil {
			r.Post("/", cfg.Users.Register)
		}
		if cfg.Auth != nil {
			login := r.With()
			if cfg.LoginLimiter != nil {
				login = r.With(RateLimit(cfg.LoginLimiter, logger))
			}
			login.Post("/token", cfg.Auth.Login)
		}

		r.Group(func(r chi.Router) {
			r.Use(authenticated)
			if cfg.Auth != nil {
				r.Post("/logout", cfg.Auth.Logout)
			}
			if cfg.Users != nil {
				r.Get("/me", cfg.Users.Me)
				r.With(admin).Get("/", cfg.Users.List)
				r.With(admin).Put("/{username}/roles", cfg.Users.SetRoles)
			}
		})
	})

	if cfg.Roles != nil {
		r.With(authenticated, admin).Get("/roles", cfg.Roles.List)
	}

	if cfg.Rooms != nil {
		r.Route("/rooms", func(r chi.Router) {
			r.Use(authenticated)
			r.Get("/", cfg.Rooms.Search)
			r.Get("/all", cfg.Rooms.ListAll)
			r.With(admin).Post("/", cfg.Rooms.Create)
			r.With(admin).Delete("/{number}", cfg.Rooms.Delete)
		})
	}

	if cfg.Bookings != nil {
		r.Route("/bookings", func(r chi.Router) {
			r.Use(authenticated)
			r.Post("/", cfg.Bookings.Create)
			r.Get("/", cfg.Bookings.List)
			r.Post("/request", cfg.Bookings.CreateRequest)
			r.With(admin).Get("/request", cfg.Bookings.ListRequests)
			r.Get("/{id}", cfg.Bookings.Get)
			r.Put("/{id}", cfg.Bookings.Update)
			r.Delete("/{id}", cfg.Bookings.Delete)
			r.With(admin).Put("/{id}/approve", cfg.Bookings.Approve)
			r.With(admin).Delete("/{id}/decline", cfg.Bookings.Decline)
		})
	}

	return r
}
