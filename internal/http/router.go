package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/redmonkez12/todo-app/internal/auth"
	"github.com/redmonkez12/todo-app/internal/config"
	"github.com/redmonkez12/todo-app/internal/httputil"
	"github.com/redmonkez12/todo-app/internal/logging"
	"github.com/redmonkez12/todo-app/internal/metrics"
	"github.com/redmonkez12/todo-app/internal/ratelimit"
	"github.com/redmonkez12/todo-app/internal/rpc"
)

// HealthCheck reports whether a backing service is reachable
type HealthCheck func(ctx context.Context) error

// Deps are the handlers and middleware the router mounts. Guest, UserLimiter,
// Metrics and Gatherer are optional.
type Deps struct {
	Config         *config.Config
	Logger         *logging.Logger
	Auth           *auth.Handler
	AuthMiddleware *auth.Middleware
	Guest          *auth.GuestHandler
	RPC            *rpc.Handler
	UserLimiter    *ratelimit.UserLimiter
	Metrics        *metrics.Collector
	Gatherer       prometheus.Gatherer
	Checks         map[string]HealthCheck
}

// NewRouter creates and configures the HTTP router
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()
	cfg := d.Config

	// CORS - must be first
	if len(cfg.Server.TrustedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.TrustedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Client"},
			ExposedHeaders:   []string{"Content-Length", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Use(SecurityHeaders)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(d.Logger))
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	r.Use(middleware.Compress(5))

	r.Get("/health", handleHealth(d.Checks))
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(d.Gatherer))
	}

	// Swagger UI is only routed in development
	if cfg.Server.IsDevelopment() {
		d.Logger.Info("swagger UI enabled at /swagger/*")
		r.Get("/swagger/*", httpSwagger.WrapHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", d.Auth.Register)
		r.Post("/login", d.Auth.Login)
		r.Post("/refresh", d.Auth.Refresh)
		r.Post("/logout", d.Auth.Logout)
		r.With(d.AuthMiddleware.RequireAuth).Get("/session", d.Auth.Session)
	})

	if d.Guest != nil {
		r.Route("/guest", func(r chi.Router) {
			r.Get("/entries", d.Guest.ListEntries)
			r.Put("/entries", d.Guest.ReplaceEntries)
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(d.AuthMiddleware.RequireAuth)
		if d.UserLimiter != nil {
			r.Use(d.UserLimiter.Middleware(auth.UserKey))
		}
		r.Mount("/rpc", d.RPC.Routes())
	})

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealth pings every dependency; any failure turns the response into a 503
// @Summary      Health check
// @Description  Reports whether the API and its database and Redis are reachable
// @Tags         health
// @Produce      json
// @Success      200 {object} healthResponse
// @Failure      503 {object} healthResponse
// @Router       /health [get]
func handleHealth(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logging.GetLoggerFromContext(r.Context()).Warn("health check failed", "check", name, "error", err)
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.RespondJSON(w, resp, status)
	}
}
