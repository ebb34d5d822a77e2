package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions controls the construction of the relay HTTP router.
// Handlers is required; the remaining fields have sensible defaults.
type RouterOptions struct {
	Handlers      *Handlers
	CORSOptions   *cors.Options
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
}

// DefaultCORSOptions returns the shared CORS policy. Launches arrive from
// arbitrary platform origins, so the origin list is open but the method and
// header surface stays narrow.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles a chi.Router with shared middleware, CORS policy, and
// the relay handlers mounted. The router can be tailored via RouterOptions
// for CLI usage, tests, or other entrypoints.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	// Baseline middleware shared across entrypoints.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	// Apply custom middleware passed from the caller.
	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	h := opts.Handlers

	r.Get("/check-cookies-allowed/", h.CheckCookiesAllowed)

	// Platforms deliver the login initiation and the launch message by GET
	// or POST depending on their configuration.
	r.Get("/login/", h.Login)
	r.Post("/login/", h.Login)
	r.Get("/launch/", h.Launch)
	r.Post("/launch/", h.Launch)

	r.Get("/configure/{launchID}/{difficulty}/", h.Configure)
	r.Post("/configure/{launchID}/{difficulty}/", h.Configure)

	r.Post("/api/score/{launchID}/{earnedScore}/{timeSpent}/", h.Score)
	r.Get("/api/scoreboard/{launchID}/", h.Scoreboard)
	r.Post("/api/scoreboard/{launchID}/", h.Scoreboard)

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)

	return r
}
