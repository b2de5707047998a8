package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vidtube-serverless/internal/auth"
	"vidtube-serverless/internal/config"
	"vidtube-serverless/internal/httpx"
	"vidtube-serverless/internal/maintenance"
	"vidtube-serverless/internal/media"
	"vidtube-serverless/internal/observability"
	"vidtube-serverless/internal/readmodel"
	"vidtube-serverless/internal/user"
)

// UserStore is the credential store shared by the profile, session and maintenance flows.
type UserStore interface {
	user.Store
	auth.UserStore
	maintenance.SessionStore
}

type Dependencies struct {
	Config *config.Config
	Logger *observability.Logger
	Users  UserStore
	Reader readmodel.Reader
	Media  media.Host
	Intake *media.Intake
	Tokens *auth.TokenService
	Clock  clockwork.Clock
	// Ping reports database health; nil means always healthy.
	Ping func(ctx context.Context) error
	// PasswordCost overrides the bcrypt cost; zero keeps the default.
	PasswordCost int
}

// NewRouter mounts every endpoint on a chi router wrapped in the shared middleware stack.
func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config

	profiles := user.NewService(deps.Users, deps.Media, deps.Logger).WithPasswordCost(deps.PasswordCost)
	sessions := auth.NewService(deps.Users, deps.Tokens).WithPasswordCost(deps.PasswordCost)

	userHandler := user.NewHandler(profiles, deps.Intake)
	authHandler := auth.NewHandler(sessions)
	readHandler := readmodel.NewHandler(deps.Reader)
	cleanupHandler := maintenance.NewCleanupHandler(
		deps.Users,
		deps.Intake,
		deps.Logger,
		cfg.CronSecret,
		cfg.StagedFileRetention,
		cfg.CleanupBatchSize,
		deps.Clock,
	)
	loginLimiter := auth.NewLoginRateLimiter(cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow, cfg.TrustedProxyHops)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(observability.RecoverMiddleware(deps.Logger))
	r.Use(observability.RequestLoggingMiddleware(deps.Logger))
	r.Use(observability.MetricsMiddleware)

	r.Get("/health", healthHandler(deps.Ping))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/internal/maintenance/cleanup", httpx.Handle(cleanupHandler.Handle))
	r.Post("/internal/maintenance/cleanup", httpx.Handle(cleanupHandler.Handle))

	r.Route("/api/v1/users", func(r chi.Router) {
		r.Post("/register", httpx.Handle(userHandler.Register))
		r.With(loginLimiter.Middleware).Post("/login", httpx.Handle(authHandler.Login))
		r.Post("/refresh-token", httpx.Handle(authHandler.Refresh))

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(sessions))
			r.Post("/logout", httpx.Handle(authHandler.Logout))
			r.Post("/change-password", httpx.Handle(authHandler.ChangePassword))
			r.Get("/current-user", httpx.Handle(userHandler.CurrentUser))
			r.Patch("/update-account", httpx.Handle(userHandler.UpdateAccount))
			r.Patch("/avatar", httpx.Handle(userHandler.UpdateAvatar))
			r.Patch("/cover-image", httpx.Handle(userHandler.UpdateCoverImage))
			r.Get("/c/{username}", httpx.Handle(readHandler.ChannelProfile))
			r.Get("/history", httpx.Handle(readHandler.WatchHistory))
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, httpx.NotFound("route not found"))
	})

	return r
}

func healthHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if ping != nil {
			if err := ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}

		httpx.WriteJSON(w, status, body)
	}
}
