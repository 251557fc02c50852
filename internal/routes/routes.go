package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/serenify-auth/internal/config"
	"github.com/AnshRaj112/serenify-auth/internal/handlers"
	"github.com/AnshRaj112/serenify-auth/internal/middleware"
	"github.com/AnshRaj112/serenify-auth/internal/ratelimit"
	"github.com/AnshRaj112/serenify-auth/internal/response"
	"github.com/AnshRaj112/serenify-auth/internal/services"
	"github.com/AnshRaj112/serenify-auth/pkg/clientip"
)

type Deps struct {
	Config  *config.Config
	Auth    *services.AuthService
	Tokens  middleware.AccessTokenVerifier
	Limiter ratelimit.Limiter
	Logger  zerolog.Logger
}

// New builds the router. Order matters: the client IP is resolved before
// anything that logs or limits, and CORS answers preflights before the
// general limiter counts them.
func New(d Deps) http.Handler {
	cfg := d.Config
	debug := !cfg.IsProduction()
	h := handlers.New(d.Auth, d.Logger, debug)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.ClientIP(clientip.Resolver(cfg.TrustProxy)))
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(middleware.CaptureBody)
	r.Use(middleware.Recoverer(d.Logger, debug))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	if cfg.IsProduction() {
		for _, mw := range middleware.ProductionSecurity(cfg.AllowedHost) {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Fail(w, http.StatusNotFound, "Route "+r.URL.Path+" not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Fail(w, http.StatusMethodNotAllowed, "Method "+r.Method+" not allowed on "+r.URL.Path)
	})

	// Health check (no rate limit)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, http.StatusOK, "OK", nil)
	})

	requireAuth := middleware.RequireAuth(d.Tokens)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(d.Limiter, cfg.Policies().General, d.Logger))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", h.Signup)
			r.Post("/signin", h.Signin)
			r.Get("/google", h.GoogleAuth)
			r.Get("/google/url", h.GoogleAuthURL)
			r.Post("/google", h.GoogleAuth)
			r.Post("/refresh-token", h.RefreshToken)
			r.Post("/logout", h.Logout)
			r.Post("/verify-email", h.VerifyEmail)
			r.Post("/forgot-password", h.ForgotPassword)
			r.Post("/reset-password", h.ResetPassword)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/send-verification-email", h.SendVerificationEmail)
				r.Post("/change-password", h.ChangePassword)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/me", h.GetMe)
				r.Put("/me/profile", h.UpdateProfile)
				r.Post("/me/avatar", h.UploadAvatar)
				r.Delete("/me", h.DeleteMe)
			})
			r.Get("/{id}", h.GetUser)
		})
	})

	return r
}
