package router

import (
	"time"

	"identity-service/internal/handler"
	"identity-service/pkg/metrics"
	"identity-service/shared/auth/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

func SetupRoutes(
	r chi.Router,
	h *handler.IdentityHandler,
	auth *middleware.AuthMiddleware,
	corsOrigins []string,
	logger *zap.Logger,
) chi.Router {
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(metrics.HTTPMiddleware)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", metrics.Handler())
	r.Get("/.well-known/jwks.json", h.JWKS)

	r.Route("/api/v1/auth", func(api chi.Router) {
		// ---------------- Public ----------------
		api.Group(func(pub chi.Router) {
			pub.Get("/health", h.Health)

			pub.Post("/register", h.Register)
			pub.Get("/check-email", h.CheckEmail)
			pub.Get("/check-phone", h.CheckPhone)

			pub.Post("/verify-otp", h.VerifyOTP)
			pub.Post("/resend-otp", h.ResendOTP)

			pub.Post("/forgot-password", h.ForgotPassword)
			pub.Post("/reset-password", h.ResetPassword)

			pub.Post("/login", h.Login)
			pub.Post("/google", h.GoogleAuth)
		})

		// ---------------- Session ----------------
		api.Group(func(g chi.Router) {
			g.Use(auth.RequireSession)
			g.Get("/session", h.Session)
			g.Post("/logout", h.Logout)
		})
	})

	return r
}
