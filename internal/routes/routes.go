package routes

import (
	"github.com/BradenHooton/gatehouse/internal/handlers"
	"github.com/BradenHooton/gatehouse/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	twoFactorHandler *handlers.TwoFactorHandler,
) {
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	// Login flow - the per-IP ceiling in front, the login throttle inside
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))

		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/login/2fa", authHandler.VerifyChallenge)
		r.Delete("/auth/login/2fa", authHandler.CancelChallenge)
	})

	router.Post("/auth/logout", authHandler.Logout)

	// Enrollment - requires an authenticated session, enforced per-handler
	router.Post("/2fa/setup", twoFactorHandler.Setup)
	router.Post("/2fa/confirm", twoFactorHandler.Confirm)
	router.Get("/2fa/qrcode", twoFactorHandler.QRCode)
}
