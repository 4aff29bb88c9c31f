package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/gatehouse/internal/auth"
	"github.com/BradenHooton/gatehouse/internal/background"
	"github.com/BradenHooton/gatehouse/internal/config"
	"github.com/BradenHooton/gatehouse/internal/database"
	"github.com/BradenHooton/gatehouse/internal/handlers"
	middlewareCustom "github.com/BradenHooton/gatehouse/internal/middleware"
	"github.com/BradenHooton/gatehouse/internal/repositories"
	"github.com/BradenHooton/gatehouse/internal/routes"
	"github.com/BradenHooton/gatehouse/internal/services"
	"github.com/BradenHooton/gatehouse/internal/session"
	pkghttp "github.com/BradenHooton/gatehouse/pkg/http"
	pkglogger "github.com/BradenHooton/gatehouse/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	twoFactorRepo := repositories.NewTwoFactorRepository(db)
	throttleRepo := repositories.NewThrottleRepository(db)

	// Session store and manager
	sessionStore := session.NewMemoryStore()
	sessionManager := session.NewManager(sessionStore, cfg.Auth.SessionTTL, cfg.Server.Env == "production")

	// Cleanup manager sweeps lapsed throttle rows and expired sessions
	cleanupManager := background.NewCleanupManager(throttleRepo, sessionStore, logger, cfg.Auth.CleanupInterval)

	// Crypto primitives
	cipher, err := auth.NewCipher(cfg.Auth.EncryptionKey)
	if err != nil {
		logger.Error("failed to initialize cipher", slog.Any("error", err))
		os.Exit(1)
	}
	totpEngine := auth.NewTOTPEngine(cfg.Auth.TOTPIssuer)
	rememberTokens := auth.NewRememberTokenManager(cfg.Auth.RememberSecret, cfg.Auth.RememberExpiry)

	// Timing delay for auth security
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   100,
		RandomDelayMs: 100,
	})

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Lockout notifications over SES, disabled by default
	var notifier services.LockoutNotifier = &services.NoopLockoutNotifier{}
	if cfg.Email.LockoutNotifications {
		sesNotifier, err := services.NewSESLockoutNotifier(
			cfg.Email.AWSRegion,
			cfg.Email.FromAddress,
			cfg.Email.SecurityAddress,
			logger,
		)
		if err != nil {
			logger.Error("failed to initialize lockout notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = sesNotifier
	}

	// Initialize services
	rateLimiter := services.NewPostgresRateLimiter(throttleRepo, cfg.Auth.ThrottleWindow, logger)
	directory := services.NewDirectoryService(userRepo, cfg.Auth.LoginAttribute, timingDelay, logger)
	twoFactorService := services.NewTwoFactorService(
		twoFactorRepo,
		cipher,
		totpEngine,
		rateLimiter,
		logger,
		services.TwoFactorConfig{
			CodeRateLimiting: cfg.Auth.RateLimitingEnabled,
			MaxCodeAttempts:  cfg.Auth.MaxLoginAttempts,
		},
	)
	loginService := services.NewLoginService(
		directory,
		twoFactorService,
		rateLimiter,
		notifier,
		logger,
		auditLogger,
		services.LoginConfig{
			TwoFactorEnabled:    cfg.Auth.TwoFactorEnabled,
			RateLimitingEnabled: cfg.Auth.RateLimitingEnabled,
			MaxAttempts:         cfg.Auth.MaxLoginAttempts,
			SuggestRememberMe:   cfg.Auth.SuggestRememberMe,
		},
	)

	// Initialize handlers
	cookieConfig := auth.CookieConfig{
		Secure:   cfg.Server.Env == "production",
		SameSite: "lax",
	}
	ipConfig := &pkghttp.IPConfig{}

	authHandler := handlers.NewAuthHandler(
		loginService,
		twoFactorService,
		sessionManager,
		rememberTokens,
		cookieConfig,
		ipConfig,
		cfg.Auth.PasswordAttribute,
		logger,
	)
	twoFactorHandler := handlers.NewTwoFactorHandler(twoFactorService, userRepo, logger)

	// Setup router
	router := chi.NewRouter()
	// No RealIP middleware: ExtractClientIP applies its own trusted-proxy
	// check against the socket address, which RealIP would overwrite.
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(sessionManager.Middleware)
	router.Use(middlewareCustom.RememberLogin(rememberTokens, userRepo, directory, cookieConfig, logger))

	// Register routes
	routes.RegisterRoutes(router, authHandler, twoFactorHandler)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
