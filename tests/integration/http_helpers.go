package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/gatehouse/internal/auth"
	"github.com/BradenHooton/gatehouse/internal/config"
	"github.com/BradenHooton/gatehouse/internal/database"
	"github.com/BradenHooton/gatehouse/internal/handlers"
	middlewareCustom "github.com/BradenHooton/gatehouse/internal/middleware"
	"github.com/BradenHooton/gatehouse/internal/routes"
	"github.com/BradenHooton/gatehouse/internal/services"
	"github.com/BradenHooton/gatehouse/internal/session"
	pkghttp "github.com/BradenHooton/gatehouse/pkg/http"
	pkglogger "github.com/BradenHooton/gatehouse/pkg/logger"
)

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server *httptest.Server
	Pool   *database.DB
	Config *config.Config

	// Dependency references for inspection in tests
	Cipher     *auth.Cipher
	TOTPEngine *auth.TOTPEngine
	Sessions   *session.Manager

	logger *slog.Logger
}

// NewTestServer initializes a complete HTTP server with a real database
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Auth: config.AuthConfig{
			EncryptionKey:       []byte("test-totp-encryption-key-32-byte"),
			RememberSecret:      "test-remember-secret-32-characters!",
			RememberExpiry:      14 * 24 * time.Hour,
			LoginAttribute:      "email",
			PasswordAttribute:   "password",
			SuggestRememberMe:   true,
			TwoFactorEnabled:    true,
			TOTPIssuer:          "GatehouseTest",
			RateLimitingEnabled: true,
			MaxLoginAttempts:    5,
			ThrottleWindow:      time.Minute,
			SessionTTL:          2 * time.Hour,
			CleanupInterval:     time.Hour,
		},
		Server: config.ServerConfig{
			Port: "0",
			Env:  "test",
		},
	}

	userRepo, twoFactorRepo, throttleRepo := InitializeRepositories(db)

	sessionStore := session.NewMemoryStore()
	sessionManager := session.NewManager(sessionStore, cfg.Auth.SessionTTL, false)

	cipher, err := auth.NewCipher(cfg.Auth.EncryptionKey)
	if err != nil {
		panic("failed to initialize test cipher: " + err.Error())
	}
	totpEngine := auth.NewTOTPEngine(cfg.Auth.TOTPIssuer)
	rememberTokens := auth.NewRememberTokenManager(cfg.Auth.RememberSecret, cfg.Auth.RememberExpiry)

	// No timing delay in tests
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{})

	auditLogger := pkglogger.NewAuditLogger(logger)
	notifier := &services.NoopLockoutNotifier{}

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

	cookieConfig := auth.CookieConfig{SameSite: "lax"}
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

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))
	r.Use(sessionManager.Middleware)
	r.Use(middlewareCustom.RememberLogin(rememberTokens, userRepo, directory, cookieConfig, logger))

	routes.RegisterRoutes(r, authHandler, twoFactorHandler)

	server := httptest.NewServer(r)

	return &TestServer{
		Server:     server,
		Pool:       db,
		Config:     cfg,
		Cipher:     cipher,
		TOTPEngine: totpEngine,
		Sessions:   sessionManager,
		logger:     logger,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// NewClient returns an HTTP client with a cookie jar so session and
// remember cookies survive across requests, like a browser
func (ts *TestServer) NewClient() *http.Client {
	jar, err := cookiejar.New(nil)
	if err != nil {
		panic("failed to create cookie jar: " + err.Error())
	}
	return &http.Client{Jar: jar}
}

// Request makes an HTTP request to the test server using the given client
func (ts *TestServer) Request(client *http.Client, method, path string, body interface{}) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return client.Do(req)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// GetErrorMessage extracts error message from error response
func GetErrorMessage(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	var errResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return "", err
	}
	if msg, ok := errResp["message"].(string); ok {
		return msg, nil
	}
	return "", nil
}
