package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type AuthConfig struct {
	// EncryptionKey is the base64-encoded 32-byte AES-256 key protecting TOTP
	// secrets and recovery codes at rest. Decoded once at startup.
	EncryptionKey []byte

	// RememberSecret signs long-lived remember-me tokens.
	RememberSecret string
	RememberExpiry time.Duration

	// Attribute names used to read the login form; LoginAttribute also selects
	// which user column the directory matches against.
	LoginAttribute    string
	PasswordAttribute string

	SuggestRememberMe bool

	TwoFactorEnabled bool
	TOTPIssuer       string

	RateLimitingEnabled bool
	MaxLoginAttempts    int
	ThrottleWindow      time.Duration

	SessionTTL      time.Duration
	CleanupInterval time.Duration
}

type EmailConfig struct {
	LockoutNotifications bool
	AWSRegion            string
	FromAddress          string
	SecurityAddress      string // recipient for lockout alerts
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	encryptionKey, err := decodeEncryptionKey(getEnv("TOTP_ENCRYPTION_KEY", ""))
	if err != nil {
		return nil, err
	}

	rememberSecret := getEnv("REMEMBER_SECRET", "")
	if err := validateSecret("REMEMBER_SECRET", rememberSecret, env); err != nil {
		return nil, err
	}

	loginAttribute := getEnv("AUTH_LOGIN_ATTRIBUTE", "email")
	if loginAttribute != "email" && loginAttribute != "username" {
		return nil, fmt.Errorf("AUTH_LOGIN_ATTRIBUTE must be email or username, got %q", loginAttribute)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "gatehouse"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:     getEnv("PORT", "8080"),
			Env:      env,
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			EncryptionKey:       encryptionKey,
			RememberSecret:      rememberSecret,
			RememberExpiry:      getEnvAsDuration("REMEMBER_EXPIRY", 30*24*time.Hour),
			LoginAttribute:      loginAttribute,
			PasswordAttribute:   getEnv("AUTH_PASSWORD_ATTRIBUTE", "password"),
			SuggestRememberMe:   getEnvAsBool("AUTH_SUGGEST_REMEMBER_ME", false),
			TwoFactorEnabled:    getEnvAsBool("AUTH_2FA_ENABLED", true),
			TOTPIssuer:          getEnv("TOTP_ISSUER", "Gatehouse"),
			RateLimitingEnabled: getEnvAsBool("AUTH_RATE_LIMITING_ENABLED", true),
			MaxLoginAttempts:    getEnvAsInt("AUTH_MAX_LOGIN_ATTEMPTS", 5),
			ThrottleWindow:      getEnvAsDuration("AUTH_THROTTLE_WINDOW", 1*time.Minute),
			SessionTTL:          getEnvAsDuration("SESSION_TTL", 2*time.Hour),
			CleanupInterval:     getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
		},
		Email: EmailConfig{
			LockoutNotifications: getEnvAsBool("LOCKOUT_NOTIFICATIONS_ENABLED", false),
			AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
			FromAddress:          getEnv("EMAIL_FROM_ADDRESS", ""),
			SecurityAddress:      getEnv("EMAIL_SECURITY_ADDRESS", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if cfg.Email.LockoutNotifications && (cfg.Email.FromAddress == "" || cfg.Email.SecurityAddress == "") {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS and EMAIL_SECURITY_ADDRESS are required when lockout notifications are enabled")
	}

	return cfg, nil
}

// decodeEncryptionKey enforces a real AES-256 key: base64, exactly 32 bytes.
func decodeEncryptionKey(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY is required")
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must be base64: %w", err)
	}

	if len(key) != 32 {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}

	return key, nil
}

// validateSecret enforces minimum strength for signing secrets.
func validateSecret(name, secret, env string) error {
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires 256 bits
	}

	if len(secret) < minLength {
		return fmt.Errorf("%s must be at least %d characters in %s environment (got %d)",
			name, minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("%s cannot be a common weak value", name)
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}
