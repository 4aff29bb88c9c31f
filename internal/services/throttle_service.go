package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/gatehouse/internal/models"
	"github.com/BradenHooton/gatehouse/internal/repositories"
)

// RateLimiter tracks failed attempts per throttle key within a fixed window.
// Implementations must keep increments atomic so concurrent hits against the
// same key are all counted.
type RateLimiter interface {
	// TooManyAttempts reports whether key reached max within the current
	// window. The check itself never increments the counter.
	TooManyAttempts(ctx context.Context, key string, max int) bool
	// Hit records one failed attempt, starting a window if none is active.
	Hit(ctx context.Context, key string)
	// Clear forgives all attempts for key.
	Clear(ctx context.Context, key string)
	// AvailableIn returns how long until the window for key resets.
	AvailableIn(ctx context.Context, key string) time.Duration
}

// ThrottleKey buckets rate-limit counters by normalized login and client
// address. "User@Example.com" and "user@example.com" from the same address
// collide to the same bucket.
func ThrottleKey(login, clientIP string) string {
	return strings.ToLower(strings.TrimSpace(login)) + "|" + clientIP
}

// CodeThrottleKey buckets one-time-code guesses by the pending challenge's
// user, so a 6-digit code cannot be brute forced while a challenge is open.
func CodeThrottleKey(userID string) string {
	return "2fa|" + userID
}

// PostgresRateLimiter is the shared-state limiter used in production. It fails
// open on database errors: availability for legitimate users outweighs
// counting precision, while an actually tripped limit still blocks.
type PostgresRateLimiter struct {
	repo   *repositories.ThrottleRepository
	window time.Duration
	logger *slog.Logger
}

func NewPostgresRateLimiter(repo *repositories.ThrottleRepository, window time.Duration, logger *slog.Logger) *PostgresRateLimiter {
	return &PostgresRateLimiter{
		repo:   repo,
		window: window,
		logger: logger,
	}
}

func (l *PostgresRateLimiter) TooManyAttempts(ctx context.Context, key string, max int) bool {
	entry, err := l.repo.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			l.logger.Error("failed to read throttle entry", slog.Any("error", err))
		}
		return false
	}

	if entry.Expired(time.Now()) {
		return false
	}

	return entry.Attempts >= max
}

func (l *PostgresRateLimiter) Hit(ctx context.Context, key string) {
	if _, err := l.repo.Increment(ctx, key, l.window); err != nil {
		l.logger.Error("failed to record throttle hit", slog.Any("error", err))
	}
}

func (l *PostgresRateLimiter) Clear(ctx context.Context, key string) {
	if err := l.repo.Clear(ctx, key); err != nil {
		l.logger.Error("failed to clear throttle entry", slog.Any("error", err))
	}
}

func (l *PostgresRateLimiter) AvailableIn(ctx context.Context, key string) time.Duration {
	entry, err := l.repo.Get(ctx, key)
	if err != nil {
		return 0
	}

	remaining := time.Until(entry.WindowExpiresAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// MemoryRateLimiter is an in-process limiter for single-node deployments and
// tests. Same windowing semantics as the Postgres variant.
type MemoryRateLimiter struct {
	window  time.Duration
	mu      sync.Mutex
	entries map[string]*models.ThrottleEntry
}

func NewMemoryRateLimiter(window time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		window:  window,
		entries: make(map[string]*models.ThrottleEntry),
	}
}

func (l *MemoryRateLimiter) TooManyAttempts(ctx context.Context, key string, max int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok || entry.Expired(time.Now()) {
		return false
	}

	return entry.Attempts >= max
}

func (l *MemoryRateLimiter) Hit(ctx context.Context, key string) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok || entry.Expired(now) {
		l.entries[key] = &models.ThrottleEntry{
			Key:             key,
			Attempts:        1,
			WindowExpiresAt: now.Add(l.window),
		}
		return
	}

	entry.Attempts++
}

func (l *MemoryRateLimiter) Clear(ctx context.Context, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

func (l *MemoryRateLimiter) AvailableIn(ctx context.Context, key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		return 0
	}

	remaining := time.Until(entry.WindowExpiresAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}
