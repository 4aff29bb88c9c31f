package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/gatehouse/internal/database"
	"github.com/BradenHooton/gatehouse/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ThrottleRepository stores fixed-window attempt counters, one row per
// throttle key. Increments are atomic UPSERTs so concurrent hits are never
// lost; a lapsed window restarts the count at one.
type ThrottleRepository struct {
	pool *pgxpool.Pool
}

func NewThrottleRepository(db *database.DB) *ThrottleRepository {
	return &ThrottleRepository{pool: db.Pool}
}

// Increment records one failed attempt against key, starting a new window of
// the given length when none is active. Returns the updated entry.
func (r *ThrottleRepository) Increment(ctx context.Context, key string, window time.Duration) (*models.ThrottleEntry, error) {
	query := `
		INSERT INTO throttle (key, attempts, window_expires_at)
		VALUES ($1, 1, now() + $2)
		ON CONFLICT (key) DO UPDATE SET
			attempts = CASE WHEN throttle.window_expires_at <= now() THEN 1 ELSE throttle.attempts + 1 END,
			window_expires_at = CASE WHEN throttle.window_expires_at <= now() THEN now() + $2 ELSE throttle.window_expires_at END
		RETURNING key, attempts, window_expires_at
	`

	var entry models.ThrottleEntry
	err := r.pool.QueryRow(ctx, query, key, window).Scan(
		&entry.Key, &entry.Attempts, &entry.WindowExpiresAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &entry, nil
}

// Get returns the entry for key, or ErrNotFound.
func (r *ThrottleRepository) Get(ctx context.Context, key string) (*models.ThrottleEntry, error) {
	query := `SELECT key, attempts, window_expires_at FROM throttle WHERE key = $1`

	var entry models.ThrottleEntry
	err := r.pool.QueryRow(ctx, query, key).Scan(
		&entry.Key, &entry.Attempts, &entry.WindowExpiresAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &entry, nil
}

// Clear forgives all attempts for key.
func (r *ThrottleRepository) Clear(ctx context.Context, key string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM throttle WHERE key = $1`, key)
	return database.MapPostgresError(err)
}

// DeleteExpired purges counters whose window lapsed. Called by the background
// sweeper; returns how many rows were removed.
func (r *ThrottleRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM throttle WHERE window_expires_at <= now()`)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return tag.RowsAffected(), nil
}
