package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/gatehouse/internal/database"
	"github.com/BradenHooton/gatehouse/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TwoFactorRepository is the Postgres-backed variant of the two-factor storage
// seam: it keeps the encrypted secret and recovery codes on the user record.
type TwoFactorRepository struct {
	pool *pgxpool.Pool
}

func NewTwoFactorRepository(db *database.DB) *TwoFactorRepository {
	return &TwoFactorRepository{pool: db.Pool}
}

// SaveSecretAndRecoveryCodes persists a freshly provisioned secret and code
// batch in a single UPDATE so a concurrent verification never observes one
// without the other. Re-provisioning resets the confirmation flag.
func (r *TwoFactorRepository) SaveSecretAndRecoveryCodes(ctx context.Context, userID string, encryptedSecret, encryptedCodes []byte) error {
	query := `
		UPDATE users
		SET totp_secret = $2, totp_recovery_codes = $3, totp_confirmed_at = NULL, updated_at = now()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, userID, encryptedSecret, encryptedCodes)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// EncryptedSecret returns the stored secret ciphertext for a user.
func (r *TwoFactorRepository) EncryptedSecret(ctx context.Context, userID string) ([]byte, error) {
	var secret []byte

	err := r.pool.QueryRow(ctx, `SELECT totp_secret FROM users WHERE id = $1`, userID).Scan(&secret)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	if len(secret) == 0 {
		return nil, models.ErrNotProvisioned
	}

	return secret, nil
}

// EncryptedRecoveryCodes returns the stored recovery code blob for a user.
func (r *TwoFactorRepository) EncryptedRecoveryCodes(ctx context.Context, userID string) ([]byte, error) {
	var codes []byte

	err := r.pool.QueryRow(ctx, `SELECT totp_recovery_codes FROM users WHERE id = $1`, userID).Scan(&codes)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	if len(codes) == 0 {
		return nil, models.ErrNotProvisioned
	}

	return codes, nil
}

// ReplaceRecoveryCodes overwrites the code blob after one code is consumed.
func (r *TwoFactorRepository) ReplaceRecoveryCodes(ctx context.Context, userID string, encryptedCodes []byte) error {
	query := `UPDATE users SET totp_recovery_codes = $2, updated_at = now() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, userID, encryptedCodes)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// ConfirmUser marks two-factor setup as completed for the user.
func (r *TwoFactorRepository) ConfirmUser(ctx context.Context, userID string) error {
	query := `
		UPDATE users SET totp_confirmed_at = now(), updated_at = now()
		WHERE id = $1 AND totp_secret IS NOT NULL
	`

	tag, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("confirm user %s: %w", userID, models.ErrNotProvisioned)
	}

	return nil
}

// IsEnabledFor reports whether this user completed two-factor setup. Per-user
// opt-in wins over the global flag: an unconfirmed user logs in with the
// password alone even when two-factor is globally on.
func (r *TwoFactorRepository) IsEnabledFor(user *models.User) bool {
	return user.TwoFactorConfirmed()
}
