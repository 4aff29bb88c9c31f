package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/gatehouse/internal/database"
	"github.com/BradenHooton/gatehouse/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

// rowScanner interface for scanning user rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const userColumns = `id, email, username, password_hash, name, role, status,
	totp_secret, totp_recovery_codes, totp_confirmed_at, created_at, updated_at`

// scanUserRow handles nullable fields and populates a User model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var username, passwordHash *string
	var totpSecret, totpRecoveryCodes []byte
	var totpConfirmedAt *time.Time

	err := scanner.Scan(
		&user.ID, &user.Email, &username, &passwordHash, &user.Name,
		&user.Role, &user.Status,
		&totpSecret, &totpRecoveryCodes, &totpConfirmedAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if username != nil {
		user.Username = *username
	}
	if passwordHash != nil {
		user.PasswordHash = *passwordHash
	}
	user.TOTPSecret = totpSecret
	user.TOTPRecoveryCodes = totpRecoveryCodes
	user.TOTPConfirmedAt = totpConfirmedAt

	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)

	row := r.pool.QueryRow(ctx, query, id)
	return scanUserRow(row)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE lower(email) = lower($1)`, userColumns)

	row := r.pool.QueryRow(ctx, query, email)
	return scanUserRow(row)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE lower(username) = lower($1)`, userColumns)

	row := r.pool.QueryRow(ctx, query, username)
	return scanUserRow(row)
}

// GetByLogin resolves a user by the configured login attribute.
func (r *UserRepository) GetByLogin(ctx context.Context, attribute, login string) (*models.User, error) {
	switch attribute {
	case "username":
		return r.GetByUsername(ctx, login)
	default:
		return r.GetByEmail(ctx, login)
	}
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := fmt.Sprintf(`
		INSERT INTO users (email, username, password_hash, name, role, status)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)
		RETURNING %s
	`, userColumns)

	row := r.pool.QueryRow(ctx, query,
		user.Email, user.Username, user.PasswordHash, user.Name, user.Role, user.Status,
	)
	return scanUserRow(row)
}
