package models

import (
	"time"
)

type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Name         string
	Role         string // e.g., "user", "admin"
	Status       string // "active", "suspended", "disabled"

	// Two-factor material. Secret and recovery codes are AES-256-GCM
	// ciphertexts; the cleartext never touches the database or the logs.
	TOTPSecret        []byte
	TOTPRecoveryCodes []byte
	TOTPConfirmedAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TwoFactorConfirmed reports whether the user completed two-factor setup.
func (u *User) TwoFactorConfirmed() bool {
	return u.TOTPConfirmedAt != nil
}

// TwoFactorProvisioned reports whether a secret has been generated for the
// user, confirmed or not.
func (u *User) TwoFactorProvisioned() bool {
	return len(u.TOTPSecret) > 0
}
