package integration

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/gatehouse/internal/models"
)

func TestUserRepository_GetByLogin_Email(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	userRepo, _, _ := InitializeRepositories(db.DB)

	email, password := TestUser("lookup")
	seeded, err := SeedUser(ctx, db.Pool, email, password)
	require.NoError(t, err)

	// Lookup is case-insensitive on the stored email
	found, err := userRepo.GetByLogin(ctx, "email", strings.ToUpper(email))
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, found.ID)
	assert.Equal(t, email, found.Email)
	assert.Equal(t, "active", found.Status)
	assert.False(t, found.TwoFactorProvisioned())
}

func TestUserRepository_GetByLogin_Username(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	userRepo, _, _ := InitializeRepositories(db.DB)

	email, _ := TestUser("username")
	created, err := userRepo.Create(ctx, &models.User{
		Email:        email,
		Username:     "Gatekeeper",
		PasswordHash: "not-a-real-hash",
		Role:         "user",
		Status:       "active",
	})
	require.NoError(t, err)

	found, err := userRepo.GetByLogin(ctx, "username", "gatekeeper")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}

func TestUserRepository_GetByLogin_NotFound(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	userRepo, _, _ := InitializeRepositories(db.DB)

	_, err := userRepo.GetByLogin(ctx, "email", "nobody@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUserRepository_Create_DuplicateEmail(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	userRepo, _, _ := InitializeRepositories(db.DB)

	email, password := TestUser("dupe")
	_, err := SeedUser(ctx, db.Pool, email, password)
	require.NoError(t, err)

	// Same email, different case, still conflicts
	_, err = userRepo.Create(ctx, &models.User{
		Email:        strings.ToUpper(email),
		PasswordHash: "not-a-real-hash",
		Role:         "user",
		Status:       "active",
	})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestTwoFactorRepository_SaveAndConfirm(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	userRepo, twoFactorRepo, _ := InitializeRepositories(db.DB)

	email, password := TestUser("2fa")
	user, err := SeedUser(ctx, db.Pool, email, password)
	require.NoError(t, err)

	secret := []byte("encrypted-secret")
	codes := []byte("encrypted-codes")
	require.NoError(t, twoFactorRepo.SaveSecretAndRecoveryCodes(ctx, user.ID, secret, codes))

	stored, err := twoFactorRepo.EncryptedSecret(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, secret, stored)

	reloaded, err := userRepo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.TwoFactorProvisioned())
	assert.False(t, reloaded.TwoFactorConfirmed())

	require.NoError(t, twoFactorRepo.ConfirmUser(ctx, user.ID))

	reloaded, err = userRepo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.TwoFactorConfirmed())
	assert.True(t, twoFactorRepo.IsEnabledFor(reloaded))
}

func TestTwoFactorRepository_ReprovisionResetsConfirmation(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	userRepo, twoFactorRepo, _ := InitializeRepositories(db.DB)

	email, password := TestUser("reprovision")
	user, err := SeedUser(ctx, db.Pool, email, password)
	require.NoError(t, err)

	require.NoError(t, twoFactorRepo.SaveSecretAndRecoveryCodes(ctx, user.ID, []byte("s1"), []byte("c1")))
	require.NoError(t, twoFactorRepo.ConfirmUser(ctx, user.ID))

	// A new secret invalidates the old confirmation
	require.NoError(t, twoFactorRepo.SaveSecretAndRecoveryCodes(ctx, user.ID, []byte("s2"), []byte("c2")))

	reloaded, err := userRepo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.TwoFactorConfirmed())

	stored, err := twoFactorRepo.EncryptedSecret(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("s2"), stored)
}

func TestTwoFactorRepository_ConfirmWithoutSecret(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	_, twoFactorRepo, _ := InitializeRepositories(db.DB)

	email, password := TestUser("unprovisioned")
	user, err := SeedUser(ctx, db.Pool, email, password)
	require.NoError(t, err)

	err = twoFactorRepo.ConfirmUser(ctx, user.ID)
	assert.ErrorIs(t, err, models.ErrNotProvisioned)

	_, err = twoFactorRepo.EncryptedSecret(ctx, user.ID)
	assert.ErrorIs(t, err, models.ErrNotProvisioned)

	_, err = twoFactorRepo.EncryptedRecoveryCodes(ctx, user.ID)
	assert.ErrorIs(t, err, models.ErrNotProvisioned)
}

func TestTwoFactorRepository_ReplaceRecoveryCodes(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	_, twoFactorRepo, _ := InitializeRepositories(db.DB)

	email, password := TestUser("recovery")
	user, err := SeedUser(ctx, db.Pool, email, password)
	require.NoError(t, err)

	require.NoError(t, twoFactorRepo.SaveSecretAndRecoveryCodes(ctx, user.ID, []byte("s"), []byte("before")))
	require.NoError(t, twoFactorRepo.ReplaceRecoveryCodes(ctx, user.ID, []byte("after")))

	codes, err := twoFactorRepo.EncryptedRecoveryCodes(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("after"), codes)
}

func TestThrottleRepository_IncrementAccumulates(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	_, _, throttleRepo := InitializeRepositories(db.DB)

	key := "user@example.com|192.0.2.1"

	entry, err := throttleRepo.Increment(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Attempts)

	for i := 0; i < 4; i++ {
		entry, err = throttleRepo.Increment(ctx, key, time.Minute)
		require.NoError(t, err)
	}
	assert.Equal(t, 5, entry.Attempts)
	assert.WithinDuration(t, time.Now().Add(time.Minute), entry.WindowExpiresAt, 5*time.Second)
}

func TestThrottleRepository_LapsedWindowRestartsAtOne(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	_, _, throttleRepo := InitializeRepositories(db.DB)

	key := "short-window"

	for i := 0; i < 3; i++ {
		_, err := throttleRepo.Increment(ctx, key, 100*time.Millisecond)
		require.NoError(t, err)
	}

	time.Sleep(150 * time.Millisecond)

	entry, err := throttleRepo.Increment(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Attempts)
}

func TestThrottleRepository_GetAndClear(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	_, _, throttleRepo := InitializeRepositories(db.DB)

	key := "clear-me"

	_, err := throttleRepo.Get(ctx, key)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = throttleRepo.Increment(ctx, key, time.Minute)
	require.NoError(t, err)

	entry, err := throttleRepo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Attempts)

	require.NoError(t, throttleRepo.Clear(ctx, key))

	_, err = throttleRepo.Get(ctx, key)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestThrottleRepository_DeleteExpired(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	_, _, throttleRepo := InitializeRepositories(db.DB)

	_, err := throttleRepo.Increment(ctx, "lapsed", 50*time.Millisecond)
	require.NoError(t, err)
	_, err = throttleRepo.Increment(ctx, "live", time.Minute)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	deleted, err := throttleRepo.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = throttleRepo.Get(ctx, "lapsed")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = throttleRepo.Get(ctx, "live")
	assert.NoError(t, err)
}
