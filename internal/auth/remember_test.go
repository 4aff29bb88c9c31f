package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRememberSecret = "test-remember-secret-at-least-32-chars!!"

func TestRememberTokenManager_GenerateValidate(t *testing.T) {
	rm := NewRememberTokenManager(testRememberSecret, 30*24*time.Hour)

	token, err := rm.Generate("user123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	userID, err := rm.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user123", userID)
}

func TestRememberTokenManager_Validate_WrongSecret(t *testing.T) {
	rm := NewRememberTokenManager(testRememberSecret, time.Hour)
	other := NewRememberTokenManager("another-secret-that-is-also-32-chars!!!!", time.Hour)

	token, err := rm.Generate("user123")
	require.NoError(t, err)

	_, err = other.Validate(token)
	assert.Error(t, err)
}

func TestRememberTokenManager_Validate_Expired(t *testing.T) {
	rm := NewRememberTokenManager(testRememberSecret, -time.Minute)

	token, err := rm.Generate("user123")
	require.NoError(t, err)

	_, err = rm.Validate(token)
	assert.Error(t, err)
}

func TestRememberTokenManager_Validate_Garbage(t *testing.T) {
	rm := NewRememberTokenManager(testRememberSecret, time.Hour)

	_, err := rm.Validate("not.a.jwt")
	assert.Error(t, err)

	_, err = rm.Validate("")
	assert.Error(t, err)
}

func TestRememberTokenManager_TokensAreUnique(t *testing.T) {
	rm := NewRememberTokenManager(testRememberSecret, time.Hour)

	a, err := rm.Generate("user123")
	require.NoError(t, err)
	b, err := rm.Generate("user123")
	require.NoError(t, err)

	// Each token carries a fresh JTI
	assert.NotEqual(t, a, b)
}
