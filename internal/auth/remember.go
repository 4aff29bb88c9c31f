package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RememberClaims are the claims carried by a remember-me token.
type RememberClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// RememberTokenManager signs and validates the long-lived remember-me tokens
// issued when a user logs in with the remember flag. The token re-establishes
// a session after the short-lived session cookie expires; it never bypasses a
// pending second factor because it is only issued after full authentication.
type RememberTokenManager struct {
	secret string
	expiry time.Duration
}

// NewRememberTokenManager creates a new RememberTokenManager.
func NewRememberTokenManager(secret string, expiry time.Duration) *RememberTokenManager {
	return &RememberTokenManager{
		secret: secret,
		expiry: expiry,
	}
}

// Expiry returns the configured token lifetime.
func (rm *RememberTokenManager) Expiry() time.Duration {
	return rm.expiry
}

// Generate creates a signed remember-me token for a user.
func (rm *RememberTokenManager) Generate(userID string) (string, error) {
	claims := &RememberClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(rm.expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(rm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign remember token: %w", err)
	}

	return signed, nil
}

// Validate verifies a remember-me token and returns the user ID it carries.
func (rm *RememberTokenManager) Validate(tokenString string) (string, error) {
	claims := &RememberClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(rm.secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse remember token: %w", err)
	}

	if !token.Valid || claims.UserID == "" {
		return "", fmt.Errorf("invalid remember token")
	}

	return claims.UserID, nil
}
