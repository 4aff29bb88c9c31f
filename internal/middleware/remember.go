package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/gatehouse/internal/auth"
	"github.com/BradenHooton/gatehouse/internal/models"
	"github.com/BradenHooton/gatehouse/internal/session"
)

// SessionEstablisher finalizes a durable login on a session.
type SessionEstablisher interface {
	EstablishSession(sess *session.Session, userID string, remember bool)
}

// UserLoader loads a user by ID.
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// RememberLogin re-establishes an authenticated session from a valid
// remember-me cookie when the session cookie has lapsed. The token is only
// ever issued after a fully completed login, so this path never skips a
// pending second factor. Must run after the session middleware.
func RememberLogin(
	tokens *auth.RememberTokenManager,
	users UserLoader,
	directory SessionEstablisher,
	cookies auth.CookieConfig,
	logger *slog.Logger,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := session.FromContext(r.Context())
			if !ok || sess.Has(session.AuthUserKey) {
				next.ServeHTTP(w, r)
				return
			}

			token, err := auth.GetRememberCookie(r)
			if err != nil || token == "" {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := tokens.Validate(token)
			if err != nil {
				auth.ClearRememberCookie(w, cookies)
				next.ServeHTTP(w, r)
				return
			}

			user, err := users.GetByID(r.Context(), userID)
			if err != nil || user.Status != "active" {
				auth.ClearRememberCookie(w, cookies)
				next.ServeHTTP(w, r)
				return
			}

			directory.EstablishSession(sess, user.ID, true)
			logger.Debug("session re-established from remember token",
				slog.String("user_id", user.ID))

			next.ServeHTTP(w, r)
		})
	}
}
