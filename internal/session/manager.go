package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/gatehouse/pkg/http"
)

type contextKey string

const sessionContextKey contextKey = "session"

const CookieName = "gatehouse_session"

// Manager resolves the per-request session from its cookie, creating one on
// demand, and rotates tokens when privileges change.
type Manager struct {
	store  Store
	ttl    time.Duration
	secure bool
}

// NewManager creates a session manager backed by store.
func NewManager(store Store, ttl time.Duration, secure bool) *Manager {
	return &Manager{
		store:  store,
		ttl:    ttl,
		secure: secure,
	}
}

// Middleware attaches the request's session to its context, creating a new
// session (and cookie) when none exists.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.resolve(r)
		if err != nil {
			sess, err = m.create(r.Context(), w)
			if err != nil {
				pkghttp.WriteInternalError(w, "session unavailable")
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

func (m *Manager) resolve(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil, err
	}

	return m.store.Get(r.Context(), cookie.Value)
}

// create persists a fresh session and only then hands its token to the
// client. A cookie for a session the store never saw is worse than no
// cookie at all.
func (m *Manager) create(ctx context.Context, w http.ResponseWriter) (*Session, error) {
	sess := New(newToken(), m.ttl)
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	m.writeCookie(w, sess.Token, m.ttl)
	return sess, nil
}

// Renew rotates the session token, carrying the bag over. Called after a
// durable login to prevent session fixation.
func (m *Manager) Renew(ctx context.Context, w http.ResponseWriter, sess *Session) (*Session, error) {
	fresh := New(newToken(), m.ttl)
	for k, v := range sess.snapshot() {
		fresh.Put(k, v)
	}

	if err := m.store.Create(ctx, fresh); err != nil {
		return nil, fmt.Errorf("failed to create renewed session: %w", err)
	}
	if err := m.store.Delete(ctx, sess.Token); err != nil {
		return nil, fmt.Errorf("failed to delete old session: %w", err)
	}

	m.writeCookie(w, fresh.Token, m.ttl)
	return fresh, nil
}

// Destroy deletes the session and expires its cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if err := m.store.Delete(ctx, sess.Token); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (m *Manager) writeCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func newToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("session token generation failed: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// WithSession returns a context carrying the session.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// FromContext extracts the request's session.
func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(sessionContextKey).(*Session)
	return sess, ok
}
