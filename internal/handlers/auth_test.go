package handlers_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/gatehouse/internal/auth"
	"github.com/BradenHooton/gatehouse/internal/handlers"
	"github.com/BradenHooton/gatehouse/internal/models"
	"github.com/BradenHooton/gatehouse/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRememberSecret = "test-remember-secret-at-least-32-chars!!"

type authHandlerFixture struct {
	handler   *handlers.AuthHandler
	store     *session.MemoryStore
	login     *handlers.MockLoginFlow
	challenge *handlers.MockChallengeFlow
}

func newAuthHandlerFixture(login *handlers.MockLoginFlow, challenge *handlers.MockChallengeFlow) *authHandlerFixture {
	if login == nil {
		login = &handlers.MockLoginFlow{}
	}
	if challenge == nil {
		challenge = &handlers.MockChallengeFlow{}
	}
	store := session.NewMemoryStore()

	handler := handlers.NewAuthHandler(
		login,
		challenge,
		session.NewManager(store, time.Hour, false),
		auth.NewRememberTokenManager(testRememberSecret, 30*24*time.Hour),
		auth.CookieConfig{SameSite: "lax"},
		nil,
		"",
		slog.Default(),
	)

	return &authHandlerFixture{
		handler:   handler,
		store:     store,
		login:     login,
		challenge: challenge,
	}
}

func newSession(t *testing.T, store *session.MemoryStore) *session.Session {
	t.Helper()
	sess := session.New("test-session-token", time.Hour)
	require.NoError(t, store.Create(context.Background(), sess))
	return sess
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	return nil
}

func rememberCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.RememberCookieName {
			return c
		}
	}
	return nil
}

func TestLogin_Success_RotatesSession(t *testing.T) {
	login := &handlers.MockLoginFlow{
		AuthenticateFunc: func(ctx context.Context, sess *session.Session, creds models.Credentials, clientIP string) error {
			sess.Put(session.AuthUserKey, "user123")
			return nil
		},
	}
	f := newAuthHandlerFixture(login, nil)
	sess := newSession(t, f.store)

	req := handlers.WithSession(handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Login:    "a@b.com",
		Password: "pw",
	}), sess)

	w := httptest.NewRecorder()
	f.handler.Login(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)

	cookie := sessionCookie(t, w)
	require.NotNil(t, cookie, "login must rotate the session cookie")
	assert.NotEqual(t, sess.Token, cookie.Value)
}

func TestLogin_SecondFactorRequired(t *testing.T) {
	login := &handlers.MockLoginFlow{
		AuthenticateFunc: func(ctx context.Context, sess *session.Session, creds models.Credentials, clientIP string) error {
			return models.ErrSecondFactorRequired
		},
	}
	f := newAuthHandlerFixture(login, nil)
	sess := newSession(t, f.store)

	req := handlers.WithSession(handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Login:    "a@b.com",
		Password: "pw",
	}), sess)

	w := httptest.NewRecorder()
	f.handler.Login(w, req)

	var resp handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.True(t, resp.TwoFactorRequired)

	assert.Nil(t, sessionCookie(t, w), "the password step must not rotate or establish the session")
	assert.Nil(t, rememberCookie(w))
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := newAuthHandlerFixture(&handlers.MockLoginFlow{}, nil)
	sess := newSession(t, f.store)

	req := handlers.WithSession(handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Login:    "a@b.com",
		Password: "wrong",
	}), sess)

	w := httptest.NewRecorder()
	f.handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
}

func TestLogin_Lockout(t *testing.T) {
	login := &handlers.MockLoginFlow{
		AuthenticateFunc: func(ctx context.Context, sess *session.Session, creds models.Credentials, clientIP string) error {
			return &models.LockoutError{RetryAfter: 42 * time.Second}
		},
	}
	f := newAuthHandlerFixture(login, nil)
	sess := newSession(t, f.store)

	req := handlers.WithSession(handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Login:    "a@b.com",
		Password: "pw",
	}), sess)

	w := httptest.NewRecorder()
	f.handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusTooManyRequests, "too_many_attempts")
	assert.Equal(t, "42", w.Header().Get("Retry-After"))
}

func TestLogin_MalformedBody(t *testing.T) {
	f := newAuthHandlerFixture(&handlers.MockLoginFlow{}, nil)

	req := httptest.NewRequest("POST", "/auth/login", nil)
	w := httptest.NewRecorder()
	f.handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestLogin_MissingFields(t *testing.T) {
	f := newAuthHandlerFixture(&handlers.MockLoginFlow{}, nil)
	sess := newSession(t, f.store)

	req := handlers.WithSession(handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Login: "a@b.com",
	}), sess)

	w := httptest.NewRecorder()
	f.handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestLogin_SpoofedForwardedForIgnored(t *testing.T) {
	var seenIP string
	login := &handlers.MockLoginFlow{
		AuthenticateFunc: func(ctx context.Context, sess *session.Session, creds models.Credentials, clientIP string) error {
			seenIP = clientIP
			return models.ErrInvalidCredentials
		},
	}
	f := newAuthHandlerFixture(login, nil)
	sess := newSession(t, f.store)

	req := handlers.WithSession(handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Login:    "a@b.com",
		Password: "wrong",
	}), sess)
	req.RemoteAddr = "192.0.2.1:5000"
	req.Header.Set("X-Forwarded-For", "10.99.99.99")

	w := httptest.NewRecorder()
	f.handler.Login(w, req)

	assert.Equal(t, "192.0.2.1", seenIP,
		"forwarded headers from an untrusted peer must not move the throttle bucket")
}

func TestLogin_CustomPasswordField(t *testing.T) {
	var seenPassword string
	login := &handlers.MockLoginFlow{
		AuthenticateFunc: func(ctx context.Context, sess *session.Session, creds models.Credentials, clientIP string) error {
			seenPassword = creds.Password
			return nil
		},
	}
	store := session.NewMemoryStore()
	handler := handlers.NewAuthHandler(
		login,
		&handlers.MockChallengeFlow{},
		session.NewManager(store, time.Hour, false),
		auth.NewRememberTokenManager(testRememberSecret, 30*24*time.Hour),
		auth.CookieConfig{SameSite: "lax"},
		nil,
		"passcode",
		slog.Default(),
	)
	sess := newSession(t, store)

	req := handlers.WithSession(handlers.NewTestRequest(t, "POST", "/auth/login", map[string]interface{}{
		"login":    "a@b.com",
		"passcode": "secret-pw",
	}), sess)

	w := httptest.NewRecorder()
	handler.Login(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "secret-pw", seenPassword)
}

func TestVerifyChallenge_Success(t *testing.T) {
	challenge := &handlers.MockChallengeFlow{
		HasPendingChallengeFunc: func(sess *session.Session) bool { return true },
		PendingUserIDFunc:       func(sess *session.Session) string { return "user123" },
		PendingRememberMeFunc:   func(sess *session.Session) bool { return true },
		VerifyCodeFunc: func(ctx context.Context, sess *session.Session, code string) (bool, error) {
			return code == "123456", nil
		},
	}
	f := newAuthHandlerFixture(&handlers.MockLoginFlow{}, challenge)
	sess := newSession(t, f.store)

	req := handlers.WithSession(handlers.NewTestRequest(t, "POST", "/auth/login/2fa", handlers.TwoFactorVerifyRequest{
		Code: "123456",
	}), sess)

	w := httptest.NewRecorder()
	f.handler.VerifyChallenge(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, f.challenge.Cancelled, "the challenge must be consumed")
	assert.Equal(t, 1, f.login.Completions)
	assert.Equal(t, "user123", f.login.CompletedUserID)
	assert.True(t, f.login.CompletedRemember)

	cookie := sessionCookie(t, w)
	require.NotNil(t, cookie, "completing the challenge must rotate the session")
	assert.NotEqual(t, sess.Token, cookie.Value)

	remember := rememberCookie(w)
	require.NotNil(t, remember, "remember flag captured at the password step issues the cookie")
	assert.NotEmpty(t, remember.Value)
}

func TestVerifyChallenge_WrongCode(t *testing.T) {
	challenge := &handlers.MockChallengeFlow{
		HasPendingChallengeFunc: func(sess *session.Session) bool { return true },
		PendingUserIDFunc:       func(sess *session.Session) string { return "user123" },
		VerifyCodeFunc: func(ctx context.Context, sess *session.Session, code string) (bool, error) {
			return false, nil
		},
	}
	f := newAuthHandlerFixture(&handlers.MockLoginFlow{}, challenge)
	sess := newSession(t, f.store)

	req := handlers.WithSession(handlers.NewTestRequest(t, "POST", "/auth/login/2fa", handlers.TwoFactorVerifyRequest{
		Code: "000000",
	}), sess)

	w := httptest.NewRecorder()
	f.handler.VerifyChallenge(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
	assert.Equal(t, 0, f.challenge.Cancelled, "a failed code leaves the challenge pending")
	assert.Equal(t, 0, f.login.Completions)
}

func TestVerifyChallenge_NoPendingChallenge(t *testing.T) {
	f := newAuthHandlerFixture(&handlers.MockLoginFlow{}, nil)
	sess := newSession(t, f.store)

	req := handlers.WithSession(handlers.NewTestRequest(t, "POST", "/auth/login/2fa", handlers.TwoFactorVerifyRequest{
		Code: "123456",
	}), sess)

	w := httptest.NewRecorder()
	f.handler.VerifyChallenge(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
}

func TestVerifyChallenge_RecoveryCode(t *testing.T) {
	challenge := &handlers.MockChallengeFlow{
		HasPendingChallengeFunc: func(sess *session.Session) bool { return true },
		PendingUserIDFunc:       func(sess *session.Session) string { return "user123" },
		UseRecoveryCodeFunc: func(ctx context.Context, sess *session.Session, code string) (bool, error) {
			return code == "aaaaaaaaaa-bbbbbbbbbb", nil
		},
	}
	f := newAuthHandlerFixture(&handlers.MockLoginFlow{}, challenge)
	sess := newSession(t, f.store)

	req := handlers.WithSession(handlers.NewTestRequest(t, "POST", "/auth/login/2fa", handlers.TwoFactorVerifyRequest{
		RecoveryCode: "aaaaaaaaaa-bbbbbbbbbb",
	}), sess)

	w := httptest.NewRecorder()
	f.handler.VerifyChallenge(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "user123", f.login.CompletedUserID)
}

func TestVerifyChallenge_ForgivesLoginThrottle(t *testing.T) {
	challenge := &handlers.MockChallengeFlow{
		HasPendingChallengeFunc: func(sess *session.Session) bool { return true },
		PendingUserIDFunc:       func(sess *session.Session) string { return "user123" },
		PendingThrottleKeyFunc:  func(sess *session.Session) string { return "a@b.com|192.0.2.1" },
		VerifyCodeFunc: func(ctx context.Context, sess *session.Session, code string) (bool, error) {
			return true, nil
		},
	}
	f := newAuthHandlerFixture(nil, challenge)
	sess := newSession(t, f.store)

	req := handlers.WithSession(handlers.NewTestRequest(t, "POST", "/auth/login/2fa", handlers.TwoFactorVerifyRequest{
		Code: "123456",
	}), sess)

	w := httptest.NewRecorder()
	f.handler.VerifyChallenge(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "a@b.com|192.0.2.1", f.login.CompletedThrottleKey,
		"completion must carry the throttle key charged at the password step")
}

func TestVerifyChallenge_BothFieldsRejected(t *testing.T) {
	f := newAuthHandlerFixture(&handlers.MockLoginFlow{}, nil)
	sess := newSession(t, f.store)

	req := handlers.WithSession(handlers.NewTestRequest(t, "POST", "/auth/login/2fa", handlers.TwoFactorVerifyRequest{
		Code:         "123456",
		RecoveryCode: "aaaaaaaaaa-bbbbbbbbbb",
	}), sess)

	w := httptest.NewRecorder()
	f.handler.VerifyChallenge(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestVerifyChallenge_Throttled(t *testing.T) {
	challenge := &handlers.MockChallengeFlow{
		HasPendingChallengeFunc: func(sess *session.Session) bool { return true },
		PendingUserIDFunc:       func(sess *session.Session) string { return "user123" },
		VerifyCodeFunc: func(ctx context.Context, sess *session.Session, code string) (bool, error) {
			return false, &models.LockoutError{RetryAfter: 60 * time.Second}
		},
	}
	f := newAuthHandlerFixture(&handlers.MockLoginFlow{}, challenge)
	sess := newSession(t, f.store)

	req := handlers.WithSession(handlers.NewTestRequest(t, "POST", "/auth/login/2fa", handlers.TwoFactorVerifyRequest{
		Code: "123456",
	}), sess)

	w := httptest.NewRecorder()
	f.handler.VerifyChallenge(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusTooManyRequests, "too_many_attempts")
}

func TestCancelChallenge(t *testing.T) {
	challenge := &handlers.MockChallengeFlow{}
	f := newAuthHandlerFixture(&handlers.MockLoginFlow{}, challenge)
	sess := newSession(t, f.store)

	req := handlers.WithSession(httptest.NewRequest("DELETE", "/auth/login/2fa", nil), sess)

	w := httptest.NewRecorder()
	f.handler.CancelChallenge(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, challenge.Cancelled)
}

func TestLogout_DestroysSessionAndRememberCookie(t *testing.T) {
	f := newAuthHandlerFixture(&handlers.MockLoginFlow{}, nil)
	sess := newSession(t, f.store)

	req := handlers.WithSession(httptest.NewRequest("POST", "/auth/logout", nil), sess)

	w := httptest.NewRecorder()
	f.handler.Logout(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)

	_, err := f.store.Get(context.Background(), sess.Token)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	remember := rememberCookie(w)
	require.NotNil(t, remember)
	assert.Equal(t, -1, remember.MaxAge, "remember cookie must be expired")
}
