package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/gatehouse/internal/auth"
	"github.com/BradenHooton/gatehouse/internal/models"
	"github.com/BradenHooton/gatehouse/internal/session"
	pkghttp "github.com/BradenHooton/gatehouse/pkg/http"
)

// LoginFlow is the slice of the login service the handler needs.
type LoginFlow interface {
	Authenticate(ctx context.Context, sess *session.Session, creds models.Credentials, clientIP string) error
	CompleteChallenge(ctx context.Context, sess *session.Session, userID, throttleKey string, remember bool)
}

// ChallengeFlow is the slice of the two-factor service covering a pending
// login challenge.
type ChallengeFlow interface {
	HasPendingChallenge(sess *session.Session) bool
	PendingUserID(sess *session.Session) string
	PendingRememberMe(sess *session.Session) bool
	PendingThrottleKey(sess *session.Session) string
	CancelChallenge(sess *session.Session)
	VerifyCode(ctx context.Context, sess *session.Session, code string) (bool, error)
	UseRecoveryCode(ctx context.Context, sess *session.Session, code string) (bool, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	login         LoginFlow
	challenge     ChallengeFlow
	sessions      *session.Manager
	remember      *auth.RememberTokenManager
	cookies       auth.CookieConfig
	ipConfig      *pkghttp.IPConfig
	passwordField string
	logger        *slog.Logger
}

// NewAuthHandler creates a new AuthHandler. passwordField names the request
// body field carrying the password; "" means "password".
func NewAuthHandler(
	login LoginFlow,
	challenge ChallengeFlow,
	sessions *session.Manager,
	remember *auth.RememberTokenManager,
	cookies auth.CookieConfig,
	ipConfig *pkghttp.IPConfig,
	passwordField string,
	logger *slog.Logger,
) *AuthHandler {
	if passwordField == "" {
		passwordField = "password"
	}
	return &AuthHandler{
		login:         login,
		challenge:     challenge,
		sessions:      sessions,
		remember:      remember,
		cookies:       cookies,
		ipConfig:      ipConfig,
		passwordField: passwordField,
		logger:        logger,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Login    string `json:"login" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=128"`
	Remember bool   `json:"remember"`
}

// TwoFactorVerifyRequest carries either a TOTP code or a recovery code.
type TwoFactorVerifyRequest struct {
	Code         string `json:"code" validate:"omitempty,len=6,numeric"`
	RecoveryCode string `json:"recovery_code" validate:"omitempty,min=10,max=64"`
}

// LoginResponse represents the response body for a login that needs a
// second step.
type LoginResponse struct {
	TwoFactorRequired bool `json:"two_factor_required"`
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	// The password field name is configurable to match the client's form.
	req := LoginRequest{
		Login:    stringField(body, "login"),
		Password: stringField(body, h.passwordField),
		Remember: boolField(body, "remember"),
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	sess, ok := session.FromContext(r.Context())
	if !ok {
		pkghttp.WriteInternalError(w, "session unavailable")
		return
	}

	clientIP := pkghttp.ExtractClientIP(r, h.ipConfig)

	creds := models.Credentials{
		Login:    req.Login,
		Password: req.Password,
		Remember: req.Remember,
	}

	err := h.login.Authenticate(r.Context(), sess, creds, clientIP)
	switch {
	case err == nil:
		h.completeLogin(w, r, sess)
	case errors.Is(err, models.ErrSecondFactorRequired):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(LoginResponse{TwoFactorRequired: true})
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteUnauthorized(w, "invalid credentials")
	default:
		if lockout, ok := models.AsLockout(err); ok {
			pkghttp.WriteLockout(w, lockout.RetryAfterSeconds())
			return
		}
		h.logger.Error("login failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "login failed")
	}
}

// VerifyChallenge handles POST /auth/login/2fa, completing a pending login
// challenge with either a TOTP code or a recovery code.
func (h *AuthHandler) VerifyChallenge(w http.ResponseWriter, r *http.Request) {
	var req TwoFactorVerifyRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if (req.Code == "") == (req.RecoveryCode == "") {
		pkghttp.WriteBadRequest(w, "provide exactly one of code or recovery_code")
		return
	}

	sess, ok := session.FromContext(r.Context())
	if !ok {
		pkghttp.WriteInternalError(w, "session unavailable")
		return
	}

	if !h.challenge.HasPendingChallenge(sess) {
		pkghttp.WriteUnauthorized(w, "no pending login challenge")
		return
	}

	// Capture the challenge values before it is consumed.
	userID := h.challenge.PendingUserID(sess)
	rememberMe := h.challenge.PendingRememberMe(sess)
	throttleKey := h.challenge.PendingThrottleKey(sess)

	var verified bool
	var err error
	if req.Code != "" {
		verified, err = h.challenge.VerifyCode(r.Context(), sess, req.Code)
	} else {
		verified, err = h.challenge.UseRecoveryCode(r.Context(), sess, req.RecoveryCode)
	}
	if err != nil {
		if lockout, ok := models.AsLockout(err); ok {
			pkghttp.WriteLockout(w, lockout.RetryAfterSeconds())
			return
		}
		h.logger.Error("challenge verification failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "verification failed")
		return
	}
	if !verified {
		pkghttp.WriteUnauthorized(w, "invalid code")
		return
	}

	h.challenge.CancelChallenge(sess)

	newSess, err := h.sessions.Renew(r.Context(), w, sess)
	if err != nil {
		h.logger.Error("session renewal failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "login failed")
		return
	}

	h.login.CompleteChallenge(r.Context(), newSess, userID, throttleKey, rememberMe)
	h.issueRememberCookie(w, newSess)

	w.WriteHeader(http.StatusNoContent)
}

// CancelChallenge handles DELETE /auth/login/2fa, abandoning a pending
// challenge without authenticating.
func (h *AuthHandler) CancelChallenge(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		pkghttp.WriteInternalError(w, "session unavailable")
		return
	}

	h.challenge.CancelChallenge(sess)
	w.WriteHeader(http.StatusNoContent)
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		pkghttp.WriteInternalError(w, "session unavailable")
		return
	}

	if err := h.sessions.Destroy(r.Context(), w, sess); err != nil {
		h.logger.Error("session destroy failed", slog.Any("error", err))
	}
	auth.ClearRememberCookie(w, h.cookies)

	w.WriteHeader(http.StatusNoContent)
}

// completeLogin finishes a password-only login: rotate the session token and
// issue the remember cookie when the login asked for it.
func (h *AuthHandler) completeLogin(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	newSess, err := h.sessions.Renew(r.Context(), w, sess)
	if err != nil {
		h.logger.Error("session renewal failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "login failed")
		return
	}

	h.issueRememberCookie(w, newSess)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) issueRememberCookie(w http.ResponseWriter, sess *session.Session) {
	flag, ok := sess.Get(session.RememberKey)
	if !ok {
		return
	}
	remembered, _ := flag.(bool)
	if !remembered {
		return
	}

	userID, ok := sess.Get(session.AuthUserKey)
	if !ok {
		return
	}
	id, _ := userID.(string)
	if id == "" {
		return
	}

	token, err := h.remember.Generate(id)
	if err != nil {
		h.logger.Error("remember token generation failed", slog.Any("error", err))
		return
	}
	auth.SetRememberCookie(w, token, h.remember.Expiry(), h.cookies)
}

func stringField(body map[string]interface{}, key string) string {
	s, _ := body[key].(string)
	return s
}

func boolField(body map[string]interface{}, key string) bool {
	b, _ := body[key].(bool)
	return b
}
