package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/gatehouse/internal/models"
	"github.com/BradenHooton/gatehouse/internal/session"
	pkghttp "github.com/BradenHooton/gatehouse/pkg/http"
)

// TwoFactorManager is the slice of the two-factor service covering
// enrollment.
type TwoFactorManager interface {
	Provision(ctx context.Context, user *models.User) (*models.TwoFactorSetup, error)
	ConfirmSetup(ctx context.Context, user *models.User, code string) error
	QRCodeURL(ctx context.Context, user *models.User) (string, error)
}

// UserLoader loads a user by ID.
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// TwoFactorHandler handles two-factor enrollment HTTP requests
type TwoFactorHandler struct {
	manager TwoFactorManager
	users   UserLoader
	logger  *slog.Logger
}

// NewTwoFactorHandler creates a new TwoFactorHandler
func NewTwoFactorHandler(manager TwoFactorManager, users UserLoader, logger *slog.Logger) *TwoFactorHandler {
	return &TwoFactorHandler{
		manager: manager,
		users:   users,
		logger:  logger,
	}
}

// ConfirmSetupRequest represents the request body for confirming enrollment
type ConfirmSetupRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// SetupResponse represents the response body for provisioning
type SetupResponse struct {
	Secret        string   `json:"secret"`
	QRCode        string   `json:"qr_code"`
	RecoveryCodes []string `json:"recovery_codes"`
}

// QRCodeResponse carries the provisioning QR code for an unconfirmed secret
type QRCodeResponse struct {
	QRCode string `json:"qr_code"`
}

// Setup handles POST /2fa/setup, generating a fresh secret and recovery
// codes for the authenticated user. Re-running setup replaces any prior
// unconfirmed secret and resets confirmation.
func (h *TwoFactorHandler) Setup(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	setup, err := h.manager.Provision(r.Context(), user)
	if err != nil {
		h.logger.Error("two-factor provisioning failed",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "failed to provision two-factor authentication")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(SetupResponse{
		Secret:        setup.Secret,
		QRCode:        setup.QRCode,
		RecoveryCodes: setup.RecoveryCodes,
	})
}

// Confirm handles POST /2fa/confirm. The user must prove possession of the
// provisioned secret with a valid code before the second factor is enforced
// at login.
func (h *TwoFactorHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req ConfirmSetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.manager.ConfirmSetup(r.Context(), user, req.Code)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, models.ErrInvalidCode):
		pkghttp.WriteUnauthorized(w, "invalid code")
	case errors.Is(err, models.ErrAlreadyConfirmed):
		pkghttp.WriteConflict(w, "two-factor authentication is already confirmed")
	case errors.Is(err, models.ErrNotProvisioned):
		pkghttp.WriteBadRequest(w, "two-factor authentication has not been set up")
	default:
		h.logger.Error("two-factor confirmation failed",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "failed to confirm two-factor authentication")
	}
}

// QRCode handles GET /2fa/qrcode, re-rendering the provisioning QR code for
// a secret that has not been confirmed yet.
func (h *TwoFactorHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	qr, err := h.manager.QRCodeURL(r.Context(), user)
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(QRCodeResponse{QRCode: qr})
	case errors.Is(err, models.ErrAlreadyConfirmed):
		pkghttp.WriteConflict(w, "two-factor authentication is already confirmed")
	case errors.Is(err, models.ErrNotProvisioned):
		pkghttp.WriteNotFound(w, "two-factor authentication has not been set up")
	default:
		h.logger.Error("qr code rendering failed",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "failed to render qr code")
	}
}

// currentUser resolves the authenticated user from the session. Writes the
// error response itself when resolution fails.
func (h *TwoFactorHandler) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		pkghttp.WriteInternalError(w, "session unavailable")
		return nil, false
	}

	val, ok := sess.Get(session.AuthUserKey)
	if !ok {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return nil, false
	}
	userID, _ := val.(string)
	if userID == "" {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return nil, false
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteUnauthorized(w, "authentication required")
			return nil, false
		}
		h.logger.Error("user lookup failed",
			slog.String("user_id", userID),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "failed to load user")
		return nil, false
	}

	return user, true
}
