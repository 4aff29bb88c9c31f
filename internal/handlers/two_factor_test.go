package handlers_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/gatehouse/internal/handlers"
	"github.com/BradenHooton/gatehouse/internal/models"
	"github.com/BradenHooton/gatehouse/internal/session"
	"github.com/stretchr/testify/assert"
)

func authedSession(userID string) *session.Session {
	sess := session.New("tok", time.Hour)
	sess.Put(session.AuthUserKey, userID)
	return sess
}

func activeUser(id string) *models.User {
	return &models.User{ID: id, Email: "a@b.com", Status: "active"}
}

func TestTwoFactorSetup_Success(t *testing.T) {
	manager := &handlers.MockTwoFactorManager{
		ProvisionFunc: func(ctx context.Context, user *models.User) (*models.TwoFactorSetup, error) {
			return &models.TwoFactorSetup{
				Secret:        "JBSWY3DPEHPK3PXP",
				QRCode:        "data:image/png;base64,abc",
				RecoveryCodes: []string{"aaaaaaaaaa-bbbbbbbbbb"},
			}, nil
		},
	}
	users := &handlers.MockUserLoader{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return activeUser(id), nil
		},
	}

	handler := handlers.NewTwoFactorHandler(manager, users, slog.Default())

	req := handlers.WithSession(httptest.NewRequest("POST", "/2fa/setup", nil), authedSession("user123"))
	w := httptest.NewRecorder()
	handler.Setup(w, req)

	var resp handlers.SetupResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", resp.Secret)
	assert.NotEmpty(t, resp.QRCode)
	assert.Len(t, resp.RecoveryCodes, 1)
}

func TestTwoFactorSetup_Unauthenticated(t *testing.T) {
	handler := handlers.NewTwoFactorHandler(&handlers.MockTwoFactorManager{}, &handlers.MockUserLoader{}, slog.Default())

	req := handlers.WithSession(httptest.NewRequest("POST", "/2fa/setup", nil), session.New("tok", time.Hour))
	w := httptest.NewRecorder()
	handler.Setup(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
}

func TestTwoFactorConfirm_Success(t *testing.T) {
	manager := &handlers.MockTwoFactorManager{
		ConfirmSetupFunc: func(ctx context.Context, user *models.User, code string) error {
			assert.Equal(t, "123456", code)
			return nil
		},
	}
	users := &handlers.MockUserLoader{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return activeUser(id), nil
		},
	}

	handler := handlers.NewTwoFactorHandler(manager, users, slog.Default())

	req := handlers.WithSession(handlers.NewTestRequest(t, "POST", "/2fa/confirm", handlers.ConfirmSetupRequest{
		Code: "123456",
	}), authedSession("user123"))
	w := httptest.NewRecorder()
	handler.Confirm(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestTwoFactorConfirm_InvalidCode(t *testing.T) {
	manager := &handlers.MockTwoFactorManager{
		ConfirmSetupFunc: func(ctx context.Context, user *models.User, code string) error {
			return models.ErrInvalidCode
		},
	}
	users := &handlers.MockUserLoader{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return activeUser(id), nil
		},
	}

	handler := handlers.NewTwoFactorHandler(manager, users, slog.Default())

	req := handlers.WithSession(handlers.NewTestRequest(t, "POST", "/2fa/confirm", handlers.ConfirmSetupRequest{
		Code: "000000",
	}), authedSession("user123"))
	w := httptest.NewRecorder()
	handler.Confirm(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
}

func TestTwoFactorConfirm_AlreadyConfirmed(t *testing.T) {
	manager := &handlers.MockTwoFactorManager{
		ConfirmSetupFunc: func(ctx context.Context, user *models.User, code string) error {
			return models.ErrAlreadyConfirmed
		},
	}
	users := &handlers.MockUserLoader{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return activeUser(id), nil
		},
	}

	handler := handlers.NewTwoFactorHandler(manager, users, slog.Default())

	req := handlers.WithSession(handlers.NewTestRequest(t, "POST", "/2fa/confirm", handlers.ConfirmSetupRequest{
		Code: "123456",
	}), authedSession("user123"))
	w := httptest.NewRecorder()
	handler.Confirm(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusConflict, "conflict")
}

func TestTwoFactorConfirm_BadCodeFormat(t *testing.T) {
	users := &handlers.MockUserLoader{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return activeUser(id), nil
		},
	}
	handler := handlers.NewTwoFactorHandler(&handlers.MockTwoFactorManager{}, users, slog.Default())

	req := handlers.WithSession(handlers.NewTestRequest(t, "POST", "/2fa/confirm", handlers.ConfirmSetupRequest{
		Code: "12ab56",
	}), authedSession("user123"))
	w := httptest.NewRecorder()
	handler.Confirm(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestTwoFactorQRCode_Success(t *testing.T) {
	manager := &handlers.MockTwoFactorManager{
		QRCodeURLFunc: func(ctx context.Context, user *models.User) (string, error) {
			return "data:image/png;base64,abc", nil
		},
	}
	users := &handlers.MockUserLoader{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return activeUser(id), nil
		},
	}

	handler := handlers.NewTwoFactorHandler(manager, users, slog.Default())

	req := handlers.WithSession(httptest.NewRequest("GET", "/2fa/qrcode", nil), authedSession("user123"))
	w := httptest.NewRecorder()
	handler.QRCode(w, req)

	var resp handlers.QRCodeResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "data:image/png;base64,abc", resp.QRCode)
}

func TestTwoFactorQRCode_NotProvisioned(t *testing.T) {
	manager := &handlers.MockTwoFactorManager{
		QRCodeURLFunc: func(ctx context.Context, user *models.User) (string, error) {
			return "", models.ErrNotProvisioned
		},
	}
	users := &handlers.MockUserLoader{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return activeUser(id), nil
		},
	}

	handler := handlers.NewTwoFactorHandler(manager, users, slog.Default())

	req := handlers.WithSession(httptest.NewRequest("GET", "/2fa/qrcode", nil), authedSession("user123"))
	w := httptest.NewRecorder()
	handler.QRCode(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusNotFound, "not_found")
}
