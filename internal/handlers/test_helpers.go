package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/gatehouse/internal/models"
	"github.com/BradenHooton/gatehouse/internal/session"
	pkghttp "github.com/BradenHooton/gatehouse/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSession attaches a session to the request context, as the session
// middleware would.
func WithSession(req *http.Request, sess *session.Session) *http.Request {
	return req.WithContext(session.WithSession(req.Context(), sess))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockLoginFlow implements LoginFlow for testing and records challenge
// completions
type MockLoginFlow struct {
	AuthenticateFunc      func(ctx context.Context, sess *session.Session, creds models.Credentials, clientIP string) error
	CompleteChallengeFunc func(ctx context.Context, sess *session.Session, userID, throttleKey string, remember bool)

	CompletedUserID      string
	CompletedThrottleKey string
	CompletedRemember    bool
	Completions          int
}

func (m *MockLoginFlow) Authenticate(ctx context.Context, sess *session.Session, creds models.Credentials, clientIP string) error {
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, sess, creds, clientIP)
	}
	return models.ErrInvalidCredentials
}

func (m *MockLoginFlow) CompleteChallenge(ctx context.Context, sess *session.Session, userID, throttleKey string, remember bool) {
	m.Completions++
	m.CompletedUserID = userID
	m.CompletedThrottleKey = throttleKey
	m.CompletedRemember = remember
	if m.CompleteChallengeFunc != nil {
		m.CompleteChallengeFunc(ctx, sess, userID, throttleKey, remember)
		return
	}
	sess.Put(session.AuthUserKey, userID)
	sess.Put(session.RememberKey, remember)
}

// MockChallengeFlow implements ChallengeFlow for testing
type MockChallengeFlow struct {
	HasPendingChallengeFunc func(sess *session.Session) bool
	PendingUserIDFunc       func(sess *session.Session) string
	PendingRememberMeFunc   func(sess *session.Session) bool
	PendingThrottleKeyFunc  func(sess *session.Session) string
	VerifyCodeFunc          func(ctx context.Context, sess *session.Session, code string) (bool, error)
	UseRecoveryCodeFunc     func(ctx context.Context, sess *session.Session, code string) (bool, error)

	Cancelled int
}

func (m *MockChallengeFlow) HasPendingChallenge(sess *session.Session) bool {
	if m.HasPendingChallengeFunc != nil {
		return m.HasPendingChallengeFunc(sess)
	}
	return false
}

func (m *MockChallengeFlow) PendingUserID(sess *session.Session) string {
	if m.PendingUserIDFunc != nil {
		return m.PendingUserIDFunc(sess)
	}
	return ""
}

func (m *MockChallengeFlow) PendingRememberMe(sess *session.Session) bool {
	if m.PendingRememberMeFunc != nil {
		return m.PendingRememberMeFunc(sess)
	}
	return false
}

func (m *MockChallengeFlow) PendingThrottleKey(sess *session.Session) string {
	if m.PendingThrottleKeyFunc != nil {
		return m.PendingThrottleKeyFunc(sess)
	}
	return ""
}

func (m *MockChallengeFlow) CancelChallenge(sess *session.Session) {
	m.Cancelled++
	sess.Forget(session.ChallengeKey)
}

func (m *MockChallengeFlow) VerifyCode(ctx context.Context, sess *session.Session, code string) (bool, error) {
	if m.VerifyCodeFunc != nil {
		return m.VerifyCodeFunc(ctx, sess, code)
	}
	return false, nil
}

func (m *MockChallengeFlow) UseRecoveryCode(ctx context.Context, sess *session.Session, code string) (bool, error) {
	if m.UseRecoveryCodeFunc != nil {
		return m.UseRecoveryCodeFunc(ctx, sess, code)
	}
	return false, nil
}

// MockTwoFactorManager implements TwoFactorManager for testing
type MockTwoFactorManager struct {
	ProvisionFunc    func(ctx context.Context, user *models.User) (*models.TwoFactorSetup, error)
	ConfirmSetupFunc func(ctx context.Context, user *models.User, code string) error
	QRCodeURLFunc    func(ctx context.Context, user *models.User) (string, error)
}

func (m *MockTwoFactorManager) Provision(ctx context.Context, user *models.User) (*models.TwoFactorSetup, error) {
	if m.ProvisionFunc != nil {
		return m.ProvisionFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockTwoFactorManager) ConfirmSetup(ctx context.Context, user *models.User, code string) error {
	if m.ConfirmSetupFunc != nil {
		return m.ConfirmSetupFunc(ctx, user, code)
	}
	return models.ErrInternalServer
}

func (m *MockTwoFactorManager) QRCodeURL(ctx context.Context, user *models.User) (string, error) {
	if m.QRCodeURLFunc != nil {
		return m.QRCodeURLFunc(ctx, user)
	}
	return "", models.ErrInternalServer
}

// MockUserLoader implements UserLoader for testing
type MockUserLoader struct {
	GetByIDFunc func(ctx context.Context, id string) (*models.User, error)
}

func (m *MockUserLoader) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}
