package services

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/gatehouse/internal/models"
	"github.com/BradenHooton/gatehouse/internal/session"
)

// MockUserGetter implements UserGetter for testing
type MockUserGetter struct {
	GetByLoginFunc func(ctx context.Context, attribute, login string) (*models.User, error)
	GetByIDFunc    func(ctx context.Context, id string) (*models.User, error)
}

func (m *MockUserGetter) GetByLogin(ctx context.Context, attribute, login string) (*models.User, error) {
	if m.GetByLoginFunc != nil {
		return m.GetByLoginFunc(ctx, attribute, login)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserGetter) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

// MockUserDirectory implements UserDirectory for testing
type MockUserDirectory struct {
	AttemptOnceFunc                func(ctx context.Context, creds models.Credentials) (*models.User, error)
	AttemptAndEstablishSessionFunc func(ctx context.Context, sess *session.Session, creds models.Credentials, remember bool) (bool, error)
	EstablishSessionFunc           func(sess *session.Session, userID string, remember bool)

	EstablishedUserID   string
	EstablishedRemember bool
	Establishments      int
}

func (m *MockUserDirectory) AttemptOnce(ctx context.Context, creds models.Credentials) (*models.User, error) {
	if m.AttemptOnceFunc != nil {
		return m.AttemptOnceFunc(ctx, creds)
	}
	return nil, nil
}

func (m *MockUserDirectory) AttemptAndEstablishSession(ctx context.Context, sess *session.Session, creds models.Credentials, remember bool) (bool, error) {
	if m.AttemptAndEstablishSessionFunc != nil {
		return m.AttemptAndEstablishSessionFunc(ctx, sess, creds, remember)
	}
	return false, nil
}

func (m *MockUserDirectory) EstablishSession(sess *session.Session, userID string, remember bool) {
	m.Establishments++
	m.EstablishedUserID = userID
	m.EstablishedRemember = remember
	if m.EstablishSessionFunc != nil {
		m.EstablishSessionFunc(sess, userID, remember)
		return
	}
	sess.Put(session.AuthUserKey, userID)
	sess.Put(session.RememberKey, remember)
}

// MockSecondFactor implements SecondFactor for testing and records whether a
// challenge was opened
type MockSecondFactor struct {
	IsEnabledForFunc   func(user *models.User) bool
	BeginChallengeFunc func(sess *session.Session, user *models.User, remember bool, throttleKey string)

	ChallengesOpened int
	LastThrottleKey  string
}

func (m *MockSecondFactor) IsEnabledFor(user *models.User) bool {
	if m.IsEnabledForFunc != nil {
		return m.IsEnabledForFunc(user)
	}
	return false
}

func (m *MockSecondFactor) BeginChallenge(sess *session.Session, user *models.User, remember bool, throttleKey string) {
	m.ChallengesOpened++
	m.LastThrottleKey = throttleKey
	if m.BeginChallengeFunc != nil {
		m.BeginChallengeFunc(sess, user, remember, throttleKey)
	}
}

// MockRateLimiter implements RateLimiter for testing
type MockRateLimiter struct {
	TooManyAttemptsFunc func(ctx context.Context, key string, max int) bool
	HitFunc             func(ctx context.Context, key string)
	ClearFunc           func(ctx context.Context, key string)
	AvailableInFunc     func(ctx context.Context, key string) time.Duration

	Hits   []string
	Clears []string
}

func (m *MockRateLimiter) TooManyAttempts(ctx context.Context, key string, max int) bool {
	if m.TooManyAttemptsFunc != nil {
		return m.TooManyAttemptsFunc(ctx, key, max)
	}
	return false
}

func (m *MockRateLimiter) Hit(ctx context.Context, key string) {
	m.Hits = append(m.Hits, key)
	if m.HitFunc != nil {
		m.HitFunc(ctx, key)
	}
}

func (m *MockRateLimiter) Clear(ctx context.Context, key string) {
	m.Clears = append(m.Clears, key)
	if m.ClearFunc != nil {
		m.ClearFunc(ctx, key)
	}
}

func (m *MockRateLimiter) AvailableIn(ctx context.Context, key string) time.Duration {
	if m.AvailableInFunc != nil {
		return m.AvailableInFunc(ctx, key)
	}
	return 30 * time.Second
}

// MockLockoutNotifier implements LockoutNotifier and records notifications
type MockLockoutNotifier struct {
	mu            sync.Mutex
	Notifications []string
}

func (m *MockLockoutNotifier) NotifyLockout(ctx context.Context, login, clientIP string, retryAfterSeconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notifications = append(m.Notifications, login)
}

// FakeTwoFactorStore is an in-memory TwoFactorStore
type FakeTwoFactorStore struct {
	mu        sync.Mutex
	Secrets   map[string][]byte
	Codes     map[string][]byte
	Confirmed map[string]bool
}

func NewFakeTwoFactorStore() *FakeTwoFactorStore {
	return &FakeTwoFactorStore{
		Secrets:   make(map[string][]byte),
		Codes:     make(map[string][]byte),
		Confirmed: make(map[string]bool),
	}
}

func (f *FakeTwoFactorStore) SaveSecretAndRecoveryCodes(ctx context.Context, userID string, encryptedSecret, encryptedCodes []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Secrets[userID] = encryptedSecret
	f.Codes[userID] = encryptedCodes
	f.Confirmed[userID] = false
	return nil
}

func (f *FakeTwoFactorStore) EncryptedSecret(ctx context.Context, userID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	secret, ok := f.Secrets[userID]
	if !ok || len(secret) == 0 {
		return nil, models.ErrNotProvisioned
	}
	return secret, nil
}

func (f *FakeTwoFactorStore) EncryptedRecoveryCodes(ctx context.Context, userID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	codes, ok := f.Codes[userID]
	if !ok || len(codes) == 0 {
		return nil, models.ErrNotProvisioned
	}
	return codes, nil
}

func (f *FakeTwoFactorStore) ReplaceRecoveryCodes(ctx context.Context, userID string, encryptedCodes []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Secrets[userID]; !ok {
		return models.ErrNotProvisioned
	}
	f.Codes[userID] = encryptedCodes
	return nil
}

func (f *FakeTwoFactorStore) ConfirmUser(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Secrets[userID]; !ok {
		return models.ErrNotProvisioned
	}
	f.Confirmed[userID] = true
	return nil
}

func (f *FakeTwoFactorStore) IsEnabledFor(user *models.User) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Confirmed[user.ID]
}

// NewTestUser creates a user populated with sensible defaults
func NewTestUser(id, email string) *models.User {
	return &models.User{
		ID:           id,
		Email:        email,
		PasswordHash: "$2a$14$invalidhashfortestingonly",
		Name:         "Test User",
		Role:         "user",
		Status:       "active",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}
