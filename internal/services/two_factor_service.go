package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/gatehouse/internal/auth"
	"github.com/BradenHooton/gatehouse/internal/models"
	"github.com/BradenHooton/gatehouse/internal/session"
)

// TwoFactorStore is the seam between the challenge logic and a concrete
// persistence strategy. One variant is selected at startup; the Postgres
// variant lives in internal/repositories. SaveSecretAndRecoveryCodes must be
// atomic: a concurrent verification never sees the secret without its codes.
type TwoFactorStore interface {
	SaveSecretAndRecoveryCodes(ctx context.Context, userID string, encryptedSecret, encryptedCodes []byte) error
	EncryptedSecret(ctx context.Context, userID string) ([]byte, error)
	EncryptedRecoveryCodes(ctx context.Context, userID string) ([]byte, error)
	ReplaceRecoveryCodes(ctx context.Context, userID string, encryptedCodes []byte) error
	ConfirmUser(ctx context.Context, userID string) error
	IsEnabledFor(user *models.User) bool
}

// TwoFactorConfig holds two-factor configuration
type TwoFactorConfig struct {
	// CodeRateLimiting throttles one-time-code guesses per pending user.
	// Password throttling alone leaves a 6-digit code brute-forceable, so
	// this defaults on.
	CodeRateLimiting bool
	MaxCodeAttempts  int
}

// TwoFactorService orchestrates secret provisioning, code verification,
// recovery-code issuance, and the pending-challenge lifecycle.
type TwoFactorService struct {
	store   TwoFactorStore
	cipher  *auth.Cipher
	engine  *auth.TOTPEngine
	limiter RateLimiter
	logger  *slog.Logger
	config  TwoFactorConfig
}

// NewTwoFactorService creates a new two-factor service.
func NewTwoFactorService(
	store TwoFactorStore,
	cipher *auth.Cipher,
	engine *auth.TOTPEngine,
	limiter RateLimiter,
	logger *slog.Logger,
	config TwoFactorConfig,
) *TwoFactorService {
	return &TwoFactorService{
		store:   store,
		cipher:  cipher,
		engine:  engine,
		limiter: limiter,
		logger:  logger,
		config:  config,
	}
}

// IsEnabledFor reports whether this user requires a second factor.
func (s *TwoFactorService) IsEnabledFor(user *models.User) bool {
	return s.store.IsEnabledFor(user)
}

// BeginChallenge records a pending login in the session's single challenge
// slot, overwriting any prior pending challenge (last write wins). The
// throttle key identifies the login-throttle bucket to forgive once the
// second factor completes the login.
func (s *TwoFactorService) BeginChallenge(sess *session.Session, user *models.User, remember bool, throttleKey string) {
	sess.Put(session.ChallengeKey, models.LoginChallenge{
		UserID:      user.ID,
		Remember:    remember,
		ThrottleKey: throttleKey,
	})

	s.logger.Info("login challenge opened", slog.String("user_id", user.ID))
}

// HasPendingChallenge reports whether the challenge slot is populated.
func (s *TwoFactorService) HasPendingChallenge(sess *session.Session) bool {
	return sess.Has(session.ChallengeKey)
}

// PendingUserID returns the pending user's ID, or "" when no challenge is open.
func (s *TwoFactorService) PendingUserID(sess *session.Session) string {
	ch, ok := s.challenge(sess)
	if !ok {
		return ""
	}
	return ch.UserID
}

// PendingRememberMe returns the remember flag captured at the password step,
// false when no challenge is open.
func (s *TwoFactorService) PendingRememberMe(sess *session.Session) bool {
	ch, ok := s.challenge(sess)
	if !ok {
		return false
	}
	return ch.Remember
}

// PendingThrottleKey returns the login-throttle bucket recorded when the
// challenge opened, "" when no challenge is open.
func (s *TwoFactorService) PendingThrottleKey(sess *session.Session) string {
	ch, ok := s.challenge(sess)
	if !ok {
		return ""
	}
	return ch.ThrottleKey
}

// CancelChallenge clears the challenge slot. Callers must invoke it after a
// successful verification and on explicit abandon, so a stale challenge
// cannot be replayed.
func (s *TwoFactorService) CancelChallenge(sess *session.Session) {
	sess.Forget(session.ChallengeKey)
}

// VerifyCode checks a one-time code against the pending user's decrypted
// secret at the current time step. A failed check mutates nothing; the
// challenge stays pending and the caller decides retry policy. Code guesses
// are throttled per pending user when configured.
func (s *TwoFactorService) VerifyCode(ctx context.Context, sess *session.Session, code string) (bool, error) {
	ch, ok := s.challenge(sess)
	if !ok {
		return false, models.ErrNoPendingChallenge
	}

	key := CodeThrottleKey(ch.UserID)
	if s.config.CodeRateLimiting && s.limiter.TooManyAttempts(ctx, key, s.config.MaxCodeAttempts) {
		s.logger.Warn("one-time code guesses throttled", slog.String("user_id", ch.UserID))
		return false, &models.LockoutError{RetryAfter: s.limiter.AvailableIn(ctx, key)}
	}

	secret, err := s.decryptSecret(ctx, ch.UserID)
	if err != nil {
		return false, err
	}

	if !s.engine.Verify(code, secret) {
		if s.config.CodeRateLimiting {
			s.limiter.Hit(ctx, key)
		}
		return false, nil
	}

	if s.config.CodeRateLimiting {
		s.limiter.Clear(ctx, key)
	}
	return true, nil
}

// UseRecoveryCode consumes a single-use recovery code in place of a one-time
// code. The matched code is removed and the remaining batch re-encrypted and
// saved before reporting success.
func (s *TwoFactorService) UseRecoveryCode(ctx context.Context, sess *session.Session, code string) (bool, error) {
	ch, ok := s.challenge(sess)
	if !ok {
		return false, models.ErrNoPendingChallenge
	}

	key := CodeThrottleKey(ch.UserID)
	if s.config.CodeRateLimiting && s.limiter.TooManyAttempts(ctx, key, s.config.MaxCodeAttempts) {
		return false, &models.LockoutError{RetryAfter: s.limiter.AvailableIn(ctx, key)}
	}

	codes, err := s.decryptRecoveryCodes(ctx, ch.UserID)
	if err != nil {
		return false, err
	}

	idx := auth.MatchRecoveryCode(code, codes)
	if idx < 0 {
		if s.config.CodeRateLimiting {
			s.limiter.Hit(ctx, key)
		}
		return false, nil
	}

	remaining := append(codes[:idx:idx], codes[idx+1:]...)
	encrypted, err := s.encryptRecoveryCodes(remaining)
	if err != nil {
		return false, err
	}

	if err := s.store.ReplaceRecoveryCodes(ctx, ch.UserID, encrypted); err != nil {
		s.logger.Error("failed to consume recovery code", slog.Any("error", err))
		return false, models.ErrInternalServer
	}

	if s.config.CodeRateLimiting {
		s.limiter.Clear(ctx, key)
	}

	s.logger.Info("recovery code used",
		slog.String("user_id", ch.UserID),
		slog.Int("codes_remaining", len(remaining)))
	return true, nil
}

// Provision generates a fresh secret and a fresh batch of recovery codes,
// encrypts both independently, and persists them atomically. Calling it again
// overwrites and invalidates all prior codes; callers must gate it behind an
// explicit confirmation. The returned cleartext is for one-time display only.
func (s *TwoFactorService) Provision(ctx context.Context, user *models.User) (*models.TwoFactorSetup, error) {
	secret, err := s.engine.GenerateSecret(user.Email)
	if err != nil {
		s.logger.Error("failed to generate TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	codes, err := auth.GenerateRecoveryCodes(models.RecoveryCodeCount)
	if err != nil {
		s.logger.Error("failed to generate recovery codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	encryptedSecret, err := s.cipher.Encrypt([]byte(secret))
	if err != nil {
		s.logger.Error("failed to encrypt TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	encryptedCodes, err := s.encryptRecoveryCodes(codes)
	if err != nil {
		return nil, models.ErrInternalServer
	}

	if err := s.store.SaveSecretAndRecoveryCodes(ctx, user.ID, encryptedSecret, encryptedCodes); err != nil {
		s.logger.Error("failed to save two-factor material", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	qr, err := s.engine.QRCodeDataURL(user.Email, secret)
	if err != nil {
		s.logger.Error("failed to render QR code", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("two-factor provisioned", slog.String("user_id", user.ID))

	return &models.TwoFactorSetup{
		Secret:        secret,
		QRCode:        qr,
		RecoveryCodes: codes,
	}, nil
}

// QRCodeURL re-renders the provisioning QR code while setup is unconfirmed.
// Once the user confirmed, the secret is never displayed again.
func (s *TwoFactorService) QRCodeURL(ctx context.Context, user *models.User) (string, error) {
	if user.TwoFactorConfirmed() {
		return "", models.ErrAlreadyConfirmed
	}

	secret, err := s.decryptSecret(ctx, user.ID)
	if err != nil {
		return "", err
	}

	return s.engine.QRCodeDataURL(user.Email, secret)
}

// ConfirmSetup verifies the user's first code against the freshly provisioned
// secret, then marks setup as completed.
func (s *TwoFactorService) ConfirmSetup(ctx context.Context, user *models.User, code string) error {
	if user.TwoFactorConfirmed() {
		return models.ErrAlreadyConfirmed
	}

	secret, err := s.decryptSecret(ctx, user.ID)
	if err != nil {
		return err
	}

	if !s.engine.Verify(code, secret) {
		return models.ErrInvalidCode
	}

	if err := s.store.ConfirmUser(ctx, user.ID); err != nil {
		s.logger.Error("failed to confirm two-factor setup", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("two-factor setup confirmed", slog.String("user_id", user.ID))
	return nil
}

func (s *TwoFactorService) challenge(sess *session.Session) (models.LoginChallenge, bool) {
	val, ok := sess.Get(session.ChallengeKey)
	if !ok {
		return models.LoginChallenge{}, false
	}

	ch, ok := val.(models.LoginChallenge)
	return ch, ok
}

func (s *TwoFactorService) decryptSecret(ctx context.Context, userID string) (string, error) {
	encrypted, err := s.store.EncryptedSecret(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotProvisioned) || errors.Is(err, models.ErrNotFound) {
			return "", models.ErrNotProvisioned
		}
		s.logger.Error("failed to load encrypted secret", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	secret, err := s.cipher.Decrypt(encrypted)
	if err != nil {
		s.logger.Error("failed to decrypt TOTP secret", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	return string(secret), nil
}

func (s *TwoFactorService) decryptRecoveryCodes(ctx context.Context, userID string) ([]string, error) {
	encrypted, err := s.store.EncryptedRecoveryCodes(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotProvisioned) || errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotProvisioned
		}
		s.logger.Error("failed to load recovery codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	blob, err := s.cipher.Decrypt(encrypted)
	if err != nil {
		s.logger.Error("failed to decrypt recovery codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	var codes []string
	if err := json.Unmarshal(blob, &codes); err != nil {
		return nil, fmt.Errorf("failed to decode recovery codes: %w", err)
	}

	return codes, nil
}

func (s *TwoFactorService) encryptRecoveryCodes(codes []string) ([]byte, error) {
	blob, err := json.Marshal(codes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode recovery codes: %w", err)
	}

	encrypted, err := s.cipher.Encrypt(blob)
	if err != nil {
		s.logger.Error("failed to encrypt recovery codes", slog.Any("error", err))
		return nil, err
	}

	return encrypted, nil
}
