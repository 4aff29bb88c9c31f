package services

import (
	"context"
	"log/slog"

	"github.com/BradenHooton/gatehouse/internal/models"
	"github.com/BradenHooton/gatehouse/internal/session"
	pkglogger "github.com/BradenHooton/gatehouse/pkg/logger"
)

// SecondFactor is the slice of the two-factor service the login flow needs.
type SecondFactor interface {
	IsEnabledFor(user *models.User) bool
	BeginChallenge(sess *session.Session, user *models.User, remember bool, throttleKey string)
}

// LockoutNotifier receives the observable side effect emitted when the login
// throttle trips, for external telemetry and alerting.
type LockoutNotifier interface {
	NotifyLockout(ctx context.Context, login, clientIP string, retryAfterSeconds int)
}

// LoginConfig holds login flow configuration
type LoginConfig struct {
	TwoFactorEnabled    bool
	RateLimitingEnabled bool
	MaxAttempts         int
	SuggestRememberMe   bool
}

// LoginService orchestrates authentication: rate-limit gate, credential
// check, optional second-factor handoff, durable session establishment.
type LoginService struct {
	directory   UserDirectory
	twoFactor   SecondFactor
	limiter     RateLimiter
	notifier    LockoutNotifier
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	config      LoginConfig
}

// NewLoginService creates a new LoginService.
func NewLoginService(
	directory UserDirectory,
	twoFactor SecondFactor,
	limiter RateLimiter,
	notifier LockoutNotifier,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
	config LoginConfig,
) *LoginService {
	return &LoginService{
		directory:   directory,
		twoFactor:   twoFactor,
		limiter:     limiter,
		notifier:    notifier,
		logger:      logger,
		auditLogger: auditLogger,
		config:      config,
	}
}

// Authenticate runs the login flow. Outcomes:
//   - nil: durable session established.
//   - models.ErrSecondFactorRequired: password accepted, challenge pending;
//     the caller must route to code entry.
//   - models.ErrInvalidCredentials: credential check failed.
//   - *models.LockoutError: throttle tripped; retry later.
//
// Only credential failures charge the throttle; code failures are governed by
// the two-factor service's own policy. A successful durable login forgives
// prior failed attempts for the same throttle key.
func (s *LoginService) Authenticate(ctx context.Context, sess *session.Session, creds models.Credentials, clientIP string) error {
	key := ThrottleKey(creds.Login, clientIP)

	if s.config.RateLimitingEnabled && s.limiter.TooManyAttempts(ctx, key, s.config.MaxAttempts) {
		retryAfter := s.limiter.AvailableIn(ctx, key)
		lockout := &models.LockoutError{RetryAfter: retryAfter}

		s.auditLogger.LogLockout(creds.Login, clientIP, lockout.RetryAfterSeconds())
		if s.notifier != nil {
			s.notifier.NotifyLockout(ctx, creds.Login, clientIP, lockout.RetryAfterSeconds())
		}

		return lockout
	}

	remember := s.config.SuggestRememberMe && creds.Remember

	user, err := s.directory.AttemptOnce(ctx, creds)
	if err != nil {
		return err
	}
	if user == nil {
		s.limiter.Hit(ctx, key)
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			IPAddress:     clientIP,
			FailureReason: "invalid_credentials",
			Success:       false,
		})
		return models.ErrInvalidCredentials
	}

	if s.config.TwoFactorEnabled && s.twoFactor.IsEnabledFor(user) {
		// The one-shot check above must not outlive this request; only the
		// eventual second-factor success establishes the durable session.
		s.twoFactor.BeginChallenge(sess, user, remember, key)

		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType: "login_second_factor_pending",
			UserID:    user.ID,
			IPAddress: clientIP,
			Success:   true,
		})
		return models.ErrSecondFactorRequired
	}

	ok, err := s.directory.AttemptAndEstablishSession(ctx, sess, creds, remember)
	if err != nil {
		return err
	}
	if !ok {
		s.limiter.Hit(ctx, key)
		return models.ErrInvalidCredentials
	}

	s.limiter.Clear(ctx, key)
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.ID,
		IPAddress: clientIP,
		Success:   true,
	})
	s.logger.Info("user logged in", slog.String("user_id", user.ID))

	return nil
}

// CompleteChallenge finalizes a login whose second factor just verified:
// establishes the durable session and forgives the failed password attempts
// recorded under the throttle key captured when the challenge opened. A
// durable login clears its throttle bucket whichever path produced it.
func (s *LoginService) CompleteChallenge(ctx context.Context, sess *session.Session, userID, throttleKey string, remember bool) {
	s.directory.EstablishSession(sess, userID, remember)

	if s.config.RateLimitingEnabled && throttleKey != "" {
		s.limiter.Clear(ctx, throttleKey)
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_second_factor_completed",
		UserID:    userID,
		Success:   true,
	})
	s.logger.Info("user logged in", slog.String("user_id", userID))
}
