package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/BradenHooton/gatehouse/internal/auth"
	"github.com/BradenHooton/gatehouse/internal/models"
	"github.com/BradenHooton/gatehouse/internal/session"
	pkgauth "github.com/BradenHooton/gatehouse/pkg/auth"
)

// UserDirectory checks credentials against the user store. AttemptOnce never
// touches the session; only AttemptAndEstablishSession creates a durable
// login. A nil user with a nil error means the credentials did not match;
// callers cannot tell an unknown login from a wrong password.
type UserDirectory interface {
	AttemptOnce(ctx context.Context, creds models.Credentials) (*models.User, error)
	AttemptAndEstablishSession(ctx context.Context, sess *session.Session, creds models.Credentials, remember bool) (bool, error)
	EstablishSession(sess *session.Session, userID string, remember bool)
}

// UserGetter is the slice of the user repository the directory needs.
type UserGetter interface {
	GetByLogin(ctx context.Context, attribute, login string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// DirectoryService is the repository-backed UserDirectory.
type DirectoryService struct {
	users          UserGetter
	loginAttribute string // "email" or "username"
	timing         *auth.TimingDelay
	logger         *slog.Logger
}

func NewDirectoryService(users UserGetter, loginAttribute string, timing *auth.TimingDelay, logger *slog.Logger) *DirectoryService {
	return &DirectoryService{
		users:          users,
		loginAttribute: loginAttribute,
		timing:         timing,
		logger:         logger,
	}
}

// AttemptOnce performs a one-shot credential check with no side effects.
func (s *DirectoryService) AttemptOnce(ctx context.Context, creds models.Credentials) (*models.User, error) {
	login := strings.ToLower(strings.TrimSpace(creds.Login))
	if login == "" || creds.Password == "" {
		s.timing.Wait(false)
		return nil, nil
	}

	user, err := s.users.GetByLogin(ctx, s.loginAttribute, login)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Burn a bcrypt-comparable delay so unknown logins are not faster
			// to probe than wrong passwords.
			s.timing.Wait(false)
			return nil, nil
		}
		s.logger.Error("failed to look up user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if user.Status != "active" {
		s.timing.Wait(false)
		return nil, nil
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, creds.Password); err != nil {
		s.timing.Wait(false)
		return nil, nil
	}

	return user, nil
}

// AttemptAndEstablishSession re-checks the credentials and, on success, writes
// the durable login into the session.
func (s *DirectoryService) AttemptAndEstablishSession(ctx context.Context, sess *session.Session, creds models.Credentials, remember bool) (bool, error) {
	user, err := s.AttemptOnce(ctx, creds)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, nil
	}

	s.EstablishSession(sess, user.ID, remember)
	return true, nil
}

// EstablishSession writes the durable login for an already-verified user.
// Used by the second-factor step, which has no password to re-check.
func (s *DirectoryService) EstablishSession(sess *session.Session, userID string, remember bool) {
	sess.Put(session.AuthUserKey, userID)
	sess.Put(session.RememberKey, remember)
}
