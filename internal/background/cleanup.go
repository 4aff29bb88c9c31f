package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/gatehouse/internal/repositories"
	"github.com/BradenHooton/gatehouse/internal/session"
)

// CleanupManager periodically sweeps lapsed throttle windows and expired
// sessions. Neither is load-bearing for correctness: the throttle counter
// resets itself on the next hit and expired sessions are rejected on read.
// The sweep just keeps storage from accumulating dead rows.
type CleanupManager struct {
	throttleRepo *repositories.ThrottleRepository
	sessions     session.Store
	logger       *slog.Logger
	interval     time.Duration
	stopCh       chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	throttleRepo *repositories.ThrottleRepository,
	sessions session.Store,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		throttleRepo: throttleRepo,
		sessions:     sessions,
		logger:       logger,
		interval:     interval,
		stopCh:       make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rowsDeleted, err := cm.throttleRepo.DeleteExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to sweep expired throttle entries", slog.Any("error", err))
	} else if rowsDeleted > 0 {
		cm.logger.Info("throttle sweep completed", slog.Int64("rows_deleted", rowsDeleted))
	}

	sessionsDeleted, err := cm.sessions.DeleteExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to sweep expired sessions", slog.Any("error", err))
	} else if sessionsDeleted > 0 {
		cm.logger.Info("session sweep completed", slog.Int("sessions_deleted", sessionsDeleted))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
