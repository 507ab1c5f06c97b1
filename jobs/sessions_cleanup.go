package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/unimaster/unimaster/internal/jobs"
)

// SessionPurger removes expired session rows.
type SessionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionsCleanupJob prunes the postgres session mirror. Redis entries
// expire on their own; the audit rows need this sweep.
type SessionsCleanupJob struct {
	Sessions SessionPurger
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewSessionsCleanupJob initialises the cleanup handler.
func NewSessionsCleanupJob(sessions SessionPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionsCleanupJob {
	return &SessionsCleanupJob{
		Sessions: sessions,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle removes sessions past their expiry.
func (j *SessionsCleanupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Sessions == nil {
		return errors.New("jobs: sessions cleanup: handler not configured")
	}
	tracker := j.Metrics.Track(TaskTypeSessionsCleanup)
	removed, err := j.Sessions.DeleteExpired(ctx, j.clock())
	if err != nil {
		return tracker.End(fmt.Errorf("jobs: sessions cleanup: %w", err))
	}
	if j.Logger != nil {
		j.Logger.Info("sessions cleanup", slog.Int64("removed", removed))
	}
	return tracker.End(nil)
}
