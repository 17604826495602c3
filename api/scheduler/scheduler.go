package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	reapSchedule  = "@every 1m"
	pruneSchedule = "0 4 * * *"
	pruneJob      = "notification_retention_job"
)

// Reaper closes websocket connections that stopped answering heart-beats
type Reaper interface {
	ReapIdle(timeout time.Duration) int
}

// Pruner deletes inbox notifications created before cutoff
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Locker keeps a job from running on more than one instance at a time
type Locker interface {
	TryAcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, owner string) error
}

// Scheduler handles periodic background jobs for the chat server
type Scheduler struct {
	cron       *cron.Cron
	Reaper     Reaper
	Pruner     Pruner
	LockDB     Locker
	IdleAfter  time.Duration
	Retention  time.Duration
	instanceID string
}

// NewScheduler creates a new scheduler instance. pruner and locker may be nil: without a
// pruner the retention job is not registered, without a locker every instance runs it.
func NewScheduler(reaper Reaper, pruner Pruner, locker Locker, idleAfter, retention time.Duration) *Scheduler {
	// Heroku sets DYNO to "web.1", "web.2", etc.
	instanceID := os.Getenv("DYNO")
	if instanceID == "" {
		instanceID = fmt.Sprintf("instance-%d", time.Now().UnixNano())
	}

	return &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		Reaper:     reaper,
		Pruner:     pruner,
		LockDB:     locker,
		IdleAfter:  idleAfter,
		Retention:  retention,
		instanceID: instanceID,
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() error {
	if s.Reaper != nil && s.IdleAfter > 0 {
		if _, err := s.cron.AddFunc(reapSchedule, s.reapIdle); err != nil {
			return fmt.Errorf("failed to register idle reaper job: %w", err)
		}
	}
	if s.Pruner != nil && s.Retention > 0 {
		if _, err := s.cron.AddFunc(pruneSchedule, s.pruneNotifications); err != nil {
			return fmt.Errorf("failed to register notification retention job: %w", err)
		}
	}

	s.cron.Start()
	zap.S().Infow("chat scheduler started", "instance", s.instanceID, "jobs", len(s.cron.Entries()))
	return nil
}

// Stop waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("chat scheduler stopped")
}

// reapIdle is local to this instance, every instance owns its own sockets
func (s *Scheduler) reapIdle() {
	if n := s.Reaper.ReapIdle(s.IdleAfter); n > 0 {
		zap.S().Infow("reaped idle connections", "count", n, "idleAfter", s.IdleAfter)
	}
}

func (s *Scheduler) pruneNotifications() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if s.LockDB != nil {
		acquired, err := s.LockDB.TryAcquireLock(ctx, pruneJob, s.instanceID, 10*time.Minute)
		if err != nil {
			zap.S().Errorw("failed to acquire lock for notification retention job", "error", err)
			return
		}
		if !acquired {
			zap.S().Debug("notification retention job already running on another instance, skipping")
			return
		}
		defer func() {
			if err := s.LockDB.ReleaseLock(ctx, pruneJob, s.instanceID); err != nil {
				zap.S().Warnw("failed to release notification retention lock", "error", err)
			}
		}()
	}

	cutoff := time.Now().Add(-s.Retention)
	deleted, err := s.Pruner.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		zap.S().Errorw("failed to prune notifications", "cutoff", cutoff, "error", err)
		return
	}
	zap.S().Infow("pruned notifications", "deleted", deleted, "cutoff", cutoff, "instance", s.instanceID)
}
