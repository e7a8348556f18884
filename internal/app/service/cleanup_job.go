package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sifan077/PowerLink/internal/app/repository"
	"github.com/sifan077/PowerLink/internal/infra/logger"
	"go.uber.org/zap"
)

const cleanupLockKey = "powerlink:cleanup"

// JobLock serializes scheduled jobs across instances.
type JobLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// CleanupJobConfig configures the purge schedule.
type CleanupJobConfig struct {
	Schedule string
	LockTTL  time.Duration
}

// CleanupJob periodically purges expired links and their click events.
type CleanupJob struct {
	links   repository.LinkRepository
	lock    JobLock
	lockTTL time.Duration
	now     func() time.Time
	cron    *cron.Cron
	logger  *zap.Logger
}

// NewCleanupJob creates a cleanup job. A nil lock runs every tick unlocked.
func NewCleanupJob(links repository.LinkRepository, lock JobLock, cfg CleanupJobConfig, log *zap.Logger) (*CleanupJob, error) {
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	j := &CleanupJob{
		links:   links,
		lock:    lock,
		lockTTL: ttl,
		now:     func() time.Time { return time.Now().UTC() },
		cron:    cron.New(),
		logger:  logger.Component(log, "cleanup_job"),
	}

	if _, err := j.cron.AddFunc(cfg.Schedule, j.tick); err != nil {
		return nil, err
	}
	return j, nil
}

// Start begins the schedule.
func (j *CleanupJob) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running purge, up to ctx.
func (j *CleanupJob) Stop(ctx context.Context) {
	select {
	case <-j.cron.Stop().Done():
		j.logger.Info("cleanup job stopped")
	case <-ctx.Done():
		j.logger.Warn("cleanup job stop timed out", zap.Error(ctx.Err()))
	}
}

func (j *CleanupJob) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), j.lockTTL)
	defer cancel()

	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Error("cleanup run failed", zap.Error(err))
	}
}

// RunOnce purges once if the lock can be taken and returns the purged count.
func (j *CleanupJob) RunOnce(ctx context.Context) (int64, error) {
	if j.lock != nil {
		release, ok, err := j.lock.Acquire(ctx, cleanupLockKey, j.lockTTL)
		if err != nil {
			return 0, err
		}
		if !ok {
			j.logger.Debug("cleanup skipped, lock held elsewhere")
			return 0, nil
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				j.logger.Warn("failed to release cleanup lock", zap.Error(err))
			}
		}()
	}

	now := j.now()
	purged, err := j.links.PurgeExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		j.logger.Info("purged expired links",
			zap.Int64("count", purged),
			zap.Time("now", now),
		)
	}
	return purged, nil
}
