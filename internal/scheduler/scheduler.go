// Package scheduler runs the periodic maintenance jobs: profile statistics
// refresh, invitation expiry and the engagement claim sweep.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/cabinet/cabinet/internal/metrics"
	"github.com/cabinet/cabinet/internal/model"
)

// Job names, used in logs and metrics.
const (
	JobStatsRefresh     = "stats_refresh"
	JobExpireInvitation = "invitation_expiry"
	JobClaimSweep       = "claim_sweep"
)

const (
	DefaultStatsSchedule      = "@every 6h"
	DefaultInvitationSchedule = "@every 1h"
	DefaultSweepSchedule      = "@every 5m"
	DefaultStatsMaxAge        = 6 * time.Hour
	DefaultStatsBatch         = 100
	DefaultConcurrency        = 4
	DefaultJobTimeout         = 30 * time.Minute
)

// StaleAccountLister finds accounts whose statistics are out of date.
type StaleAccountLister interface {
	ListStaleAccounts(ctx context.Context, olderThan time.Time, limit int) ([]*model.RedditAccount, error)
}

// AccountRefresher scrapes and stores one account's statistics.
type AccountRefresher interface {
	RefreshAccount(ctx context.Context, acc *model.RedditAccount) error
}

// InvitationExpirer closes overdue invitations.
type InvitationExpirer interface {
	ExpireInvitations(ctx context.Context) (int64, error)
}

// ClaimReleaser requeues abandoned engagement claims.
type ClaimReleaser interface {
	ReleaseStaleClaims(ctx context.Context) (int64, error)
}

// Config configures the Scheduler. Zero values take the defaults.
type Config struct {
	Accounts    StaleAccountLister
	Refresher   AccountRefresher
	Invitations InvitationExpirer
	Claims      ClaimReleaser

	StatsSchedule      string
	InvitationSchedule string
	SweepSchedule      string
	StatsMaxAge        time.Duration
	StatsBatch         int
	Concurrency        int
	JobTimeout         time.Duration

	Metrics metrics.Recorder
	Logger  *slog.Logger
}

// Scheduler runs the jobs on their cron schedules. A job still running when
// its next tick fires is skipped.
type Scheduler struct {
	cfg    Config
	cron   *cron.Cron
	logger *slog.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// New validates the schedules and registers the jobs. Jobs whose
// dependency is nil are not registered.
func New(cfg Config) (*Scheduler, error) {
	if cfg.StatsSchedule == "" {
		cfg.StatsSchedule = DefaultStatsSchedule
	}
	if cfg.InvitationSchedule == "" {
		cfg.InvitationSchedule = DefaultInvitationSchedule
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = DefaultSweepSchedule
	}
	if cfg.StatsMaxAge <= 0 {
		cfg.StatsMaxAge = DefaultStatsMaxAge
	}
	if cfg.StatsBatch <= 0 {
		cfg.StatsBatch = DefaultStatsBatch
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	logger := cfg.Logger.With("component", "scheduler")
	cronLogger := cronLog{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		ctx:    ctx,
		cancel: cancel,
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
	}

	jobs := []struct {
		name     string
		schedule string
		enabled  bool
		run      func(context.Context) error
	}{
		{JobStatsRefresh, cfg.StatsSchedule, cfg.Accounts != nil && cfg.Refresher != nil, func(ctx context.Context) error {
			_, err := s.RefreshStats(ctx)
			return err
		}},
		{JobExpireInvitation, cfg.InvitationSchedule, cfg.Invitations != nil, func(ctx context.Context) error {
			_, err := s.cfg.Invitations.ExpireInvitations(ctx)
			return err
		}},
		{JobClaimSweep, cfg.SweepSchedule, cfg.Claims != nil, func(ctx context.Context) error {
			_, err := s.cfg.Claims.ReleaseStaleClaims(ctx)
			return err
		}},
	}
	for _, job := range jobs {
		if !job.enabled {
			continue
		}
		name, run := job.name, job.run
		if _, err := s.cron.AddFunc(job.schedule, func() { s.runJob(name, run) }); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid schedule %q for %s: %w", job.schedule, name, err)
		}
		logger.Info("job registered", slog.String("job", name), slog.String("schedule", job.schedule))
	}

	return s, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.cron.Entries())))
}

// Stop cancels running jobs and waits for them to return, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

func (s *Scheduler) runJob(name string, run func(context.Context) error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	err := run(ctx)
	duration := time.Since(start)
	s.cfg.Metrics.ObserveJobRun(name, duration, err)

	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("job failed",
			slog.String("job", name),
			slog.String("error", err.Error()),
			slog.Int64("duration_ms", duration.Milliseconds()),
		)
		return
	}
	s.logger.Debug("job finished", slog.String("job", name), slog.Int64("duration_ms", duration.Milliseconds()))
}

// RefreshResult counts the outcome of one statistics refresh pass.
type RefreshResult struct {
	Refreshed int
	Failed    int
}

// RefreshStats rescrapes up to StatsBatch accounts not scraped within
// StatsMaxAge, Concurrency at a time. Individual scrape failures are
// recorded on the accounts and do not fail the pass.
func (s *Scheduler) RefreshStats(ctx context.Context) (RefreshResult, error) {
	accounts, err := s.cfg.Accounts.ListStaleAccounts(ctx, s.now().Add(-s.cfg.StatsMaxAge), s.cfg.StatsBatch)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("list stale accounts: %w", err)
	}

	var refreshed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, acc := range accounts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := s.cfg.Refresher.RefreshAccount(gctx, acc); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				s.logger.Warn("account refresh failed",
					slog.String("account_id", acc.ID),
					slog.String("username", acc.Username),
					slog.String("error", err.Error()),
				)
				return nil
			}
			refreshed.Add(1)
			return nil
		})
	}
	err = g.Wait()

	result := RefreshResult{Refreshed: int(refreshed.Load()), Failed: int(failed.Load())}
	if len(accounts) > 0 {
		s.logger.Info("account statistics refreshed",
			slog.Int("refreshed", result.Refreshed),
			slog.Int("failed", result.Failed),
			slog.Int("candidates", len(accounts)),
		)
	}
	if err == nil {
		err = ctx.Err()
	}
	return result, err
}

// cronLog adapts slog to cron's logger.
type cronLog struct {
	logger *slog.Logger
}

func (l cronLog) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLog) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
