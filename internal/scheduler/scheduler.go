package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	appconfig "github.com/satgate/satgate/internal/config"
	"github.com/satgate/satgate/internal/clock"
	obsmetrics "github.com/satgate/satgate/internal/observability/metrics"
	obscontext "github.com/satgate/satgate/internal/observability/obscontext"
	payoutdomain "github.com/satgate/satgate/internal/payout/domain"
	"github.com/satgate/satgate/internal/ratelimit"
	topupdomain "github.com/satgate/satgate/internal/topup/domain"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

const sweepLockKey = "scheduler:lock:sweep"

type Params struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	App     appconfig.Config
	Topups  topupdomain.Service
	Payouts payoutdomain.Service
	Config  Config `optional:"true"`
}

// Scheduler drives periodic maintenance: lapsing stale top-ups and
// sweeping accumulated balances out to payout addresses.
type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	topups  topupdomain.Service
	payouts payoutdomain.Service

	// locker is nil without Redis; sweeps then run unguarded, which is
	// fine for a single instance.
	locker *ratelimit.Locker

	lastSweep time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Topups == nil || p.Payouts == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()

	var locker *ratelimit.Locker
	if p.App.RedisConfigured() {
		locker = ratelimit.NewLocker(redis.NewClient(&redis.Options{
			Addr:     p.App.RedisAddr,
			Password: p.App.RedisPassword,
			DB:       p.App.RedisDB,
		}))
	}

	return &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     cfg,
		genID:   p.GenID,
		clock:   p.Clock,
		topups:  p.Topups,
		payouts: p.Payouts,
		locker:  locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	ctx = obscontext.WithActor(ctx, "system", "scheduler")

	log := s.log.With(
		zap.String("job", name),
		zap.String("run_id", s.genID.Generate().String()),
	)
	log.Debug("job start")

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	log.Error("job failed",
		zap.String("reason", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
		zap.Error(err),
	)
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{"expire_topups", s.isJobEnabled("expire_topups"), func(ctx context.Context) error {
			return s.runJob(ctx, "expire_topups", 30*time.Second, s.ExpireTopupsJob)
		}},
		{"sweep_payouts", s.isJobEnabled("sweep_payouts"), func(ctx context.Context) error {
			return s.runJob(ctx, "sweep_payouts", 2*time.Minute, s.SweepPayoutsJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// Empty EnabledJobs keeps every job on.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// ExpireTopupsJob lapses pending top-ups whose invoices have expired so
// the payment page stops waiting on them.
func (s *Scheduler) ExpireTopupsJob(ctx context.Context) error {
	expired, err := s.topups.ExpirePending(ctx)
	if err != nil {
		return err
	}
	if expired > 0 {
		s.log.Info("expired stale top-ups", zap.Int64("count", expired))
		obsmetrics.Scheduler().AddBatchProcessed("expire_topups", "topups", int(expired))
	}
	return nil
}

// SweepPayoutsJob pays out eligible balances. It self-throttles to
// SweepInterval and, when Redis is available, takes a lock so only one
// instance sweeps at a time.
func (s *Scheduler) SweepPayoutsJob(ctx context.Context) error {
	now := s.clock.Now()
	if !s.lastSweep.IsZero() && now.Sub(s.lastSweep) < s.cfg.SweepInterval {
		return nil
	}

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, sweepLockKey, s.cfg.SweepLockTTL)
		if err != nil {
			return fmt.Errorf("sweep lock: %w", err)
		}
		if !ok {
			s.log.Debug("sweep held by another instance")
			obsmetrics.Scheduler().IncBatchDeferred("sweep_payouts", obsmetrics.SchedulerBatchDeferredReasonLockHeld)
			return nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), sweepLockKey, token); err != nil {
				s.log.Warn("sweep lock release failed", zap.Error(err))
			}
		}()
	}

	// Mark the attempt before calling out so a broken rail is retried
	// on the next interval, not on every pass.
	s.lastSweep = now

	res, err := s.payouts.Sweep(ctx)
	if err != nil {
		return err
	}
	if res.Attempted > 0 {
		s.log.Info("payout sweep finished",
			zap.Int("attempted", res.Attempted),
			zap.Int("completed", res.Completed),
			zap.Int("failed", res.Failed),
			zap.Int64("total_sats", res.TotalSats),
		)
		obsmetrics.Scheduler().AddBatchProcessed("sweep_payouts", "payouts", res.Completed)
	}
	return nil
}
