package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingcycledomain "github.com/smallbiznis/suavescribe/internal/billingcycle/domain"
	"github.com/smallbiznis/suavescribe/internal/billingdate"
	"github.com/smallbiznis/suavescribe/internal/clock"
	contractsyncdomain "github.com/smallbiznis/suavescribe/internal/contractsync/domain"
	"github.com/smallbiznis/suavescribe/internal/lock"
	obscontext "github.com/smallbiznis/suavescribe/internal/observability/context"
	obsmetrics "github.com/smallbiznis/suavescribe/internal/observability/metrics"
	shopdomain "github.com/smallbiznis/suavescribe/internal/shop/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

type Params struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	GenID   *snowflake.Node
	Shops   shopdomain.Service
	Cycles  billingcycledomain.Service
	Sync    contractsyncdomain.Service
	Locker  lock.Locker
	Config  Config                       `optional:"true"`
	Metrics *obsmetrics.SchedulerMetrics `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	shops   shopdomain.Service
	cycles  billingcycledomain.Service
	sync    contractsyncdomain.Service
	locker  lock.Locker
	metrics *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.GenID == nil || p.Shops == nil || p.Cycles == nil || p.Sync == nil || p.Locker == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		genID:   p.GenID,
		clock:   p.Clock,
		shops:   p.Shops,
		cycles:  p.Cycles,
		sync:    p.Sync,
		locker:  p.Locker,
		metrics: p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, p, _ := s.beginPass(ctx, name)
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(p.startedAt))
	if err == nil {
		return nil
	}

	s.metrics.IncJobError(name, err)
	// the next tick resumes whatever the deadline cut off
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.metrics.IncJobTimeout(name)
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobBillingSweep, s.BillingSweepJob},
		{JobContractResync, s.ContractResyncJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			s.metrics.ObserveRunLoopLag(runLag)
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

// BillingSweepJob requests today's charges for every installed shop. Each shop is swept at
// most once per UTC day across all replicas. A sweep that failed, or left any contract without
// a billing attempt, gives its lease back so the next tick retries it.
func (s *Scheduler) BillingSweepJob(ctx context.Context) error {
	today := billingdate.Today(s.clock.Now())

	return s.forEachShop(ctx, JobBillingSweep, func(ctx context.Context, p *pass, shop string) (shopOutcome, error) {
		key := lock.SweepKey(shop, today)
		token, claimed, err := s.locker.TryLock(ctx, key, s.cfg.DailyLeaseTTL)
		if err != nil {
			return shopDone, err
		}
		if !claimed {
			return shopSkipped, nil
		}

		result, err := s.cycles.Sweep(ctx, shop)
		if err != nil {
			if releaseErr := s.locker.Release(context.WithoutCancel(ctx), key, token); releaseErr != nil {
				err = errors.Join(err, releaseErr)
			}
			return shopDone, err
		}
		p.attempted += result.Attempted
		s.metrics.AddBatchProcessed(JobBillingSweep, "contract", result.Attempted)

		// contracts whose attempt was not created are still due today; the next tick
		// re-requests them under the same idempotency key
		if result.Failed > 0 {
			s.logger(ctx).Warn("scheduler.billing_sweep.partial",
				zap.String("shop", shop),
				zap.Int("failed", result.Failed),
				zap.Int("attempted", result.Attempted),
			)
			if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				return shopDone, fmt.Errorf("release sweep lease: %w", err)
			}
		}
		return shopDone, nil
	})
}

// ContractResyncJob starts one background crawl per shop per day. It catches contracts
// whose webhooks never arrived.
func (s *Scheduler) ContractResyncJob(ctx context.Context) error {
	today := billingdate.Today(s.clock.Now())

	return s.forEachShop(ctx, JobContractResync, func(ctx context.Context, _ *pass, shop string) (shopOutcome, error) {
		_, claimed, err := s.locker.TryLock(ctx, lock.ResyncKey(shop, today), s.cfg.DailyLeaseTTL)
		if err != nil {
			return shopDone, err
		}
		if !claimed {
			return shopSkipped, nil
		}
		s.sync.Start(shop)
		s.metrics.AddBatchProcessed(JobContractResync, "shop", 1)
		return shopDone, nil
	})
}

// forEachShop runs fn for every installed shop in order. A failing shop does not stop the
// others; all failures come back joined.
func (s *Scheduler) forEachShop(
	ctx context.Context,
	job string,
	fn func(context.Context, *pass, string) (shopOutcome, error),
) error {
	ctx, p, _ := s.beginPass(ctx, job)
	s.logPassStart(ctx, p)
	defer s.logPassEnd(ctx, p)

	shops, err := s.shops.List(ctx)
	if err != nil {
		s.logger(ctx).Error("scheduler.shops.list.failed", zap.String("job", job), zap.Error(err))
		return err
	}

	var jobErr error
	for _, shop := range shops {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		outcome, err := fn(obscontext.WithShop(ctx, shop.Shop), p, shop.Shop)
		p.record(outcome, err)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logShopError(ctx, p, shop.Shop, err)
		}
	}
	return jobErr
}
