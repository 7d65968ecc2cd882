package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/suavescribe/internal/observability/context"
	obslogger "github.com/smallbiznis/suavescribe/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/suavescribe/internal/observability/metrics"
	"go.uber.org/zap"
)

type shopOutcome int

const (
	shopDone shopOutcome = iota
	// shopSkipped means another replica already holds today's lease.
	shopSkipped
)

// pass is one execution of a job over every installed shop.
type pass struct {
	job       string
	id        string
	startedAt time.Time

	done      int
	skipped   int
	failed    int
	attempted int
}

type passKey struct{}

// beginPass reuses the pass runJob already put on ctx.
func (s *Scheduler) beginPass(ctx context.Context, job string) (context.Context, *pass, bool) {
	if p, ok := ctx.Value(passKey{}).(*pass); ok && p != nil {
		return ctx, p, false
	}
	p := &pass{
		job:       job,
		id:        s.genID.Generate().String(),
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, passKey{}, p)
	ctx = obscontext.WithCorrelationID(ctx, p.id)
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	return ctx, p, true
}

func (p *pass) record(outcome shopOutcome, err error) {
	switch {
	case err != nil:
		p.failed++
	case outcome == shopSkipped:
		p.skipped++
	default:
		p.done++
	}
}

func (p *pass) fields() []zap.Field {
	return []zap.Field{
		zap.String("job", p.job),
		zap.String("run_id", p.id),
		zap.Int("shops_done", p.done),
		zap.Int("shops_skipped", p.skipped),
		zap.Int("shops_failed", p.failed),
		zap.Int("contracts_attempted", p.attempted),
	}
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logPassStart(ctx context.Context, p *pass) {
	s.logger(ctx).Info("scheduler.pass.start", zap.String("job", p.job), zap.String("run_id", p.id))
}

func (s *Scheduler) logPassEnd(ctx context.Context, p *pass) {
	fields := append(p.fields(), zap.Int64("duration_ms", s.clock.Now().Sub(p.startedAt).Milliseconds()))
	if p.failed > 0 {
		s.logger(ctx).Warn("scheduler.pass.end", fields...)
		return
	}
	s.logger(ctx).Info("scheduler.pass.end", fields...)
}

func (s *Scheduler) logShopError(ctx context.Context, p *pass, shop string, err error) {
	s.logger(obscontext.WithShop(ctx, shop)).Error("scheduler.shop.failed",
		zap.String("job", p.job),
		zap.String("error_type", obsmetrics.ClassifySchedulerErrorType(err)),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
		zap.Error(err),
	)
}
