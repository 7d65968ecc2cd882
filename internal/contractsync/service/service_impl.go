package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/smallbiznis/suavescribe/internal/clock"
	"github.com/smallbiznis/suavescribe/internal/config"
	contractdomain "github.com/smallbiznis/suavescribe/internal/contract/domain"
	"github.com/smallbiznis/suavescribe/internal/contractsync/domain"
	obscontext "github.com/smallbiznis/suavescribe/internal/observability/context"
	"github.com/smallbiznis/suavescribe/internal/observability/logger"
	"github.com/smallbiznis/suavescribe/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Lifecycle  fx.Lifecycle `optional:"true"`
	Log        *zap.Logger
	Clock      clock.Clock
	Contracts  contractdomain.Service
	Gateways   contractdomain.GatewayProvider
	Policy     *config.BillingPolicyHolder
	Metrics    *metrics.SchedulerMetrics `optional:"true"`
	AppMetrics *metrics.Metrics          `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	clock      clock.Clock
	contracts  contractdomain.Service
	gateways   contractdomain.GatewayProvider
	policy     *config.BillingPolicyHolder
	metrics    *metrics.SchedulerMetrics
	appMetrics *metrics.Metrics

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	tasks map[string]*task
}

func NewService(p Params) domain.Service {
	return newService(p)
}

func newService(p Params) *Service {
	root, cancel := context.WithCancel(context.Background())
	svc := &Service{
		log:        p.Log.Named("contractsync.service"),
		clock:      p.Clock,
		contracts:  p.Contracts,
		gateways:   p.Gateways,
		policy:     p.Policy,
		metrics:    p.Metrics,
		appMetrics: p.AppMetrics,
		root:       root,
		cancel:     cancel,
		tasks:      make(map[string]*task),
	}
	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStop: svc.stop,
		})
	}
	return svc
}

// SyncAll reconciles every remote contract of shop, page by page. The first failure aborts
// the crawl; contracts already reconciled stay written and a rerun starts from page one.
func (s *Service) SyncAll(ctx context.Context, shop string) (domain.Result, error) {
	shop = strings.TrimSpace(shop)
	result := domain.Result{Shop: shop, StartedAt: s.clock.Now()}
	if shop == "" {
		return result, domain.ErrInvalidShop
	}
	log := logger.WithShop(logger.WithContext(ctx, s.log), shop)

	gateway, err := s.gateways.ForShop(ctx, shop)
	if err != nil {
		return result, err
	}

	pageSize := s.policy.Get().SyncPageSize
	log.Info("contract sync started", zap.Int("page_size", pageSize))

	fail := func(err error) (domain.Result, error) {
		result.FinishedAt = s.clock.Now()
		s.metrics.AddSyncContracts(result.Contracts, err)
		log.Error("contract sync aborted",
			zap.Int("pages", result.Pages),
			zap.Int("contracts", result.Contracts),
			zap.Error(err),
		)
		return result, err
	}

	for page, err := range Pages(ctx, gateway, pageSize) {
		s.metrics.IncSyncPage(err)
		if err != nil {
			return fail(fmt.Errorf("fetch contracts page %d: %w", result.Pages+1, err))
		}
		result.Pages++
		for _, snapshot := range page.Contracts {
			if _, err := s.contracts.Reconcile(ctx, shop, snapshot); err != nil {
				return fail(fmt.Errorf("reconcile contract %s: %w", snapshot.ID, err))
			}
			result.Contracts++
		}
	}

	result.FinishedAt = s.clock.Now()
	s.metrics.AddSyncContracts(result.Contracts, nil)
	s.appMetrics.RecordContractsSynced(ctx, shop, result.Contracts)
	log.Info("contract sync finished",
		zap.Int("pages", result.Pages),
		zap.Int("contracts", result.Contracts),
	)
	return result, nil
}

func (s *Service) Start(shop string) domain.Task {
	shop = strings.TrimSpace(shop)

	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.tasks[shop]; ok && current.running() {
		return current
	}

	t := newTask(shop, s.clock.Now())
	s.tasks[shop] = t

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.root, s.policy.Get().SyncTimeout)
		defer cancel()
		ctx = obscontext.WithShop(obscontext.WithCorrelationID(ctx, ""), shop)

		result, err := s.SyncAll(ctx, shop)
		t.finish(result, err)
	}()
	return t
}

// Latest returns the most recent crawl of shop, running or finished.
func (s *Service) Latest(shop string) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[strings.TrimSpace(shop)]
	if !ok {
		return nil, false
	}
	return t, true
}

func (s *Service) stop(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
