package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	billingcycledomain "github.com/smallbiznis/suavescribe/internal/billingcycle/domain"
	"github.com/smallbiznis/suavescribe/internal/clock"
	contractsyncdomain "github.com/smallbiznis/suavescribe/internal/contractsync/domain"
	"github.com/smallbiznis/suavescribe/internal/lock"
	obsmetrics "github.com/smallbiznis/suavescribe/internal/observability/metrics"
	shopdomain "github.com/smallbiznis/suavescribe/internal/shop/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	obsmetrics.ResetSchedulerMetricsForTest()
	m := obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "suavescribe",
		Environment: "test",
	})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	s := &Scheduler{log: zap.NewNop(), genID: node, clock: clock.NewFakeClock(time.Time{}), metrics: m}
	err = s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	labels := map[string]string{
		"service": "suavescribe",
		"env":     "test",
		"job":     "timeout_job",
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "suavescribe_scheduler_job_timeouts_total", labels))

	errorLabels := map[string]string{
		"service": "suavescribe",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "suavescribe_scheduler_job_errors_total", errorLabels))
}

func TestRunJobWrapsErrors(t *testing.T) {
	s, _ := newTestScheduler(t)
	err := s.runJob(context.Background(), "broken", time.Second, func(context.Context) error {
		return errors.New("boom")
	})
	assert.EqualError(t, err, "broken: boom")
}

func TestBillingSweepRunsOncePerShopPerDay(t *testing.T) {
	s, deps := newTestScheduler(t)
	s.cfg.EnabledJobs = []string{JobBillingSweep}

	require.NoError(t, s.RunOnce(context.Background()))
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, []string{"a.myshopify.com", "b.myshopify.com"}, deps.cycles.sweeps())

	deps.clock.Advance(24 * time.Hour)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Len(t, deps.cycles.sweeps(), 4)
}

func TestBillingSweepFailureIsRetriedNextTick(t *testing.T) {
	s, deps := newTestScheduler(t)
	s.cfg.EnabledJobs = []string{JobBillingSweep}
	deps.cycles.failFor["a.myshopify.com"] = errors.New("database unavailable")

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unavailable")

	delete(deps.cycles.failFor, "a.myshopify.com")
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, []string{"a.myshopify.com", "b.myshopify.com", "a.myshopify.com"}, deps.cycles.sweeps())
}

func TestBillingSweepWithFailedAttemptsIsRetriedNextTick(t *testing.T) {
	s, deps := newTestScheduler(t)
	s.cfg.EnabledJobs = []string{JobBillingSweep}
	deps.cycles.attemptFailures["a.myshopify.com"] = 1

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, []string{"a.myshopify.com", "b.myshopify.com"}, deps.cycles.sweeps())

	// a keeps no lease for the day, b does
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, []string{"a.myshopify.com", "b.myshopify.com", "a.myshopify.com"}, deps.cycles.sweeps())

	// the retry created every attempt, so a is done for the day too
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Len(t, deps.cycles.sweeps(), 3)
}

func TestBillingSweepSkipsShopsClaimedElsewhere(t *testing.T) {
	s, deps := newTestScheduler(t)
	s.cfg.EnabledJobs = []string{JobBillingSweep}
	today := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	_, ok, err := deps.locker.TryLock(context.Background(), lock.SweepKey("a.myshopify.com", today), time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, []string{"b.myshopify.com"}, deps.cycles.sweeps())
}

func TestContractResyncStartsOneCrawlPerDay(t *testing.T) {
	s, deps := newTestScheduler(t)
	s.cfg.EnabledJobs = []string{JobContractResync}

	require.NoError(t, s.RunOnce(context.Background()))
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, []string{"a.myshopify.com", "b.myshopify.com"}, deps.sync.started())
	assert.Empty(t, deps.cycles.sweeps())
}

func TestShopListFailureFailsJob(t *testing.T) {
	s, deps := newTestScheduler(t)
	deps.shops.err = errors.New("no connection")

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, deps.shops.err)
}

func TestIsJobEnabled(t *testing.T) {
	s := &Scheduler{}
	assert.True(t, s.isJobEnabled(JobBillingSweep))

	s.cfg.EnabledJobs = []string{"BILLING_SWEEP"}
	assert.True(t, s.isJobEnabled(JobBillingSweep))
	assert.False(t, s.isJobEnabled(JobContractResync))
}

func TestPassTally(t *testing.T) {
	p := &pass{job: JobBillingSweep}
	p.record(shopDone, nil)
	p.record(shopSkipped, nil)
	p.record(shopDone, errors.New("boom"))
	p.record(shopSkipped, errors.New("lock store down"))

	assert.Equal(t, 1, p.done)
	assert.Equal(t, 1, p.skipped)
	assert.Equal(t, 2, p.failed)
}

func TestBeginPassReusesRunOnContext(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx, first, owner := s.beginPass(context.Background(), JobBillingSweep)
	require.True(t, owner)
	assert.NotEmpty(t, first.id)

	_, second, owner := s.beginPass(ctx, JobBillingSweep)
	assert.False(t, owner)
	assert.Same(t, first, second)
}

type testDeps struct {
	clock  *clock.FakeClock
	locker *lock.MemoryLocker
	shops  *fakeShops
	cycles *fakeCycles
	sync   *fakeSync
}

func newTestScheduler(t *testing.T) (*Scheduler, *testDeps) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	deps := &testDeps{
		clock: clock.NewFakeClock(time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)),
		shops: &fakeShops{shops: []shopdomain.ShopAccount{
			{Shop: "a.myshopify.com"},
			{Shop: "b.myshopify.com"},
		}},
		cycles: &fakeCycles{failFor: map[string]error{}, attemptFailures: map[string]int{}},
		sync:   &fakeSync{},
	}
	deps.locker = lock.NewMemoryLocker(deps.clock)

	s, err := New(Params{
		Log:    zap.NewNop(),
		Clock:  deps.clock,
		GenID:  node,
		Shops:  deps.shops,
		Cycles: deps.cycles,
		Sync:   deps.sync,
		Locker: deps.locker,
	})
	require.NoError(t, err)
	return s, deps
}

type fakeShops struct {
	shops []shopdomain.ShopAccount
	err   error
}

func (f *fakeShops) Install(context.Context, shopdomain.InstallRequest) (shopdomain.ShopAccount, error) {
	return shopdomain.ShopAccount{}, errors.New("not implemented")
}

func (f *fakeShops) Get(context.Context, string) (shopdomain.ShopAccount, error) {
	return shopdomain.ShopAccount{}, shopdomain.ErrShopNotFound
}

func (f *fakeShops) List(context.Context) ([]shopdomain.ShopAccount, error) {
	return f.shops, f.err
}

func (f *fakeShops) Uninstall(context.Context, string) error { return nil }

type fakeCycles struct {
	mu      sync.Mutex
	calls   []string
	failFor map[string]error
	// attemptFailures[shop] contracts fail to get an attempt on the next sweep of shop
	attemptFailures map[string]int
}

func (f *fakeCycles) HandleSuccess(context.Context, billingcycledomain.BillingAttemptRequest) (billingcycledomain.Outcome, error) {
	return billingcycledomain.Outcome{}, errors.New("not implemented")
}

func (f *fakeCycles) HandleFailure(context.Context, billingcycledomain.BillingAttemptRequest) (billingcycledomain.Outcome, error) {
	return billingcycledomain.Outcome{}, errors.New("not implemented")
}

func (f *fakeCycles) Sweep(_ context.Context, shop string) (billingcycledomain.SweepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, shop)
	if err := f.failFor[shop]; err != nil {
		return billingcycledomain.SweepResult{Shop: shop}, err
	}
	if failed := f.attemptFailures[shop]; failed > 0 {
		delete(f.attemptFailures, shop)
		return billingcycledomain.SweepResult{Shop: shop, Due: failed + 1, Attempted: 1, Failed: failed}, nil
	}
	return billingcycledomain.SweepResult{Shop: shop, Due: 1, Attempted: 1}, nil
}

func (f *fakeCycles) sweeps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeSync struct {
	mu    sync.Mutex
	shops []string
}

func (f *fakeSync) SyncAll(context.Context, string) (contractsyncdomain.Result, error) {
	return contractsyncdomain.Result{}, errors.New("not implemented")
}

func (f *fakeSync) Start(shop string) contractsyncdomain.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shops = append(f.shops, shop)
	return nil
}

func (f *fakeSync) Latest(string) (contractsyncdomain.Task, bool) { return nil, false }

func (f *fakeSync) started() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.shops...)
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			require.NotNil(t, metric.Counter, "metric %s is not a counter", name)
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
