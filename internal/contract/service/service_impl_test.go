package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/suavescribe/internal/billingdate"
	"github.com/smallbiznis/suavescribe/internal/clock"
	"github.com/smallbiznis/suavescribe/internal/contract/contracttest"
	"github.com/smallbiznis/suavescribe/internal/contract/domain"
	"github.com/smallbiznis/suavescribe/internal/contract/repository"
	"github.com/smallbiznis/suavescribe/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shop = "acme.myshopify.com"

type fixture struct {
	db       *gorm.DB
	svc      domain.Service
	gateway  *contracttest.FakeGateway
	provider *contracttest.Provider
	clock    *clock.FakeClock
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := contracttest.OpenDB(t)
	gateway := contracttest.NewFakeGateway()
	provider := contracttest.NewProvider().Set(shop, gateway)
	clk := clock.NewFakeClock(time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC))

	svc := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    clk,
		Repo:     repository.Provide(),
		Gateways: provider,
	})
	return fixture{db: db, svc: svc, gateway: gateway, provider: provider, clock: clk}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestReconcileInsertsNewContract(t *testing.T) {
	f := setup(t)
	snap := contracttest.Snapshot("gid-1", time.Date(2024, time.January, 15, 5, 0, 0, 0, time.UTC))

	got, err := f.svc.Reconcile(context.Background(), shop, snap)
	require.NoError(t, err)
	assert.Equal(t, "gid-1", got.ID)
	assert.Equal(t, shop, got.Shop)
	assert.Equal(t, domain.StatusActive, got.Status)
	assert.True(t, day(2024, time.January, 15).Equal(got.NextBillingDate))
	assert.Equal(t, billingdate.IntervalMonth, got.Interval)
	assert.Equal(t, 0, got.PaymentFailureCount)
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	snap := contracttest.Snapshot("gid-1", day(2024, time.January, 15))

	first, err := f.svc.Reconcile(ctx, shop, snap)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	second, err := f.svc.Reconcile(ctx, shop, snap)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Status, second.Status)
	assert.True(t, first.NextBillingDate.Equal(second.NextBillingDate))
	assert.Equal(t, first.Interval, second.Interval)
	assert.Equal(t, first.IntervalCount, second.IntervalCount)
	assert.Equal(t, first.PaymentFailureCount, second.PaymentFailureCount)
	assert.JSONEq(t, string(first.Raw), string(second.Raw))
	assert.True(t, first.UpdatedAt.Equal(second.UpdatedAt), "an identical snapshot leaves the row untouched")

	var count int64
	require.NoError(t, f.db.Model(&domain.Contract{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestReconcileBumpsUpdatedAtOnlyOnChange(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	snap := contracttest.Snapshot("gid-1", day(2024, time.January, 15))

	first, err := f.svc.Reconcile(ctx, shop, snap)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	snap.Status = domain.StatusPaused
	second, err := f.svc.Reconcile(ctx, shop, snap)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, second.Status)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))

	f.clock.Advance(time.Hour)
	third, err := f.svc.Reconcile(ctx, shop, snap)
	require.NoError(t, err)
	assert.True(t, second.UpdatedAt.Equal(third.UpdatedAt))
}

func TestReconcileResetsFailuresOnReactivation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	snap := contracttest.Snapshot("gid-1", day(2024, time.January, 15))

	_, err := f.svc.Reconcile(ctx, shop, snap)
	require.NoError(t, err)
	_, err = f.svc.AdjustFailureCount(ctx, shop, "gid-1", domain.FailureIncrement)
	require.NoError(t, err)
	_, err = f.svc.AdjustFailureCount(ctx, shop, "gid-1", domain.FailureIncrement)
	require.NoError(t, err)

	snap.Status = domain.StatusCancelled
	cancelled, err := f.svc.Reconcile(ctx, shop, snap)
	require.NoError(t, err)
	assert.Equal(t, 2, cancelled.PaymentFailureCount)

	snap.Status = domain.StatusActive
	active, err := f.svc.Reconcile(ctx, shop, snap)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, active.Status)
	assert.Equal(t, 0, active.PaymentFailureCount)
}

func TestReconcileKeepsFailuresForOtherTransitions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	snap := contracttest.Snapshot("gid-1", day(2024, time.January, 15))

	_, err := f.svc.Reconcile(ctx, shop, snap)
	require.NoError(t, err)
	_, err = f.svc.AdjustFailureCount(ctx, shop, "gid-1", domain.FailureIncrement)
	require.NoError(t, err)

	snap.Status = domain.StatusPaused
	_, err = f.svc.Reconcile(ctx, shop, snap)
	require.NoError(t, err)
	snap.Status = domain.StatusActive
	got, err := f.svc.Reconcile(ctx, shop, snap)
	require.NoError(t, err)
	assert.Equal(t, 1, got.PaymentFailureCount)
}

func TestReconcileRejectsForeignShop(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	snap := contracttest.Snapshot("gid-1", day(2024, time.January, 15))

	_, err := f.svc.Reconcile(ctx, shop, snap)
	require.NoError(t, err)

	snap.Status = domain.StatusCancelled
	_, err = f.svc.Reconcile(ctx, "other.myshopify.com", snap)
	assert.ErrorIs(t, err, domain.ErrShopMismatch)

	got, err := f.svc.Get(ctx, shop, "gid-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.Status)
}

func TestReconcileRejectsInvalidPolicy(t *testing.T) {
	f := setup(t)
	snap := contracttest.Snapshot("gid-1", day(2024, time.January, 15))
	snap.BillingPolicy.IntervalCount = 0

	_, err := f.svc.Reconcile(context.Background(), shop, snap)
	assert.ErrorIs(t, err, domain.ErrInvalidContract)
	assert.ErrorIs(t, err, billingdate.ErrInvalidIntervalCount)
}

func TestReconcileConcurrentFirstSighting(t *testing.T) {
	f := setup(t)
	snap := contracttest.Snapshot("gid-1", day(2024, time.January, 15))

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Reconcile(context.Background(), shop, snap)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, f.db.Model(&domain.Contract{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestHandleContractWebhookFetchesAndReconciles(t *testing.T) {
	f := setup(t)
	f.gateway.Put(contracttest.Snapshot("gid-9", day(2024, time.February, 1)))

	got, err := f.svc.HandleContractWebhook(context.Background(), shop, "gid-9")
	require.NoError(t, err)
	assert.Equal(t, "gid-9", got.ID)
	assert.Equal(t, 1, f.gateway.ContractFetches)
}

func TestHandleContractWebhookSurfacesTransportError(t *testing.T) {
	f := setup(t)
	f.gateway.FetchErr = context.DeadlineExceeded

	_, err := f.svc.HandleContractWebhook(context.Background(), shop, "gid-9")
	var transport *domain.TransportError
	assert.ErrorAs(t, err, &transport)
}

func TestEnsureLocalOnlyFetchesWhenMissing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.gateway.Put(contracttest.Snapshot("gid-1", day(2024, time.January, 15)))

	_, err := f.svc.EnsureLocal(ctx, shop, "gid-1")
	require.NoError(t, err)
	_, err = f.svc.EnsureLocal(ctx, shop, "gid-1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.gateway.ContractFetches)
}

func TestListDue(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	today := day(2024, time.January, 15)

	due := contracttest.Snapshot("gid-due", today)
	suspended := contracttest.Snapshot("gid-suspended", today)
	paused := contracttest.Snapshot("gid-paused", today)
	paused.Status = domain.StatusPaused
	later := contracttest.Snapshot("gid-later", today.AddDate(0, 0, 1))

	for _, snap := range []domain.ContractSnapshot{due, suspended, paused, later} {
		_, err := f.svc.Reconcile(ctx, shop, snap)
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := f.svc.AdjustFailureCount(ctx, shop, "gid-suspended", domain.FailureIncrement)
		require.NoError(t, err)
	}

	items, err := f.svc.ListDue(ctx, shop, today.Add(13*time.Hour), 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "gid-due", items[0].ID)
}

func TestAdjustFailureCount(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.svc.Reconcile(ctx, shop, contracttest.Snapshot("gid-1", day(2024, time.January, 15)))
	require.NoError(t, err)

	count, err := f.svc.AdjustFailureCount(ctx, shop, "gid-1", domain.FailureIncrement)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = f.svc.AdjustFailureCount(ctx, shop, "gid-1", domain.FailureReset)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = f.svc.AdjustFailureCount(ctx, "other.myshopify.com", "gid-1", domain.FailureIncrement)
	assert.ErrorIs(t, err, domain.ErrContractNotFound)
}

func TestListPaginates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	for _, id := range []string{"gid-1", "gid-2", "gid-3"} {
		_, err := f.svc.Reconcile(ctx, shop, contracttest.Snapshot(id, day(2024, time.January, 15)))
		require.NoError(t, err)
	}

	first, err := f.svc.List(ctx, domain.ListContractsRequest{Shop: shop, Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.Contracts, 2)
	assert.True(t, first.HasMore)

	second, err := f.svc.List(ctx, domain.ListContractsRequest{
		Shop:       shop,
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, second.Contracts, 1)
	assert.Equal(t, "gid-3", second.Contracts[0].ID)
	assert.False(t, second.HasMore)
}
