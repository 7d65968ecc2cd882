package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/smallbiznis/suavescribe/internal/billingdate"
	"github.com/smallbiznis/suavescribe/internal/clock"
	"github.com/smallbiznis/suavescribe/internal/contract/domain"
	"github.com/smallbiznis/suavescribe/internal/observability/logger"
	"github.com/smallbiznis/suavescribe/internal/observability/metrics"
	"github.com/smallbiznis/suavescribe/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     domain.Repository
	Gateways domain.GatewayProvider
	Metrics  *metrics.SchedulerMetrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	gateways domain.GatewayProvider
	metrics  *metrics.SchedulerMetrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("contract.service"),
		clock:    p.Clock,
		repo:     p.Repo,
		gateways: p.Gateways,
		metrics:  p.Metrics,
	}
}

// Reconcile makes the local row match the snapshot. Safe to repeat and to run concurrently
// for the same contract.
func (s *Service) Reconcile(ctx context.Context, shop string, snapshot domain.ContractSnapshot) (domain.Contract, error) {
	shop = strings.TrimSpace(shop)
	if shop == "" {
		return domain.Contract{}, domain.ErrInvalidShop
	}
	contract, err := s.fromSnapshot(shop, snapshot)
	if err != nil {
		return domain.Contract{}, err
	}
	log := logger.WithContract(s.log, shop, contract.ID)

	existing, err := s.repo.FindByID(ctx, s.db, contract.ID)
	if err != nil {
		return domain.Contract{}, &domain.StoreError{Op: "find_contract", Err: err}
	}
	if existing != nil && existing.Shop != shop {
		log.Warn("contract owned by another shop", zap.String("owner_shop", existing.Shop))
		return domain.Contract{}, domain.ErrShopMismatch
	}

	if existing == nil {
		inserted, err := s.repo.InsertIfAbsent(ctx, s.db, &contract)
		if err != nil {
			return domain.Contract{}, &domain.StoreError{Op: "insert_contract", Err: err}
		}
		if inserted {
			s.metrics.IncReconciliation(metrics.ReconcileActionInserted)
			log.Info("contract inserted", zap.String("status", string(contract.Status)))
			return s.reload(ctx, shop, contract.ID)
		}
		// Lost an insert race; the winner's row is updated below.
	}

	unchanged := existing != nil && sameRemoteFields(*existing, contract)
	if unchanged {
		contract.UpdatedAt = existing.UpdatedAt
	}
	updated, err := s.repo.UpdateFromRemote(ctx, s.db, &contract)
	if err != nil {
		return domain.Contract{}, &domain.StoreError{Op: "update_contract", Err: err}
	}
	if updated == 0 {
		return domain.Contract{}, domain.ErrShopMismatch
	}
	if unchanged {
		log.Debug("contract unchanged")
		return s.reload(ctx, shop, contract.ID)
	}
	s.metrics.IncReconciliation(metrics.ReconcileActionUpdated)
	if existing != nil && existing.Status == domain.StatusCancelled && contract.Status == domain.StatusActive {
		s.metrics.IncReconciliation(metrics.ReconcileActionReset)
		log.Info("contract reactivated, payment failures reset")
	}
	log.Debug("contract updated", zap.String("status", string(contract.Status)))

	return s.reload(ctx, shop, contract.ID)
}

func (s *Service) HandleContractWebhook(ctx context.Context, shop, contractID string) (domain.Contract, error) {
	contractID = strings.TrimSpace(contractID)
	if contractID == "" {
		return domain.Contract{}, domain.ErrInvalidContract
	}

	gateway, err := s.gateways.ForShop(ctx, shop)
	if err != nil {
		return domain.Contract{}, err
	}
	snapshot, err := gateway.FetchContract(ctx, contractID)
	if err != nil {
		logger.WithContract(s.log, shop, contractID).Warn("fetch contract failed", zap.Error(err))
		return domain.Contract{}, err
	}
	return s.Reconcile(ctx, shop, snapshot)
}

func (s *Service) EnsureLocal(ctx context.Context, shop, contractID string) (domain.Contract, error) {
	contract, err := s.Get(ctx, shop, contractID)
	if err == nil {
		return contract, nil
	}
	if !errors.Is(err, domain.ErrContractNotFound) {
		return domain.Contract{}, err
	}
	return s.HandleContractWebhook(ctx, shop, contractID)
}

// Get hides contracts of other shops behind ErrContractNotFound.
func (s *Service) Get(ctx context.Context, shop, id string) (domain.Contract, error) {
	item, err := s.repo.FindByID(ctx, s.db, strings.TrimSpace(id))
	if err != nil {
		return domain.Contract{}, &domain.StoreError{Op: "find_contract", Err: err}
	}
	if item == nil || item.Shop != shop {
		return domain.Contract{}, domain.ErrContractNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListContractsRequest) (domain.ListContractsResponse, error) {
	shop := strings.TrimSpace(req.Shop)
	if shop == "" {
		return domain.ListContractsResponse{}, domain.ErrInvalidShop
	}
	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return domain.ListContractsResponse{}, err
	}

	limit := req.Limit()
	items, err := s.repo.ListByShop(ctx, s.db, shop, cursor.ID, limit+1)
	if err != nil {
		return domain.ListContractsResponse{}, &domain.StoreError{Op: "list_contracts", Err: err}
	}

	items, pageInfo, err := pagination.BuildCursorPageInfo(items, limit, func(c *domain.Contract) string {
		return c.ID
	})
	if err != nil {
		return domain.ListContractsResponse{}, err
	}

	resp := domain.ListContractsResponse{
		PageInfo:  pageInfo,
		Contracts: make([]domain.Contract, 0, len(items)),
	}
	for _, item := range items {
		if item != nil {
			resp.Contracts = append(resp.Contracts, *item)
		}
	}
	return resp, nil
}

func (s *Service) ListDue(ctx context.Context, shop string, day time.Time, maxFailures int) ([]domain.Contract, error) {
	items, err := s.repo.ListDue(ctx, s.db, domain.DueFilter{
		Shop:               shop,
		Day:                billingdate.Today(day),
		Status:             domain.StatusActive,
		MaxPaymentFailures: maxFailures,
	})
	if err != nil {
		return nil, &domain.StoreError{Op: "list_due_contracts", Err: err}
	}
	contracts := make([]domain.Contract, 0, len(items))
	for _, item := range items {
		if item != nil {
			contracts = append(contracts, *item)
		}
	}
	return contracts, nil
}

func (s *Service) AdjustFailureCount(ctx context.Context, shop, id string, adj domain.FailureAdjustment) (int, error) {
	count, err := s.repo.AdjustFailureCount(ctx, s.db, shop, id, adj)
	if err != nil {
		if errors.Is(err, domain.ErrContractNotFound) || errors.Is(err, domain.ErrInvalidContract) {
			return 0, err
		}
		return 0, &domain.StoreError{Op: "adjust_failure_count", Err: err}
	}
	return count, nil
}

func (s *Service) SetNextBillingDate(ctx context.Context, shop, id string, date time.Time) error {
	err := s.repo.SetNextBillingDate(ctx, s.db, shop, id, billingdate.Today(date))
	if err != nil {
		if errors.Is(err, domain.ErrContractNotFound) {
			return err
		}
		return &domain.StoreError{Op: "set_next_billing_date", Err: err}
	}
	return nil
}

func (s *Service) reload(ctx context.Context, shop, id string) (domain.Contract, error) {
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Contract{}, &domain.StoreError{Op: "find_contract", Err: err}
	}
	if item == nil || item.Shop != shop {
		return domain.Contract{}, domain.ErrContractNotFound
	}
	return *item, nil
}

func (s *Service) fromSnapshot(shop string, snapshot domain.ContractSnapshot) (domain.Contract, error) {
	id := strings.TrimSpace(snapshot.ID)
	if id == "" {
		return domain.Contract{}, fmt.Errorf("%w: missing id", domain.ErrInvalidContract)
	}
	interval, err := billingdate.ParseInterval(string(snapshot.BillingPolicy.Interval))
	if err != nil {
		return domain.Contract{}, fmt.Errorf("%w: %w", domain.ErrInvalidContract, err)
	}
	if snapshot.BillingPolicy.IntervalCount < 1 {
		return domain.Contract{}, fmt.Errorf("%w: %w", domain.ErrInvalidContract, billingdate.ErrInvalidIntervalCount)
	}

	raw := snapshot.Raw
	if len(raw) == 0 {
		raw = datatypes.JSON("{}")
	}
	now := s.clock.Now()
	return domain.Contract{
		ID:              id,
		Shop:            shop,
		Status:          domain.ContractStatus(strings.ToUpper(string(snapshot.Status))),
		NextBillingDate: billingdate.Today(snapshot.NextBillingDate),
		Interval:        interval,
		IntervalCount:   snapshot.BillingPolicy.IntervalCount,
		Raw:             raw,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// sameRemoteFields compares the columns the remote owns. The payload is compared as JSON
// values since jsonb storage reorders keys.
func sameRemoteFields(stored, incoming domain.Contract) bool {
	if stored.Status != incoming.Status ||
		!stored.NextBillingDate.Equal(incoming.NextBillingDate) ||
		stored.Interval != incoming.Interval ||
		stored.IntervalCount != incoming.IntervalCount {
		return false
	}
	var a, b any
	if json.Unmarshal(stored.Raw, &a) != nil || json.Unmarshal(incoming.Raw, &b) != nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}
