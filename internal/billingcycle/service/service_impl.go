package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/suavescribe/internal/billingcycle/domain"
	"github.com/smallbiznis/suavescribe/internal/billingdate"
	"github.com/smallbiznis/suavescribe/internal/clock"
	"github.com/smallbiznis/suavescribe/internal/config"
	contractdomain "github.com/smallbiznis/suavescribe/internal/contract/domain"
	"github.com/smallbiznis/suavescribe/internal/lock"
	"github.com/smallbiznis/suavescribe/internal/notification"
	"github.com/smallbiznis/suavescribe/internal/observability/logger"
	"github.com/smallbiznis/suavescribe/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const outcomeAborted = "ABORTED"

type ServiceParam struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Contracts  contractdomain.Service
	Gateways   contractdomain.GatewayProvider
	Notifier   notification.Notifier
	Locker     lock.Locker
	Policy     *config.BillingPolicyHolder
	Metrics    *metrics.SchedulerMetrics `optional:"true"`
	AppMetrics *metrics.Metrics          `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	clock      clock.Clock
	contracts  contractdomain.Service
	gateways   contractdomain.GatewayProvider
	notifier   notification.Notifier
	locker     lock.Locker
	policy     *config.BillingPolicyHolder
	metrics    *metrics.SchedulerMetrics
	appMetrics *metrics.Metrics
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		log:        p.Log.Named("billingcycle.service"),
		clock:      p.Clock,
		contracts:  p.Contracts,
		gateways:   p.Gateways,
		notifier:   p.Notifier,
		locker:     p.Locker,
		policy:     p.Policy,
		metrics:    p.Metrics,
		appMetrics: p.AppMetrics,
	}
}

// HandleSuccess moves a charged contract one full period forward.
func (s *Service) HandleSuccess(ctx context.Context, req domain.BillingAttemptRequest) (domain.Outcome, error) {
	outcome := domain.Outcome{Result: domain.ResultSucceeded, Shop: req.Shop, ContractID: req.ContractID}
	if err := validate(req); err != nil {
		return outcome, err
	}
	release, err := s.acquire(ctx, req)
	if err != nil {
		return outcome, err
	}
	defer release()

	log := logger.WithContract(logger.WithContext(ctx, s.log), req.Shop, req.ContractID)
	policy := s.policy.Get()

	contract, err := s.contracts.EnsureLocal(ctx, req.Shop, req.ContractID)
	if err != nil {
		return s.abort(ctx, log, outcome, "ensure local contract", err)
	}
	outcome.RemoteStatus = contract.Status

	today := billingdate.Today(s.clock.Now())
	next, err := nextAfterSuccess(contract, today)
	if err != nil {
		return s.abort(ctx, log, outcome, "compute next billing date", err)
	}

	if _, err := s.contracts.AdjustFailureCount(ctx, req.Shop, req.ContractID, contractdomain.FailureReset); err != nil {
		return s.abort(ctx, log, outcome, "reset failure count", err)
	}

	commit, err := s.reschedule(ctx, req, next)
	if err != nil {
		return s.abort(ctx, log, outcome, "reschedule contract", err)
	}
	if err := s.contracts.SetNextBillingDate(ctx, req.Shop, req.ContractID, next); err != nil {
		return s.abort(ctx, log, outcome, "persist next billing date", err)
	}

	outcome.RemoteStatus = commit.Status
	outcome.Customer = commit.Customer
	outcome.NextBillingDate = next
	outcome.PaymentFailureCount = 0
	outcome.Suspended = domain.Suspended(0, policy.MaxPaymentFailures)
	s.record(ctx, outcome)

	log.Info("billing cycle succeeded", zap.Time("next_billing_date", next))
	return outcome, nil
}

// HandleFailure schedules a short retry and tells the customer. The increment happens before
// any remote call and is not undone when the reschedule fails.
func (s *Service) HandleFailure(ctx context.Context, req domain.BillingAttemptRequest) (domain.Outcome, error) {
	outcome := domain.Outcome{Result: domain.ResultFailed, Shop: req.Shop, ContractID: req.ContractID}
	if err := validate(req); err != nil {
		return outcome, err
	}
	release, err := s.acquire(ctx, req)
	if err != nil {
		return outcome, err
	}
	defer release()

	log := logger.WithContract(logger.WithContext(ctx, s.log), req.Shop, req.ContractID)
	policy := s.policy.Get()

	contract, err := s.contracts.EnsureLocal(ctx, req.Shop, req.ContractID)
	if err != nil {
		return s.abort(ctx, log, outcome, "ensure local contract", err)
	}
	outcome.RemoteStatus = contract.Status

	count, err := s.contracts.AdjustFailureCount(ctx, req.Shop, req.ContractID, contractdomain.FailureIncrement)
	if err != nil {
		return s.abort(ctx, log, outcome, "increment failure count", err)
	}
	outcome.PaymentFailureCount = count
	outcome.Suspended = domain.Suspended(count, policy.MaxPaymentFailures)

	if req.UpdatePaymentMethod {
		if err := s.refreshPaymentMethod(ctx, req); err != nil {
			log.Warn("payment method refresh failed", zap.Error(err))
		}
	}

	retry := billingdate.Retry(s.clock.Now(), policy.RetryOffsetDays)
	commit, err := s.reschedule(ctx, req, retry)
	if err != nil {
		return s.abort(ctx, log, outcome, "reschedule contract", err)
	}
	if err := s.contracts.SetNextBillingDate(ctx, req.Shop, req.ContractID, retry); err != nil {
		return s.abort(ctx, log, outcome, "persist retry date", err)
	}
	outcome.RemoteStatus = commit.Status
	outcome.Customer = commit.Customer
	outcome.NextBillingDate = retry

	err = s.notifier.SendPaymentFailureNotice(ctx, req.Shop, commit.Customer.Email, commit.Customer.FirstName, retry)
	if err != nil {
		log.Warn("payment failure notice not sent", zap.Error(err))
	} else {
		outcome.NoticeSent = true
	}
	s.record(ctx, outcome)

	log.Info("billing cycle failed, retry scheduled",
		zap.Time("retry_date", retry),
		zap.Int("payment_failure_count", count),
		zap.Bool("suspended", outcome.Suspended),
	)
	return outcome, nil
}

// Sweep asks the remote to charge each due contract. Results come back later through the
// billing attempt webhooks. One contract's failure never stops the others.
func (s *Service) Sweep(ctx context.Context, shop string) (domain.SweepResult, error) {
	today := billingdate.Today(s.clock.Now())
	result := domain.SweepResult{Shop: shop, Day: today}
	policy := s.policy.Get()
	log := logger.WithShop(logger.WithContext(ctx, s.log), shop)

	due, err := s.contracts.ListDue(ctx, shop, today, policy.MaxPaymentFailures)
	if err != nil {
		return result, err
	}
	result.Due = len(due)
	if len(due) == 0 {
		log.Debug("no contracts due")
		return result, nil
	}

	gateway, err := s.gateways.ForShop(ctx, shop)
	if err != nil {
		return result, err
	}

	var attempted, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(policy.SweepConcurrency)
	for _, contract := range due {
		g.Go(func() error {
			// no contract lock: the per-day key makes a repeated request harmless, and holding
			// the lock here would turn away the webhook reporting this very attempt
			key := IdempotencyKey(contract.Shop, contract.ID, today)
			if _, err := gateway.CreateBillingAttempt(ctx, contract.ID, key); err != nil {
				failed.Add(1)
				s.metrics.IncSweepContract(metrics.SweepDispositionFailed)
				logger.WithContract(log, shop, contract.ID).Warn("billing attempt not created", zap.Error(err))
				return nil
			}
			attempted.Add(1)
			s.metrics.IncSweepContract(metrics.SweepDispositionAttempted)
			return nil
		})
	}
	_ = g.Wait()

	result.Attempted = int(attempted.Load())
	result.Failed = int(failed.Load())
	log.Info("billing sweep finished",
		zap.Int("due", result.Due),
		zap.Int("attempted", result.Attempted),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// IdempotencyKey is stable for a contract and day, so a repeated sweep cannot charge twice.
func IdempotencyKey(shop, contractID string, day time.Time) string {
	name := shop + "/" + contractID + "/" + billingdate.Today(day).Format("2006-01-02")
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// reschedule runs the open, set date, commit chain. Nothing local changes here.
func (s *Service) reschedule(ctx context.Context, req domain.BillingAttemptRequest, date time.Time) (contractdomain.CommitResult, error) {
	gateway, err := s.gateways.ForShop(ctx, req.Shop)
	if err != nil {
		return contractdomain.CommitResult{}, err
	}
	draftID, err := gateway.OpenEditDraft(ctx, req.ContractID)
	if err != nil {
		return contractdomain.CommitResult{}, err
	}
	if err := gateway.SetDraftBillingDate(ctx, draftID, date); err != nil {
		return contractdomain.CommitResult{}, err
	}
	return gateway.CommitDraft(ctx, draftID)
}

func (s *Service) refreshPaymentMethod(ctx context.Context, req domain.BillingAttemptRequest) error {
	gateway, err := s.gateways.ForShop(ctx, req.Shop)
	if err != nil {
		return err
	}
	customerID, err := gateway.UpdatePaymentMethod(ctx, req.ContractID)
	if err != nil {
		return err
	}
	logger.WithContract(s.log, req.Shop, req.ContractID).Info("payment method refreshed", zap.String("customer_id", customerID))
	return nil
}

func (s *Service) acquire(ctx context.Context, req domain.BillingAttemptRequest) (func(), error) {
	key := lock.ContractKey(req.Shop, req.ContractID)
	token, ok, err := s.locker.TryLock(ctx, key, s.policy.Get().LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire contract lock: %w", err)
	}
	if !ok {
		s.metrics.IncLockContention("contract")
		return nil, domain.ErrCycleInProgress
	}
	return func() { s.unlock(ctx, key, token) }, nil
}

func (s *Service) unlock(ctx context.Context, key, token string) {
	if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
		s.log.Warn("release contract lock failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Service) abort(ctx context.Context, log *zap.Logger, outcome domain.Outcome, step string, err error) (domain.Outcome, error) {
	s.metrics.IncBillingOutcome(outcomeAborted)
	s.appMetrics.RecordBillingOutcome(ctx, outcome.Shop, outcomeAborted)
	if errors.Is(err, contractdomain.ErrContractNotFound) {
		log.Warn("contract missing locally and remotely", zap.String("step", step))
	} else {
		log.Error("billing cycle aborted", zap.String("step", step), zap.String("path", string(outcome.Result)), zap.Error(err))
	}
	return outcome, fmt.Errorf("%s: %w", step, err)
}

func (s *Service) record(ctx context.Context, outcome domain.Outcome) {
	s.metrics.IncBillingOutcome(string(outcome.Result))
	s.appMetrics.RecordBillingOutcome(ctx, outcome.Shop, string(outcome.Result))
}

// nextAfterSuccess advances from the date that was billed. A contract whose stored date is
// missing, in the future, or so stale that one period does not reach past today is anchored
// on today instead.
func nextAfterSuccess(contract contractdomain.Contract, today time.Time) (time.Time, error) {
	anchor := billingdate.Today(contract.NextBillingDate)
	if contract.NextBillingDate.IsZero() || anchor.After(today) {
		anchor = today
	}
	next, err := billingdate.Next(contract.Interval, contract.IntervalCount, anchor)
	if err != nil {
		return time.Time{}, err
	}
	if !next.After(today) {
		return billingdate.Next(contract.Interval, contract.IntervalCount, today)
	}
	return next, nil
}

func validate(req domain.BillingAttemptRequest) error {
	if strings.TrimSpace(req.Shop) == "" || strings.TrimSpace(req.ContractID) == "" {
		return domain.ErrInvalidRequest
	}
	return nil
}
