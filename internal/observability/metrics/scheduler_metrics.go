package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	SchedulerErrorTypeDeadlineExceeded = "deadline_exceeded"
	SchedulerErrorTypeRemote           = "remote"
	SchedulerErrorTypeBusinessRule     = "business_rule"
	SchedulerErrorTypeDB               = "db"
	SchedulerErrorTypeUnknown          = "unknown"
)

const (
	SchedulerJobReasonDeadlineExceeded     = "deadline_exceeded"
	SchedulerJobReasonDBLockTimeout        = "db_lock_timeout"
	SchedulerJobReasonSerializationFailure = "serialization_failure"
	SchedulerJobReasonUniqueViolation      = "unique_violation"
	SchedulerJobReasonRemote               = "remote"
	SchedulerJobReasonUnknown              = "unknown"
)

const (
	SweepDispositionAttempted = "attempted"
	SweepDispositionFailed    = "failed"
)

const (
	ReconcileActionInserted = "inserted"
	ReconcileActionUpdated  = "updated"
	ReconcileActionReset    = "failure_count_reset"
)

// remoteError is satisfied by gateway errors without importing the domain package.
type remoteError interface {
	error
	Remote() bool
}

// SchedulerMetrics captures billing engine health signals.
type SchedulerMetrics struct {
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobTimeouts     *prometheus.CounterVec
	jobErrors       *prometheus.CounterVec
	batchProcessed  *prometheus.CounterVec
	runLoopLag      prometheus.Histogram
	billingOutcomes *prometheus.CounterVec
	sweepContracts  *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	syncPages       *prometheus.CounterVec
	syncContracts   *prometheus.CounterVec
	lockContention  *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// SchedulerWithConfig registers the collectors on first use; later calls ignore cfg.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}

var (
	jobBuckets     = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800}
	lagBuckets     = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}
	gatewayBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
)

// collectorSet builds collectors that share const labels and one registerer.
type collectorSet struct {
	labels     prometheus.Labels
	collectors []prometheus.Collector
}

func (s *collectorSet) counter(name, help string, labels ...string) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "suavescribe_" + name, Help: help, ConstLabels: s.labels,
	}, labels)
	s.collectors = append(s.collectors, vec)
	return vec
}

func (s *collectorSet) histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "suavescribe_" + name, Help: help, Buckets: buckets, ConstLabels: s.labels,
	}, labels)
	s.collectors = append(s.collectors, vec)
	return vec
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = "unknown"
	}
	set := &collectorSet{labels: prometheus.Labels{"service": serviceName(cfg.ServiceName), "env": env}}

	lag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "suavescribe_scheduler_runloop_lag_seconds",
		Help:        "Scheduler run loop lag beyond the configured interval.",
		Buckets:     lagBuckets,
		ConstLabels: set.labels,
	})
	set.collectors = append(set.collectors, lag)

	m := &SchedulerMetrics{
		jobRuns:         set.counter("scheduler_job_runs_total", "Scheduler job runs by name.", "job"),
		jobDuration:     set.histogram("scheduler_job_duration_seconds", "Scheduler job latency.", jobBuckets, "job"),
		jobTimeouts:     set.counter("scheduler_job_timeouts_total", "Scheduler job runs cut short by their deadline.", "job"),
		jobErrors:       set.counter("scheduler_job_errors_total", "Scheduler job errors by low-cardinality reason.", "job", "reason"),
		batchProcessed:  set.counter("scheduler_batch_processed_total", "Items processed by scheduler jobs.", "job", "resource"),
		runLoopLag:      lag,
		billingOutcomes: set.counter("billing_outcomes_total", "Billing attempt outcomes processed by the cycle orchestrator.", "result"),
		sweepContracts:  set.counter("sweep_contracts_total", "Due contracts seen by the daily sweep by disposition.", "disposition"),
		reconciliations: set.counter("reconciliations_total", "Contract reconciliations by action.", "action"),
		syncPages:       set.counter("bulk_sync_pages_total", "Remote contract pages fetched by the bulk sync crawler.", "status"),
		syncContracts:   set.counter("bulk_sync_contracts_total", "Contracts reconciled by the bulk sync crawler.", "status"),
		lockContention:  set.counter("lock_contention_total", "Lock acquisitions refused because another holder owns the key.", "resource"),
		gatewayLatency:  set.histogram("gateway_call_duration_seconds", "Remote subscription gateway call latency by operation and outcome.", gatewayBuckets, "operation", "outcome"),
	}
	registerer.MustRegister(set.collectors...)
	return m
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m != nil {
		m.jobRuns.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m != nil {
		m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
	}
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m != nil {
		m.jobTimeouts.WithLabelValues(job).Inc()
	}
}

// IncJobError counts err under its ClassifySchedulerJobReason label.
func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m != nil && err != nil {
		m.jobErrors.WithLabelValues(job, ClassifySchedulerJobReason(err)).Inc()
	}
}

func (m *SchedulerMetrics) AddBatchProcessed(job, resource string, count int) {
	if m != nil && count > 0 {
		m.batchProcessed.WithLabelValues(job, resource).Add(float64(count))
	}
}

// ObserveRunLoopLag records how late a tick fired. Negative lag counts as zero.
func (m *SchedulerMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil {
		return
	}
	m.runLoopLag.Observe(max(duration, 0).Seconds())
}

func (m *SchedulerMetrics) IncBillingOutcome(result string) {
	if m != nil {
		m.billingOutcomes.WithLabelValues(result).Inc()
	}
}

func (m *SchedulerMetrics) IncSweepContract(disposition string) {
	if m != nil {
		m.sweepContracts.WithLabelValues(disposition).Inc()
	}
}

func (m *SchedulerMetrics) IncReconciliation(action string) {
	if m != nil {
		m.reconciliations.WithLabelValues(action).Inc()
	}
}

func (m *SchedulerMetrics) IncSyncPage(err error) {
	if m != nil {
		m.syncPages.WithLabelValues(statusLabel(err)).Inc()
	}
}

func (m *SchedulerMetrics) AddSyncContracts(count int, err error) {
	if m != nil && count > 0 {
		m.syncContracts.WithLabelValues(statusLabel(err)).Add(float64(count))
	}
}

func (m *SchedulerMetrics) IncLockContention(resource string) {
	if m != nil {
		m.lockContention.WithLabelValues(resource).Inc()
	}
}

func (m *SchedulerMetrics) ObserveGatewayCall(operation string, duration time.Duration, err error) {
	if m != nil {
		m.gatewayLatency.WithLabelValues(operation, statusLabel(err)).Observe(duration.Seconds())
	}
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func isInterrupted(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// ClassifySchedulerErrorType returns a low-cardinality error type for logging.
func ClassifySchedulerErrorType(err error) string {
	switch {
	case err == nil:
		return SchedulerErrorTypeUnknown
	case isInterrupted(err):
		return SchedulerErrorTypeDeadlineExceeded
	case isRemoteError(err):
		return SchedulerErrorTypeRemote
	case isDBError(err):
		return SchedulerErrorTypeDB
	}
	return SchedulerErrorTypeBusinessRule
}

// IsSchedulerErrorRetryable reports whether a later run may succeed where this one failed.
func IsSchedulerErrorRetryable(err error) bool {
	return err != nil && (isInterrupted(err) || isRemoteError(err) || isDBError(err))
}

// pgReasons maps postgres SQLSTATE codes to job error reasons.
var pgReasons = map[string]string{
	"55P03": SchedulerJobReasonDBLockTimeout,
	"40001": SchedulerJobReasonSerializationFailure,
	"23505": SchedulerJobReasonUniqueViolation,
}

// ClassifySchedulerJobReason maps scheduler job errors to low-cardinality reasons.
func ClassifySchedulerJobReason(err error) string {
	if err == nil {
		return SchedulerJobReasonUnknown
	}
	if isInterrupted(err) {
		return SchedulerJobReasonDeadlineExceeded
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if reason, ok := pgReasons[pgErr.Code]; ok {
			return reason
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return SchedulerJobReasonUniqueViolation
	}
	if isRemoteError(err) {
		return SchedulerJobReasonRemote
	}
	return SchedulerJobReasonUnknown
}

func isRemoteError(err error) bool {
	var remote remoteError
	return errors.As(err, &remote) && remote.Remote()
}

var dbSentinels = []error{gorm.ErrInvalidDB, gorm.ErrInvalidTransaction, gorm.ErrInvalidData, gorm.ErrDuplicatedKey}

// isDBError treats a missing row as a business outcome, not a storage failure.
func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	for _, sentinel := range dbSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
