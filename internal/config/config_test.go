package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadSchedulerSettings(t *testing.T) {
	t.Setenv("SCHEDULER_ENABLED", "off")
	t.Setenv("SCHEDULER_RUN_INTERVAL", "90s")
	t.Setenv("SCHEDULER_JOBS", " billing_sweep, ,contract_resync ")
	t.Setenv("ADMIN_TOKEN", "  secret  ")

	cfg := Load()
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Scheduler.RunInterval)
	assert.Equal(t, []string{"billing_sweep", "contract_resync"}, cfg.Scheduler.Jobs)
	assert.Equal(t, "secret", cfg.AdminToken)
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoadFallsBackOnBadValues(t *testing.T) {
	t.Setenv("SCHEDULER_RUN_INTERVAL", "soon")
	t.Setenv("SHOPIFY_BURST", "many")
	t.Setenv("SCHEDULER_JOBS", "")

	cfg := Load()
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.RunInterval)
	assert.Equal(t, 4, cfg.Shopify.Burst)
	assert.Empty(t, cfg.Scheduler.Jobs)
}

func TestBillingPolicyValidate(t *testing.T) {
	require.NoError(t, DefaultBillingPolicy().Validate())

	cases := map[string]func(*BillingPolicy){
		"retry offset":  func(p *BillingPolicy) { p.RetryOffsetDays = 0 },
		"max failures":  func(p *BillingPolicy) { p.MaxPaymentFailures = 0 },
		"page size":     func(p *BillingPolicy) { p.SyncPageSize = 251 },
		"concurrency":   func(p *BillingPolicy) { p.SweepConcurrency = 0 },
		"lock ttl":      func(p *BillingPolicy) { p.LockTTL = 0 },
		"remote budget": func(p *BillingPolicy) { p.RemoteTimeout = -time.Second },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			policy := DefaultBillingPolicy()
			mutate(&policy)
			assert.Error(t, policy.Validate())
		})
	}
}

func TestNilHolderReturnsDefaults(t *testing.T) {
	var holder *BillingPolicyHolder
	assert.Equal(t, DefaultBillingPolicy(), holder.Get())
}

func TestBillingPolicyHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := "billing:\n  retryOffsetDays: 5\n  maxPaymentFailures: 3\n  remoteTimeout: 20s\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "billing.yml"), []byte(content), 0o600))
	t.Chdir(dir)

	holder, err := NewBillingPolicyHolder(zap.NewNop())
	require.NoError(t, err)

	policy := holder.Get()
	assert.Equal(t, 5, policy.RetryOffsetDays)
	assert.Equal(t, 3, policy.MaxPaymentFailures)
	assert.Equal(t, 20*time.Second, policy.RemoteTimeout)
	assert.Equal(t, DefaultBillingPolicy().SyncPageSize, policy.SyncPageSize)
}

func TestBillingPolicyHolderRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "billing.yml"), []byte("billing:\n  maxPaymentFailures: 0\n"), 0o600))
	t.Chdir(dir)

	_, err := NewBillingPolicyHolder(zap.NewNop())
	assert.Error(t, err)
}
