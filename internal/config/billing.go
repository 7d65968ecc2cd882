package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingPolicy holds the tunables of the billing cycle and sync engine.
type BillingPolicy struct {
	RetryOffsetDays    int           `mapstructure:"retryOffsetDays"`
	MaxPaymentFailures int           `mapstructure:"maxPaymentFailures"`
	SyncPageSize       int           `mapstructure:"syncPageSize"`
	SweepConcurrency   int           `mapstructure:"sweepConcurrency"`
	RemoteTimeout      time.Duration `mapstructure:"remoteTimeout"`
	SyncTimeout        time.Duration `mapstructure:"syncTimeout"`
	LockTTL            time.Duration `mapstructure:"lockTTL"`
}

func DefaultBillingPolicy() BillingPolicy {
	return BillingPolicy{
		RetryOffsetDays:    3,
		MaxPaymentFailures: 2,
		SyncPageSize:       50,
		SweepConcurrency:   4,
		RemoteTimeout:      15 * time.Second,
		SyncTimeout:        30 * time.Minute,
		LockTTL:            2 * time.Minute,
	}
}

type BillingPolicyHolder struct {
	current atomic.Value // holds BillingPolicy
}

// NewBillingPolicyHolder reads billing.yml and keeps watching it for changes.
func NewBillingPolicyHolder(log *zap.Logger) (*BillingPolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.billing")

	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/suavescribe/config")
	v.AddConfigPath("/etc/suavescribe")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SUAVESCRIBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingPolicy()
	v.SetDefault("billing.retryOffsetDays", defaults.RetryOffsetDays)
	v.SetDefault("billing.maxPaymentFailures", defaults.MaxPaymentFailures)
	v.SetDefault("billing.syncPageSize", defaults.SyncPageSize)
	v.SetDefault("billing.sweepConcurrency", defaults.SweepConcurrency)
	v.SetDefault("billing.remoteTimeout", defaults.RemoteTimeout)
	v.SetDefault("billing.syncTimeout", defaults.SyncTimeout)
	v.SetDefault("billing.lockTTL", defaults.LockTTL)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	policy, err := decodeBillingPolicy(v)
	if err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	holder := NewStaticBillingPolicyHolder(policy)
	if !fileFound {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeBillingPolicy(v)
		if err != nil {
			log.Warn("billing policy reload failed", zap.Error(err))
			return
		}
		if err := updated.Validate(); err != nil {
			log.Warn("invalid billing policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing policy reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

// decodeBillingPolicy unmarshals the whole tree so keys missing from the file keep their
// defaults and env overrides.
func decodeBillingPolicy(v *viper.Viper) (BillingPolicy, error) {
	var wrapper struct {
		Billing BillingPolicy `mapstructure:"billing"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return BillingPolicy{}, err
	}
	return wrapper.Billing, nil
}

// NewStaticBillingPolicyHolder returns a holder that never reloads.
func NewStaticBillingPolicyHolder(policy BillingPolicy) *BillingPolicyHolder {
	holder := &BillingPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *BillingPolicyHolder) Get() BillingPolicy {
	if h == nil {
		return DefaultBillingPolicy()
	}
	return h.current.Load().(BillingPolicy)
}

func (p BillingPolicy) Validate() error {
	if p.RetryOffsetDays < 1 {
		return errors.New("billing.retryOffsetDays must be at least 1")
	}
	if p.MaxPaymentFailures < 1 {
		return errors.New("billing.maxPaymentFailures must be at least 1")
	}
	if p.SyncPageSize < 1 || p.SyncPageSize > 250 {
		return errors.New("billing.syncPageSize must be between 1 and 250")
	}
	if p.SweepConcurrency < 1 {
		return errors.New("billing.sweepConcurrency must be at least 1")
	}
	if p.RemoteTimeout <= 0 || p.SyncTimeout <= 0 || p.LockTTL <= 0 {
		return errors.New("billing timeouts must be positive")
	}
	return nil
}
