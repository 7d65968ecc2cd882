// Package shopify implements the remote contract gateway on the Shopify admin GraphQL API.
package shopify

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/smallbiznis/suavescribe/internal/config"
	contractdomain "github.com/smallbiznis/suavescribe/internal/contract/domain"
	"github.com/smallbiznis/suavescribe/internal/observability/metrics"
	"github.com/smallbiznis/suavescribe/internal/ratelimit"
	shopdomain "github.com/smallbiznis/suavescribe/internal/shop/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const defaultRetryInterval = 500 * time.Millisecond

type Params struct {
	fx.In

	Config  config.Config
	Shops   shopdomain.Service
	Policy  *config.BillingPolicyHolder
	Log     *zap.Logger               `optional:"true"`
	Metrics *metrics.SchedulerMetrics `optional:"true"`
	Bucket  *ratelimit.TokenBucket    `optional:"true"`
}

// Provider resolves per-shop gateways. Each shop gets one call budget shared by every
// gateway handed out for it, and by other replicas when redis is configured.
type Provider struct {
	cfg     config.ShopifyConfig
	shops   shopdomain.Service
	policy  *config.BillingPolicyHolder
	metrics *metrics.SchedulerMetrics
	bucket  *ratelimit.TokenBucket
	log     *zap.Logger
	http    *http.Client
	tracer  trace.Tracer

	// endpoint builds the GraphQL URL for a shop.
	endpoint      func(shop string) string
	retryInterval time.Duration

	lookups singleflight.Group

	mu       sync.Mutex
	limiters map[string]ratelimit.Waiter
}

func NewProvider(p Params) *Provider {
	cfg := p.Config.Shopify
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{
		cfg:     cfg,
		shops:   p.Shops,
		policy:  p.Policy,
		metrics: p.Metrics,
		bucket:  p.Bucket,
		log:     log.Named("shopify"),
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tracer: otel.Tracer("suavescribe/shopify"),
		endpoint: func(shop string) string {
			return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", shop, cfg.APIVersion)
		},
		retryInterval: defaultRetryInterval,
		limiters:      make(map[string]ratelimit.Waiter),
	}
}

func (p *Provider) ForShop(ctx context.Context, shop string) (contractdomain.Gateway, error) {
	v, err, _ := p.lookups.Do(shop, func() (any, error) {
		return p.shops.Get(ctx, shop)
	})
	if err != nil {
		return nil, err
	}
	account := v.(shopdomain.ShopAccount)

	return &Gateway{
		shop: account.Shop,
		client: &client{
			http:          p.http,
			endpoint:      p.endpoint(account.Shop),
			token:         account.AccessToken,
			limiter:       p.limiter(account.Shop),
			policy:        p.policy,
			metrics:       p.metrics,
			tracer:        p.tracer,
			retryInterval: p.retryInterval,
		},
	}, nil
}

func (p *Provider) limiter(shop string) ratelimit.Waiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters[shop]; ok {
		return l
	}
	rps := p.cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := p.cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	var l ratelimit.Waiter = rate.NewLimiter(rate.Limit(rps), burst)
	if p.bucket != nil {
		l = ratelimit.NewShopBudget(p.bucket, shop, rps, burst, l, p.log)
	}
	p.limiters[shop] = l
	return l
}

var _ contractdomain.GatewayProvider = (*Provider)(nil)
