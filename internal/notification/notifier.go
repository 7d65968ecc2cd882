// Package notification sends customer-facing billing notices.
package notification

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/suavescribe/internal/observability/logger"
	"github.com/smallbiznis/suavescribe/internal/observability/metrics"
	"github.com/smallbiznis/suavescribe/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	kindPaymentFailure     = "payment_failure"
	templatePaymentFailure = "payment_failed"
)

var ErrMissingRecipient = errors.New("missing_recipient")

type Notifier interface {
	SendPaymentFailureNotice(ctx context.Context, shop, email, firstName string, retryDate time.Time) error
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Email   email.Provider
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	email   email.Provider
	metrics *metrics.Metrics
}

func New(p Params) Notifier {
	return &Service{
		log:     p.Log.Named("notification.service"),
		email:   p.Email,
		metrics: p.Metrics,
	}
}

func (s *Service) SendPaymentFailureNotice(ctx context.Context, shop, to, firstName string, retryDate time.Time) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return ErrMissingRecipient
	}

	data := map[string]string{
		"FirstName": strings.TrimSpace(firstName),
		"ShopName":  shopName(shop),
		"RetryDate": retryDate.UTC().Format("January 2, 2006"),
	}
	subject := "We couldn't process your subscription payment"

	err := s.email.SendTemplate(ctx, []string{to}, subject, templatePaymentFailure, data)
	s.metrics.RecordNotification(ctx, kindPaymentFailure, err)
	if err != nil {
		return err
	}
	logger.WithShop(s.log, shop).Info("payment failure notice sent",
		zap.Time("retry_date", retryDate),
	)
	return nil
}

// shopName turns "acme-coffee.myshopify.com" into "acme-coffee".
func shopName(shop string) string {
	shop = strings.TrimSpace(shop)
	if name, ok := strings.CutSuffix(shop, ".myshopify.com"); ok && name != "" {
		return name
	}
	return shop
}
