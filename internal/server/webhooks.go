package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingcycledomain "github.com/smallbiznis/suavescribe/internal/billingcycle/domain"
	obscontext "github.com/smallbiznis/suavescribe/internal/observability/context"
	shopdomain "github.com/smallbiznis/suavescribe/internal/shop/domain"
	"go.uber.org/zap"
)

const (
	TopicContractsCreate = "subscription_contracts/create"
	TopicContractsUpdate = "subscription_contracts/update"
	TopicBillingSuccess  = "subscription_billing_attempts/success"
	TopicBillingFailure  = "subscription_billing_attempts/failure"
	TopicAppUninstalled  = "app/uninstalled"
)

const billingOutcomeRejected = "rejected"

// errorCodes on a failed attempt that mean the card on file is no longer usable.
var paymentMethodErrorCodes = map[string]struct{}{
	"expired_payment_method":   {},
	"invalid_payment_method":   {},
	"payment_method_declined":  {},
	"payment_method_not_found": {},
}

type contractWebhook struct {
	AdminGraphqlAPIID string `json:"admin_graphql_api_id"`
}

type billingAttemptWebhook struct {
	ContractID     string `json:"admin_graphql_api_subscription_contract_id"`
	IdempotencyKey string `json:"idempotency_key"`
	ErrorCode      string `json:"error_code"`
	ErrorMessage   string `json:"error_message"`
}

func (s *Server) HandleWebhook(c *gin.Context) {
	topic := webhookTopic(c)
	shop := c.GetString(contextShopKey)
	ctx := obscontext.WithCorrelationID(c.Request.Context(), c.GetHeader("X-Shopify-Webhook-Id"))
	s.obsMetrics.RecordWebhook(ctx, shop, topic)

	switch topic {
	case TopicContractsCreate, TopicContractsUpdate:
		s.handleContractWebhook(ctx, c, shop)
	case TopicBillingSuccess, TopicBillingFailure:
		s.handleBillingAttemptWebhook(ctx, c, shop, topic == TopicBillingSuccess)
	case TopicAppUninstalled:
		if err := s.shopSvc.Uninstall(ctx, shop); err != nil && !errors.Is(err, shopdomain.ErrShopNotFound) {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	default:
		AbortWithError(c, ErrUnknownTopic)
	}
}

// handleContractWebhook answers with an error status on any failure so the remote redelivers.
func (s *Server) handleContractWebhook(ctx context.Context, c *gin.Context, shop string) {
	var payload contractWebhook
	if err := c.ShouldBindJSON(&payload); err != nil || strings.TrimSpace(payload.AdminGraphqlAPIID) == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	contract, err := s.contractSvc.HandleContractWebhook(ctx, shop, strings.TrimSpace(payload.AdminGraphqlAPIID))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": contract})
}

// handleBillingAttemptWebhook always acknowledges a well-formed event. A redelivered failure
// would count the same declined charge twice.
func (s *Server) handleBillingAttemptWebhook(ctx context.Context, c *gin.Context, shop string, succeeded bool) {
	var payload billingAttemptWebhook
	if err := c.ShouldBindJSON(&payload); err != nil || strings.TrimSpace(payload.ContractID) == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := billingcycledomain.BillingAttemptRequest{
		Shop:       shop,
		ContractID: strings.TrimSpace(payload.ContractID),
	}
	var (
		outcome billingcycledomain.Outcome
		err     error
	)
	if succeeded {
		outcome, err = s.cycleSvc.HandleSuccess(ctx, req)
	} else {
		_, req.UpdatePaymentMethod = paymentMethodErrorCodes[strings.ToLower(strings.TrimSpace(payload.ErrorCode))]
		outcome, err = s.cycleSvc.HandleFailure(ctx, req)
	}
	if err != nil {
		status, body := mapError(err)
		s.log.Warn("billing attempt webhook not applied",
			zap.String("shop", shop),
			zap.String("contract_id", req.ContractID),
			zap.String("idempotency_key", payload.IdempotencyKey),
			zap.Error(err),
		)
		// a pass turned away by the contract lock changed nothing, so Shopify must redeliver;
		// any other failure may have mutated state and is acknowledged
		if !errors.Is(err, billingcycledomain.ErrCycleInProgress) {
			status = http.StatusOK
		}
		c.JSON(status, gin.H{"status": billingOutcomeRejected, "error": body})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": outcome})
}

func webhookTopic(c *gin.Context) string {
	topic := strings.Trim(c.Param("topic"), "/")
	if topic == "" {
		topic = c.GetHeader(HeaderShopifyTopic)
	}
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(topic)), "-", "/")
}
