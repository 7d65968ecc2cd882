package shopify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/smallbiznis/suavescribe/internal/billingdate"
	contractdomain "github.com/smallbiznis/suavescribe/internal/contract/domain"
	"gorm.io/datatypes"
)

// Gateway talks to one shop's admin GraphQL API.
type Gateway struct {
	shop   string
	client *client
}

type customerNode struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
}

type contractNode struct {
	ID              string    `json:"id"`
	Status          string    `json:"status"`
	NextBillingDate time.Time `json:"nextBillingDate"`
	BillingPolicy   struct {
		Interval      string `json:"interval"`
		IntervalCount int    `json:"intervalCount"`
	} `json:"billingPolicy"`
	Customer              *customerNode `json:"customer"`
	CustomerPaymentMethod *struct {
		ID string `json:"id"`
	} `json:"customerPaymentMethod"`
}

func (g *Gateway) FetchContract(ctx context.Context, contractID string) (contractdomain.ContractSnapshot, error) {
	var data struct {
		SubscriptionContract json.RawMessage `json:"subscriptionContract"`
	}
	err := g.client.query(ctx, "fetch_contract", queryContract, map[string]any{"id": contractID}, &data)
	if err != nil {
		return contractdomain.ContractSnapshot{}, err
	}
	if isNull(data.SubscriptionContract) {
		return contractdomain.ContractSnapshot{}, contractdomain.ErrContractNotFound
	}
	return toSnapshot(data.SubscriptionContract)
}

func (g *Gateway) FetchContractsPage(ctx context.Context, pageSize int, cursor string) (contractdomain.ContractPage, error) {
	vars := map[string]any{"first": pageSize}
	if cursor != "" {
		vars["after"] = cursor
	}

	var data struct {
		SubscriptionContracts struct {
			Edges []struct {
				Cursor string          `json:"cursor"`
				Node   json.RawMessage `json:"node"`
			} `json:"edges"`
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
		} `json:"subscriptionContracts"`
	}
	if err := g.client.query(ctx, "fetch_contracts_page", queryContracts, vars, &data); err != nil {
		return contractdomain.ContractPage{}, err
	}

	conn := data.SubscriptionContracts
	page := contractdomain.ContractPage{
		Contracts: make([]contractdomain.ContractSnapshot, 0, len(conn.Edges)),
	}
	for _, edge := range conn.Edges {
		snapshot, err := toSnapshot(edge.Node)
		if err != nil {
			return contractdomain.ContractPage{}, err
		}
		page.Contracts = append(page.Contracts, snapshot)
	}
	page.HasMore = conn.PageInfo.HasNextPage
	page.NextPageToken = conn.PageInfo.EndCursor
	if page.NextPageToken == "" && len(conn.Edges) > 0 {
		page.NextPageToken = conn.Edges[len(conn.Edges)-1].Cursor
	}
	return page, nil
}

func (g *Gateway) OpenEditDraft(ctx context.Context, contractID string) (string, error) {
	const op = "open_edit_draft"
	var data struct {
		Payload struct {
			Draft *struct {
				ID string `json:"id"`
			} `json:"draft"`
			UserErrors []contractdomain.UserError `json:"userErrors"`
		} `json:"subscriptionContractUpdate"`
	}
	if err := g.client.mutate(ctx, op, mutationContractUpdate, map[string]any{"contractId": contractID}, &data); err != nil {
		return "", err
	}
	if err := userErrors(op, data.Payload.UserErrors); err != nil {
		return "", err
	}
	if data.Payload.Draft == nil || data.Payload.Draft.ID == "" {
		return "", missingPayload(op, "draft")
	}
	return data.Payload.Draft.ID, nil
}

func (g *Gateway) SetDraftBillingDate(ctx context.Context, draftID string, date time.Time) error {
	return g.updateDraft(ctx, "set_draft_billing_date", draftID, map[string]any{
		"nextBillingDate": billingdate.Today(date).Format(time.RFC3339),
	})
}

func (g *Gateway) CommitDraft(ctx context.Context, draftID string) (contractdomain.CommitResult, error) {
	const op = "commit_draft"
	var data struct {
		Payload struct {
			Contract *struct {
				ID       string        `json:"id"`
				Status   string        `json:"status"`
				Customer *customerNode `json:"customer"`
			} `json:"contract"`
			UserErrors []contractdomain.UserError `json:"userErrors"`
		} `json:"subscriptionDraftCommit"`
	}
	if err := g.client.mutate(ctx, op, mutationDraftCommit, map[string]any{"draftId": draftID}, &data); err != nil {
		return contractdomain.CommitResult{}, err
	}
	if err := userErrors(op, data.Payload.UserErrors); err != nil {
		return contractdomain.CommitResult{}, err
	}
	contract := data.Payload.Contract
	if contract == nil {
		return contractdomain.CommitResult{}, missingPayload(op, "contract")
	}

	result := contractdomain.CommitResult{
		ContractID: contract.ID,
		Status:     contractdomain.ContractStatus(strings.ToUpper(contract.Status)),
	}
	if contract.Customer != nil {
		result.Customer = contractdomain.Customer(*contract.Customer)
	}
	return result, nil
}

// UpdatePaymentMethod points the contract at the customer's current default payment method
// through its own draft. A customer without a stored method is left untouched.
func (g *Gateway) UpdatePaymentMethod(ctx context.Context, contractID string) (string, error) {
	var data struct {
		SubscriptionContract *struct {
			Customer *struct {
				ID             string `json:"id"`
				PaymentMethods struct {
					Edges []struct {
						Node struct {
							ID string `json:"id"`
						} `json:"node"`
					} `json:"edges"`
				} `json:"paymentMethods"`
			} `json:"customer"`
		} `json:"subscriptionContract"`
	}
	err := g.client.query(ctx, "fetch_customer_payment_method", queryCustomerPaymentMethod, map[string]any{"id": contractID}, &data)
	if err != nil {
		return "", err
	}
	if data.SubscriptionContract == nil {
		return "", contractdomain.ErrContractNotFound
	}
	customer := data.SubscriptionContract.Customer
	if customer == nil {
		return "", missingPayload("fetch_customer_payment_method", "customer")
	}
	if len(customer.PaymentMethods.Edges) == 0 {
		return customer.ID, nil
	}
	paymentMethodID := customer.PaymentMethods.Edges[0].Node.ID

	draftID, err := g.OpenEditDraft(ctx, contractID)
	if err != nil {
		return "", err
	}
	if err := g.updateDraft(ctx, "set_draft_payment_method", draftID, map[string]any{
		"paymentMethodId": paymentMethodID,
	}); err != nil {
		return "", err
	}
	if _, err := g.CommitDraft(ctx, draftID); err != nil {
		return "", err
	}
	return customer.ID, nil
}

// CreateBillingAttempt is retried like a read; the idempotency key makes replays harmless.
func (g *Gateway) CreateBillingAttempt(ctx context.Context, contractID, idempotencyKey string) (contractdomain.BillingAttempt, error) {
	const op = "create_billing_attempt"
	var data struct {
		Payload struct {
			Attempt *struct {
				ID             string `json:"id"`
				IdempotencyKey string `json:"idempotencyKey"`
				Ready          bool   `json:"ready"`
			} `json:"subscriptionBillingAttempt"`
			UserErrors []contractdomain.UserError `json:"userErrors"`
		} `json:"subscriptionBillingAttemptCreate"`
	}
	vars := map[string]any{
		"contractId": contractID,
		"input":      map[string]any{"idempotencyKey": idempotencyKey},
	}
	if err := g.client.query(ctx, op, mutationBillingAttemptCreate, vars, &data); err != nil {
		return contractdomain.BillingAttempt{}, err
	}
	if err := userErrors(op, data.Payload.UserErrors); err != nil {
		return contractdomain.BillingAttempt{}, err
	}
	attempt := data.Payload.Attempt
	if attempt == nil {
		return contractdomain.BillingAttempt{}, missingPayload(op, "subscriptionBillingAttempt")
	}
	return contractdomain.BillingAttempt{
		ID:             attempt.ID,
		IdempotencyKey: attempt.IdempotencyKey,
		Ready:          attempt.Ready,
	}, nil
}

func (g *Gateway) updateDraft(ctx context.Context, op, draftID string, input map[string]any) error {
	var data struct {
		Payload struct {
			UserErrors []contractdomain.UserError `json:"userErrors"`
		} `json:"subscriptionDraftUpdate"`
	}
	vars := map[string]any{"draftId": draftID, "input": input}
	if err := g.client.mutate(ctx, op, mutationDraftUpdate, vars, &data); err != nil {
		return err
	}
	return userErrors(op, data.Payload.UserErrors)
}

func toSnapshot(raw json.RawMessage) (contractdomain.ContractSnapshot, error) {
	var node contractNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return contractdomain.ContractSnapshot{}, &contractdomain.TransportError{Op: "decode_contract", Err: err}
	}

	snapshot := contractdomain.ContractSnapshot{
		ID:              node.ID,
		Status:          contractdomain.ContractStatus(strings.ToUpper(node.Status)),
		NextBillingDate: node.NextBillingDate.UTC(),
		BillingPolicy: contractdomain.BillingPolicy{
			Interval:      billingdate.Interval(strings.ToUpper(node.BillingPolicy.Interval)),
			IntervalCount: node.BillingPolicy.IntervalCount,
		},
		Raw: datatypes.JSON(raw),
	}
	if node.Customer != nil {
		snapshot.Customer = contractdomain.Customer(*node.Customer)
	}
	return snapshot, nil
}

func userErrors(op string, errs []contractdomain.UserError) error {
	if len(errs) == 0 {
		return nil
	}
	return &contractdomain.UserErrors{Op: op, Errors: errs}
}

func missingPayload(op, field string) error {
	return &contractdomain.UserErrors{Op: op, Errors: []contractdomain.UserError{{
		Code:    "EMPTY_PAYLOAD",
		Message: field + " missing from response",
	}}}
}

func isNull(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

var _ contractdomain.Gateway = (*Gateway)(nil)
