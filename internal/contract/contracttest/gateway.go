// Package contracttest provides in-memory doubles for the remote contract gateway.
package contracttest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/smallbiznis/suavescribe/internal/contract/domain"
)

type AttemptCall struct {
	ContractID     string
	IdempotencyKey string
}

// FakeGateway serves contracts from memory in id order and records every mutation.
type FakeGateway struct {
	mu sync.Mutex

	contracts map[string]domain.ContractSnapshot
	drafts    map[string]string
	dates     map[string]time.Time
	nextDraft int

	FetchErr         error
	PageErrAt        map[int]error // zero-based page index
	OpenErr          error
	SetDateErr       error
	CommitErr        error
	CommitUserErrors []domain.UserError
	UpdatePaymentErr error
	AttemptErr       map[string]error
	// OnAttempt runs before CreateBillingAttempt records anything, outside the gateway mutex.
	OnAttempt func(contractID string)

	Committed       map[string]time.Time
	PaymentUpdates  []string
	Attempts        []AttemptCall
	PagesRequested  int
	DraftsOpened    int
	ContractFetches int
}

func NewFakeGateway(contracts ...domain.ContractSnapshot) *FakeGateway {
	g := &FakeGateway{
		contracts:  make(map[string]domain.ContractSnapshot),
		drafts:     make(map[string]string),
		dates:      make(map[string]time.Time),
		PageErrAt:  make(map[int]error),
		AttemptErr: make(map[string]error),
		Committed:  make(map[string]time.Time),
	}
	for _, c := range contracts {
		g.contracts[c.ID] = c
	}
	return g
}

func (g *FakeGateway) Put(snapshot domain.ContractSnapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.contracts[snapshot.ID] = snapshot
}

func (g *FakeGateway) Snapshot(id string) (domain.ContractSnapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.contracts[id]
	return c, ok
}

func (g *FakeGateway) FetchContract(_ context.Context, contractID string) (domain.ContractSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ContractFetches++
	if g.FetchErr != nil {
		return domain.ContractSnapshot{}, &domain.TransportError{Op: "fetch_contract", Err: g.FetchErr}
	}
	c, ok := g.contracts[contractID]
	if !ok {
		return domain.ContractSnapshot{}, domain.ErrContractNotFound
	}
	return c, nil
}

func (g *FakeGateway) FetchContractsPage(_ context.Context, pageSize int, cursor string) (domain.ContractPage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	index := g.PagesRequested
	g.PagesRequested++
	if err := g.PageErrAt[index]; err != nil {
		return domain.ContractPage{}, &domain.TransportError{Op: "fetch_contracts_page", Err: err}
	}

	ids := make([]string, 0, len(g.contracts))
	for id := range g.contracts {
		if id > cursor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	page := domain.ContractPage{}
	for i, id := range ids {
		if i == pageSize {
			page.HasMore = true
			break
		}
		page.Contracts = append(page.Contracts, g.contracts[id])
	}
	if page.HasMore {
		page.NextPageToken = page.Contracts[len(page.Contracts)-1].ID
	}
	return page, nil
}

func (g *FakeGateway) OpenEditDraft(_ context.Context, contractID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.OpenErr != nil {
		return "", &domain.TransportError{Op: "open_edit_draft", Err: g.OpenErr}
	}
	if _, ok := g.contracts[contractID]; !ok {
		return "", &domain.UserErrors{Op: "open_edit_draft", Errors: []domain.UserError{{Code: "NOT_FOUND", Message: "contract not found"}}}
	}
	g.nextDraft++
	g.DraftsOpened++
	draftID := fmt.Sprintf("draft-%d", g.nextDraft)
	g.drafts[draftID] = contractID
	return draftID, nil
}

func (g *FakeGateway) SetDraftBillingDate(_ context.Context, draftID string, date time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.SetDateErr != nil {
		return &domain.TransportError{Op: "set_draft_billing_date", Err: g.SetDateErr}
	}
	if _, ok := g.drafts[draftID]; !ok {
		return &domain.UserErrors{Op: "set_draft_billing_date", Errors: []domain.UserError{{Code: "NOT_FOUND", Message: "draft not found"}}}
	}
	g.dates[draftID] = date
	return nil
}

func (g *FakeGateway) CommitDraft(_ context.Context, draftID string) (domain.CommitResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.CommitErr != nil {
		return domain.CommitResult{}, &domain.TransportError{Op: "commit_draft", Err: g.CommitErr}
	}
	if len(g.CommitUserErrors) > 0 {
		return domain.CommitResult{}, &domain.UserErrors{Op: "commit_draft", Errors: g.CommitUserErrors}
	}
	contractID, ok := g.drafts[draftID]
	if !ok {
		return domain.CommitResult{}, &domain.UserErrors{Op: "commit_draft", Errors: []domain.UserError{{Code: "NOT_FOUND", Message: "draft not found"}}}
	}
	delete(g.drafts, draftID)

	c := g.contracts[contractID]
	if date, ok := g.dates[draftID]; ok {
		c.NextBillingDate = date
		g.contracts[contractID] = c
		g.Committed[contractID] = date
		delete(g.dates, draftID)
	}
	return domain.CommitResult{ContractID: c.ID, Status: c.Status, Customer: c.Customer}, nil
}

func (g *FakeGateway) UpdatePaymentMethod(_ context.Context, contractID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.UpdatePaymentErr != nil {
		return "", &domain.TransportError{Op: "update_payment_method", Err: g.UpdatePaymentErr}
	}
	g.PaymentUpdates = append(g.PaymentUpdates, contractID)
	return g.contracts[contractID].Customer.ID, nil
}

func (g *FakeGateway) CreateBillingAttempt(_ context.Context, contractID, idempotencyKey string) (domain.BillingAttempt, error) {
	if g.OnAttempt != nil {
		g.OnAttempt(contractID)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.AttemptErr[contractID]; err != nil {
		return domain.BillingAttempt{}, &domain.TransportError{Op: "create_billing_attempt", Err: err}
	}
	g.Attempts = append(g.Attempts, AttemptCall{ContractID: contractID, IdempotencyKey: idempotencyKey})
	return domain.BillingAttempt{ID: "attempt-" + contractID, IdempotencyKey: idempotencyKey}, nil
}

// AttemptCalls returns a copy of the recorded billing attempts.
func (g *FakeGateway) AttemptCalls() []AttemptCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]AttemptCall(nil), g.Attempts...)
}

// Provider hands out gateways keyed by shop.
type Provider struct {
	mu       sync.Mutex
	gateways map[string]*FakeGateway
	Err      error
}

func NewProvider() *Provider {
	return &Provider{gateways: make(map[string]*FakeGateway)}
}

func (p *Provider) Set(shop string, g *FakeGateway) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gateways[shop] = g
	return p
}

func (p *Provider) ForShop(_ context.Context, shop string) (domain.Gateway, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	g, ok := p.gateways[shop]
	if !ok {
		return nil, fmt.Errorf("no gateway for %s", shop)
	}
	return g, nil
}

var (
	_ domain.Gateway         = (*FakeGateway)(nil)
	_ domain.GatewayProvider = (*Provider)(nil)
)
