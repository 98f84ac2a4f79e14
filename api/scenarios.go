/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the caller's ledger with
  realistic data for demos. Each scenario opens parties and books
  transactions through ledger.Service, so every balance invariant holds
  exactly as it would for real traffic.

AVAILABLE SCENARIOS:
  supplier-payments: One supplier, a purchase and a partial payment
  customer-transfer: A sale booked against the wrong customer, then moved
  trading-month:     Two suppliers, three customers, a month of activity

HOW SCENARIOS WORK:
  1. Open parties (names are unique per owner, so a scenario loads once)
  2. Book transactions dated relative to the service clock
  3. Optionally edit or delete some of them

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "trading-month"}

ADDING NEW SCENARIOS:
  1. Add to 'scenarios' slice with ID, name, description
  2. Create loader function: loadXxxScenario(ctx, owner)
  3. Add case to scenarioLoaders

SEE ALSO:
  - handlers.go: Shared helpers
  - ledger/service.go: Commands used by the loaders
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/auth"
	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "supplier-payments",
		Name:        "Supplier Payments",
		Description: "Purchase of 100.00 followed by a 40.00 payment out; balance 60.00",
	},
	{
		ID:          "customer-transfer",
		Name:        "Customer Transfer",
		Description: "Sale of 50.00 edited into a sale of 80.00 against another customer",
	},
	{
		ID:          "trading-month",
		Name:        "Trading Month",
		Description: "Two suppliers and three customers with a month of purchases, sales and payments",
	},
}

// scenarioResult collects what a loader created.
type scenarioResult struct {
	parties      []*ledger.Party
	transactions []*ledger.Transaction
}

type scenarioLoader func(h *Handler, ctx context.Context, owner ledger.OwnerID) (*scenarioResult, error)

var scenarioLoaders = map[string]scenarioLoader{
	"supplier-payments": (*Handler).loadSupplierPaymentsScenario,
	"customer-transfer": (*Handler).loadCustomerTransferScenario,
	"trading-month":     (*Handler).loadTradingMonthScenario,
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a scenario into the caller's ledger.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	loader, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusNotFound, ErrorResponse{
			Error: fmt.Sprintf("unknown scenario %q", req.ScenarioID),
			Code:  "SCENARIO_NOT_FOUND",
		})
		return
	}

	res, err := loader(h, r.Context(), auth.OwnerFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := LoadScenarioResponse{
		Parties:      make([]PartyDTO, 0, len(res.parties)),
		Transactions: make([]TransactionDTO, 0, len(res.transactions)),
	}
	for _, s := range scenarios {
		if s.ID == req.ScenarioID {
			resp.Scenario = s
		}
	}
	for _, p := range res.parties {
		// Reload so the response shows balances after every transaction.
		if fresh, err := h.Service.GetParty(r.Context(), p.OwnerID, p.Model, p.ID); err == nil {
			p = fresh
		}
		resp.Parties = append(resp.Parties, toPartyDTO(*p))
	}
	for _, tx := range res.transactions {
		resp.Transactions = append(resp.Transactions, toTransactionDTO(*tx))
	}
	writeJSON(w, http.StatusCreated, resp)
}

// =============================================================================
// SCENARIO BUILDER
// =============================================================================

// scenarioBuilder stops at the first error so loaders read top to bottom.
type scenarioBuilder struct {
	svc   *ledger.Service
	ctx   context.Context
	owner ledger.OwnerID
	today time.Time
	res   scenarioResult
	err   error
}

func (h *Handler) newBuilder(ctx context.Context, owner ledger.OwnerID) *scenarioBuilder {
	now := time.Now().UTC()
	if h.Service.Now != nil {
		now = h.Service.Now().UTC()
	}
	return &scenarioBuilder{svc: h.Service, ctx: ctx, owner: owner, today: ledger.StartOfDay(now)}
}

func (b *scenarioBuilder) party(model ledger.PartyModel, name, phone string) *ledger.Party {
	if b.err != nil {
		return nil
	}
	p, err := b.svc.CreateParty(b.ctx, b.owner, ledger.PartyInput{Model: model, Name: name, Phone: phone})
	if err != nil {
		b.err = err
		return nil
	}
	b.res.parties = append(b.res.parties, p)
	return p
}

// book creates a transaction daysAgo days before today.
func (b *scenarioBuilder) book(p *ledger.Party, t ledger.TransactionType, mode ledger.PaymentMode, amount string, daysAgo int, desc string) *ledger.Transaction {
	if b.err != nil {
		return nil
	}
	tx, err := b.svc.CreateTransaction(b.ctx, b.owner, ledger.TransactionInput{
		Date:        b.today.AddDate(0, 0, -daysAgo),
		Type:        t,
		PartyID:     p.ID,
		PartyModel:  p.Model,
		Mode:        mode,
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
	})
	if err != nil {
		b.err = err
		return nil
	}
	b.res.transactions = append(b.res.transactions, tx)
	return tx
}

func (b *scenarioBuilder) result() (*scenarioResult, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &b.res, nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadSupplierPaymentsScenario(ctx context.Context, owner ledger.OwnerID) (*scenarioResult, error) {
	b := h.newBuilder(ctx, owner)

	s := b.party(ledger.PartySupplier, "Northwind Wholesale", "+1 555 0100")
	b.book(s, ledger.TxPurchase, ledger.ModeBank, "100.00", 1, "Opening stock")
	b.book(s, ledger.TxPaymentOut, ledger.ModeCash, "40.00", 0, "Partial settlement")

	return b.result()
}

func (h *Handler) loadCustomerTransferScenario(ctx context.Context, owner ledger.OwnerID) (*scenarioResult, error) {
	b := h.newBuilder(ctx, owner)

	c := b.party(ledger.PartyCustomer, "Harbor Cafe", "+1 555 0200")
	d := b.party(ledger.PartyCustomer, "Riverside Bistro", "+1 555 0201")
	sale := b.book(c, ledger.TxSale, ledger.ModeOnline, "50.00", 0, "Catering order")
	if b.err != nil {
		return nil, b.err
	}

	updated, err := h.Service.UpdateTransaction(ctx, owner, sale.ID, ledger.TransactionInput{
		Date:        sale.Date,
		Type:        ledger.TxSale,
		PartyID:     d.ID,
		PartyModel:  d.Model,
		Mode:        sale.Mode,
		Description: "Catering order (rebooked)",
		Amount:      decimal.RequireFromString("80.00"),
	})
	if err != nil {
		return nil, err
	}
	b.res.transactions = []*ledger.Transaction{updated}
	return b.result()
}

func (h *Handler) loadTradingMonthScenario(ctx context.Context, owner ledger.OwnerID) (*scenarioResult, error) {
	b := h.newBuilder(ctx, owner)

	flour := b.party(ledger.PartySupplier, "Golden Mill Flour", "+1 555 0300")
	dairy := b.party(ledger.PartySupplier, "Valley Dairy Co", "+1 555 0301")
	cafe := b.party(ledger.PartyCustomer, "Corner Cafe", "+1 555 0400")
	hotel := b.party(ledger.PartyCustomer, "Grand Hotel", "+1 555 0401")
	market := b.party(ledger.PartyCustomer, "Saturday Market Stall", "+1 555 0402")

	b.book(flour, ledger.TxPurchase, ledger.ModeBank, "1200.00", 28, "Flour, 40 sacks")
	b.book(dairy, ledger.TxPurchase, ledger.ModeBank, "450.50", 27, "Butter and cream")
	b.book(hotel, ledger.TxSale, ledger.ModeBank, "2100.00", 25, "Weekly bread contract")
	b.book(cafe, ledger.TxSale, ledger.ModeCash, "320.00", 24, "Pastries")
	b.book(flour, ledger.TxPaymentOut, ledger.ModeBank, "600.00", 21, "Invoice 1182, half")
	b.book(hotel, ledger.TxPaymentIn, ledger.ModeBank, "2100.00", 18, "Contract settlement")
	b.book(market, ledger.TxSale, ledger.ModeCash, "185.75", 14, "Market day")
	b.book(dairy, ledger.TxPurchase, ledger.ModeOnline, "210.25", 12, "Milk")
	b.book(cafe, ledger.TxPaymentIn, ledger.ModeCash, "200.00", 10, "")
	b.book(hotel, ledger.TxSale, ledger.ModeBank, "2350.00", 7, "Weekly bread contract")
	b.book(market, ledger.TxSale, ledger.ModeCash, "210.00", 5, "Market day")
	b.book(dairy, ledger.TxPaymentOut, ledger.ModeOnline, "450.50", 3, "Invoice 2231")
	b.book(cafe, ledger.TxSale, ledger.ModeCash, "145.00", 1, "Pastries")
	b.book(flour, ledger.TxPurchase, ledger.ModeBank, "980.00", 0, "Flour, 32 sacks")

	return b.result()
}
