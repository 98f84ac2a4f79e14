/*
handlers_test.go - HTTP tests for the ledger API

Tests for:
- Authentication (401) and owner isolation (403)
- Transaction lifecycle through the router
- Error mapping (400/404/409, retryable conflicts)
- Opening balance, summaries, audit and health endpoints
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/ledger-engine/auth"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/ledger/store"
)

const testSecret = "api-test-secret-0123456789abcdef"

// Wednesday 2025-03-12.
var apiNow = time.Date(2025, time.March, 12, 9, 0, 0, 0, time.UTC)

type testServer struct {
	t      *testing.T
	router http.Handler
	mem    *store.Memory
	svc    *ledger.Service
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemory()
	return newTestServerWith(t, mem, mem, stubPinger{})
}

func newTestServerWith(t *testing.T, backend ledger.Backend, mem *store.Memory, health Pinger) *testServer {
	t.Helper()
	log := zaptest.NewLogger(t)

	svc := ledger.NewService(backend, log)
	clock := apiNow
	svc.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	var seq int
	svc.NewID = func() string {
		seq++
		return fmt.Sprintf("id-%04d", seq)
	}

	router := NewRouter(NewHandler(svc, health), RouterConfig{
		Logger:         log,
		Verifier:       auth.NewVerifier(testSecret, ""),
		AllowedOrigins: []string{"http://localhost:3000"},
	})
	return &testServer{t: t, router: router, mem: mem, svc: svc}
}

// do sends body as JSON on behalf of owner; an empty owner sends no token.
func (ts *testServer) do(method, path string, body any, owner ledger.OwnerID) *httptest.ResponseRecorder {
	ts.t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if owner != "" {
		token, err := auth.Sign(testSecret, "", owner, time.Hour)
		require.NoError(ts.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (ts *testServer) createParty(owner ledger.OwnerID, model, name string) PartyDTO {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/parties", CreatePartyRequest{Model: model, Name: name}, owner)
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[PartyDTO](ts.t, rec)
}

func txBody(p PartyDTO, typ, amount, date string) map[string]any {
	return map[string]any{
		"date":       date,
		"type":       typ,
		"partyId":    p.ID,
		"partyModel": p.Model,
		"mode":       "Cash",
		"amount":     amount,
	}
}

func (ts *testServer) createTx(owner ledger.OwnerID, body map[string]any) TransactionDTO {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/transactions", body, owner)
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[TransactionDTO](ts.t, rec)
}

func (ts *testServer) partyBalance(owner ledger.OwnerID, p PartyDTO) string {
	ts.t.Helper()
	rec := ts.do(http.MethodGet, "/api/parties/"+p.Model+"/"+p.ID, nil, owner)
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[PartyDTO](ts.t, rec).Balance
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

func TestAPI_RequiresBearerToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/transactions", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAPI_OwnerIsolation(t *testing.T) {
	// GIVEN: A transaction booked by owner-1
	// WHEN: owner-2 tries to read or change it
	// THEN: 403, and owner-1's data is untouched

	ts := newTestServer(t)
	sup := ts.createParty("owner-1", "Supplier", "Acme")
	tx := ts.createTx("owner-1", txBody(sup, "Purchase", "100", "2025-03-01"))

	rec := ts.do(http.MethodGet, "/api/parties/Supplier/"+sup.ID, nil, "owner-2")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decodeBody[ErrorResponse](t, rec).Code)

	rec = ts.do(http.MethodPut, "/api/transactions/"+tx.ID, txBody(sup, "Purchase", "1", "2025-03-01"), "owner-2")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodDelete, "/api/transactions/"+tx.ID, nil, "owner-2")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodGet, "/api/transactions", nil, "owner-2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[PageDTO](t, rec).Items)

	assert.Equal(t, "100.00", ts.partyBalance("owner-1", sup))
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestAPI_TransactionLifecycle(t *testing.T) {
	// GIVEN: A supplier
	// WHEN: A purchase and a payment are booked, the payment edited, then deleted
	// THEN: Every response and the party balance follow the ledger

	ts := newTestServer(t)
	sup := ts.createParty("owner-1", "Supplier", "Acme")
	assert.Equal(t, "0.00", sup.Balance)

	purchase := ts.createTx("owner-1", txBody(sup, "Purchase", "100", "2025-03-01"))
	assert.Equal(t, "100.00", purchase.Amount)
	assert.Equal(t, "100.00", purchase.SignedAmount)
	assert.Equal(t, "2025-03-01T00:00:00Z", purchase.Date)

	payment := ts.createTx("owner-1", txBody(sup, "Payment Out", "40.00", "2025-03-02"))
	assert.Equal(t, "-40.00", payment.SignedAmount)
	assert.Equal(t, "60.00", ts.partyBalance("owner-1", sup))

	// Newest first, with running balances.
	rec := ts.do(http.MethodGet, "/api/transactions?partyId="+sup.ID, nil, "owner-1")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[PageDTO](t, rec)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "desc", page.SortOrder)
	assert.Equal(t, payment.ID, page.Items[0].ID)
	assert.Equal(t, "60.00", *page.Items[0].RunningBalance)
	assert.Equal(t, "100.00", *page.Items[1].RunningBalance)
	assert.Equal(t, "Acme", page.Items[0].PartyName)
	assert.Equal(t, "0.00", page.OpeningBalance)
	assert.Equal(t, "60.00", page.TotalCurrentBalance)

	rec = ts.do(http.MethodPut, "/api/transactions/"+payment.ID, txBody(sup, "Payment Out", "50", "2025-03-02"), "owner-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "50.00", decodeBody[TransactionDTO](t, rec).Amount)
	assert.Equal(t, "50.00", ts.partyBalance("owner-1", sup))

	rec = ts.do(http.MethodDelete, "/api/transactions/"+payment.ID, nil, "owner-1")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "100.00", ts.partyBalance("owner-1", sup))

	rec = ts.do(http.MethodDelete, "/api/transactions/"+payment.ID, nil, "owner-1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "TRANSACTION_NOT_FOUND", decodeBody[ErrorResponse](t, rec).Code)
}

func TestAPI_ValidationErrors(t *testing.T) {
	ts := newTestServer(t)
	sup := ts.createParty("owner-1", "Supplier", "Acme")

	tests := []struct {
		name      string
		body      any
		wantCode  string
		wantField string
	}{
		{
			name:     "malformed JSON",
			body:     `{"date":`,
			wantCode: "VALIDATION_ERROR", wantField: "body",
		},
		{
			name:     "missing party id",
			body:     map[string]any{"date": "2025-03-01", "type": "Purchase", "partyModel": "Supplier", "mode": "Cash", "amount": "1"},
			wantCode: "VALIDATION_ERROR", wantField: "partyId",
		},
		{
			name:     "unknown type",
			body:     txBody(sup, "Refund", "1", "2025-03-01"),
			wantCode: "VALIDATION_ERROR", wantField: "type",
		},
		{
			name:     "bad date",
			body:     txBody(sup, "Purchase", "1", "03/01/2025"),
			wantCode: "VALIDATION_ERROR", wantField: "date",
		},
		{
			name:     "zero amount",
			body:     txBody(sup, "Purchase", "0", "2025-03-01"),
			wantCode: "VALIDATION_ERROR", wantField: "amount",
		},
		{
			name:     "too many decimals",
			body:     txBody(sup, "Purchase", "1.005", "2025-03-01"),
			wantCode: "VALIDATION_ERROR", wantField: "amount",
		},
		{
			name:     "type not allowed for supplier",
			body:     txBody(sup, "Sale", "1", "2025-03-01"),
			wantCode: "INVALID_TYPE_FOR_PARTY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/api/transactions", tt.body, "owner-1")
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			resp := decodeBody[struct {
				Code    string       `json:"code"`
				Details []FieldError `json:"details"`
			}](t, rec)
			assert.Equal(t, tt.wantCode, resp.Code)
			if tt.wantField != "" {
				require.NotEmpty(t, resp.Details)
				assert.Equal(t, tt.wantField, resp.Details[0].Field)
			}
		})
	}

	assert.Equal(t, "0.00", ts.partyBalance("owner-1", sup))
}

func TestAPI_NotFound(t *testing.T) {
	ts := newTestServer(t)
	sup := ts.createParty("owner-1", "Supplier", "Acme")

	ghost := txBody(sup, "Purchase", "1", "2025-03-01")
	ghost["partyId"] = "missing"
	rec := ts.do(http.MethodPost, "/api/transactions", ghost, "owner-1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "PARTY_NOT_FOUND", decodeBody[ErrorResponse](t, rec).Code)

	rec = ts.do(http.MethodPut, "/api/transactions/missing", txBody(sup, "Purchase", "1", "2025-03-01"), "owner-1")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodGet, "/api/parties/Vendor/"+sup.ID, nil, "owner-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/api/nothing-here", nil, "owner-1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeBody[ErrorResponse](t, rec).Code)
}

// conflictBackend fails every unit of work as a lost write race.
type conflictBackend struct {
	*store.Memory
}

func (b conflictBackend) WithTx(context.Context, func(ledger.Store) error) error {
	return fmt.Errorf("%w: commit: database is locked", ledger.ErrConflict)
}

func TestAPI_ConflictIsRetryable(t *testing.T) {
	mem := store.NewMemory()
	ts := newTestServerWith(t, conflictBackend{mem}, mem, stubPinger{})
	sup := ts.createParty("owner-1", "Supplier", "Acme")

	rec := ts.do(http.MethodPost, "/api/transactions", txBody(sup, "Purchase", "1", "2025-03-01"), "owner-1")
	require.Equal(t, http.StatusConflict, rec.Code)

	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "CONFLICT", resp.Code)
	assert.True(t, resp.Retryable)
	assert.NotContains(t, resp.Error, "database is locked")
}

// =============================================================================
// PARTIES
// =============================================================================

func TestAPI_CreateParty(t *testing.T) {
	ts := newTestServer(t)
	ts.createParty("owner-1", "Customer", "Harbor Cafe")

	rec := ts.do(http.MethodPost, "/api/parties", CreatePartyRequest{Model: "Customer", Name: "harbor cafe"}, "owner-1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_PARTY", decodeBody[ErrorResponse](t, rec).Code)

	// Names are unique per owner only.
	rec = ts.do(http.MethodPost, "/api/parties", CreatePartyRequest{Model: "Customer", Name: "Harbor Cafe"}, "owner-2")
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(http.MethodPost, "/api/parties", CreatePartyRequest{Model: "Customer", Name: "X", Email: "not-an-email"}, "owner-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_AuditAndRepair(t *testing.T) {
	// GIVEN: A customer whose cached balance was corrupted in storage
	// THEN: audit reports the drift and repair fixes it

	ts := newTestServer(t)
	cus := ts.createParty("owner-1", "Customer", "Harbor Cafe")
	ts.createTx("owner-1", txBody(cus, "Sale", "80", "2025-03-01"))

	p, err := ts.mem.GetParty(context.Background(), ledger.PartyCustomer, ledger.PartyID(cus.ID))
	require.NoError(t, err)
	p.Balance = p.Balance.Add(p.Balance)
	require.NoError(t, ts.mem.SavePartyBalance(context.Background(), *p))

	rec := ts.do(http.MethodGet, "/api/parties/Customer/"+cus.ID+"/audit", nil, "owner-1")
	require.Equal(t, http.StatusOK, rec.Code)
	audit := decodeBody[BalanceAuditDTO](t, rec)
	assert.False(t, audit.Consistent)
	assert.Equal(t, "160.00", audit.Cached)
	assert.Equal(t, "80.00", audit.Derived)

	rec = ts.do(http.MethodPost, "/api/parties/Customer/"+cus.ID+"/repair", nil, "owner-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "80.00", ts.partyBalance("owner-1", cus))
}

// =============================================================================
// QUERIES
// =============================================================================

func TestAPI_OpeningBalance(t *testing.T) {
	ts := newTestServer(t)
	sup := ts.createParty("owner-1", "Supplier", "Acme")
	ts.createTx("owner-1", txBody(sup, "Purchase", "100", "2025-03-01"))
	ts.createTx("owner-1", txBody(sup, "Payment Out", "40", "2025-03-02"))
	ts.createTx("owner-1", txBody(sup, "Purchase", "15", "2025-03-03"))

	// Descending page 1 of size 1 holds the newest row; everything older is the opening.
	rec := ts.do(http.MethodGet, "/api/transactions/opening-balance?partyId="+sup.ID+"&partyModel=Supplier&page=1&limit=1", nil, "owner-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ob := decodeBody[OpeningBalanceDTO](t, rec)
	assert.Equal(t, "60.00", ob.OpeningBalance)
	assert.Equal(t, "75.00", ob.TotalCurrentBalance)

	rec = ts.do(http.MethodGet, "/api/transactions/opening-balance?partyId="+sup.ID+"&page=2&limit=1&sortOrder=asc", nil, "owner-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100.00", decodeBody[OpeningBalanceDTO](t, rec).OpeningBalance)

	rec = ts.do(http.MethodGet, "/api/transactions/opening-balance?partyId="+sup.ID+"&partyModel=Vendor", nil, "owner-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/api/transactions/opening-balance", nil, "owner-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_ListPagingAndFilters(t *testing.T) {
	ts := newTestServer(t)
	sup := ts.createParty("owner-1", "Supplier", "Acme")
	cus := ts.createParty("owner-1", "Customer", "Harbor Cafe")
	for d := 1; d <= 5; d++ {
		ts.createTx("owner-1", txBody(sup, "Purchase", "10", fmt.Sprintf("2025-03-%02d", d)))
	}
	ts.createTx("owner-1", txBody(cus, "Sale", "7", "2025-03-11"))

	rec := ts.do(http.MethodGet, "/api/transactions?page=0&limit=500&sortOrder=sideways", nil, "owner-1")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[PageDTO](t, rec)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.Limit)
	assert.Equal(t, "desc", page.SortOrder)
	assert.Equal(t, 6, page.Total)

	rec = ts.do(http.MethodGet, "/api/transactions?partyType=Supplier&limit=2&page=2&sortOrder=asc", nil, "owner-1")
	require.Equal(t, http.StatusOK, rec.Code)
	page = decodeBody[PageDTO](t, rec)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.HasNextPage)
	assert.True(t, page.HasPrevPage)
	assert.Equal(t, "20.00", page.OpeningBalance)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "2025-03-03T00:00:00Z", page.Items[0].Date)

	rec = ts.do(http.MethodGet, "/api/transactions?dateRange=week", nil, "owner-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[PageDTO](t, rec).Total)

	rec = ts.do(http.MethodGet, "/api/transactions?partyType=Vendor", nil, "owner-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_Summaries(t *testing.T) {
	ts := newTestServer(t)
	sup := ts.createParty("owner-1", "Supplier", "Acme")
	cus := ts.createParty("owner-1", "Customer", "Harbor Cafe")
	ts.createTx("owner-1", txBody(sup, "Purchase", "100", "2025-03-01"))
	ts.createTx("owner-1", txBody(cus, "Sale", "30", "2025-03-11"))
	ts.createTx("owner-1", txBody(cus, "Payment In", "10", "2025-03-12"))

	rec := ts.do(http.MethodGet, "/api/transactions/summaries?period=week", nil, "owner-1")
	require.Equal(t, http.StatusOK, rec.Code)
	s := decodeBody[SummariesDTO](t, rec)

	assert.Equal(t, "week", s.Period)
	require.Len(t, s.TypeTotals, 4)
	assert.Equal(t, TypeTotalDTO{Type: "Purchase", Total: "0.00"}, s.TypeTotals[0])
	assert.Equal(t, TypeTotalDTO{Type: "Sale", Total: "30.00", Count: 1}, s.TypeTotals[1])
	assert.Equal(t, "10.00", s.TypeTotals[3].Total)
	assert.Empty(t, s.TopSuppliers)
	require.Len(t, s.TopCustomers, 1)
	assert.Equal(t, "Harbor Cafe", s.TopCustomers[0].PartyName)

	require.Len(t, s.WeeklySales, 7)
	assert.Equal(t, "2025-03-10", s.WeeklySales[0].Day)
	assert.Equal(t, "30.00", s.WeeklySales[1].Total)
}

// =============================================================================
// HEALTH
// =============================================================================

func TestAPI_HealthReportsStorageFailure(t *testing.T) {
	mem := store.NewMemory()
	ts := newTestServerWith(t, mem, mem, stubPinger{err: errors.New("disk gone")})

	rec := ts.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
