package ledger_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const owner ledger.OwnerID = "owner-1"

// Wednesday; the ISO week starts Monday 2025-03-10.
var testNow = time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)

// tickingClock advances one second per reading so CreatedAt is strictly
// increasing across commands.
type tickingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	mem     *store.Memory
	svc     *ledger.Service
	parties []*ledger.Party
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, store.NewMemory(), nil)
}

// newFixtureWith builds a service over backend; mem is used for direct
// state inspection and defaults to backend when it is a *store.Memory.
func newFixtureWith(t *testing.T, backend ledger.Backend, mem *store.Memory) *fixture {
	t.Helper()
	if mem == nil {
		mem, _ = backend.(*store.Memory)
	}

	clock := &tickingClock{t: testNow}
	var seq int
	var seqMu sync.Mutex

	svc := ledger.NewService(backend, zaptest.NewLogger(t))
	svc.Now = clock.Now
	svc.NewID = func() string {
		seqMu.Lock()
		defer seqMu.Unlock()
		seq++
		return fmt.Sprintf("id-%04d", seq)
	}

	return &fixture{t: t, ctx: context.Background(), mem: mem, svc: svc}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(month time.Month, d int) time.Time {
	return time.Date(2025, month, d, 0, 0, 0, 0, time.UTC)
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func (f *fixture) party(model ledger.PartyModel, name string) *ledger.Party {
	return f.partyFor(owner, model, name)
}

func (f *fixture) partyFor(o ledger.OwnerID, model ledger.PartyModel, name string) *ledger.Party {
	f.t.Helper()
	p, err := f.svc.CreateParty(f.ctx, o, ledger.PartyInput{Model: model, Name: name})
	require.NoError(f.t, err)
	f.parties = append(f.parties, p)
	return p
}

func input(p *ledger.Party, typ ledger.TransactionType, amount string, date time.Time) ledger.TransactionInput {
	return ledger.TransactionInput{
		Date:       date,
		Type:       typ,
		PartyID:    p.ID,
		PartyModel: p.Model,
		Mode:       ledger.ModeCash,
		Amount:     dec(amount),
	}
}

func (f *fixture) book(p *ledger.Party, typ ledger.TransactionType, amount string, date time.Time) *ledger.Transaction {
	f.t.Helper()
	tx, err := f.svc.CreateTransaction(f.ctx, owner, input(p, typ, amount, date))
	require.NoError(f.t, err)
	return tx
}

func (f *fixture) balance(p *ledger.Party) decimal.Decimal {
	f.t.Helper()
	got, err := f.mem.GetParty(f.ctx, p.Model, p.ID)
	require.NoError(f.t, err)
	return got.Balance
}

// assertInvariant checks balance == Σ signedDelta for every known party.
func (f *fixture) assertInvariant() {
	f.t.Helper()
	for _, p := range f.parties {
		audit, err := f.svc.VerifyBalance(f.ctx, p.OwnerID, p.Model, p.ID)
		require.NoError(f.t, err)
		assert.True(f.t, audit.Consistent, "party %s: cached %s, derived %s", p.Name, audit.Cached, audit.Derived)
	}
}

func (f *fixture) list(q ledger.ListQuery) *ledger.Page {
	f.t.Helper()
	page, err := f.svc.ListTransactions(f.ctx, owner, q)
	require.NoError(f.t, err)
	return page
}

func sumPage(items []ledger.TransactionView) decimal.Decimal {
	total := decimal.Zero
	for _, v := range items {
		total = total.Add(v.SignedDelta())
	}
	return total
}
