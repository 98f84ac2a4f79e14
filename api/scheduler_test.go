package api

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/ledger-engine/ledger"
)

// drift moves a cached balance away from its log by delta.
func drift(t *testing.T, ts *testServer, p PartyDTO, delta string) {
	t.Helper()
	party, err := ts.mem.GetParty(context.Background(), ledger.PartyModel(p.Model), ledger.PartyID(p.ID))
	require.NoError(t, err)
	party.Balance = party.Balance.Add(decimal.RequireFromString(delta))
	require.NoError(t, ts.mem.SavePartyBalance(context.Background(), *party))
}

func TestAuditScheduler_RunNow(t *testing.T) {
	// GIVEN: Two owners, one party of each drifted from its log
	// WHEN: A sweep runs in report-only mode, then in repair mode
	// THEN: Drift is counted first and fixed second

	ts := newTestServer(t)
	a := ts.createParty("owner-1", "Supplier", "Acme")
	b := ts.createParty("owner-2", "Customer", "Harbor Cafe")
	c := ts.createParty("owner-2", "Supplier", "Clean")
	ts.createTx("owner-1", txBody(a, "Purchase", "10", "2025-03-01"))
	ts.createTx("owner-2", txBody(b, "Sale", "20", "2025-03-01"))
	ts.createTx("owner-2", txBody(c, "Purchase", "5", "2025-03-01"))
	drift(t, ts, a, "1")
	drift(t, ts, b, "2")

	as := NewAuditScheduler(ts.svc, zaptest.NewLogger(t))

	report := as.RunNow(context.Background())
	require.NotNil(t, report)
	assert.Equal(t, ledger.SweepReport{Checked: 3, Drifted: 2}, *report)
	assert.Equal(t, "11.00", ts.partyBalance("owner-1", a))

	as.Repair = true
	report = as.RunNow(context.Background())
	assert.Equal(t, ledger.SweepReport{Checked: 3, Drifted: 2, Repaired: 2}, *report)
	assert.Equal(t, "10.00", ts.partyBalance("owner-1", a))
	assert.Equal(t, "20.00", ts.partyBalance("owner-2", b))

	last, at := as.LastReport()
	assert.Same(t, report, last)
	assert.False(t, at.IsZero())

	report = as.RunNow(context.Background())
	assert.Equal(t, ledger.SweepReport{Checked: 3}, *report)
}

func TestAuditScheduler_StartStop(t *testing.T) {
	ts := newTestServer(t)
	ts.createParty("owner-1", "Supplier", "Acme")

	as := NewAuditScheduler(ts.svc, zaptest.NewLogger(t))
	as.CheckInterval = time.Hour
	as.Start()

	// The first sweep runs right after Start.
	require.Eventually(t, func() bool {
		last, _ := as.LastReport()
		return last != nil
	}, time.Second, 10*time.Millisecond)

	as.Stop()
	as.Stop()

	last, _ := as.LastReport()
	assert.Equal(t, 1, last.Checked)
}

func TestAuditScheduler_Disabled(t *testing.T) {
	ts := newTestServer(t)

	as := NewAuditScheduler(ts.svc, zaptest.NewLogger(t))
	as.CheckInterval = 0
	as.Start()
	as.Stop()

	last, _ := as.LastReport()
	assert.Nil(t, last)
}
