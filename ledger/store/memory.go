// Package store provides in-process ledger.Backend implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	parties      map[partyKey]ledger.Party
	transactions map[ledger.TransactionID]ledger.Transaction
	order        []ledger.TransactionID // insertion order, i.e. store order
}

type partyKey struct {
	Model ledger.PartyModel
	ID    ledger.PartyID
}

func NewMemory() *Memory {
	return &Memory{
		parties:      make(map[partyKey]ledger.Party),
		transactions: make(map[ledger.TransactionID]ledger.Transaction),
	}
}

// =============================================================================
// ROW ACCESS (ledger.Store)
// =============================================================================

func (m *Memory) GetParty(_ context.Context, model ledger.PartyModel, id ledger.PartyID) (*ledger.Party, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPartyLocked(model, id)
}

func (m *Memory) getPartyLocked(model ledger.PartyModel, id ledger.PartyID) (*ledger.Party, error) {
	p, ok := m.parties[partyKey{Model: model, ID: id}]
	if !ok {
		return nil, ledger.ErrPartyNotFound
	}
	return &p, nil
}

func (m *Memory) InsertParty(_ context.Context, p ledger.Party) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertPartyLocked(p)
}

func (m *Memory) insertPartyLocked(p ledger.Party) error {
	for _, existing := range m.parties {
		if existing.OwnerID == p.OwnerID && existing.Model == p.Model && strings.EqualFold(existing.Name, p.Name) {
			return ledger.ErrDuplicateParty
		}
	}
	m.parties[partyKey{Model: p.Model, ID: p.ID}] = p
	return nil
}

func (m *Memory) SavePartyBalance(_ context.Context, p ledger.Party) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.savePartyBalanceLocked(p)
}

func (m *Memory) savePartyBalanceLocked(p ledger.Party) error {
	k := partyKey{Model: p.Model, ID: p.ID}
	existing, ok := m.parties[k]
	if !ok {
		return ledger.ErrPartyNotFound
	}
	existing.Balance = p.Balance
	existing.UpdatedAt = p.UpdatedAt
	m.parties[k] = existing
	return nil
}

func (m *Memory) GetTransaction(_ context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTransactionLocked(id)
}

func (m *Memory) getTransactionLocked(id ledger.TransactionID) (*ledger.Transaction, error) {
	tx, ok := m.transactions[id]
	if !ok {
		return nil, ledger.ErrTransactionNotFound
	}
	return &tx, nil
}

func (m *Memory) InsertTransaction(_ context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertTransactionLocked(tx)
}

func (m *Memory) insertTransactionLocked(tx ledger.Transaction) error {
	if _, ok := m.parties[partyKey{Model: tx.PartyModel, ID: tx.PartyID}]; !ok {
		return ledger.ErrPartyNotFound
	}
	m.transactions[tx.ID] = tx
	m.order = append(m.order, tx.ID)
	return nil
}

func (m *Memory) UpdateTransaction(_ context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateTransactionLocked(tx)
}

func (m *Memory) updateTransactionLocked(tx ledger.Transaction) error {
	if _, ok := m.transactions[tx.ID]; !ok {
		return ledger.ErrTransactionNotFound
	}
	if _, ok := m.parties[partyKey{Model: tx.PartyModel, ID: tx.PartyID}]; !ok {
		return ledger.ErrPartyNotFound
	}
	m.transactions[tx.ID] = tx
	return nil
}

func (m *Memory) DeleteTransaction(_ context.Context, id ledger.TransactionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteTransactionLocked(id)
}

func (m *Memory) deleteTransactionLocked(id ledger.TransactionID) error {
	if _, ok := m.transactions[id]; !ok {
		return ledger.ErrTransactionNotFound
	}
	delete(m.transactions, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) SumPartyDeltas(_ context.Context, model ledger.PartyModel, id ledger.PartyID) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sumPartyDeltasLocked(model, id), nil
}

func (m *Memory) sumPartyDeltasLocked(model ledger.PartyModel, id ledger.PartyID) decimal.Decimal {
	total := decimal.Zero
	for _, txID := range m.order {
		tx := m.transactions[txID]
		if tx.PartyModel == model && tx.PartyID == id {
			total = total.Add(tx.SignedDelta())
		}
	}
	return total
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE (ledger.TxStore)
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()

	if err := fn(&txMemoryView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	if err := ctx.Err(); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	parties      map[partyKey]ledger.Party
	transactions map[ledger.TransactionID]ledger.Transaction
	order        []ledger.TransactionID
}

func (m *Memory) snapshot() memorySnapshot {
	parties := make(map[partyKey]ledger.Party, len(m.parties))
	for k, v := range m.parties {
		parties[k] = v
	}
	txs := make(map[ledger.TransactionID]ledger.Transaction, len(m.transactions))
	for k, v := range m.transactions {
		txs[k] = v
	}
	return memorySnapshot{
		parties:      parties,
		transactions: txs,
		order:        append([]ledger.TransactionID(nil), m.order...),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.parties = s.parties
	m.transactions = s.transactions
	m.order = s.order
}

// txMemoryView runs with the parent's write lock already held.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) GetParty(_ context.Context, model ledger.PartyModel, id ledger.PartyID) (*ledger.Party, error) {
	return tv.parent.getPartyLocked(model, id)
}

func (tv *txMemoryView) InsertParty(_ context.Context, p ledger.Party) error {
	return tv.parent.insertPartyLocked(p)
}

func (tv *txMemoryView) SavePartyBalance(_ context.Context, p ledger.Party) error {
	return tv.parent.savePartyBalanceLocked(p)
}

func (tv *txMemoryView) GetTransaction(_ context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	return tv.parent.getTransactionLocked(id)
}

func (tv *txMemoryView) InsertTransaction(_ context.Context, tx ledger.Transaction) error {
	return tv.parent.insertTransactionLocked(tx)
}

func (tv *txMemoryView) UpdateTransaction(_ context.Context, tx ledger.Transaction) error {
	return tv.parent.updateTransactionLocked(tx)
}

func (tv *txMemoryView) DeleteTransaction(_ context.Context, id ledger.TransactionID) error {
	return tv.parent.deleteTransactionLocked(id)
}

func (tv *txMemoryView) SumPartyDeltas(_ context.Context, model ledger.PartyModel, id ledger.PartyID) (decimal.Decimal, error) {
	return tv.parent.sumPartyDeltasLocked(model, id), nil
}

// =============================================================================
// QUERIES (ledger.QueryStore)
// =============================================================================

// matching returns the filtered rows in store order.
func (m *Memory) matching(f ledger.Filter) []ledger.Transaction {
	var out []ledger.Transaction
	for _, id := range m.order {
		tx := m.transactions[id]
		if f.Matches(tx) {
			out = append(out, tx)
		}
	}
	return out
}

// window sorts rows canonically (or in reverse) and slices them.
func window(txs []ledger.Transaction, w ledger.Window) []ledger.Transaction {
	sorted := append([]ledger.Transaction(nil), txs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if w.Order == ledger.SortAsc {
			return ledger.CanonicalLess(sorted[i], sorted[j])
		}
		return ledger.CanonicalLess(sorted[j], sorted[i])
	})

	if w.Offset >= len(sorted) {
		return nil
	}
	if w.Offset > 0 {
		sorted = sorted[w.Offset:]
	}
	if w.Limit > 0 && w.Limit < len(sorted) {
		sorted = sorted[:w.Limit]
	}
	return sorted
}

func (m *Memory) CountTransactions(_ context.Context, f ledger.Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.matching(f)), nil
}

func (m *Memory) FindTransactions(_ context.Context, f ledger.Filter, w ledger.Window) ([]ledger.TransactionView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := window(m.matching(f), w)
	views := make([]ledger.TransactionView, len(rows))
	for i, tx := range rows {
		views[i] = ledger.TransactionView{Transaction: tx}
		if p, ok := m.parties[partyKey{Model: tx.PartyModel, ID: tx.PartyID}]; ok {
			views[i].PartyName = p.Name
			views[i].PartyBalance = p.Balance
		}
	}
	return views, nil
}

func (m *Memory) SumSignedDeltas(_ context.Context, f ledger.Filter, w ledger.Window) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ledger.SumSigned(window(m.matching(f), w)), nil
}

func (m *Memory) TypeTotals(_ context.Context, f ledger.Filter) ([]ledger.TypeTotal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	index := make(map[ledger.TransactionType]int)
	var out []ledger.TypeTotal
	for _, tx := range m.matching(f) {
		i, ok := index[tx.Type]
		if !ok {
			i = len(out)
			index[tx.Type] = i
			out = append(out, ledger.TypeTotal{Type: tx.Type, Total: decimal.Zero})
		}
		out[i].Total = out[i].Total.Add(tx.Amount)
		out[i].Count++
	}
	return out, nil
}

func (m *Memory) TopParties(_ context.Context, f ledger.Filter, limit int) ([]ledger.PartyVolume, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	index := make(map[partyKey]int)
	var out []ledger.PartyVolume
	for _, tx := range m.matching(f) {
		k := partyKey{Model: tx.PartyModel, ID: tx.PartyID}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, ledger.PartyVolume{
				PartyID:   tx.PartyID,
				PartyName: m.parties[k].Name,
				Total:     decimal.Zero,
			})
		}
		out[i].Total = out[i].Total.Add(tx.Amount)
		out[i].Count++
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Total.GreaterThan(out[j].Total)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListPartyRefs(_ context.Context) ([]ledger.PartyRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	refs := make([]ledger.PartyRef, 0, len(m.parties))
	for _, p := range m.parties {
		refs = append(refs, ledger.PartyRef{OwnerID: p.OwnerID, Model: p.Model, ID: p.ID})
	}
	sort.Slice(refs, func(i, j int) bool {
		a, b := refs[i], refs[j]
		if a.OwnerID != b.OwnerID {
			return a.OwnerID < b.OwnerID
		}
		if a.Model != b.Model {
			return a.Model < b.Model
		}
		return a.ID < b.ID
	})
	return refs, nil
}

func (m *Memory) DailyTotals(_ context.Context, f ledger.Filter) ([]ledger.DailyTotal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byDay := make(map[string]*ledger.DailyTotal)
	for _, tx := range m.matching(f) {
		day := ledger.DayKey(tx.Date)
		d, ok := byDay[day]
		if !ok {
			d = &ledger.DailyTotal{Day: day, Total: decimal.Zero}
			byDay[day] = d
		}
		d.Total = d.Total.Add(tx.Amount)
		d.Count++
	}

	out := make([]ledger.DailyTotal, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}
