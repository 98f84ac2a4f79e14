/*
store.go - Persistence interfaces for parties and transactions

KEY INTERFACES:
  Store:      row-level reads and writes used by the command handler
  TxStore:    Store + WithTx, the unit of work spanning all writes of a command
  QueryStore: filtered/sorted/windowed reads, aggregates and party sweeps
  Backend:    TxStore + QueryStore, what Service needs

UNIT OF WORK:
  WithTx(ctx, fn) runs fn against a transactional Store. If fn returns an
  error, nothing fn wrote is visible afterwards. If fn returns nil the
  writes commit together. A commit conflict is reported as ErrConflict.

AGGREGATES:
  SumSignedDeltas is the opening balance primitive. Implementations should
  sum inside the store (SQL SUM over an ordered LIMIT/OFFSET slice) so the
  cost is proportional to the slice, not the history. The memory store
  folds in process; both must agree exactly.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite via database/sql
  - ledger/store/memory.go: in-memory, for tests and demos
*/
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Row-level persistence
// =============================================================================

type Store interface {
	// GetParty loads a party by variant and id. Returns ErrPartyNotFound.
	GetParty(ctx context.Context, model PartyModel, id PartyID) (*Party, error)

	// InsertParty creates a party. Returns ErrDuplicateParty when the name
	// is taken for (owner, model).
	InsertParty(ctx context.Context, p Party) error

	// SavePartyBalance persists p.Balance and p.UpdatedAt.
	SavePartyBalance(ctx context.Context, p Party) error

	// GetTransaction loads a transaction. Returns ErrTransactionNotFound.
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)

	InsertTransaction(ctx context.Context, tx Transaction) error

	// UpdateTransaction overwrites every mutable field of an existing row.
	UpdateTransaction(ctx context.Context, tx Transaction) error

	DeleteTransaction(ctx context.Context, id TransactionID) error

	// SumPartyDeltas replays the log of one party: Σ signedDelta over every
	// transaction referencing it.
	SumPartyDeltas(ctx context.Context, model PartyModel, id PartyID) (decimal.Decimal, error)
}

// TxStore wraps Store with unit-of-work support.
type TxStore interface {
	Store

	// WithTx executes fn within one atomic unit.
	// If fn returns error, everything is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// QUERY STORE - Read side
// =============================================================================

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ParseSortOrder resolves unknown values to descending.
func ParseSortOrder(s string) SortOrder {
	if strings.EqualFold(strings.TrimSpace(s), string(SortAsc)) {
		return SortAsc
	}
	return SortDesc
}

// Filter selects transactions. OwnerID is mandatory; zero values of the
// other fields mean "any".
type Filter struct {
	OwnerID    OwnerID
	PartyID    PartyID
	PartyModel PartyModel
	Types      []TransactionType

	// Search matches description or type, case-insensitively.
	Search string

	// From is an inclusive lower bound on Date.
	From *time.Time

	// To is an exclusive upper bound on Date.
	To *time.Time
}

// Matches is the reference predicate. Stores that filter in SQL must
// select exactly the same rows.
func (f Filter) Matches(tx Transaction) bool {
	if tx.OwnerID != f.OwnerID {
		return false
	}
	if f.PartyID != "" && tx.PartyID != f.PartyID {
		return false
	}
	if f.PartyModel != "" && tx.PartyModel != f.PartyModel {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if tx.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && tx.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && !tx.Date.Before(*f.To) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(tx.Description), needle) &&
			!strings.Contains(strings.ToLower(string(tx.Type)), needle) {
			return false
		}
	}
	return true
}

// Window is a slice of the filtered set in canonical order (SortAsc) or
// its exact reverse (SortDesc). Limit <= 0 means unbounded.
type Window struct {
	Order  SortOrder
	Offset int
	Limit  int
}

// TypeTotal is the sum of magnitudes and the row count for one type.
type TypeTotal struct {
	Type  TransactionType
	Total decimal.Decimal
	Count int
}

// PartyVolume is one counterparty's traded volume.
type PartyVolume struct {
	PartyID   PartyID
	PartyName string
	Total     decimal.Decimal
	Count     int
}

// DailyTotal is the sum of magnitudes for one UTC calendar day.
type DailyTotal struct {
	Day   string // 2006-01-02
	Total decimal.Decimal
	Count int
}

type QueryStore interface {
	CountTransactions(ctx context.Context, f Filter) (int, error)

	// FindTransactions returns the window annotated with party snapshots.
	FindTransactions(ctx context.Context, f Filter, w Window) ([]TransactionView, error)

	// SumSignedDeltas returns Σ signedDelta over the window.
	SumSignedDeltas(ctx context.Context, f Filter, w Window) (decimal.Decimal, error)

	// TypeTotals groups the filtered set by type.
	TypeTotals(ctx context.Context, f Filter) ([]TypeTotal, error)

	// TopParties ranks parties by volume, descending. Ties keep store order.
	TopParties(ctx context.Context, f Filter, limit int) ([]PartyVolume, error)

	// DailyTotals groups the filtered set by UTC day, ascending.
	DailyTotals(ctx context.Context, f Filter) ([]DailyTotal, error)

	// ListPartyRefs enumerates every party of every owner, ordered by
	// (owner, model, id). Used by balance sweeps only.
	ListPartyRefs(ctx context.Context) ([]PartyRef, error)
}

// PartyRef identifies one party across owners.
type PartyRef struct {
	OwnerID OwnerID
	Model   PartyModel
	ID      PartyID
}

// Backend is everything Service needs from storage.
type Backend interface {
	TxStore
	QueryStore
}
