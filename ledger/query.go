package ledger

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PAGING
// =============================================================================

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100

	// MaxPage keeps page*limit, the furthest offset any window uses, within int.
	MaxPage = math.MaxInt / MaxLimit
)

// Paging is a normalized page request.
type Paging struct {
	Page  int
	Limit int
	Order SortOrder
}

// NewPaging clamps raw inputs: page clamps to [1, MaxPage], limit 0 becomes
// the default, other limits clamp to [1, MaxLimit], unknown order is desc.
func NewPaging(page, limit int, order string) Paging {
	switch {
	case page < 1:
		page = DefaultPage
	case page > MaxPage:
		page = MaxPage
	}
	switch {
	case limit == 0:
		limit = DefaultLimit
	case limit < 1:
		limit = 1
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return Paging{Page: page, Limit: limit, Order: ParseSortOrder(order)}
}

// Skip is the number of filtered rows on earlier pages.
func (p Paging) Skip() int {
	return (p.Page - 1) * p.Limit
}

func (p Paging) window() Window {
	return Window{Order: p.Order, Offset: p.Skip(), Limit: p.Limit}
}

// =============================================================================
// LISTING
// =============================================================================

// ListQuery is the raw listing request as it arrives from a transport.
type ListQuery struct {
	Page      int
	Limit     int
	SortOrder string
	Search    string
	DateRange string
	PartyType string
	PartyID   string
}

// Page is one annotated page of the filtered log.
type Page struct {
	Items               []TransactionView
	Page                int
	Limit               int
	Total               int
	TotalPages          int
	HasNextPage         bool
	HasPrevPage         bool
	SortOrder           SortOrder
	OpeningBalance      decimal.Decimal
	TotalCurrentBalance decimal.Decimal
}

// BuildFilter resolves a ListQuery into a Filter for owner at time now.
func BuildFilter(owner OwnerID, q ListQuery, now time.Time) (Filter, error) {
	f := Filter{
		OwnerID: owner,
		PartyID: PartyID(strings.TrimSpace(q.PartyID)),
		Search:  strings.TrimSpace(q.Search),
		From:    ParseDateRange(q.DateRange).Since(now),
	}
	if q.PartyType != "" {
		model, ok := ParsePartyModel(q.PartyType)
		if !ok {
			return Filter{}, invalid("partyType", "must be Supplier or Customer")
		}
		f.PartyModel = model
	}
	return f, nil
}

// ListTransactions returns one page of the owner's filtered log with its
// opening balance, the filtered total balance and per-row running balances.
func (s *Service) ListTransactions(ctx context.Context, owner OwnerID, q ListQuery) (*Page, error) {
	if owner == "" {
		return nil, ErrUnauthorized
	}
	f, err := BuildFilter(owner, q, s.now())
	if err != nil {
		return nil, err
	}
	p := NewPaging(q.Page, q.Limit, q.SortOrder)

	total, err := s.Store.CountTransactions(ctx, f)
	if err != nil {
		return nil, s.rejected(ctx, "list", owner, err)
	}
	items, err := s.Store.FindTransactions(ctx, f, p.window())
	if err != nil {
		return nil, s.rejected(ctx, "list", owner, err)
	}
	if items == nil {
		items = []TransactionView{}
	}

	opening := s.openingBalance(ctx, f, p)
	ApplyRunningBalances(opening, items, p.Order)

	totalPages := 0
	if total > 0 {
		totalPages = (total + p.Limit - 1) / p.Limit
	}

	return &Page{
		Items:               items,
		Page:                p.Page,
		Limit:               p.Limit,
		Total:               total,
		TotalPages:          totalPages,
		HasNextPage:         p.Page < totalPages,
		HasPrevPage:         p.Page > 1,
		SortOrder:           p.Order,
		OpeningBalance:      opening,
		TotalCurrentBalance: s.totalCurrentBalance(ctx, f),
	}, nil
}
