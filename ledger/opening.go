/*
opening.go - Opening balance reconstruction for pages of the log

PURPOSE:
  A page of a sorted, filtered, mutable log must show the balance at the
  boundary just before what is visible, without replaying the whole
  history per request, for either sort direction.

DEFINITIONS (skip = (page-1)*limit):
  Ascending (oldest first):
    opening = Σ signedDelta over the first `skip` filtered rows in
              canonical order (everything on earlier pages).

  Descending (newest first):
    opening = Σ signedDelta over the filtered rows after the page in
              display order, i.e. window {desc, offset skip+limit}. Those
              are the chronologically older rows not shown yet.

  totalCurrentBalance = Σ signedDelta over the whole filtered set.

RUNNING BALANCE:
  Each row shows opening + cumulative signedDelta walked in canonical
  order. For a descending page that walk starts at the last row.

EXAMPLE (descending, limit 1):
  Jan 1 Purchase 100, Jan 2 Payment Out 40
  page 1 shows Payment Out, opening = 100, running = 60
  page 2 shows Purchase,    opening = 0,   running = 100

FAILURE:
  Reconstruction never fails a listing. A store error degrades the figure
  to zero and is logged.
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OpeningBalance is the boundary context of one page.
type OpeningBalance struct {
	OpeningBalance      decimal.Decimal
	TotalCurrentBalance decimal.Decimal
}

// OpeningWindow returns the slice whose sum is the opening balance of the
// page. ok is false when that slice is empty by construction.
func OpeningWindow(p Paging) (w Window, ok bool) {
	if p.Order == SortAsc {
		if p.Skip() == 0 {
			return Window{}, false
		}
		return Window{Order: SortAsc, Offset: 0, Limit: p.Skip()}, true
	}
	return Window{Order: SortDesc, Offset: p.Skip() + p.Limit}, true
}

func (s *Service) openingBalance(ctx context.Context, f Filter, p Paging) decimal.Decimal {
	w, ok := OpeningWindow(p)
	if !ok {
		return decimal.Zero
	}
	sum, err := s.Store.SumSignedDeltas(ctx, f, w)
	if err != nil {
		s.log(ctx).Warn("opening balance unavailable, using zero",
			zap.String("owner_id", string(f.OwnerID)), zap.Error(err))
		return decimal.Zero
	}
	return sum
}

func (s *Service) totalCurrentBalance(ctx context.Context, f Filter) decimal.Decimal {
	sum, err := s.Store.SumSignedDeltas(ctx, f, Window{Order: SortAsc})
	if err != nil {
		s.log(ctx).Warn("total balance unavailable, using zero",
			zap.String("owner_id", string(f.OwnerID)), zap.Error(err))
		return decimal.Zero
	}
	return sum
}

// ApplyRunningBalances fills RunningBalance on rows displayed in order,
// walking them in canonical order from opening.
func ApplyRunningBalances(opening decimal.Decimal, rows []TransactionView, order SortOrder) {
	running := opening
	if order == SortAsc {
		for i := range rows {
			running = running.Add(rows[i].SignedDelta())
			rows[i].RunningBalance = running
		}
		return
	}
	for i := len(rows) - 1; i >= 0; i-- {
		running = running.Add(rows[i].SignedDelta())
		rows[i].RunningBalance = running
	}
}

// GetOpeningBalance returns the boundary balance for one page of a party's
// history. A party without transactions yields zeros.
func (s *Service) GetOpeningBalance(ctx context.Context, owner OwnerID, partyID PartyID, partyModel PartyModel, page, limit int, sortOrder string) (OpeningBalance, error) {
	if owner == "" {
		return OpeningBalance{}, ErrUnauthorized
	}
	if partyID == "" {
		return OpeningBalance{}, invalid("partyId", "is required")
	}
	if partyModel != "" && !partyModel.IsValid() {
		return OpeningBalance{}, invalid("partyModel", "must be Supplier or Customer")
	}

	f := Filter{OwnerID: owner, PartyID: partyID, PartyModel: partyModel}
	p := NewPaging(page, limit, sortOrder)
	return OpeningBalance{
		OpeningBalance:      s.openingBalance(ctx, f, p),
		TotalCurrentBalance: s.totalCurrentBalance(ctx, f),
	}, nil
}
