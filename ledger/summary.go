package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// ROLLUPS
// =============================================================================
//
// Each rollup is computed on its own straight from the store and is
// independent of any listing. A failing rollup degrades to its zero value
// so the others still render.

const topPartiesLimit = 5

// Summaries is the dashboard view of an owner's ledger.
type Summaries struct {
	Period       DateRange
	TypeTotals   []TypeTotal
	TopCustomers []PartyVolume
	TopSuppliers []PartyVolume

	// WeeklySales has 7 points, Monday through Sunday of the current ISO week.
	WeeklySales []DailyTotal
}

// GetSummaries computes per-type totals and top counterparties over the
// period, plus the current week's daily sales.
func (s *Service) GetSummaries(ctx context.Context, owner OwnerID, period string) (*Summaries, error) {
	if owner == "" {
		return nil, ErrUnauthorized
	}
	now := s.now()
	r := ParseDateRange(period)
	since := r.Since(now)

	return &Summaries{
		Period:       r,
		TypeTotals:   s.typeTotals(ctx, Filter{OwnerID: owner, From: since}),
		TopCustomers: s.topParties(ctx, Filter{OwnerID: owner, From: since, PartyModel: PartyCustomer, Types: []TransactionType{TxSale}}),
		TopSuppliers: s.topParties(ctx, Filter{OwnerID: owner, From: since, PartyModel: PartySupplier, Types: []TransactionType{TxPurchase}}),
		WeeklySales:  s.weeklySales(ctx, owner, now),
	}, nil
}

func (s *Service) degraded(ctx context.Context, what string, owner OwnerID, err error) {
	s.log(ctx).Warn("rollup unavailable, using zero value",
		zap.String("rollup", what),
		zap.String("owner_id", string(owner)),
		zap.Error(err),
	)
}

// typeTotals always returns one entry per type, in TransactionTypes order.
func (s *Service) typeTotals(ctx context.Context, f Filter) []TypeTotal {
	out := make([]TypeTotal, len(TransactionTypes))
	for i, t := range TransactionTypes {
		out[i] = TypeTotal{Type: t, Total: decimal.Zero}
	}

	rows, err := s.Store.TypeTotals(ctx, f)
	if err != nil {
		s.degraded(ctx, "type_totals", f.OwnerID, err)
		return out
	}
	for _, row := range rows {
		for i := range out {
			if out[i].Type == row.Type {
				out[i].Total = row.Total
				out[i].Count = row.Count
			}
		}
	}
	return out
}

func (s *Service) topParties(ctx context.Context, f Filter) []PartyVolume {
	rows, err := s.Store.TopParties(ctx, f, topPartiesLimit)
	if err != nil {
		s.degraded(ctx, "top_parties", f.OwnerID, err)
		return []PartyVolume{}
	}
	if rows == nil {
		rows = []PartyVolume{}
	}
	return rows
}

func (s *Service) weeklySales(ctx context.Context, owner OwnerID, now time.Time) []DailyTotal {
	monday := StartOfISOWeek(now)
	nextMonday := monday.AddDate(0, 0, 7)

	out := make([]DailyTotal, 7)
	for i := range out {
		out[i] = DailyTotal{Day: DayKey(monday.AddDate(0, 0, i)), Total: decimal.Zero}
	}

	rows, err := s.Store.DailyTotals(ctx, Filter{
		OwnerID: owner,
		Types:   []TransactionType{TxSale},
		From:    &monday,
		To:      &nextMonday,
	})
	if err != nil {
		s.degraded(ctx, "weekly_sales", owner, err)
		return out
	}
	for _, row := range rows {
		for i := range out {
			if out[i].Day == row.Day {
				out[i].Total = row.Total
				out[i].Count = row.Count
			}
		}
	}
	return out
}
