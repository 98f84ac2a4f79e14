package ledger

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// PROJECTION AUDIT
// =============================================================================
//
// Party.Balance is a projection of the transaction log. These operations
// re-derive it from the log to check it, and rebuild it when it drifted
// (e.g. after a manual database edit).

// BalanceAudit compares the cached balance with the log.
type BalanceAudit struct {
	PartyID    PartyID
	PartyModel PartyModel
	Cached     decimal.Decimal
	Derived    decimal.Decimal
	Consistent bool
}

// VerifyBalance replays a party's log and compares it with the cache.
func (s *Service) VerifyBalance(ctx context.Context, owner OwnerID, model PartyModel, id PartyID) (*BalanceAudit, error) {
	p, err := loadOwnedParty(ctx, s.Store, owner, model, id)
	if err != nil {
		return nil, classify(err)
	}
	derived, err := s.Store.SumPartyDeltas(ctx, model, id)
	if err != nil {
		return nil, classify(err)
	}
	return &BalanceAudit{
		PartyID:    p.ID,
		PartyModel: p.Model,
		Cached:     p.Balance,
		Derived:    derived,
		Consistent: p.Balance.Equal(derived),
	}, nil
}

// RepairBalance rebuilds the cached balance from the log in one unit of
// work. The returned audit describes the state before the repair.
func (s *Service) RepairBalance(ctx context.Context, owner OwnerID, model PartyModel, id PartyID) (*BalanceAudit, error) {
	if owner == "" {
		return nil, ErrUnauthorized
	}
	now := s.now()
	var audit BalanceAudit

	err := s.Store.WithTx(ctx, func(st Store) error {
		p, err := loadOwnedParty(ctx, st, owner, model, id)
		if err != nil {
			return err
		}
		derived, err := st.SumPartyDeltas(ctx, model, id)
		if err != nil {
			return err
		}

		audit = BalanceAudit{
			PartyID:    p.ID,
			PartyModel: p.Model,
			Cached:     p.Balance,
			Derived:    derived,
			Consistent: p.Balance.Equal(derived),
		}
		if audit.Consistent {
			return nil
		}

		ApplyDelta(p, derived.Sub(p.Balance))
		p.UpdatedAt = now
		return st.SavePartyBalance(ctx, *p)
	})
	if err != nil {
		return nil, s.rejected(ctx, "repair", owner, err)
	}

	if !audit.Consistent {
		s.log(ctx).Warn("party balance rebuilt from log",
			zap.String("owner_id", string(owner)),
			zap.String("party_id", string(id)),
			zap.String("cached", audit.Cached.String()),
			zap.String("derived", audit.Derived.String()),
		)
	}
	return &audit, nil
}

// =============================================================================
// SWEEP
// =============================================================================

// SweepReport summarizes one pass over every party.
type SweepReport struct {
	Checked  int
	Drifted  int
	Repaired int
	Failed   int
}

// SweepBalances audits every party of every owner and, when repair is set,
// rebuilds the drifted ones. A failure on one party is logged and counted;
// the sweep moves on. Only listing failures and cancellation abort it.
func (s *Service) SweepBalances(ctx context.Context, repair bool) (*SweepReport, error) {
	refs, err := s.Store.ListPartyRefs(ctx)
	if err != nil {
		return nil, classify(err)
	}

	report := &SweepReport{}
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		var audit *BalanceAudit
		if repair {
			audit, err = s.RepairBalance(ctx, ref.OwnerID, ref.Model, ref.ID)
		} else {
			audit, err = s.VerifyBalance(ctx, ref.OwnerID, ref.Model, ref.ID)
		}
		if err != nil {
			report.Failed++
			s.log(ctx).Warn("balance audit failed",
				zap.String("owner_id", string(ref.OwnerID)),
				zap.String("party_id", string(ref.ID)),
				zap.Error(err),
			)
			continue
		}

		report.Checked++
		if audit.Consistent {
			continue
		}
		report.Drifted++
		if repair {
			report.Repaired++
		} else {
			s.log(ctx).Warn("party balance drifted from log",
				zap.String("owner_id", string(ref.OwnerID)),
				zap.String("party_id", string(ref.ID)),
				zap.String("cached", audit.Cached.String()),
				zap.String("derived", audit.Derived.String()),
			)
		}
	}
	return report, nil
}
