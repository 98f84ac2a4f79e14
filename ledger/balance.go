package ledger

import "github.com/shopspring/decimal"

// =============================================================================
// BALANCE MUTATOR
// =============================================================================
//
// ApplyDelta and ReverseDelta are the only writers of Party.Balance. They
// change the in-memory party only; the caller persists it inside the same
// unit of work as the transaction row. Calling them outside a unit of work
// gives no atomicity.

// MaxAmount bounds one transaction and MaxBalance bounds a cached balance in
// either direction. Both keep minor units within int64 in every store.
var (
	MaxAmount  = decimal.New(1, 13)
	MaxBalance = decimal.New(9, 16)
)

// CheckBalance rejects a balance a store could not hold.
func CheckBalance(p *Party) error {
	if p.Balance.Abs().GreaterThan(MaxBalance) {
		return invalid("amount", "moves the party balance out of range")
	}
	return nil
}

// ApplyDelta adds delta to the party's cached balance.
func ApplyDelta(p *Party, delta decimal.Decimal) {
	p.Balance = p.Balance.Add(delta)
}

// ReverseDelta undoes a previously applied delta.
func ReverseDelta(p *Party, delta decimal.Decimal) {
	ApplyDelta(p, delta.Neg())
}

// SumSigned folds transactions into a balance. Order does not matter for
// the total; running balances need canonical order (see opening.go).
func SumSigned(txs []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.SignedDelta())
	}
	return total
}
