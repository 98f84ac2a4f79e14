/*
Package ledger provides the transaction engine for owner/party accounts.

PURPOSE:
  Records purchases, sales and payments between a business (the owner) and
  its trading parties, and keeps every party's cached balance equal to the
  signed sum of its transaction history.

KEY CONCEPTS IN THIS FILE (types.go):
  - Party: a Supplier or Customer with a cached Balance
  - Transaction: a dated movement against exactly one party
  - SignedDelta: the contribution of a transaction to its party's balance
  - Canonical order: (Date, CreatedAt, ID) ascending

SIGN RULES:
  Purchase, Sale          → +Amount
  Payment Out, Payment In → -Amount

  A supplier balance is what the owner owes the supplier; a customer
  balance is what the customer owes the owner. Both grow with trade and
  shrink with payments, so the same rule serves both variants.

ALLOWED TYPES:
  Supplier: Purchase, Payment Out
  Customer: Sale, Payment In

DESIGN PRINCIPLES:
  1. Amount is always a positive magnitude. The sign is derived, never stored.
  2. Precision: decimal.Decimal everywhere, at most two fractional digits.
  3. Balance is a projection of the log; see audit.go for rebuilding it.

SEE ALSO:
  - balance.go: the only code that writes Party.Balance
  - service.go: Create/Update/Delete commands
  - opening.go: opening balance reconstruction for pages
*/
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OwnerID string
type PartyID string
type TransactionID string

// =============================================================================
// PARTY
// =============================================================================

// PartyModel is the party variant a transaction is booked against.
type PartyModel string

const (
	PartySupplier PartyModel = "Supplier"
	PartyCustomer PartyModel = "Customer"
)

func (m PartyModel) IsValid() bool {
	return m == PartySupplier || m == PartyCustomer
}

// ParsePartyModel accepts the canonical names case-insensitively.
func ParsePartyModel(s string) (PartyModel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "supplier":
		return PartySupplier, true
	case "customer":
		return PartyCustomer, true
	}
	return "", false
}

// Party is a supplier or customer of an owner.
type Party struct {
	ID        PartyID
	OwnerID   OwnerID
	Model     PartyModel
	Name      string
	Phone     string
	Email     string
	Address   string
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// TRANSACTION
// =============================================================================

type TransactionType string

const (
	TxPurchase   TransactionType = "Purchase"
	TxSale       TransactionType = "Sale"
	TxPaymentOut TransactionType = "Payment Out"
	TxPaymentIn  TransactionType = "Payment In"
)

// TransactionTypes lists every type in display order.
var TransactionTypes = []TransactionType{TxPurchase, TxSale, TxPaymentOut, TxPaymentIn}

func (t TransactionType) IsValid() bool {
	switch t {
	case TxPurchase, TxSale, TxPaymentOut, TxPaymentIn:
		return true
	}
	return false
}

// IsIncrease reports whether the type adds to the party balance.
func (t TransactionType) IsIncrease() bool {
	return t == TxPurchase || t == TxSale
}

// AllowedFor reports whether the type may be booked against the party model.
func (t TransactionType) AllowedFor(m PartyModel) bool {
	switch m {
	case PartySupplier:
		return t == TxPurchase || t == TxPaymentOut
	case PartyCustomer:
		return t == TxSale || t == TxPaymentIn
	}
	return false
}

// AllowedTypes returns the transaction types valid for a party model.
func AllowedTypes(m PartyModel) []TransactionType {
	switch m {
	case PartySupplier:
		return []TransactionType{TxPurchase, TxPaymentOut}
	case PartyCustomer:
		return []TransactionType{TxSale, TxPaymentIn}
	}
	return nil
}

type PaymentMode string

const (
	ModeCash   PaymentMode = "Cash"
	ModeBank   PaymentMode = "Bank"
	ModeOnline PaymentMode = "Online"
)

func (m PaymentMode) IsValid() bool {
	return m == ModeCash || m == ModeBank || m == ModeOnline
}

// Transaction is one ledger row. Amount is a positive magnitude.
type Transaction struct {
	ID          TransactionID
	OwnerID     OwnerID
	Date        time.Time
	Type        TransactionType
	PartyModel  PartyModel
	PartyID     PartyID
	Mode        PaymentMode
	Description string
	Amount      decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SignedDelta returns the transaction's contribution to its party's balance.
func (tx Transaction) SignedDelta() decimal.Decimal {
	return SignedDelta(tx.Type, tx.Amount)
}

// SignedDelta applies the sign rule to a magnitude.
func SignedDelta(t TransactionType, amount decimal.Decimal) decimal.Decimal {
	if t.IsIncrease() {
		return amount
	}
	return amount.Neg()
}

// CanonicalLess orders transactions by (Date, CreatedAt, ID) ascending.
func CanonicalLess(a, b Transaction) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// =============================================================================
// INPUT
// =============================================================================

// TransactionInput carries the caller-supplied fields of Create and Update.
// Update is a full replace, so every field is required on both paths.
type TransactionInput struct {
	Date        time.Time
	Type        TransactionType
	PartyID     PartyID
	PartyModel  PartyModel
	Mode        PaymentMode
	Description string
	Amount      decimal.Decimal
}

// PartyInput is the minimal directory data needed to open a party account.
type PartyInput struct {
	Model   PartyModel
	Name    string
	Phone   string
	Email   string
	Address string
}

// =============================================================================
// READ MODELS
// =============================================================================

// TransactionView is a transaction annotated with a snapshot of its party.
type TransactionView struct {
	Transaction
	PartyName    string
	PartyBalance decimal.Decimal

	// RunningBalance is filled by the query layer, not by stores.
	RunningBalance decimal.Decimal
}
