/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal ledger model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts and balances are rendered as decimal strings ("100.50") so
  clients never see binary floating point. Requests accept either a JSON
  number or a string.

VALIDATION:
  Request types carry go-playground/validator tags for shape checks
  (required, oneof, max). The ledger service repeats the domain checks,
  so the engine stays safe when called without this transport.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: Domain types
*/
package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

const dateLayout = "2006-01-02"

// =============================================================================
// TRANSACTIONS
// =============================================================================

// TransactionRequest is the body of create and update. Update is a full
// replace, so both use the same shape.
type TransactionRequest struct {
	Date        string          `json:"date" validate:"required"`
	Type        string          `json:"type" validate:"required,oneof=Purchase Sale 'Payment Out' 'Payment In'"`
	PartyID     string          `json:"partyId" validate:"required"`
	PartyModel  string          `json:"partyModel" validate:"required,oneof=Supplier Customer"`
	Mode        string          `json:"mode" validate:"required,oneof=Cash Bank Online"`
	Description string          `json:"description" validate:"max=500"`
	Amount      decimal.Decimal `json:"amount"`
}

// toInput converts the request into a ledger command payload.
func (r TransactionRequest) toInput() (ledger.TransactionInput, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return ledger.TransactionInput{}, &ledger.ValidationError{Field: "date", Message: err.Error()}
	}
	return ledger.TransactionInput{
		Date:        date,
		Type:        ledger.TransactionType(r.Type),
		PartyID:     ledger.PartyID(r.PartyID),
		PartyModel:  ledger.PartyModel(r.PartyModel),
		Mode:        ledger.PaymentMode(r.Mode),
		Description: r.Description,
		Amount:      r.Amount,
	}, nil
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("must be YYYY-MM-DD or RFC 3339")
}

// TransactionDTO represents a transaction in API responses.
type TransactionDTO struct {
	ID             string  `json:"id"`
	Date           string  `json:"date"`
	Type           string  `json:"type"`
	PartyID        string  `json:"partyId"`
	PartyModel     string  `json:"partyModel"`
	PartyName      string  `json:"partyName,omitempty"`
	PartyBalance   *string `json:"partyBalance,omitempty"`
	Mode           string  `json:"mode"`
	Description    string  `json:"description,omitempty"`
	Amount         string  `json:"amount"`
	SignedAmount   string  `json:"signedAmount"`
	RunningBalance *string `json:"runningBalance,omitempty"`
	CreatedAt      string  `json:"createdAt"`
	UpdatedAt      string  `json:"updatedAt"`
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:           string(tx.ID),
		Date:         tx.Date.UTC().Format(time.RFC3339),
		Type:         string(tx.Type),
		PartyID:      string(tx.PartyID),
		PartyModel:   string(tx.PartyModel),
		Mode:         string(tx.Mode),
		Description:  tx.Description,
		Amount:       tx.Amount.StringFixed(2),
		SignedAmount: tx.SignedDelta().StringFixed(2),
		CreatedAt:    tx.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:    tx.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toTransactionViewDTO(v ledger.TransactionView) TransactionDTO {
	dto := toTransactionDTO(v.Transaction)
	dto.PartyName = v.PartyName
	dto.PartyBalance = money(v.PartyBalance)
	dto.RunningBalance = money(v.RunningBalance)
	return dto
}

func money(d decimal.Decimal) *string {
	s := d.StringFixed(2)
	return &s
}

// PageDTO is one page of the transaction listing.
type PageDTO struct {
	Items               []TransactionDTO `json:"items"`
	Page                int              `json:"page"`
	Limit               int              `json:"limit"`
	Total               int              `json:"total"`
	TotalPages          int              `json:"totalPages"`
	HasNextPage         bool             `json:"hasNextPage"`
	HasPrevPage         bool             `json:"hasPrevPage"`
	SortOrder           string           `json:"sortOrder"`
	OpeningBalance      string           `json:"openingBalance"`
	TotalCurrentBalance string           `json:"totalCurrentBalance"`
}

func toPageDTO(p *ledger.Page) PageDTO {
	items := make([]TransactionDTO, len(p.Items))
	for i, v := range p.Items {
		items[i] = toTransactionViewDTO(v)
	}
	return PageDTO{
		Items:               items,
		Page:                p.Page,
		Limit:               p.Limit,
		Total:               p.Total,
		TotalPages:          p.TotalPages,
		HasNextPage:         p.HasNextPage,
		HasPrevPage:         p.HasPrevPage,
		SortOrder:           string(p.SortOrder),
		OpeningBalance:      p.OpeningBalance.StringFixed(2),
		TotalCurrentBalance: p.TotalCurrentBalance.StringFixed(2),
	}
}

// OpeningBalanceDTO is the boundary context of one page.
type OpeningBalanceDTO struct {
	OpeningBalance      string `json:"openingBalance"`
	TotalCurrentBalance string `json:"totalCurrentBalance"`
}

// =============================================================================
// SUMMARIES
// =============================================================================

type TypeTotalDTO struct {
	Type  string `json:"type"`
	Total string `json:"total"`
	Count int    `json:"count"`
}

type PartyVolumeDTO struct {
	PartyID   string `json:"partyId"`
	PartyName string `json:"partyName"`
	Total     string `json:"total"`
	Count     int    `json:"count"`
}

type DailyTotalDTO struct {
	Day   string `json:"day"`
	Total string `json:"total"`
	Count int    `json:"count"`
}

// SummariesDTO is the dashboard response.
type SummariesDTO struct {
	Period       string           `json:"period"`
	TypeTotals   []TypeTotalDTO   `json:"typeTotals"`
	TopCustomers []PartyVolumeDTO `json:"topCustomers"`
	TopSuppliers []PartyVolumeDTO `json:"topSuppliers"`
	WeeklySales  []DailyTotalDTO  `json:"weeklySales"`
}

func toSummariesDTO(s *ledger.Summaries) SummariesDTO {
	dto := SummariesDTO{
		Period:       string(s.Period),
		TypeTotals:   make([]TypeTotalDTO, len(s.TypeTotals)),
		TopCustomers: toPartyVolumeDTOs(s.TopCustomers),
		TopSuppliers: toPartyVolumeDTOs(s.TopSuppliers),
		WeeklySales:  make([]DailyTotalDTO, len(s.WeeklySales)),
	}
	for i, t := range s.TypeTotals {
		dto.TypeTotals[i] = TypeTotalDTO{Type: string(t.Type), Total: t.Total.StringFixed(2), Count: t.Count}
	}
	for i, d := range s.WeeklySales {
		dto.WeeklySales[i] = DailyTotalDTO{Day: d.Day, Total: d.Total.StringFixed(2), Count: d.Count}
	}
	return dto
}

func toPartyVolumeDTOs(rows []ledger.PartyVolume) []PartyVolumeDTO {
	out := make([]PartyVolumeDTO, len(rows))
	for i, r := range rows {
		out[i] = PartyVolumeDTO{
			PartyID:   string(r.PartyID),
			PartyName: r.PartyName,
			Total:     r.Total.StringFixed(2),
			Count:     r.Count,
		}
	}
	return out
}

// =============================================================================
// PARTIES
// =============================================================================

// CreatePartyRequest is the request to open a party account.
type CreatePartyRequest struct {
	Model   string `json:"model" validate:"required,oneof=Supplier Customer"`
	Name    string `json:"name" validate:"required,max=100"`
	Phone   string `json:"phone" validate:"max=32"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address" validate:"max=500"`
}

// PartyDTO represents a party in API responses.
type PartyDTO struct {
	ID        string `json:"id"`
	Model     string `json:"model"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Address   string `json:"address,omitempty"`
	Balance   string `json:"balance"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func toPartyDTO(p ledger.Party) PartyDTO {
	return PartyDTO{
		ID:        string(p.ID),
		Model:     string(p.Model),
		Name:      p.Name,
		Phone:     p.Phone,
		Email:     p.Email,
		Address:   p.Address,
		Balance:   p.Balance.StringFixed(2),
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// BalanceAuditDTO compares the cached balance with the log.
type BalanceAuditDTO struct {
	PartyID    string `json:"partyId"`
	PartyModel string `json:"partyModel"`
	Cached     string `json:"cached"`
	Derived    string `json:"derived"`
	Consistent bool   `json:"consistent"`
}

func toBalanceAuditDTO(a ledger.BalanceAudit) BalanceAuditDTO {
	return BalanceAuditDTO{
		PartyID:    string(a.PartyID),
		PartyModel: string(a.PartyModel),
		Cached:     a.Cached.StringFixed(2),
		Derived:    a.Derived.StringFixed(2),
		Consistent: a.Consistent,
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// LoadScenarioResponse lists what a scenario created.
type LoadScenarioResponse struct {
	Scenario     ScenarioDTO      `json:"scenario"`
	Parties      []PartyDTO       `json:"parties"`
	Transactions []TransactionDTO `json:"transactions"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// FieldError is one failed field in a validation error.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
