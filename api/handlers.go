/*
handlers.go - HTTP API handlers for the ledger engine

PURPOSE:
  Exposes the ledger service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to ledger.Service.

ENDPOINTS:
  Transactions:
    POST   /api/transactions                  Create transaction
    GET    /api/transactions                  List with opening/running balances
    GET    /api/transactions/opening-balance  Opening balance for a party page
    GET    /api/transactions/summaries        Rollups for a period
    PUT    /api/transactions/{id}             Full-replace update
    DELETE /api/transactions/{id}             Delete

  Parties:
    POST   /api/parties                       Open a party account
    GET    /api/parties/{model}/{id}          Get party with cached balance
    GET    /api/parties/{model}/{id}/audit    Compare cache with the log
    POST   /api/parties/{model}/{id}/repair   Rebuild cache from the log

  Scenarios:
    GET    /api/scenarios                     List demo scenarios
    POST   /api/scenarios/load                Load a demo scenario

REQUEST FLOW:
  1. Resolve the owner from the auth context
  2. Parse and validate input
  3. Call ledger.Service
  4. Serialize response
  5. Map errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, type not allowed for party
  - 401: Missing or invalid bearer token (auth middleware)
  - 403: Row owned by another owner
  - 404: Transaction or party not found
  - 409: Duplicate party name; concurrent modification (retryable)
  - 500: Internal errors (details logged, never returned)

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/ledger-engine/auth"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/logger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *ledger.Service
	Health  Pinger

	validate *validator.Validate
}

// NewHandler creates a new handler for the given service.
func NewHandler(svc *ledger.Service, health Pinger) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &Handler{Service: svc, Health: health, validate: v}
}

// decode reads a JSON body into dst and runs struct validation.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &ledger.ValidationError{Field: "body", Message: "invalid JSON"}
	}
	return h.validate.Struct(dst)
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// CreateTransaction books a transaction against a party.
// POST /api/transactions
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		respondError(w, r, err)
		return
	}

	tx, err := h.Service.CreateTransaction(r.Context(), auth.OwnerFrom(r.Context()), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(*tx))
}

// ListTransactions returns one page of the caller's log.
// GET /api/transactions?page=&limit=&sortOrder=&search=&dateRange=&partyType=&partyId=
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.Service.ListTransactions(r.Context(), auth.OwnerFrom(r.Context()), ledger.ListQuery{
		Page:      queryInt(q.Get("page")),
		Limit:     queryInt(q.Get("limit")),
		SortOrder: q.Get("sortOrder"),
		Search:    q.Get("search"),
		DateRange: q.Get("dateRange"),
		PartyType: q.Get("partyType"),
		PartyID:   q.Get("partyId"),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(page))
}

// GetOpeningBalance returns the boundary balance for one page of a party.
// GET /api/transactions/opening-balance?partyId=&partyModel=&page=&limit=&sortOrder=
func (h *Handler) GetOpeningBalance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var model ledger.PartyModel
	if raw := q.Get("partyModel"); raw != "" {
		m, ok := ledger.ParsePartyModel(raw)
		if !ok {
			respondError(w, r, &ledger.ValidationError{Field: "partyModel", Message: "must be Supplier or Customer"})
			return
		}
		model = m
	}

	ob, err := h.Service.GetOpeningBalance(r.Context(), auth.OwnerFrom(r.Context()),
		ledger.PartyID(q.Get("partyId")), model,
		queryInt(q.Get("page")), queryInt(q.Get("limit")), q.Get("sortOrder"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OpeningBalanceDTO{
		OpeningBalance:      ob.OpeningBalance.StringFixed(2),
		TotalCurrentBalance: ob.TotalCurrentBalance.StringFixed(2),
	})
}

// GetSummaries returns dashboard rollups.
// GET /api/transactions/summaries?period=month
func (h *Handler) GetSummaries(w http.ResponseWriter, r *http.Request) {
	s, err := h.Service.GetSummaries(r.Context(), auth.OwnerFrom(r.Context()), r.URL.Query().Get("period"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummariesDTO(s))
}

// UpdateTransaction replaces every mutable field of a transaction.
// PUT /api/transactions/{id}
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		respondError(w, r, err)
		return
	}

	id := ledger.TransactionID(chi.URLParam(r, "id"))
	tx, err := h.Service.UpdateTransaction(r.Context(), auth.OwnerFrom(r.Context()), id, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*tx))
}

// DeleteTransaction removes a transaction and reverses its balance effect.
// DELETE /api/transactions/{id}
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransactionID(chi.URLParam(r, "id"))
	if err := h.Service.DeleteTransaction(r.Context(), auth.OwnerFrom(r.Context()), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PARTY HANDLERS
// =============================================================================

// CreateParty opens a supplier or customer account.
// POST /api/parties
func (h *Handler) CreateParty(w http.ResponseWriter, r *http.Request) {
	var req CreatePartyRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	p, err := h.Service.CreateParty(r.Context(), auth.OwnerFrom(r.Context()), ledger.PartyInput{
		Model:   ledger.PartyModel(req.Model),
		Name:    req.Name,
		Phone:   req.Phone,
		Email:   req.Email,
		Address: req.Address,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPartyDTO(*p))
}

// partyRef parses {model}/{id} path parameters.
func partyRef(r *http.Request) (ledger.PartyModel, ledger.PartyID, error) {
	model, ok := ledger.ParsePartyModel(chi.URLParam(r, "model"))
	if !ok {
		return "", "", &ledger.ValidationError{Field: "model", Message: "must be Supplier or Customer"}
	}
	return model, ledger.PartyID(chi.URLParam(r, "id")), nil
}

// GetParty returns a party with its cached balance.
// GET /api/parties/{model}/{id}
func (h *Handler) GetParty(w http.ResponseWriter, r *http.Request) {
	model, id, err := partyRef(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	p, err := h.Service.GetParty(r.Context(), auth.OwnerFrom(r.Context()), model, id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPartyDTO(*p))
}

// AuditParty compares the cached balance with the transaction log.
// GET /api/parties/{model}/{id}/audit
func (h *Handler) AuditParty(w http.ResponseWriter, r *http.Request) {
	model, id, err := partyRef(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	a, err := h.Service.VerifyBalance(r.Context(), auth.OwnerFrom(r.Context()), model, id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceAuditDTO(*a))
}

// RepairParty rebuilds the cached balance from the log.
// POST /api/parties/{model}/{id}/repair
func (h *Handler) RepairParty(w http.ResponseWriter, r *http.Request) {
	model, id, err := partyRef(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	a, err := h.Service.RepairBalance(r.Context(), auth.OwnerFrom(r.Context()), model, id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceAuditDTO(*a))
}

// =============================================================================
// HEALTH
// =============================================================================

// HealthCheck reports liveness and storage reachability.
// GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health.Ping(r.Context()); err != nil {
			logger.FromContext(r.Context()).Error("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	writeJSON(w, status, resp)
}

// respondError maps a domain error to an HTTP response.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verrs    validator.ValidationErrors
		fieldErr *ledger.ValidationError
		mismatch *ledger.TypeMismatchError
	)

	switch {
	case errors.As(err, &verrs):
		details := make([]FieldError, len(verrs))
		for i, fe := range verrs {
			details[i] = FieldError{Field: fe.Field(), Message: validationMessage(fe)}
		}
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Code: "VALIDATION_ERROR", Details: details})

	case errors.As(err, &fieldErr):
		writeError(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation failed",
			Code:    "VALIDATION_ERROR",
			Details: []FieldError{{Field: fieldErr.Field, Message: fieldErr.Message}},
		})

	case errors.As(err, &mismatch):
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: mismatch.Error(), Code: "INVALID_TYPE_FOR_PARTY"})

	case errors.Is(err, ledger.ErrUnauthorized):
		writeError(w, http.StatusForbidden, ErrorResponse{Error: err.Error(), Code: "FORBIDDEN"})

	case errors.Is(err, ledger.ErrTransactionNotFound):
		writeError(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "TRANSACTION_NOT_FOUND"})

	case errors.Is(err, ledger.ErrPartyNotFound):
		writeError(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "PARTY_NOT_FOUND"})

	case errors.Is(err, ledger.ErrDuplicateParty):
		writeError(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "DUPLICATE_PARTY"})

	case ledger.IsRetryable(err):
		writeError(w, http.StatusConflict, ErrorResponse{Error: ledger.ErrConflict.Error(), Code: "CONFLICT", Retryable: true})

	default:
		logger.FromContext(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: "INTERNAL"})
	}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "email":
		return "must be a valid email address"
	}
	return "failed " + fe.Tag() + " validation"
}

// queryInt parses an integer query parameter; absent or malformed is 0,
// which the paging layer resolves to its default.
func queryInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
