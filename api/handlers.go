/*
handlers.go - HTTP API handlers for the loan engine

PURPOSE:
  Exposes the loan service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to loan.Service.

ENDPOINTS:
  Loans:
    GET    /api/loans                        List all loans
    POST   /api/loans                        Create loan from JSON
    GET    /api/loans/{id}                   Get loan with summary
    GET    /api/loans/{id}/schedule          Installments with paid/outstanding
    GET    /api/loans/{id}/charges           Charges with paid/outstanding

  Transactions:
    GET    /api/loans/{id}/transactions      History, reversed included
    POST   /api/loans/{id}/transactions      Post and reprocess

  Reprocessing:
    POST   /api/loans/{id}/reprocess         Manual full-history pass
    GET    /api/loans/{id}/early-payments    Recalculation view
    GET    /api/reprocess/runs               Audit log of passes

  Catalog:
    GET    /api/strategies                   Known strategy codes
    GET    /api/scenarios                    List demo scenarios
    POST   /api/scenarios/load               Load a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (duplicate loan)
  - 422: Allocation contract violation
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/warp/loan-engine/factory"
	"github.com/warp/loan-engine/loan"
	"github.com/warp/loan-engine/strategies"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *loan.Service
	Factory *factory.LoanFactory
	Log     logrus.FieldLogger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler around service.
func NewHandler(service *loan.Service, f *factory.LoanFactory, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{Service: service, Factory: f, Log: log}
}

// =============================================================================
// LOAN HANDLERS
// =============================================================================

// ListLoans returns all loans with their summaries.
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.Service.ListLoans(r.Context())
	if err != nil {
		h.writeServiceError(w, "Failed to list loans", err)
		return
	}

	dtos := make([]LoanDTO, len(loans))
	for i, l := range loans {
		dtos[i] = toLoanDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateLoan builds a loan from factory.LoanJSON and processes any
// transactions it carries.
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req factory.LoanJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	l, err := h.Factory.FromJSON(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid loan definition", err)
		return
	}

	if _, err := h.Service.CreateLoan(r.Context(), l); err != nil {
		h.writeServiceError(w, "Failed to create loan", err)
		return
	}

	stored, err := h.Service.GetLoan(r.Context(), l.ID)
	if err != nil {
		h.writeServiceError(w, "Failed to load loan", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanDTO(stored))
}

// GetLoan returns a single loan.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	l, ok := h.loadLoan(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(l))
}

// GetSchedule returns the loan's installments.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	l, ok := h.loadLoan(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toInstallmentDTOs(l))
}

// GetCharges returns the loan's charges.
func (h *Handler) GetCharges(w http.ResponseWriter, r *http.Request) {
	l, ok := h.loadLoan(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toChargeDTOs(l))
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// GetTransactions returns the loan's transaction history.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	l, ok := h.loadLoan(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(l))
}

// PostTransaction appends a transaction and reprocesses the loan.
// POST /api/loans/{id}/transactions
func (h *Handler) PostTransaction(w http.ResponseWriter, r *http.Request) {
	var req factory.TransactionJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	l, ok := h.loadLoan(w, r)
	if !ok {
		return
	}

	tx, err := h.Factory.TransactionFromJSON(l, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid transaction", err)
		return
	}

	posted, result, err := h.Service.PostTransaction(r.Context(), l.ID, tx)
	if err != nil {
		h.writeServiceError(w, "Failed to post transaction", err)
		return
	}

	writeJSON(w, http.StatusCreated, PostTransactionResponse{
		Transaction: toTransactionDTO(posted, l.Currency),
		Reprocess:   toReprocessResultDTO(result, l.Currency),
	})
}

// =============================================================================
// REPROCESSING HANDLERS
// =============================================================================

// ReprocessLoan runs a manual full-history pass.
// POST /api/loans/{id}/reprocess
func (h *Handler) ReprocessLoan(w http.ResponseWriter, r *http.Request) {
	l, ok := h.loadLoan(w, r)
	if !ok {
		return
	}

	result, err := h.Service.Reprocess(r.Context(), l.ID, loan.TriggerManual)
	if err != nil {
		h.writeServiceError(w, "Failed to reprocess loan", err)
		return
	}
	writeJSON(w, http.StatusOK, toReprocessResultDTO(result, l.Currency))
}

// GetEarlyPayments returns the per-date early-payment figures for one
// installment.
// GET /api/loans/{id}/early-payments?installment=2&lag_days=0
func (h *Handler) GetEarlyPayments(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(r.URL.Query().Get("installment"))
	if err != nil || number < 1 {
		writeError(w, http.StatusBadRequest, "installment must be a positive integer", err)
		return
	}
	lagDays := 0
	if v := r.URL.Query().Get("lag_days"); v != "" {
		if lagDays, err = strconv.Atoi(v); err != nil || lagDays < 0 {
			writeError(w, http.StatusBadRequest, "lag_days must be a non-negative integer", err)
			return
		}
	}

	l, ok := h.loadLoan(w, r)
	if !ok {
		return
	}

	figures, err := h.Service.EarlyPayments(r.Context(), l.ID, number, lagDays)
	if err != nil {
		h.writeServiceError(w, "Failed to compute early payments", err)
		return
	}

	dtos := make([]EarlyPaymentDTO, 0, len(figures))
	for date, m := range figures {
		dtos = append(dtos, EarlyPaymentDTO{Date: date.String(), Amount: amount(m, l.Currency)})
	}
	sort.Slice(dtos, func(i, j int) bool { return dtos[i].Date < dtos[j].Date })
	writeJSON(w, http.StatusOK, dtos)
}

// ListRuns returns the most recent reprocessing runs.
// GET /api/reprocess/runs?limit=50
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = n
	}

	runs, err := h.Service.Runs(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListStrategies returns every registered strategy code.
func (h *Handler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	codes := strategies.Codes()
	dtos := make([]StrategyDTO, len(codes))
	for i, code := range codes {
		desc, _ := strategies.Describe(code)
		dtos[i] = StrategyDTO{
			Code:        code,
			Description: desc,
			Default:     code == h.Factory.DefaultStrategy,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) loadLoan(w http.ResponseWriter, r *http.Request) (*loan.Loan, bool) {
	id := loan.LoanID(chi.URLParam(r, "id"))
	l, err := h.Service.GetLoan(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "Failed to load loan", err)
		return nil, false
	}
	return l, true
}

// writeServiceError maps service errors to HTTP status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, message string, err error) {
	switch {
	case loan.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, loan.ErrDuplicateLoan):
		writeError(w, http.StatusConflict, message, err)
	case loan.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, loan.ErrContractViolation):
		h.Log.WithError(err).Error("allocation contract violation")
		writeError(w, http.StatusUnprocessableEntity, message, err)
	default:
		h.Log.WithError(err).Error(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
