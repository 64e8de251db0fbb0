/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built loans that demonstrate the allocation engine: each
	scenario creates one loan from JSON and then posts follow-up
	transactions through the service, exactly as a client would.

AVAILABLE SCENARIOS:

	on-time:        Three installments repaid on their due dates
	backdated:      A back-dated repayment reverses and replaces a later one
	write-off:      Partial repayment, then the remainder is written off
	charges:        Installment fee and penalty paid by a charge payment
	overpayment:    A repayment larger than everything owed

HOW SCENARIOS WORK:
 1. Delete the scenario's loan if it already exists
 2. Create the loan via factory JSON (initial transactions included)
 3. Post each follow-up transaction, reprocessing after every one

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "backdated"}

ADDING NEW SCENARIOS:
 1. Add a demoScenario to 'demoScenarios' with its loan JSON
 2. List follow-up transactions in posting order

NOTE:

	Scenarios overwrite their own loan IDs only. Other loans are untouched.

SEE ALSO:
  - handlers.go: Loan and transaction handlers
  - factory/loan.go: Loan JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/warp/loan-engine/factory"
	"github.com/warp/loan-engine/loan"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type demoScenario struct {
	ScenarioDTO
	loanJSON  string
	followUps []factory.TransactionJSON
}

const threeInstallments = `
	"currency": "USD",
	"principal": "300.00",
	"disbursement_date": "2024-01-01",
	"installments": [
		{"due_date": "2024-02-01", "principal": "100", "interest": "10"},
		{"due_date": "2024-03-01", "principal": "100", "interest": "10"},
		{"due_date": "2024-04-01", "principal": "100", "interest": "10"}
	]`

var demoScenarios = []demoScenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "on-time",
			Name:        "On-Time Repayments",
			Description: "Three installments repaid in full on their due dates",
		},
		loanJSON: `{"id": "demo-on-time", "name": "On-time borrower",` + threeInstallments + `}`,
		followUps: []factory.TransactionJSON{
			{Type: "repayment", Date: "2024-02-01", Amount: "110"},
			{Type: "repayment", Date: "2024-03-01", Amount: "110"},
			{Type: "repayment", Date: "2024-04-01", Amount: "110"},
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "backdated",
			Name:        "Back-Dated Correction",
			Description: "A late-posted earlier repayment shifts the split of a later one, which is reversed and replaced",
		},
		loanJSON: `{"id": "demo-backdated", "name": "Back-dated correction",` + threeInstallments + `}`,
		followUps: []factory.TransactionJSON{
			{Type: "repayment", Date: "2024-02-10", Amount: "120", ExternalID: "bank-ref-2"},
			{Type: "repayment", Date: "2024-02-01", Amount: "50", ExternalID: "bank-ref-1"},
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "write-off",
			Name:        "Write-Off",
			Description: "First installment repaid, everything else written off",
		},
		loanJSON: `{"id": "demo-write-off", "name": "Written-off borrower",` + threeInstallments + `}`,
		followUps: []factory.TransactionJSON{
			{Type: "repayment", Date: "2024-02-01", Amount: "110"},
			{Type: "write_off", Date: "2024-05-15"},
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "charges",
			Name:        "Charges",
			Description: "Installment fee and a late penalty settled by a charge payment",
		},
		loanJSON: `{
			"id": "demo-charges",
			"name": "Charged borrower",
			"currency": "USD",
			"principal": "200.00",
			"disbursement_date": "2024-01-01",
			"schedule": {"installments": 2, "annual_interest_rate": "0.12"},
			"charges": [
				{"id": "service-fee", "name": "Service fee", "kind": "fee", "time": "installment_fee", "amount": "10"},
				{"id": "late-penalty", "name": "Late penalty", "kind": "penalty", "time": "specified_due_date",
				 "amount": "15", "due_date": "2024-02-15"}
			]
		}`,
		followUps: []factory.TransactionJSON{
			{Type: "charge_payment", Date: "2024-02-20", Amount: "20", Charges: []string{"late-penalty", "service-fee"}},
			{Type: "repayment", Date: "2024-02-25", Amount: "105"},
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "overpayment",
			Name:        "Overpayment",
			Description: "A single repayment exceeds everything owed; the excess is kept as overpayment",
		},
		loanJSON: `{"id": "demo-overpayment", "name": "Overpaying borrower",` + threeInstallments + `}`,
		followUps: []factory.TransactionJSON{
			{Type: "waive_interest", Date: "2024-01-20", Amount: "10"},
			{Type: "repayment", Date: "2024-01-25", Amount: "350"},
		},
	},
}

func findScenario(id string) (demoScenario, bool) {
	for _, s := range demoScenarios {
		if s.ID == id {
			return s, true
		}
	}
	return demoScenario{}, false
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(demoScenarios))
	for i, s := range demoScenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the most recently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	s, ok := findScenario(current)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.ScenarioDTO)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	loanID, err := h.loadScenario(r.Context(), s)
	if err != nil {
		h.writeServiceError(w, fmt.Sprintf("Failed to load scenario %s", s.ID), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = s.ID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": s.ID,
		"loan_id":  string(loanID),
	})
}

// =============================================================================
// SCENARIO LOADER
// =============================================================================

func (h *Handler) loadScenario(ctx context.Context, s demoScenario) (loan.LoanID, error) {
	l, err := h.Factory.ParseLoan(s.loanJSON)
	if err != nil {
		return "", err
	}

	if err := h.Service.Store.DeleteLoan(ctx, l.ID); err != nil && !errors.Is(err, loan.ErrLoanNotFound) {
		return "", fmt.Errorf("failed to remove previous loan: %w", err)
	}
	if _, err := h.Service.CreateLoan(ctx, l); err != nil {
		return "", err
	}

	for _, tj := range s.followUps {
		tx, err := h.Factory.TransactionFromJSON(l, tj)
		if err != nil {
			return "", err
		}
		if _, _, err := h.Service.PostTransaction(ctx, l.ID, tx); err != nil {
			return "", fmt.Errorf("%s on %s: %w", tj.Type, tj.Date, err)
		}
	}

	h.Log.WithField("scenario", s.ID).WithField("loan_id", l.ID).Info("scenario loaded")
	return l.ID, nil
}
