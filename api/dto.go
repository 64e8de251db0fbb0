/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Loans:         LoanDTO, SummaryDTO (requests use factory.LoanJSON)
  Schedule:      InstallmentDTO
  Charges:       ChargeDTO, InstallmentChargeDTO
  Transactions:  TransactionDTO, ChargeLinkDTO (requests use
                 factory.TransactionJSON)
  Reprocessing:  ReprocessResultDTO, RunDTO, EarlyPaymentDTO
  Catalog:       StrategyDTO, ScenarioDTO

AMOUNTS:
  Always decimal strings with the currency's decimal places.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/loan.go: Request JSON types
*/
package api

import (
	"sort"
	"time"

	"github.com/warp/loan-engine/loan"
)

// =============================================================================
// LOANS
// =============================================================================

type LoanDTO struct {
	ID               string     `json:"id"`
	Name             string     `json:"name,omitempty"`
	Currency         string     `json:"currency"`
	DecimalPlaces    int32      `json:"decimal_places"`
	Principal        string     `json:"principal"`
	DisbursementDate string     `json:"disbursement_date"`
	Strategy         string     `json:"strategy"`
	CreatedAt        time.Time  `json:"created_at"`
	LastReprocessed  *time.Time `json:"last_reprocessed,omitempty"`
	Summary          SummaryDTO `json:"summary"`
}

type SummaryDTO struct {
	PrincipalDue      string `json:"principal_due"`
	InterestDue       string `json:"interest_due"`
	FeeDue            string `json:"fee_due"`
	PenaltyDue        string `json:"penalty_due"`
	PrincipalPaid     string `json:"principal_paid"`
	InterestPaid      string `json:"interest_paid"`
	FeePaid           string `json:"fee_paid"`
	PenaltyPaid       string `json:"penalty_paid"`
	Waived            string `json:"waived"`
	WrittenOff        string `json:"written_off"`
	Outstanding       string `json:"outstanding"`
	Overpaid          string `json:"overpaid"`
	InstallmentsPaid  int    `json:"installments_paid"`
	InstallmentsTotal int    `json:"installments_total"`
}

func toLoanDTO(l *loan.Loan) LoanDTO {
	return LoanDTO{
		ID:               string(l.ID),
		Name:             l.Name,
		Currency:         l.Currency.Code,
		DecimalPlaces:    l.Currency.DecimalPlaces,
		Principal:        amount(l.Principal, l.Currency),
		DisbursementDate: l.DisbursementDate.String(),
		Strategy:         l.StrategyCode,
		CreatedAt:        l.CreatedAt,
		LastReprocessed:  l.LastReprocessed,
		Summary:          toSummaryDTO(l.Summary(), l.Currency),
	}
}

func toSummaryDTO(s loan.Summary, c loan.Currency) SummaryDTO {
	return SummaryDTO{
		PrincipalDue:      amount(s.PrincipalDue, c),
		InterestDue:       amount(s.InterestDue, c),
		FeeDue:            amount(s.FeeDue, c),
		PenaltyDue:        amount(s.PenaltyDue, c),
		PrincipalPaid:     amount(s.PrincipalPaid, c),
		InterestPaid:      amount(s.InterestPaid, c),
		FeePaid:           amount(s.FeePaid, c),
		PenaltyPaid:       amount(s.PenaltyPaid, c),
		Waived:            amount(s.Waived, c),
		WrittenOff:        amount(s.WrittenOff, c),
		Outstanding:       amount(s.Outstanding, c),
		Overpaid:          amount(s.Overpaid, c),
		InstallmentsPaid:  s.InstallmentsPaid,
		InstallmentsTotal: s.InstallmentsTotal,
	}
}

// =============================================================================
// SCHEDULE
// =============================================================================

type InstallmentDTO struct {
	Number           int     `json:"number"`
	FromDate         string  `json:"from_date"`
	DueDate          string  `json:"due_date"`
	Principal        string  `json:"principal"`
	Interest         string  `json:"interest"`
	Fee              string  `json:"fee"`
	Penalty          string  `json:"penalty"`
	PrincipalPaid    string  `json:"principal_paid"`
	InterestPaid     string  `json:"interest_paid"`
	InterestWaived   string  `json:"interest_waived"`
	FeePaid          string  `json:"fee_paid"`
	FeeWaived        string  `json:"fee_waived"`
	PenaltyPaid      string  `json:"penalty_paid"`
	PenaltyWaived    string  `json:"penalty_waived"`
	WrittenOff       string  `json:"written_off"`
	PaidInAdvance    string  `json:"paid_in_advance"`
	PaidLate         string  `json:"paid_late"`
	Outstanding      string  `json:"outstanding"`
	ObligationsMet   bool    `json:"obligations_met"`
	ObligationsMetOn *string `json:"obligations_met_on,omitempty"`
}

func toInstallmentDTOs(l *loan.Loan) []InstallmentDTO {
	c := l.Currency
	out := make([]InstallmentDTO, 0, len(l.Installments))
	for _, i := range l.Installments {
		dto := InstallmentDTO{
			Number:         i.Number,
			FromDate:       i.FromDate.String(),
			DueDate:        i.DueDate.String(),
			Principal:      amount(i.Principal, c),
			Interest:       amount(i.Interest, c),
			Fee:            amount(i.FeeCharges, c),
			Penalty:        amount(i.PenaltyCharges, c),
			PrincipalPaid:  amount(i.PrincipalCompleted, c),
			InterestPaid:   amount(i.InterestPaid, c),
			InterestWaived: amount(i.InterestWaived, c),
			FeePaid:        amount(i.FeeChargesPaid, c),
			FeeWaived:      amount(i.FeeChargesWaived, c),
			PenaltyPaid:    amount(i.PenaltyChargesPaid, c),
			PenaltyWaived:  amount(i.PenaltyChargesWaived, c),
			WrittenOff: amount(loan.Zero(c).
				Plus(i.PrincipalWrittenOff).
				Plus(i.InterestWrittenOff).
				Plus(i.FeeChargesWrittenOff).
				Plus(i.PenaltyChargesWrittenOff), c),
			PaidInAdvance:  amount(i.TotalPaidInAdvance, c),
			PaidLate:       amount(i.TotalPaidLate, c),
			Outstanding:    amount(i.TotalOutstanding(c), c),
			ObligationsMet: i.ObligationsMet,
		}
		if i.ObligationsMetOn != nil {
			on := i.ObligationsMetOn.String()
			dto.ObligationsMetOn = &on
		}
		out = append(out, dto)
	}
	return out
}

// =============================================================================
// CHARGES
// =============================================================================

type ChargeDTO struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name,omitempty"`
	Kind         string                 `json:"kind"`
	Time         string                 `json:"time"`
	DueDate      string                 `json:"due_date,omitempty"`
	Amount       string                 `json:"amount"`
	Paid         string                 `json:"paid"`
	Waived       string                 `json:"waived"`
	WrittenOff   string                 `json:"written_off"`
	Outstanding  string                 `json:"outstanding"`
	FullyPaid    bool                   `json:"fully_paid"`
	Installments []InstallmentChargeDTO `json:"installments,omitempty"`
}

type InstallmentChargeDTO struct {
	InstallmentNumber int    `json:"installment_number"`
	DueDate           string `json:"due_date"`
	Amount            string `json:"amount"`
	Paid              string `json:"paid"`
	Waived            string `json:"waived"`
	Outstanding       string `json:"outstanding"`
}

func toChargeDTOs(l *loan.Loan) []ChargeDTO {
	c := l.Currency
	out := make([]ChargeDTO, 0, len(l.Charges))
	for _, ch := range l.Charges {
		dto := ChargeDTO{
			ID:          string(ch.ID),
			Name:        ch.Name,
			Kind:        string(ch.Kind),
			Time:        string(ch.Time),
			Amount:      amount(ch.Amount, c),
			Paid:        amount(ch.AmountPaid, c),
			Waived:      amount(ch.AmountWaived, c),
			WrittenOff:  amount(ch.AmountWrittenOff, c),
			Outstanding: amount(ch.AmountOutstanding(), c),
			FullyPaid:   ch.Paid || ch.Waived,
		}
		if !ch.DueDate.IsZero() {
			dto.DueDate = ch.DueDate.String()
		}
		for _, share := range ch.Installments {
			dto.Installments = append(dto.Installments, InstallmentChargeDTO{
				InstallmentNumber: share.InstallmentNumber,
				DueDate:           share.DueDate.String(),
				Amount:            amount(share.Amount, c),
				Paid:              amount(share.AmountPaid, c),
				Waived:            amount(share.AmountWaived, c),
				Outstanding:       amount(share.AmountOutstanding(), c),
			})
		}
		out = append(out, dto)
	}
	return out
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type TransactionDTO struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Date        string          `json:"date"`
	Amount      string          `json:"amount"`
	ExternalID  string          `json:"external_id,omitempty"`
	Principal   string          `json:"principal"`
	Interest    string          `json:"interest"`
	Fee         string          `json:"fee"`
	Penalty     string          `json:"penalty"`
	Overpayment string          `json:"overpayment"`
	Reversed    bool            `json:"reversed"`
	Charges     []ChargeLinkDTO `json:"charges,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type ChargeLinkDTO struct {
	ChargeID          string `json:"charge_id"`
	Kind              string `json:"kind"`
	Amount            string `json:"amount"`
	InstallmentNumber int    `json:"installment_number,omitempty"`
}

func toTransactionDTO(tx *loan.Transaction, c loan.Currency) TransactionDTO {
	dto := TransactionDTO{
		ID:          string(tx.ID),
		Type:        string(tx.Type),
		Date:        tx.Date.String(),
		Amount:      amount(tx.Amount, c),
		ExternalID:  tx.ExternalID,
		Principal:   amount(tx.Principal, c),
		Interest:    amount(tx.Interest, c),
		Fee:         amount(tx.FeeCharges, c),
		Penalty:     amount(tx.PenaltyCharges, c),
		Overpayment: amount(tx.Overpayment, c),
		Reversed:    tx.Reversed,
		CreatedAt:   tx.CreatedAt,
	}
	for _, link := range tx.ChargesPaid {
		dto.Charges = append(dto.Charges, ChargeLinkDTO{
			ChargeID:          string(link.ChargeID),
			Kind:              string(link.Kind),
			Amount:            amount(link.Amount, c),
			InstallmentNumber: link.InstallmentNumber,
		})
	}
	return dto
}

// toTransactionDTOs lists transactions by date, reversed ones included.
func toTransactionDTOs(l *loan.Loan) []TransactionDTO {
	txs := append([]*loan.Transaction(nil), l.Transactions...)
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Date.Before(txs[j].Date) })
	out := make([]TransactionDTO, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionDTO(tx, l.Currency))
	}
	return out
}

// =============================================================================
// REPROCESSING
// =============================================================================

type ReprocessResultDTO struct {
	LoanID       string           `json:"loan_id"`
	Reversed     []string         `json:"reversed"`
	Replacements []TransactionDTO `json:"replacements"`
	Summary      SummaryDTO       `json:"summary"`
}

func toReprocessResultDTO(r *loan.ReprocessResult, c loan.Currency) ReprocessResultDTO {
	dto := ReprocessResultDTO{
		LoanID:       string(r.LoanID),
		Reversed:     make([]string, 0, len(r.Reversed)),
		Replacements: make([]TransactionDTO, 0, len(r.Replacements)),
		Summary:      toSummaryDTO(r.Summary, c),
	}
	for _, id := range r.Reversed {
		dto.Reversed = append(dto.Reversed, string(id))
	}
	for _, tx := range r.Replacements {
		dto.Replacements = append(dto.Replacements, toTransactionDTO(tx, c))
	}
	return dto
}

// PostTransactionResponse is returned by POST /api/loans/{id}/transactions.
type PostTransactionResponse struct {
	Transaction TransactionDTO     `json:"transaction"`
	Reprocess   ReprocessResultDTO `json:"reprocess"`
}

type RunDTO struct {
	ID         string    `json:"id"`
	LoanID     string    `json:"loan_id"`
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Reversed   int       `json:"reversed"`
	Error      string    `json:"error,omitempty"`
}

func toRunDTO(r loan.ReprocessRun) RunDTO {
	return RunDTO{
		ID:         r.ID,
		LoanID:     string(r.LoanID),
		Trigger:    string(r.Trigger),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Reversed:   r.Reversed,
		Error:      r.Error,
	}
}

type EarlyPaymentDTO struct {
	Date   string `json:"date"`
	Amount string `json:"amount"`
}

// =============================================================================
// CATALOG
// =============================================================================

type StrategyDTO struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Default     bool   `json:"default"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the error body for all endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func amount(m loan.Money, c loan.Currency) string {
	return m.Amount().StringFixed(c.DecimalPlaces)
}
