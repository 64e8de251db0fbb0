package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_AllLoad(t *testing.T) {
	_, router := newTestServer(t)

	rec := do(t, router, http.MethodGet, "/api/scenarios", "")
	require.Equal(t, http.StatusOK, rec.Code)
	scenarios := decode[[]ScenarioDTO](t, rec)
	require.Len(t, scenarios, len(demoScenarios))

	for _, s := range scenarios {
		t.Run(s.ID, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "`+s.ID+`"}`)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, s.ID, decode[map[string]string](t, rec)["scenario"])

			rec = do(t, router, http.MethodGet, "/api/scenarios/current", "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, s.ID, decode[ScenarioDTO](t, rec).ID)
		})
	}

	rec = do(t, router, http.MethodGet, "/api/loans", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]LoanDTO](t, rec), len(demoScenarios))
}

func TestScenarios_ReloadReplacesOnlyItsLoan(t *testing.T) {
	_, router := newTestServer(t)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/loans", twoInstallmentLoan).Code)

	for i := 0; i < 2; i++ {
		rec := do(t, router, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "on-time"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := do(t, router, http.MethodGet, "/api/loans/demo-on-time", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[LoanDTO](t, rec)
	assert.Equal(t, "0.00", got.Summary.Outstanding)
	assert.Equal(t, 3, got.Summary.InstallmentsPaid)

	rec = do(t, router, http.MethodGet, "/api/loans/demo-on-time/transactions", "")
	assert.Len(t, decode[[]TransactionDTO](t, rec), 3, "reloading starts from a clean loan")

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/loans/loan-1", "").Code)
}

func TestScenarios_Outcomes(t *testing.T) {
	_, router := newTestServer(t)

	load := func(id string) {
		t.Helper()
		rec := do(t, router, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "`+id+`"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	t.Run("backdated reverses one transaction", func(t *testing.T) {
		load("backdated")
		rec := do(t, router, http.MethodGet, "/api/loans/demo-backdated/transactions", "")
		history := decode[[]TransactionDTO](t, rec)
		require.Len(t, history, 3)
		var reversed []TransactionDTO
		for _, tx := range history {
			if tx.Reversed {
				reversed = append(reversed, tx)
			}
		}
		require.Len(t, reversed, 1)
		assert.Equal(t, "2024-02-10", reversed[0].Date)
		assert.Empty(t, reversed[0].ExternalID, "the reversed original gives up its external id")
	})

	t.Run("write-off clears the loan", func(t *testing.T) {
		load("write-off")
		got := decode[LoanDTO](t, do(t, router, http.MethodGet, "/api/loans/demo-write-off", ""))
		assert.Equal(t, "0.00", got.Summary.Outstanding)
		assert.Equal(t, "220.00", got.Summary.WrittenOff)
	})

	t.Run("charges are settled", func(t *testing.T) {
		load("charges")
		charges := decode[[]ChargeDTO](t, do(t, router, http.MethodGet, "/api/loans/demo-charges/charges", ""))
		require.Len(t, charges, 2)
		byID := map[string]ChargeDTO{}
		for _, c := range charges {
			byID[c.ID] = c
		}
		assert.True(t, byID["service-fee"].FullyPaid)
		assert.Equal(t, "13.00", byID["late-penalty"].Paid, "charge payment plus the repayment's penalty portion")
	})

	t.Run("overpayment is kept", func(t *testing.T) {
		load("overpayment")
		got := decode[LoanDTO](t, do(t, router, http.MethodGet, "/api/loans/demo-overpayment", ""))
		assert.Equal(t, "30.00", got.Summary.Overpaid)
		assert.Equal(t, "10.00", got.Summary.Waived)
		assert.Equal(t, "0.00", got.Summary.Outstanding)
	})
}

func TestLoadScenario_Unknown(t *testing.T) {
	_, router := newTestServer(t)

	rec := do(t, router, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "nope"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, router, http.MethodGet, "/api/scenarios/current", "")
	assert.Equal(t, "null\n", rec.Body.String())
}
