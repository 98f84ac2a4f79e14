/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Each scenario must load through the service and leave balances that
	match its description, with every balance equal to its log sum.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
)

func TestListScenarios(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/scenarios", nil, "owner-1")
	require.Equal(t, http.StatusOK, rec.Code)

	list := decodeBody[[]ScenarioDTO](t, rec)
	require.Len(t, list, len(scenarioLoaders))
	for _, s := range list {
		assert.Contains(t, scenarioLoaders, s.ID)
		assert.NotEmpty(t, s.Description)
	}
}

func TestLoadScenario_Balances(t *testing.T) {
	tests := []struct {
		id       string
		balances map[string]string
		txCount  int
	}{
		{
			id:       "supplier-payments",
			balances: map[string]string{"Northwind Wholesale": "60.00"},
			txCount:  2,
		},
		{
			id: "customer-transfer",
			balances: map[string]string{
				"Harbor Cafe":      "0.00",
				"Riverside Bistro": "80.00",
			},
			txCount: 1,
		},
		{
			id: "trading-month",
			balances: map[string]string{
				"Golden Mill Flour":     "1580.00",
				"Valley Dairy Co":       "210.25",
				"Corner Cafe":           "265.00",
				"Grand Hotel":           "2350.00",
				"Saturday Market Stall": "395.75",
			},
			txCount: 14,
		},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			ts := newTestServer(t)

			rec := ts.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: tt.id}, "owner-1")
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

			resp := decodeBody[LoadScenarioResponse](t, rec)
			assert.Equal(t, tt.id, resp.Scenario.ID)
			assert.Len(t, resp.Transactions, tt.txCount)
			require.Len(t, resp.Parties, len(tt.balances))
			for _, p := range resp.Parties {
				assert.Equal(t, tt.balances[p.Name], p.Balance, p.Name)

				audit, err := ts.svc.VerifyBalance(context.Background(), "owner-1", ledger.PartyModel(p.Model), ledger.PartyID(p.ID))
				require.NoError(t, err)
				assert.True(t, audit.Consistent, p.Name)
			}
		})
	}
}

func TestLoadScenario_Errors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"}, "owner-1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SCENARIO_NOT_FOUND", decodeBody[ErrorResponse](t, rec).Code)

	rec = ts.do(http.MethodPost, "/api/scenarios/load", map[string]string{}, "owner-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Party names are unique per owner, so a scenario loads once.
	rec = ts.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "supplier-payments"}, "owner-1")
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "supplier-payments"}, "owner-1")
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Another owner gets its own copy.
	rec = ts.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "supplier-payments"}, "owner-2")
	assert.Equal(t, http.StatusCreated, rec.Code)
}
