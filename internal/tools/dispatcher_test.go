package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transfa/assistant-service/internal/app"
	"github.com/transfa/assistant-service/internal/domain"
	"github.com/transfa/assistant-service/internal/ledger"
	"github.com/transfa/assistant-service/internal/store"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.MemoryRepository) {
	t.Helper()
	repo := store.NewMemoryRepository()
	store.SeedDemoData(repo, time.Now().UTC())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	accounts := app.NewService(repo, logger)
	transfers := ledger.New(repo, nil, nil, logger, ledger.NewAmountPolicy(decimal.Zero, "AED"))
	return NewDispatcher(accounts, transfers, logger, nil), repo
}

func execute(t *testing.T, d *Dispatcher, user uuid.UUID, name, args string) map[string]any {
	t.Helper()
	out := d.Execute(context.Background(), user, Call{ID: "call-1", Name: name, Arguments: json.RawMessage(args)})
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m), out)
	return m
}

func executeList(t *testing.T, d *Dispatcher, user uuid.UUID, name, args string) []map[string]any {
	t.Helper()
	out := d.Execute(context.Background(), user, Call{ID: "call-1", Name: name, Arguments: json.RawMessage(args)})
	var list []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &list), out)
	return list
}

func TestExecute_GetBalance(t *testing.T) {
	d, _ := newTestDispatcher(t)

	raw := d.Execute(context.Background(), store.DemoAliceID, Call{Name: "get_balance"})
	assert.True(t, strings.HasPrefix(raw, "["), raw)
	assert.Contains(t, raw, `"balance":15000.00`)
	assert.NotContains(t, raw, `"success"`)

	accounts := executeList(t, d, store.DemoAliceID, "get_balance", `{}`)
	assert.Len(t, accounts, 2)
	assert.Equal(t, "AED", accounts[0]["currency"])
}

func TestExecute_ReadToolsReturnArrays(t *testing.T) {
	d, _ := newTestDispatcher(t)

	for _, name := range []string{"get_balance", "get_transactions", "get_spend_by_category", "get_beneficiaries", "get_pending_transfers", "get_transfer_history"} {
		t.Run(name, func(t *testing.T) {
			out := d.Execute(context.Background(), store.DemoAliceID, Call{Name: name, Arguments: json.RawMessage(`{}`)})
			var list []map[string]any
			require.NoError(t, json.Unmarshal([]byte(out), &list), out)

			msg, failed, err := FailureOf(out)
			require.NoError(t, err)
			assert.False(t, failed, msg)
		})
	}
}

func TestFailureOf(t *testing.T) {
	tests := []struct {
		result  string
		failed  bool
		message string
		wantErr bool
	}{
		{result: `[]`},
		{result: `{"success":true,"transfer_id":"x"}`},
		{result: `{"success":false,"error":"Transfer not found or already processed"}`, failed: true, message: "Transfer not found or already processed"},
		{result: `{"transfer_id":"x"}`, failed: true},
		{result: `[{"broken"`, wantErr: true},
		{result: `not json`, wantErr: true},
	}
	for _, tt := range tests {
		msg, failed, err := FailureOf(tt.result)
		if tt.wantErr {
			assert.Error(t, err, tt.result)
			continue
		}
		require.NoError(t, err, tt.result)
		assert.Equal(t, tt.failed, failed, tt.result)
		assert.Equal(t, tt.message, msg, tt.result)
	}
}

func TestExecute_UnknownBeneficiary(t *testing.T) {
	d, _ := newTestDispatcher(t)

	res := execute(t, d, store.DemoAliceID, "propose_transfer",
		`{"from_account_name":"Current","to_beneficiary_nickname":"Bob","amount":100}`)
	assert.Equal(t, false, res["success"])
	assert.Equal(t, "Beneficiary 'Bob' not found. Add them as a beneficiary first.", res["error"])
}

func TestExecute_ProposeApproveOnce(t *testing.T) {
	d, repo := newTestDispatcher(t)

	res := execute(t, d, store.DemoAliceID, "propose_transfer",
		`{"from_account_name":"current","to_beneficiary_nickname":"carol","amount":"250.5","description":"Dinner"}`)
	require.Equal(t, true, res["success"], res)
	assert.Equal(t, "250.50", formatNumber(res["amount"]))
	assert.Equal(t, "pending", res["status"])
	id := res["transfer_id"].(string)

	approved := execute(t, d, store.DemoAliceID, "approve_transfer", `{"transfer_id":"`+id+`"}`)
	require.Equal(t, true, approved["success"], approved)
	assert.Equal(t, "14749.50", formatNumber(approved["new_balance"]))
	assert.True(t, strings.HasPrefix(approved["reference_number"].(string), "TRF-"))

	again := execute(t, d, store.DemoAliceID, "approve_transfer", `{"transfer_id":"`+id+`"}`)
	assert.Equal(t, false, again["success"])
	assert.Equal(t, "Transfer not found or already processed", again["error"])

	p, ok := repo.Proposal(uuid.MustParse(id))
	require.True(t, ok)
	assert.Equal(t, domain.TransferStatusCompleted, p.Status)
}

func formatNumber(v any) string {
	f, ok := v.(float64)
	if !ok {
		return ""
	}
	return decimal.NewFromFloat(f).StringFixed(2)
}

func TestExecute_AmountValidation(t *testing.T) {
	d, _ := newTestDispatcher(t)

	tests := []struct {
		amount string
		want   string
	}{
		{`0`, "Amount must be positive, got: 0.00 AED"},
		{`-5`, "Amount must be positive, got: -5.00 AED"},
		{`1000001`, "Amount 1000001.00 AED exceeds maximum transfer limit of 1000000.00 AED"},
		{`"NaN"`, "Invalid amount value: NaN (Not a Number)"},
		{`"Infinity"`, "Invalid amount value: Infinity"},
		{`null`, "Amount is required"},
		{`1e99999999`, "Amount exceeds maximum transfer limit of 1000000.00 AED"},
		{`"1e-99999999"`, "Amount must be positive, got: 0.00 AED"},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			res := execute(t, d, store.DemoAliceID, "propose_internal_transfer",
				`{"from_account_name":"Current","to_account_name":"Savings","amount":`+tt.amount+`}`)
			assert.Equal(t, false, res["success"])
			assert.Equal(t, tt.want, res["error"])
		})
	}
}

func TestExecute_IgnoresModelSuppliedUser(t *testing.T) {
	d, _ := newTestDispatcher(t)

	raw := d.Execute(context.Background(), store.DemoAliceID, Call{
		Name:      "get_balance",
		Arguments: json.RawMessage(`{"user_id":"` + store.DemoBobID.String() + `"}`),
	})
	assert.Contains(t, raw, "PDB-ALICE-001")
	assert.NotContains(t, raw, "PDB-BOB")
}

func TestExecute_RejectsNonBackendTools(t *testing.T) {
	d, _ := newTestDispatcher(t)

	for _, name := range []string{"showBalance", "drop_tables"} {
		res := execute(t, d, store.DemoAliceID, name, `{}`)
		assert.Equal(t, false, res["success"])
		assert.Equal(t, "Unknown tool: "+name, res["error"])
	}
}

func TestExecute_TransactionsFilters(t *testing.T) {
	d, _ := newTestDispatcher(t)

	groceries := executeList(t, d, store.DemoAliceID, "get_transactions", `{"category":"Groceries"}`)
	assert.Len(t, groceries, 2)

	bad := execute(t, d, store.DemoAliceID, "get_transactions", `{"from_date":"last tuesday"}`)
	assert.Equal(t, "Invalid date 'last tuesday'. Use YYYY-MM-DD", bad["error"])

	malformed := execute(t, d, store.DemoAliceID, "get_transactions", `{"limit":"ten"}`)
	assert.Equal(t, false, malformed["success"])
	assert.Contains(t, malformed["error"], "Invalid arguments for get_transactions")
}

func TestExecute_SpendTotals(t *testing.T) {
	d, _ := newTestDispatcher(t)

	raw := d.Execute(context.Background(), store.DemoAliceID, Call{Name: "get_spend_by_category"})
	assert.Contains(t, raw, `"total":555.50`)

	var spend []struct {
		Category string          `json:"category"`
		Total    decimal.Decimal `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &spend), raw)
	sum := decimal.Zero
	for _, s := range spend {
		sum = sum.Add(s.Total)
	}
	assert.Equal(t, "2740.25", sum.StringFixed(2))
}

func TestExecute_RejectAndMalformedID(t *testing.T) {
	d, _ := newTestDispatcher(t)

	res := execute(t, d, store.DemoAliceID, "reject_transfer", `{"transfer_id":"not-a-uuid"}`)
	assert.Equal(t, "Transfer not found or already processed", res["error"])

	proposed := execute(t, d, store.DemoAliceID, "propose_internal_transfer",
		`{"from_account_name":"Savings","to_account_name":"Current","amount":10}`)
	id := proposed["transfer_id"].(string)

	foreign := execute(t, d, store.DemoBobID, "reject_transfer", `{"transfer_id":"`+id+`"}`)
	assert.Equal(t, "Transfer not found or already processed", foreign["error"])

	rejected := execute(t, d, store.DemoAliceID, "reject_transfer", `{"transfer_id":"`+id+`","reason":"changed my mind"}`)
	assert.Equal(t, true, rejected["success"])

	history := executeList(t, d, store.DemoAliceID, "get_transfer_history", `{}`)
	require.Len(t, history, 1)
	assert.Equal(t, "rejected", history[0]["status"])
}

type failingAccounts struct{}

var errDown = errors.New("connection refused")

func (failingAccounts) Balances(context.Context, uuid.UUID) ([]domain.Account, error) {
	return nil, errDown
}

func (failingAccounts) Transactions(context.Context, uuid.UUID, domain.TransactionFilter) ([]domain.Transaction, error) {
	return nil, errDown
}

func (failingAccounts) SpendByCategory(context.Context, uuid.UUID, *time.Time, *time.Time) ([]domain.CategorySpend, error) {
	return nil, errDown
}

func (failingAccounts) Beneficiaries(context.Context, uuid.UUID) ([]domain.Beneficiary, error) {
	return nil, errDown
}

func (failingAccounts) AddBeneficiary(context.Context, uuid.UUID, string, string) (*app.BeneficiaryResult, error) {
	return nil, errDown
}

func (failingAccounts) RemoveBeneficiary(context.Context, uuid.UUID, uuid.UUID) error {
	return errDown
}

func TestExecute_InfrastructureErrorIsGeneric(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := store.NewMemoryRepository()
	d := NewDispatcher(failingAccounts{}, ledger.New(repo, nil, nil, logger, ledger.NewAmountPolicy(decimal.Zero, "")), logger, nil)

	res := execute(t, d, store.DemoAliceID, "get_balance", `{}`)
	assert.Equal(t, false, res["success"])
	assert.Equal(t, ServiceUnavailable, res["error"])
}
