package grounding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const balanceResult = `{"accounts":[{"name":"Current Account","balance":5000.00,"currency":"AED"}]}`

func TestValidateResponse_GroundedBalance(t *testing.T) {
	v := NewValidator()
	v.RegisterToolResult("get_balance", balanceResult)

	r := v.ValidateResponse("Your Current Account balance is 5,000.00 AED.")
	assert.True(t, r.Grounded)
	assert.Empty(t, r.Issues)
	assert.Equal(t, []string{"get_balance"}, r.ToolCallsMade)
	assert.Positive(t, r.GroundedValuesCount)
}

func TestValidateResponse_UngroundedReportedOnce(t *testing.T) {
	v := NewValidator()
	v.RegisterToolResult("get_balance", balanceResult)

	r := v.ValidateResponse("Your balance is 10,000.00 AED")
	assert.False(t, r.Grounded)
	require.Len(t, r.Issues, 1)
	assert.Equal(t, IssueTypeUngrounded, r.Issues[0].Type)
	assert.Equal(t, SeverityHigh, r.Issues[0].Severity)
	assert.Equal(t, "10,000.00", r.Issues[0].Value)
}

func TestValidateResponse_DecimalEquivalence(t *testing.T) {
	v := NewValidator()
	v.RegisterToolResult("get_transactions", `{"transactions":[{"amount":100}]}`)

	r := v.ValidateResponse("You paid AED 100.00 at the supermarket.")
	assert.True(t, r.Grounded)
}

func TestValidateResponse_Tolerance(t *testing.T) {
	v := NewValidator()
	v.RegisterToolResult("get_balance", `{"balance":"245.30"}`)

	assert.True(t, v.ValidateResponse("You spent 245.304 AED").Grounded)
	assert.False(t, v.ValidateResponse("You spent 245.32 AED").Grounded)
}

func TestValidateResponse_NoToolCalls(t *testing.T) {
	v := NewValidator()

	r := v.ValidateResponse("You have USD 42 available.")
	assert.False(t, r.Grounded)
	assert.Empty(t, r.ToolCallsMade)
	assert.Zero(t, r.GroundedValuesCount)
}

func TestValidateResponse_PatternCoverage(t *testing.T) {
	cases := []struct {
		text    string
		pattern string
	}{
		{"That costs EUR 77", "currency_prefix"},
		{"That is 77 GBP in total", "currency_suffix"},
		{"Available funds: 77", "account_balance"},
		{"You transferred 77 yesterday", "transaction_amount"},
	}
	for _, tc := range cases {
		t.Run(tc.pattern, func(t *testing.T) {
			r := NewValidator().ValidateResponse(tc.text)
			require.Len(t, r.Issues, 1)
			assert.Equal(t, tc.pattern, r.Issues[0].Pattern)
			assert.Equal(t, "77", r.Issues[0].Value)
		})
	}
}

func TestValidateResponse_NonFinancialText(t *testing.T) {
	r := NewValidator().ValidateResponse("I can help with balances, transfers and beneficiaries.")
	assert.True(t, r.Grounded)
}

func TestWithDisclaimer(t *testing.T) {
	assert.Equal(t, "ok", WithDisclaimer("ok", Report{Grounded: true}))

	out := WithDisclaimer("Balance is 1 AED\n", Report{Grounded: false})
	assert.Equal(t, "Balance is 1 AED\n\n"+Disclaimer, out)
}
