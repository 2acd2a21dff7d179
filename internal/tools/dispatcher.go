/**
 * @description
 * The dispatcher executes backend tool calls on behalf of the authenticated
 * user and renders every outcome as a JSON string the model can read.
 *
 * @dependencies
 * - internal/app: account queries and beneficiary management.
 * - internal/ledger: two-phase transfers.
 *
 * @notes
 * - The acting user always comes from the caller, never from tool arguments.
 * - Business-rule failures are returned to the model verbatim. Any other
 *   failure is logged and replaced with a generic message.
 * - Read tools return a bare JSON array. Write tools return an object
 *   carrying "success": true.
 */
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/assistant-service/internal/app"
	"github.com/transfa/assistant-service/internal/domain"
	"github.com/transfa/assistant-service/internal/ledger"
	"github.com/transfa/assistant-service/internal/metrics"
)

// ServiceUnavailable is the only error text the model sees for infrastructure failures.
const ServiceUnavailable = "Service temporarily unavailable"

const dateLayout = "2006-01-02"

// AccountService is the subset of app.Service the dispatcher needs.
type AccountService interface {
	Balances(ctx context.Context, userID uuid.UUID) ([]domain.Account, error)
	Transactions(ctx context.Context, userID uuid.UUID, filter domain.TransactionFilter) ([]domain.Transaction, error)
	SpendByCategory(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]domain.CategorySpend, error)
	Beneficiaries(ctx context.Context, userID uuid.UUID) ([]domain.Beneficiary, error)
	AddBeneficiary(ctx context.Context, userID uuid.UUID, accountNumber, nickname string) (*app.BeneficiaryResult, error)
	RemoveBeneficiary(ctx context.Context, userID, beneficiaryID uuid.UUID) error
}

// TransferService is the subset of ledger.Ledger the dispatcher needs.
type TransferService interface {
	Amounts() ledger.AmountPolicy
	ProposeExternal(ctx context.Context, userID uuid.UUID, fromAccountName, beneficiaryNickname string, amount decimal.Decimal, description string) (*ledger.Proposal, error)
	ProposeInternal(ctx context.Context, userID uuid.UUID, fromAccountName, toAccountName string, amount decimal.Decimal, description string) (*ledger.Proposal, error)
	Approve(ctx context.Context, userID, proposalID uuid.UUID) (*ledger.Settlement, error)
	Reject(ctx context.Context, userID, proposalID uuid.UUID, reason string) error
	ListPending(ctx context.Context, userID uuid.UUID) ([]domain.ProposalSummary, error)
	ListHistory(ctx context.Context, userID uuid.UUID, limit int) ([]domain.ProposalSummary, error)
}

// argumentError reports tool arguments the model got wrong.
type argumentError struct {
	msg string
}

func (e *argumentError) Error() string { return e.msg }

func badArgs(format string, args ...any) error {
	return &argumentError{msg: fmt.Sprintf(format, args...)}
}

// Dispatcher runs backend tools. It is safe for concurrent use.
type Dispatcher struct {
	accounts  AccountService
	transfers TransferService
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewDispatcher(accounts AccountService, transfers TransferService, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		accounts:  accounts,
		transfers: transfers,
		logger:    logger.With("component", "tool_dispatcher"),
		metrics:   m,
	}
}

// Execute runs one backend call for userID and returns its JSON result.
func (d *Dispatcher) Execute(ctx context.Context, userID uuid.UUID, call Call) string {
	kind, ok := Lookup(call.Name)
	if !ok || kind.Side() != SideBackend {
		d.metrics.ToolCall("unknown", string(SideBackend), "rejected")
		return encodeFailure(fmt.Sprintf("Unknown tool: %s", call.Name))
	}

	args := call.Arguments
	if len(strings.TrimSpace(string(args))) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}
	d.checkUserID(userID, kind, args)

	result, err := d.run(ctx, userID, kind, args)
	if err != nil {
		return d.failure(kind, err)
	}
	if obj, ok := result.(map[string]any); ok {
		obj["success"] = true
	}
	out, err := json.Marshal(result)
	if err != nil {
		return d.failure(kind, fmt.Errorf("encode result: %w", err))
	}
	d.metrics.ToolCall(kind.String(), string(SideBackend), "ok")
	return string(out)
}

func (d *Dispatcher) run(ctx context.Context, userID uuid.UUID, kind Kind, args json.RawMessage) (any, error) {
	switch kind {
	case KindGetBalance:
		return d.getBalance(ctx, userID)
	case KindGetTransactions:
		return d.getTransactions(ctx, userID, args)
	case KindGetSpendByCategory:
		return d.getSpendByCategory(ctx, userID, args)
	case KindGetBeneficiaries:
		return d.getBeneficiaries(ctx, userID)
	case KindAddBeneficiary:
		return d.addBeneficiary(ctx, userID, args)
	case KindRemoveBeneficiary:
		return d.removeBeneficiary(ctx, userID, args)
	case KindProposeTransfer:
		return d.proposeTransfer(ctx, userID, args)
	case KindProposeInternalTransfer:
		return d.proposeInternalTransfer(ctx, userID, args)
	case KindApproveTransfer:
		return d.approveTransfer(ctx, userID, args)
	case KindRejectTransfer:
		return d.rejectTransfer(ctx, userID, args)
	case KindGetPendingTransfers:
		return d.getPendingTransfers(ctx, userID)
	case KindGetTransferHistory:
		return d.getTransferHistory(ctx, userID, args)
	}
	return nil, fmt.Errorf("no handler for tool %s", kind)
}

// checkUserID logs any attempt by the model to act as another user. The
// argument is never used.
func (d *Dispatcher) checkUserID(userID uuid.UUID, kind Kind, args json.RawMessage) {
	var probe struct {
		UserID *string `json:"user_id"`
	}
	if err := json.Unmarshal(args, &probe); err != nil || probe.UserID == nil {
		return
	}
	if !strings.EqualFold(strings.TrimSpace(*probe.UserID), userID.String()) {
		d.logger.Warn("security: tool call carried a foreign user_id, ignoring it",
			"tool", kind.String(), "user_id", userID, "supplied_user_id", *probe.UserID)
	}
}

func (d *Dispatcher) failure(kind Kind, err error) string {
	var (
		lerr   *ledger.ValidationError
		aerr   *app.ValidationError
		argErr *argumentError
	)
	switch {
	case errors.As(err, &lerr):
		d.metrics.ToolCall(kind.String(), string(SideBackend), "invalid")
		return encodeFailure(lerr.Message)
	case errors.As(err, &aerr):
		d.metrics.ToolCall(kind.String(), string(SideBackend), "invalid")
		return encodeFailure(aerr.Message)
	case errors.As(err, &argErr):
		d.metrics.ToolCall(kind.String(), string(SideBackend), "invalid")
		return encodeFailure(argErr.msg)
	}
	d.metrics.ToolCall(kind.String(), string(SideBackend), "error")
	d.logger.Error("tool execution failed", "tool", kind.String(), "error", err)
	return encodeFailure(ServiceUnavailable)
}

// FailureOf reports whether a tool result is a failure and returns its error
// text. Array results are always successes.
func FailureOf(result string) (string, bool, error) {
	trimmed := strings.TrimSpace(result)
	if strings.HasPrefix(trimmed, "[") {
		if !json.Valid([]byte(trimmed)) {
			return "", false, errors.New("invalid tool result array")
		}
		return "", false, nil
	}
	var outcome struct {
		Success *bool  `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal([]byte(trimmed), &outcome); err != nil {
		return "", false, err
	}
	if outcome.Success == nil || !*outcome.Success {
		return outcome.Error, true, nil
	}
	return "", false, nil
}

func encodeFailure(msg string) string {
	out, err := json.Marshal(map[string]any{"success": false, "error": msg})
	if err != nil {
		return `{"success":false,"error":"` + ServiceUnavailable + `"}`
	}
	return string(out)
}

func decodeArgs(kind Kind, args json.RawMessage, dst any) error {
	if err := json.Unmarshal(args, dst); err != nil {
		return badArgs("Invalid arguments for %s: %v", kind, err)
	}
	return nil
}

// money renders an amount as a plain JSON number with two decimals.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseAmount accepts a JSON number or a numeric string.
func (d *Dispatcher) parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.Zero, badArgs("Amount is required")
	}
	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return decimal.Zero, badArgs("Invalid amount value: %s", s)
		}
		s = unquoted
	}
	return d.transfers.Amounts().Parse(s)
}

// parseWindow turns optional YYYY-MM-DD bounds into a half-open time window.
// The end date is inclusive.
func parseWindow(from, to string) (*time.Time, *time.Time, error) {
	start, err := parseDate(from)
	if err != nil {
		return nil, nil, err
	}
	end, err := parseDate(to)
	if err != nil {
		return nil, nil, err
	}
	if end != nil && len(strings.TrimSpace(to)) == len(dateLayout) {
		next := end.Add(24 * time.Hour)
		end = &next
	}
	return start, end, nil
}

func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	return nil, badArgs("Invalid date '%s'. Use YYYY-MM-DD", s)
}
