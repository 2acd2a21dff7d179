package ledger

import "fmt"

// Validation error codes. The message carried alongside is safe to show to the user.
const (
	CodeInvalidAmount       = "invalid_amount"
	CodeAmountNotPositive   = "amount_not_positive"
	CodeAmountAboveLimit    = "amount_above_limit"
	CodeSourceNotFound      = "source_account_not_found"
	CodeDestinationNotFound = "destination_account_not_found"
	CodeBeneficiaryNotFound = "beneficiary_not_found"
	CodeSameAccount         = "same_account"
	CodeCurrencyMismatch    = "currency_mismatch"
	CodeInsufficientFunds   = "insufficient_funds"
	CodeAccountUnavailable  = "account_unavailable"
	CodeProposalNotFound    = "proposal_not_found"
)

// ValidationError is a business-rule failure. It is reported to the caller as a
// structured tool result and is never retried.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// proposalNotFound is deliberately identical for wrong id, wrong owner and
// already-processed proposals.
func proposalNotFound() *ValidationError {
	return invalid(CodeProposalNotFound, "Transfer not found or already processed")
}
