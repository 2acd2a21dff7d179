/**
 * @description
 * Core domain models for customer accounts and their ledger entries.
 *
 * @notes
 * - Money is always decimal.Decimal with two fractional digits; floats never
 *   cross the domain boundary.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is a customer account held in the bank's own ledger.
type Account struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Name          string          `json:"name"`
	AccountNumber string          `json:"account_number"`
	Type          string          `json:"account_type"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
}

// TransactionType enumerates the ledger entry kinds.
type TransactionType string

const (
	TransactionTypeDebit       TransactionType = "debit"
	TransactionTypeCredit      TransactionType = "credit"
	TransactionTypeTransferOut TransactionType = "transfer_out"
	TransactionTypeTransferIn  TransactionType = "transfer_in"
)

// Transaction is a single immutable ledger entry against one account.
type Transaction struct {
	ID              uuid.UUID       `json:"id"`
	AccountID       uuid.UUID       `json:"account_id"`
	AccountName     string          `json:"account_name,omitempty"`
	Type            TransactionType `json:"transaction_type"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Category        string          `json:"category"`
	Description     string          `json:"description"`
	ReferenceNumber string          `json:"reference_number"`
	Status          string          `json:"status"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

// CategorySpend is the total outgoing amount for one spending category.
type CategorySpend struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
	Count    int             `json:"count"`
}

// TransactionFilter narrows a transaction listing. Zero values mean "no filter".
type TransactionFilter struct {
	AccountName string
	Category    string
	From        *time.Time
	To          *time.Time
	Limit       int
}
