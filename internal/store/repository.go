/**
 * @description
 * This file defines the persistence contract for the assistant service. The
 * Repository covers read paths that need no locking; every write happens inside
 * WithinTx so that balance changes and proposal transitions commit together.
 *
 * @notes
 * - Tx methods whose names start with Lock take row locks (SELECT ... FOR UPDATE)
 *   that are held until the surrounding transaction ends.
 * - Not-found conditions are reported with the sentinel errors below, never with
 *   driver errors.
 */
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/assistant-service/internal/domain"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrBeneficiaryNotFound = errors.New("beneficiary not found")
	ErrProposalNotFound    = errors.New("transfer proposal not found or already processed")
	ErrInsufficientFunds   = errors.New("insufficient funds")
)

// Repository is the read side of the store plus the transaction entry point.
type Repository interface {
	// ListAccounts returns the user's active accounts ordered by name.
	ListAccounts(ctx context.Context, userID uuid.UUID) ([]domain.Account, error)
	// ListTransactions returns ledger entries across the user's accounts, newest first.
	ListTransactions(ctx context.Context, userID uuid.UUID, filter domain.TransactionFilter) ([]domain.Transaction, error)
	// SpendByCategory totals debit entries per category within an optional window.
	SpendByCategory(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]domain.CategorySpend, error)
	// ListBeneficiaries returns active beneficiaries ordered by nickname.
	ListBeneficiaries(ctx context.Context, userID uuid.UUID) ([]domain.Beneficiary, error)
	// ListProposals returns the user's proposals in any of the given statuses,
	// most recently touched first.
	ListProposals(ctx context.Context, userID uuid.UUID, statuses []domain.TransferStatus, limit int) ([]domain.ProposalSummary, error)
	// ListStaleProposals returns pending proposals created before olderThan, across all users.
	ListStaleProposals(ctx context.Context, olderThan time.Time, limit int) ([]domain.TransferProposal, error)
	// WithinTx runs fn in one database transaction. The transaction commits when
	// fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write side of the store, valid only inside WithinTx.
type Tx interface {
	// FindAccountByName resolves an active account of the user by case-insensitive
	// substring match, preferring an exact match, then the shortest name.
	FindAccountByName(ctx context.Context, userID uuid.UUID, name string) (*domain.Account, error)
	// FindAccountByNumber resolves an active account of any user by its account number.
	FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	// LockAccounts locks the given accounts in ascending id order and returns them.
	// Any missing or inactive account yields ErrAccountNotFound.
	LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]domain.Account, error)
	AdjustBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) error
	InsertTransaction(ctx context.Context, t *domain.Transaction) error

	// FindBeneficiaryByNickname resolves an active beneficiary with the same
	// matching rules as FindAccountByName.
	FindBeneficiaryByNickname(ctx context.Context, userID uuid.UUID, nickname string) (*domain.Beneficiary, error)
	FindBeneficiaryByID(ctx context.Context, userID, id uuid.UUID) (*domain.Beneficiary, error)
	// FindBeneficiaryByAccountNumber returns the user's beneficiary for the account
	// number in any lifecycle state.
	FindBeneficiaryByAccountNumber(ctx context.Context, userID uuid.UUID, accountNumber string) (*domain.Beneficiary, error)
	InsertBeneficiary(ctx context.Context, b *domain.Beneficiary) error
	// ReactivateBeneficiary flips a removed beneficiary back to active.
	ReactivateBeneficiary(ctx context.Context, userID, id uuid.UUID, nickname string, at time.Time) error
	// RemoveBeneficiary flips an active beneficiary to removed.
	RemoveBeneficiary(ctx context.Context, userID, id uuid.UUID, at time.Time) error

	InsertProposal(ctx context.Context, p *domain.TransferProposal) error
	// LockPendingProposal locks the proposal if it belongs to the user and is
	// still pending. Every other case yields ErrProposalNotFound.
	LockPendingProposal(ctx context.Context, userID, id uuid.UUID) (*domain.TransferProposal, error)
	// ResolveProposal moves a locked pending proposal to a terminal status.
	ResolveProposal(ctx context.Context, id uuid.UUID, status domain.TransferStatus, reason, reference string, at time.Time) error
	// RejectPendingProposal rejects in one conditional update.
	RejectPendingProposal(ctx context.Context, userID, id uuid.UUID, reason string, at time.Time) error
}

// likePattern escapes LIKE metacharacters so user input only ever matches literally.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
