/**
 * @description
 * Domain model for two-phase transfer proposals.
 *
 * @notes
 * - A proposal moves pending -> completed | failed | rejected exactly once.
 *   Terminal states are never left.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferStatus is the lifecycle state of a transfer proposal.
type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusCompleted TransferStatus = "completed"
	TransferStatusFailed    TransferStatus = "failed"
	TransferStatusRejected  TransferStatus = "rejected"
)

// Terminal reports whether no further transition is allowed from s.
func (s TransferStatus) Terminal() bool {
	switch s {
	case TransferStatusCompleted, TransferStatusFailed, TransferStatusRejected:
		return true
	default:
		return false
	}
}

// TransferKind distinguishes transfers between a user's own accounts from
// transfers to a saved beneficiary.
type TransferKind string

const (
	TransferKindInternal TransferKind = "internal"
	TransferKindExternal TransferKind = "external"
)

// TransferProposal is a pending or settled request to move money.
type TransferProposal struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	Kind            TransferKind    `json:"kind"`
	FromAccountID   uuid.UUID       `json:"from_account_id"`
	ToAccountID     *uuid.UUID      `json:"to_account_id,omitempty"`
	ToBeneficiaryID *uuid.UUID      `json:"to_beneficiary_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Description     string          `json:"description"`
	Status          TransferStatus  `json:"status"`
	FailureReason   string          `json:"failure_reason,omitempty"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
}

// ProposalSummary is a proposal joined with display names for listing.
type ProposalSummary struct {
	TransferProposal
	FromAccountName string `json:"from_account_name"`
	ToName          string `json:"to_name"`
}
