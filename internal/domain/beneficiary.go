/**
 * @description
 * Domain model for a Beneficiary, a saved payee a user can send money to.
 *
 * @notes
 * - Beneficiaries are never hard-deleted. Removal flips the status to
 *   BeneficiaryStatusRemoved so a later add of the same account number can
 *   reactivate the original record.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// BeneficiaryStatus is the lifecycle state of a beneficiary.
type BeneficiaryStatus string

const (
	BeneficiaryStatusActive  BeneficiaryStatus = "active"
	BeneficiaryStatusRemoved BeneficiaryStatus = "removed"
)

// Valid reports whether s is a known lifecycle state.
func (s BeneficiaryStatus) Valid() bool {
	return s == BeneficiaryStatusActive || s == BeneficiaryStatusRemoved
}

// Beneficiary is a user's saved payee.
type Beneficiary struct {
	ID            uuid.UUID         `json:"id"`
	UserID        uuid.UUID         `json:"user_id"`
	AccountID     *uuid.UUID        `json:"account_id,omitempty"`
	Nickname      string            `json:"nickname"`
	AccountNumber string            `json:"account_number"`
	BankName      string            `json:"bank_name"`
	IsInternal    bool              `json:"is_internal"`
	Status        BeneficiaryStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// IsActive reports whether the beneficiary can currently receive transfers.
func (b Beneficiary) IsActive() bool {
	return b.Status == BeneficiaryStatusActive
}

// Settleable reports whether funds can be moved to the beneficiary inside this ledger.
func (b Beneficiary) Settleable() bool {
	return b.IsActive() && b.AccountID != nil
}
