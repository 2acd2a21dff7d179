/**
 * @description
 * This file contains the account-facing use cases of the assistant: balance and
 * transaction queries plus beneficiary management. Money movement lives in
 * internal/ledger; everything here either reads or edits the beneficiary list.
 *
 * @dependencies
 * - internal/domain, internal/store: domain models and data access.
 * - github.com/google/uuid: beneficiary ids.
 *
 * @notes
 * - Every method is scoped to the authenticated user passed in by the caller.
 * - Beneficiaries are never deleted. Removal flips the status and a later add of
 *   the same account number reactivates the same row.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/transfa/assistant-service/internal/domain"
	"github.com/transfa/assistant-service/internal/store"
)

const (
	BankName = "Phoenix Digital Bank"

	DefaultTransactionLimit = 20
	MaxTransactionLimit     = 100
	MaxNicknameLength       = 64
)

// ValidationError carries a message that is safe to show to the user.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// BeneficiaryResult is returned by AddBeneficiary.
type BeneficiaryResult struct {
	Beneficiary domain.Beneficiary
	Reactivated bool
}

// Service provides the read paths and beneficiary management.
type Service struct {
	repo   store.Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new account service instance.
func NewService(repo store.Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger.With("component", "accounts"), now: time.Now}
}

// Balances returns the user's active accounts.
func (s *Service) Balances(ctx context.Context, userID uuid.UUID) ([]domain.Account, error) {
	accounts, err := s.repo.ListAccounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// Transactions returns ledger entries newest first. The limit defaults to 20 and
// is capped at 100.
func (s *Service) Transactions(ctx context.Context, userID uuid.UUID, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultTransactionLimit
	}
	if filter.Limit > MaxTransactionLimit {
		filter.Limit = MaxTransactionLimit
	}
	filter.AccountName = strings.TrimSpace(filter.AccountName)
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, invalid("Start date must not be after end date")
	}

	txns, err := s.repo.ListTransactions(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txns, nil
}

// SpendByCategory totals outgoing debits per category, largest first.
func (s *Service) SpendByCategory(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]domain.CategorySpend, error) {
	if from != nil && to != nil && from.After(*to) {
		return nil, invalid("Start date must not be after end date")
	}
	spend, err := s.repo.SpendByCategory(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("spend by category: %w", err)
	}
	return spend, nil
}

// Beneficiaries returns the user's active beneficiaries.
func (s *Service) Beneficiaries(ctx context.Context, userID uuid.UUID) ([]domain.Beneficiary, error) {
	out, err := s.repo.ListBeneficiaries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list beneficiaries: %w", err)
	}
	return out, nil
}

// AddBeneficiary saves an account of this bank as a payee. A previously removed
// beneficiary for the same account number is reactivated under the new nickname.
func (s *Service) AddBeneficiary(ctx context.Context, userID uuid.UUID, accountNumber, nickname string) (*BeneficiaryResult, error) {
	accountNumber = strings.TrimSpace(accountNumber)
	nickname = strings.TrimSpace(nickname)
	if accountNumber == "" {
		return nil, invalid("Account number is required")
	}
	if nickname == "" {
		return nil, invalid("Nickname is required")
	}
	if utf8.RuneCountInString(nickname) > MaxNicknameLength {
		return nil, invalid("Nickname must be at most %d characters", MaxNicknameLength)
	}

	var result *BeneficiaryResult
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		target, err := tx.FindAccountByNumber(ctx, accountNumber)
		if errors.Is(err, store.ErrAccountNotFound) {
			return invalid("Account number not found. Only %s accounts are supported", BankName)
		}
		if err != nil {
			return fmt.Errorf("resolve account number: %w", err)
		}
		if target.UserID == userID {
			return invalid("You cannot add your own account as a beneficiary")
		}

		now := s.now().UTC()
		existing, err := tx.FindBeneficiaryByAccountNumber(ctx, userID, target.AccountNumber)
		switch {
		case err == nil && existing.IsActive():
			return invalid("Beneficiary for account %s already exists as '%s'", target.AccountNumber, existing.Nickname)
		case err == nil:
			if err := tx.ReactivateBeneficiary(ctx, userID, existing.ID, nickname, now); err != nil {
				return fmt.Errorf("reactivate beneficiary: %w", err)
			}
			b := *existing
			b.Nickname = nickname
			b.Status = domain.BeneficiaryStatusActive
			b.UpdatedAt = now
			result = &BeneficiaryResult{Beneficiary: b, Reactivated: true}
			return nil
		case !errors.Is(err, store.ErrBeneficiaryNotFound):
			return fmt.Errorf("look up beneficiary: %w", err)
		}

		accountID := target.ID
		b := domain.Beneficiary{
			ID:            uuid.New(),
			UserID:        userID,
			AccountID:     &accountID,
			Nickname:      nickname,
			AccountNumber: target.AccountNumber,
			BankName:      BankName,
			IsInternal:    true,
			Status:        domain.BeneficiaryStatusActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertBeneficiary(ctx, &b); err != nil {
			return fmt.Errorf("insert beneficiary: %w", err)
		}
		result = &BeneficiaryResult{Beneficiary: b}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("beneficiary saved", "user_id", userID, "beneficiary_id", result.Beneficiary.ID, "reactivated", result.Reactivated)
	return result, nil
}

// RemoveBeneficiary soft-deletes one of the user's active beneficiaries. Unknown,
// foreign and already removed ids all report the same error.
func (s *Service) RemoveBeneficiary(ctx context.Context, userID, beneficiaryID uuid.UUID) error {
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		return tx.RemoveBeneficiary(ctx, userID, beneficiaryID, s.now().UTC())
	})
	if errors.Is(err, store.ErrBeneficiaryNotFound) {
		return invalid("Beneficiary not found")
	}
	if err != nil {
		return fmt.Errorf("remove beneficiary: %w", err)
	}
	s.logger.Info("beneficiary removed", "user_id", userID, "beneficiary_id", beneficiaryID)
	return nil
}
