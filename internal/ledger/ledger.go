/**
 * @description
 * The transfer ledger implements two-phase money movement: a proposal is
 * validated and stored as pending, and funds move only when the owning user
 * explicitly approves it.
 *
 * @dependencies
 * - internal/store: transactional persistence with row locking.
 * - github.com/shopspring/decimal: fixed-point money arithmetic.
 *
 * @notes
 * - Approval re-validates beneficiary, currency and funds under row locks. A
 *   failed re-validation commits the proposal as failed and returns the reason.
 * - Nothing in this package retries a write.
 */
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/assistant-service/internal/domain"
	"github.com/transfa/assistant-service/internal/metrics"
	"github.com/transfa/assistant-service/internal/store"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	maxPendingListed    = 50
	maxDescriptionLen   = 140
)

// EventPublisher receives proposal lifecycle events after commit.
type EventPublisher interface {
	PublishTransferEvent(ctx context.Context, routingKey string, event domain.TransferEvent) error
}

// Proposal is the outcome of a successful propose call.
type Proposal struct {
	ID          uuid.UUID
	FromAccount string
	To          string
	Amount      decimal.Decimal
	Currency    string
	Description string
	Status      domain.TransferStatus
}

// Settlement is the outcome of a successful approval.
type Settlement struct {
	ProposalID      uuid.UUID
	ReferenceNumber string
	FromAccount     string
	To              string
	Amount          decimal.Decimal
	Currency        string
	NewBalance      decimal.Decimal
}

// Ledger is safe for concurrent use; all coordination happens in the store.
type Ledger struct {
	repo    store.Repository
	events  EventPublisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	amounts AmountPolicy
	now     func() time.Time
}

// New creates a ledger. events and m may be nil.
func New(repo store.Repository, events EventPublisher, m *metrics.Metrics, logger *slog.Logger, amounts AmountPolicy) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		repo:    repo,
		events:  events,
		metrics: m,
		logger:  logger.With("component", "ledger"),
		amounts: amounts,
		now:     time.Now,
	}
}

// Amounts exposes the amount policy so callers can parse raw input before any
// ledger operation runs.
func (l *Ledger) Amounts() AmountPolicy {
	return l.amounts
}

// ProposeExternal creates a pending transfer to one of the user's active beneficiaries.
func (l *Ledger) ProposeExternal(ctx context.Context, userID uuid.UUID, fromAccountName, beneficiaryNickname string, amount decimal.Decimal, description string) (*Proposal, error) {
	amount, err := l.amounts.Check(amount)
	if err != nil {
		return nil, l.done("propose_external", err)
	}

	var out *Proposal
	err = l.repo.WithinTx(ctx, func(tx store.Tx) error {
		from, err := l.sourceAccount(ctx, tx, userID, fromAccountName)
		if err != nil {
			return err
		}
		ben, err := tx.FindBeneficiaryByNickname(ctx, userID, beneficiaryNickname)
		if errors.Is(err, store.ErrBeneficiaryNotFound) {
			return invalid(CodeBeneficiaryNotFound, "Beneficiary '%s' not found. Add them as a beneficiary first.", strings.TrimSpace(beneficiaryNickname))
		}
		if err != nil {
			return fmt.Errorf("resolve beneficiary: %w", err)
		}
		if !ben.Settleable() {
			return invalid(CodeBeneficiaryNotFound, "Beneficiary '%s' cannot receive transfers", ben.Nickname)
		}

		p := domain.TransferProposal{
			Kind:            domain.TransferKindExternal,
			ToAccountID:     ben.AccountID,
			ToBeneficiaryID: &ben.ID,
		}
		out, err = l.propose(ctx, tx, userID, from, *ben.AccountID, ben.Nickname, p, amount, description)
		return err
	})
	if err != nil {
		return nil, l.done("propose_external", err)
	}
	l.done("propose_external", nil)
	l.publish(ctx, domain.RoutingKeyProposalCreated, userID, out.ID, domain.TransferStatusPending, out.Amount, out.Currency, "", "")
	return out, nil
}

// ProposeInternal creates a pending transfer between two of the user's own accounts.
func (l *Ledger) ProposeInternal(ctx context.Context, userID uuid.UUID, fromAccountName, toAccountName string, amount decimal.Decimal, description string) (*Proposal, error) {
	amount, err := l.amounts.Check(amount)
	if err != nil {
		return nil, l.done("propose_internal", err)
	}

	var out *Proposal
	err = l.repo.WithinTx(ctx, func(tx store.Tx) error {
		from, err := l.sourceAccount(ctx, tx, userID, fromAccountName)
		if err != nil {
			return err
		}
		to, err := tx.FindAccountByName(ctx, userID, toAccountName)
		if errors.Is(err, store.ErrAccountNotFound) {
			return invalid(CodeDestinationNotFound, "Destination account '%s' not found", strings.TrimSpace(toAccountName))
		}
		if err != nil {
			return fmt.Errorf("resolve destination account: %w", err)
		}

		p := domain.TransferProposal{
			Kind:        domain.TransferKindInternal,
			ToAccountID: &to.ID,
		}
		out, err = l.propose(ctx, tx, userID, from, to.ID, to.Name, p, amount, description)
		return err
	})
	if err != nil {
		return nil, l.done("propose_internal", err)
	}
	l.done("propose_internal", nil)
	l.publish(ctx, domain.RoutingKeyProposalCreated, userID, out.ID, domain.TransferStatusPending, out.Amount, out.Currency, "", "")
	return out, nil
}

func (l *Ledger) sourceAccount(ctx context.Context, tx store.Tx, userID uuid.UUID, name string) (*domain.Account, error) {
	from, err := tx.FindAccountByName(ctx, userID, name)
	if errors.Is(err, store.ErrAccountNotFound) {
		return nil, invalid(CodeSourceNotFound, "Source account '%s' not found", strings.TrimSpace(name))
	}
	if err != nil {
		return nil, fmt.Errorf("resolve source account: %w", err)
	}
	return from, nil
}

// propose runs the checks shared by both proposal kinds and inserts the pending row.
func (l *Ledger) propose(ctx context.Context, tx store.Tx, userID uuid.UUID, from *domain.Account, destID uuid.UUID, destName string, p domain.TransferProposal, amount decimal.Decimal, description string) (*Proposal, error) {
	if from.ID == destID {
		return nil, invalid(CodeSameAccount, "Source and destination accounts must be different")
	}
	accounts, err := tx.LockAccounts(ctx, from.ID, destID)
	if errors.Is(err, store.ErrAccountNotFound) {
		return nil, invalid(CodeDestinationNotFound, "Destination account for '%s' is not available", destName)
	}
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	src, dst := accounts[from.ID], accounts[destID]
	if src.Currency != dst.Currency {
		return nil, invalid(CodeCurrencyMismatch, "Currency mismatch: %s uses %s but %s uses %s", src.Name, src.Currency, destName, dst.Currency)
	}
	if src.Balance.LessThan(amount) {
		return nil, invalid(CodeInsufficientFunds, "Insufficient funds in %s. Balance: %s %s", src.Name, src.Balance.StringFixed(2), src.Currency)
	}

	p.ID = uuid.New()
	p.UserID = userID
	p.FromAccountID = src.ID
	p.Amount = amount
	p.Currency = src.Currency
	p.Description = trimDescription(description)
	p.Status = domain.TransferStatusPending
	p.CreatedAt = l.now().UTC()
	if err := tx.InsertProposal(ctx, &p); err != nil {
		return nil, fmt.Errorf("insert proposal: %w", err)
	}

	return &Proposal{
		ID:          p.ID,
		FromAccount: src.Name,
		To:          destName,
		Amount:      amount,
		Currency:    src.Currency,
		Description: p.Description,
		Status:      p.Status,
	}, nil
}

// Approve settles a pending proposal owned by userID. At most one of any number
// of concurrent approvals of the same proposal succeeds; the others get the
// not-found error.
func (l *Ledger) Approve(ctx context.Context, userID, proposalID uuid.UUID) (*Settlement, error) {
	var (
		settlement *Settlement
		failure    *ValidationError
		proposal   domain.TransferProposal
	)

	err := l.repo.WithinTx(ctx, func(tx store.Tx) error {
		p, err := tx.LockPendingProposal(ctx, userID, proposalID)
		if errors.Is(err, store.ErrProposalNotFound) {
			return proposalNotFound()
		}
		if err != nil {
			return fmt.Errorf("lock proposal: %w", err)
		}
		proposal = *p
		now := l.now().UTC()

		fail := func(reason *ValidationError) error {
			failure = reason
			if err := tx.ResolveProposal(ctx, p.ID, domain.TransferStatusFailed, reason.Message, "", now); err != nil {
				return fmt.Errorf("mark proposal failed: %w", err)
			}
			return nil
		}

		destID, destName, verr, err := l.approvalDestination(ctx, tx, p)
		if err != nil {
			return err
		}
		if verr != nil {
			return fail(verr)
		}

		accounts, err := tx.LockAccounts(ctx, p.FromAccountID, destID)
		if errors.Is(err, store.ErrAccountNotFound) {
			return fail(invalid(CodeAccountUnavailable, "An account in this transfer is no longer available"))
		}
		if err != nil {
			return fmt.Errorf("lock accounts: %w", err)
		}
		src, dst := accounts[p.FromAccountID], accounts[destID]
		if destName == "" {
			destName = dst.Name
		}
		if src.Currency != p.Currency || dst.Currency != p.Currency {
			return fail(invalid(CodeCurrencyMismatch, "Currency mismatch: transfer is in %s but %s uses %s and %s uses %s",
				p.Currency, src.Name, src.Currency, destName, dst.Currency))
		}
		if src.Balance.LessThan(p.Amount) {
			return fail(invalid(CodeInsufficientFunds, "Insufficient funds in %s. Balance: %s %s", src.Name, src.Balance.StringFixed(2), src.Currency))
		}

		reference := referenceNumber(now, p.ID)
		if err := tx.AdjustBalance(ctx, src.ID, p.Amount.Neg()); err != nil {
			if errors.Is(err, store.ErrInsufficientFunds) {
				return fail(invalid(CodeInsufficientFunds, "Insufficient funds in %s. Balance: %s %s", src.Name, src.Balance.StringFixed(2), src.Currency))
			}
			return fmt.Errorf("debit source: %w", err)
		}
		if err := tx.AdjustBalance(ctx, dst.ID, p.Amount); err != nil {
			return fmt.Errorf("credit destination: %w", err)
		}

		description := p.Description
		if description == "" {
			description = "Transfer to " + destName
		}
		entries := []domain.Transaction{
			{ID: uuid.New(), AccountID: src.ID, Type: domain.TransactionTypeTransferOut, Amount: p.Amount, Category: "transfer",
				Description: description, ReferenceNumber: reference, Status: "completed", OccurredAt: now},
			{ID: uuid.New(), AccountID: dst.ID, Type: domain.TransactionTypeTransferIn, Amount: p.Amount, Category: "transfer",
				Description: "Transfer from " + src.Name, ReferenceNumber: reference, Status: "completed", OccurredAt: now},
		}
		for i := range entries {
			if err := tx.InsertTransaction(ctx, &entries[i]); err != nil {
				return fmt.Errorf("record ledger entry: %w", err)
			}
		}
		if err := tx.ResolveProposal(ctx, p.ID, domain.TransferStatusCompleted, "", reference, now); err != nil {
			return fmt.Errorf("complete proposal: %w", err)
		}

		settlement = &Settlement{
			ProposalID:      p.ID,
			ReferenceNumber: reference,
			FromAccount:     src.Name,
			To:              destName,
			Amount:          p.Amount,
			Currency:        p.Currency,
			NewBalance:      src.Balance.Sub(p.Amount),
		}
		return nil
	})
	if err != nil {
		return nil, l.done("approve", err)
	}

	if failure != nil {
		l.metrics.LedgerOperation("approve", "failed")
		l.logger.Info("transfer approval failed re-validation", "proposal_id", proposal.ID, "code", failure.Code)
		l.publish(ctx, domain.RoutingKeyProposalFailed, userID, proposal.ID, domain.TransferStatusFailed, proposal.Amount, proposal.Currency, "", failure.Message)
		return nil, failure
	}

	l.done("approve", nil)
	l.logger.Info("transfer completed", "proposal_id", settlement.ProposalID, "reference", settlement.ReferenceNumber)
	l.publish(ctx, domain.RoutingKeyProposalCompleted, userID, settlement.ProposalID, domain.TransferStatusCompleted,
		settlement.Amount, settlement.Currency, settlement.ReferenceNumber, "")
	return settlement, nil
}

// approvalDestination resolves where the money goes at approval time. For a
// beneficiary transfer the beneficiary must still be active. The returned name
// is empty for internal transfers.
func (l *Ledger) approvalDestination(ctx context.Context, tx store.Tx, p *domain.TransferProposal) (uuid.UUID, string, *ValidationError, error) {
	if p.ToBeneficiaryID != nil {
		ben, err := tx.FindBeneficiaryByID(ctx, p.UserID, *p.ToBeneficiaryID)
		if errors.Is(err, store.ErrBeneficiaryNotFound) {
			return uuid.Nil, "", invalid(CodeBeneficiaryNotFound, "Beneficiary is no longer available"), nil
		}
		if err != nil {
			return uuid.Nil, "", nil, fmt.Errorf("load beneficiary: %w", err)
		}
		if !ben.Settleable() {
			return uuid.Nil, "", invalid(CodeBeneficiaryNotFound, "Beneficiary '%s' is no longer active", ben.Nickname), nil
		}
		return *ben.AccountID, ben.Nickname, nil, nil
	}
	if p.ToAccountID == nil {
		return uuid.Nil, "", invalid(CodeDestinationNotFound, "Transfer has no destination"), nil
	}
	return *p.ToAccountID, "", nil, nil
}

// Reject cancels a pending proposal owned by userID.
func (l *Ledger) Reject(ctx context.Context, userID, proposalID uuid.UUID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Rejected by user"
	}
	reason = trimDescription(reason)

	err := l.repo.WithinTx(ctx, func(tx store.Tx) error {
		err := tx.RejectPendingProposal(ctx, userID, proposalID, reason, l.now().UTC())
		if errors.Is(err, store.ErrProposalNotFound) {
			return proposalNotFound()
		}
		return err
	})
	if err != nil {
		return l.done("reject", err)
	}
	l.done("reject", nil)
	l.publish(ctx, domain.RoutingKeyProposalRejected, userID, proposalID, domain.TransferStatusRejected, decimal.Zero, "", "", reason)
	return nil
}

// ListPending returns the user's pending proposals, newest first.
func (l *Ledger) ListPending(ctx context.Context, userID uuid.UUID) ([]domain.ProposalSummary, error) {
	out, err := l.repo.ListProposals(ctx, userID, []domain.TransferStatus{domain.TransferStatusPending}, maxPendingListed)
	if err != nil {
		return nil, fmt.Errorf("list pending proposals: %w", err)
	}
	return out, nil
}

// ListHistory returns the user's resolved proposals, most recent first.
func (l *Ledger) ListHistory(ctx context.Context, userID uuid.UUID, limit int) ([]domain.ProposalSummary, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	out, err := l.repo.ListProposals(ctx, userID, []domain.TransferStatus{
		domain.TransferStatusCompleted, domain.TransferStatusFailed, domain.TransferStatusRejected,
	}, limit)
	if err != nil {
		return nil, fmt.Errorf("list proposal history: %w", err)
	}
	return out, nil
}

// done records the outcome of an operation and passes err through.
func (l *Ledger) done(operation string, err error) error {
	var verr *ValidationError
	switch {
	case err == nil:
		l.metrics.LedgerOperation(operation, "ok")
	case errors.As(err, &verr):
		l.metrics.LedgerOperation(operation, "invalid")
	default:
		l.metrics.LedgerOperation(operation, "error")
		l.logger.Error("ledger operation failed", "operation", operation, "error", err)
	}
	return err
}

func (l *Ledger) publish(ctx context.Context, routingKey string, userID, proposalID uuid.UUID, status domain.TransferStatus, amount decimal.Decimal, currency, reference, reason string) {
	if l.events == nil {
		return
	}
	event := domain.TransferEvent{
		ProposalID:      proposalID,
		UserID:          userID,
		Status:          status,
		Amount:          amount.StringFixed(2),
		Currency:        currency,
		ReferenceNumber: reference,
		Reason:          reason,
		OccurredAt:      l.now().UTC(),
	}
	if err := l.events.PublishTransferEvent(ctx, routingKey, event); err != nil {
		l.logger.Warn("transfer event publish failed", "routing_key", routingKey, "proposal_id", proposalID, "error", err)
	}
}

func referenceNumber(at time.Time, id uuid.UUID) string {
	return fmt.Sprintf("TRF-%s-%s", at.Format("20060102"), strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8]))
}

func trimDescription(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > maxDescriptionLen {
		return string(r[:maxDescriptionLen])
	}
	return s
}
