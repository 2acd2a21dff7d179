/**
 * @description
 * In-process implementation of Repository used for local development
 * (STORE_DRIVER=memory) and tests.
 *
 * @notes
 * - WithinTx holds the repository mutex for its whole duration and works on a
 *   copy of the data that replaces the live copy only on commit. Transactions are
 *   therefore fully serialized, which gives the same guarantees as the row locks
 *   taken by the PostgreSQL implementation.
 */
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/assistant-service/internal/domain"
)

type memoryData struct {
	accounts      map[uuid.UUID]domain.Account
	beneficiaries map[uuid.UUID]domain.Beneficiary
	proposals     map[uuid.UUID]domain.TransferProposal
	transactions  []domain.Transaction
}

func newMemoryData() *memoryData {
	return &memoryData{
		accounts:      make(map[uuid.UUID]domain.Account),
		beneficiaries: make(map[uuid.UUID]domain.Beneficiary),
		proposals:     make(map[uuid.UUID]domain.TransferProposal),
	}
}

func (d *memoryData) clone() *memoryData {
	c := newMemoryData()
	for k, v := range d.accounts {
		c.accounts[k] = v
	}
	for k, v := range d.beneficiaries {
		c.beneficiaries[k] = v
	}
	for k, v := range d.proposals {
		c.proposals[k] = v
	}
	c.transactions = append([]domain.Transaction(nil), d.transactions...)
	return c
}

// MemoryRepository keeps all state in maps guarded by a single mutex.
type MemoryRepository struct {
	mu   sync.Mutex
	data *memoryData
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{data: newMemoryData()}
}

// PutAccount inserts or replaces an account.
func (r *MemoryRepository) PutAccount(a domain.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.accounts[a.ID] = a
}

// PutBeneficiary inserts or replaces a beneficiary.
func (r *MemoryRepository) PutBeneficiary(b domain.Beneficiary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.beneficiaries[b.ID] = b
}

// PutTransaction appends a ledger entry.
func (r *MemoryRepository) PutTransaction(t domain.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.transactions = append(r.data.transactions, t)
}

// Account returns a snapshot of one account, active or not.
func (r *MemoryRepository) Account(id uuid.UUID) (domain.Account, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.data.accounts[id]
	return a, ok
}

// Proposal returns a snapshot of one proposal.
func (r *MemoryRepository) Proposal(id uuid.UUID) (domain.TransferProposal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data.proposals[id]
	return p, ok
}

func (r *MemoryRepository) ListAccounts(ctx context.Context, userID uuid.UUID) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Account
	for _, a := range r.data.accounts {
		if a.UserID == userID && a.IsActive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepository) ListTransactions(ctx context.Context, userID uuid.UUID, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	needle := strings.ToLower(strings.TrimSpace(filter.AccountName))
	category := strings.TrimSpace(filter.Category)
	var out []domain.Transaction
	for _, t := range r.data.transactions {
		a, ok := r.data.accounts[t.AccountID]
		if !ok || a.UserID != userID {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(a.Name), needle) {
			continue
		}
		if category != "" && !strings.EqualFold(t.Category, category) {
			continue
		}
		if !inWindow(t.OccurredAt, filter.From, filter.To) {
			continue
		}
		t.AccountName = a.Name
		t.Currency = a.Currency
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) SpendByCategory(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]domain.CategorySpend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	type key struct{ category, currency string }
	totals := make(map[key]*domain.CategorySpend)
	for _, t := range r.data.transactions {
		a, ok := r.data.accounts[t.AccountID]
		if !ok || a.UserID != userID || t.Type != domain.TransactionTypeDebit {
			continue
		}
		if !inWindow(t.OccurredAt, from, to) {
			continue
		}
		category := t.Category
		if category == "" {
			category = "uncategorized"
		}
		k := key{category, a.Currency}
		s, ok := totals[k]
		if !ok {
			s = &domain.CategorySpend{Category: category, Currency: a.Currency, Total: decimal.Zero}
			totals[k] = s
		}
		s.Total = s.Total.Add(t.Amount)
		s.Count++
	}

	out := make([]domain.CategorySpend, 0, len(totals))
	for _, s := range totals {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

func (r *MemoryRepository) ListBeneficiaries(ctx context.Context, userID uuid.UUID) ([]domain.Beneficiary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Beneficiary
	for _, b := range r.data.beneficiaries {
		if b.UserID == userID && b.IsActive() {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nickname < out[j].Nickname })
	return out, nil
}

func (r *MemoryRepository) ListProposals(ctx context.Context, userID uuid.UUID, statuses []domain.TransferStatus, limit int) ([]domain.ProposalSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make(map[domain.TransferStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	var out []domain.ProposalSummary
	for _, p := range r.data.proposals {
		if p.UserID != userID || !wanted[p.Status] {
			continue
		}
		summary := domain.ProposalSummary{TransferProposal: p}
		summary.FromAccountName = r.data.accounts[p.FromAccountID].Name
		switch {
		case p.ToBeneficiaryID != nil:
			summary.ToName = r.data.beneficiaries[*p.ToBeneficiaryID].Nickname
		case p.ToAccountID != nil:
			summary.ToName = r.data.accounts[*p.ToAccountID].Name
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return touchedAt(out[i].TransferProposal).After(touchedAt(out[j].TransferProposal)) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) ListStaleProposals(ctx context.Context, olderThan time.Time, limit int) ([]domain.TransferProposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.TransferProposal
	for _, p := range r.data.proposals {
		if p.Status == domain.TransferStatusPending && p.CreatedAt.Before(olderThan) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := r.data.clone()
	if err := fn(&memoryTx{data: work}); err != nil {
		return err
	}
	r.data = work
	return nil
}

func inWindow(at time.Time, from, to *time.Time) bool {
	if from != nil && at.Before(*from) {
		return false
	}
	if to != nil && !at.Before(*to) {
		return false
	}
	return true
}

func touchedAt(p domain.TransferProposal) time.Time {
	if p.ResolvedAt != nil {
		return *p.ResolvedAt
	}
	return p.CreatedAt
}

// bestNameMatch applies the fuzzy matching rules shared by accounts and
// beneficiaries: substring, then exact match first, then shortest, then oldest.
func bestNameMatch(name, needle string, created time.Time, bestName string, bestCreated time.Time, haveBest bool) bool {
	if !strings.Contains(strings.ToLower(name), strings.ToLower(needle)) {
		return false
	}
	if !haveBest {
		return true
	}
	exact := strings.EqualFold(name, needle)
	bestExact := strings.EqualFold(bestName, needle)
	if exact != bestExact {
		return exact
	}
	if len(name) != len(bestName) {
		return len(name) < len(bestName)
	}
	return created.Before(bestCreated)
}

type memoryTx struct {
	data *memoryData
}

func (t *memoryTx) FindAccountByName(ctx context.Context, userID uuid.UUID, name string) (*domain.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrAccountNotFound
	}
	var best *domain.Account
	for _, a := range t.data.accounts {
		if a.UserID != userID || !a.IsActive {
			continue
		}
		var bestName string
		var bestCreated time.Time
		if best != nil {
			bestName, bestCreated = best.Name, best.CreatedAt
		}
		if bestNameMatch(a.Name, name, a.CreatedAt, bestName, bestCreated, best != nil) {
			candidate := a
			best = &candidate
		}
	}
	if best == nil {
		return nil, ErrAccountNotFound
	}
	return best, nil
}

func (t *memoryTx) FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	accountNumber = strings.TrimSpace(accountNumber)
	for _, a := range t.data.accounts {
		if a.IsActive && strings.EqualFold(a.AccountNumber, accountNumber) {
			return &a, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (t *memoryTx) LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]domain.Account, error) {
	locked := make(map[uuid.UUID]domain.Account, len(ids))
	for _, id := range ids {
		a, ok := t.data.accounts[id]
		if !ok || !a.IsActive {
			return nil, ErrAccountNotFound
		}
		locked[id] = a
	}
	return locked, nil
}

func (t *memoryTx) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) error {
	a, ok := t.data.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	next := a.Balance.Add(delta)
	if next.IsNegative() {
		return ErrInsufficientFunds
	}
	a.Balance = next
	t.data.accounts[accountID] = a
	return nil
}

func (t *memoryTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	t.data.transactions = append(t.data.transactions, *txn)
	return nil
}

func (t *memoryTx) FindBeneficiaryByNickname(ctx context.Context, userID uuid.UUID, nickname string) (*domain.Beneficiary, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, ErrBeneficiaryNotFound
	}
	var best *domain.Beneficiary
	for _, b := range t.data.beneficiaries {
		if b.UserID != userID || !b.IsActive() {
			continue
		}
		var bestName string
		var bestCreated time.Time
		if best != nil {
			bestName, bestCreated = best.Nickname, best.CreatedAt
		}
		if bestNameMatch(b.Nickname, nickname, b.CreatedAt, bestName, bestCreated, best != nil) {
			candidate := b
			best = &candidate
		}
	}
	if best == nil {
		return nil, ErrBeneficiaryNotFound
	}
	return best, nil
}

func (t *memoryTx) FindBeneficiaryByID(ctx context.Context, userID, id uuid.UUID) (*domain.Beneficiary, error) {
	b, ok := t.data.beneficiaries[id]
	if !ok || b.UserID != userID {
		return nil, ErrBeneficiaryNotFound
	}
	return &b, nil
}

func (t *memoryTx) FindBeneficiaryByAccountNumber(ctx context.Context, userID uuid.UUID, accountNumber string) (*domain.Beneficiary, error) {
	accountNumber = strings.TrimSpace(accountNumber)
	for _, b := range t.data.beneficiaries {
		if b.UserID == userID && strings.EqualFold(b.AccountNumber, accountNumber) {
			return &b, nil
		}
	}
	return nil, ErrBeneficiaryNotFound
}

func (t *memoryTx) InsertBeneficiary(ctx context.Context, b *domain.Beneficiary) error {
	t.data.beneficiaries[b.ID] = *b
	return nil
}

func (t *memoryTx) ReactivateBeneficiary(ctx context.Context, userID, id uuid.UUID, nickname string, at time.Time) error {
	b, ok := t.data.beneficiaries[id]
	if !ok || b.UserID != userID || b.Status != domain.BeneficiaryStatusRemoved {
		return ErrBeneficiaryNotFound
	}
	b.Status = domain.BeneficiaryStatusActive
	b.Nickname = nickname
	b.UpdatedAt = at
	t.data.beneficiaries[id] = b
	return nil
}

func (t *memoryTx) RemoveBeneficiary(ctx context.Context, userID, id uuid.UUID, at time.Time) error {
	b, ok := t.data.beneficiaries[id]
	if !ok || b.UserID != userID || b.Status != domain.BeneficiaryStatusActive {
		return ErrBeneficiaryNotFound
	}
	b.Status = domain.BeneficiaryStatusRemoved
	b.UpdatedAt = at
	t.data.beneficiaries[id] = b
	return nil
}

func (t *memoryTx) InsertProposal(ctx context.Context, p *domain.TransferProposal) error {
	t.data.proposals[p.ID] = *p
	return nil
}

func (t *memoryTx) LockPendingProposal(ctx context.Context, userID, id uuid.UUID) (*domain.TransferProposal, error) {
	p, ok := t.data.proposals[id]
	if !ok || p.UserID != userID || p.Status != domain.TransferStatusPending {
		return nil, ErrProposalNotFound
	}
	return &p, nil
}

func (t *memoryTx) ResolveProposal(ctx context.Context, id uuid.UUID, status domain.TransferStatus, reason, reference string, at time.Time) error {
	p, ok := t.data.proposals[id]
	if !ok || p.Status != domain.TransferStatusPending {
		return ErrProposalNotFound
	}
	p.Status = status
	p.FailureReason = reason
	p.ReferenceNumber = reference
	p.ResolvedAt = &at
	t.data.proposals[id] = p
	return nil
}

func (t *memoryTx) RejectPendingProposal(ctx context.Context, userID, id uuid.UUID, reason string, at time.Time) error {
	p, ok := t.data.proposals[id]
	if !ok || p.UserID != userID || p.Status != domain.TransferStatusPending {
		return ErrProposalNotFound
	}
	p.Status = domain.TransferStatusRejected
	p.FailureReason = reason
	p.ResolvedAt = &at
	t.data.proposals[id] = p
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
