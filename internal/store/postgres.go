/**
 * @description
 * PostgreSQL implementation of Repository. Reads go straight to the pool; writes
 * run inside WithinTx on a pgx transaction.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver and connection pool.
 * - github.com/shopspring/decimal: NUMERIC columns are scanned into decimals.
 *
 * @notes
 * - Approval correctness relies on READ COMMITTED row locks: the pending
 *   proposal is locked with a status predicate, so a second approver blocks on
 *   the lock and then sees no row once the first commits.
 */

package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/transfa/assistant-service/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository is the production Repository.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a repository over an established pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate applies the embedded schema. It is safe to run repeatedly.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const accountColumns = `id, user_id, name, account_number, account_type, balance, currency, is_active, created_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.AccountNumber, &a.Type, &a.Balance, &a.Currency, &a.IsActive, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	a.Currency = strings.TrimSpace(a.Currency)
	return &a, nil
}

const beneficiaryColumns = `id, user_id, account_id, nickname, account_number, bank_name, is_internal, status, created_at, updated_at`

func scanBeneficiary(row pgx.Row) (*domain.Beneficiary, error) {
	var b domain.Beneficiary
	err := row.Scan(&b.ID, &b.UserID, &b.AccountID, &b.Nickname, &b.AccountNumber, &b.BankName, &b.IsInternal, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBeneficiaryNotFound
		}
		return nil, err
	}
	return &b, nil
}

const proposalColumns = `id, user_id, kind, from_account_id, to_account_id, to_beneficiary_id, amount, currency,
	description, status, COALESCE(failure_reason, ''), COALESCE(reference_number, ''), created_at, resolved_at`

func proposalDest(p *domain.TransferProposal) []any {
	return []any{&p.ID, &p.UserID, &p.Kind, &p.FromAccountID, &p.ToAccountID, &p.ToBeneficiaryID, &p.Amount, &p.Currency,
		&p.Description, &p.Status, &p.FailureReason, &p.ReferenceNumber, &p.CreatedAt, &p.ResolvedAt}
}

func (r *PostgresRepository) ListAccounts(ctx context.Context, userID uuid.UUID) ([]domain.Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 AND is_active ORDER BY name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (r *PostgresRepository) ListTransactions(ctx context.Context, userID uuid.UUID, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	accountFilter := ""
	if name := strings.TrimSpace(filter.AccountName); name != "" {
		accountFilter = likePattern(name)
	}
	rows, err := r.db.Query(ctx, `
		SELECT t.id, t.account_id, a.name, t.transaction_type, t.amount, a.currency, COALESCE(t.category, ''),
			COALESCE(t.description, ''), COALESCE(t.reference_number, ''), t.status, t.occurred_at
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE a.user_id = $1
		  AND ($2::text = '' OR a.name ILIKE $2 ESCAPE '\')
		  AND ($3::timestamptz IS NULL OR t.occurred_at >= $3)
		  AND ($4::timestamptz IS NULL OR t.occurred_at < $4)
		  AND ($5::text = '' OR lower(t.category) = lower($5))
		ORDER BY t.occurred_at DESC
		LIMIT $6`, userID, accountFilter, filter.From, filter.To, strings.TrimSpace(filter.Category), filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.AccountName, &t.Type, &t.Amount, &t.Currency, &t.Category,
			&t.Description, &t.ReferenceNumber, &t.Status, &t.OccurredAt); err != nil {
			return nil, err
		}
		t.Currency = strings.TrimSpace(t.Currency)
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (r *PostgresRepository) SpendByCategory(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]domain.CategorySpend, error) {
	rows, err := r.db.Query(ctx, `
		SELECT COALESCE(NULLIF(t.category, ''), 'uncategorized'), a.currency, SUM(t.amount), COUNT(*)
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE a.user_id = $1
		  AND t.transaction_type = 'debit'
		  AND ($2::timestamptz IS NULL OR t.occurred_at >= $2)
		  AND ($3::timestamptz IS NULL OR t.occurred_at < $3)
		GROUP BY 1, 2
		ORDER BY SUM(t.amount) DESC`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var spend []domain.CategorySpend
	for rows.Next() {
		var s domain.CategorySpend
		if err := rows.Scan(&s.Category, &s.Currency, &s.Total, &s.Count); err != nil {
			return nil, err
		}
		s.Currency = strings.TrimSpace(s.Currency)
		spend = append(spend, s)
	}
	return spend, rows.Err()
}

func (r *PostgresRepository) ListBeneficiaries(ctx context.Context, userID uuid.UUID) ([]domain.Beneficiary, error) {
	rows, err := r.db.Query(ctx, `SELECT `+beneficiaryColumns+` FROM beneficiaries WHERE user_id = $1 AND status = 'active' ORDER BY nickname`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Beneficiary
	for rows.Next() {
		b, err := scanBeneficiary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListProposals(ctx context.Context, userID uuid.UUID, statuses []domain.TransferStatus, limit int) ([]domain.ProposalSummary, error) {
	wanted := make([]string, 0, len(statuses))
	for _, s := range statuses {
		wanted = append(wanted, string(s))
	}
	rows, err := r.db.Query(ctx, `
		SELECT p.id, p.user_id, p.kind, p.from_account_id, p.to_account_id, p.to_beneficiary_id, p.amount, p.currency,
			p.description, p.status, COALESCE(p.failure_reason, ''), COALESCE(p.reference_number, ''), p.created_at, p.resolved_at,
			fa.name, COALESCE(b.nickname, ta.name, '')
		FROM transfer_proposals p
		JOIN accounts fa ON fa.id = p.from_account_id
		LEFT JOIN accounts ta ON ta.id = p.to_account_id
		LEFT JOIN beneficiaries b ON b.id = p.to_beneficiary_id
		WHERE p.user_id = $1 AND p.status = ANY($2)
		ORDER BY COALESCE(p.resolved_at, p.created_at) DESC
		LIMIT $3`, userID, wanted, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ProposalSummary
	for rows.Next() {
		var s domain.ProposalSummary
		dest := append(proposalDest(&s.TransferProposal), &s.FromAccountName, &s.ToName)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		s.Currency = strings.TrimSpace(s.Currency)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListStaleProposals(ctx context.Context, olderThan time.Time, limit int) ([]domain.TransferProposal, error) {
	rows, err := r.db.Query(ctx, `SELECT `+proposalColumns+` FROM transfer_proposals
		WHERE status = 'pending' AND created_at < $1 ORDER BY created_at LIMIT $2`, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TransferProposal
	for rows.Next() {
		var p domain.TransferProposal
		if err := rows.Scan(proposalDest(&p)...); err != nil {
			return nil, err
		}
		p.Currency = strings.TrimSpace(p.Currency)
		out = append(out, p)
	}
	return out, rows.Err()
}

// WithinTx runs fn inside a READ COMMITTED transaction.
func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	db dbtx
}

func (t *pgTx) FindAccountByName(ctx context.Context, userID uuid.UUID, name string) (*domain.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrAccountNotFound
	}
	return scanAccount(t.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE user_id = $1 AND is_active AND name ILIKE $2 ESCAPE '\'
		ORDER BY (lower(name) = lower($3)) DESC, length(name), created_at
		LIMIT 1`, userID, likePattern(name), name))
}

func (t *pgTx) FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return scanAccount(t.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE upper(account_number) = upper($1) AND is_active`, strings.TrimSpace(accountNumber)))
}

func (t *pgTx) LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]domain.Account, error) {
	ordered := append([]uuid.UUID(nil), ids...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].String() < ordered[j].String() })

	locked := make(map[uuid.UUID]domain.Account, len(ordered))
	for _, id := range ordered {
		if _, seen := locked[id]; seen {
			continue
		}
		// One row at a time keeps the lock acquisition order deterministic.
		a, err := scanAccount(t.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 AND is_active FOR UPDATE`, id))
		if err != nil {
			return nil, err
		}
		locked[id] = *a
	}
	return locked, nil
}

func (t *pgTx) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) error {
	tag, err := t.db.Exec(ctx, `UPDATE accounts SET balance = balance + $1 WHERE id = $2 AND balance + $1 >= 0`, delta, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	_, err := t.db.Exec(ctx, `
		INSERT INTO transactions (id, account_id, transaction_type, amount, category, description, reference_number, status, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		txn.ID, txn.AccountID, txn.Type, txn.Amount, txn.Category, txn.Description, txn.ReferenceNumber, txn.Status, txn.OccurredAt)
	return err
}

func (t *pgTx) FindBeneficiaryByNickname(ctx context.Context, userID uuid.UUID, nickname string) (*domain.Beneficiary, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, ErrBeneficiaryNotFound
	}
	return scanBeneficiary(t.db.QueryRow(ctx, `SELECT `+beneficiaryColumns+` FROM beneficiaries
		WHERE user_id = $1 AND status = 'active' AND nickname ILIKE $2 ESCAPE '\'
		ORDER BY (lower(nickname) = lower($3)) DESC, length(nickname), created_at
		LIMIT 1`, userID, likePattern(nickname), nickname))
}

func (t *pgTx) FindBeneficiaryByID(ctx context.Context, userID, id uuid.UUID) (*domain.Beneficiary, error) {
	return scanBeneficiary(t.db.QueryRow(ctx, `SELECT `+beneficiaryColumns+` FROM beneficiaries WHERE id = $1 AND user_id = $2`, id, userID))
}

func (t *pgTx) FindBeneficiaryByAccountNumber(ctx context.Context, userID uuid.UUID, accountNumber string) (*domain.Beneficiary, error) {
	return scanBeneficiary(t.db.QueryRow(ctx, `SELECT `+beneficiaryColumns+` FROM beneficiaries
		WHERE user_id = $1 AND upper(account_number) = upper($2) FOR UPDATE`, userID, strings.TrimSpace(accountNumber)))
}

func (t *pgTx) InsertBeneficiary(ctx context.Context, b *domain.Beneficiary) error {
	_, err := t.db.Exec(ctx, `
		INSERT INTO beneficiaries (id, user_id, account_id, nickname, account_number, bank_name, is_internal, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.UserID, b.AccountID, b.Nickname, b.AccountNumber, b.BankName, b.IsInternal, b.Status, b.CreatedAt, b.UpdatedAt)
	return err
}

func (t *pgTx) ReactivateBeneficiary(ctx context.Context, userID, id uuid.UUID, nickname string, at time.Time) error {
	tag, err := t.db.Exec(ctx, `UPDATE beneficiaries SET status = 'active', nickname = $3, updated_at = $4
		WHERE id = $1 AND user_id = $2 AND status = 'removed'`, id, userID, nickname, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBeneficiaryNotFound
	}
	return nil
}

func (t *pgTx) RemoveBeneficiary(ctx context.Context, userID, id uuid.UUID, at time.Time) error {
	tag, err := t.db.Exec(ctx, `UPDATE beneficiaries SET status = 'removed', updated_at = $3
		WHERE id = $1 AND user_id = $2 AND status = 'active'`, id, userID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBeneficiaryNotFound
	}
	return nil
}

func (t *pgTx) InsertProposal(ctx context.Context, p *domain.TransferProposal) error {
	_, err := t.db.Exec(ctx, `
		INSERT INTO transfer_proposals (id, user_id, kind, from_account_id, to_account_id, to_beneficiary_id, amount, currency, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.UserID, p.Kind, p.FromAccountID, p.ToAccountID, p.ToBeneficiaryID, p.Amount, p.Currency, p.Description, p.Status, p.CreatedAt)
	return err
}

func (t *pgTx) LockPendingProposal(ctx context.Context, userID, id uuid.UUID) (*domain.TransferProposal, error) {
	var p domain.TransferProposal
	err := t.db.QueryRow(ctx, `SELECT `+proposalColumns+` FROM transfer_proposals
		WHERE id = $1 AND user_id = $2 AND status = 'pending' FOR UPDATE`, id, userID).Scan(proposalDest(&p)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, err
	}
	p.Currency = strings.TrimSpace(p.Currency)
	return &p, nil
}

func (t *pgTx) ResolveProposal(ctx context.Context, id uuid.UUID, status domain.TransferStatus, reason, reference string, at time.Time) error {
	tag, err := t.db.Exec(ctx, `UPDATE transfer_proposals
		SET status = $2, failure_reason = NULLIF($3, ''), reference_number = NULLIF($4, ''), resolved_at = $5
		WHERE id = $1 AND status = 'pending'`, id, status, reason, reference, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProposalNotFound
	}
	return nil
}

func (t *pgTx) RejectPendingProposal(ctx context.Context, userID, id uuid.UUID, reason string, at time.Time) error {
	tag, err := t.db.Exec(ctx, `UPDATE transfer_proposals
		SET status = 'rejected', failure_reason = NULLIF($3, ''), resolved_at = $4
		WHERE id = $1 AND user_id = $2 AND status = 'pending'`, id, userID, reason, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProposalNotFound
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
