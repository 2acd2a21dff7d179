package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/transfa/assistant-service/internal/domain"
	"github.com/transfa/assistant-service/internal/ledger"
)

type accountView struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	AccountNumber string      `json:"account_number"`
	Type          string      `json:"account_type"`
	Balance       json.Number `json:"balance"`
	Currency      string      `json:"currency"`
}

type transactionView struct {
	ID              string      `json:"id"`
	AccountName     string      `json:"account_name"`
	Type            string      `json:"transaction_type"`
	Amount          json.Number `json:"amount"`
	Currency        string      `json:"currency"`
	Category        string      `json:"category"`
	Description     string      `json:"description"`
	ReferenceNumber string      `json:"reference_number,omitempty"`
	Status          string      `json:"status"`
	OccurredAt      string      `json:"occurred_at"`
}

type spendView struct {
	Category string      `json:"category"`
	Total    json.Number `json:"total"`
	Currency string      `json:"currency"`
	Count    int         `json:"count"`
}

type beneficiaryView struct {
	ID            string `json:"id"`
	Nickname      string `json:"nickname"`
	AccountNumber string `json:"account_number"`
	BankName      string `json:"bank_name"`
	Status        string `json:"status"`
}

type transferView struct {
	ID              string      `json:"transfer_id"`
	FromAccount     string      `json:"from_account"`
	To              string      `json:"to"`
	Amount          json.Number `json:"amount"`
	Currency        string      `json:"currency"`
	Description     string      `json:"description,omitempty"`
	Status          string      `json:"status"`
	FailureReason   string      `json:"failure_reason,omitempty"`
	ReferenceNumber string      `json:"reference_number,omitempty"`
	CreatedAt       string      `json:"created_at"`
	ResolvedAt      string      `json:"resolved_at,omitempty"`
}

func newBeneficiaryView(b domain.Beneficiary) beneficiaryView {
	return beneficiaryView{
		ID:            b.ID.String(),
		Nickname:      b.Nickname,
		AccountNumber: b.AccountNumber,
		BankName:      b.BankName,
		Status:        string(b.Status),
	}
}

func newTransferViews(in []domain.ProposalSummary) []transferView {
	out := make([]transferView, 0, len(in))
	for _, p := range in {
		v := transferView{
			ID:              p.ID.String(),
			FromAccount:     p.FromAccountName,
			To:              p.ToName,
			Amount:          money(p.Amount),
			Currency:        p.Currency,
			Description:     p.Description,
			Status:          string(p.Status),
			FailureReason:   p.FailureReason,
			ReferenceNumber: p.ReferenceNumber,
			CreatedAt:       timestamp(p.CreatedAt),
		}
		if p.ResolvedAt != nil {
			v.ResolvedAt = timestamp(*p.ResolvedAt)
		}
		out = append(out, v)
	}
	return out
}

func (d *Dispatcher) getBalance(ctx context.Context, userID uuid.UUID) ([]accountView, error) {
	accounts, err := d.accounts.Balances(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, accountView{
			ID:            a.ID.String(),
			Name:          a.Name,
			AccountNumber: a.AccountNumber,
			Type:          a.Type,
			Balance:       money(a.Balance),
			Currency:      a.Currency,
		})
	}
	return views, nil
}

func (d *Dispatcher) getTransactions(ctx context.Context, userID uuid.UUID, args json.RawMessage) ([]transactionView, error) {
	var in struct {
		AccountName string `json:"account_name"`
		Category    string `json:"category"`
		FromDate    string `json:"from_date"`
		ToDate      string `json:"to_date"`
		Limit       int    `json:"limit"`
	}
	if err := decodeArgs(KindGetTransactions, args, &in); err != nil {
		return nil, err
	}
	from, to, err := parseWindow(in.FromDate, in.ToDate)
	if err != nil {
		return nil, err
	}
	txns, err := d.accounts.Transactions(ctx, userID, domain.TransactionFilter{
		AccountName: in.AccountName,
		Category:    in.Category,
		From:        from,
		To:          to,
		Limit:       in.Limit,
	})
	if err != nil {
		return nil, err
	}
	views := make([]transactionView, 0, len(txns))
	for _, t := range txns {
		views = append(views, transactionView{
			ID:              t.ID.String(),
			AccountName:     t.AccountName,
			Type:            string(t.Type),
			Amount:          money(t.Amount),
			Currency:        t.Currency,
			Category:        t.Category,
			Description:     t.Description,
			ReferenceNumber: t.ReferenceNumber,
			Status:          t.Status,
			OccurredAt:      timestamp(t.OccurredAt),
		})
	}
	return views, nil
}

func (d *Dispatcher) getSpendByCategory(ctx context.Context, userID uuid.UUID, args json.RawMessage) ([]spendView, error) {
	var in struct {
		FromDate string `json:"from_date"`
		ToDate   string `json:"to_date"`
	}
	if err := decodeArgs(KindGetSpendByCategory, args, &in); err != nil {
		return nil, err
	}
	from, to, err := parseWindow(in.FromDate, in.ToDate)
	if err != nil {
		return nil, err
	}
	spend, err := d.accounts.SpendByCategory(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	views := make([]spendView, 0, len(spend))
	for _, s := range spend {
		views = append(views, spendView{Category: s.Category, Total: money(s.Total), Currency: s.Currency, Count: s.Count})
	}
	return views, nil
}

func (d *Dispatcher) getBeneficiaries(ctx context.Context, userID uuid.UUID) ([]beneficiaryView, error) {
	list, err := d.accounts.Beneficiaries(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]beneficiaryView, 0, len(list))
	for _, b := range list {
		views = append(views, newBeneficiaryView(b))
	}
	return views, nil
}

func (d *Dispatcher) addBeneficiary(ctx context.Context, userID uuid.UUID, args json.RawMessage) (map[string]any, error) {
	var in struct {
		AccountNumber string `json:"account_number"`
		Nickname      string `json:"nickname"`
	}
	if err := decodeArgs(KindAddBeneficiary, args, &in); err != nil {
		return nil, err
	}
	res, err := d.accounts.AddBeneficiary(ctx, userID, in.AccountNumber, in.Nickname)
	if err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("Beneficiary '%s' added", res.Beneficiary.Nickname)
	if res.Reactivated {
		msg = fmt.Sprintf("Beneficiary '%s' restored", res.Beneficiary.Nickname)
	}
	return map[string]any{
		"beneficiary": newBeneficiaryView(res.Beneficiary),
		"reactivated": res.Reactivated,
		"message":     msg,
	}, nil
}

func (d *Dispatcher) removeBeneficiary(ctx context.Context, userID uuid.UUID, args json.RawMessage) (map[string]any, error) {
	var in struct {
		BeneficiaryID string `json:"beneficiary_id"`
	}
	if err := decodeArgs(KindRemoveBeneficiary, args, &in); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(strings.TrimSpace(in.BeneficiaryID))
	if err != nil {
		return nil, badArgs("Beneficiary not found")
	}
	if err := d.accounts.RemoveBeneficiary(ctx, userID, id); err != nil {
		return nil, err
	}
	return map[string]any{"beneficiary_id": id.String(), "message": "Beneficiary removed"}, nil
}

type proposeArgs struct {
	FromAccountName       string          `json:"from_account_name"`
	ToBeneficiaryNickname string          `json:"to_beneficiary_nickname"`
	ToAccountName         string          `json:"to_account_name"`
	Amount                json.RawMessage `json:"amount"`
	Description           string          `json:"description"`
}

func proposalResult(p *ledger.Proposal) map[string]any {
	return map[string]any{
		"transfer_id":  p.ID.String(),
		"from_account": p.FromAccount,
		"to":           p.To,
		"amount":       money(p.Amount),
		"currency":     p.Currency,
		"description":  p.Description,
		"status":       string(p.Status),
		"message":      "Transfer proposal created. Awaiting your approval.",
	}
}

func (d *Dispatcher) proposeTransfer(ctx context.Context, userID uuid.UUID, args json.RawMessage) (map[string]any, error) {
	var in proposeArgs
	if err := decodeArgs(KindProposeTransfer, args, &in); err != nil {
		return nil, err
	}
	amount, err := d.parseAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	p, err := d.transfers.ProposeExternal(ctx, userID, in.FromAccountName, in.ToBeneficiaryNickname, amount, in.Description)
	if err != nil {
		return nil, err
	}
	return proposalResult(p), nil
}

func (d *Dispatcher) proposeInternalTransfer(ctx context.Context, userID uuid.UUID, args json.RawMessage) (map[string]any, error) {
	var in proposeArgs
	if err := decodeArgs(KindProposeInternalTransfer, args, &in); err != nil {
		return nil, err
	}
	amount, err := d.parseAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	p, err := d.transfers.ProposeInternal(ctx, userID, in.FromAccountName, in.ToAccountName, amount, in.Description)
	if err != nil {
		return nil, err
	}
	return proposalResult(p), nil
}

// transferID parses a proposal id. A malformed id gets the same error as an
// unknown one.
func transferID(kind Kind, args json.RawMessage) (uuid.UUID, string, error) {
	var in struct {
		TransferID string `json:"transfer_id"`
		Reason     string `json:"reason"`
	}
	if err := decodeArgs(kind, args, &in); err != nil {
		return uuid.Nil, "", err
	}
	id, err := uuid.Parse(strings.TrimSpace(in.TransferID))
	if err != nil {
		return uuid.Nil, "", badArgs("Transfer not found or already processed")
	}
	return id, in.Reason, nil
}

func (d *Dispatcher) approveTransfer(ctx context.Context, userID uuid.UUID, args json.RawMessage) (map[string]any, error) {
	id, _, err := transferID(KindApproveTransfer, args)
	if err != nil {
		return nil, err
	}
	s, err := d.transfers.Approve(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"transfer_id":      s.ProposalID.String(),
		"reference_number": s.ReferenceNumber,
		"from_account":     s.FromAccount,
		"to":               s.To,
		"amount":           money(s.Amount),
		"currency":         s.Currency,
		"new_balance":      money(s.NewBalance),
		"status":           string(domain.TransferStatusCompleted),
		"message":          fmt.Sprintf("Transfer of %s %s to %s completed", s.Amount.StringFixed(2), s.Currency, s.To),
	}, nil
}

func (d *Dispatcher) rejectTransfer(ctx context.Context, userID uuid.UUID, args json.RawMessage) (map[string]any, error) {
	id, reason, err := transferID(KindRejectTransfer, args)
	if err != nil {
		return nil, err
	}
	if err := d.transfers.Reject(ctx, userID, id, reason); err != nil {
		return nil, err
	}
	return map[string]any{
		"transfer_id": id.String(),
		"status":      string(domain.TransferStatusRejected),
		"message":     "Transfer rejected",
	}, nil
}

func (d *Dispatcher) getPendingTransfers(ctx context.Context, userID uuid.UUID) ([]transferView, error) {
	list, err := d.transfers.ListPending(ctx, userID)
	if err != nil {
		return nil, err
	}
	return newTransferViews(list), nil
}

func (d *Dispatcher) getTransferHistory(ctx context.Context, userID uuid.UUID, args json.RawMessage) ([]transferView, error) {
	var in struct {
		Limit int `json:"limit"`
	}
	if err := decodeArgs(KindGetTransferHistory, args, &in); err != nil {
		return nil, err
	}
	list, err := d.transfers.ListHistory(ctx, userID, in.Limit)
	if err != nil {
		return nil, err
	}
	return newTransferViews(list), nil
}
