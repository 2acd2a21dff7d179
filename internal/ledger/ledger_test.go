package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/assistant-service/internal/domain"
	"github.com/transfa/assistant-service/internal/store"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events map[string]int
}

func (p *recordingPublisher) PublishTransferEvent(ctx context.Context, routingKey string, event domain.TransferEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		p.events = map[string]int{}
	}
	p.events[routingKey]++
	return nil
}

func newTestLedger(t *testing.T) (*Ledger, *store.MemoryRepository, *recordingPublisher) {
	t.Helper()
	repo := store.NewMemoryRepository()
	store.SeedDemoData(repo, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	pub := &recordingPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := New(repo, pub, nil, logger, NewAmountPolicy(decimal.NewFromInt(1_000_000), "AED"))
	return l, repo, pub
}

func accountByNumber(t *testing.T, repo *store.MemoryRepository, userID uuid.UUID, number string) domain.Account {
	t.Helper()
	accounts, err := repo.ListAccounts(context.Background(), userID)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	for _, a := range accounts {
		if a.AccountNumber == number {
			return a
		}
	}
	t.Fatalf("account %s not found", number)
	return domain.Account{}
}

func requireCode(t *testing.T, err error, code string) *ValidationError {
	t.Helper()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError %s, got %v", code, err)
	}
	if verr.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, verr.Code, verr.Message)
	}
	return verr
}

func TestProposeExternal_UnknownBeneficiary(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.ProposeExternal(context.Background(), store.DemoAliceID, "Current", "Bob", decimal.NewFromInt(500), "")
	verr := requireCode(t, err, CodeBeneficiaryNotFound)
	if !strings.Contains(verr.Message, "Bob") {
		t.Fatalf("expected message to name the beneficiary, got %q", verr.Message)
	}
}

func TestProposeExternal_Validation(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.ProposeExternal(ctx, store.DemoAliceID, "Brokerage", "Carol", decimal.NewFromInt(5), "")
	requireCode(t, err, CodeSourceNotFound)

	_, err = l.ProposeExternal(ctx, store.DemoAliceID, "Current", "Carol", decimal.NewFromInt(15001), "")
	verr := requireCode(t, err, CodeInsufficientFunds)
	if !strings.Contains(verr.Message, "Balance: 15000.00 AED") {
		t.Fatalf("expected balance in message, got %q", verr.Message)
	}

	_, err = l.ProposeExternal(ctx, store.DemoAliceID, "Current", "Carol", decimal.NewFromInt(0), "")
	requireCode(t, err, CodeAmountNotPositive)

	_, err = l.ProposeExternal(ctx, store.DemoAliceID, "Current", "Carol", decimal.NewFromInt(2_000_000), "")
	requireCode(t, err, CodeAmountAboveLimit)
}

func TestProposeInternal_SameAccount(t *testing.T) {
	l, _, _ := newTestLedger(t)
	_, err := l.ProposeInternal(context.Background(), store.DemoAliceID, "Savings", "savings account", decimal.NewFromInt(10), "")
	requireCode(t, err, CodeSameAccount)
}

func TestProposeDoesNotMoveFunds(t *testing.T) {
	l, repo, pub := newTestLedger(t)
	before := accountByNumber(t, repo, store.DemoAliceID, "PDB-ALICE-001")

	p, err := l.ProposeExternal(context.Background(), store.DemoAliceID, "current", "carol", decimal.RequireFromString("250.5"), "Dinner")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if p.Status != domain.TransferStatusPending || p.To != "Carol" || p.Amount.StringFixed(2) != "250.50" {
		t.Fatalf("unexpected proposal: %+v", p)
	}

	after := accountByNumber(t, repo, store.DemoAliceID, "PDB-ALICE-001")
	if !after.Balance.Equal(before.Balance) {
		t.Fatalf("proposal moved funds: %s -> %s", before.Balance, after.Balance)
	}
	if pub.events[domain.RoutingKeyProposalCreated] != 1 {
		t.Fatalf("expected one created event, got %v", pub.events)
	}
}

func TestApprove_SettlesAndConservesFunds(t *testing.T) {
	l, repo, pub := newTestLedger(t)
	ctx := context.Background()
	src := accountByNumber(t, repo, store.DemoAliceID, "PDB-ALICE-001")
	dst := accountByNumber(t, repo, store.DemoCarolID, "PDB-CAROL-001")
	totalBefore := src.Balance.Add(dst.Balance)

	p, err := l.ProposeExternal(ctx, store.DemoAliceID, "Current", "Carol", decimal.NewFromInt(500), "")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	s, err := l.Approve(ctx, store.DemoAliceID, p.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !strings.HasPrefix(s.ReferenceNumber, "TRF-") {
		t.Fatalf("unexpected reference %q", s.ReferenceNumber)
	}
	if s.NewBalance.StringFixed(2) != "14500.00" {
		t.Fatalf("expected new balance 14500.00, got %s", s.NewBalance.StringFixed(2))
	}

	src = accountByNumber(t, repo, store.DemoAliceID, "PDB-ALICE-001")
	dst = accountByNumber(t, repo, store.DemoCarolID, "PDB-CAROL-001")
	if !src.Balance.Add(dst.Balance).Equal(totalBefore) {
		t.Fatalf("funds not conserved: before=%s after=%s", totalBefore, src.Balance.Add(dst.Balance))
	}
	if dst.Balance.StringFixed(2) != "3600.00" {
		t.Fatalf("expected Carol to have 3600.00, got %s", dst.Balance.StringFixed(2))
	}

	stored, _ := repo.Proposal(p.ID)
	if stored.Status != domain.TransferStatusCompleted || stored.ReferenceNumber != s.ReferenceNumber {
		t.Fatalf("unexpected stored proposal: %+v", stored)
	}

	txns, _ := repo.ListTransactions(ctx, store.DemoCarolID, domain.TransactionFilter{})
	if len(txns) != 1 || txns[0].Type != domain.TransactionTypeTransferIn || txns[0].ReferenceNumber != s.ReferenceNumber {
		t.Fatalf("expected one transfer_in entry for Carol, got %+v", txns)
	}
	if pub.events[domain.RoutingKeyProposalCompleted] != 1 {
		t.Fatalf("expected completed event, got %v", pub.events)
	}
}

func TestApprove_ConcurrentApprovalsSucceedOnce(t *testing.T) {
	l, repo, _ := newTestLedger(t)
	ctx := context.Background()

	p, err := l.ProposeInternal(ctx, store.DemoAliceID, "Savings", "Current", decimal.NewFromInt(1000), "")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		notFound  int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := l.Approve(ctx, store.DemoAliceID, p.ID)
			mu.Lock()
			defer mu.Unlock()
			var verr *ValidationError
			switch {
			case err == nil:
				successes++
			case errors.As(err, &verr) && verr.Code == CodeProposalNotFound:
				notFound++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 || notFound != workers-1 {
		t.Fatalf("expected exactly one success, got successes=%d notFound=%d", successes, notFound)
	}
	savings := accountByNumber(t, repo, store.DemoAliceID, "PDB-ALICE-002")
	if savings.Balance.StringFixed(2) != "49000.00" {
		t.Fatalf("expected a single debit, savings balance is %s", savings.Balance.StringFixed(2))
	}
}

func TestApprove_UniformNotFound(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	p, err := l.ProposeExternal(ctx, store.DemoAliceID, "Current", "Carol", decimal.NewFromInt(10), "")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	_, wrongID := l.Approve(ctx, store.DemoAliceID, uuid.New())
	_, wrongOwner := l.Approve(ctx, store.DemoBobID, p.ID)
	if err := l.Reject(ctx, store.DemoAliceID, p.ID, ""); err != nil {
		t.Fatalf("reject: %v", err)
	}
	_, alreadyProcessed := l.Approve(ctx, store.DemoAliceID, p.ID)
	rejectAgain := l.Reject(ctx, store.DemoAliceID, p.ID, "")

	for name, err := range map[string]error{
		"wrong id":          wrongID,
		"wrong owner":       wrongOwner,
		"already processed": alreadyProcessed,
		"reject again":      rejectAgain,
	} {
		verr := requireCode(t, err, CodeProposalNotFound)
		if verr.Message != "Transfer not found or already processed" {
			t.Fatalf("%s: unexpected message %q", name, verr.Message)
		}
	}
}

func TestApprove_RevalidatesFundsAndMarksFailed(t *testing.T) {
	l, repo, pub := newTestLedger(t)
	ctx := context.Background()

	first, err := l.ProposeExternal(ctx, store.DemoAliceID, "Current", "Carol", decimal.NewFromInt(10000), "")
	if err != nil {
		t.Fatalf("propose first: %v", err)
	}
	second, err := l.ProposeExternal(ctx, store.DemoAliceID, "Current", "Carol", decimal.NewFromInt(10000), "")
	if err != nil {
		t.Fatalf("propose second: %v", err)
	}
	if _, err := l.Approve(ctx, store.DemoAliceID, first.ID); err != nil {
		t.Fatalf("approve first: %v", err)
	}

	_, err = l.Approve(ctx, store.DemoAliceID, second.ID)
	verr := requireCode(t, err, CodeInsufficientFunds)
	if !strings.Contains(verr.Message, "Balance: 5000.00 AED") {
		t.Fatalf("expected current balance in message, got %q", verr.Message)
	}

	stored, _ := repo.Proposal(second.ID)
	if stored.Status != domain.TransferStatusFailed || stored.FailureReason == "" {
		t.Fatalf("expected failed proposal with reason, got %+v", stored)
	}
	current := accountByNumber(t, repo, store.DemoAliceID, "PDB-ALICE-001")
	if current.Balance.StringFixed(2) != "5000.00" {
		t.Fatalf("failed approval moved funds: %s", current.Balance.StringFixed(2))
	}

	_, err = l.Approve(ctx, store.DemoAliceID, second.ID)
	requireCode(t, err, CodeProposalNotFound)
	if pub.events[domain.RoutingKeyProposalFailed] != 1 {
		t.Fatalf("expected failed event, got %v", pub.events)
	}
}

func TestApprove_RemovedBeneficiaryFails(t *testing.T) {
	l, repo, _ := newTestLedger(t)
	ctx := context.Background()

	p, err := l.ProposeExternal(ctx, store.DemoAliceID, "Current", "Carol", decimal.NewFromInt(10), "")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	err = repo.WithinTx(ctx, func(tx store.Tx) error {
		return tx.RemoveBeneficiary(ctx, store.DemoAliceID, *p2b(t, repo, p.ID), time.Now())
	})
	if err != nil {
		t.Fatalf("remove beneficiary: %v", err)
	}

	_, err = l.Approve(ctx, store.DemoAliceID, p.ID)
	requireCode(t, err, CodeBeneficiaryNotFound)
	stored, _ := repo.Proposal(p.ID)
	if stored.Status != domain.TransferStatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
}

func p2b(t *testing.T, repo *store.MemoryRepository, proposalID uuid.UUID) *uuid.UUID {
	t.Helper()
	p, ok := repo.Proposal(proposalID)
	if !ok || p.ToBeneficiaryID == nil {
		t.Fatalf("proposal %s has no beneficiary", proposalID)
	}
	return p.ToBeneficiaryID
}

func TestListPendingAndHistory(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	a, _ := l.ProposeExternal(ctx, store.DemoAliceID, "Current", "Carol", decimal.NewFromInt(10), "")
	b, _ := l.ProposeInternal(ctx, store.DemoAliceID, "Current", "Savings", decimal.NewFromInt(20), "")
	if _, err := l.Approve(ctx, store.DemoAliceID, b.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	pending, err := l.ListPending(ctx, store.DemoAliceID)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != a.ID || pending[0].ToName != "Carol" || pending[0].FromAccountName != "Current Account" {
		t.Fatalf("unexpected pending list: %+v", pending)
	}

	history, err := l.ListHistory(ctx, store.DemoAliceID, 0)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 1 || history[0].ID != b.ID || history[0].ToName != "Savings Account" {
		t.Fatalf("unexpected history: %+v", history)
	}

	other, _ := l.ListPending(ctx, store.DemoBobID)
	if len(other) != 0 {
		t.Fatalf("pending list leaked across users: %+v", other)
	}
}
