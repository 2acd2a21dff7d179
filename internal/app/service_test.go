package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/assistant-service/internal/domain"
	"github.com/transfa/assistant-service/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	repo := store.NewMemoryRepository()
	store.SeedDemoData(repo, time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC))
	return NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func validationMessage(t *testing.T, err error) string {
	t.Helper()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	return verr.Message
}

func TestBalances(t *testing.T) {
	svc := newTestService(t)

	accounts, err := svc.Balances(context.Background(), store.DemoAliceID)
	if err != nil {
		t.Fatalf("Balances returned error: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	for _, a := range accounts {
		if a.UserID != store.DemoAliceID {
			t.Fatalf("account %s belongs to another user", a.ID)
		}
	}
}

func TestTransactions_LimitAndWindow(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	txns, err := svc.Transactions(ctx, store.DemoAliceID, domain.TransactionFilter{Limit: 3})
	if err != nil {
		t.Fatalf("Transactions returned error: %v", err)
	}
	if len(txns) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txns))
	}
	for i := 1; i < len(txns); i++ {
		if txns[i].OccurredAt.After(txns[i-1].OccurredAt) {
			t.Fatalf("transactions not ordered newest first")
		}
	}

	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.Transactions(ctx, store.DemoAliceID, domain.TransactionFilter{From: &from, To: &to})
	if msg := validationMessage(t, err); msg != "Start date must not be after end date" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestBeneficiaryLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	added, err := svc.AddBeneficiary(ctx, store.DemoAliceID, "pdb-bob-001", "Bob")
	if err != nil {
		t.Fatalf("AddBeneficiary returned error: %v", err)
	}
	if added.Reactivated {
		t.Fatalf("new beneficiary reported as reactivated")
	}
	if added.Beneficiary.AccountNumber != "PDB-BOB-001" || added.Beneficiary.BankName != BankName {
		t.Fatalf("unexpected beneficiary %+v", added.Beneficiary)
	}

	_, err = svc.AddBeneficiary(ctx, store.DemoAliceID, "PDB-BOB-001", "Bobby")
	if msg := validationMessage(t, err); !strings.Contains(msg, "already exists as 'Bob'") {
		t.Fatalf("unexpected duplicate message %q", msg)
	}

	if err := svc.RemoveBeneficiary(ctx, store.DemoAliceID, added.Beneficiary.ID); err != nil {
		t.Fatalf("RemoveBeneficiary returned error: %v", err)
	}
	err = svc.RemoveBeneficiary(ctx, store.DemoAliceID, added.Beneficiary.ID)
	if msg := validationMessage(t, err); msg != "Beneficiary not found" {
		t.Fatalf("unexpected message %q", msg)
	}

	list, err := svc.Beneficiaries(ctx, store.DemoAliceID)
	if err != nil {
		t.Fatalf("Beneficiaries returned error: %v", err)
	}
	for _, b := range list {
		if b.ID == added.Beneficiary.ID {
			t.Fatalf("removed beneficiary still listed")
		}
	}

	again, err := svc.AddBeneficiary(ctx, store.DemoAliceID, "PDB-BOB-001", "Bobby")
	if err != nil {
		t.Fatalf("re-adding returned error: %v", err)
	}
	if !again.Reactivated || again.Beneficiary.ID != added.Beneficiary.ID || again.Beneficiary.Nickname != "Bobby" {
		t.Fatalf("expected reactivation of the same row, got %+v", again)
	}
}

func TestAddBeneficiary_Rejections(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		number   string
		nickname string
		want     string
	}{
		{"unknown account", "GB00-0000", "Dave", "Account number not found. Only Phoenix Digital Bank accounts are supported"},
		{"own account", "PDB-ALICE-002", "Me", "You cannot add your own account as a beneficiary"},
		{"missing nickname", "PDB-BOB-001", "  ", "Nickname is required"},
		{"missing number", "", "Bob", "Account number is required"},
		{"long nickname", "PDB-BOB-001", strings.Repeat("x", MaxNicknameLength+1), "Nickname must be at most 64 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddBeneficiary(ctx, store.DemoAliceID, tt.number, tt.nickname)
			if msg := validationMessage(t, err); msg != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, msg)
			}
		})
	}
}

func TestRemoveBeneficiary_ForeignID(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	list, err := svc.Beneficiaries(ctx, store.DemoAliceID)
	if err != nil || len(list) == 0 {
		t.Fatalf("expected seeded beneficiary, got %v (err %v)", list, err)
	}

	err = svc.RemoveBeneficiary(ctx, store.DemoBobID, list[0].ID)
	if msg := validationMessage(t, err); msg != "Beneficiary not found" {
		t.Fatalf("unexpected message %q", msg)
	}
	err = svc.RemoveBeneficiary(ctx, store.DemoAliceID, uuid.New())
	if msg := validationMessage(t, err); msg != "Beneficiary not found" {
		t.Fatalf("unexpected message %q", msg)
	}
}
