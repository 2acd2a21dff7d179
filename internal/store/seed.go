package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/assistant-service/internal/domain"
)

// Demo identities used by the in-memory store.
var (
	DemoAliceID = uuid.MustParse("11111111-1111-4111-8111-111111111111")
	DemoBobID   = uuid.MustParse("22222222-2222-4222-8222-222222222222")
	DemoCarolID = uuid.MustParse("33333333-3333-4333-8333-333333333333")
)

// SeedDemoData loads three demo customers with current and savings accounts,
// a month of card spending for Alice, and Carol saved as Alice's beneficiary.
func SeedDemoData(r *MemoryRepository, now time.Time) {
	type demoUser struct {
		id      uuid.UUID
		tag     string
		current string
		savings string
	}
	users := []demoUser{
		{DemoAliceID, "ALICE", "15000.00", "50000.00"},
		{DemoBobID, "BOB", "8200.50", "12000.00"},
		{DemoCarolID, "CAROL", "3100.00", "0.00"},
	}

	accounts := make(map[string]domain.Account)
	for i, u := range users {
		for j, acct := range []struct{ name, kind, balance string }{
			{"Current Account", "current", u.current},
			{"Savings Account", "savings", u.savings},
		} {
			a := domain.Account{
				ID:            uuid.NewSHA1(uuid.NameSpaceOID, []byte(u.tag+acct.kind)),
				UserID:        u.id,
				Name:          acct.name,
				AccountNumber: fmt.Sprintf("PDB-%s-%03d", u.tag, j+1),
				Type:          acct.kind,
				Balance:       decimal.RequireFromString(acct.balance),
				Currency:      "AED",
				IsActive:      true,
				CreatedAt:     now.Add(-time.Duration(365-i) * 24 * time.Hour),
			}
			r.PutAccount(a)
			accounts[a.AccountNumber] = a
		}
	}

	carol := accounts["PDB-CAROL-001"]
	r.PutBeneficiary(domain.Beneficiary{
		ID:            uuid.NewSHA1(uuid.NameSpaceOID, []byte("ALICE-beneficiary-CAROL")),
		UserID:        DemoAliceID,
		AccountID:     &carol.ID,
		Nickname:      "Carol",
		AccountNumber: carol.AccountNumber,
		BankName:      "Phoenix Digital Bank",
		IsInternal:    true,
		Status:        domain.BeneficiaryStatusActive,
		CreatedAt:     now.Add(-30 * 24 * time.Hour),
		UpdatedAt:     now.Add(-30 * 24 * time.Hour),
	})

	aliceCurrent := accounts["PDB-ALICE-001"]
	spending := []struct {
		daysAgo  int
		category string
		desc     string
		amount   string
	}{
		{2, "groceries", "Carrefour", "245.30"},
		{4, "dining", "Al Fanar Restaurant", "180.00"},
		{6, "transport", "RTA Nol top-up", "100.00"},
		{9, "utilities", "DEWA bill", "612.75"},
		{12, "groceries", "Spinneys", "310.20"},
		{15, "shopping", "Dubai Mall", "1250.00"},
		{21, "dining", "Starbucks", "42.00"},
	}
	for i, s := range spending {
		r.PutTransaction(domain.Transaction{
			ID:              uuid.NewSHA1(uuid.NameSpaceOID, []byte("ALICE-txn-"+s.desc)),
			AccountID:       aliceCurrent.ID,
			Type:            domain.TransactionTypeDebit,
			Amount:          decimal.RequireFromString(s.amount),
			Category:        s.category,
			Description:     s.desc,
			ReferenceNumber: fmt.Sprintf("POS-%04d", i+1),
			Status:          "completed",
			OccurredAt:      now.Add(-time.Duration(s.daysAgo) * 24 * time.Hour),
		})
	}
	r.PutTransaction(domain.Transaction{
		ID:              uuid.NewSHA1(uuid.NameSpaceOID, []byte("ALICE-txn-salary")),
		AccountID:       aliceCurrent.ID,
		Type:            domain.TransactionTypeCredit,
		Amount:          decimal.RequireFromString("18000.00"),
		Category:        "salary",
		Description:     "Monthly salary",
		ReferenceNumber: "SAL-001",
		Status:          "completed",
		OccurredAt:      now.Add(-25 * 24 * time.Hour),
	})
}
