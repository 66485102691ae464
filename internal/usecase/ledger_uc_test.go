// File: internal/usecase/ledger_uc_test.go
package usecase

import (
	"context"
	"errors"
	"testing"

	"avatar-therapy-chat/internal/domain"
	"avatar-therapy-chat/internal/domain/model"
)

func TestLedgerSpendReReadsBalance(t *testing.T) {
	ctx := context.Background()
	repo := newMemLedgerRepo()
	repo.balances["user-1"] = 5

	uc := NewLedgerUseCase(repo, newTestLogger())

	b, err := uc.Spend(ctx, "user-1", 2, "purchase", "avatar unlock")
	if err != nil {
		t.Fatalf("Spend: %v", err)
	}
	if b.CurrentBalance != 3 {
		t.Errorf("balance = %d, want 3", b.CurrentBalance)
	}

	if _, err := uc.Spend(ctx, "user-1", 10, "purchase", "too much"); !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Errorf("overdraw err = %v, want ErrInsufficientCredits", err)
	}
	// A rejected debit leaves the balance untouched.
	b, _ = uc.GetBalance(ctx, "user-1")
	if b.CurrentBalance != 3 {
		t.Errorf("balance after rejection = %d, want 3", b.CurrentBalance)
	}
}

func TestLedgerGrantAndHistory(t *testing.T) {
	ctx := context.Background()
	repo := newMemLedgerRepo()
	uc := NewLedgerUseCase(repo, newTestLogger())

	rec, err := uc.Grant(ctx, "user-1", 50, model.TransactionGranted, "migration", "welcome credits")
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if rec.Amount != 50 || rec.TransactionType != model.TransactionGranted {
		t.Errorf("grant record = %+v", rec)
	}

	b, _ := uc.GetBalance(ctx, "user-1")
	if b.CurrentBalance != 50 {
		t.Errorf("balance = %d, want 50", b.CurrentBalance)
	}

	txs, err := uc.History(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(txs) != 1 {
		t.Errorf("history length = %d, want 1", len(txs))
	}
}

func TestLedgerValidation(t *testing.T) {
	uc := NewLedgerUseCase(newMemLedgerRepo(), newTestLogger())
	ctx := context.Background()

	if _, err := uc.GetBalance(ctx, ""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("GetBalance err = %v", err)
	}
	if _, err := uc.Spend(ctx, "user-1", 0, "x", "y"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("zero Spend err = %v", err)
	}
	if _, err := uc.Grant(ctx, "user-1", -5, model.TransactionGranted, "x", "y"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("negative Grant err = %v", err)
	}
}
