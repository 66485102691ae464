package model

import (
	"errors"
	"testing"

	"avatar-therapy-chat/internal/domain"
)

func TestNewCreditTransactionValidation(t *testing.T) {
	if _, err := NewCreditTransaction("", "u", 5, TransactionGranted, "s", "d"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("empty id err = %v", err)
	}
	if _, err := NewCreditTransaction("t", "", 5, TransactionGranted, "s", "d"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("empty user err = %v", err)
	}
	if _, err := NewCreditTransaction("t", "u", 0, TransactionGranted, "s", "d"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("zero amount err = %v", err)
	}
	if _, err := NewCreditTransaction("t", "u", 5, TransactionType("refund"), "s", "d"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("unknown type err = %v", err)
	}

	// Spends are stored as negative amounts.
	tx, err := NewCreditTransaction("t", "u", -1, TransactionUsage, "therapy_session", "session charge")
	if err != nil {
		t.Fatalf("debit record: %v", err)
	}
	if tx.Amount != -1 || tx.TransactionType != TransactionUsage {
		t.Errorf("record = %+v", tx)
	}
}

func TestContextSize(t *testing.T) {
	history := []Message{
		{Content: "hello"},
		{Content: "world!"},
	}
	if n := ContextSize(history); n != 11 {
		t.Errorf("ContextSize = %d, want 11", n)
	}
	if n := ContextSize(nil); n != 0 {
		t.Errorf("ContextSize(nil) = %d, want 0", n)
	}
}
