package repository

import (
	"context"

	"avatar-therapy-chat/internal/domain/model"
)

// -----------------------------
// Credit Ledger
// -----------------------------

// LedgerRepository is the client-side port onto the remote credit ledger.
// The balance is ledger-owned: implementations never decrement a cached
// number, every mutation is an atomic transaction on the ledger itself and
// insufficient balance is reported by the ledger, not computed here.
type LedgerRepository interface {
	GetBalance(ctx context.Context, qx any, userID string) (*model.CreditBalance, error)
	// Debit requests an atomic decrement of `amount` (positive). Returns the
	// recorded transaction or domain.ErrInsufficientCredits.
	Debit(ctx context.Context, qx any, userID string, amount int, sourceType, description string) (*model.CreditTransaction, error)
	// Credit records a grant/purchase/subscription top-up.
	Credit(ctx context.Context, qx any, userID string, amount int, txType model.TransactionType, sourceType, description string) (*model.CreditTransaction, error)
	// ChargeSessionOnce performs the "debit if first-charge-not-yet-applied"
	// RPC: inside one row-locked transaction it debits `amount` keyed by
	// sessionID and flips the session's charged flag. Reports charged=false
	// with a nil error when the session was already charged.
	ChargeSessionOnce(ctx context.Context, sessionID, userID string, amount int) (charged bool, err error)
	ListTransactions(ctx context.Context, qx any, userID string, limit int) ([]*model.CreditTransaction, error)
}
