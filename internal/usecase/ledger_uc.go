// File: internal/usecase/ledger_uc.go
package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"avatar-therapy-chat/internal/domain"
	"avatar-therapy-chat/internal/domain/model"
	"avatar-therapy-chat/internal/domain/ports/repository"
)

// LedgerUseCase is the client-side view onto the credit ledger. The balance
// is server-owned: this layer only requests mutations and re-reads, and an
// unavailable ledger surfaces an explicit error rather than a fabricated
// number.
type LedgerUseCase interface {
	GetBalance(ctx context.Context, userID string) (*model.CreditBalance, error)
	// Spend debits and returns the re-read balance. The local copy is never
	// decremented optimistically.
	Spend(ctx context.Context, userID string, amount int, sourceType, description string) (*model.CreditBalance, error)
	// Grant credits the account (purchase, subscription grant, migration).
	Grant(ctx context.Context, userID string, amount int, txType model.TransactionType, sourceType, description string) (*model.CreditTransaction, error)
	History(ctx context.Context, userID string, limit int) ([]*model.CreditTransaction, error)
}

var _ LedgerUseCase = (*ledgerUC)(nil)

type ledgerUC struct {
	ledger repository.LedgerRepository
	log    *zerolog.Logger
}

func NewLedgerUseCase(ledger repository.LedgerRepository, logger *zerolog.Logger) *ledgerUC {
	return &ledgerUC{ledger: ledger, log: logger}
}

func (l *ledgerUC) GetBalance(ctx context.Context, userID string) (*model.CreditBalance, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return l.ledger.GetBalance(ctx, nil, userID)
}

func (l *ledgerUC) Spend(ctx context.Context, userID string, amount int, sourceType, description string) (*model.CreditBalance, error) {
	if userID == "" || amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if _, err := l.ledger.Debit(ctx, nil, userID, amount, sourceType, description); err != nil {
		return nil, err
	}
	return l.ledger.GetBalance(ctx, nil, userID)
}

func (l *ledgerUC) Grant(ctx context.Context, userID string, amount int, txType model.TransactionType, sourceType, description string) (*model.CreditTransaction, error) {
	if userID == "" || amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	rec, err := l.ledger.Credit(ctx, nil, userID, amount, txType, sourceType, description)
	if err != nil {
		return nil, err
	}
	l.log.Info().Str("user_id", userID).Int("amount", amount).
		Str("type", string(txType)).Msg("credits granted")
	return rec, nil
}

func (l *ledgerUC) History(ctx context.Context, userID string, limit int) ([]*model.CreditTransaction, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return l.ledger.ListTransactions(ctx, nil, userID, limit)
}
