package model

import (
	"time"

	"avatar-therapy-chat/internal/domain"
)

type TransactionType string

const (
	TransactionGranted      TransactionType = "granted"
	TransactionPurchase     TransactionType = "purchase"
	TransactionUsage        TransactionType = "usage"
	TransactionSubscription TransactionType = "subscription"
)

// CreditBalance mirrors the ledger-owned balance for a user. It is read-only
// on the client side: the ledger derives it from the transaction log.
type CreditBalance struct {
	UserID             string
	CurrentBalance     int
	SubscriptionTierID string
	UpdatedAt          time.Time
}

// CreditTransaction is one append-only audit record. Amount is signed:
// positive for grants and purchases, negative for spends.
type CreditTransaction struct {
	ID              string
	UserID          string
	Amount          int
	TransactionType TransactionType
	SourceType      string
	Description     string
	CreatedAt       time.Time
}

func NewCreditTransaction(id, userID string, amount int, txType TransactionType, sourceType, description string) (*CreditTransaction, error) {
	if id == "" || userID == "" || amount == 0 {
		return nil, domain.ErrInvalidArgument
	}
	switch txType {
	case TransactionGranted, TransactionPurchase, TransactionUsage, TransactionSubscription:
	default:
		return nil, domain.ErrInvalidArgument
	}
	return &CreditTransaction{
		ID:              id,
		UserID:          userID,
		Amount:          amount,
		TransactionType: txType,
		SourceType:      sourceType,
		Description:     description,
		CreatedAt:       time.Now(),
	}, nil
}
