package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrSessionEnded        = errors.New("session already ended")
	ErrSendInFlight        = errors.New("another send is in flight for this user")
	ErrLedgerUnavailable   = errors.New("credit ledger unavailable")
	ErrUnauthenticated     = errors.New("unauthenticated caller")
	ErrRateLimited         = errors.New("message rate limit exceeded")
	ErrInvalidExecContext  = errors.New("invalid query executor context")
)
