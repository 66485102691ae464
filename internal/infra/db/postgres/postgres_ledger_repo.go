// File: internal/infra/db/postgres/postgres_ledger_repo.go
package postgres

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"avatar-therapy-chat/internal/domain"
	"avatar-therapy-chat/internal/domain/model"
	"avatar-therapy-chat/internal/domain/ports/repository"
	"avatar-therapy-chat/internal/infra/metrics"
)

var _ repository.LedgerRepository = (*LedgerRepo)(nil)

// LedgerRepo is the authoritative credit ledger. Balances are derived from
// the append-only credit_transactions log; every mutation happens inside a
// row-locked transaction so the no-negative-balance rule is enforced here,
// never computed client-side.
type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

func hashToInt64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64() & ((1 << 63) - 1))
}

func (r *LedgerRepo) GetBalance(ctx context.Context, qx any, userID string) (*model.CreditBalance, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	const q = `SELECT current_balance, subscription_tier_id, updated_at FROM credit_balances WHERE user_id = $1;`
	b := &model.CreditBalance{UserID: userID}
	err = ex.QueryRow(ctx, q, userID).Scan(&b.CurrentBalance, &b.SubscriptionTierID, &b.UpdatedAt)
	if err == pgx.ErrNoRows {
		// No transactions yet: the derived balance is zero.
		metrics.IncLedgerBalanceRead(true)
		return &model.CreditBalance{UserID: userID}, nil
	}
	if err != nil {
		metrics.IncLedgerBalanceRead(false)
		return nil, fmt.Errorf("%w: read balance: %v", domain.ErrLedgerUnavailable, err)
	}
	metrics.IncLedgerBalanceRead(true)
	return b, nil
}

func (r *LedgerRepo) Debit(ctx context.Context, qx any, userID string, amount int, sourceType, description string) (*model.CreditTransaction, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if tx, ok := qx.(pgx.Tx); ok {
		return r.debitTx(ctx, tx, userID, amount, sourceType, description)
	}
	var rec *model.CreditTransaction
	err := r.inTx(ctx, userID, func(tx pgx.Tx) error {
		var err error
		rec, err = r.debitTx(ctx, tx, userID, amount, sourceType, description)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *LedgerRepo) Credit(ctx context.Context, qx any, userID string, amount int, txType model.TransactionType, sourceType, description string) (*model.CreditTransaction, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	rec, err := model.NewCreditTransaction(ulid.Make().String(), userID, amount, txType, sourceType, description)
	if err != nil {
		return nil, err
	}
	if tx, ok := qx.(pgx.Tx); ok {
		if err := r.applyTx(ctx, tx, rec); err != nil {
			return nil, err
		}
		return rec, nil
	}
	err = r.inTx(ctx, userID, func(tx pgx.Tx) error {
		return r.applyTx(ctx, tx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ChargeSessionOnce is the atomic "debit if first-charge-not-yet-applied"
// operation. The session row is locked for the duration so two devices racing
// on the same session cannot both debit.
func (r *LedgerRepo) ChargeSessionOnce(ctx context.Context, sessionID, userID string, amount int) (bool, error) {
	if sessionID == "" || userID == "" || amount <= 0 {
		return false, domain.ErrInvalidArgument
	}
	charged := false
	err := r.inTx(ctx, userID, func(tx pgx.Tx) error {
		var already bool
		const qLock = `SELECT credit_charged FROM therapy_sessions WHERE id = $1 FOR UPDATE;`
		if err := tx.QueryRow(ctx, qLock, sessionID).Scan(&already); err != nil {
			if err == pgx.ErrNoRows {
				return domain.ErrNotFound
			}
			return fmt.Errorf("lock session: %w", err)
		}
		if already {
			return nil
		}
		if _, err := r.debitTx(ctx, tx, userID, amount, "session", "session charge "+sessionID); err != nil {
			return err
		}
		const qFlag = `UPDATE therapy_sessions SET credit_charged = TRUE WHERE id = $1;`
		if _, err := tx.Exec(ctx, qFlag, sessionID); err != nil {
			return fmt.Errorf("flag session charged: %w", err)
		}
		charged = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return charged, nil
}

func (r *LedgerRepo) ListTransactions(ctx context.Context, qx any, userID string, limit int) ([]*model.CreditTransaction, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, user_id, amount, transaction_type, source_type, description, created_at
  FROM credit_transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2;`
	rows, err := ex.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.CreditTransaction
	for rows.Next() {
		var t model.CreditTransaction
		var typ string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &typ, &t.SourceType, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.TransactionType = model.TransactionType(typ)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// inTx runs fn inside a transaction holding the per-user advisory lock, so
// concurrent debits for one user serialize.
func (r *LedgerRepo) inTx(ctx context.Context, userID string, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrLedgerUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", hashToInt64(userID)); err != nil {
		return fmt.Errorf("%w: advisory lock: %v", domain.ErrLedgerUnavailable, err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// debitTx records a spend inside an open transaction: lock the balance row,
// let the ledger (not the caller) decide sufficiency, append, update.
func (r *LedgerRepo) debitTx(ctx context.Context, tx pgx.Tx, userID string, amount int, sourceType, description string) (*model.CreditTransaction, error) {
	const qUpsert = `
INSERT INTO credit_balances (user_id, current_balance, subscription_tier_id, updated_at)
VALUES ($1, 0, '', NOW())
ON CONFLICT (user_id) DO NOTHING;`
	if _, err := tx.Exec(ctx, qUpsert, userID); err != nil {
		return nil, fmt.Errorf("ensure balance row: %w", err)
	}
	var balance int
	const qLock = `SELECT current_balance FROM credit_balances WHERE user_id = $1 FOR UPDATE;`
	if err := tx.QueryRow(ctx, qLock, userID).Scan(&balance); err != nil {
		return nil, fmt.Errorf("lock balance: %w", err)
	}
	if balance < amount {
		metrics.IncLedgerDebitFailure("insufficient")
		return nil, domain.ErrInsufficientCredits
	}
	rec, err := model.NewCreditTransaction(ulid.Make().String(), userID, -amount, model.TransactionUsage, sourceType, description)
	if err != nil {
		return nil, err
	}
	if err := r.applyTx(ctx, tx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// applyTx appends a transaction record and moves the derived balance with it.
func (r *LedgerRepo) applyTx(ctx context.Context, tx pgx.Tx, rec *model.CreditTransaction) error {
	const qIns = `
INSERT INTO credit_transactions (id, user_id, amount, transaction_type, source_type, description, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7);`
	if _, err := tx.Exec(ctx, qIns, rec.ID, rec.UserID, rec.Amount, string(rec.TransactionType),
		rec.SourceType, rec.Description, rec.CreatedAt); err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	const qBal = `
INSERT INTO credit_balances (user_id, current_balance, subscription_tier_id, updated_at)
VALUES ($1, $2, '', NOW())
ON CONFLICT (user_id) DO UPDATE SET
  current_balance = credit_balances.current_balance + $2,
  updated_at = NOW();`
	if _, err := tx.Exec(ctx, qBal, rec.UserID, rec.Amount); err != nil {
		return fmt.Errorf("move balance: %w", err)
	}
	metrics.IncLedgerTransaction(string(rec.TransactionType), rec.SourceType)
	return nil
}
