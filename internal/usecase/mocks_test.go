// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"avatar-therapy-chat/internal/domain"
	"avatar-therapy-chat/internal/domain/model"
	"avatar-therapy-chat/internal/domain/ports/adapter"
	"avatar-therapy-chat/internal/domain/ports/repository"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// memTxManager runs the callback outside any real transaction; the in-memory
// repos accept a nil-ish qx either way.
type memTxManager struct{}

func (memTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

// memSessionRepo is a small in-memory implementation used by unit tests.
type memSessionRepo struct {
	mu       sync.RWMutex
	store    map[string]*model.TherapySession
	saveErr  error
	endCalls int
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{store: make(map[string]*model.TherapySession)}
}

func (m *memSessionRepo) Save(ctx context.Context, qx any, s *model.TherapySession) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

func (m *memSessionRepo) FindByID(ctx context.Context, qx any, id string) (*model.TherapySession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessionRepo) FindActive(ctx context.Context, qx any, userID, conversationID, avatarID string) (*model.TherapySession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.store {
		if s.IsActive && s.UserID == userID && s.ConversationID == conversationID && s.AvatarID == avatarID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memSessionRepo) FindAllByUser(ctx context.Context, qx any, userID string) ([]*model.TherapySession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.TherapySession
	for _, s := range m.store {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memSessionRepo) RecordMessage(ctx context.Context, qx any, s *model.TherapySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[s.ID]
	if !ok || !cur.IsActive {
		return domain.ErrSessionEnded
	}
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

func (m *memSessionRepo) End(ctx context.Context, qx any, s *model.TherapySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endCalls++
	cur, ok := m.store[s.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if !cur.IsActive {
		return nil
	}
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

func (m *memSessionRepo) EndStale(ctx context.Context, idleAfter time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	cut := time.Now().Add(-idleAfter)
	for _, s := range m.store {
		if s.IsActive && s.LastActivity.Before(cut) {
			s.End(s.LastActivity)
			n++
		}
	}
	return n, nil
}

// memLedgerRepo tracks one balance per user with at-most-once session
// charges, mirroring the remote ledger's contract.
type memLedgerRepo struct {
	mu         sync.Mutex
	balances   map[string]int
	charged    map[string]bool // by sessionID
	txs        []*model.CreditTransaction
	chargeErr  error // transient failure injected by tests
	chargeHits int
}

func newMemLedgerRepo() *memLedgerRepo {
	return &memLedgerRepo{balances: make(map[string]int), charged: make(map[string]bool)}
}

func (m *memLedgerRepo) GetBalance(ctx context.Context, qx any, userID string) (*model.CreditBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &model.CreditBalance{UserID: userID, CurrentBalance: m.balances[userID]}, nil
}

func (m *memLedgerRepo) Debit(ctx context.Context, qx any, userID string, amount int, sourceType, description string) (*model.CreditTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debitLocked(userID, amount, sourceType, description)
}

func (m *memLedgerRepo) debitLocked(userID string, amount int, sourceType, description string) (*model.CreditTransaction, error) {
	if m.balances[userID] < amount {
		return nil, domain.ErrInsufficientCredits
	}
	m.balances[userID] -= amount
	tx, _ := model.NewCreditTransaction("tx-debit", userID, -amount, model.TransactionUsage, sourceType, description)
	m.txs = append(m.txs, tx)
	return tx, nil
}

func (m *memLedgerRepo) Credit(ctx context.Context, qx any, userID string, amount int, txType model.TransactionType, sourceType, description string) (*model.CreditTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] += amount
	tx, err := model.NewCreditTransaction("tx-credit", userID, amount, txType, sourceType, description)
	if err != nil {
		return nil, err
	}
	m.txs = append(m.txs, tx)
	return tx, nil
}

func (m *memLedgerRepo) ChargeSessionOnce(ctx context.Context, sessionID, userID string, amount int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chargeHits++
	if m.chargeErr != nil {
		return false, m.chargeErr
	}
	if m.charged[sessionID] {
		return false, nil
	}
	if _, err := m.debitLocked(userID, amount, "therapy_session", "session charge"); err != nil {
		return false, err
	}
	m.charged[sessionID] = true
	return true, nil
}

func (m *memLedgerRepo) ListTransactions(ctx context.Context, qx any, userID string, limit int) ([]*model.CreditTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.CreditTransaction
	for _, tx := range m.txs {
		if tx.UserID == userID {
			cp := *tx
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memMessageRepo stores messages in memory, plaintext.
type memMessageRepo struct {
	mu      sync.Mutex
	msgs    []model.Message
	saveErr error
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{}
}

func (m *memMessageRepo) Save(ctx context.Context, qx any, msg *model.Message) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, *msg)
	return nil
}

func (m *memMessageRepo) History(ctx context.Context, qx any, conversationID string, limit int) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Message
	for _, msg := range m.msgs {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memMessageRepo) CleanupOldMessages(ctx context.Context, userID string, retentionDays int) (int64, error) {
	return 0, nil
}

func (m *memMessageRepo) CleanupExpired(ctx context.Context, retentionDays int) (int64, error) {
	return 0, nil
}

// memAvatarRepo serves a fixed persona set.
type memAvatarRepo struct {
	avatars map[string]*model.Avatar
}

func newMemAvatarRepo(avatars ...*model.Avatar) *memAvatarRepo {
	m := &memAvatarRepo{avatars: make(map[string]*model.Avatar)}
	for _, a := range avatars {
		m.avatars[a.ID] = a
	}
	return m
}

func (m *memAvatarRepo) FindByID(ctx context.Context, qx any, id string) (*model.Avatar, error) {
	a, ok := m.avatars[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAvatarRepo) ListActive(ctx context.Context, qx any) ([]*model.Avatar, error) {
	var out []*model.Avatar
	for _, a := range m.avatars {
		if a.Active {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memAvatarRepo) Save(ctx context.Context, qx any, a *model.Avatar) error {
	cp := *a
	m.avatars[a.ID] = &cp
	return nil
}

// stubAI replies with a fixed string and records every prompt it receives.
type stubAI struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts [][]adapter.Message
}

func (s *stubAI) ListModels(ctx context.Context) ([]string, error) {
	return []string{"stub-model"}, nil
}

func (s *stubAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	n := 0
	for _, m := range messages {
		n += len(m.Content) / 4
	}
	return n, nil
}

func (s *stubAI) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, messages)
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *stubAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	text, err := s.Chat(ctx, model, messages)
	return text, adapter.Usage{}, err
}

// stubLimiter and stubLocker let tests flip the gate deterministically.
type stubLimiter struct {
	allow bool
	err   error
}

func (s *stubLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return s.allow, s.err
}

type stubLocker struct {
	mu     sync.Mutex
	held   map[string]bool
	tryErr error
}

func newStubLocker() *stubLocker {
	return &stubLocker{held: make(map[string]bool)}
}

func (s *stubLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tryErr != nil {
		return "", s.tryErr
	}
	if s.held[key] {
		return "", domain.ErrSendInFlight
	}
	s.held[key] = true
	return "token", nil
}

func (s *stubLocker) Unlock(ctx context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.held, key)
	return nil
}
