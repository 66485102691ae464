// File: internal/usecase/session_uc_test.go
package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"avatar-therapy-chat/internal/domain"
	"avatar-therapy-chat/internal/domain/model"
)

func TestProcessMessageOpensAndChargesOnce(t *testing.T) {
	ctx := context.Background()
	sessions := newMemSessionRepo()
	ledger := newMemLedgerRepo()
	ledger.balances["user-1"] = 10

	uc := NewSessionUseCase(sessions, ledger, memTxManager{}, 1, false, newTestLogger())

	var first *model.TherapySession
	for i := 0; i < 5; i++ {
		s, usage, err := uc.ProcessMessage(ctx, "user-1", "conv-1", "avatar-1")
		if err != nil {
			t.Fatalf("message %d: %v", i+1, err)
		}
		if first == nil {
			first = s
		}
		if s.ID != first.ID {
			t.Fatalf("message %d switched session: %s != %s", i+1, s.ID, first.ID)
		}
		if !usage.CreditCharged {
			t.Fatalf("message %d: usage should report the session as charged", i+1)
		}
		if usage.MessageCount != i+1 {
			t.Fatalf("message %d: count = %d", i+1, usage.MessageCount)
		}
	}

	// Five messages, one debit.
	if ledger.balances["user-1"] != 9 {
		t.Errorf("balance = %d, want 9 (single session charge)", ledger.balances["user-1"])
	}
	if !ledger.charged[first.ID] {
		t.Error("session not marked charged on the ledger")
	}
}

func TestProcessMessageInsufficientCreditsBlocksSend(t *testing.T) {
	ctx := context.Background()
	sessions := newMemSessionRepo()
	ledger := newMemLedgerRepo() // zero balance

	uc := NewSessionUseCase(sessions, ledger, memTxManager{}, 1, false, newTestLogger())

	_, _, err := uc.ProcessMessage(ctx, "user-1", "conv-1", "avatar-1")
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}

	// The blocked send recorded nothing against the session.
	s, err := sessions.FindActive(ctx, nil, "user-1", "conv-1", "avatar-1")
	if err != nil {
		t.Fatalf("session should still exist for retry: %v", err)
	}
	if s.MessageCount != 0 || s.CreditCharged {
		t.Errorf("blocked send must not advance the session: %+v", s)
	}

	// Topping up unblocks the same tuple.
	ledger.balances["user-1"] = 3
	s2, usage, err := uc.ProcessMessage(ctx, "user-1", "conv-1", "avatar-1")
	if err != nil {
		t.Fatalf("after top-up: %v", err)
	}
	if s2.ID != s.ID {
		t.Errorf("top-up should resume the open session")
	}
	if !usage.CreditCharged || usage.MessageCount != 1 {
		t.Errorf("usage after top-up: %+v", usage)
	}
}

func TestProcessMessageTransientLedgerFailureRetries(t *testing.T) {
	ctx := context.Background()
	sessions := newMemSessionRepo()
	ledger := newMemLedgerRepo()
	ledger.balances["user-1"] = 5
	ledger.chargeErr = errors.New("ledger timeout")

	uc := NewSessionUseCase(sessions, ledger, memTxManager{}, 1, false, newTestLogger())

	// Delivery proceeds despite the billing failure.
	s, usage, err := uc.ProcessMessage(ctx, "user-1", "conv-1", "avatar-1")
	if err != nil {
		t.Fatalf("transient failure must not block delivery: %v", err)
	}
	if usage.CreditCharged {
		t.Error("session must stay uncharged after a failed debit")
	}
	if usage.MessageCount != 1 {
		t.Errorf("message count = %d, want 1", usage.MessageCount)
	}

	// The next message retries the charge once the ledger recovers.
	ledger.chargeErr = nil
	_, usage, err = uc.ProcessMessage(ctx, "user-1", "conv-1", "avatar-1")
	if err != nil {
		t.Fatalf("retry message: %v", err)
	}
	if !usage.CreditCharged {
		t.Error("recovered ledger should have charged the session")
	}
	if ledger.balances["user-1"] != 4 {
		t.Errorf("balance = %d, want 4", ledger.balances["user-1"])
	}
	if !ledger.charged[s.ID] {
		t.Error("session not marked charged after retry")
	}
}

func TestProcessMessageDevModeSkipsBilling(t *testing.T) {
	ctx := context.Background()
	sessions := newMemSessionRepo()
	ledger := newMemLedgerRepo() // zero balance

	uc := NewSessionUseCase(sessions, ledger, memTxManager{}, 1, true, newTestLogger())

	_, usage, err := uc.ProcessMessage(ctx, "user-1", "conv-1", "avatar-1")
	if err != nil {
		t.Fatalf("dev mode send: %v", err)
	}
	if !usage.CreditCharged {
		t.Error("dev mode reports the session as charged")
	}
	if ledger.chargeHits != 0 {
		t.Error("dev mode must not touch the ledger")
	}
}

func TestProcessMessageClosesAtMessageLimit(t *testing.T) {
	ctx := context.Background()
	sessions := newMemSessionRepo()
	ledger := newMemLedgerRepo()
	ledger.balances["user-1"] = 10

	uc := NewSessionUseCase(sessions, ledger, memTxManager{}, 1, false, newTestLogger())

	var last model.SessionUsage
	for i := 0; i < model.SessionMaxMessages; i++ {
		_, usage, err := uc.ProcessMessage(ctx, "user-1", "conv-1", "avatar-1")
		if err != nil {
			t.Fatalf("message %d: %v", i+1, err)
		}
		last = usage
	}
	if last.IsActive {
		t.Error("session must close on the message that reached the limit")
	}
	if last.MessageCount != model.SessionMaxMessages {
		t.Errorf("final count = %d, want %d", last.MessageCount, model.SessionMaxMessages)
	}

	// The next message starts a fresh session and pays a fresh charge.
	s, usage, err := uc.ProcessMessage(ctx, "user-1", "conv-1", "avatar-1")
	if err != nil {
		t.Fatalf("post-limit message: %v", err)
	}
	if s.ID == last.SessionID {
		t.Error("post-limit message must open a new session")
	}
	if usage.MessageCount != 1 {
		t.Errorf("new session count = %d, want 1", usage.MessageCount)
	}
	if ledger.balances["user-1"] != 8 {
		t.Errorf("balance = %d, want 8 (two session charges)", ledger.balances["user-1"])
	}
}

func TestProcessMessageClosesStaleSessionByClock(t *testing.T) {
	ctx := context.Background()
	sessions := newMemSessionRepo()
	ledger := newMemLedgerRepo()
	ledger.balances["user-1"] = 10

	uc := NewSessionUseCase(sessions, ledger, memTxManager{}, 1, false, newTestLogger())

	now := time.Now()
	uc.now = func() time.Time { return now }

	first, _, err := uc.ProcessMessage(ctx, "user-1", "conv-1", "avatar-1")
	if err != nil {
		t.Fatalf("first message: %v", err)
	}

	// Same tuple, 31 minutes later: the stale session is closed and a new
	// one opened before the message lands.
	uc.now = func() time.Time { return now.Add(31 * time.Minute) }
	second, usage, err := uc.ProcessMessage(ctx, "user-1", "conv-1", "avatar-1")
	if err != nil {
		t.Fatalf("late message: %v", err)
	}
	if second.ID == first.ID {
		t.Error("expired session must not be resumed")
	}
	if usage.MessageCount != 1 {
		t.Errorf("fresh session count = %d", usage.MessageCount)
	}

	old, err := sessions.FindByID(ctx, nil, first.ID)
	if err != nil {
		t.Fatalf("old session lookup: %v", err)
	}
	if old.IsActive {
		t.Error("stale session should have been closed")
	}
}

func TestEndSessionIdempotent(t *testing.T) {
	ctx := context.Background()
	sessions := newMemSessionRepo()
	ledger := newMemLedgerRepo()
	ledger.balances["user-1"] = 10

	uc := NewSessionUseCase(sessions, ledger, memTxManager{}, 1, false, newTestLogger())

	s, _, err := uc.ProcessMessage(ctx, "user-1", "conv-1", "avatar-1")
	if err != nil {
		t.Fatalf("open session: %v", err)
	}

	for i := 0; i < 3; i++ {
		ok, err := uc.EndSession(ctx, s.ID, false)
		if err != nil {
			t.Fatalf("end %d: %v", i+1, err)
		}
		if !ok {
			t.Fatalf("end %d should report success", i+1)
		}
	}

	if _, err := uc.EndSession(ctx, "", false); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("empty id err = %v, want ErrInvalidArgument", err)
	}
	if _, err := uc.EndSession(ctx, "no-such-session", false); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown id err = %v, want ErrNotFound", err)
	}
}

func TestProcessMessageValidatesTuple(t *testing.T) {
	uc := NewSessionUseCase(newMemSessionRepo(), newMemLedgerRepo(), memTxManager{}, 1, false, newTestLogger())
	for _, tuple := range [][3]string{
		{"", "c", "a"},
		{"u", "", "a"},
		{"u", "c", ""},
	} {
		_, _, err := uc.ProcessMessage(context.Background(), tuple[0], tuple[1], tuple[2])
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("tuple %v err = %v, want ErrInvalidArgument", tuple, err)
		}
	}
}
