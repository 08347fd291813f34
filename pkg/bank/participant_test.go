package bank

import (
	"testing"
	"time"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	cfg := &Config{Name: "test-bank", HoldTTL: 200 * time.Millisecond, SweepEvery: 20 * time.Millisecond}
	l := New(cfg)
	t.Cleanup(l.Close)
	return l
}

func seedUser(l *Ledger, username string, balance int64) {
	salt, storedKey, _ := hashPassword("secret")
	l.addUser(&User{Username: username, Salt: salt, StoredKey: storedKey, Balance: balance})
}

func TestAuthenticate(t *testing.T) {
	l := newTestLedger(t)
	seedUser(l, "alice", 100)

	if err := l.Authenticate("alice", "secret"); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if err := l.Authenticate("alice", "wrong"); err != ErrBadPassword {
		t.Fatalf("Authenticate() error = %v, want %v", err, ErrBadPassword)
	}
	if err := l.Authenticate("bob", "secret"); err != ErrUnknownUser {
		t.Fatalf("Authenticate() error = %v, want %v", err, ErrUnknownUser)
	}
}

func TestPrepareDebitHappyPath(t *testing.T) {
	l := newTestLedger(t)
	seedUser(l, "alice", 100)

	if err := l.PrepareDebit("alice", "t1", 30); err != nil {
		t.Fatalf("PrepareDebit() error = %v", err)
	}
	bal, _ := l.Balance("alice")
	if bal != 100 {
		t.Fatalf("Balance() = %d, want 100 (unchanged until commit)", bal)
	}
}

func TestPrepareDebitInsufficientFunds(t *testing.T) {
	l := newTestLedger(t)
	seedUser(l, "alice", 10)

	err := l.PrepareDebit("alice", "t1", 50)
	if err != ErrInsufficientFunds {
		t.Fatalf("PrepareDebit() error = %v, want %v", err, ErrInsufficientFunds)
	}
}

func TestPrepareDebitConflictingHold(t *testing.T) {
	l := newTestLedger(t)
	seedUser(l, "alice", 100)

	if err := l.PrepareDebit("alice", "t1", 30); err != nil {
		t.Fatalf("first PrepareDebit() error = %v", err)
	}
	err := l.PrepareDebit("alice", "t2", 10)
	if err != ErrConflictingHold {
		t.Fatalf("PrepareDebit() error = %v, want %v", err, ErrConflictingHold)
	}
}

func TestPrepareDebitDuplicateIsIdempotent(t *testing.T) {
	l := newTestLedger(t)
	seedUser(l, "alice", 100)

	if err := l.PrepareDebit("alice", "t1", 30); err != nil {
		t.Fatalf("first PrepareDebit() error = %v", err)
	}
	err := l.PrepareDebit("alice", "t1", 30)
	if _, ok := err.(*DuplicateTxIDError); !ok {
		t.Fatalf("PrepareDebit() error = %v, want *DuplicateTxIDError", err)
	}
}

func TestCommitDebitHappyPath(t *testing.T) {
	l := newTestLedger(t)
	seedUser(l, "alice", 100)
	seedUser(l, "bob", 0)

	if err := l.PrepareDebit("alice", "t1", 30); err != nil {
		t.Fatalf("PrepareDebit() error = %v", err)
	}
	if err := l.CommitDebit("alice", "t1", "test-bank", "bob"); err != nil {
		t.Fatalf("CommitDebit() error = %v", err)
	}

	bal, _ := l.Balance("alice")
	if bal != 70 {
		t.Fatalf("alice Balance() = %d, want 70", bal)
	}

	hist, _ := l.History("alice")
	if len(hist) != 1 || hist[0].Direction != DirectionSent || hist[0].Amount != 30 {
		t.Fatalf("alice History() = %+v, want one sent record of 30", hist)
	}
}

func TestCommitIsIdempotent(t *testing.T) {
	l := newTestLedger(t)
	seedUser(l, "alice", 100)

	if err := l.PrepareDebit("alice", "t1", 30); err != nil {
		t.Fatalf("PrepareDebit() error = %v", err)
	}
	if err := l.CommitDebit("alice", "t1", "b", "bob"); err != nil {
		t.Fatalf("first CommitDebit() error = %v", err)
	}
	if err := l.CommitDebit("alice", "t1", "b", "bob"); err != nil {
		t.Fatalf("second CommitDebit() error = %v, want nil (idempotent)", err)
	}

	bal, _ := l.Balance("alice")
	if bal != 70 {
		t.Fatalf("Balance() = %d, want 70 (no double-apply)", bal)
	}
	hist, _ := l.History("alice")
	if len(hist) != 1 {
		t.Fatalf("History() has %d records, want 1 (no duplicate append)", len(hist))
	}
}

func TestAbortDebitReleasesHoldWithoutTouchingBalance(t *testing.T) {
	l := newTestLedger(t)
	seedUser(l, "alice", 100)

	if err := l.PrepareDebit("alice", "t1", 30); err != nil {
		t.Fatalf("PrepareDebit() error = %v", err)
	}
	if err := l.AbortDebit("alice", "t1"); err != nil {
		t.Fatalf("AbortDebit() error = %v", err)
	}

	bal, _ := l.Balance("alice")
	if bal != 100 {
		t.Fatalf("Balance() = %d, want 100 (abort must not change balance)", bal)
	}

	// A fresh prepare for a different txid should now succeed since the hold
	// was released.
	if err := l.PrepareDebit("alice", "t2", 30); err != nil {
		t.Fatalf("PrepareDebit() after abort error = %v", err)
	}
}

func TestAbortUnknownTxIDIsNoOp(t *testing.T) {
	l := newTestLedger(t)
	seedUser(l, "alice", 100)

	if err := l.AbortDebit("alice", "never-prepared"); err != nil {
		t.Fatalf("AbortDebit() on unknown txid error = %v, want nil", err)
	}
	if err := l.AbortDebit("alice", "never-prepared"); err != nil {
		t.Fatalf("second AbortDebit() error = %v, want nil", err)
	}
}

func TestCommitAfterHoldExpiryIsNotPrepared(t *testing.T) {
	l := newTestLedger(t)
	seedUser(l, "alice", 100)

	if err := l.PrepareDebit("alice", "t1", 30); err != nil {
		t.Fatalf("PrepareDebit() error = %v", err)
	}

	time.Sleep(l.cfg.HoldTTL + 3*l.cfg.SweepEvery)

	err := l.CommitDebit("alice", "t1", "b", "bob")
	if err != ErrNotPrepared && err != ErrUnknownTxID {
		t.Fatalf("CommitDebit() after expiry error = %v, want ErrNotPrepared or ErrUnknownTxID", err)
	}

	bal, _ := l.Balance("alice")
	if bal != 100 {
		t.Fatalf("Balance() = %d, want 100 (expired hold must not apply)", bal)
	}
}

func TestIntraBankTransferTracksCompletionPerAccount(t *testing.T) {
	l := newTestLedger(t)
	seedUser(l, "alice", 100)
	seedUser(l, "bob", 0)

	if err := l.PrepareDebit("alice", "t1", 30); err != nil {
		t.Fatalf("PrepareDebit() error = %v", err)
	}
	if err := l.PrepareCredit("bob", "t1", 30); err != nil {
		t.Fatalf("PrepareCredit() error = %v", err)
	}
	if err := l.CommitDebit("alice", "t1", "test-bank", "bob"); err != nil {
		t.Fatalf("CommitDebit() error = %v", err)
	}
	if err := l.CommitCredit("bob", "t1", "test-bank", "alice"); err != nil {
		t.Fatalf("CommitCredit() error = %v", err)
	}

	aliceBal, _ := l.Balance("alice")
	bobBal, _ := l.Balance("bob")
	if aliceBal != 70 || bobBal != 30 {
		t.Fatalf("balances = alice:%d bob:%d, want alice:70 bob:30", aliceBal, bobBal)
	}
}
