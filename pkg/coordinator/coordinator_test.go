package coordinator

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mnohosten/paygate/pkg/bank"
)

// testBank wraps a bank.Service in an httptest.Server so the coordinator can
// drive it exactly as it would a real participant over the network.
type testBank struct {
	ledger *bank.Ledger
	server *httptest.Server
}

func newTestBank(t *testing.T, name string) *testBank {
	t.Helper()
	cfg := bank.DefaultConfig(name)
	cfg.HoldTTL = 500 * time.Millisecond
	cfg.SweepEvery = 20 * time.Millisecond
	ledger := bank.New(cfg)
	t.Cleanup(ledger.Close)

	svc := bank.NewService(ledger)
	server := httptest.NewServer(svc.Router())
	t.Cleanup(server.Close)

	return &testBank{ledger: ledger, server: server}
}

func newTestCoordinator(t *testing.T) (*Coordinator, *Directory, *Registry) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Timeout2PC = 2 * time.Second
	cfg.CommitBackoffCap = 50 * time.Millisecond

	registry, _, err := OpenRegistry(filepath.Join(t.TempDir(), "coordinator.log"))
	if err != nil {
		t.Fatalf("OpenRegistry() error = %v", err)
	}
	t.Cleanup(func() { registry.Close() })

	directory := NewDirectory()
	coord := New(cfg, directory, registry, nil)
	return coord, directory, registry
}

func seedAccount(t *testing.T, tb *testBank, username string, balance int64) {
	t.Helper()
	if err := tb.ledger.LoadCredentials(writeCredentials(t, username, balance)); err != nil {
		t.Fatalf("LoadCredentials() error = %v", err)
	}
}

func writeCredentials(t *testing.T, username string, balance int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "creds.json")
	body := fmt.Sprintf(`{%q: {"password": "secret", "balance": %d}}`, username, balance)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write credential fixture: %v", err)
	}
	return path
}

func TestTransferHappyPath(t *testing.T) {
	alice := newTestBank(t, "alice-bank")
	bob := newTestBank(t, "bob-bank")
	seedAccount(t, alice, "alice", 100)
	seedAccount(t, bob, "bob", 0)

	coord, directory, _ := newTestCoordinator(t)
	directory.Register("alice-bank", NewParticipantClient("alice-bank", alice.server.URL, 2*time.Second))
	directory.Register("bob-bank", NewParticipantClient("bob-bank", bob.server.URL, 2*time.Second))

	result, err := coord.Transfer(context.Background(), TransferRequest{
		TxID:    "tx-1",
		SrcBank: "alice-bank",
		SrcUser: "alice",
		DstBank: "bob-bank",
		DstUser: "bob",
		Amount:  30,
	})
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	if !result.Committed {
		t.Fatalf("Transfer() committed = false, want true (reason: %s)", result.AbortReason)
	}

	aliceBal, _ := alice.ledger.Balance("alice")
	bobBal, _ := bob.ledger.Balance("bob")
	if aliceBal != 70 {
		t.Fatalf("alice balance = %d, want 70", aliceBal)
	}
	if bobBal != 30 {
		t.Fatalf("bob balance = %d, want 30", bobBal)
	}
}

func TestTransferInsufficientFundsAborts(t *testing.T) {
	alice := newTestBank(t, "alice-bank")
	bob := newTestBank(t, "bob-bank")
	seedAccount(t, alice, "alice", 10)
	seedAccount(t, bob, "bob", 0)

	coord, directory, _ := newTestCoordinator(t)
	directory.Register("alice-bank", NewParticipantClient("alice-bank", alice.server.URL, 2*time.Second))
	directory.Register("bob-bank", NewParticipantClient("bob-bank", bob.server.URL, 2*time.Second))

	result, err := coord.Transfer(context.Background(), TransferRequest{
		TxID:    "tx-2",
		SrcBank: "alice-bank",
		SrcUser: "alice",
		DstBank: "bob-bank",
		DstUser: "bob",
		Amount:  1000,
	})
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	if result.Committed {
		t.Fatal("Transfer() committed = true, want false")
	}
	if result.AbortReason == "" {
		t.Fatal("Transfer() abort reason is empty")
	}

	aliceBal, _ := alice.ledger.Balance("alice")
	if aliceBal != 10 {
		t.Fatalf("alice balance = %d, want 10 (unchanged)", aliceBal)
	}
}

func TestTransferUnknownBank(t *testing.T) {
	alice := newTestBank(t, "alice-bank")
	seedAccount(t, alice, "alice", 100)

	coord, directory, _ := newTestCoordinator(t)
	directory.Register("alice-bank", NewParticipantClient("alice-bank", alice.server.URL, 2*time.Second))

	_, err := coord.Transfer(context.Background(), TransferRequest{
		TxID:    "tx-3",
		SrcBank: "alice-bank",
		SrcUser: "alice",
		DstBank: "nowhere-bank",
		DstUser: "bob",
		Amount:  10,
	})
	if err == nil {
		t.Fatal("Transfer() to unknown bank unexpectedly succeeded")
	}
}

func TestTransferIsIdempotentForRepeatedTxID(t *testing.T) {
	alice := newTestBank(t, "alice-bank")
	bob := newTestBank(t, "bob-bank")
	seedAccount(t, alice, "alice", 100)
	seedAccount(t, bob, "bob", 0)

	coord, directory, _ := newTestCoordinator(t)
	directory.Register("alice-bank", NewParticipantClient("alice-bank", alice.server.URL, 2*time.Second))
	directory.Register("bob-bank", NewParticipantClient("bob-bank", bob.server.URL, 2*time.Second))

	req := TransferRequest{
		TxID:    "tx-4",
		SrcBank: "alice-bank",
		SrcUser: "alice",
		DstBank: "bob-bank",
		DstUser: "bob",
		Amount:  30,
	}

	first, err := coord.Transfer(context.Background(), req)
	if err != nil {
		t.Fatalf("first Transfer() error = %v", err)
	}
	second, err := coord.Transfer(context.Background(), req)
	if err != nil {
		t.Fatalf("second Transfer() error = %v", err)
	}
	if first.Committed != second.Committed {
		t.Fatalf("repeated Transfer() gave different outcomes: %v vs %v", first, second)
	}

	aliceBal, _ := alice.ledger.Balance("alice")
	if aliceBal != 70 {
		t.Fatalf("alice balance = %d, want 70 (debit must not apply twice)", aliceBal)
	}
}

func TestRegistrySurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coordinator.log")

	registry, _, err := OpenRegistry(path)
	if err != nil {
		t.Fatalf("OpenRegistry() error = %v", err)
	}
	registry.Begin("tx-5", AccountRef{Bank: "a", Username: "alice"}, AccountRef{Bank: "b", Username: "bob"}, 10)
	if err := registry.Finish("tx-5", StateCommitted, ""); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	registry.Close()

	reopened, recovered, err := OpenRegistry(path)
	if err != nil {
		t.Fatalf("OpenRegistry() on reopen error = %v", err)
	}
	defer reopened.Close()

	if len(recovered) != 0 {
		t.Fatalf("recovered = %v, want none: tx-5 reached a terminal state before close", recovered)
	}

	entry, ok := reopened.Lookup("tx-5")
	if !ok {
		t.Fatal("Lookup() after restart found nothing")
	}
	if entry.State != StateCommitted {
		t.Fatalf("entry.State = %s, want %s", entry.State, StateCommitted)
	}
}

// TestRegistryRecoversInFlightMarker simulates a coordinator crash after
// Begin (PrepareDebit dispatched) but before Finish: the durable log never
// got a terminal record, but the marker Begin wrote survives the "crash"
// (the process just never called Finish or Close). OpenRegistry must
// recover tx-6 as in-flight so the caller can sweep it.
func TestRegistryRecoversInFlightMarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coordinator.log")

	registry, _, err := OpenRegistry(path)
	if err != nil {
		t.Fatalf("OpenRegistry() error = %v", err)
	}
	registry.Begin("tx-6", AccountRef{Bank: "a", Username: "alice"}, AccountRef{Bank: "b", Username: "bob"}, 25)
	// No Finish, no Close: mimics a hard kill mid-prepare.

	reopened, recovered, err := OpenRegistry(path)
	if err != nil {
		t.Fatalf("OpenRegistry() on reopen error = %v", err)
	}
	defer reopened.Close()

	if len(recovered) != 1 {
		t.Fatalf("recovered = %v, want exactly tx-6", recovered)
	}
	if recovered[0].TxID != "tx-6" || recovered[0].State != StateInFlight {
		t.Fatalf("recovered[0] = %+v, want in-flight tx-6", recovered[0])
	}
	if recovered[0].Src.Bank != "a" || recovered[0].Dst.Bank != "b" || recovered[0].Amount != 25 {
		t.Fatalf("recovered[0] = %+v, want src=a dst=b amount=25", recovered[0])
	}

	entry, ok := reopened.Lookup("tx-6")
	if !ok || entry.State != StateInFlight {
		t.Fatalf("Lookup(tx-6) = %+v, %v, want in-flight entry present", entry, ok)
	}
}

// TestCoordinatorSweepInFlightAbortsAndPersists exercises the full restart
// path: a transfer is left in-flight (marker written, never finished), the
// coordinator is rebuilt against the reopened registry with both banks
// resolved, and SweepInFlight must broadcast Abort* to both legs, release
// the holds, and persist the aborted decision so a resubmission of the same
// txid returns the cached abort instead of re-running 2PC.
func TestCoordinatorSweepInFlightAbortsAndPersists(t *testing.T) {
	alice := newTestBank(t, "alice-bank")
	bob := newTestBank(t, "bob-bank")
	seedAccount(t, alice, "alice", 100)
	seedAccount(t, bob, "bob", 0)

	path := filepath.Join(t.TempDir(), "coordinator.log")

	registry, _, err := OpenRegistry(path)
	if err != nil {
		t.Fatalf("OpenRegistry() error = %v", err)
	}

	directory := NewDirectory()
	directory.Register("alice-bank", NewParticipantClient("alice-bank", alice.server.URL, 2*time.Second))
	directory.Register("bob-bank", NewParticipantClient("bob-bank", bob.server.URL, 2*time.Second))

	aliceClient, ok := directory.Lookup("alice-bank")
	if !ok {
		t.Fatal("directory.Lookup(alice-bank) found nothing")
	}
	ctx := context.Background()
	if err := aliceClient.PrepareDebit(ctx, "alice", "tx-7", 30); err != nil {
		t.Fatalf("PrepareDebit() error = %v", err)
	}
	registry.Begin("tx-7", AccountRef{Bank: "alice-bank", Username: "alice"}, AccountRef{Bank: "bob-bank", Username: "bob"}, 30)
	// No commit, no Finish, no Close: the coordinator "crashes" after the
	// debit leg prepared.
	registry.Close()

	reopened, recovered, err := OpenRegistry(path)
	if err != nil {
		t.Fatalf("OpenRegistry() on reopen error = %v", err)
	}
	defer reopened.Close()
	if len(recovered) != 1 {
		t.Fatalf("recovered = %v, want exactly tx-7", recovered)
	}

	cfg := DefaultConfig()
	cfg.Timeout2PC = 2 * time.Second
	coord := New(cfg, directory, reopened, nil)
	coord.SweepInFlight(recovered)

	entry, ok := reopened.Lookup("tx-7")
	if !ok || entry.State != StateAborted {
		t.Fatalf("Lookup(tx-7) after sweep = %+v, %v, want aborted", entry, ok)
	}

	aliceBal, _ := alice.ledger.Balance("alice")
	if aliceBal != 100 {
		t.Fatalf("alice balance = %d, want 100 (sweep must not apply the debit)", aliceBal)
	}
	// A live debit hold makes any further debit prepare fail with a conflicting
	// hold, so this succeeds only if the sweep released tx-7's hold.
	if err := alice.ledger.PrepareDebit("alice", "tx-8", 100); err != nil {
		t.Fatalf("PrepareDebit() after sweep error = %v, want nil (sweep must release the debit hold)", err)
	}

	result, err := coord.Transfer(context.Background(), TransferRequest{
		TxID: "tx-7", SrcBank: "alice-bank", SrcUser: "alice",
		DstBank: "bob-bank", DstUser: "bob", Amount: 30,
	})
	if err != nil {
		t.Fatalf("Transfer() on swept txid error = %v", err)
	}
	if result.Committed {
		t.Fatalf("Transfer() on swept txid committed = true, want cached abort")
	}
}
