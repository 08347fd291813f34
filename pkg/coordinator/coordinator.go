package coordinator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mnohosten/paygate/pkg/concurrent"
)

// Coordinator runs the two-phase commit protocol across exactly two bank
// participants per transfer. A payment transfer always has a fixed shape —
// one debit leg, one credit leg — so the protocol is specialized rather than
// built on a generic N-participant interface.
type Coordinator struct {
	cfg       *Config
	directory *Directory
	registry  *Registry
	events    *EventBroadcaster

	started   concurrent.Counter
	committed concurrent.Counter
	aborted   concurrent.Counter
}

// New builds a Coordinator wired to directory (bank lookups), registry
// (idempotency log) and events (admin observability stream).
func New(cfg *Config, directory *Directory, registry *Registry, events *EventBroadcaster) *Coordinator {
	return &Coordinator{cfg: cfg, directory: directory, registry: registry, events: events}
}

// Stats reports running transfer counts since the coordinator started.
type Stats struct {
	Started   uint64 `json:"started"`
	Committed uint64 `json:"committed"`
	Aborted   uint64 `json:"aborted"`
}

// Stats returns the current transfer counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Started:   c.started.Load(),
		Committed: c.committed.Load(),
		Aborted:   c.aborted.Load(),
	}
}

// TransferRequest is one client-submitted transfer.
type TransferRequest struct {
	TxID    string
	SrcBank string
	SrcUser string
	DstBank string
	DstUser string
	Amount  int64
}

// TransferResult reports the terminal outcome of a Transfer call.
type TransferResult struct {
	TxID        string
	Committed   bool
	AbortReason string
}

// Transfer runs the full protocol for req: resolve both participants,
// prepare both legs in parallel under a single Timeout2PC deadline, commit
// both legs if and only if both prepared, otherwise abort both. A resubmitted
// txid short-circuits to the original terminal outcome without re-running
// anything against the participants.
func (c *Coordinator) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}

	lock := c.registry.txLock(req.TxID)
	lock.Lock()
	defer lock.Unlock()

	if existing, ok := c.registry.Lookup(req.TxID); ok {
		switch existing.State {
		case StateCommitted:
			return &TransferResult{TxID: req.TxID, Committed: true}, nil
		case StateAborted:
			return &TransferResult{TxID: req.TxID, Committed: false, AbortReason: existing.AbortReason}, nil
		case StateInFlight:
			return nil, ErrDuplicateInFlight
		}
	}

	src, ok := c.directory.Lookup(req.SrcBank)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBank, req.SrcBank)
	}
	dst, ok := c.directory.Lookup(req.DstBank)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBank, req.DstBank)
	}

	c.registry.Begin(req.TxID,
		AccountRef{Bank: req.SrcBank, Username: req.SrcUser},
		AccountRef{Bank: req.DstBank, Username: req.DstUser},
		req.Amount)
	c.started.Inc()
	c.emit("prepare", req.TxID, "")

	prepareCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout2PC)
	defer cancel()

	debitErr, creditErr := c.prepareBoth(prepareCtx, src, dst, req)

	if debitErr != nil || creditErr != nil {
		reason := abortReason(debitErr, creditErr)
		c.emit("abort", req.TxID, reason)
		c.abortBoth(src, dst, req)
		if err := c.registry.Finish(req.TxID, StateAborted, reason); err != nil {
			log.Printf("coordinator: failed to persist abort for %s: %v", req.TxID, err)
		}
		c.aborted.Inc()
		return &TransferResult{TxID: req.TxID, Committed: false, AbortReason: reason}, nil
	}

	c.emit("commit", req.TxID, "")
	c.commitBoth(src, dst, req)
	if err := c.registry.Finish(req.TxID, StateCommitted, ""); err != nil {
		log.Printf("coordinator: failed to persist commit for %s: %v", req.TxID, err)
	}
	c.committed.Inc()
	c.emit("committed", req.TxID, "")

	return &TransferResult{TxID: req.TxID, Committed: true}, nil
}

// SweepInFlight runs once at startup against the entries OpenRegistry
// recovered from leftover in-flight markers: any transfer still recorded as
// in-flight never reached a commit/abort decision before the coordinator
// died, so each is resolved to aborted, with a best-effort Abort* broadcast
// to whichever participants the directory currently resolves for its banks.
func (c *Coordinator) SweepInFlight(entries []*Entry) {
	for _, e := range entries {
		c.sweepOne(e)
	}
}

func (c *Coordinator) sweepOne(e *Entry) {
	const reason = "coordinator restart: in-flight transfer aborted"

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout2PC)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		src, ok := c.directory.Lookup(e.Src.Bank)
		if !ok {
			log.Printf("coordinator: startup sweep could not resolve bank %s for %s", e.Src.Bank, e.TxID)
			return
		}
		if err := src.AbortDebit(ctx, e.Src.Username, e.TxID); err != nil {
			log.Printf("coordinator: startup sweep abort debit %s@%s failed: %v", e.TxID, e.Src.Bank, err)
		}
	}()
	go func() {
		defer wg.Done()
		dst, ok := c.directory.Lookup(e.Dst.Bank)
		if !ok {
			log.Printf("coordinator: startup sweep could not resolve bank %s for %s", e.Dst.Bank, e.TxID)
			return
		}
		if err := dst.AbortCredit(ctx, e.Dst.Username, e.TxID); err != nil {
			log.Printf("coordinator: startup sweep abort credit %s@%s failed: %v", e.TxID, e.Dst.Bank, err)
		}
	}()
	wg.Wait()

	if err := c.registry.Finish(e.TxID, StateAborted, reason); err != nil {
		log.Printf("coordinator: failed to persist startup-sweep abort for %s: %v", e.TxID, err)
		return
	}
	c.aborted.Inc()
	c.emit("abort", e.TxID, reason)
}

func (c *Coordinator) prepareBoth(ctx context.Context, src, dst *ParticipantClient, req TransferRequest) (debitErr, creditErr error) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		debitErr = src.PrepareDebit(ctx, req.SrcUser, req.TxID, req.Amount)
	}()
	go func() {
		defer wg.Done()
		creditErr = dst.PrepareCredit(ctx, req.DstUser, req.TxID, req.Amount)
	}()

	wg.Wait()
	return debitErr, creditErr
}

func abortReason(debitErr, creditErr error) string {
	switch {
	case debitErr != nil && creditErr != nil:
		return fmt.Sprintf("debit: %v; credit: %v", debitErr, creditErr)
	case debitErr != nil:
		return fmt.Sprintf("debit: %v", debitErr)
	case creditErr != nil:
		return fmt.Sprintf("credit: %v", creditErr)
	default:
		return ""
	}
}

// abortBoth tells both legs to release their holds. Abort is always a no-op
// on an unheld account, so no retry loop is needed: a
// transient network failure here just means the hold expires on its own via
// HOLD_TTL.
func (c *Coordinator) abortBoth(src, dst *ParticipantClient, req TransferRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout2PC)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := src.AbortDebit(ctx, req.SrcUser, req.TxID); err != nil {
			log.Printf("coordinator: abort debit %s@%s failed: %v", req.TxID, req.SrcBank, err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := dst.AbortCredit(ctx, req.DstUser, req.TxID); err != nil {
			log.Printf("coordinator: abort credit %s@%s failed: %v", req.TxID, req.DstBank, err)
		}
	}()
	wg.Wait()
}

// commitBoth applies both legs with bounded-backoff retry per leg: a leg that fails keeps retrying with
// exponential backoff capped at CommitBackoffCap, since once one leg has
// prepared and a decision to commit has been made, the coordinator must
// eventually get both legs applied rather than leave the ledger half-settled.
func (c *Coordinator) commitBoth(src, dst *ParticipantClient, req TransferRequest) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.retryUntilDone(req.TxID, "commit debit", func(ctx context.Context) error {
			return src.CommitDebit(ctx, req.SrcUser, req.TxID, req.DstBank, req.DstUser)
		})
	}()
	go func() {
		defer wg.Done()
		c.retryUntilDone(req.TxID, "commit credit", func(ctx context.Context) error {
			return dst.CommitCredit(ctx, req.DstUser, req.TxID, req.SrcBank, req.SrcUser)
		})
	}()
	wg.Wait()
}

func (c *Coordinator) retryUntilDone(txid, label string, fn func(ctx context.Context) error) {
	backoff := 100 * time.Millisecond
	attempt := 0
	for {
		attempt++
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout2PC)
		err := fn(ctx)
		cancel()
		if err == nil {
			return
		}
		log.Printf("coordinator: %s for %s failed (attempt %d): %v", label, txid, attempt, err)

		if c.cfg.CommitRetryMax > 0 && attempt >= c.cfg.CommitRetryMax {
			log.Printf("coordinator: %s for %s giving up after %d attempts", label, txid, attempt)
			return
		}

		time.Sleep(backoff)
		backoff *= 2
		if backoff > c.cfg.CommitBackoffCap {
			backoff = c.cfg.CommitBackoffCap
		}
	}
}

func (c *Coordinator) emit(kind, txid, detail string) {
	if c.events == nil {
		return
	}
	c.events.Broadcast(TransferEvent{
		Type:      kind,
		TxID:      txid,
		Detail:    detail,
		Timestamp: time.Now(),
	})
}

// NewTxID allocates a random transaction identifier suitable for client use:
// 16 random bytes, hex-encoded.
func NewTxID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate txid: %v", err))
	}
	return hex.EncodeToString(b)
}
