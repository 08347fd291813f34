package coordinator

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mnohosten/paygate/pkg/walog"
)

// Registry is the coordinator's idempotency registry: an
// in-memory map of txid to Entry, backed by a durable append-only log so a
// restart can replay terminal decisions instead of re-running 2PC.
//
// Registry intentionally holds no opinion about HTTP or 2PC semantics; it
// only answers "have I seen this txid, and if so what happened to it".
//
// The durable log only ever holds terminal records, so a txid that never
// reaches Finish leaves no trace there. Begin instead writes a small marker
// file under markerDir before a transfer's prepare phase is dispatched, and
// Finish removes it once the terminal decision is durably logged. Any marker
// still present when OpenRegistry runs names a transfer that was in-flight
// when the process died.
type Registry struct {
	mu        sync.Mutex
	entries   map[string]*Entry
	locks     map[string]*sync.Mutex
	log       *walog.Log
	markerDir string
}

// marker is the on-disk record written for an in-flight transfer, holding
// just enough to drive a best-effort abort sweep after a crash.
type marker struct {
	TxID      string     `json:"txid"`
	Src       AccountRef `json:"src"`
	Dst       AccountRef `json:"dst"`
	Amount    int64      `json:"amount"`
	StartedAt time.Time  `json:"started_at"`
}

// OpenRegistry opens (creating if absent) the durable log at path, replays
// it to rebuild the in-memory entry map, and scans the in-flight marker
// directory for transfers that never reached a terminal state. Those
// entries are returned so the caller can sweep them (broadcast a
// best-effort abort) before serving new traffic.
func OpenRegistry(path string) (*Registry, []*Entry, error) {
	walogFile, err := walog.Open(path)
	if err != nil {
		return nil, nil, err
	}

	r := &Registry{
		entries:   make(map[string]*Entry),
		locks:     make(map[string]*sync.Mutex),
		log:       walogFile,
		markerDir: path + ".inflight",
	}

	if err := os.MkdirAll(r.markerDir, 0o755); err != nil {
		walogFile.Close()
		return nil, nil, fmt.Errorf("failed to create in-flight marker directory: %w", err)
	}

	replayErr := walog.Replay(path, func(raw json.RawMessage) error {
		var rec logRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		r.entries[rec.TxID] = &Entry{
			TxID:        rec.TxID,
			State:       rec.State,
			Src:         rec.Src,
			Dst:         rec.Dst,
			Amount:      rec.Amount,
			StartedAt:   rec.Timestamp,
			AbortReason: rec.AbortReason,
		}
		return nil
	})
	if replayErr != nil {
		walogFile.Close()
		return nil, nil, replayErr
	}

	recovered, err := r.recoverInFlight()
	if err != nil {
		walogFile.Close()
		return nil, nil, err
	}

	return r, recovered, nil
}

// recoverInFlight loads every marker file left in markerDir into the entry
// map as a StateInFlight entry, skipping (and removing) any marker whose
// txid already has a terminal record from the log.
func (r *Registry) recoverInFlight() ([]*Entry, error) {
	files, err := os.ReadDir(r.markerDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan in-flight marker directory: %w", err)
	}

	var recovered []*Entry
	for _, f := range files {
		if f.IsDir() {
			continue
		}

		data, err := os.ReadFile(filepath.Join(r.markerDir, f.Name()))
		if err != nil {
			log.Printf("coordinator: failed to read in-flight marker %s: %v", f.Name(), err)
			continue
		}
		var m marker
		if err := json.Unmarshal(data, &m); err != nil {
			log.Printf("coordinator: failed to decode in-flight marker %s: %v", f.Name(), err)
			continue
		}

		if existing, ok := r.entries[m.TxID]; ok && existing.State != StateInFlight {
			r.removeMarker(m.TxID)
			continue
		}

		e := &Entry{
			TxID:      m.TxID,
			State:     StateInFlight,
			Src:       m.Src,
			Dst:       m.Dst,
			Amount:    m.Amount,
			StartedAt: m.StartedAt,
		}
		r.entries[e.TxID] = e
		recovered = append(recovered, e)
	}
	return recovered, nil
}

// Close releases the underlying durable log.
func (r *Registry) Close() error {
	return r.log.Close()
}

// Lookup returns the current entry for txid, if any.
func (r *Registry) Lookup(txid string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[txid]
	return e, ok
}

// Begin inserts a fresh in-flight entry for txid and writes its marker file
// before returning, so a crash any time after Begin leaves something on disk
// for the next startup's sweep to find. It reports false without modifying
// state if txid is already known.
func (r *Registry) Begin(txid string, src, dst AccountRef, amount int64) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[txid]; ok {
		return e, false
	}

	e := &Entry{
		TxID:      txid,
		State:     StateInFlight,
		Src:       src,
		Dst:       dst,
		Amount:    amount,
		StartedAt: time.Now(),
	}
	r.entries[txid] = e
	r.writeMarker(e)
	return e, true
}

// Finish transitions txid to a terminal state and durably logs the decision
// before returning, so a crash after Finish never loses a decision the
// caller has already acted on. The in-flight marker is only removed once
// the terminal record is safely appended.
func (r *Registry) Finish(txid string, state EntryState, abortReason string) error {
	r.mu.Lock()
	e, ok := r.entries[txid]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	e.State = state
	e.AbortReason = abortReason
	rec := logRecord{
		TxID:        e.TxID,
		State:       e.State,
		Src:         e.Src,
		Dst:         e.Dst,
		Amount:      e.Amount,
		AbortReason: e.AbortReason,
		Timestamp:   time.Now(),
	}
	r.mu.Unlock()

	if err := r.log.Append(rec); err != nil {
		return err
	}
	r.removeMarker(txid)
	return nil
}

func (r *Registry) markerPath(txid string) string {
	return filepath.Join(r.markerDir, txid+".json")
}

func (r *Registry) writeMarker(e *Entry) {
	data, err := json.Marshal(marker{TxID: e.TxID, Src: e.Src, Dst: e.Dst, Amount: e.Amount, StartedAt: e.StartedAt})
	if err != nil {
		log.Printf("coordinator: failed to encode in-flight marker for %s: %v", e.TxID, err)
		return
	}
	if err := os.WriteFile(r.markerPath(e.TxID), data, 0o644); err != nil {
		log.Printf("coordinator: failed to write in-flight marker for %s: %v", e.TxID, err)
	}
}

func (r *Registry) removeMarker(txid string) {
	if err := os.Remove(r.markerPath(txid)); err != nil && !os.IsNotExist(err) {
		log.Printf("coordinator: failed to remove in-flight marker for %s: %v", txid, err)
	}
}

// txLock returns a per-txid mutex, lazily created, so concurrent Transfer
// calls for distinct txids never block one another while still serializing
// any retry of the same txid.
func (r *Registry) txLock(txid string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lk, ok := r.locks[txid]
	if !ok {
		lk = &sync.Mutex{}
		r.locks[txid] = lk
	}
	return lk
}
