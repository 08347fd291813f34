package client

import (
	"context"
	"log"
	"sync"
	"time"
)

// QueueEntry is one user-initiated transfer waiting to reach a terminal
// outcome. TxID is allocated once, at enqueue time, and reused for every
// retry, which is what makes retries idempotent end-to-end.
type QueueEntry struct {
	TxID    string
	DstBank string
	DstUser string
	Amount  int64

	Attempts int
	Outcome  chan TransferOutcome
}

// Queue is the client's offline queue: a cooperative background worker polls
// the coordinator's Ping every pollInterval. While the coordinator is
// unreachable, transfers are appended here and return immediately as
// "queued"; once reachable, entries drain strictly in insertion order, one
// in-flight Transfer at a time, so the user sees a deterministic order.
type Queue struct {
	client       *Client
	pollInterval time.Duration

	mu      sync.Mutex
	entries []*QueueEntry
	paused  bool // true while waiting for the caller to re-authenticate

	onPause func()

	stop chan struct{}
	done chan struct{}
}

// NewQueue builds a Queue draining against client, polling every pollInterval.
// onPause, if non-nil, is invoked (from the worker goroutine) whenever
// draining pauses on an expired token so the caller can prompt for
// re-authentication.
func NewQueue(c *Client, pollInterval time.Duration, onPause func()) *Queue {
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}
	return &Queue{
		client:       c,
		pollInterval: pollInterval,
		onPause:      onPause,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Enqueue allocates a txid and appends a new transfer request to the queue,
// returning a channel that receives exactly one TransferOutcome once the
// transfer reaches a terminal state.
func (q *Queue) Enqueue(dstBank, dstUser string, amount int64) (*QueueEntry, <-chan TransferOutcome) {
	entry := &QueueEntry{
		TxID:    NewTxID(),
		DstBank: dstBank,
		DstUser: dstUser,
		Amount:  amount,
		Outcome: make(chan TransferOutcome, 1),
	}

	q.mu.Lock()
	q.entries = append(q.entries, entry)
	q.mu.Unlock()

	return entry, entry.Outcome
}

// Resume unpauses a queue that stopped draining after an "unauthorized"
// response. The caller must have already re-authenticated (c.Login) before
// calling this.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
}

// Len reports how many entries are still waiting to drain.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Run starts the poll-and-drain worker; it blocks until Stop is called or ctx
// is cancelled.
func (q *Queue) Run(ctx context.Context) {
	defer close(q.done)
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stop:
			return
		case <-ticker.C:
			q.tick(ctx)
		}
	}
}

// Stop halts the worker and waits for its goroutine to exit.
func (q *Queue) Stop() {
	close(q.stop)
	<-q.done
}

func (q *Queue) tick(ctx context.Context) {
	q.mu.Lock()
	if q.paused || len(q.entries) == 0 {
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	pingCtx, cancel := context.WithTimeout(ctx, q.pollInterval)
	reachable := q.client.Ping(pingCtx) == nil
	cancel()
	if !reachable {
		return
	}

	q.drain(ctx)
}

// drain submits queued entries strictly in order, one at a time, stopping at
// the first transport failure (left queued for the next tick) or the first
// "unauthorized" response (the whole queue pauses until Resume).
func (q *Queue) drain(ctx context.Context) {
	for {
		q.mu.Lock()
		if q.paused || len(q.entries) == 0 {
			q.mu.Unlock()
			return
		}
		entry := q.entries[0]
		q.mu.Unlock()

		reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		entry.Attempts++
		outcome, err := q.client.transfer(reqCtx, entry.TxID, entry.DstBank, entry.DstUser, entry.Amount)
		cancel()

		if err != nil {
			if isUnauthorized(err) {
				q.mu.Lock()
				q.paused = true
				q.mu.Unlock()
				if q.onPause != nil {
					q.onPause()
				}
				return
			}
			// Transport failure or the coordinator itself erroring: leave the
			// entry queued and retry on the next poll.
			log.Printf("client: transfer %s failed (attempt %d): %v", entry.TxID, entry.Attempts, err)
			return
		}

		q.popFront()
		entry.Outcome <- *outcome
		close(entry.Outcome)
	}
}

func (q *Queue) popFront() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return
	}
	q.entries = q.entries[1:]
}
