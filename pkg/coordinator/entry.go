package coordinator

import "time"

// EntryState is a coordinator transaction entry's place in its state machine:
//
//	∅ --insert--> in-flight --both prepared & committed--> committed
//	                 |
//	                 +--any reject/timeout--> aborted
type EntryState string

const (
	StateInFlight  EntryState = "in-flight"
	StateCommitted EntryState = "committed"
	StateAborted   EntryState = "aborted"
)

// AccountRef names one side of a transfer.
type AccountRef struct {
	Bank     string `json:"bank"`
	Username string `json:"username"`
}

// Entry is the coordinator's idempotency-registry record for one txid.
// Terminal entries are what get appended to the durable log.
type Entry struct {
	TxID      string     `json:"txid"`
	State     EntryState `json:"state"`
	Src       AccountRef `json:"src"`
	Dst       AccountRef `json:"dst"`
	Amount    int64      `json:"amount"`
	StartedAt time.Time  `json:"started_at"`

	// AbortReason is set when State == StateAborted, carrying the prepare
	// failure kind so a duplicate submission gets the original reason back.
	AbortReason string `json:"abort_reason,omitempty"`
}

// logRecord is the durable, terminal-only projection of an Entry that gets
// appended to the CO's durable log.
type logRecord struct {
	TxID        string     `json:"txid"`
	State       EntryState `json:"state"`
	Src         AccountRef `json:"src"`
	Dst         AccountRef `json:"dst"`
	Amount      int64      `json:"amount"`
	AbortReason string     `json:"abort_reason,omitempty"`
	Timestamp   time.Time  `json:"ts"`
}
