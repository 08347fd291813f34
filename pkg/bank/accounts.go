package bank

import "time"

// TransactionRecord is an immutable, append-only entry in a user's history,
// written once on commit.
type TransactionRecord struct {
	TxID             string    `json:"txid"`
	CounterpartyBank string    `json:"counterparty_bank"`
	CounterpartyUser string    `json:"counterparty_user"`
	Direction        string    `json:"direction"` // "sent" or "received"
	Amount           int64     `json:"amount"`
	Timestamp        time.Time `json:"timestamp"`
	Status           string    `json:"status"` // always "committed"
}

const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// User is a bank account: credentials, balance, and history. Created once at
// bootstrap from the credential store, mutated only by this participant's
// commit handlers.
type User struct {
	Username  string              `json:"username"`
	Salt      []byte              `json:"salt"`
	StoredKey []byte              `json:"stored_key"`
	Balance   int64               `json:"balance"`
	History   []TransactionRecord `json:"history"`

	holds map[string]*Hold `json:"-"` // live holds keyed by txid
}

// liveDebitHoldTotal sums the amounts of every live debit hold on the user.
// Callers must hold the account lock for this user.
func (u *User) liveDebitHoldTotal() int64 {
	var total int64
	for _, h := range u.holds {
		if h.Kind == HoldDebit {
			total += h.Amount
		}
	}
	return total
}

// availableBalance is balance minus all live debit holds — the quantity
// hold-safety invariant keeps non-negative.
func (u *User) availableBalance() int64 {
	return u.Balance - u.liveDebitHoldTotal()
}
