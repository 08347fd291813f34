package bank

import "time"

// HoldKind distinguishes a tentative debit reservation from a credit obligation.
type HoldKind string

const (
	HoldDebit  HoldKind = "debit"
	HoldCredit HoldKind = "credit"
)

// Hold is a tentative balance reservation (debit) or inbound obligation
// (credit) associated with exactly one txid. At most one live
// hold exists per (account, txid); at most one live debit hold exists per
// account at any instant.
type Hold struct {
	TxID     string    `json:"txid"`
	Kind     HoldKind  `json:"kind"`
	Amount   int64     `json:"amount"`
	Deadline time.Time `json:"deadline"`
}

func (h *Hold) expired(now time.Time) bool {
	return now.After(h.Deadline)
}

// sweepExpiredHolds removes every hold on u whose deadline has passed. It must
// be called with u's account lock held. An expired debit hold is an implicit
// abort: balance is left untouched.
func (u *User) sweepExpiredHolds(now time.Time) {
	for txid, h := range u.holds {
		if h.expired(now) {
			delete(u.holds, txid)
		}
	}
}
