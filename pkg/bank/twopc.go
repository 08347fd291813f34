package bank

import "time"

// PrepareDebit reserves amount against username for txid. It is idempotent
// for a repeated txid and rejects a second, different in-flight debit hold
// on the same account.
func (l *Ledger) PrepareDebit(username, txid string, amount int64) error {
	lock, u, ok := l.acquire(username)
	if !ok {
		return ErrUnknownUser
	}
	defer lock.Unlock()

	now := time.Now()
	u.sweepExpiredHolds(now)

	if existing, ok := u.holds[txid]; ok {
		return &DuplicateTxIDError{State: string(existing.Kind) + "_prepared"}
	}

	for _, h := range u.holds {
		if h.Kind == HoldDebit {
			return ErrConflictingHold
		}
	}

	if u.availableBalance() < amount {
		return ErrInsufficientFunds
	}

	u.holds[txid] = &Hold{
		TxID:     txid,
		Kind:     HoldDebit,
		Amount:   amount,
		Deadline: now.Add(l.cfg.HoldTTL),
	}
	return nil
}

// PrepareCredit records an inbound obligation for txid; credits never overdraw
// so there is no balance check and no conflict check.
func (l *Ledger) PrepareCredit(username, txid string, amount int64) error {
	lock, u, ok := l.acquire(username)
	if !ok {
		return ErrUnknownUser
	}
	defer lock.Unlock()

	now := time.Now()
	u.sweepExpiredHolds(now)

	if existing, ok := u.holds[txid]; ok {
		return &DuplicateTxIDError{State: string(existing.Kind) + "_prepared"}
	}

	u.holds[txid] = &Hold{
		TxID:     txid,
		Kind:     HoldCredit,
		Amount:   amount,
		Deadline: now.Add(l.cfg.HoldTTL),
	}
	return nil
}

// CommitDebit applies a prepared debit: subtracts amount, appends a "sent"
// history record, and releases the hold.
func (l *Ledger) CommitDebit(username, txid, counterpartyBank, counterpartyUser string) error {
	return l.commit(username, txid, counterpartyBank, counterpartyUser, HoldDebit)
}

// CommitCredit applies a prepared credit: adds amount, appends a "received"
// history record, and releases the hold.
func (l *Ledger) CommitCredit(username, txid, counterpartyBank, counterpartyUser string) error {
	return l.commit(username, txid, counterpartyBank, counterpartyUser, HoldCredit)
}

func (l *Ledger) commit(username, txid, counterpartyBank, counterpartyUser string, kind HoldKind) error {
	// Keyed by (txid, username): an intra-bank transfer holds both a debit and
	// a credit under the same txid on two different accounts at this same
	// participant, so completion must be tracked per account, not per txid.
	completionKey := txid + "|" + username
	if l.isCompleted(completionKey) {
		return nil
	}

	lock, u, ok := l.acquire(username)
	if !ok {
		return ErrUnknownUser
	}
	defer lock.Unlock()

	h, ok := u.holds[txid]
	if !ok {
		return ErrUnknownTxID
	}
	if h.expired(time.Now()) {
		delete(u.holds, txid)
		return ErrNotPrepared
	}
	if h.Kind != kind {
		return ErrUnknownTxID
	}

	direction := DirectionReceived
	switch kind {
	case HoldDebit:
		u.Balance -= h.Amount
		direction = DirectionSent
	case HoldCredit:
		u.Balance += h.Amount
		direction = DirectionReceived
	}

	u.History = append(u.History, TransactionRecord{
		TxID:             txid,
		CounterpartyBank: counterpartyBank,
		CounterpartyUser: counterpartyUser,
		Direction:        direction,
		Amount:           h.Amount,
		Timestamp:        time.Now(),
		Status:           "committed",
	})

	delete(u.holds, txid)
	l.markCompleted(completionKey)
	return nil
}

// AbortDebit releases a live debit hold for txid, if any.
func (l *Ledger) AbortDebit(username, txid string) error {
	return l.abort(username, txid)
}

// AbortCredit releases a live credit hold for txid, if any.
func (l *Ledger) AbortCredit(username, txid string) error {
	return l.abort(username, txid)
}

// abort always succeeds: removing an unknown or already-released hold is a
// no-op. Balance is never touched.
func (l *Ledger) abort(username, txid string) error {
	lock, u, ok := l.acquire(username)
	if !ok {
		return nil
	}
	defer lock.Unlock()

	delete(u.holds, txid)
	return nil
}

func (l *Ledger) isCompleted(txid string) bool {
	l.completedMu.Lock()
	defer l.completedMu.Unlock()
	return l.completed[txid]
}

func (l *Ledger) markCompleted(txid string) {
	l.completedMu.Lock()
	defer l.completedMu.Unlock()
	l.completed[txid] = true
}
