// Package bank implements the Bank Participant (BP) role: it
// owns a set of user accounts and exposes Authenticate, PrepareDebit,
// PrepareCredit, CommitDebit, CommitCredit, AbortDebit, AbortCredit, Balance,
// and History to a coordinator driving two-phase commit.
package bank

import (
	"sync"
	"time"
)

// Config holds the participant's runtime parameters.
type Config struct {
	Name       string        // bank name, used as the registry entry and state-file stem
	HoldTTL    time.Duration // T_hold; recommends >= 2*TIMEOUT2PC
	SweepEvery time.Duration // background hold-expiry sweep interval
}

// DefaultConfig returns defaults for a standalone participant.
func DefaultConfig(name string) *Config {
	return &Config{
		Name:       name,
		HoldTTL:    10 * time.Second, // 2 * default TIMEOUT2PC (5s)
		SweepEvery: time.Second,
	}
}

// Ledger is the bank participant's in-memory account table.
type Ledger struct {
	cfg   *Config
	mu    sync.RWMutex // guards the users map itself (add/remove), not account contents
	users map[string]*User
	locks *accountLocks

	completedMu sync.Mutex
	completed   map[string]bool // txids whose commit has already been applied

	stopSweep chan struct{}
}

// New creates an empty Ledger and starts its background hold-expiry sweep.
func New(cfg *Config) *Ledger {
	l := &Ledger{
		cfg:       cfg,
		users:     make(map[string]*User),
		locks:     newAccountLocks(),
		completed: make(map[string]bool),
		stopSweep: make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Close stops the background sweep goroutine.
func (l *Ledger) Close() {
	close(l.stopSweep)
}

func (l *Ledger) sweepLoop() {
	interval := l.cfg.SweepEvery
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweepAllAccounts()
		case <-l.stopSweep:
			return
		}
	}
}

func (l *Ledger) sweepAllAccounts() {
	l.mu.RLock()
	usernames := make([]string, 0, len(l.users))
	for name := range l.users {
		usernames = append(usernames, name)
	}
	l.mu.RUnlock()

	now := time.Now()
	for _, name := range usernames {
		lock := l.locks.get(name)
		lock.Lock()
		if u, ok := l.lookupUnlocked(name); ok {
			u.sweepExpiredHolds(now)
		}
		lock.Unlock()
	}
}

func (l *Ledger) lookupUnlocked(username string) (*User, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	u, ok := l.users[username]
	return u, ok
}

// addUser inserts a fully-formed User (used by bootstrap/restore); it does not
// take the account lock since no concurrent access is possible before the
// ledger is serving requests.
func (l *Ledger) addUser(u *User) {
	if u.holds == nil {
		u.holds = make(map[string]*Hold)
	}
	l.mu.Lock()
	l.users[u.Username] = u
	l.mu.Unlock()
}

// Authenticate checks a plaintext password against the stored pbkdf2 key.
func (l *Ledger) Authenticate(username, password string) error {
	u, ok := l.lookupUnlocked(username)
	if !ok {
		return ErrUnknownUser
	}
	if !verifyPassword(password, u.Salt, u.StoredKey) {
		return ErrBadPassword
	}
	return nil
}

// Balance returns the account's resting balance.
func (l *Ledger) Balance(username string) (int64, error) {
	lock, u, ok := l.acquire(username)
	if !ok {
		return 0, ErrUnknownUser
	}
	defer lock.Unlock()
	return u.Balance, nil
}

// History returns a copy of the account's transaction history.
func (l *Ledger) History(username string) ([]TransactionRecord, error) {
	lock, u, ok := l.acquire(username)
	if !ok {
		return nil, ErrUnknownUser
	}
	defer lock.Unlock()

	out := make([]TransactionRecord, len(u.History))
	copy(out, u.History)
	return out, nil
}

// acquire locks the account and returns the user, or (nil, nil, false) if the
// account doesn't exist (no lock is held in that case).
func (l *Ledger) acquire(username string) (*sync.Mutex, *User, bool) {
	u, ok := l.lookupUnlocked(username)
	if !ok {
		return nil, nil, false
	}
	lock := l.locks.get(username)
	lock.Lock()
	// Re-check under lock: the user table itself is append-only post-bootstrap,
	// so this can't have disappeared, but re-reading keeps the invariant local.
	u, ok = l.lookupUnlocked(username)
	if !ok {
		lock.Unlock()
		return nil, nil, false
	}
	return lock, u, true
}
