package bank

import "github.com/mnohosten/paygate/pkg/walog"

// snapshot is the on-disk shape written on graceful shutdown and read back on
// restart. Live holds are deliberately excluded:
// a restart is treated as an implicit abort of everything in flight.
type snapshot struct {
	Users          map[string]*User `json:"users"`
	CompletedTxIDs []string         `json:"completed_txids"`
}

// SaveState flushes the ledger's users, histories, and completed-txid set to
// path as a zstd-compressed JSON snapshot.
func (l *Ledger) SaveState(path string) error {
	l.mu.RLock()
	users := make(map[string]*User, len(l.users))
	for name, u := range l.users {
		users[name] = u
	}
	l.mu.RUnlock()

	l.completedMu.Lock()
	completed := make([]string, 0, len(l.completed))
	for key := range l.completed {
		completed = append(completed, key)
	}
	l.completedMu.Unlock()

	return walog.WriteSnapshot(path, snapshot{Users: users, CompletedTxIDs: completed})
}

// LoadState restores a previously saved snapshot from path. It reports
// whether a snapshot file existed; when it doesn't, the caller should fall
// back to LoadCredentials instead.
func (l *Ledger) LoadState(path string) (bool, error) {
	var snap snapshot
	found, err := walog.ReadSnapshot(path, &snap)
	if err != nil || !found {
		return found, err
	}

	for _, u := range snap.Users {
		l.addUser(u)
	}

	l.completedMu.Lock()
	for _, key := range snap.CompletedTxIDs {
		l.completed[key] = true
	}
	l.completedMu.Unlock()

	return true, nil
}
