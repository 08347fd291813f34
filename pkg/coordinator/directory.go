package coordinator

import "sync"

// Directory resolves a bank name to its participant client. In production
// this is populated from the registry service; tests
// populate it directly.
type Directory struct {
	mu      sync.RWMutex
	clients map[string]*ParticipantClient
}

// NewDirectory returns an empty Directory.
func NewDirectory() *Directory {
	return &Directory{clients: make(map[string]*ParticipantClient)}
}

// Register binds bank to client, replacing any previous binding.
func (d *Directory) Register(bank string, client *ParticipantClient) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients[bank] = client
}

// Lookup returns the client registered for bank, if any.
func (d *Directory) Lookup(bank string) (*ParticipantClient, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.clients[bank]
	return c, ok
}

// Banks returns the names of every registered bank.
func (d *Directory) Banks() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.clients))
	for name := range d.clients {
		names = append(names, name)
	}
	return names
}
