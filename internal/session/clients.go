package session

import "sync"

// Outbox is the outbound delivery queue of a registered client. Enqueue must
// never block; Close releases whoever is draining the queue.
type Outbox interface {
	Enqueue(payload []byte) bool
	Close()
}

// Client is a snapshot of a registered connection.
type Client struct {
	ID     string
	Outbox Outbox
	// SessionCode is empty while the client is not part of a session.
	SessionCode string
}

// Clients maps client ids to their registry entries.
type Clients struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewClients() *Clients {
	return &Clients{clients: make(map[string]*Client)}
}

// Register inserts a new client. It returns false, leaving the existing entry
// untouched, if id is already registered.
func (c *Clients) Register(id string, outbox Outbox) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.clients[id]; ok {
		return false
	}
	c.clients[id] = &Client{ID: id, Outbox: outbox}
	return true
}

func (c *Clients) Lookup(id string) (Client, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	client, ok := c.clients[id]
	if !ok {
		return Client{}, false
	}
	return *client, true
}

// SetSession records code as the session id belongs to. It reports whether
// the client was registered.
func (c *Clients) SetSession(id, code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	client, ok := c.clients[id]
	if !ok {
		return false
	}
	client.SessionCode = code
	return true
}

// Remove deletes id and returns the entry as it was at removal time. Only the
// first of several concurrent Remove calls for the same id observes ok=true.
func (c *Clients) Remove(id string) (Client, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	client, ok := c.clients[id]
	if !ok {
		return Client{}, false
	}
	delete(c.clients, id)
	return *client, true
}

func (c *Clients) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.clients)
}
