package metrics

import "sync"

// Event counter names.
const (
	ClientConnected     = "client_connected"
	ClientDisconnected  = "client_disconnected"
	SessionCreated      = "session_created"
	SessionJoined       = "session_joined"
	SessionFull         = "session_full"
	SessionDeleted      = "session_deleted"
	SessionSwept        = "session_swept"
	SessionNotFound     = "session_not_found"
	ClientNotFound      = "client_not_found"
	ClientNotInSession  = "client_not_in_session"
	RelayForwarded      = "relay_forwarded"
	RelayNoPeer         = "relay_no_peer"
	ParseError          = "parse_error"
	OutboundDropped     = "outbound_dropped"
	TransportWriteError = "transport_write_error"
	BinaryFrameIgnored  = "binary_frame_ignored"
)

// Metrics is a concurrency-safe counter registry. A nil *Metrics ignores
// increments and reads as zero.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of every counter recorded so far.
func (m *Metrics) Snapshot() map[string]uint64 {
	out := make(map[string]uint64)
	if m == nil {
		return out
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
