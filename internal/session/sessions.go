package session

import (
	"fmt"
	"sync"
	"time"
)

// MaxMembers is the number of peers a session pairs.
const MaxMembers = 2

// Session is a snapshot of a pairing session.
type Session struct {
	Code string
	// Host is the id of the client that created the session. While the host
	// is a member it is always Members[0].
	Host      string
	Members   []string
	CreatedAt time.Time
}

// Peer returns the first member whose id differs from id.
func (s Session) Peer(id string) (string, bool) {
	for _, member := range s.Members {
		if member != id {
			return member, true
		}
	}
	return "", false
}

func (s *Session) snapshot() Session {
	out := *s
	out.Members = append([]string(nil), s.Members...)
	return out
}

// Sessions maps session codes to sessions.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[string]*Session)}
}

// Create inserts a session with hostID as its only member. A live session
// already stored under code is replaced.
func (s *Sessions) Create(code, hostID string, now time.Time) Session {
	sess := &Session{
		Code:      code,
		Host:      hostID,
		Members:   []string{hostID},
		CreatedAt: now,
	}
	s.mu.Lock()
	s.sessions[code] = sess
	s.mu.Unlock()
	return sess.snapshot()
}

// Join appends clientID to the members of code and returns the host id.
func (s *Sessions) Join(code, clientID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[code]
	if !ok {
		return "", fmt.Errorf("join %s: %w", code, ErrSessionNotFound)
	}
	if len(sess.Members) >= MaxMembers {
		return "", fmt.Errorf("join %s: %w", code, ErrSessionFull)
	}
	sess.Members = append(sess.Members, clientID)
	return sess.Host, nil
}

func (s *Sessions) Get(code string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[code]
	if !ok {
		return Session{}, false
	}
	return sess.snapshot(), true
}

// RemoveMember drops every occurrence of clientID from the members of code and
// returns the resulting session. The session itself is kept even if it ends
// up empty; deleting it is the caller's decision.
func (s *Sessions) RemoveMember(code, clientID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[code]
	if !ok {
		return Session{}, false
	}
	kept := sess.Members[:0]
	for _, member := range sess.Members {
		if member != clientID {
			kept = append(kept, member)
		}
	}
	for i := len(kept); i < len(sess.Members); i++ {
		sess.Members[i] = ""
	}
	sess.Members = kept
	return sess.snapshot(), true
}

func (s *Sessions) Delete(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[code]; !ok {
		return false
	}
	delete(s.sessions, code)
	return true
}

// Sweep deletes every session for which evict returns true and returns the
// deleted codes. evict runs with the registry locked and must not call back
// into s.
func (s *Sessions) Sweep(evict func(Session) bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var evicted []string
	for code, sess := range s.sessions {
		if evict(sess.snapshot()) {
			delete(s.sessions, code)
			evicted = append(evicted, code)
		}
	}
	return evicted
}

func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
