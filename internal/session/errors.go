package session

import "errors"

var (
	// ErrSessionNotFound is returned when a session code does not map to a
	// live session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionFull is returned by Join when the session already has
	// MaxMembers members. It is the only pairing error surfaced to clients.
	ErrSessionFull = errors.New("session full")
	// ErrClientNotFound is returned when a client id is not registered, e.g.
	// because its connection was torn down concurrently.
	ErrClientNotFound = errors.New("client not found")
	// ErrClientNotInSession is returned when a registered client has no
	// session reference.
	ErrClientNotInSession = errors.New("client not in session")
)
