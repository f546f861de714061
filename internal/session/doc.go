// Package session holds the two shared registries of the rendezvous service:
// connected clients keyed by client id, and pairing sessions keyed by their
// human-shareable code.
//
// Both registries are safe for concurrent use. They do not coordinate with
// each other; callers that need a consistent view across both (the signaling
// hub) serialize their mutations themselves.
package session
