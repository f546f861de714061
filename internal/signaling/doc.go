// Package signaling pairs WebRTC peers through short session codes and relays
// their SDP offers, answers, and ICE candidates.
//
// A Hub owns the client and session registries. Every registry mutation runs
// on the hub's own goroutine, so a join racing a disconnect always observes a
// consistent pair of registries. Connections reach the hub through the
// Transport interface; WebSocketServer adapts gorilla/websocket to it.
package signaling
