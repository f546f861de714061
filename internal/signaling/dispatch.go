package signaling

import (
	"errors"
	"fmt"

	"github.com/demendet/Stunserver/internal/metrics"
	"github.com/demendet/Stunserver/internal/session"
)

// dispatch applies one client message. It runs on the hub goroutine.
func (h *Hub) dispatch(from string, msg inboundMessage) {
	var err error
	switch m := msg.(type) {
	case createSession:
		err = h.createSession(from)
	case joinSession:
		err = h.joinSession(from, m.SessionCode)
	case webrtcOffer, webrtcAnswer, iceCandidate:
		err = h.relay(from, msg)
	default:
		err = fmt.Errorf("unhandled message type %q", msg.messageType())
	}
	if err != nil {
		h.recordDispatchError(from, msg.messageType(), err)
	}
}

func (h *Hub) recordDispatchError(from string, t messageType, err error) {
	switch {
	case errors.Is(err, session.ErrSessionFull):
		h.metrics.Inc(metrics.SessionFull)
		h.log.Info("join rejected", "client_id", from, "err", err)
		return
	case errors.Is(err, session.ErrSessionNotFound):
		h.metrics.Inc(metrics.SessionNotFound)
	case errors.Is(err, session.ErrClientNotFound):
		h.metrics.Inc(metrics.ClientNotFound)
	case errors.Is(err, session.ErrClientNotInSession):
		h.metrics.Inc(metrics.ClientNotInSession)
	}
	h.log.Warn("dropping message", "client_id", from, "type", string(t), "err", err)
}

func (h *Hub) createSession(from string) error {
	if _, ok := h.clients.Lookup(from); !ok {
		return fmt.Errorf("create session: %w", session.ErrClientNotFound)
	}
	code, err := h.newCode()
	if err != nil {
		return fmt.Errorf("generate session code: %w", err)
	}

	h.sessions.Create(code, from, h.now())
	h.clients.SetSession(from, code)
	h.send(from, newSessionCreatedMessage(code))

	h.metrics.Inc(metrics.SessionCreated)
	h.log.Info("session created", "session_code", code, "client_id", from)
	return nil
}

func (h *Hub) joinSession(from, code string) error {
	if _, ok := h.clients.Lookup(from); !ok {
		return fmt.Errorf("join session %s: %w", code, session.ErrClientNotFound)
	}
	if !session.IsCode(code) {
		return fmt.Errorf("join session %q: malformed code: %w", code, session.ErrSessionNotFound)
	}
	hostID, err := h.sessions.Join(code, from)
	if err != nil {
		if errors.Is(err, session.ErrSessionFull) {
			h.send(from, newErrorMessage(errorMessageSessionFull))
		}
		return err
	}

	h.clients.SetSession(from, code)
	h.send(from, newSessionJoinedMessage(code, hostID))
	h.send(hostID, newClientJoinedMessage(from))

	h.metrics.Inc(metrics.SessionJoined)
	h.log.Info("client joined session", "session_code", code, "client_id", from)
	return nil
}

// relay forwards msg to the first other member of the sender's session.
func (h *Hub) relay(from string, msg inboundMessage) error {
	client, ok := h.clients.Lookup(from)
	if !ok {
		return fmt.Errorf("relay: %w", session.ErrClientNotFound)
	}
	if client.SessionCode == "" {
		return fmt.Errorf("relay: %w", session.ErrClientNotInSession)
	}
	sess, ok := h.sessions.Get(client.SessionCode)
	if !ok {
		return fmt.Errorf("relay %s: %w", client.SessionCode, session.ErrSessionNotFound)
	}

	peer, ok := sess.Peer(from)
	if !ok {
		h.metrics.Inc(metrics.RelayNoPeer)
		h.log.Debug("no peer to relay to", "client_id", from, "session_code", sess.Code, "type", string(msg.messageType()))
		return nil
	}
	out, ok := relayedMessage(msg, from)
	if !ok {
		return fmt.Errorf("relay: unsupported message type %q", msg.messageType())
	}
	h.send(peer, out)
	h.metrics.Inc(metrics.RelayForwarded)
	h.log.Debug("relayed message", "client_id", from, "peer_id", peer, "session_code", sess.Code, "type", string(msg.messageType()))
	return nil
}
