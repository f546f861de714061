package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

type messageType string

// Client to server.
const (
	messageTypeCreateSession messageType = "create-session"
	messageTypeJoinSession   messageType = "join-session"
)

// Relayed in both directions; the server adds "from" on the way out.
const (
	messageTypeWebRTCOffer  messageType = "webrtc-offer"
	messageTypeWebRTCAnswer messageType = "webrtc-answer"
	messageTypeICECandidate messageType = "ice-candidate"
)

// Server to client.
const (
	messageTypeConnected        messageType = "connected"
	messageTypeSessionCreated   messageType = "session-created"
	messageTypeSessionJoined    messageType = "session-joined"
	messageTypeClientJoined     messageType = "client-joined"
	messageTypePeerDisconnected messageType = "peer-disconnected"
	messageTypeError            messageType = "error"
)

const (
	roleHost   = "host"
	roleClient = "client"

	errorMessageSessionFull = "Session full"
)

// inboundMessage is a decoded client message: one of createSession,
// joinSession, webrtcOffer, webrtcAnswer or iceCandidate.
type inboundMessage interface {
	messageType() messageType
}

type createSession struct{}

type joinSession struct {
	SessionCode string
}

type webrtcOffer struct {
	SDP string
}

type webrtcAnswer struct {
	SDP string
}

type iceCandidate struct {
	Candidate string
}

func (createSession) messageType() messageType { return messageTypeCreateSession }
func (joinSession) messageType() messageType   { return messageTypeJoinSession }
func (webrtcOffer) messageType() messageType   { return messageTypeWebRTCOffer }
func (webrtcAnswer) messageType() messageType  { return messageTypeWebRTCAnswer }
func (iceCandidate) messageType() messageType  { return messageTypeICECandidate }

var errMissingType = errors.New("message missing type")

// parseInboundMessage decodes one client frame. Fields a kind does not use
// are ignored; a missing, null or non-string required field is an error.
func parseInboundMessage(data []byte) (inboundMessage, error) {
	var envelope struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if envelope.Type == nil {
		return nil, errMissingType
	}

	switch t := messageType(*envelope.Type); t {
	case messageTypeCreateSession:
		return createSession{}, nil
	case messageTypeJoinSession:
		var m struct {
			SessionCode *string `json:"sessionCode"`
		}
		if err := decodeFields(t, data, &m); err != nil {
			return nil, err
		}
		if m.SessionCode == nil {
			return nil, missingField(t, "sessionCode")
		}
		return joinSession{SessionCode: *m.SessionCode}, nil
	case messageTypeWebRTCOffer, messageTypeWebRTCAnswer:
		var m struct {
			SDP *string `json:"sdp"`
		}
		if err := decodeFields(t, data, &m); err != nil {
			return nil, err
		}
		if m.SDP == nil {
			return nil, missingField(t, "sdp")
		}
		if t == messageTypeWebRTCOffer {
			return webrtcOffer{SDP: *m.SDP}, nil
		}
		return webrtcAnswer{SDP: *m.SDP}, nil
	case messageTypeICECandidate:
		var m struct {
			Candidate *string `json:"candidate"`
		}
		if err := decodeFields(t, data, &m); err != nil {
			return nil, err
		}
		if m.Candidate == nil {
			return nil, missingField(t, "candidate")
		}
		return iceCandidate{Candidate: *m.Candidate}, nil
	default:
		return nil, fmt.Errorf("unsupported message type %q", *envelope.Type)
	}
}

func decodeFields(t messageType, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s message: %w", t, err)
	}
	return nil
}

func missingField(t messageType, field string) error {
	return fmt.Errorf("%s message missing %s", t, field)
}

type connectedMessage struct {
	Type     messageType `json:"type"`
	ClientID string      `json:"clientId"`
}

type sessionCreatedMessage struct {
	Type        messageType `json:"type"`
	SessionCode string      `json:"sessionCode"`
	Role        string      `json:"role"`
}

type sessionJoinedMessage struct {
	Type        messageType `json:"type"`
	SessionCode string      `json:"sessionCode"`
	Role        string      `json:"role"`
	HostID      string      `json:"hostId"`
}

// peerMessage covers client-joined and peer-disconnected.
type peerMessage struct {
	Type     messageType `json:"type"`
	ClientID string      `json:"clientId"`
}

type relayedSDPMessage struct {
	Type messageType `json:"type"`
	SDP  string      `json:"sdp"`
	From string      `json:"from"`
}

type relayedCandidateMessage struct {
	Type      messageType `json:"type"`
	Candidate string      `json:"candidate"`
	From      string      `json:"from"`
}

type errorMessage struct {
	Type    messageType `json:"type"`
	Message string      `json:"message"`
}

func newConnectedMessage(clientID string) connectedMessage {
	return connectedMessage{Type: messageTypeConnected, ClientID: clientID}
}

func newSessionCreatedMessage(code string) sessionCreatedMessage {
	return sessionCreatedMessage{Type: messageTypeSessionCreated, SessionCode: code, Role: roleHost}
}

func newSessionJoinedMessage(code, hostID string) sessionJoinedMessage {
	return sessionJoinedMessage{Type: messageTypeSessionJoined, SessionCode: code, Role: roleClient, HostID: hostID}
}

func newClientJoinedMessage(clientID string) peerMessage {
	return peerMessage{Type: messageTypeClientJoined, ClientID: clientID}
}

func newPeerDisconnectedMessage(clientID string) peerMessage {
	return peerMessage{Type: messageTypePeerDisconnected, ClientID: clientID}
}

func newErrorMessage(message string) errorMessage {
	return errorMessage{Type: messageTypeError, Message: message}
}

// relayedMessage builds the message forwarded to the peer of from.
func relayedMessage(msg inboundMessage, from string) (any, bool) {
	switch m := msg.(type) {
	case webrtcOffer:
		return relayedSDPMessage{Type: messageTypeWebRTCOffer, SDP: m.SDP, From: from}, true
	case webrtcAnswer:
		return relayedSDPMessage{Type: messageTypeWebRTCAnswer, SDP: m.SDP, From: from}, true
	case iceCandidate:
		return relayedCandidateMessage{Type: messageTypeICECandidate, Candidate: m.Candidate, From: from}, true
	default:
		return nil, false
	}
}

// marshalMessage encodes v without HTML escaping so relayed payloads keep
// their original characters.
func marshalMessage(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
