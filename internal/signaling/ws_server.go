package signaling

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/demendet/Stunserver/internal/origin"
)

const (
	wsWriteWait = 10 * time.Second

	DefaultMaxMessageBytes = int64(1 << 20)
)

type WebSocketConfig struct {
	Logger *slog.Logger

	// MaxMessageBytes bounds one inbound frame; zero selects
	// DefaultMaxMessageBytes.
	MaxMessageBytes int64

	// PingInterval and IdleTimeout enable keepalive when both are positive:
	// the server pings every PingInterval and closes a connection that sends
	// nothing, pongs included, for IdleTimeout.
	PingInterval time.Duration
	IdleTimeout  time.Duration

	// AllowedOrigins gates the upgrade on the browser Origin header. The zero
	// value accepts any origin.
	AllowedOrigins origin.AllowList
}

// WebSocketServer accepts signaling clients over WebSocket and serves them
// on a Hub.
type WebSocketServer struct {
	hub      *Hub
	log      *slog.Logger
	cfg      WebSocketConfig
	upgrader websocket.Upgrader
}

func NewWebSocketServer(hub *Hub, cfg WebSocketConfig) *WebSocketServer {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = DefaultMaxMessageBytes
	}
	s := &WebSocketServer{
		hub: hub,
		log: log,
		cfg: cfg,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	o := r.Header.Get("Origin")
	if s.cfg.AllowedOrigins.Allow(o) {
		return true
	}
	s.log.Warn("websocket origin rejected", "origin", o, "remote_addr", r.RemoteAddr)
	return false
}

// RegisterRoutes mounts the WebSocket endpoint on every GET path not claimed
// by a more specific pattern, plus GET /stats.
func (s *WebSocketServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.Handle("GET /", s)
}

func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "err", err)
		return
	}
	s.hub.Serve(r.Context(), newWSTransport(conn, s.cfg))
}

func (s *WebSocketServer) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(s.hub.Stats())
}

// wsTransport adapts a gorilla connection to Transport. Ping and pong frames
// are handled here and never reach the hub.
type wsTransport struct {
	conn *websocket.Conn

	pingInterval time.Duration
	idleTimeout  time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

func newWSTransport(conn *websocket.Conn, cfg WebSocketConfig) *wsTransport {
	t := &wsTransport{
		conn:   conn,
		closed: make(chan struct{}),
	}
	conn.SetReadLimit(cfg.MaxMessageBytes)
	if cfg.PingInterval > 0 && cfg.IdleTimeout > 0 {
		t.pingInterval = cfg.PingInterval
		t.idleTimeout = cfg.IdleTimeout
		_ = conn.SetReadDeadline(time.Now().Add(t.idleTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(t.idleTimeout))
		})
		go t.pingLoop()
	}
	return t
}

func (t *wsTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

func (t *wsTransport) Recv() (FrameKind, []byte, error) {
	msgType, data, err := t.conn.ReadMessage()
	if err != nil {
		if isTimeout(err) {
			t.writeClose(websocket.CloseNormalClosure, "idle timeout")
		}
		return 0, nil, err
	}
	if t.idleTimeout > 0 {
		_ = t.conn.SetReadDeadline(time.Now().Add(t.idleTimeout))
	}
	if msgType == websocket.BinaryMessage {
		return FrameBinary, data, nil
	}
	if !utf8.Valid(data) {
		t.writeClose(websocket.CloseInvalidFramePayloadData, "invalid utf-8")
		return 0, nil, errInvalidUTF8
	}
	return FrameText, data, nil
}

// Send is only called from the client's delivery goroutine, which satisfies
// gorilla's single-writer rule for data frames.
func (t *wsTransport) Send(payload []byte) error {
	_ = t.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.conn.Close()
	})
	return err
}

func (t *wsTransport) pingLoop() {
	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-t.closed:
			return
		}
	}
}

func (t *wsTransport) writeClose(code int, reason string) {
	_ = t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

var errInvalidUTF8 = errors.New("text frame is not valid utf-8")

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
