package signaling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/demendet/Stunserver/internal/origin"
)

func newTestWSServer(t *testing.T, cfg WebSocketConfig) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(Config{SessionSweepInterval: -1})
	srv := NewWebSocketServer(hub, cfg)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return hub, ts
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func dialWS(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(wsURL(ts, path), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func readWS(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Fatalf("msgType=%d, want text", msgType)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return m
}

func writeWS(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	if err := c.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestWebSocketSignaling_PairAndRelay(t *testing.T) {
	_, ts := newTestWSServer(t, WebSocketConfig{})

	host := dialWS(t, ts, "/")
	guest := dialWS(t, ts, "/any/path")

	hostID := readWS(t, host)["clientId"]
	guestID := readWS(t, guest)["clientId"]

	writeWS(t, host, map[string]any{"type": "create-session"})
	created := readWS(t, host)
	if created["type"] != "session-created" {
		t.Fatalf("got %v, want session-created", created)
	}

	writeWS(t, guest, map[string]any{"type": "join-session", "sessionCode": created["sessionCode"]})
	if joined := readWS(t, guest); joined["type"] != "session-joined" || joined["hostId"] != hostID {
		t.Fatalf("got %v", joined)
	}
	if notice := readWS(t, host); notice["type"] != "client-joined" || notice["clientId"] != guestID {
		t.Fatalf("got %v", notice)
	}

	writeWS(t, guest, map[string]any{"type": "ice-candidate", "candidate": "c"})
	if cand := readWS(t, host); cand["type"] != "ice-candidate" || cand["from"] != guestID {
		t.Fatalf("got %v", cand)
	}

	_ = guest.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if gone := readWS(t, host); gone["type"] != "peer-disconnected" || gone["clientId"] != guestID {
		t.Fatalf("got %v", gone)
	}
}

func TestWebSocketSignaling_BinaryFrameIgnored(t *testing.T) {
	hub, ts := newTestWSServer(t, WebSocketConfig{})
	c := dialWS(t, ts, "/")
	readWS(t, c)

	if err := c.WriteMessage(websocket.BinaryMessage, []byte(`{"type":"create-session"}`)); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	writeWS(t, c, map[string]any{"type": "create-session"})
	if msg := readWS(t, c); msg["type"] != "session-created" {
		t.Fatalf("got %v", msg)
	}
	if got := hub.Stats().Sessions; got != 1 {
		t.Fatalf("sessions=%d, want 1", got)
	}
}

func TestWebSocketSignaling_OversizedMessageCloses(t *testing.T) {
	_, ts := newTestWSServer(t, WebSocketConfig{MaxMessageBytes: 64})
	c := dialWS(t, ts, "/")
	readWS(t, c)

	writeWS(t, c, map[string]any{"type": "webrtc-offer", "sdp": strings.Repeat("x", 256)})
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := c.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseMessageTooBig) {
		t.Fatalf("err=%v, want close %d", err, websocket.CloseMessageTooBig)
	}
}

func TestWebSocketSignaling_InvalidUTF8TextCloses(t *testing.T) {
	hub, ts := newTestWSServer(t, WebSocketConfig{})
	c := dialWS(t, ts, "/")
	readWS(t, c)

	if err := c.WriteMessage(websocket.TextMessage, []byte("{\"type\":\"webrtc-offer\",\"sdp\":\"\xff\xfe\"}")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := c.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseInvalidFramePayloadData) {
		t.Fatalf("err=%v, want close %d", err, websocket.CloseInvalidFramePayloadData)
	}
	waitFor(t, "client removal", func() bool { return hub.Stats().Clients == 0 })
}

func TestWebSocketSignaling_SilentPeerStaysConnectedByDefault(t *testing.T) {
	hub, ts := newTestWSServer(t, WebSocketConfig{})
	c := dialWS(t, ts, "/")
	readWS(t, c)

	time.Sleep(300 * time.Millisecond)
	if got := hub.Stats().Clients; got != 1 {
		t.Fatalf("clients=%d, want 1", got)
	}
	writeWS(t, c, map[string]any{"type": "create-session"})
	if msg := readWS(t, c); msg["type"] != "session-created" {
		t.Fatalf("got %v", msg)
	}
}

func TestWebSocketSignaling_IdleTimeoutClosesWithoutPong(t *testing.T) {
	idleTimeout := 500 * time.Millisecond
	pingInterval := 50 * time.Millisecond

	hub, ts := newTestWSServer(t, WebSocketConfig{
		PingInterval: pingInterval,
		IdleTimeout:  idleTimeout,
	})
	c := dialWS(t, ts, "/")

	pingSeen := make(chan struct{}, 1)
	c.SetPingHandler(func(string) error {
		select {
		case pingSeen <- struct{}{}:
		default:
		}
		// Intentionally do not respond with pong.
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				errCh <- err
				return
			}
		}
	}()

	select {
	case <-pingSeen:
	case err := <-errCh:
		t.Fatalf("connection closed before receiving ping: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for server ping")
	}

	select {
	case err := <-errCh:
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Fatalf("expected close normal closure, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for server to close idle websocket")
	}
	waitFor(t, "client removal", func() bool { return hub.Stats().Clients == 0 })
}

func TestWebSocketSignaling_PongKeepsConnectionOpenBeyondIdleTimeout(t *testing.T) {
	idleTimeout := 500 * time.Millisecond
	pingInterval := 50 * time.Millisecond

	hub, ts := newTestWSServer(t, WebSocketConfig{
		PingInterval: pingInterval,
		IdleTimeout:  idleTimeout,
	})
	c := dialWS(t, ts, "/")

	pingSeen := make(chan struct{}, 1)
	c.SetPingHandler(func(appData string) error {
		select {
		case pingSeen <- struct{}{}:
		default:
		}
		return c.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(1*time.Second))
	})

	errCh := make(chan error, 1)
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				errCh <- err
				return
			}
		}
	}()

	select {
	case <-pingSeen:
	case err := <-errCh:
		t.Fatalf("connection closed before receiving ping: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for server ping")
	}

	time.Sleep(idleTimeout + 2*pingInterval)

	select {
	case err := <-errCh:
		t.Fatalf("unexpected close before idle timeout elapsed: %v", err)
	default:
	}
	if got := hub.Stats().Clients; got != 1 {
		t.Fatalf("clients=%d, want 1", got)
	}

	_ = c.Close()
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for read goroutine to exit")
	}
}

func TestWebSocketServer_Stats(t *testing.T) {
	_, ts := newTestWSServer(t, WebSocketConfig{})
	c := dialWS(t, ts, "/")
	readWS(t, c)
	writeWS(t, c, map[string]any{"type": "create-session"})
	readWS(t, c)

	resp, err := http.Get(ts.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d, want 200", resp.StatusCode)
	}
	var stats Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Clients != 1 || stats.Sessions != 1 {
		t.Fatalf("stats=%+v, want 1/1", stats)
	}
}

func TestWebSocketServer_PlainHTTPRejected(t *testing.T) {
	_, ts := newTestWSServer(t, WebSocketConfig{})
	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestWebSocketServer_AnyOriginByDefault(t *testing.T) {
	_, ts := newTestWSServer(t, WebSocketConfig{})

	header := http.Header{"Origin": []string{"https://anywhere.example.com"}}
	c, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/"), header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	if msg := readWS(t, c); msg["type"] != "connected" {
		t.Fatalf("got %v, want connected", msg)
	}
}

func TestWebSocketServer_RejectsDisallowedOrigin(t *testing.T) {
	allow, err := origin.NewAllowList([]string{"https://app.example.com"})
	if err != nil {
		t.Fatalf("NewAllowList: %v", err)
	}
	hub, ts := newTestWSServer(t, WebSocketConfig{AllowedOrigins: allow})

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/"), header)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("resp=%v, want 403", resp)
	}
	if got := hub.Stats().Clients; got != 0 {
		t.Fatalf("clients=%d, want 0", got)
	}

	header.Set("Origin", "https://app.example.com")
	c, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/"), header)
	if err != nil {
		t.Fatalf("dial allowed origin: %v", err)
	}
	defer c.Close()
	if msg := readWS(t, c); msg["type"] != "connected" {
		t.Fatalf("got %v, want connected", msg)
	}
}
