package signaling

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/demendet/Stunserver/internal/metrics"
	"github.com/demendet/Stunserver/internal/session"
)

const (
	DefaultSessionSweepInterval = 30 * time.Minute
	DefaultSessionMaxAge        = 30 * time.Minute
)

type Config struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// OutboundQueueLimit caps queued outbound messages per client; 0 means
	// unbounded.
	OutboundQueueLimit int

	// SessionSweepInterval is the reaper period. Negative disables the
	// reaper; zero selects DefaultSessionSweepInterval.
	SessionSweepInterval time.Duration
	SessionMaxAge        time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// Hub owns the client and session registries and the per-connection
// delivery loops.
type Hub struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	newCode func() (string, error)

	outboundQueueLimit int
	sessionMaxAge      time.Duration

	clients  *session.Clients
	sessions *session.Sessions

	cmds chan func()
	quit chan struct{}
	done chan struct{}

	connsMu sync.Mutex
	conns   map[Transport]struct{}
	closing bool
	serving sync.WaitGroup
	reaper  sync.WaitGroup

	closeOnce sync.Once
}

// NewHub starts the hub loop and, unless disabled, the session reaper. Call
// Close to stop both.
func NewHub(cfg Config) *Hub {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	maxAge := cfg.SessionMaxAge
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}
	sweepInterval := cfg.SessionSweepInterval
	if sweepInterval == 0 {
		sweepInterval = DefaultSessionSweepInterval
	}

	h := &Hub{
		log:                log,
		metrics:            cfg.Metrics,
		now:                now,
		newCode:            session.NewCode,
		outboundQueueLimit: cfg.OutboundQueueLimit,
		sessionMaxAge:      maxAge,
		clients:            session.NewClients(),
		sessions:           session.NewSessions(),
		cmds:               make(chan func()),
		quit:               make(chan struct{}),
		done:               make(chan struct{}),
		conns:              make(map[Transport]struct{}),
	}

	go h.loop()
	if sweepInterval > 0 {
		h.reaper.Add(1)
		go func() {
			defer h.reaper.Done()
			h.runReaper(sweepInterval)
		}()
	}
	return h
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case fn := <-h.cmds:
			fn()
		case <-h.quit:
			return
		}
	}
}

// do runs fn on the hub goroutine and waits for it to return. It reports
// false if the hub has stopped. fn must not block and must not call do.
func (h *Hub) do(fn func()) bool {
	ran := make(chan struct{})
	select {
	case h.cmds <- func() {
		defer close(ran)
		fn()
	}:
	case <-h.quit:
		return false
	}
	<-ran
	return true
}

// Stats is a point-in-time view of the registries.
type Stats struct {
	Clients  int `json:"clients"`
	Sessions int `json:"sessions"`
}

func (h *Hub) Stats() Stats {
	return Stats{
		Clients:  h.clients.Len(),
		Sessions: h.sessions.Len(),
	}
}

// Serve runs one client connection until t fails, ctx is done, or the hub
// closes. The client's first frame is always a connected message carrying
// its id. Serve closes t before returning.
func (h *Hub) Serve(ctx context.Context, t Transport) {
	if !h.track(t) {
		_ = t.Close()
		return
	}
	defer h.untrack(t)

	id := session.NewClientID()
	q := newSendQueue(h.outboundQueueLimit)
	registered := false
	h.do(func() {
		if !h.clients.Register(id, q) {
			return
		}
		registered = true
		h.send(id, newConnectedMessage(id))
	})
	if !registered {
		q.Close()
		_ = t.Close()
		return
	}

	log := h.log.With("client_id", id)
	if ra, ok := t.(interface{ RemoteAddr() net.Addr }); ok {
		log = log.With("remote_addr", ra.RemoteAddr().String())
	}
	h.metrics.Inc(metrics.ClientConnected)
	log.Info("client connected")

	stop := context.AfterFunc(ctx, func() { _ = t.Close() })
	defer stop()

	delivered := make(chan struct{})
	go func() {
		defer close(delivered)
		h.deliver(id, q, t, log)
	}()

	h.readLoop(id, t, log)
	h.disconnect(id)
	_ = t.Close()
	<-delivered
}

func (h *Hub) readLoop(id string, t Transport, log *slog.Logger) {
	for {
		kind, data, err := t.Recv()
		if err != nil {
			log.Debug("connection closed", "err", err)
			return
		}
		if kind != FrameText {
			h.metrics.Inc(metrics.BinaryFrameIgnored)
			log.Debug("ignoring non-text frame", "kind", kind.String(), "bytes", len(data))
			continue
		}

		msg, err := parseInboundMessage(data)
		if err != nil {
			h.metrics.Inc(metrics.ParseError)
			log.Warn("dropping malformed message", "err", err)
			continue
		}
		h.do(func() { h.dispatch(id, msg) })
	}
}

// deliver drains q onto t in FIFO order. A write failure tears the client
// down.
func (h *Hub) deliver(id string, q *sendQueue, t Transport, log *slog.Logger) {
	for {
		payload, ok := q.Dequeue()
		if !ok {
			return
		}
		if err := t.Send(payload); err != nil {
			h.metrics.Inc(metrics.TransportWriteError)
			log.Warn("write failed; disconnecting client", "err", err, "undelivered", q.Len())
			h.disconnect(id)
			_ = t.Close()
			return
		}
	}
}

// send enqueues msg for clientID. Unknown ids are skipped.
func (h *Hub) send(clientID string, msg any) {
	client, ok := h.clients.Lookup(clientID)
	if !ok {
		return
	}
	payload, err := marshalMessage(msg)
	if err != nil {
		h.log.Error("failed to encode message", "client_id", clientID, "err", err)
		return
	}
	if !client.Outbox.Enqueue(payload) {
		h.metrics.Inc(metrics.OutboundDropped)
		h.log.Warn("outbound queue full; dropping message", "client_id", clientID)
	}
}

func (h *Hub) disconnect(id string) {
	h.do(func() { h.removeClient(id) })
}

// removeClient tears down id: it leaves its session, notifies whoever is
// left, and deletes the session once empty. Only the first call for an id
// does anything.
func (h *Hub) removeClient(id string) {
	client, ok := h.clients.Remove(id)
	if !ok {
		return
	}
	client.Outbox.Close()
	h.metrics.Inc(metrics.ClientDisconnected)

	if code := client.SessionCode; code != "" {
		if sess, ok := h.sessions.RemoveMember(code, id); ok {
			for _, member := range sess.Members {
				h.send(member, newPeerDisconnectedMessage(id))
			}
			if len(sess.Members) == 0 {
				h.sessions.Delete(code)
				h.metrics.Inc(metrics.SessionDeleted)
				h.log.Info("session deleted", "session_code", code)
			}
		}
	}
	h.log.Info("client disconnected", "client_id", id)
}

func (h *Hub) track(t Transport) bool {
	h.connsMu.Lock()
	defer h.connsMu.Unlock()
	if h.closing {
		return false
	}
	h.conns[t] = struct{}{}
	h.serving.Add(1)
	return true
}

func (h *Hub) untrack(t Transport) {
	h.connsMu.Lock()
	delete(h.conns, t)
	h.connsMu.Unlock()
	h.serving.Done()
}

// Close disconnects every client, waits for their Serve calls to return, and
// stops the hub loop and reaper. New connections are refused from the start
// of Close.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.connsMu.Lock()
		h.closing = true
		conns := make([]Transport, 0, len(h.conns))
		for t := range h.conns {
			conns = append(conns, t)
		}
		h.connsMu.Unlock()

		for _, t := range conns {
			_ = t.Close()
		}
		h.serving.Wait()

		close(h.quit)
		<-h.done
		h.reaper.Wait()
	})
}
