package signaling

import (
	"time"

	"github.com/demendet/Stunserver/internal/metrics"
	"github.com/demendet/Stunserver/internal/session"
)

func (h *Hub) runReaper(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.SweepSessions(h.now())
		case <-h.quit:
			return
		}
	}
}

// SweepSessions deletes the sessions sweepable at now and returns their
// codes.
func (h *Hub) SweepSessions(now time.Time) []string {
	var evicted []string
	h.do(func() {
		evicted = h.sessions.Sweep(func(s session.Session) bool {
			return sweepable(s, now, h.sessionMaxAge)
		})
	})
	for _, code := range evicted {
		h.metrics.Inc(metrics.SessionSwept)
		h.log.Info("swept session", "session_code", code)
	}
	return evicted
}

// sweepable reports whether the periodic sweep removes s: only sessions that
// are empty and younger than maxAge qualify. Non-empty sessions are never
// swept, whatever their age.
func sweepable(s session.Session, now time.Time, maxAge time.Duration) bool {
	return len(s.Members) == 0 && now.Sub(s.CreatedAt) < maxAge
}
