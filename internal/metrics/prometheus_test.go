package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, e *Exporter) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	e.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusOK)
	}
	return rr.Body.String()
}

func TestExporter_ExposesEventCounters(t *testing.T) {
	m := New()
	m.Inc(SessionCreated)
	m.Add(RelayForwarded, 2)
	m.Inc(`quote"back\slash`)

	body := scrape(t, NewExporter(m))

	if !strings.Contains(body, "# TYPE p2p_signaling_events_total counter") {
		t.Fatalf("missing TYPE header: %s", body)
	}
	if !strings.Contains(body, `p2p_signaling_events_total{event="relay_forwarded"} 2`) {
		t.Fatalf("missing relay_forwarded counter: %s", body)
	}
	if !strings.Contains(body, `p2p_signaling_events_total{event="session_created"} 1`) {
		t.Fatalf("missing session_created counter: %s", body)
	}
	if !strings.Contains(body, `p2p_signaling_events_total{event="quote\"back\\slash"} 1`) {
		t.Fatalf("missing escaped counter: %s", body)
	}
}

func TestExporter_CountersAreLive(t *testing.T) {
	m := New()
	e := NewExporter(m)
	m.Inc(ParseError)
	if body := scrape(t, e); !strings.Contains(body, `p2p_signaling_events_total{event="parse_error"} 1`) {
		t.Fatalf("first scrape: %s", body)
	}
	m.Inc(ParseError)
	if body := scrape(t, e); !strings.Contains(body, `p2p_signaling_events_total{event="parse_error"} 2`) {
		t.Fatalf("second scrape: %s", body)
	}
}

func TestExporter_GaugeFuncReadsAtScrape(t *testing.T) {
	e := NewExporter(New())
	active := 3
	e.RegisterGauge("active_clients", "Registered clients.", func() float64 { return float64(active) })

	if body := scrape(t, e); !strings.Contains(body, "p2p_signaling_active_clients 3") {
		t.Fatalf("missing gauge: %s", body)
	}
	active = 1
	if body := scrape(t, e); !strings.Contains(body, "p2p_signaling_active_clients 1") {
		t.Fatalf("gauge not refreshed: %s", body)
	}
}

func TestExporter_HTTPRequestMetrics(t *testing.T) {
	e := NewExporter(New())
	e.ObserveHTTPRequest(http.MethodGet, "GET /healthz", http.StatusOK, 5*time.Millisecond)

	body := scrape(t, e)
	if !strings.Contains(body, `p2p_signaling_http_requests_total{method="GET",route="GET /healthz",status="200"} 1`) {
		t.Fatalf("missing request counter: %s", body)
	}
	if !strings.Contains(body, "p2p_signaling_http_request_duration_seconds_count") {
		t.Fatalf("missing duration histogram: %s", body)
	}
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.Inc("x")
	if got := m.Get("x"); got != 0 {
		t.Fatalf("Get=%d, want 0", got)
	}
	if snap := m.Snapshot(); len(snap) != 0 {
		t.Fatalf("Snapshot=%v, want empty", snap)
	}
}

func TestMetrics_SnapshotIsCopy(t *testing.T) {
	m := New()
	m.Inc("a")
	snap := m.Snapshot()
	snap["a"] = 100
	if got := m.Get("a"); got != 1 {
		t.Fatalf("Get=%d, want 1", got)
	}
}
