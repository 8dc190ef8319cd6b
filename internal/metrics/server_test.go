package metrics

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// Default-registry metrics can only be registered once per process.
var (
	defaultIngestOnce sync.Once
	defaultIngest     *IngestMetrics
)

func defaultIngestMetrics() *IngestMetrics {
	defaultIngestOnce.Do(func() { defaultIngest = NewIngestMetrics() })
	return defaultIngest
}

func startServer(t *testing.T, s *Server) {
	t.Helper()
	if err := s.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	t.Cleanup(func() { s.Close() })
}

func get(t *testing.T, s *Server, path string) (int, string, http.Header) {
	t.Helper()
	resp, err := http.Get("http://" + s.Addr() + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return resp.StatusCode, string(body), resp.Header
}

func TestServerAddrBeforeAndAfterStart(t *testing.T) {
	s := NewServer("127.0.0.1:0")
	if s.Addr() != "127.0.0.1:0" {
		t.Errorf("Addr() before start = %q", s.Addr())
	}
	startServer(t, s)
	if s.Addr() == "127.0.0.1:0" || !strings.HasPrefix(s.Addr(), "127.0.0.1:") {
		t.Errorf("Addr() after start = %q", s.Addr())
	}
}

func TestServerExposesDefaultRegistry(t *testing.T) {
	m := defaultIngestMetrics()
	m.RecordFile("ADD", 0.005, true)
	m.RecordFile("APPEND", 0.050, false)

	s := NewServer("127.0.0.1:0")
	startServer(t, s)

	code, body, header := get(t, s, "/metrics")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if ct := header.Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	for _, want := range []string{
		"gridlake_ingest_file_latency_seconds",
		"gridlake_ingest_files_total",
		`status="success"`,
		`status="failure"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output lacks %s", want)
		}
	}
}

func TestServerWithPrivateRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewQueryMetricsWithRegistry(reg)
	m.RecordQuery("duckdb", 0.002, OutcomeSuccess)
	m.RecordQuery("duckdb", 0.008, OutcomeTimeout)

	s := NewServerWithRegistry("127.0.0.1:0", reg)
	startServer(t, s)

	_, body, _ := get(t, s, "/metrics")
	if !strings.Contains(body, "gridlake_query_latency_seconds") || !strings.Contains(body, `outcome="timeout"`) {
		t.Errorf("unexpected metrics output:\n%s", body)
	}
	if strings.Contains(body, "gridlake_ingest_files_total") {
		t.Error("private registry leaked default-registry metrics")
	}
}

func TestServerHealth(t *testing.T) {
	s := NewServerWithRegistry("127.0.0.1:0", prometheus.NewRegistry())
	startServer(t, s)

	if code, body, _ := get(t, s, "/healthz"); code != http.StatusOK || body != "ok\n" {
		t.Errorf("healthz without check = %d %q", code, body)
	}

	var failing error
	s.SetHealthCheck(func() error { return failing })
	if code, _, _ := get(t, s, "/healthz"); code != http.StatusOK {
		t.Errorf("healthz with passing check = %d", code)
	}

	failing = errors.New("orphan sweep incomplete: metadata unavailable")
	code, body, _ := get(t, s, "/healthz")
	if code != http.StatusServiceUnavailable {
		t.Errorf("healthz with failing check = %d", code)
	}
	if !strings.Contains(body, "metadata unavailable") {
		t.Errorf("healthz body = %q", body)
	}
}

func TestServerClose(t *testing.T) {
	s := NewServerWithRegistry("127.0.0.1:0", prometheus.NewRegistry())
	if err := s.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	addr := s.Addr()
	if err := s.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if _, err := http.Get("http://" + addr + "/metrics"); err == nil {
		t.Error("expected the listener to be closed")
	}
}

func TestServerCloseWithoutStart(t *testing.T) {
	if err := NewServer(":0").Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestServerStartBadAddress(t *testing.T) {
	if err := NewServer("not-an-address").Start(); err == nil {
		t.Error("expected a listen error")
	}
}
