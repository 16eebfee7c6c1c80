package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mcprelay/mcprelay/internal/domain/audit"
	"github.com/mcprelay/mcprelay/internal/domain/destination"
	"github.com/mcprelay/mcprelay/internal/domain/session"
)

type fakeSink struct {
	records []audit.Record
}

func (f *fakeSink) Log(_ context.Context, rec audit.Record) { f.records = append(f.records, rec) }
func (f *fakeSink) Close() error                             { return nil }

// passthroughUpstream forwards requests to an httptest.Server's client,
// standing in for mcpupstream.Client in handler tests.
type passthroughUpstream struct {
	client *http.Client
}

func (u *passthroughUpstream) Do(req *http.Request) (*http.Response, error) {
	c := u.client
	if c == nil {
		c = http.DefaultClient
	}
	return c.Do(req)
}

func newTestRegistry(t *testing.T, d destination.Destination) *destination.Registry {
	t.Helper()
	reg, err := destination.NewRegistry([]destination.Destination{d})
	if err != nil {
		t.Fatalf("NewRegistry() error: %v", err)
	}
	return reg
}

func TestHealthEndpoint(t *testing.T) {
	s := NewServer(Config{Registry: newTestRegistry(t, destination.Destination{
		Name: "a", Kind: destination.KindStreamableHTTP, UpstreamURL: "http://example.invalid",
	})})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

type stubPatternReloader struct {
	reloaded bool
	err      error
}

func (p *stubPatternReloader) Reload() error {
	p.reloaded = true
	return p.err
}

func TestAdminRouterReloadsPatterns(t *testing.T) {
	patterns := &stubPatternReloader{}
	s := NewServer(Config{
		Registry: newTestRegistry(t, destination.Destination{
			Name: "a", Kind: destination.KindStreamableHTTP, UpstreamURL: "http://example.invalid",
		}),
		Patterns: patterns,
	})
	req := httptest.NewRequest(http.MethodPost, "/admin/reload-patterns", nil)
	rec := httptest.NewRecorder()
	s.AdminRouter().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if !patterns.reloaded {
		t.Error("expected Reload to be called")
	}
}

func TestAdminRouteNotMountedOnPublicRouter(t *testing.T) {
	s := NewServer(Config{
		Registry: newTestRegistry(t, destination.Destination{
			Name: "a", Kind: destination.KindStreamableHTTP, UpstreamURL: "http://example.invalid",
		}),
		Patterns: &stubPatternReloader{},
	})
	req := httptest.NewRequest(http.MethodPost, "/admin/reload-patterns", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code == http.StatusNoContent {
		t.Error("admin endpoint should not be reachable from the public router")
	}
}

func TestUnknownDestinationReturns404(t *testing.T) {
	s := NewServer(Config{Registry: newTestRegistry(t, destination.Destination{
		Name: "a", Kind: destination.KindStreamableHTTP, UpstreamURL: "http://example.invalid",
	})})
	req := httptest.NewRequest(http.MethodPost, "/unknown/mcp", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestStreamableHTTPDestinationRejectsLegacySSE(t *testing.T) {
	s := NewServer(Config{Registry: newTestRegistry(t, destination.Destination{
		Name: "a", Kind: destination.KindStreamableHTTP, UpstreamURL: "http://example.invalid",
	})})
	req := httptest.NewRequest(http.MethodGet, "/a/sse", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStdioDestinationLegacyEndpointsReturnGone(t *testing.T) {
	s := NewServer(Config{Registry: newTestRegistry(t, destination.Destination{
		Name: "a", Kind: destination.KindStdio, Command: "/bin/true",
	})})
	for _, p := range []string{"/a/sse", "/a/message"} {
		req := httptest.NewRequest(http.MethodGet, p, nil)
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusGone {
			t.Errorf("%s: status = %d, want 410", p, rec.Code)
		}
	}
}

func TestStreamablePostJSONRoundTrip(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"ping"`) {
			t.Errorf("upstream did not receive forwarded body: %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"pong"}`))
	}))
	defer upstream.Close()

	sink := &fakeSink{}
	s := NewServer(Config{
		Registry: newTestRegistry(t, destination.Destination{
			Name: "a", Kind: destination.KindStreamableHTTP, UpstreamURL: upstream.URL,
			Limits: destination.Limits{MaxConnPerDestination: 2, MaxBodyBytes: 32768},
		}),
		Sink:           sink,
		Upstream:       &passthroughUpstream{},
		AuditLogBodies: true,
	})

	req := httptest.NewRequest(http.MethodPost, "/a/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "pong") {
		t.Errorf("body = %s, want pong", rec.Body.String())
	}
	if len(sink.records) != 1 {
		t.Fatalf("records = %d, want 1", len(sink.records))
	}
	if sink.records[0].MCPMethod != "ping" {
		t.Errorf("MCPMethod = %q, want ping", sink.records[0].MCPMethod)
	}
}

func TestStreamableConcurrencyCapReturns503(t *testing.T) {
	block := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()
	defer close(block)

	s := NewServer(Config{
		Registry: newTestRegistry(t, destination.Destination{
			Name: "a", Kind: destination.KindStreamableHTTP, UpstreamURL: upstream.URL,
			Limits: destination.Limits{MaxConnPerDestination: 1, MaxBodyBytes: 32768},
		}),
		Upstream: &passthroughUpstream{},
	})

	done := make(chan struct{})
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/a/mcp", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)
		close(done)
	}()

	// Give the first request time to acquire the slot.
	time.Sleep(50 * time.Millisecond)

	req := httptest.NewRequest(http.MethodPost, "/a/mcp", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	<-done
}

func TestLegacyMessageUnknownSessionReturns404(t *testing.T) {
	s := NewServer(Config{
		Registry: newTestRegistry(t, destination.Destination{
			Name: "a", Kind: destination.KindSSE, UpstreamURL: "http://example.invalid",
		}),
		Sessions: session.NewMap(100),
	})
	req := httptest.NewRequest(http.MethodPost, "/a/message?session_id=AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestLegacyMessageInvalidSessionIDReturns400(t *testing.T) {
	s := NewServer(Config{
		Registry: newTestRegistry(t, destination.Destination{
			Name: "a", Kind: destination.KindSSE, UpstreamURL: "http://example.invalid",
		}),
		Sessions: session.NewMap(100),
	})
	req := httptest.NewRequest(http.MethodPost, "/a/message?session_id=short", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
