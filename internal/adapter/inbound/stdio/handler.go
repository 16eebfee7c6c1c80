package stdio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mcprelay/mcprelay/internal/domain/audit"
	"github.com/mcprelay/mcprelay/internal/domain/destination"
	"github.com/mcprelay/mcprelay/internal/domain/session"
	"github.com/mcprelay/mcprelay/internal/proto"
	"github.com/mcprelay/mcprelay/internal/scanner"
)

const defaultRPCResponseTimeout = 30 * time.Second

// Manager owns one Bridge per stdio destination, spawned eagerly at
// startup, and implements the http.StdioDispatcher interface the
// Streamable HTTP router dispatches stdio destinations to. It shares the
// audit sink and scanner hook with the other two transports (spec.md §2
// item 6), since a request routed to a stdio destination is otherwise
// indistinguishable from one routed anywhere else.
type Manager struct {
	logger  *slog.Logger
	bridges map[string]*Bridge

	sink           audit.Sink
	scanner        *scanner.Manager
	auditLogBodies bool
}

// NewManager spawns a Bridge for every stdio destination in dests.
func NewManager(dests []destination.Destination, logger *slog.Logger, sink audit.Sink, scanMgr *scanner.Manager, auditLogBodies bool) *Manager {
	m := &Manager{
		logger:         logger,
		bridges:        make(map[string]*Bridge),
		sink:           sink,
		scanner:        scanMgr,
		auditLogBodies: auditLogBodies,
	}
	for _, d := range dests {
		if d.Kind != destination.KindStdio {
			continue
		}
		m.bridges[d.Name] = NewBridge(d, logger, sink)
	}
	return m
}

// Shutdown tears down every bridge, waiting up to ctx's deadline for each.
func (m *Manager) Shutdown(ctx context.Context) error {
	var firstErr error
	for _, b := range m.bridges {
		if err := b.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ServeMCP implements http.StdioDispatcher for POST/GET/DELETE /{dest}/mcp
// on stdio destinations (spec.md §4.6).
func (m *Manager) ServeMCP(w http.ResponseWriter, r *http.Request, dest destination.Destination) {
	b, ok := m.bridges[dest.Name]
	if !ok {
		http.Error(w, "stdio bridge not configured", http.StatusInternalServerError)
		return
	}
	if b.Unavailable() {
		http.Error(w, "stdio bridge unavailable", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodPost:
		m.servePost(w, r, dest, b)
	case http.MethodGet:
		m.serveGet(w, r, dest, b)
	case http.MethodDelete:
		m.serveDelete(w, r, dest, b)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (m *Manager) servePost(w http.ResponseWriter, r *http.Request, dest destination.Destination, b *Bridge) {
	start := time.Now()
	sessionID := r.Header.Get("Mcp-Session-Id")

	if sessionID == "" {
		newID := session.NewStreamableID()
		if !b.NewSession(newID) {
			http.Error(w, "too many concurrent sessions", http.StatusServiceUnavailable)
			return
		}
		sessionID = newID
	} else {
		if err := session.ValidateStreamableID(sessionID); err != nil {
			http.Error(w, "invalid session id", http.StatusBadRequest)
			return
		}
		if !b.HasSession(sessionID) {
			http.NotFound(w, r)
			return
		}
	}

	body, err := readAll(r)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if looksLikeBatch(body) {
		http.Error(w, "batch requests are not supported", http.StatusBadRequest)
		return
	}

	env := proto.Parse(body)
	body, blocked, blockedResp, reqDetection := applyScan(m.scanner, dest, true, env.ID, body)
	if blocked {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Mcp-Session-Id", sessionID)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(blockedResp)
		rec := m.auditRecordForRequest(start, dest, env, http.StatusOK, body)
		m.logRecord(r.Context(), mergeDetection(rec, reqDetection))
		return
	}

	if env.IsNotification() {
		if err := b.Notify(body); err != nil {
			http.Error(w, "stdio bridge unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		rec := m.auditRecordForRequest(start, dest, env, http.StatusAccepted, body)
		m.logRecord(r.Context(), mergeDetection(rec, reqDetection))
		return
	}

	timeout := dest.Limits.RPCResponseTimeout
	if timeout <= 0 {
		timeout = defaultRPCResponseTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	respRaw, err := b.Call(ctx, body, env.ID)
	if err != nil {
		if ctx.Err() != nil && r.Context().Err() == nil {
			http.Error(w, "upstream request timed out", http.StatusGatewayTimeout)
		} else if r.Context().Err() != nil {
			// client disconnected; pendingTable.wait already deregistered the call.
			return
		} else {
			http.Error(w, "stdio bridge unavailable", http.StatusServiceUnavailable)
		}
		return
	}

	respRaw, respBlocked, respBlockedResp, respDetection := applyScan(m.scanner, dest, false, env.ID, respRaw)
	if respBlocked {
		respRaw = respBlockedResp
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Mcp-Session-Id", sessionID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(respRaw)

	rec := m.auditRecordForExchange(start, dest, env, http.StatusOK, body, respRaw)
	rec = mergeDetection(rec, reqDetection)
	rec = mergeDetection(rec, respDetection)
	m.logRecord(r.Context(), rec)

	m.logger.Info("stdio: request completed", "destination", dest.Name, "method", env.Method, "latency_ms", time.Since(start).Milliseconds())
}

func (m *Manager) serveGet(w http.ResponseWriter, r *http.Request, dest destination.Destination, b *Bridge) {
	start := time.Now()
	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		http.Error(w, "Mcp-Session-Id header required", http.StatusBadRequest)
		return
	}
	if err := session.ValidateStreamableID(sessionID); err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}
	if !b.HasSession(sessionID) {
		http.NotFound(w, r)
		return
	}

	q, err := b.OpenNotificationStream(sessionID)
	if err != nil {
		http.Error(w, "stdio bridge unavailable", http.StatusServiceUnavailable)
		return
	}
	defer b.CloseNotificationStream(sessionID, q)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	ctx := r.Context()
	for {
		line, ok := q.dequeue(ctx)
		if !ok {
			break
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
			break
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	m.logRecord(r.Context(), audit.Record{
		Timestamp:   start,
		Destination: dest.Name,
		StatusCode:  http.StatusOK,
		LatencyMs:   time.Since(start).Milliseconds(),
	})
}

func (m *Manager) serveDelete(w http.ResponseWriter, r *http.Request, dest destination.Destination, b *Bridge) {
	start := time.Now()
	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		http.Error(w, "Mcp-Session-Id header required", http.StatusBadRequest)
		return
	}
	if err := session.ValidateStreamableID(sessionID); err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}
	if !b.DeleteSession(sessionID) {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)

	m.logRecord(r.Context(), audit.Record{
		Timestamp:   start,
		Destination: dest.Name,
		StatusCode:  http.StatusNoContent,
		LatencyMs:   time.Since(start).Milliseconds(),
	})
}

func (m *Manager) logRecord(ctx context.Context, rec audit.Record) {
	if m.sink == nil {
		return
	}
	m.sink.Log(ctx, rec)
}

// auditRecordForRequest builds a record for a stdio request that never
// produced a capturable upstream response (blocked, or a notification
// that expects none).
func (m *Manager) auditRecordForRequest(start time.Time, dest destination.Destination, env proto.Envelope, status int, body []byte) audit.Record {
	policy := audit.BodyPolicy{Enabled: m.auditLogBodies, MaxBodyBytes: dest.Limits.MaxBodyBytes}
	reqBody, truncated, decodeErr := policy.ApplyBody(body, true)
	return audit.Record{
		Timestamp:   start,
		Destination: dest.Name,
		MCPMethod:   env.Method,
		RPCID:       env.ID,
		StatusCode:  status,
		LatencyMs:   time.Since(start).Milliseconds(),
		RequestBody: reqBody,
		Truncated:   truncated,
		DecodeError: decodeErr,
	}
}

// auditRecordForExchange is auditRecordForRequest plus the subprocess's
// response body, captured under the same policy (spec.md §4.2, §6.4).
func (m *Manager) auditRecordForExchange(start time.Time, dest destination.Destination, env proto.Envelope, status int, body, respRaw []byte) audit.Record {
	policy := audit.BodyPolicy{Enabled: m.auditLogBodies, MaxBodyBytes: dest.Limits.MaxBodyBytes}
	reqBody, reqTruncated, reqDecodeErr := policy.ApplyBody(body, true)
	respBody, respTruncated, respDecodeErr := policy.ApplyBody(respRaw, false)
	return audit.Record{
		Timestamp:    start,
		Destination:  dest.Name,
		MCPMethod:    env.Method,
		RPCID:        env.ID,
		StatusCode:   status,
		LatencyMs:    time.Since(start).Milliseconds(),
		RequestBody:  reqBody,
		ResponseBody: respBody,
		Truncated:    reqTruncated || respTruncated,
		DecodeError:  reqDecodeErr || respDecodeErr,
	}
}

func readAll(r *http.Request) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func looksLikeBatch(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '['
}
