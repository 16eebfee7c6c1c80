package http

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mcprelay/mcprelay/internal/adapter/outbound/mcpupstream"
	"github.com/mcprelay/mcprelay/internal/domain/audit"
	"github.com/mcprelay/mcprelay/internal/domain/destination"
	"github.com/mcprelay/mcprelay/internal/domain/session"
	"github.com/mcprelay/mcprelay/internal/proto"
)

// handleLegacySSE implements GET /{dest}/sse (spec.md §4.3).
func (s *Server) handleLegacySSE(w http.ResponseWriter, r *http.Request, dest destination.Destination) {
	logger := LoggerFromContext(r.Context())
	start := time.Now()

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, dest.UpstreamURL, nil)
	if err != nil {
		s.writeStaticError(w, http.StatusBadGateway, "upstream connect failed")
		return
	}
	req.Header = filterRequestHeaders(r.Header)

	resp, err := s.upstream.Do(req)
	if err != nil {
		logger.Warn("legacy sse: upstream connect failed", "destination", dest.Name, "error", err)
		s.writeStaticError(w, http.StatusBadGateway, "upstream connect failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		logger.Warn("legacy sse: upstream returned error status", "destination", dest.Name, "status", resp.StatusCode)
		s.writeStaticError(w, http.StatusBadGateway, "upstream connect failed")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	filterResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	var sessionID string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	err = copySSE(w, scanner, func(dataURL string) (string, error) {
		resolved, rerr := resolveEndpointURL(dest.UpstreamURL, dataURL)
		if rerr != nil {
			return "", rerr
		}
		entry, perr := s.sessions.Put(dest.Name, dest.UpstreamURL, resolved)
		if perr != nil {
			return "", perr
		}
		sessionID = entry.ID
		return fmt.Sprintf("/%s/message?session_id=%s", dest.Name, entry.ID), nil
	})
	if err != nil {
		logger.Warn("legacy sse: stream aborted", "destination", dest.Name, "error", err)
	}

	if sessionID != "" {
		s.sessions.Delete(sessionID)
	}

	s.logRecord(r.Context(), audit.Record{
		Timestamp:   start,
		Destination: dest.Name,
		StatusCode:  http.StatusOK,
		LatencyMs:   time.Since(start).Milliseconds(),
	})
}

// handleLegacyMessage implements POST /{dest}/message (spec.md §4.4).
func (s *Server) handleLegacyMessage(w http.ResponseWriter, r *http.Request, dest destination.Destination) {
	logger := LoggerFromContext(r.Context())
	start := time.Now()

	sessionID := r.URL.Query().Get("session_id")
	if err := session.ValidateLegacyID(sessionID); err != nil {
		http.Error(w, "invalid session_id", http.StatusBadRequest)
		return
	}
	entry, err := s.sessions.Get(sessionID)
	if err != nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	// The full body is always forwarded; only audit capture is capped
	// (spec.md §4.4 — bytes over MaxBodyBytes are still forwarded).
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	env := proto.Parse(body)
	bodyPolicy := audit.BodyPolicy{Enabled: s.auditLogBodies, MaxBodyBytes: dest.Limits.MaxBodyBytes}

	body, blocked, blockedResp, reqDetection := s.applyScan(dest, true, env, body)
	if blocked {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(blockedResp)
		s.logRecord(r.Context(), mergeDetection(audit.Record{
			Timestamp: start, Destination: dest.Name, MCPMethod: env.Method, RPCID: env.ID,
			StatusCode: http.StatusOK, LatencyMs: time.Since(start).Milliseconds(),
		}, reqDetection))
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, entry.UpstreamMessageURL, bytes.NewReader(body))
	if err != nil {
		s.writeStaticError(w, http.StatusBadGateway, "upstream connect failed")
		return
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	req.Header = filterRequestHeaders(r.Header)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.upstream.Do(req)
	if err != nil {
		logger.Warn("legacy message: upstream connect failed", "destination", dest.Name, "error", err)
		s.writeStaticError(w, http.StatusBadGateway, "upstream connect failed")
		return
	}
	defer resp.Body.Close()

	respBody, err := mcpupstream.ReadBody(resp.Body, maxUpstreamResponseBytes)
	if err != nil {
		logger.Warn("legacy message: read upstream response failed", "destination", dest.Name, "error", err)
		s.writeStaticError(w, http.StatusBadGateway, "upstream read failed")
		return
	}

	status := resp.StatusCode
	respBody, respBlocked, respBlockedResp, respDetection := s.applyScan(dest, false, env, respBody)
	if respBlocked {
		respBody = respBlockedResp
		status = http.StatusOK
	}

	filterResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(status)
	_, _ = w.Write(respBody)

	reqBody, reqTruncated, reqDecodeErr := bodyPolicy.ApplyBody(body, true)
	respBodyField, respTruncated, respDecodeErr := bodyPolicy.ApplyBody(respBody, false)
	rec := audit.Record{
		Timestamp:    start,
		Destination:  dest.Name,
		MCPMethod:    env.Method,
		RPCID:        env.ID,
		StatusCode:   status,
		LatencyMs:    time.Since(start).Milliseconds(),
		RequestBody:  reqBody,
		ResponseBody: respBodyField,
		Truncated:    reqTruncated || respTruncated,
		DecodeError:  reqDecodeErr || respDecodeErr,
	}
	rec = mergeDetection(rec, reqDetection)
	rec = mergeDetection(rec, respDetection)
	s.logRecord(r.Context(), rec)
}

// mergeDetection folds a scanner detection's fields into rec, preferring
// whichever direction actually produced a non-pass action (at most one
// direction blocks or redacts per request in practice).
func mergeDetection(rec, detection audit.Record) audit.Record {
	if detection.DetectionAction == "" || detection.DetectionAction == "pass" {
		return rec
	}
	rec.DetectionAction = detection.DetectionAction
	rec.DetectionEngine = detection.DetectionEngine
	rec.DetectionDetail = detection.DetectionDetail
	return rec
}

func (s *Server) writeStaticError(w http.ResponseWriter, status int, msg string) {
	http.Error(w, msg, status)
}

func (s *Server) logRecord(ctx context.Context, rec audit.Record) {
	if s.sink == nil {
		return
	}
	s.sink.Log(ctx, rec)
}

// maxUpstreamResponseBytes caps how much of a buffered (non-streaming)
// upstream response the proxy reads into memory.
const maxUpstreamResponseBytes = 10 << 20
