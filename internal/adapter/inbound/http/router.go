package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/mcprelay/mcprelay/internal/domain/audit"
	"github.com/mcprelay/mcprelay/internal/domain/destination"
	"github.com/mcprelay/mcprelay/internal/domain/session"
	"github.com/mcprelay/mcprelay/internal/scanner"
)

// Upstream is the subset of mcpupstream.Client the handlers depend on,
// letting tests substitute a fake without importing the real transport.
type Upstream interface {
	Do(req *http.Request) (*http.Response, error)
}

// PatternReloader reloads the scanner's regex pattern set on demand, for
// the loopback-only /admin/reload-patterns endpoint.
type PatternReloader interface {
	Reload() error
}

// Scanner is the content-inspection hook from spec.md §4.7.
type Scanner interface {
	Scan(settings destination.ScanSettings, isRequest bool, body []byte) scanner.Result
}

// Server holds every dependency the HTTP inbound handlers need and
// implements http.Handler via its Router.
type Server struct {
	registry       *destination.Registry
	sessions       *session.Map
	sink           audit.Sink
	upstream       Upstream
	stdio          StdioDispatcher
	patterns       PatternReloader
	scanner        Scanner
	logger         *slog.Logger
	metrics        *Metrics
	auditLogBodies bool

	semaphores semaphores
}

// Config carries Server's dependencies from Core assembly.
type Config struct {
	Registry       *destination.Registry
	Sessions       *session.Map
	Sink           audit.Sink
	Upstream       Upstream
	Stdio          StdioDispatcher
	Patterns       PatternReloader
	Scanner        Scanner
	Logger         *slog.Logger
	Metrics        *Metrics
	AuditLogBodies bool
}

// NewServer builds a Server from cfg.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		registry:       cfg.Registry,
		sessions:       cfg.Sessions,
		sink:           cfg.Sink,
		upstream:       cfg.Upstream,
		stdio:          cfg.Stdio,
		patterns:       cfg.Patterns,
		scanner:        cfg.Scanner,
		logger:         logger,
		metrics:        cfg.Metrics,
		auditLogBodies: cfg.AuditLogBodies,
	}
}

// Router builds the top-level mux: per-destination transport routes plus
// /health and /metrics. The admin surface is not mounted here; Core
// serves it from a separate loopback-only listener via AdminRouter.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	mux.HandleFunc("/", s.handleDestinationRoute)

	var h http.Handler = mux
	h = RequestIDMiddleware(s.logger)(h)
	if s.metrics != nil {
		h = MetricsMiddleware(s.metrics)(h)
	}
	return h
}

// AdminRouter builds the mux Core binds to a loopback-only listener:
// just /admin/reload-patterns, kept off the public router entirely so
// no network-reachable client can trigger a pattern reload.
func (s *Server) AdminRouter() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/reload-patterns", s.handleReloadPatterns)
	return RequestIDMiddleware(s.logger)(mux)
}

// handleDestinationRoute resolves /{dest}/{sse|message|mcp} and dispatches
// to the matching legacy or Streamable HTTP handler.
func (s *Server) handleDestinationRoute(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	destName, suffix := parts[0], parts[1]

	dest, err := s.registry.Lookup(destName)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	switch suffix {
	case "sse":
		if dest.Kind == destination.KindStdio {
			writeGone(w)
			return
		}
		if dest.Kind != destination.KindSSE {
			http.Error(w, "destination does not support legacy SSE", http.StatusBadRequest)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleLegacySSE(w, r, dest)
	case "message":
		if dest.Kind == destination.KindStdio {
			writeGone(w)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleLegacyMessage(w, r, dest)
	case "mcp":
		s.handleStreamable(w, r, dest)
	default:
		http.NotFound(w, r)
	}
}

// writeGone implements the 410 response legacy endpoints return on stdio
// destinations (spec.md §4.6).
func writeGone(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusGone)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": "this destination only supports the Streamable HTTP transport; use /mcp",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// handleReloadPatterns implements the admin surface from spec.md §12,
// which Core binds to a loopback-only listener. No rate limiting is
// applied here; Core's separate listener address is the access control.
func (s *Server) handleReloadPatterns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.patterns == nil {
		http.Error(w, "pattern reload unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := s.patterns.Reload(); err != nil {
		http.Error(w, "reload failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// semaphores is the per-destination concurrency cap on Streamable HTTP
// connections (spec.md §4.5). Channels are created lazily and sized on
// first use per destination, keyed by name.
type semaphores struct {
	mu     sync.Mutex
	byDest map[string]chan struct{}
}

func (s *semaphores) tryAcquire(dest string, limit int) (release func(), ok bool) {
	s.mu.Lock()
	if s.byDest == nil {
		s.byDest = make(map[string]chan struct{})
	}
	ch, exists := s.byDest[dest]
	if !exists {
		if limit <= 0 {
			limit = destination.DefaultLimits.MaxConnPerDestination
		}
		ch = make(chan struct{}, limit)
		s.byDest[dest] = ch
	}
	s.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, true
	default:
		return nil, false
	}
}
