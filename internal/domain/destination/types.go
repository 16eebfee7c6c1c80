// Package destination contains the domain model for proxied MCP destinations:
// the immutable registry, per-destination transport kind, limits, and the
// stdio command parsing/validation rules from the config loader boundary.
package destination

import (
	"errors"
	"regexp"
	"time"
)

// Kind identifies the upstream transport a destination speaks.
type Kind string

const (
	// KindSSE is the legacy MCP-over-SSE transport.
	KindSSE Kind = "sse"
	// KindStreamableHTTP is the modern single-endpoint Streamable HTTP transport.
	KindStreamableHTTP Kind = "streamable_http"
	// KindStdio is a locally spawned subprocess bridged onto Streamable HTTP.
	KindStdio Kind = "stdio"
)

// NamePattern is the allowed shape of a destination name used in URL paths.
var NamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ErrNotFound is returned by Registry.Lookup for an unknown destination name.
var ErrNotFound = errors.New("destination: not found")

// Limits bounds resource usage for a single destination.
type Limits struct {
	// MaxConnPerDestination caps concurrent stdio/streamable sessions. Default 10.
	MaxConnPerDestination int
	// MaxBodyBytes caps audit body capture size. Default 32768.
	MaxBodyBytes int
	// RPCResponseTimeout bounds how long a stdio POST waits for a reply. Default 30s.
	RPCResponseTimeout time.Duration
}

// ScanSettings carries the optional per-destination, per-direction scanner
// configuration from spec.md §4.7. Engines are resolved by internal/scanner.
type ScanSettings struct {
	RegexMode  ScanMode
	AIMode     ScanMode
	AIThreshold float64
	AIMaxChars  int
}

// ScanMode is one of off/monitor/redact/block.
type ScanMode string

const (
	ScanOff     ScanMode = "off"
	ScanMonitor ScanMode = "monitor"
	ScanRedact  ScanMode = "redact"
	ScanBlock   ScanMode = "block"
)

// Destination is an immutable record describing one proxied upstream.
type Destination struct {
	// Name is the URL-path-safe identifier, matching NamePattern.
	Name string
	Kind Kind

	// UpstreamURL is set for KindSSE and KindStreamableHTTP.
	UpstreamURL string

	// Command and Args are set for KindStdio, parsed without a shell.
	Command string
	Args    []string
	// Env is the allowlisted + per-destination secret environment for the
	// spawned subprocess (KindStdio only).
	Env map[string]string

	Limits Limits
	Scan   ScanSettings
}
