// Package http provides the inbound HTTP transport adapter: the legacy
// MCP-over-SSE handler, the Streamable HTTP handler, and the shared SSE
// copy loop both forward through.
package http

import (
	"net/http"
	"strings"
)

// hopByHopRequestHeaders are stripped from the client's headers before
// forwarding upstream (spec.md §4.3).
var hopByHopRequestHeaders = []string{
	"Host", "Content-Length", "Transfer-Encoding", "Connection", "Keep-Alive",
}

// hopByHopResponseHeaders are stripped from the upstream's response before
// returning it to the client (spec.md §4.3, §4.5).
var hopByHopResponseHeaders = []string{
	"Transfer-Encoding", "Connection", "Keep-Alive",
	"Set-Cookie", "Www-Authenticate", "Proxy-Authenticate",
	"Content-Length",
}

// filterRequestHeaders copies src into a fresh http.Header with hop-by-hop
// headers and any client-supplied X-Forwarded-* headers removed.
func filterRequestHeaders(src http.Header) http.Header {
	out := make(http.Header, len(src))
	for k, v := range src {
		if isHopByHop(k, hopByHopRequestHeaders) || strings.HasPrefix(strings.ToLower(k), "x-forwarded-") {
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	return out
}

// filterResponseHeaders copies src into dst, the client's ResponseWriter
// header set, stripping headers the proxy must not pass through verbatim.
func filterResponseHeaders(dst http.Header, src http.Header) {
	for k, v := range src {
		if isHopByHop(k, hopByHopResponseHeaders) {
			continue
		}
		for _, vv := range v {
			dst.Add(k, vv)
		}
	}
}

func isHopByHop(name string, list []string) bool {
	for _, h := range list {
		if strings.EqualFold(name, h) {
			return true
		}
	}
	return false
}
