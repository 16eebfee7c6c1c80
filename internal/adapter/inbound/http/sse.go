package http

import (
	"bufio"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mcprelay/mcprelay/internal/domain/session"
	"github.com/mcprelay/mcprelay/internal/proto"
)

// endpointRewriter is invoked once per "event: endpoint" frame observed by
// copySSE, with the frame's data: value. It returns the replacement data:
// value to forward, or an error to abort the stream (spec.md §4.3).
type endpointRewriter func(dataURL string) (rewritten string, err error)

// copySSE reads newline-delimited SSE frames from upstream and writes
// them to w, applying the field-validation rule from spec.md §4.3/§4.5:
// every non-empty line must start with data:, event:, id:, retry:, or :;
// anything else is silently dropped. Empty lines pass through verbatim.
// When onEndpoint is non-nil, an "event: endpoint" frame's following
// data: line is rewritten via onEndpoint before being forwarded.
func copySSE(w http.ResponseWriter, scanner *bufio.Scanner, onEndpoint endpointRewriter) error {
	flusher, _ := w.(http.Flusher)
	pendingEndpointEvent := false

	for scanner.Scan() {
		line := scanner.Bytes()

		if len(line) == 0 {
			if _, err := w.Write([]byte("\n")); err != nil {
				return err
			}
			if flusher != nil {
				flusher.Flush()
			}
			continue
		}

		if !proto.IsValidSSELine(line) {
			continue
		}

		field, value := proto.SSEFieldName(line)
		if field == "event" && string(value) == "endpoint" {
			pendingEndpointEvent = true
			if _, err := fmt.Fprintf(w, "%s\n", line); err != nil {
				return err
			}
			continue
		}

		if pendingEndpointEvent && field == "data" && onEndpoint != nil {
			pendingEndpointEvent = false
			rewritten, err := onEndpoint(string(value))
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "data: %s\n", rewritten); err != nil {
				return err
			}
			if flusher != nil {
				flusher.Flush()
			}
			continue
		}

		if field != "event" {
			pendingEndpointEvent = false
		}
		if _, err := fmt.Fprintf(w, "%s\n", line); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	return scanner.Err()
}

// resolveEndpointURL validates an endpoint event's data: payload against
// the destination's upstream origin (spec.md §3 invariant) and returns the
// absolute URL the legacy message handler should later forward to.
func resolveEndpointURL(upstreamBase, dataURL string) (string, error) {
	base, err := url.Parse(upstreamBase)
	if err != nil {
		return "", fmt.Errorf("sse: parse upstream base: %w", err)
	}
	u, err := url.Parse(dataURL)
	if err != nil {
		return "", fmt.Errorf("sse: parse endpoint url: %w", err)
	}
	if u.IsAbs() {
		if u.Scheme != base.Scheme || u.Host != base.Host {
			return "", session.ErrCrossOrigin
		}
		return u.String(), nil
	}
	return base.ResolveReference(u).String(), nil
}
