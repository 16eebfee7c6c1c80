// Package audit contains the domain model for the proxy's structured audit
// log (spec.md §4.2, §6.4): one record per request, with size-bounded body
// capture and a sink interface implementations append to.
package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Body represents one of a record's optional body fields, which spec.md
// §4.2 requires to be distinguishable in three states: entirely absent
// from the JSON object (capture disabled or the body was truncated), a
// JSON null (capture enabled but the body failed UTF-8 decoding or, for
// requests, failed to parse as JSON), or present with the captured text.
// A plain *string cannot express "absent" and "null" as distinct outcomes
// under encoding/json's omitempty, so Body carries its own tri-state and
// Record marshals it explicitly. The zero value is AbsentBody, so a
// Record built without touching RequestBody/ResponseBody at all omits
// both fields rather than emitting them as null.
type Body struct {
	present bool
	null    bool
	text    string
}

// AbsentBody is the zero value: the field is omitted entirely.
var AbsentBody = Body{}

// NullBody renders as a JSON null while keeping the key present.
func NullBody() Body { return Body{present: true, null: true} }

// PresentBody renders as the given text.
func PresentBody(text string) Body { return Body{present: true, text: text} }

// Record is a single auditable proxy request, matching the exact field
// names spec.md §6.4 requires in the newline-delimited log.
type Record struct {
	Timestamp time.Time
	User      string
	SourceIP  string

	Destination string
	// MCPMethod is empty when the request body's method field was
	// missing/invalid; it renders as JSON null in that case (spec.md §4.4).
	MCPMethod string
	// RPCID is the raw JSON id value ("7", "\"init\"", or nil for a
	// missing/invalid id, which renders as JSON null).
	RPCID json.RawMessage

	StatusCode int
	LatencyMs  int64

	Error string

	RequestBody  Body
	ResponseBody Body
	Truncated    bool
	DecodeError  bool

	StderrLine string

	DetectionAction string
	DetectionEngine string
	DetectionDetail string
}

// MarshalJSON renders a Record with the exact optional-field semantics
// spec.md §4.2/§6.4 describe: Body fields are omitted, null, or a string
// depending on state; every other optional field uses ",omitempty"-style
// zero-value omission.
func (r Record) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"timestamp":   r.Timestamp.UTC().Format(time.RFC3339Nano),
		"user":        r.User,
		"source_ip":   r.SourceIP,
		"destination": r.Destination,
		"status_code": r.StatusCode,
		"latency_ms":  r.LatencyMs,
	}
	if r.MCPMethod == "" {
		out["mcp_method"] = nil
	} else {
		out["mcp_method"] = r.MCPMethod
	}
	if r.RPCID == nil {
		out["rpc_id"] = nil
	} else {
		out["rpc_id"] = r.RPCID
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	if r.RequestBody.present {
		if r.RequestBody.null {
			out["request_body"] = nil
		} else {
			out["request_body"] = r.RequestBody.text
		}
	}
	if r.ResponseBody.present {
		if r.ResponseBody.null {
			out["response_body"] = nil
		} else {
			out["response_body"] = r.ResponseBody.text
		}
	}
	if r.Truncated {
		out["truncated"] = true
	}
	if r.DecodeError {
		out["decode_error"] = true
	}
	if r.StderrLine != "" {
		out["stderr_line"] = r.StderrLine
	}
	if r.DetectionAction != "" {
		out["detection_action"] = r.DetectionAction
	}
	if r.DetectionEngine != "" {
		out["detection_engine"] = r.DetectionEngine
	}
	if r.DetectionDetail != "" {
		out["detection_detail"] = r.DetectionDetail
	}
	return json.Marshal(out)
}

// Sink is the write side of the audit log: append one record per request.
// Implementations must never let a failure here affect request handling
// (spec.md §4.2); they downgrade write errors to an internal warning log.
type Sink interface {
	Log(ctx context.Context, rec Record)
	Close() error
}
