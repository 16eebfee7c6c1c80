package http

import (
	"fmt"

	"github.com/mcprelay/mcprelay/internal/domain/audit"
	"github.com/mcprelay/mcprelay/internal/domain/destination"
	"github.com/mcprelay/mcprelay/internal/proto"
	"github.com/mcprelay/mcprelay/internal/scanner"
)

// applyScan runs the configured scanner hook over body and returns the
// body to actually use going forward (unchanged, or the redacted
// replacement), whether the caller must stop and return blockedResponse
// instead, and the detection fields to fold into the audit record
// (spec.md §4.7).
func (s *Server) applyScan(dest destination.Destination, isRequest bool, env proto.Envelope, body []byte) (effectiveBody []byte, blocked bool, blockedResponse []byte, detection audit.Record) {
	if s.scanner == nil {
		return body, false, nil, audit.Record{}
	}

	result := s.scanner.Scan(dest.Scan, isRequest, body)
	detection = audit.Record{
		DetectionAction: string(result.Action),
		DetectionEngine: result.Engine,
		DetectionDetail: result.Detail,
	}

	switch result.Action {
	case scanner.ActionBlock:
		code := -32603
		if isRequest {
			code = -32600
		}
		return body, true, synthesizeRPCError(env.ID, code, "content blocked by scanner"), detection
	case scanner.ActionRedact:
		return []byte(result.Body), false, nil, detection
	default:
		return body, false, nil, detection
	}
}

// synthesizeRPCError builds the JSON-RPC error response a blocked request
// or response is replaced with, preserving the client's original id.
func synthesizeRPCError(id []byte, code int, message string) []byte {
	idLiteral := "null"
	if len(id) > 0 {
		idLiteral = string(id)
	}
	return []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"error":{"code":%d,"message":%q}}`, idLiteral, code, message))
}
