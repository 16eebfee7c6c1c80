package stdio

import (
	"fmt"

	"github.com/mcprelay/mcprelay/internal/domain/audit"
	"github.com/mcprelay/mcprelay/internal/domain/destination"
	"github.com/mcprelay/mcprelay/internal/scanner"
)

// applyScan runs the configured scanner hook over body and returns the
// body to actually use going forward (unchanged, or the redacted
// replacement), whether the caller must stop and return blockedResponse
// instead, and the detection fields to fold into the audit record
// (spec.md §4.7), mirroring the HTTP inbound adapter's applyScan so all
// three transports share identical scan semantics.
func applyScan(scanMgr *scanner.Manager, dest destination.Destination, isRequest bool, id []byte, body []byte) (effectiveBody []byte, blocked bool, blockedResponse []byte, detection audit.Record) {
	if scanMgr == nil {
		return body, false, nil, audit.Record{}
	}

	result := scanMgr.Scan(dest.Scan, isRequest, body)
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
		return body, true, synthesizeRPCError(id, code, "content blocked by scanner"), detection
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
