// Package scanner implements the optional, pluggable inspector from
// spec.md §4.7: a per-destination, per-direction hook that can monitor,
// redact, or block request/response bodies before they reach the client
// or upstream. Engines are regex (always available) and CEL (a second,
// structural engine over decoded JSON-RPC params); the AI engine named in
// spec.md §6.5 is out of scope and always resolves to a pass-through.
package scanner

import (
	"github.com/mcprelay/mcprelay/internal/domain/destination"
)

// Action is the outcome a scan produces for a single body.
type Action string

const (
	ActionPass    Action = "pass"
	ActionMonitor Action = "monitor"
	ActionRedact  Action = "redact"
	ActionBlock   Action = "block"
)

// Result is what a single engine invocation returns. Body is only set
// when Action is ActionRedact, and holds the redacted replacement text.
type Result struct {
	Action Action
	Engine string
	Detail string
	Body   string
}

// passResult is the zero-cost answer for a disabled mode or an engine that
// found nothing to act on.
var passResult = Result{Action: ActionPass}

// Scanner inspects a single body (request or response) for a destination
// and direction, and returns the action to take.
type Scanner interface {
	Scan(settings destination.ScanSettings, isRequest bool, body []byte) Result
}
