// Package stdio implements the subprocess bridge from spec.md §4.6: one
// long-lived bridge per stdio destination, shared across every Streamable
// HTTP session for that destination, translating HTTP request/response
// pairs into newline-delimited JSON written to and read from a child
// process's stdin/stdout.
package stdio

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/mcprelay/mcprelay/internal/proto"
)

// ErrBridgeUnavailable is returned when a bridge has exhausted its restart
// budget and is permanently down (spec.md §4.6 supervisor).
var ErrBridgeUnavailable = errors.New("stdio: bridge unavailable")

// pendingCall tracks one in-flight request awaiting a stdout response,
// keyed by the bridge-wide internal id written in place of the client's id.
type pendingCall struct {
	originalID json.RawMessage
	result     chan []byte
}

// pendingTable is the PendingCall registry from spec.md §4.6: requests are
// registered under a monotone internal id before being written to stdin,
// and resolved by the stdout dispatcher when a matching id comes back.
type pendingTable struct {
	mu     sync.Mutex
	byID   map[int64]*pendingCall
	nextID int64
}

func newPendingTable() *pendingTable {
	return &pendingTable{byID: make(map[int64]*pendingCall)}
}

// register allocates a fresh internal id and a pendingCall keyed under it.
func (t *pendingTable) register(originalID json.RawMessage) (int64, *pendingCall) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	call := &pendingCall{originalID: originalID, result: make(chan []byte, 1)}
	t.byID[id] = call
	return id, call
}

// resolve delivers raw to the pendingCall registered under id, if any, and
// removes it from the table. It reports whether a call was found.
func (t *pendingTable) resolve(id int64, raw []byte) bool {
	t.mu.Lock()
	call, ok := t.byID[id]
	if ok {
		delete(t.byID, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	rewritten, err := proto.RestoreID(raw, call.originalID)
	if err != nil {
		rewritten = raw
	}
	call.result <- rewritten
	return true
}

// deregister removes a pendingCall without resolving it, used when the
// caller's context is cancelled before a response arrives.
func (t *pendingTable) deregister(id int64) {
	t.mu.Lock()
	delete(t.byID, id)
	t.mu.Unlock()
}

// failAll resolves every outstanding call with a synthesized error body
// carrying that call's own original id, used on unexpected subprocess
// exit (spec.md §4.6 supervisor).
func (t *pendingTable) failAll(buildError func(originalID json.RawMessage) []byte) {
	t.mu.Lock()
	calls := make([]*pendingCall, 0, len(t.byID))
	for id, call := range t.byID {
		calls = append(calls, call)
		delete(t.byID, id)
	}
	t.mu.Unlock()
	for _, call := range calls {
		call.result <- buildError(call.originalID)
	}
}

// wait blocks until call resolves or ctx is cancelled, deregistering id on
// cancellation so the stdout dispatcher never resolves a call nobody is
// waiting for anymore.
func (t *pendingTable) wait(ctx context.Context, id int64, call *pendingCall) ([]byte, error) {
	select {
	case raw := <-call.result:
		return raw, nil
	case <-ctx.Done():
		t.deregister(id)
		return nil, ctx.Err()
	}
}
