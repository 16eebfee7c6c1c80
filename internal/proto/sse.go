package proto

import "bytes"

// sseFieldPrefixes are the only line prefixes the SSE grammar in spec.md
// §4.3/§6.3 allows to pass through: data:, event:, id:, retry:, or a
// comment (":"). Every other non-empty line is silently dropped.
var sseFieldPrefixes = [][]byte{
	[]byte("data:"),
	[]byte("event:"),
	[]byte("id:"),
	[]byte("retry:"),
	[]byte(":"),
}

// IsValidSSELine reports whether line (without its trailing newline) is
// either empty (an event terminator, forwarded verbatim) or begins with
// one of the allowed SSE field prefixes.
func IsValidSSELine(line []byte) bool {
	if len(line) == 0 {
		return true
	}
	for _, prefix := range sseFieldPrefixes {
		if bytes.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// SSEFieldName returns the field name of a non-empty SSE line ("data",
// "event", "id", "retry", or "" for a comment line) and its value with the
// single leading space after the colon stripped, matching the SSE spec's
// convention that "field: value" and "field:value" are equivalent.
func SSEFieldName(line []byte) (field string, value []byte) {
	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return string(line), nil
	}
	field = string(line[:idx])
	value = line[idx+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return field, value
}
