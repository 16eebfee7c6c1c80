// Package session implements the two session identifier spaces the proxy
// issues: legacy SSE session IDs (spec.md §3, §4.3) and Streamable HTTP
// Mcp-Session-Id values (spec.md §6.3), plus the legacy session map.
package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// LegacyIDPattern is the allowed shape of a proxy-issued legacy session ID
// (spec.md §3): 8-128 characters of [A-Za-z0-9_-].
var LegacyIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)

// legacyIDAlphabet is URL-safe and a strict subset of LegacyIDPattern.
const legacyIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// legacyIDLength is chosen well inside the 8-128 bound so generated IDs
// are always valid without a post-hoc length check.
const legacyIDLength = 32

// NewLegacyID mints a cryptographically random legacy session ID matching
// LegacyIDPattern.
func NewLegacyID() (string, error) {
	buf := make([]byte, legacyIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("session: generate legacy id: %w", err)
	}
	out := make([]byte, legacyIDLength)
	for i, b := range buf {
		out[i] = legacyIDAlphabet[int(b)%len(legacyIDAlphabet)]
	}
	return string(out), nil
}

// ErrInvalidLegacyID is returned when a client-supplied legacy session ID
// does not match LegacyIDPattern.
var ErrInvalidLegacyID = errors.New("session: invalid legacy session id")

// ValidateLegacyID checks id against LegacyIDPattern.
func ValidateLegacyID(id string) error {
	if !LegacyIDPattern.MatchString(id) {
		return ErrInvalidLegacyID
	}
	return nil
}

// ErrInvalidStreamableID is returned when a client-supplied Mcp-Session-Id
// is not a well-formed UUIDv4.
var ErrInvalidStreamableID = errors.New("session: invalid streamable session id")

// NewStreamableID mints a UUIDv4 for use as Mcp-Session-Id.
func NewStreamableID() string {
	return uuid.New().String()
}

// ValidateStreamableID checks id is a well-formed UUIDv4.
func ValidateStreamableID(id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.Version() != 4 {
		return ErrInvalidStreamableID
	}
	return nil
}
