package destination

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"unicode"
)

// ErrEmptyCommand is returned when a stdio destination's command string
// tokenizes to nothing.
var ErrEmptyCommand = errors.New("destination: empty command")

// shellMetacharacters are rejected in any token of a stdio command. The
// command is tokenized without invoking a shell (spec.md §4.1), so these
// characters can never take on shell meaning — their presence signals a
// config mistake (or an injection attempt) rather than a legitimate argument.
const shellMetacharacters = ";|&$><`\n"

// ParseCommand tokenizes a stdio destination's command line using POSIX
// shell word-splitting rules (quoting and backslash escapes, but no
// globbing, substitution, or redirection) without ever invoking a shell.
// It rejects any token containing a shell metacharacter and requires the
// first token to resolve on PATH.
func ParseCommand(line string) (path string, args []string, err error) {
	tokens, err := tokenize(line)
	if err != nil {
		return "", nil, err
	}
	if len(tokens) == 0 {
		return "", nil, ErrEmptyCommand
	}

	for _, tok := range tokens {
		if strings.ContainsAny(tok, shellMetacharacters) {
			return "", nil, fmt.Errorf("destination: command token %q contains a shell metacharacter", tok)
		}
	}

	resolved, err := exec.LookPath(tokens[0])
	if err != nil {
		return "", nil, fmt.Errorf("destination: command %q not found on PATH: %w", tokens[0], err)
	}

	return resolved, tokens[1:], nil
}

// tokenize splits line into words using POSIX-ish quoting rules: single
// quotes preserve everything literally, double quotes allow backslash
// escapes of \, $, ", and newline, and unquoted backslashes escape the
// next character. No shell is invoked and no special characters (other
// than quotes/backslash) are interpreted here.
func tokenize(line string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inToken := false

	runes := []rune(line)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			if inToken {
				tokens = append(tokens, cur.String())
				cur.Reset()
				inToken = false
			}
			i++
		case r == '\'':
			inToken = true
			i++
			for i < len(runes) && runes[i] != '\'' {
				cur.WriteRune(runes[i])
				i++
			}
			if i >= len(runes) {
				return nil, errors.New("destination: unterminated single quote")
			}
			i++ // skip closing quote
		case r == '"':
			inToken = true
			i++
			for i < len(runes) && runes[i] != '"' {
				if runes[i] == '\\' && i+1 < len(runes) && strings.ContainsRune(`\"$`+"\n", runes[i+1]) {
					cur.WriteRune(runes[i+1])
					i += 2
					continue
				}
				cur.WriteRune(runes[i])
				i++
			}
			if i >= len(runes) {
				return nil, errors.New("destination: unterminated double quote")
			}
			i++ // skip closing quote
		case r == '\\':
			inToken = true
			if i+1 < len(runes) {
				cur.WriteRune(runes[i+1])
				i += 2
			} else {
				return nil, errors.New("destination: trailing backslash")
			}
		default:
			inToken = true
			cur.WriteRune(r)
			i++
		}
	}
	if inToken {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}
