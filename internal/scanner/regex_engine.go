package scanner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mcprelay/mcprelay/internal/domain/destination"
)

// RegexEngine detects prompt-injection style content by matching compiled
// patterns against every string leaf of a decoded JSON body, falling back
// to matching the raw bytes when the body isn't valid JSON.
type RegexEngine struct {
	patterns *PatternWatcher
}

// NewRegexEngine wraps an already-running PatternWatcher.
func NewRegexEngine(patterns *PatternWatcher) *RegexEngine {
	return &RegexEngine{patterns: patterns}
}

// finding is an internal match record before it's folded into a Result.
type finding struct {
	name     string
	category string
	matched  string
}

func (e *RegexEngine) findAll(content string) []finding {
	if content == "" {
		return nil
	}
	set := e.patterns.Current()
	var out []finding
	for _, rule := range set.rules {
		locs := rule.re.FindAllStringIndex(content, -1)
		for _, loc := range locs {
			matched := content[loc[0]:loc[1]]
			if len(matched) > 100 {
				matched = matched[:100]
			}
			out = append(out, finding{name: rule.name, category: rule.category, matched: matched})
		}
	}
	return out
}

func (e *RegexEngine) findInJSON(v interface{}) []finding {
	var out []finding
	switch val := v.(type) {
	case string:
		out = append(out, e.findAll(val)...)
	case map[string]interface{}:
		for _, mv := range val {
			out = append(out, e.findInJSON(mv)...)
		}
	case []interface{}:
		for _, item := range val {
			out = append(out, e.findInJSON(item)...)
		}
	}
	return out
}

// Scan implements Scanner.
func (e *RegexEngine) Scan(settings destination.ScanSettings, _ bool, body []byte) Result {
	if settings.RegexMode == "" || settings.RegexMode == destination.ScanOff {
		return passResult
	}

	var findings []finding
	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err == nil {
		findings = e.findInJSON(decoded)
	} else {
		findings = e.findAll(string(body))
	}

	if len(findings) == 0 {
		return passResult
	}

	names := make([]string, 0, len(findings))
	for _, f := range findings {
		names = append(names, fmt.Sprintf("%s:%s", f.category, f.name))
	}
	detail := strings.Join(names, ",")

	switch settings.RegexMode {
	case destination.ScanMonitor:
		return Result{Action: ActionMonitor, Engine: "regex", Detail: detail}
	case destination.ScanRedact:
		return Result{Action: ActionRedact, Engine: "regex", Detail: detail, Body: redactedPlaceholder}
	case destination.ScanBlock:
		return Result{Action: ActionBlock, Engine: "regex", Detail: detail}
	default:
		return passResult
	}
}

const redactedPlaceholder = `{"error":"content redacted by scanner"}`
