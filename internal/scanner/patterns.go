package scanner

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// PatternRule is one named, categorized regex rule, matching the shape the
// teacher's built-in prompt-injection patterns used before they were made
// configurable here.
type PatternRule struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Pattern  string `yaml:"pattern"`
}

type patternsFile struct {
	Patterns []PatternRule `yaml:"patterns"`
}

// compiledRule is a PatternRule with its regex pre-compiled.
type compiledRule struct {
	name     string
	category string
	re       *regexp.Regexp
}

// PatternSet is an immutable, compiled snapshot of the active pattern
// rules. A new snapshot replaces the old one atomically on reload; any scan
// in flight keeps using the snapshot it started with.
type PatternSet struct {
	rules []compiledRule
}

// defaultRules are always active, independent of PATTERNS_DIR; they mirror
// the prompt-injection signatures the teacher shipped hardcoded.
var defaultRules = []PatternRule{
	{Name: "system_prompt_override", Category: "prompt_injection",
		Pattern: `(?i)(?:ignore|disregard|forget)\s+(?:all\s+)?(?:previous|prior|above|earlier)\s+(?:instructions|prompts|rules|context)`},
	{Name: "role_hijack", Category: "prompt_injection",
		Pattern: `(?i)you\s+are\s+(?:now|actually|really)\s+(?:a|an|my)\s+`},
	{Name: "instruction_injection", Category: "prompt_injection",
		Pattern: `(?i)(?:new\s+instructions?|updated?\s+(?:instructions?|rules?|prompt)):\s*`},
	{Name: "system_tag_injection", Category: "prompt_injection",
		Pattern: `(?i)<\s*(?:system|assistant|user|human|ai)\s*>`},
	{Name: "delimiter_escape", Category: "delimiter_escape",
		Pattern: "(?i)(?:```|---|\\.{3})\\s*(?:system|instructions?|rules?)\\s*(?:```|---|\\.{3})"},
	{Name: "do_anything_now", Category: "prompt_injection",
		Pattern: `(?i)(?:DAN|do\s+anything\s+now|jailbreak|ignore\s+safety)`},
}

func compile(rules []PatternRule) (*PatternSet, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("scanner: pattern %q: %w", r.Name, err)
		}
		compiled = append(compiled, compiledRule{name: r.name(), category: r.Category, re: re})
	}
	return &PatternSet{rules: compiled}, nil
}

func (r PatternRule) name() string { return r.Name }

// loadPatternsDir reads every *.yaml file in dir and compiles their rules
// on top of defaultRules. A missing or empty dir yields just the defaults.
func loadPatternsDir(dir string) (*PatternSet, error) {
	rules := append([]PatternRule{}, defaultRules...)

	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("scanner: read patterns dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
				continue
			}
			raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				return nil, fmt.Errorf("scanner: read pattern file %s: %w", e.Name(), err)
			}
			var doc patternsFile
			if err := yaml.Unmarshal(raw, &doc); err != nil {
				return nil, fmt.Errorf("scanner: parse pattern file %s: %w", e.Name(), err)
			}
			rules = append(rules, doc.Patterns...)
		}
	}

	return compile(rules)
}

// PatternWatcher holds the active compiled PatternSet and keeps it current
// either on explicit Reload (POST /admin/reload-patterns) or on filesystem
// change under PatternsDir, via fsnotify.
type PatternWatcher struct {
	dir     string
	current atomic.Pointer[PatternSet]
	logger  *slog.Logger
	watcher *fsnotify.Watcher
}

// NewPatternWatcher loads the initial pattern set and, if dir is non-empty,
// starts watching it for changes.
func NewPatternWatcher(dir string, logger *slog.Logger) (*PatternWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ps, err := loadPatternsDir(dir)
	if err != nil {
		return nil, err
	}

	w := &PatternWatcher{dir: dir, logger: logger}
	w.current.Store(ps)

	if dir == "" {
		return w, nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("scanner: create pattern watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("scanner: watch patterns dir: %w", err)
	}
	w.watcher = fw
	go w.watchLoop()

	return w, nil
}

func (w *PatternWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := w.Reload(); err != nil {
				w.logger.Error("scanner: pattern reload failed", "error", err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("scanner: pattern watcher error", "error", err)
		}
	}
}

// Reload recompiles the pattern set from disk and swaps it in atomically.
func (w *PatternWatcher) Reload() error {
	ps, err := loadPatternsDir(w.dir)
	if err != nil {
		return err
	}
	w.current.Store(ps)
	return nil
}

// Current returns the active pattern snapshot.
func (w *PatternWatcher) Current() *PatternSet {
	return w.current.Load()
}

// Close stops the filesystem watcher, if any.
func (w *PatternWatcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}
