package destination

import (
	"fmt"
	"net/url"
)

// DefaultLimits mirrors the environment-variable defaults from spec.md §6.5.
var DefaultLimits = Limits{
	MaxConnPerDestination: 10,
	MaxBodyBytes:          32768,
}

// Registry is the immutable-after-load table of configured destinations.
// It is safe for concurrent lookup without locking once built.
type Registry struct {
	byName map[string]Destination
	order  []string
}

// NewRegistry validates and builds an immutable Registry from raw
// destination definitions. Validation failures are ConfigErrors per
// spec.md §7 and are fatal at startup.
func NewRegistry(defs []Destination) (*Registry, error) {
	byName := make(map[string]Destination, len(defs))
	order := make([]string, 0, len(defs))

	for _, d := range defs {
		if !NamePattern.MatchString(d.Name) {
			return nil, fmt.Errorf("destination %q: name must match %s", d.Name, NamePattern.String())
		}
		if _, dup := byName[d.Name]; dup {
			return nil, fmt.Errorf("destination %q: duplicate name", d.Name)
		}

		d, err := validate(d)
		if err != nil {
			return nil, fmt.Errorf("destination %q: %w", d.Name, err)
		}

		byName[d.Name] = d
		order = append(order, d.Name)
	}

	return &Registry{byName: byName, order: order}, nil
}

func validate(d Destination) (Destination, error) {
	if d.Limits.MaxConnPerDestination <= 0 {
		d.Limits.MaxConnPerDestination = DefaultLimits.MaxConnPerDestination
	}
	if d.Limits.MaxBodyBytes <= 0 {
		d.Limits.MaxBodyBytes = DefaultLimits.MaxBodyBytes
	}

	switch d.Kind {
	case KindSSE, KindStreamableHTTP:
		u, err := url.Parse(d.UpstreamURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return d, fmt.Errorf("upstream_url %q must be an absolute http(s) URL", d.UpstreamURL)
		}
	case KindStdio:
		if d.Command == "" {
			return d, ErrEmptyCommand
		}
		resolved, args, err := ParseCommand(fullCommandLine(d.Command, d.Args))
		if err != nil {
			return d, err
		}
		d.Command = resolved
		d.Args = args
	default:
		return d, fmt.Errorf("unknown destination kind %q", d.Kind)
	}

	return d, nil
}

// fullCommandLine re-quotes Command+Args back into a single line so
// ParseCommand can re-tokenize and validate every argument uniformly,
// whether the caller supplied "cmd arg1 arg2" or Command/Args separately.
func fullCommandLine(command string, args []string) string {
	line := command
	for _, a := range args {
		line += " " + quoteIfNeeded(a)
	}
	return line
}

func quoteIfNeeded(s string) string {
	needsQuote := false
	for _, r := range s {
		if r == ' ' || r == '\t' {
			needsQuote = true
			break
		}
	}
	if !needsQuote {
		return s
	}
	return `"` + s + `"`
}

// Lookup returns the destination registered under name.
func (r *Registry) Lookup(name string) (Destination, error) {
	d, ok := r.byName[name]
	if !ok {
		return Destination{}, ErrNotFound
	}
	return d, nil
}

// All returns every registered destination in load order, for eager
// startup tasks (e.g. spawning stdio bridges).
func (r *Registry) All() []Destination {
	out := make([]Destination, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}
