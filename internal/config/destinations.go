package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mcprelay/mcprelay/internal/domain/destination"
)

// destinationsFile is the on-disk shape of the destination registry YAML.
// Field names match the Destination entity from spec.md §3; secrets for
// stdio env vars are deliberately not read from this file (see secretsDoc).
type destinationsFile struct {
	Destinations []destinationDoc `yaml:"destinations" validate:"required,min=1,dive"`
}

type destinationDoc struct {
	Name        string            `yaml:"name" validate:"required"`
	Kind        string            `yaml:"kind" validate:"required,oneof=sse streamable_http stdio"`
	UpstreamURL string            `yaml:"upstream_url"`
	Command     string            `yaml:"command"`
	Args        []string          `yaml:"args"`
	Env         map[string]string `yaml:"env"`

	MaxConnPerDestination int `yaml:"max_conn_per_destination"`
	MaxBodyBytes          int `yaml:"max_body_bytes"`
	RPCResponseTimeoutSec int `yaml:"rpc_response_timeout_seconds"`

	Scan scanDoc `yaml:"scan"`
}

type scanDoc struct {
	RegexMode   string  `yaml:"regex_mode" validate:"omitempty,oneof=off monitor redact block"`
	AIMode      string  `yaml:"ai_mode" validate:"omitempty,oneof=off monitor redact block"`
	AIThreshold float64 `yaml:"ai_threshold"`
	AIMaxChars  int     `yaml:"ai_max_chars"`
}

// secretsDoc is a separate file of per-destination env overrides, so that
// secrets never sit in the same document as the rest of the registry
// config (matching the teacher's split between config and credential
// material).
type secretsDoc struct {
	Destinations map[string]map[string]string `yaml:"destinations"`
}

// LoadDestinations reads the destination registry from path and, if
// secretsPath is non-empty, merges per-destination stdio environment
// overrides from it before building the immutable registry.
func LoadDestinations(path string, secretsPath string) (*destination.Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read destinations file: %w", err)
	}

	var doc destinationsFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parse destinations file: %w", err)
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(doc); err != nil {
		return nil, fmt.Errorf("config: validate destinations file: %w", err)
	}

	var secrets secretsDoc
	if secretsPath != "" {
		raw, err := os.ReadFile(secretsPath)
		if err != nil {
			return nil, fmt.Errorf("config: read secrets file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &secrets); err != nil {
			return nil, fmt.Errorf("config: parse secrets file: %w", err)
		}
	}

	defs := make([]destination.Destination, 0, len(doc.Destinations))
	for _, d := range doc.Destinations {
		env := map[string]string{}
		for k, v := range d.Env {
			env[k] = v
		}
		for k, v := range secrets.Destinations[d.Name] {
			env[k] = v
		}

		defs = append(defs, destination.Destination{
			Name:        d.Name,
			Kind:        destination.Kind(d.Kind),
			UpstreamURL: d.UpstreamURL,
			Command:     d.Command,
			Args:        d.Args,
			Env:         env,
			Limits: destination.Limits{
				MaxConnPerDestination: d.MaxConnPerDestination,
				MaxBodyBytes:          d.MaxBodyBytes,
				RPCResponseTimeout:    time.Duration(d.RPCResponseTimeoutSec) * time.Second,
			},
			Scan: destination.ScanSettings{
				RegexMode:   destination.ScanMode(orDefault(d.Scan.RegexMode, string(destination.ScanOff))),
				AIMode:      destination.ScanMode(orDefault(d.Scan.AIMode, string(destination.ScanOff))),
				AIThreshold: d.Scan.AIThreshold,
				AIMaxChars:  d.Scan.AIMaxChars,
			},
		})
	}

	return destination.NewRegistry(defs)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
