// Package ruleset compiles the declarative detection configuration into an
// immutable Snapshot and publishes it through a Holder. Records pin the
// snapshot current at their start, so a reload never changes a record that
// is already being processed.
package ruleset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"piigate/internal/classify"
	"piigate/internal/core"
	"piigate/internal/correlate"
)

const (
	// DefaultSaltRef names the salt HASH strategies use when none is given.
	DefaultSaltRef = "default"
	// DevelopmentSecret is the built-in secret of the default salt. It makes
	// HASH tokens reproducible by anyone and must be overridden in production.
	DevelopmentSecret = "piigate-development-secret"
)

// Document is the YAML form of a ruleset.
type Document struct {
	Name        string                         `yaml:"name,omitempty" json:"name,omitempty"`
	Classifiers classify.Config                `yaml:"classifiers" json:"classifiers"`
	Rules       []correlate.Rule               `yaml:"rules" json:"rules"`
	Strategies  map[core.Category]StrategySpec `yaml:"strategies" json:"strategies"`
	Priority    []core.Category                `yaml:"priority,omitempty" json:"priority,omitempty"`
	Allow       []string                       `yaml:"allow,omitempty" json:"allow,omitempty"`
	Deny        []DenyEntry                    `yaml:"deny,omitempty" json:"deny,omitempty"`
	Salts       map[string]string              `yaml:"salts,omitempty" json:"salts,omitempty"`
}

// StrategySpec is the YAML form of a masking strategy.
type StrategySpec struct {
	Kind        string `yaml:"kind" json:"kind"`
	KeepPrefix  int    `yaml:"keep_prefix,omitempty" json:"keep_prefix,omitempty"`
	KeepSuffix  int    `yaml:"keep_suffix,omitempty" json:"keep_suffix,omitempty"`
	Filler      string `yaml:"filler,omitempty" json:"filler,omitempty"`
	Placeholder string `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	Salt        string `yaml:"salt,omitempty" json:"salt,omitempty"`
}

// DenyEntry forces masking of a path. An empty Category selects the generic strategy.
type DenyEntry struct {
	Path     string        `yaml:"path" json:"path"`
	Category core.Category `yaml:"category,omitempty" json:"category,omitempty"`
}

// DefaultStrategies returns the built-in per-category strategies.
func DefaultStrategies() map[core.Category]StrategySpec {
	return map[core.Category]StrategySpec{
		core.CategoryEmail:    {Kind: "full", Placeholder: "[REDACTED]"},
		core.CategoryPhone:    {Kind: "partial", KeepPrefix: 2, KeepSuffix: 3, Filler: "*"},
		core.CategoryAadhaar:  {Kind: "partial", KeepPrefix: 0, KeepSuffix: 4, Filler: "X"},
		core.CategoryPassport: {Kind: "partial", KeepPrefix: 1, KeepSuffix: 1, Filler: "X"},
		core.CategoryUPI:      {Kind: "hash", Salt: DefaultSaltRef},
		core.CategoryIP:       {Kind: "full", Placeholder: "[REDACTED_IP_ADDRESS]"},
		core.CategoryAddress:  {Kind: "full", Placeholder: "[REDACTED_ADDRESS]"},
		core.CategoryName:     {Kind: "observe"},
		core.CategoryGeneric:  {Kind: "full", Placeholder: "[REDACTED_PII]"},
	}
}

// Default returns the built-in ruleset document.
func Default() Document {
	return Document{
		Name:        "default",
		Classifiers: classify.DefaultConfig(),
		Rules:       correlate.DefaultRules(),
		Strategies:  DefaultStrategies(),
		Priority:    core.Categories(),
		Salts: map[string]string{
			DefaultSaltRef: "${PIIGATE_HASH_SECRET:-" + DevelopmentSecret + "}",
		},
	}
}

// Parse decodes a YAML ruleset. Unknown keys are rejected. An empty document
// yields Default().
func Parse(data []byte) (Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Default(), nil
	}
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return Document{}, &core.ConfigError{Field: "document", Err: err}
	}
	return doc, nil
}

// LoadFile reads and parses a YAML ruleset file.
func LoadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("failed to read ruleset: %w", err)
	}
	return Parse(data)
}

var saltReference = regexp.MustCompile(`^\$\{[A-Za-z_][A-Za-z0-9_]*(:-([^}]*))?\}$`)

// LiteralSalts returns, sorted, the salt refs whose secret is written into
// the document itself: anything other than a single ${VAR} reference, or a
// reference whose fallback is not the development secret.
func (d Document) LiteralSalts() []string {
	var refs []string
	for ref, v := range d.Salts {
		m := saltReference.FindStringSubmatch(strings.TrimSpace(v))
		if m == nil || (m[2] != "" && m[2] != DevelopmentSecret) {
			refs = append(refs, ref)
		}
	}
	slices.Sort(refs)
	return refs
}

// Redacted returns a copy safe to show: salt secrets are replaced.
func (d Document) Redacted() Document {
	out := d
	if d.Salts != nil {
		out.Salts = make(map[string]string, len(d.Salts))
		for ref := range d.Salts {
			out.Salts[ref] = "<redacted>"
		}
	}
	return out
}
