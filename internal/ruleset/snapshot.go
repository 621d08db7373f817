package ruleset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"piigate/config"
	"piigate/internal/classify"
	"piigate/internal/core"
	"piigate/internal/correlate"
	"piigate/internal/masking"
)

// Snapshot is a compiled, immutable ruleset. All methods are safe for
// concurrent use.
type Snapshot struct {
	version  string
	name     string
	loadedAt time.Time
	devSalt  bool

	classifiers *classify.Set
	correlator  *correlate.Engine
	masker      *masking.Engine
	strategies  map[core.Category]core.Strategy
	rank        map[core.Category]int
	allow       []Pattern
	deny        []denyRule
	doc         Document
}

type denyRule struct {
	pattern  Pattern
	category core.Category
}

// Compile validates doc and builds a Snapshot. Every validation failure is a
// *core.ConfigError wrapping core.ErrConfigurationInvalid.
func Compile(doc Document) (*Snapshot, error) {
	s := &Snapshot{name: doc.Name, loadedAt: time.Now()}

	var err error
	if s.classifiers, err = classify.New(doc.Classifiers); err != nil {
		return nil, err
	}

	rules := doc.Rules
	if rules == nil {
		rules = correlate.DefaultRules()
	}
	if s.correlator, err = correlate.New(rules); err != nil {
		return nil, err
	}

	salts, hashedSalts, devSalt, err := resolveSalts(doc.Salts)
	if err != nil {
		return nil, err
	}
	s.devSalt = devSalt
	if s.masker, err = masking.New(salts); err != nil {
		return nil, err
	}

	specs := DefaultStrategies()
	for cat, spec := range doc.Strategies {
		if !cat.Valid() {
			return nil, core.NewConfigError("strategies", "unknown category %q", cat)
		}
		specs[cat] = spec
	}
	s.strategies = make(map[core.Category]core.Strategy, len(specs))
	for cat, spec := range specs {
		st, err := compileStrategy(cat, spec)
		if err != nil {
			return nil, err
		}
		if st.Kind == core.StrategyHash && !s.masker.HasSalt(st.SaltRef) {
			return nil, core.NewConfigError("strategies."+string(cat)+".salt", "salt %q is not defined", st.SaltRef)
		}
		s.strategies[cat] = st
	}

	priority, err := resolvePriority(doc.Priority)
	if err != nil {
		return nil, err
	}
	s.rank = make(map[core.Category]int, len(priority))
	for i, c := range priority {
		s.rank[c] = i
	}

	allowed := make(map[string]struct{}, len(doc.Allow))
	for i, raw := range doc.Allow {
		p, err := ParsePattern(raw)
		if err != nil {
			return nil, core.NewConfigError(fmt.Sprintf("allow[%d]", i), "%v", err)
		}
		allowed[p.String()] = struct{}{}
		s.allow = append(s.allow, p)
	}
	for i, d := range doc.Deny {
		field := fmt.Sprintf("deny[%d]", i)
		p, err := ParsePattern(d.Path)
		if err != nil {
			return nil, core.NewConfigError(field, "%v", err)
		}
		if _, both := allowed[p.String()]; both {
			return nil, core.NewConfigError(field, "path %q is in both the allow and the deny list", p.String())
		}
		cat := d.Category
		if cat == "" {
			cat = core.CategoryGeneric
		}
		if !cat.Valid() {
			return nil, core.NewConfigError(field, "unknown category %q", d.Category)
		}
		s.deny = append(s.deny, denyRule{pattern: p, category: cat})
	}

	canonical := Document{
		Name:        doc.Name,
		Classifiers: doc.Classifiers,
		Rules:       rules,
		Strategies:  specs,
		Priority:    priority,
		Allow:       doc.Allow,
		Deny:        doc.Deny,
		Salts:       hashedSalts,
	}
	data, err := yaml.Marshal(canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint ruleset: %w", err)
	}
	s.version = fmt.Sprintf("%016x", xxhash.Sum64(data))
	s.doc = canonical.Redacted()
	return s, nil
}

// MustDefault compiles Default(). It panics only if the built-in ruleset is broken.
func MustDefault() *Snapshot {
	s, err := Compile(Default())
	if err != nil {
		panic(err)
	}
	return s
}

func compileStrategy(cat core.Category, spec StrategySpec) (core.Strategy, error) {
	field := "strategies." + string(cat)
	kind, err := core.ParseStrategyKind(spec.Kind)
	if err != nil {
		return core.Strategy{}, &core.ConfigError{Field: field, Err: err}
	}
	switch kind {
	case core.StrategyPartial:
		if spec.KeepPrefix < 0 || spec.KeepSuffix < 0 {
			return core.Strategy{}, core.NewConfigError(field, "keep_prefix and keep_suffix must not be negative")
		}
		filler := '*'
		if spec.Filler != "" {
			r, size := utf8.DecodeRuneInString(spec.Filler)
			if size != len(spec.Filler) || r == utf8.RuneError {
				return core.Strategy{}, core.NewConfigError(field, "filler %q must be a single character", spec.Filler)
			}
			filler = r
		}
		return core.Partial(spec.KeepPrefix, spec.KeepSuffix, filler), nil
	case core.StrategyFull:
		placeholder := spec.Placeholder
		if placeholder == "" {
			placeholder = "[REDACTED_" + strings.ToUpper(string(cat)) + "]"
		}
		return core.Full(placeholder), nil
	case core.StrategyHash:
		ref := spec.Salt
		if ref == "" {
			ref = DefaultSaltRef
		}
		return core.Hash(ref), nil
	default:
		return core.Observe(), nil
	}
}

// resolveSalts expands ${VAR:-default} references. It returns the secrets,
// a one-way view of them for fingerprinting, and whether the development
// secret is in use.
func resolveSalts(in map[string]string) (map[string][]byte, map[string]string, bool, error) {
	if _, ok := in[DefaultSaltRef]; !ok {
		merged := make(map[string]string, len(in)+1)
		for k, v := range in {
			merged[k] = v
		}
		merged[DefaultSaltRef] = Default().Salts[DefaultSaltRef]
		in = merged
	}
	salts := make(map[string][]byte, len(in))
	hashed := make(map[string]string, len(in))
	dev := false
	for ref, raw := range in {
		secret := config.ExpandString(raw)
		if strings.Contains(secret, "${") {
			return nil, nil, false, core.NewConfigError("salts."+ref, "unresolved environment reference")
		}
		if secret == "" {
			return nil, nil, false, core.NewConfigError("salts."+ref, "secret is empty")
		}
		if secret == DevelopmentSecret {
			dev = true
		}
		sum := sha256.Sum256([]byte(secret))
		salts[ref] = []byte(secret)
		hashed[ref] = hex.EncodeToString(sum[:8])
	}
	return salts, hashed, dev, nil
}

// resolvePriority validates the configured order and appends missing
// categories in default order.
func resolvePriority(in []core.Category) ([]core.Category, error) {
	seen := make(map[core.Category]bool, len(in))
	out := make([]core.Category, 0, len(core.Categories()))
	for _, c := range in {
		if !c.Valid() {
			return nil, core.NewConfigError("priority", "unknown category %q", c)
		}
		if seen[c] {
			return nil, core.NewConfigError("priority", "category %q listed twice", c)
		}
		seen[c] = true
		out = append(out, c)
	}
	for _, c := range core.Categories() {
		if !seen[c] {
			out = append(out, c)
		}
	}
	return out, nil
}

// Version is a fingerprint of the compiled ruleset.
func (s *Snapshot) Version() string { return s.version }

// Name is the ruleset's declared name.
func (s *Snapshot) Name() string { return s.name }

// LoadedAt is when the snapshot was compiled.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// DevelopmentSalt reports whether the built-in HASH secret is in use.
func (s *Snapshot) DevelopmentSalt() bool { return s.devSalt }

func (s *Snapshot) Classifiers() *classify.Set     { return s.classifiers }
func (s *Snapshot) Correlator() *correlate.Engine { return s.correlator }
func (s *Snapshot) Masker() *masking.Engine       { return s.masker }

// Strategy returns the default strategy of a category.
func (s *Snapshot) Strategy(cat core.Category) core.Strategy {
	if st, ok := s.strategies[cat]; ok {
		return st
	}
	return s.strategies[core.CategoryGeneric]
}

// Rank orders categories for conflict resolution; lower wins.
func (s *Snapshot) Rank(cat core.Category) int {
	if r, ok := s.rank[cat]; ok {
		return r
	}
	return len(s.rank)
}

// Allowed reports whether path is exempt from classification. A deny entry
// covering the same path still applies.
func (s *Snapshot) Allowed(path core.Path) bool {
	for _, p := range s.allow {
		if p.Covers(path) {
			return true
		}
	}
	return false
}

// Denied reports whether path must always be masked, and as which category.
// Deny takes precedence over allow when patterns overlap.
func (s *Snapshot) Denied(path core.Path) (core.Category, bool) {
	for _, d := range s.deny {
		if d.pattern.Covers(path) {
			return d.category, true
		}
	}
	return "", false
}

// Document returns the resolved ruleset with secrets redacted.
func (s *Snapshot) Document() Document { return s.doc }

// Strategies lists the resolved strategy per category, sorted by category.
func (s *Snapshot) Strategies() []CategoryStrategy {
	out := make([]CategoryStrategy, 0, len(s.strategies))
	for cat, st := range s.strategies {
		out = append(out, CategoryStrategy{Category: cat, Strategy: st.String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// CategoryStrategy pairs a category with its rendered strategy.
type CategoryStrategy struct {
	Category core.Category `json:"category"`
	Strategy string        `json:"strategy"`
}
