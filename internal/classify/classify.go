// Package classify holds the single-field PII classifiers. Classifiers are
// pure: they look at one path and one decoded value, never fail, and never
// put the value itself into a signal.
package classify

import (
	"strings"

	"piigate/internal/core"
)

// maxClassifyBytes bounds the input any classifier looks at.
const maxClassifyBytes = 4096

// Classifier recognises one category of PII in a single value.
type Classifier interface {
	Category() core.Category
	// Classify returns the confidence and a value-free evidence string.
	Classify(path core.Path, value string) (core.Confidence, string, bool)
}

// Set runs a fixed list of classifiers over each field.
type Set struct {
	classifiers []Classifier
	hints       map[string]KeyHint
}

// New compiles the classifiers described by cfg. Zero-valued parameters take
// their defaults.
func New(cfg Config) (*Set, error) {
	cfg = cfg.withDefaults()
	for _, cat := range cfg.Disabled {
		if !cat.Valid() {
			return nil, core.NewConfigError("classifiers.disabled", "unknown category %q", cat)
		}
	}

	var list []Classifier
	add := func(c Classifier) {
		if !cfg.disabled(c.Category()) {
			list = append(list, c)
		}
	}

	phone, err := newPhone(cfg.Phone)
	if err != nil {
		return nil, err
	}
	passport, err := newPassport(cfg.Passport)
	if err != nil {
		return nil, err
	}
	upi, err := newUPI(cfg.UPI)
	if err != nil {
		return nil, err
	}
	if cfg.Name.MinTokens < 1 || cfg.Name.MaxTokens < cfg.Name.MinTokens {
		return nil, core.NewConfigError("classifiers.name", "token bounds %d..%d are invalid", cfg.Name.MinTokens, cfg.Name.MaxTokens)
	}
	if cfg.Address.PinDigits < 3 || cfg.Address.PinDigits > 10 {
		return nil, core.NewConfigError("classifiers.address.pin_digits", "must be between 3 and 10, got %d", cfg.Address.PinDigits)
	}

	hints, err := compileKeyHints(cfg.KeyHints, cfg)
	if err != nil {
		return nil, err
	}

	add(aadhaarClassifier{})
	add(passport)
	add(upi)
	add(newEmail(cfg.Email))
	add(phone)
	add(ipClassifier{})
	add(newAddress(cfg.Address))
	add(newName(cfg.Name))

	return &Set{classifiers: list, hints: hints}, nil
}

// MustDefault returns the default set. It panics only if the built-in
// defaults are broken.
func MustDefault() *Set {
	s, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return s
}

// Classify runs every classifier over one value.
func (s *Set) Classify(path core.Path, value string) []core.Signal {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if len(value) > maxClassifyBytes {
		value = value[:maxClassifyBytes]
	}
	var out []core.Signal
	p := ""
	for _, c := range s.classifiers {
		conf, evidence, ok := c.Classify(path, value)
		if !ok {
			continue
		}
		if p == "" {
			p = path.String()
		}
		out = append(out, core.Signal{
			Path:       p,
			Category:   c.Category(),
			Confidence: conf,
			Evidence:   evidence,
		})
	}
	if h, ok := s.hints[strings.ToLower(path.Leaf())]; ok {
		if p == "" {
			p = path.String()
		}
		out = applyKeyHint(out, h, p, value)
	}
	return out
}

// Categories lists the categories this set can report.
func (s *Set) Categories() []core.Category {
	out := make([]core.Category, len(s.classifiers))
	for i, c := range s.classifiers {
		out[i] = c.Category()
	}
	return out
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
