// Package masking renders findings. Every strategy is idempotent: masking a
// masked value again yields the same text.
package masking

import (
	"strings"
	"unicode/utf8"

	"piigate/internal/core"
)

// FallbackPlaceholder replaces values whose strategy cannot be applied.
const FallbackPlaceholder = "[REDACTED_PII]"

// Result is the outcome of masking one value.
type Result struct {
	Text string
	// Overflow is set when a PARTIAL strategy had to replace the whole value
	// because it was not longer than the kept prefix and suffix.
	Overflow bool
	// Changed reports whether Text differs from the input.
	Changed bool
}

// Engine applies strategies. It is immutable after New and safe for concurrent use.
type Engine struct {
	hashers map[string]*hasher
}

// New creates an Engine with one keyed hasher per salt reference.
func New(salts map[string][]byte) (*Engine, error) {
	e := &Engine{hashers: make(map[string]*hasher, len(salts))}
	for ref, secret := range salts {
		h, err := newHasher(ref, secret)
		if err != nil {
			return nil, err
		}
		e.hashers[ref] = h
	}
	return e, nil
}

// HasSalt reports whether ref names a configured salt.
func (e *Engine) HasSalt(ref string) bool {
	_, ok := e.hashers[ref]
	return ok
}

// Mask renders value under s.
func (e *Engine) Mask(value string, s core.Strategy) Result {
	var r Result
	switch s.Kind {
	case core.StrategyObserve:
		r.Text = value
	case core.StrategyFull:
		r.Text = s.Placeholder
		if r.Text == "" {
			r.Text = FallbackPlaceholder
		}
	case core.StrategyPartial:
		r.Text, r.Overflow = partial(value, s.KeepPrefix, s.KeepSuffix, s.Filler)
	case core.StrategyHash:
		if IsHashToken(value) {
			r.Text = value
			break
		}
		h, ok := e.hashers[s.SaltRef]
		if !ok {
			r.Text = FallbackPlaceholder
			break
		}
		r.Text = h.token(value)
	default:
		r.Text = FallbackPlaceholder
	}
	r.Changed = r.Text != value
	return r
}

// partial keeps the first and last runes and fills the middle, preserving
// the length in runes.
func partial(value string, keepPrefix, keepSuffix int, filler rune) (string, bool) {
	if filler == 0 {
		filler = '*'
	}
	n := utf8.RuneCountInString(value)
	var b strings.Builder
	b.Grow(len(value))
	if n <= keepPrefix+keepSuffix {
		for i := 0; i < n; i++ {
			b.WriteRune(filler)
		}
		return b.String(), true
	}
	i := 0
	for _, r := range value {
		if i < keepPrefix || i >= n-keepSuffix {
			b.WriteRune(r)
		} else {
			b.WriteRune(filler)
		}
		i++
	}
	return b.String(), false
}
