// Package correlate promotes single-field signals to findings. Confirmed
// signals always promote. Contextual signals need a rule whose categories
// are all present on distinct fields of the same record.
package correlate

import (
	"fmt"
	"strings"

	"piigate/internal/core"
)

// RuleConfirmed is reported for signals that promote on their own.
const RuleConfirmed = "confirmed"

// Rule is satisfied when every required category is held by a distinct
// field. Requires is a multiset: [name, name] needs two name fields.
type Rule struct {
	Name     string          `yaml:"name" json:"name"`
	Requires []core.Category `yaml:"requires" json:"requires"`
}

func (r Rule) String() string {
	parts := make([]string, len(r.Requires))
	for i, c := range r.Requires {
		parts[i] = string(c)
	}
	return r.Name + "(" + strings.Join(parts, "+") + ")"
}

func (r Rule) contains(cat core.Category) bool {
	for _, c := range r.Requires {
		if c == cat {
			return true
		}
	}
	return false
}

// DefaultRules pairs the quasi-identifiers that are harmless alone.
func DefaultRules() []Rule {
	combo := []core.Category{core.CategoryName, core.CategoryEmail, core.CategoryAddress, core.CategoryIP}
	var rules []Rule
	for i := 0; i < len(combo); i++ {
		for j := i + 1; j < len(combo); j++ {
			rules = append(rules, pair(combo[i], combo[j]))
		}
	}
	return append(rules,
		pair(core.CategoryName, core.CategoryName),
		pair(core.CategoryName, core.CategoryPhone),
		pair(core.CategoryName, core.CategoryPassport),
		pair(core.CategoryPassport, core.CategoryPhone),
		pair(core.CategoryPassport, core.CategoryEmail),
	)
}

func pair(a, b core.Category) Rule {
	return Rule{Name: string(a) + "+" + string(b), Requires: []core.Category{a, b}}
}

// Promotion is a signal that became actionable, with the rule that promoted it.
type Promotion struct {
	Signal core.Signal
	Rule   string
}

// Engine evaluates an ordered rule table. It is immutable and safe for concurrent use.
type Engine struct {
	rules []Rule
}

// New validates the rule table.
func New(rules []Rule) (*Engine, error) {
	seen := make(map[string]struct{}, len(rules))
	out := make([]Rule, 0, len(rules))
	for i, r := range rules {
		field := fmt.Sprintf("rules[%d]", i)
		if r.Name == "" {
			return nil, core.NewConfigError(field, "rule has no name")
		}
		if r.Name == RuleConfirmed {
			return nil, core.NewConfigError(field, "rule name %q is reserved", r.Name)
		}
		if _, dup := seen[r.Name]; dup {
			return nil, core.NewConfigError(field, "duplicate rule name %q", r.Name)
		}
		seen[r.Name] = struct{}{}
		if len(r.Requires) == 0 {
			return nil, core.NewConfigError(field, "rule %q requires no categories", r.Name)
		}
		for _, c := range r.Requires {
			if !c.Valid() || c == core.CategoryGeneric {
				return nil, core.NewConfigError(field, "rule %q: unknown category %q", r.Name, c)
			}
		}
		out = append(out, Rule{Name: r.Name, Requires: append([]core.Category(nil), r.Requires...)})
	}
	return &Engine{rules: out}, nil
}

// Rules returns a copy of the rule table.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Correlate returns the promoted signals of one record in input order.
// Contextual signals no rule promotes are dropped.
func (e *Engine) Correlate(signals []core.Signal) []Promotion {
	if len(signals) == 0 {
		return nil
	}

	var holders map[core.Category][]int
	out := make([]Promotion, 0, len(signals))
	for _, s := range signals {
		if s.Confidence == core.Confirmed {
			out = append(out, Promotion{Signal: s, Rule: RuleConfirmed})
			continue
		}
		if holders == nil {
			holders = fieldsByCategory(signals)
		}
		for _, r := range e.rules {
			if !r.contains(s.Category) {
				continue
			}
			if satisfiedWith(r, s, holders) {
				out = append(out, Promotion{Signal: s, Rule: r.Name})
				break
			}
		}
	}
	return out
}

// fieldsByCategory lists the distinct fields carrying each category.
func fieldsByCategory(signals []core.Signal) map[core.Category][]int {
	out := make(map[core.Category][]int)
	for _, s := range signals {
		list := out[s.Category]
		dup := false
		for _, f := range list {
			if f == s.FieldIndex {
				dup = true
				break
			}
		}
		if !dup {
			out[s.Category] = append(list, s.FieldIndex)
		}
	}
	return out
}

// satisfiedWith reports whether r can be satisfied with s's field filling
// one slot of s's category.
func satisfiedWith(r Rule, s core.Signal, holders map[core.Category][]int) bool {
	slots := make([]core.Category, 0, len(r.Requires)-1)
	pinned := false
	for _, c := range r.Requires {
		if !pinned && c == s.Category {
			pinned = true
			continue
		}
		slots = append(slots, c)
	}
	used := map[int]bool{s.FieldIndex: true}
	return assign(slots, holders, used, len(r.Requires))
}

// assign fills slots with distinct fields by backtracking. Only the first
// limit candidates of a category are tried: with at most limit slots, some
// assignment uses only those whenever any assignment exists.
func assign(slots []core.Category, holders map[core.Category][]int, used map[int]bool, limit int) bool {
	if len(slots) == 0 {
		return true
	}
	candidates := holders[slots[0]]
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	for _, f := range candidates {
		if used[f] {
			continue
		}
		used[f] = true
		ok := assign(slots[1:], holders, used, limit)
		delete(used, f)
		if ok {
			return true
		}
	}
	return false
}
