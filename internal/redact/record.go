package redact

import (
	"fmt"
	"slices"

	"github.com/tidwall/gjson"

	"piigate/internal/core"
	"piigate/internal/masking"
	"piigate/internal/ruleset"
)

const (
	ruleDenyList = "deny_list"
	ruleFallback = "fallback"
)

// leaf is a completed field. The value itself is not kept: it is re-read
// from the record text when the field has to be masked.
type leaf struct {
	path     core.Path
	kind     core.ValueKind
	start    int
	end      int
	denied   bool
	denyCat  core.Category
	signaled bool
}

// record is the per-record working state. It lives from RecordStart to
// RecordEnd or ParseError.
type record struct {
	seq     uint64
	snap    *ruleset.Snapshot
	leaves  []leaf
	signals []core.Signal
	// lastEnd is the end offset of the last completed field of any kind.
	lastEnd   int
	truncated int
	faulted   bool
}

func newRecord(seq uint64, snap *ruleset.Snapshot) *record {
	return &record{seq: seq, snap: snap}
}

// addField classifies a completed field. Deny-listed fields are kept
// whatever their kind; otherwise null and boolean values and allow-listed
// paths are skipped.
func (r *record) addField(f core.Field, hook func(string)) {
	r.lastEnd = max(r.lastEnd, f.End)
	if f.Truncated {
		r.truncated++
	}
	l := leaf{path: f.Path, kind: f.Kind, start: f.Start, end: f.End}
	l.denyCat, l.denied = r.snap.Denied(f.Path)
	scalar := f.Kind == core.KindNull || f.Kind == core.KindBool
	if !l.denied && (scalar || r.snap.Allowed(f.Path)) {
		return
	}
	if scalar {
		r.leaves = append(r.leaves, l)
		return
	}
	idx := len(r.leaves)

	defer func() {
		if p := recover(); p != nil {
			r.faulted = true
			r.leaves = append(r.leaves, l)
		}
	}()
	if hook != nil {
		hook("classify")
	}
	sigs := r.snap.Classifiers().Classify(f.Path, f.Value)
	for i := range sigs {
		sigs[i].FieldIndex = idx
	}
	l.signaled = len(sigs) > 0
	r.signals = append(r.signals, sigs...)
	r.leaves = append(r.leaves, l)
}

// resolve correlates the buffered signals and picks one finding per field
// by category priority. Findings are returned in document order.
func (r *record) resolve() []core.Finding {
	best := make(map[int]core.Finding)
	consider := func(idx int, cat core.Category, rule string) {
		cur, ok := best[idx]
		if ok && r.snap.Rank(cur.Category) <= r.snap.Rank(cat) {
			return
		}
		l := r.leaves[idx]
		best[idx] = core.Finding{
			FieldIndex: idx,
			Category:   cat,
			Strategy:   r.snap.Strategy(cat),
			Rule:       rule,
			Start:      l.start,
			End:        l.end,
		}
	}

	for _, p := range r.snap.Correlator().Correlate(r.signals) {
		consider(p.Signal.FieldIndex, p.Signal.Category, p.Rule)
	}
	for i, l := range r.leaves {
		if !l.denied {
			continue
		}
		consider(i, l.denyCat, ruleDenyList)
		// a deny-listed field is always masked, even when a report-only
		// category outranks the deny entry
		f := best[i]
		if f.Strategy.Kind != core.StrategyObserve {
			continue
		}
		f.Category, f.Rule = l.denyCat, ruleDenyList
		f.Strategy = r.snap.Strategy(l.denyCat)
		if f.Strategy.Kind == core.StrategyObserve {
			f.Category = core.CategoryGeneric
			f.Strategy = r.snap.Strategy(core.CategoryGeneric)
		}
		best[i] = f
	}
	return r.sorted(best)
}

// failedFindings is the policy for records cut short by a parse error:
// every completed field that produced any signal, or is deny-listed, is
// masked with the default strategy of its highest-priority category.
// Report-only strategies are replaced by the generic one.
func (r *record) failedFindings() []core.Finding {
	cats := make(map[int]core.Category)
	for _, s := range r.signals {
		if cur, ok := cats[s.FieldIndex]; !ok || r.snap.Rank(s.Category) < r.snap.Rank(cur) {
			cats[s.FieldIndex] = s.Category
		}
	}
	best := make(map[int]core.Finding, len(cats))
	for i, l := range r.leaves {
		cat, ok := cats[i]
		rule := "parse_error"
		if l.denied && (!ok || r.snap.Rank(l.denyCat) < r.snap.Rank(cat)) {
			cat, ok = l.denyCat, true
			rule = ruleDenyList
		}
		if !ok {
			continue
		}
		st := r.snap.Strategy(cat)
		if st.Kind == core.StrategyObserve {
			st = r.snap.Strategy(core.CategoryGeneric)
		}
		best[i] = core.Finding{FieldIndex: i, Category: cat, Strategy: st, Rule: rule, Start: l.start, End: l.end}
	}
	return r.sorted(best)
}

// fallbackFindings masks every completed leaf with the generic strategy.
func (r *record) fallbackFindings() []core.Finding {
	st := r.snap.Strategy(core.CategoryGeneric)
	out := make([]core.Finding, len(r.leaves))
	for i, l := range r.leaves {
		out[i] = core.Finding{
			FieldIndex: i,
			Category:   core.CategoryGeneric,
			Strategy:   st,
			Rule:       ruleFallback,
			Start:      l.start,
			End:        l.end,
		}
	}
	return out
}

func (r *record) sorted(best map[int]core.Finding) []core.Finding {
	out := make([]core.Finding, 0, len(best))
	for _, f := range best {
		f.Path = r.leaves[f.FieldIndex].path.String()
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b core.Finding) int { return a.Start - b.Start })
	return out
}

// apply masks findings inside text, which must hold the record's JSON from
// offset 0. Only text[:limit] is kept. It returns the new text and the
// number of PARTIAL overflows.
func (r *record) apply(text []byte, limit int, findings []core.Finding, hook func(string)) ([]byte, int) {
	if hook != nil {
		hook("mask")
	}
	m := r.snap.Masker()
	limit = min(limit, len(text))
	out := make([]byte, 0, limit+16*len(findings))
	pos := 0
	overflows := 0
	for _, f := range findings {
		if f.End > limit || f.Start < pos {
			continue
		}
		token := text[f.Start:f.End]
		res := m.Mask(decodeValue(token, r.leaves[f.FieldIndex].kind), f.Strategy)
		if res.Overflow {
			overflows++
		}
		if !res.Changed {
			continue
		}
		out = append(out, text[pos:f.Start]...)
		out = masking.AppendQuoteJSON(out, res.Text)
		pos = f.End
	}
	out = append(out, text[pos:limit]...)
	return out, overflows
}

// decodeValue turns a raw JSON value token back into the text classifiers saw.
func decodeValue(token []byte, kind core.ValueKind) string {
	if kind == core.KindString {
		return gjson.ParseBytes(token).String()
	}
	return string(token)
}

func summarize(s *core.Summary, findings []core.Finding) {
	for _, f := range findings {
		s.Findings = append(s.Findings, core.FindingSummary{
			Path:            f.Path,
			Category:        f.Category,
			StrategyApplied: f.Strategy.String(),
			Rule:            f.Rule,
		})
	}
	s.IsPII = len(findings) > 0
}

// panicError converts a recovered value into an error for logging.
func panicError(p any) error {
	if err, ok := p.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", p)
}
