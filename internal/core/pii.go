// Package core provides the shared types of the redaction engine: categories,
// signals, findings, strategies and per-record summaries.
package core

import (
	"fmt"
	"strings"
)

// Category identifies one kind of PII.
type Category string

const (
	CategoryPhone    Category = "phone"
	CategoryAadhaar  Category = "aadhaar"
	CategoryPassport Category = "passport"
	CategoryUPI      Category = "upi_id"
	CategoryEmail    Category = "email"
	CategoryIP       Category = "ip_address"
	CategoryName     Category = "name"
	CategoryAddress  Category = "address"
	// CategoryGeneric is used for deny-listed fields without a category and
	// for the conservative fallback when a record could not be classified.
	CategoryGeneric Category = "generic"
)

var allCategories = []Category{
	CategoryAadhaar,
	CategoryPassport,
	CategoryUPI,
	CategoryEmail,
	CategoryPhone,
	CategoryIP,
	CategoryAddress,
	CategoryName,
	CategoryGeneric,
}

// Categories returns every known category in default priority order.
func Categories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range allCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Confidence is the strength of a single-field signal.
type Confidence uint8

const (
	// Contextual signals need corroboration from another field of the same record.
	Contextual Confidence = iota + 1
	// Confirmed signals stand alone.
	Confirmed
)

func (c Confidence) String() string {
	switch c {
	case Contextual:
		return "contextual"
	case Confirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// MarshalText renders the confidence by name.
func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ValueKind is the JSON type of a leaf value.
type ValueKind uint8

const (
	KindString ValueKind = iota + 1
	KindNumber
	KindBool
	KindNull
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindNull:
		return "null"
	default:
		return "unknown"
	}
}

// Field is one fully parsed leaf value of a record.
// Start and End delimit the raw value token (quotes included for strings)
// inside the record's JSON text.
type Field struct {
	RecordSeq uint64
	Path      Path
	Value     string
	Kind      ValueKind
	Start     int
	End       int
	// Truncated is set when Value holds only a prefix of an oversized value.
	Truncated bool
}

// Signal is a single classifier's verdict about one field.
// Evidence never contains the raw value.
type Signal struct {
	FieldIndex int
	Path       string
	Category   Category
	Confidence Confidence
	Evidence   string
}

// StrategyKind selects how a finding is rendered.
type StrategyKind uint8

const (
	StrategyPartial StrategyKind = iota + 1
	StrategyFull
	StrategyHash
	// StrategyObserve reports the finding and leaves the value untouched.
	StrategyObserve
)

var strategyNames = map[StrategyKind]string{
	StrategyPartial: "partial",
	StrategyFull:    "full",
	StrategyHash:    "hash",
	StrategyObserve: "observe",
}

func (k StrategyKind) String() string {
	if name, ok := strategyNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseStrategyKind maps a configured strategy name to its kind.
func ParseStrategyKind(s string) (StrategyKind, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	for kind, name := range strategyNames {
		if name == needle {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown masking strategy %q (valid: partial, full, hash, observe)", s)
}

// Strategy is a resolved masking policy.
type Strategy struct {
	Kind        StrategyKind
	KeepPrefix  int
	KeepSuffix  int
	Filler      rune
	Placeholder string
	SaltRef     string
}

// Partial builds a PARTIAL strategy.
func Partial(keepPrefix, keepSuffix int, filler rune) Strategy {
	return Strategy{Kind: StrategyPartial, KeepPrefix: keepPrefix, KeepSuffix: keepSuffix, Filler: filler}
}

// Full builds a FULL strategy.
func Full(placeholder string) Strategy {
	return Strategy{Kind: StrategyFull, Placeholder: placeholder}
}

// Hash builds a HASH strategy.
func Hash(saltRef string) Strategy {
	return Strategy{Kind: StrategyHash, SaltRef: saltRef}
}

// Observe builds a report-only strategy.
func Observe() Strategy {
	return Strategy{Kind: StrategyObserve}
}

// String renders the strategy the way it appears in findings summaries.
func (s Strategy) String() string {
	switch s.Kind {
	case StrategyPartial:
		return fmt.Sprintf("PARTIAL(%d,%d,%q)", s.KeepPrefix, s.KeepSuffix, s.Filler)
	case StrategyFull:
		return "FULL"
	case StrategyHash:
		return fmt.Sprintf("HASH(%s)", s.SaltRef)
	case StrategyObserve:
		return "OBSERVE"
	default:
		return "UNKNOWN"
	}
}

// Finding is a signal promoted to actionable status with its resolved strategy.
// Findings are scoped to one record.
type Finding struct {
	FieldIndex int
	Path       string
	Category   Category
	Strategy   Strategy
	// Rule names what promoted the finding: "confirmed", "deny_list",
	// "fallback" or the name of a correlation rule.
	Rule  string
	Start int
	End   int
}

// FindingSummary is the raw-value-free view of a finding.
type FindingSummary struct {
	Path            string   `json:"path"`
	Category        Category `json:"category"`
	StrategyApplied string   `json:"strategy_applied"`
	Rule            string   `json:"rule,omitempty"`
}

// Summary is emitted with every record. It never contains raw values.
type Summary struct {
	RecordID         string           `json:"record_id"`
	Seq              uint64           `json:"seq"`
	IsPII            bool             `json:"is_pii"`
	Findings         []FindingSummary `json:"findings"`
	ParseErrors      []ParseError     `json:"parse_errors"`
	MaskingOverflows int              `json:"masking_overflows,omitempty"`
	// TruncatedFields counts values longer than the classification cap;
	// only their prefix was classified.
	TruncatedFields int `json:"truncated_fields,omitempty"`
}

// CategoryCounts returns the number of findings per category.
func (s *Summary) CategoryCounts() map[Category]int {
	counts := make(map[Category]int, len(s.Findings))
	for _, f := range s.Findings {
		counts[f.Category]++
	}
	return counts
}

// Failed reports whether the record carried a parse error.
func (s *Summary) Failed() bool {
	return len(s.ParseErrors) > 0
}
