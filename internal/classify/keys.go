package classify

import (
	"fmt"
	"strings"

	"piigate/internal/core"
)

// KeyHint marks the values under a leaf key as a category whatever they
// look like. Confirmed hints stand alone; the others only count towards
// correlation.
type KeyHint struct {
	Key       string        `yaml:"key" json:"key"`
	Category  core.Category `yaml:"category" json:"category"`
	Confirmed bool          `yaml:"confirmed,omitempty" json:"confirmed,omitempty"`
}

// DefaultKeyHints covers the field names Indian KYC exports use for
// identifiers, plus device identifiers that pair with other quasi-identifiers.
func DefaultKeyHints() []KeyHint {
	return []KeyHint{
		{Key: "phone", Category: core.CategoryPhone, Confirmed: true},
		{Key: "mobile", Category: core.CategoryPhone, Confirmed: true},
		{Key: "aadhar", Category: core.CategoryAadhaar, Confirmed: true},
		{Key: "aadhaar", Category: core.CategoryAadhaar, Confirmed: true},
		{Key: "passport", Category: core.CategoryPassport, Confirmed: true},
		{Key: "upi_id", Category: core.CategoryUPI, Confirmed: true},
		{Key: "device_id", Category: core.CategoryIP},
		{Key: "ip_address", Category: core.CategoryIP},
	}
}

func compileKeyHints(hints []KeyHint, cfg Config) (map[string]KeyHint, error) {
	out := make(map[string]KeyHint, len(hints))
	for i, h := range hints {
		field := fmt.Sprintf("classifiers.key_hints[%d]", i)
		key := strings.ToLower(strings.TrimSpace(h.Key))
		if key == "" {
			return nil, core.NewConfigError(field, "key is empty")
		}
		if !h.Category.Valid() || h.Category == core.CategoryGeneric {
			return nil, core.NewConfigError(field, "unknown category %q", h.Category)
		}
		if _, dup := out[key]; dup {
			return nil, core.NewConfigError(field, "duplicate key %q", key)
		}
		if cfg.disabled(h.Category) {
			continue
		}
		h.Key = key
		out[key] = h
	}
	return out, nil
}

// applyKeyHint adds the hint's signal, or raises the confidence of a signal
// the value classifiers already gave the same category. A twelve-digit value
// failing the Verhoeff check never becomes an Aadhaar signal; under an
// Aadhaar key it is reported as generic instead.
func applyKeyHint(out []core.Signal, h KeyHint, path, value string) []core.Signal {
	if h.Category == core.CategoryAadhaar {
		if digits, ok := aadhaarDigits(value); ok && !verhoeffValid(digits) {
			h.Category = core.CategoryGeneric
		}
	}
	conf := core.Contextual
	if h.Confirmed {
		conf = core.Confirmed
	}
	for i := range out {
		if out[i].Category != h.Category {
			continue
		}
		if out[i].Confidence < conf {
			out[i].Confidence = conf
			out[i].Evidence = "key:" + h.Key
		}
		return out
	}
	return append(out, core.Signal{
		Path:       path,
		Category:   h.Category,
		Confidence: conf,
		Evidence:   "key:" + h.Key,
	})
}
