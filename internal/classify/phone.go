package classify

import (
	"strings"

	"piigate/internal/core"
)

type phoneClassifier struct {
	cc       string
	national int
	leading  string
	min, max int
}

func newPhone(cfg PhoneConfig) (*phoneClassifier, error) {
	for i := 0; i < len(cfg.CountryCode); i++ {
		if !isDigit(cfg.CountryCode[i]) {
			return nil, core.NewConfigError("classifiers.phone.country_code", "%q is not numeric", cfg.CountryCode)
		}
	}
	for i := 0; i < len(cfg.LeadingDigits); i++ {
		if !isDigit(cfg.LeadingDigits[i]) {
			return nil, core.NewConfigError("classifiers.phone.leading_digits", "%q is not numeric", cfg.LeadingDigits)
		}
	}
	if cfg.NationalLength < 4 || cfg.MinDigits < 4 || cfg.MaxDigits < cfg.MinDigits {
		return nil, core.NewConfigError("classifiers.phone", "digit bounds national=%d min=%d max=%d are invalid",
			cfg.NationalLength, cfg.MinDigits, cfg.MaxDigits)
	}
	return &phoneClassifier{
		cc:       cfg.CountryCode,
		national: cfg.NationalLength,
		leading:  cfg.LeadingDigits,
		min:      cfg.MinDigits,
		max:      cfg.MaxDigits,
	}, nil
}

func (c *phoneClassifier) Category() core.Category { return core.CategoryPhone }

func (c *phoneClassifier) Classify(_ core.Path, value string) (core.Confidence, string, bool) {
	// dotted quads belong to the IP classifier
	if strings.Count(value, ".") >= 3 {
		return 0, "", false
	}
	digits, plus, ok := phoneDigits(value, c.max+2)
	if !ok || len(digits) < c.min || len(digits) > c.max {
		return 0, "", false
	}

	national := ""
	switch {
	case plus:
		if c.cc != "" && strings.HasPrefix(digits, c.cc) && len(digits) == len(c.cc)+c.national {
			national = digits[len(c.cc):]
		}
	case len(digits) == c.national:
		national = digits
	case len(digits) == c.national+1 && digits[0] == '0':
		national = digits[1:]
	case c.cc != "" && len(digits) == len(c.cc)+c.national && strings.HasPrefix(digits, c.cc):
		national = digits[len(c.cc):]
	}

	if national != "" && strings.IndexByte(c.leading, national[0]) >= 0 {
		return core.Confirmed, "pattern:national_mobile", true
	}
	return core.Contextual, "pattern:digit_run", true
}

// phoneDigits strips the separators phone numbers are commonly written with.
// Any other character disqualifies the value.
func phoneDigits(value string, limit int) (digits string, plus bool, ok bool) {
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		ch := value[i]
		switch {
		case isDigit(ch):
			if b.Len() >= limit {
				return "", false, false
			}
			b.WriteByte(ch)
		case ch == '+':
			if i != 0 {
				return "", false, false
			}
			plus = true
		case ch == ' ' || ch == '-' || ch == '.' || ch == '(' || ch == ')':
		default:
			return "", false, false
		}
	}
	return b.String(), plus, true
}
