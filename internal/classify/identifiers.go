package classify

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"

	"piigate/internal/core"
)

type passportClassifier struct {
	patterns []*regexp.Regexp
}

func newPassport(cfg PassportConfig) (*passportClassifier, error) {
	c := &passportClassifier{}
	for i, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, core.NewConfigError(fmt.Sprintf("classifiers.passport.patterns[%d]", i), "%v", err)
		}
		c.patterns = append(c.patterns, re)
	}
	return c, nil
}

func (c *passportClassifier) Category() core.Category { return core.CategoryPassport }

func (c *passportClassifier) Classify(_ core.Path, value string) (core.Confidence, string, bool) {
	if len(value) > 32 {
		return 0, "", false
	}
	upper := strings.ToUpper(value)
	for i, re := range c.patterns {
		if re.MatchString(upper) {
			return core.Contextual, fmt.Sprintf("pattern:passport[%d]", i), true
		}
	}
	return 0, "", false
}

type upiClassifier struct {
	providers map[string]struct{}
}

func newUPI(cfg UPIConfig) (*upiClassifier, error) {
	c := &upiClassifier{providers: make(map[string]struct{}, len(cfg.Providers))}
	for i, p := range cfg.Providers {
		p = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(p, "@")))
		if p == "" || strings.ContainsAny(p, "@. ") {
			return nil, core.NewConfigError(fmt.Sprintf("classifiers.upi.providers[%d]", i), "%q is not a provider handle", cfg.Providers[i])
		}
		c.providers[p] = struct{}{}
	}
	return c, nil
}

func (c *upiClassifier) Category() core.Category { return core.CategoryUPI }

func (c *upiClassifier) Classify(_ core.Path, value string) (core.Confidence, string, bool) {
	at := strings.IndexByte(value, '@')
	if at < 2 || at != strings.LastIndexByte(value, '@') || at > 256 {
		return 0, "", false
	}
	for i := 0; i < at; i++ {
		ch := value[i]
		if !isAlnum(ch) && ch != '.' && ch != '_' && ch != '-' {
			return 0, "", false
		}
	}
	if _, ok := c.providers[strings.ToLower(value[at+1:])]; !ok {
		return 0, "", false
	}
	return core.Confirmed, "suffix:upi_provider", true
}

type emailClassifier struct {
	maxLocal  int
	maxDomain int
}

func newEmail(cfg EmailConfig) *emailClassifier {
	return &emailClassifier{maxLocal: cfg.MaxLocalLength, maxDomain: cfg.MaxDomainLength}
}

func (c *emailClassifier) Category() core.Category { return core.CategoryEmail }

func (c *emailClassifier) Classify(_ core.Path, value string) (core.Confidence, string, bool) {
	at := strings.LastIndexByte(value, '@')
	if at < 1 {
		return 0, "", false
	}
	local, domain := value[:at], value[at+1:]
	if len(local) > c.maxLocal || !validLocalPart(local) {
		return 0, "", false
	}
	if len(domain) > c.maxDomain || !validDomain(domain) {
		return 0, "", false
	}
	return core.Confirmed, "grammar:addr_spec", true
}

func validLocalPart(s string) bool {
	if s == "" || s[0] == '.' || s[len(s)-1] == '.' || strings.Contains(s, "..") {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if isAlnum(ch) || strings.IndexByte(".!#$%&'*+/=?^_`{|}~-", ch) >= 0 {
			continue
		}
		return false
	}
	return true
}

func validDomain(s string) bool {
	labels := strings.Split(s, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if l == "" || len(l) > 63 || l[0] == '-' || l[len(l)-1] == '-' {
			return false
		}
		for i := 0; i < len(l); i++ {
			if !isAlnum(l[i]) && l[i] != '-' {
				return false
			}
		}
	}
	tld := labels[len(labels)-1]
	if len(tld) < 2 {
		return false
	}
	for i := 0; i < len(tld); i++ {
		if !isAlpha(tld[i]) {
			return false
		}
	}
	return true
}

type ipClassifier struct{}

func (ipClassifier) Category() core.Category { return core.CategoryIP }

func (ipClassifier) Classify(_ core.Path, value string) (core.Confidence, string, bool) {
	if len(value) > 64 || !strings.ContainsAny(value, ".:") {
		return 0, "", false
	}
	addr, err := netip.ParseAddr(value)
	if err != nil {
		return 0, "", false
	}
	if addr.Is4() {
		return core.Confirmed, "literal:ipv4", true
	}
	return core.Confirmed, "literal:ipv6", true
}

func isAlpha(b byte) bool { return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') }

func isAlnum(b byte) bool { return isAlpha(b) || isDigit(b) }
