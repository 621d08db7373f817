package classify

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"piigate/internal/core"
)

type nameClassifier struct {
	minTokens int
	maxTokens int
	maxLength int
	keys      map[string]struct{}
	stopwords map[string]struct{}
}

func newName(cfg NameConfig) *nameClassifier {
	c := &nameClassifier{
		minTokens: cfg.MinTokens,
		maxTokens: cfg.MaxTokens,
		maxLength: cfg.MaxLength,
		keys:      make(map[string]struct{}, len(cfg.Keys)),
		stopwords: make(map[string]struct{}, len(cfg.Stopwords)),
	}
	for _, k := range cfg.Keys {
		c.keys[strings.ToLower(k)] = struct{}{}
	}
	for _, w := range cfg.Stopwords {
		c.stopwords[strings.ToLower(w)] = struct{}{}
	}
	return c
}

func (c *nameClassifier) Category() core.Category { return core.CategoryName }

// Classify matches sequences of capitalised words. A single word is accepted
// only under a name-like key. Names are always contextual.
func (c *nameClassifier) Classify(path core.Path, value string) (core.Confidence, string, bool) {
	if len(value) > c.maxLength {
		return 0, "", false
	}
	tokens := strings.Fields(value)
	_, nameKey := c.keys[strings.ToLower(path.Leaf())]

	minTokens := c.minTokens
	if nameKey {
		minTokens = 1
	}
	if len(tokens) < minTokens || len(tokens) > c.maxTokens {
		return 0, "", false
	}

	words := 0
	for _, tok := range tokens {
		switch {
		case isInitial(tok):
		case c.isNameWord(tok):
			words++
		default:
			return 0, "", false
		}
	}
	if words == 0 {
		return 0, "", false
	}
	if nameKey {
		return core.Contextual, "key:" + strings.ToLower(path.Leaf()), true
	}
	return core.Contextual, "pattern:capitalised_words", true
}

// isNameWord accepts an uppercase letter followed by lowercase letters,
// apostrophes or hyphens.
func (c *nameClassifier) isNameWord(tok string) bool {
	if _, stop := c.stopwords[strings.ToLower(tok)]; stop {
		return false
	}
	first, size := utf8.DecodeRuneInString(tok)
	if !unicode.IsUpper(first) || size == len(tok) {
		return false
	}
	for _, r := range tok[size:] {
		if !unicode.IsLower(r) && r != '\'' && r != '-' {
			return false
		}
	}
	return true
}

// isInitial accepts "R." style initials.
func isInitial(tok string) bool {
	r, size := utf8.DecodeRuneInString(tok)
	return unicode.IsUpper(r) && len(tok) == size+1 && tok[size] == '.'
}

type addressClassifier struct {
	pinDigits int
}

func newAddress(cfg AddressConfig) *addressClassifier {
	return &addressClassifier{pinDigits: cfg.PinDigits}
}

func (c *addressClassifier) Category() core.Category { return core.CategoryAddress }

// Classify looks for a street number, a comma separator and a postal index
// number: a standalone run of exactly pinDigits digits not starting with 0.
func (c *addressClassifier) Classify(_ core.Path, value string) (core.Confidence, string, bool) {
	if !strings.Contains(value, ",") || len(value) < c.pinDigits+4 {
		return 0, "", false
	}
	pin := false
	for i := 0; i < len(value); {
		if !isDigit(value[i]) {
			i++
			continue
		}
		j := i
		for j < len(value) && isDigit(value[j]) {
			j++
		}
		if j-i == c.pinDigits && value[i] != '0' {
			pin = true
		}
		i = j
	}
	if !pin {
		return 0, "", false
	}
	letters := false
	for _, r := range value {
		if unicode.IsLetter(r) {
			letters = true
			break
		}
	}
	if !letters {
		return 0, "", false
	}
	return core.Contextual, "pattern:postal_address", true
}
