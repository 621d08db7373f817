package ruleset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"piigate/internal/core"
)

type segKind uint8

const (
	segKey segKind = iota
	segAnyKey
	segIndex
	segAnyIndex
)

type segment struct {
	kind  segKind
	key   string
	index int
}

func (s segment) match(e core.PathElem) bool {
	switch s.kind {
	case segKey:
		return !e.IsIndex && e.Key == s.key
	case segAnyKey:
		return !e.IsIndex
	case segIndex:
		return e.IsIndex && e.Index == s.index
	default:
		return e.IsIndex
	}
}

// Pattern matches record paths. Supported forms:
//
//	customer.email          exact
//	customer.*.email        any single key
//	contacts[*].phone       any array index
//	**.email                any prefix
type Pattern struct {
	raw       string
	anyPrefix bool
	segs      []segment
}

// ParsePattern compiles a path pattern.
func ParsePattern(s string) (Pattern, error) {
	raw := strings.TrimSpace(s)
	p := Pattern{raw: raw}
	rest := raw
	if strings.HasPrefix(rest, "**.") {
		p.anyPrefix = true
		rest = rest[3:]
	}
	if rest == "" {
		return Pattern{}, errors.New("empty path pattern")
	}

	i := 0
	expectKey := rest[0] != '['
	for i < len(rest) {
		if rest[i] == '[' {
			end := strings.IndexByte(rest[i:], ']')
			if end < 0 {
				return Pattern{}, fmt.Errorf("unclosed '[' in %q", raw)
			}
			inner := rest[i+1 : i+end]
			if inner == "*" {
				p.segs = append(p.segs, segment{kind: segAnyIndex})
			} else {
				n, err := strconv.Atoi(inner)
				if err != nil || n < 0 {
					return Pattern{}, fmt.Errorf("invalid index %q in %q", inner, raw)
				}
				p.segs = append(p.segs, segment{kind: segIndex, index: n})
			}
			i += end + 1
			if i < len(rest) {
				switch rest[i] {
				case '.':
					i++
					expectKey = true
					if i == len(rest) {
						return Pattern{}, fmt.Errorf("trailing '.' in %q", raw)
					}
				case '[':
				default:
					return Pattern{}, fmt.Errorf("unexpected %q after ']' in %q", rest[i], raw)
				}
			}
			continue
		}
		if !expectKey {
			return Pattern{}, fmt.Errorf("unexpected %q in %q", rest[i], raw)
		}
		j := i
		for j < len(rest) && rest[j] != '.' && rest[j] != '[' {
			j++
		}
		key := rest[i:j]
		switch key {
		case "":
			return Pattern{}, fmt.Errorf("empty key in %q", raw)
		case "**":
			return Pattern{}, fmt.Errorf("'**' is only supported as a leading '**.' in %q", raw)
		case "*":
			p.segs = append(p.segs, segment{kind: segAnyKey})
		default:
			p.segs = append(p.segs, segment{kind: segKey, key: key})
		}
		i = j
		expectKey = false
		if i < len(rest) && rest[i] == '.' {
			i++
			expectKey = true
			if i == len(rest) {
				return Pattern{}, fmt.Errorf("trailing '.' in %q", raw)
			}
		}
	}
	return p, nil
}

// Match reports whether path matches the pattern.
func (p Pattern) Match(path core.Path) bool {
	if len(path) < len(p.segs) || (!p.anyPrefix && len(path) != len(p.segs)) {
		return false
	}
	off := len(path) - len(p.segs)
	for i, s := range p.segs {
		if !s.match(path[off+i]) {
			return false
		}
	}
	return true
}

// Covers reports whether the pattern matches path or one of its ancestors,
// so a pattern naming an object or array applies to every leaf inside it.
func (p Pattern) Covers(path core.Path) bool {
	for n := len(path); n >= len(p.segs) && n > 0; n-- {
		if p.Match(path[:n]) {
			return true
		}
	}
	return false
}

func (p Pattern) String() string { return p.raw }
