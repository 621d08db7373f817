package streamparse

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"piigate/internal/core"
)

const (
	maxKeyBytes    = 4096
	maxNumberBytes = 256
)

type scanState uint8

const (
	scValue        scanState = iota // expecting a value
	scValueOrClose                  // after '['
	scKeyOrClose                    // after '{'
	scKey                           // after ',' inside an object
	scInKey
	scColon
	scAfterValue
	scInString
	scNumber
	scLiteral
	scDone
)

type frame struct {
	array bool
	index int
	key   string
}

// scanner is a byte-at-a-time JSON tokenizer. All state needed to resume
// after an arbitrary chunk boundary lives in this struct.
type scanner struct {
	state    scanState
	stack    []frame
	maxDepth int
	started  bool

	// string decoding, shared by keys and values
	esc     bool
	uCount  int
	uVal    rune
	inUEsc  bool
	pendHi  rune
	keyBuf  []byte
	numBuf  []byte
	lit     string
	litPos  int
	pending []byte

	emit func(Event)
}

func newScanner(maxDepth int, emit func(Event)) *scanner {
	return &scanner{maxDepth: maxDepth, emit: emit}
}

func (s *scanner) reset() {
	s.state = scValue
	s.stack = s.stack[:0]
	s.started = false
	s.esc = false
	s.inUEsc = false
	s.uCount = 0
	s.uVal = 0
	s.pendHi = 0
	s.keyBuf = s.keyBuf[:0]
	s.numBuf = s.numBuf[:0]
	s.lit = ""
	s.litPos = 0
	s.pending = s.pending[:0]
}

// release drops buffers so an abandoned stream does not pin memory.
func (s *scanner) release() {
	s.reset()
	s.stack = nil
	s.keyBuf = nil
	s.numBuf = nil
	s.pending = nil
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// unexpected names structural bytes only. Anything else may be part of a
// value and is described by class, never echoed.
func unexpected(b byte, where string) error {
	switch {
	case strings.IndexByte(`{}[]:,"`, b) >= 0:
		return fmt.Errorf("unexpected %q %s", b, where)
	case b < 0x20 || b == 0x7f:
		return fmt.Errorf("unexpected control byte 0x%02x %s", b, where)
	case b >= 0x80:
		return fmt.Errorf("unexpected non-ASCII byte %s", where)
	default:
		return fmt.Errorf("unexpected character %s", where)
	}
}

// step consumes one byte of JSON text located at off.
func (s *scanner) step(b byte, off int) error {
	switch s.state {
	case scValue, scValueOrClose:
		return s.stepValue(b, off)

	case scKeyOrClose:
		switch {
		case isSpace(b):
		case b == '}':
			s.closeContainer()
		case b == '"':
			s.beginKey()
		default:
			return unexpected(b, "where an object key was expected")
		}

	case scKey:
		switch {
		case isSpace(b):
		case b == '"':
			s.beginKey()
		default:
			return unexpected(b, "where an object key was expected")
		}

	case scInKey, scInString:
		return s.stepString(b, off)

	case scColon:
		switch {
		case isSpace(b):
		case b == ':':
			s.state = scValue
		default:
			return unexpected(b, "where ':' was expected")
		}

	case scAfterValue:
		return s.stepAfterValue(b)

	case scNumber:
		if isNumberByte(b) {
			if len(s.numBuf) >= maxNumberBytes {
				return errors.New("number literal too long")
			}
			s.numBuf = append(s.numBuf, b)
			s.pending = append(s.pending, b)
			return nil
		}
		if !validNumber(s.numBuf) {
			return fmt.Errorf("invalid number literal (%d bytes)", len(s.numBuf))
		}
		s.endField(off)
		s.state = scAfterValue
		return s.step(b, off)

	case scLiteral:
		if b != s.lit[s.litPos] {
			return fmt.Errorf("invalid literal, expected %q", s.lit)
		}
		s.pending = append(s.pending, b)
		s.litPos++
		if s.litPos == len(s.lit) {
			s.endField(off + 1)
			s.state = scAfterValue
		}

	case scDone:
		if !isSpace(b) {
			return unexpected(b, "after the end of the record")
		}
	}
	return nil
}

func (s *scanner) stepValue(b byte, off int) error {
	if isSpace(b) {
		return nil
	}
	if s.state == scValueOrClose && b == ']' {
		s.closeContainer()
		return nil
	}
	root := len(s.stack) == 0
	switch b {
	case '{', '[':
		if len(s.stack) >= s.maxDepth {
			return fmt.Errorf("nesting deeper than %d levels", s.maxDepth)
		}
		s.started = true
		s.stack = append(s.stack, frame{array: b == '['})
		if b == '{' {
			s.state = scKeyOrClose
		} else {
			s.state = scValueOrClose
		}
		return nil
	}
	if root {
		return errors.New("record root must be an object or an array")
	}
	switch {
	case b == '"':
		s.beginField(core.KindString, off)
		s.state = scInString
	case b == '-' || (b >= '0' && b <= '9'):
		s.beginField(core.KindNumber, off)
		s.numBuf = append(s.numBuf[:0], b)
		s.pending = append(s.pending, b)
		s.state = scNumber
	case b == 't' || b == 'f' || b == 'n':
		kind := core.KindBool
		switch b {
		case 't':
			s.lit = "true"
		case 'f':
			s.lit = "false"
		default:
			s.lit = "null"
			kind = core.KindNull
		}
		s.beginField(kind, off)
		s.pending = append(s.pending, b)
		s.litPos = 1
		s.state = scLiteral
	default:
		return unexpected(b, "where a value was expected")
	}
	return nil
}

func (s *scanner) stepAfterValue(b byte) error {
	if isSpace(b) {
		return nil
	}
	top := &s.stack[len(s.stack)-1]
	switch {
	case b == ',':
		if top.array {
			top.index++
			s.state = scValue
		} else {
			s.state = scKey
		}
	case b == ']' && top.array, b == '}' && !top.array:
		s.closeContainer()
	default:
		return unexpected(b, "after a value")
	}
	return nil
}

func (s *scanner) stepString(b byte, off int) error {
	if s.inUEsc {
		v, ok := hexValue(b)
		if !ok {
			return errors.New("invalid \\u escape")
		}
		s.uVal = s.uVal<<4 | v
		s.uCount++
		if s.uCount == 4 {
			s.inUEsc = false
			s.appendCodeUnit(s.uVal)
		}
		return s.checkKeyLen()
	}
	if s.esc {
		s.esc = false
		var r byte
		switch b {
		case '"', '\\', '/':
			r = b
		case 'b':
			r = '\b'
		case 'f':
			r = '\f'
		case 'n':
			r = '\n'
		case 'r':
			r = '\r'
		case 't':
			r = '\t'
		case 'u':
			s.inUEsc = true
			s.uCount = 0
			s.uVal = 0
			return nil
		default:
			return unexpected(b, "in escape sequence")
		}
		s.flushSurrogate()
		s.appendByte(r)
		return s.checkKeyLen()
	}
	switch {
	case b == '\\':
		s.esc = true
	case b == '"':
		s.flushSurrogate()
		if s.state == scInKey {
			s.stack[len(s.stack)-1].key = string(s.keyBuf)
			s.state = scColon
			return nil
		}
		s.endField(off + 1)
		s.state = scAfterValue
	case b < 0x20:
		return fmt.Errorf("control character 0x%02x in string", b)
	default:
		s.flushSurrogate()
		s.appendByte(b)
	}
	return s.checkKeyLen()
}

func (s *scanner) checkKeyLen() error {
	if s.state == scInKey && len(s.keyBuf) > maxKeyBytes {
		return fmt.Errorf("object key longer than %d bytes", maxKeyBytes)
	}
	return nil
}

func (s *scanner) appendByte(b byte) {
	if s.state == scInKey {
		s.keyBuf = append(s.keyBuf, b)
		return
	}
	s.pending = append(s.pending, b)
}

func (s *scanner) appendRune(r rune) {
	if s.state == scInKey {
		s.keyBuf = utf8.AppendRune(s.keyBuf, r)
		return
	}
	s.pending = utf8.AppendRune(s.pending, r)
}

// appendCodeUnit handles one decoded \uXXXX unit, pairing surrogates.
func (s *scanner) appendCodeUnit(u rune) {
	if s.pendHi != 0 {
		hi := s.pendHi
		s.pendHi = 0
		if utf16.IsSurrogate(u) && u >= 0xDC00 {
			s.appendRune(utf16.DecodeRune(hi, u))
			return
		}
		s.appendRune(utf8.RuneError)
	}
	switch {
	case u >= 0xD800 && u < 0xDC00:
		s.pendHi = u
	case u >= 0xDC00 && u < 0xE000:
		s.appendRune(utf8.RuneError)
	default:
		s.appendRune(u)
	}
}

func (s *scanner) flushSurrogate() {
	if s.pendHi != 0 {
		s.pendHi = 0
		s.appendRune(utf8.RuneError)
	}
}

func (s *scanner) beginKey() {
	s.keyBuf = s.keyBuf[:0]
	s.state = scInKey
}

func (s *scanner) beginField(kind core.ValueKind, off int) {
	s.pending = s.pending[:0]
	s.emit(Event{Kind: EventFieldStart, Path: s.path(), Value: kind, Offset: off})
}

func (s *scanner) endField(end int) {
	s.flushPending()
	s.emit(Event{Kind: EventFieldEnd, Offset: end})
}

// flushPending emits the decoded bytes gathered since the last flush.
func (s *scanner) flushPending() {
	if len(s.pending) == 0 {
		return
	}
	data := make([]byte, len(s.pending))
	copy(data, s.pending)
	s.pending = s.pending[:0]
	s.emit(Event{Kind: EventValueChunk, Data: data})
}

// inValue reports whether a scalar value is being scanned.
func (s *scanner) inValue() bool {
	return s.state == scInString || s.state == scNumber || s.state == scLiteral
}

func (s *scanner) closeContainer() {
	s.stack = s.stack[:len(s.stack)-1]
	if len(s.stack) == 0 {
		s.state = scDone
		return
	}
	s.state = scAfterValue
}

func (s *scanner) path() core.Path {
	p := make(core.Path, len(s.stack))
	for i, f := range s.stack {
		if f.array {
			p[i] = core.IndexElem(f.index)
		} else {
			p[i] = core.KeyElem(f.key)
		}
	}
	return p
}

// finish is called when the record's JSON text ends.
func (s *scanner) finish() error {
	switch {
	case s.state == scDone:
		return nil
	case !s.started:
		return errors.New("empty record")
	case s.state == scInString || s.state == scInKey:
		return errors.New("unterminated string at end of record")
	default:
		return fmt.Errorf("unterminated record: %d unclosed container(s)", len(s.stack))
	}
}

func isNumberByte(b byte) bool {
	return (b >= '0' && b <= '9') || b == '-' || b == '+' || b == '.' || b == 'e' || b == 'E'
}

// validNumber checks the JSON number grammar:
// -? (0 | [1-9][0-9]*) (. [0-9]+)? ([eE] [+-]? [0-9]+)?
func validNumber(n []byte) bool {
	i := 0
	if i < len(n) && n[i] == '-' {
		i++
	}
	if i >= len(n) {
		return false
	}
	switch {
	case n[i] == '0':
		i++
	case n[i] >= '1' && n[i] <= '9':
		for i < len(n) && n[i] >= '0' && n[i] <= '9' {
			i++
		}
	default:
		return false
	}
	if i < len(n) && n[i] == '.' {
		i++
		start := i
		for i < len(n) && n[i] >= '0' && n[i] <= '9' {
			i++
		}
		if i == start {
			return false
		}
	}
	if i < len(n) && (n[i] == 'e' || n[i] == 'E') {
		i++
		if i < len(n) && (n[i] == '+' || n[i] == '-') {
			i++
		}
		start := i
		for i < len(n) && n[i] >= '0' && n[i] <= '9' {
			i++
		}
		if i == start {
			return false
		}
	}
	return i == len(n)
}

func hexValue(b byte) (rune, bool) {
	switch {
	case b >= '0' && b <= '9':
		return rune(b - '0'), true
	case b >= 'a' && b <= 'f':
		return rune(b-'a') + 10, true
	case b >= 'A' && b <= 'F':
		return rune(b-'A') + 10, true
	}
	return 0, false
}
