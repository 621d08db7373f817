package core

import (
	"strconv"
	"strings"
)

// PathElem is one step into a JSON document: an object key or an array index.
type PathElem struct {
	Key     string
	Index   int
	IsIndex bool
}

// KeyElem returns an object key step.
func KeyElem(key string) PathElem { return PathElem{Key: key} }

// IndexElem returns an array index step.
func IndexElem(i int) PathElem { return PathElem{Index: i, IsIndex: true} }

// Path locates a leaf inside a record, e.g. customer.contacts[1].email.
type Path []PathElem

func (p Path) String() string {
	var b strings.Builder
	for i, e := range p {
		if e.IsIndex {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(e.Index))
			b.WriteByte(']')
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(e.Key)
	}
	return b.String()
}

// Leaf returns the innermost object key, or "" when the path has none.
func (p Path) Leaf() string {
	for i := len(p) - 1; i >= 0; i-- {
		if !p[i].IsIndex {
			return p[i].Key
		}
	}
	return ""
}

// Clone returns a copy that does not alias p.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	out := make(Path, len(p))
	copy(out, p)
	return out
}
