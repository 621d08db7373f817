// Package extract assembles value chunks from the streaming parser into
// complete leaf fields.
package extract

import (
	"piigate/internal/core"
	"piigate/internal/streamparse"
)

// DefaultMaxValueBytes caps the bytes buffered for one value.
const DefaultMaxValueBytes = 64 << 10

// Extractor holds at most one in-flight value. It is not safe for concurrent use.
type Extractor struct {
	maxValue  int
	active    bool
	seq       uint64
	path      core.Path
	kind      core.ValueKind
	start     int
	buf       []byte
	truncated bool
}

// New creates an Extractor. maxValueBytes <= 0 selects the default.
func New(maxValueBytes int) *Extractor {
	if maxValueBytes <= 0 {
		maxValueBytes = DefaultMaxValueBytes
	}
	return &Extractor{maxValue: maxValueBytes}
}

// Handle consumes one event and returns a field when the event completes one.
func (x *Extractor) Handle(ev streamparse.Event) (core.Field, bool) {
	switch ev.Kind {
	case streamparse.EventFieldStart:
		x.active = true
		x.seq = ev.Seq
		x.path = ev.Path
		x.kind = ev.Value
		x.start = ev.Offset
		x.buf = x.buf[:0]
		x.truncated = false

	case streamparse.EventValueChunk:
		if !x.active {
			return core.Field{}, false
		}
		room := x.maxValue - len(x.buf)
		if room <= 0 {
			x.truncated = true
			return core.Field{}, false
		}
		data := ev.Data
		if len(data) > room {
			data = data[:room]
			x.truncated = true
		}
		x.buf = append(x.buf, data...)

	case streamparse.EventFieldEnd:
		if !x.active {
			return core.Field{}, false
		}
		f := core.Field{
			RecordSeq: x.seq,
			Path:      x.path,
			Value:     string(x.buf),
			Kind:      x.kind,
			Start:     x.start,
			End:       ev.Offset,
			Truncated: x.truncated,
		}
		x.active = false
		x.path = nil
		return f, true

	case streamparse.EventRecordStart, streamparse.EventRecordEnd, streamparse.EventParseError:
		x.Reset()
	}
	return core.Field{}, false
}

// Pending reports the field in flight, if any.
func (x *Extractor) Pending() (core.Path, int, bool) {
	if !x.active {
		return nil, 0, false
	}
	return x.path, x.start, true
}

// Reset drops the in-flight value.
func (x *Extractor) Reset() {
	x.active = false
	x.path = nil
	x.buf = x.buf[:0]
	x.truncated = false
}

// Release drops the value buffer entirely.
func (x *Extractor) Release() {
	x.Reset()
	x.buf = nil
}
