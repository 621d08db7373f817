package streamparse

import (
	"piigate/internal/core"
)

// EventKind identifies a structural event.
type EventKind uint8

const (
	EventRecordStart EventKind = iota + 1
	EventFieldStart
	EventValueChunk
	EventFieldEnd
	EventRecordEnd
	EventParseError
	// EventVerbatim carries bytes that belong to no record (CSV header,
	// blank lines). They are passed through unchanged.
	EventVerbatim
)

func (k EventKind) String() string {
	switch k {
	case EventRecordStart:
		return "RecordStart"
	case EventFieldStart:
		return "FieldStart"
	case EventValueChunk:
		return "ValueChunk"
	case EventFieldEnd:
		return "FieldEnd"
	case EventRecordEnd:
		return "RecordEnd"
	case EventParseError:
		return "ParseError"
	case EventVerbatim:
		return "Verbatim"
	default:
		return "Unknown"
	}
}

// Event is one structural event. Which fields are set depends on Kind:
//
//	RecordStart: Seq
//	FieldStart:  Seq, Path, Value, Offset (first byte of the value token)
//	ValueChunk:  Seq, Data (decoded string content, or raw number/literal text)
//	FieldEnd:    Seq, Offset (one past the last byte of the value token)
//	RecordEnd:   Seq, Record
//	ParseError:  Seq, Err, Record (partial, nil for stream-level errors)
//	Verbatim:    Data
//
// Offsets are relative to the record's JSON text.
type Event struct {
	Kind   EventKind
	Seq    uint64
	Path   core.Path
	Value  core.ValueKind
	Offset int
	Data   []byte
	Record *RawRecord
	Err    *core.ParseError
}

// RawRecord is the byte-level view of one record.
type RawRecord struct {
	Seq uint64
	// ID is the CSV record_id column, or the sequence number for NDJSON.
	ID string
	// Raw holds the record's bytes exactly as delivered, terminator included.
	Raw []byte
	// JSON is the record's JSON text. For NDJSON it aliases Raw; for CSV it is
	// the data column with quoting removed.
	JSON []byte
	// DataStart and DataEnd delimit the data column inside Raw, quotes included.
	DataStart int
	DataEnd   int
	// Quoted reports whether the data column was a quoted CSV field.
	Quoted bool
	// Partial is set on records carried by a ParseError event.
	Partial bool
}
