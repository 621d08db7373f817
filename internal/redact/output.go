package redact

import (
	"bytes"

	"piigate/internal/core"
	"piigate/internal/streamparse"
)

// ErrorMarker prefixes the output of records that could not be processed.
const ErrorMarker = "[PII_PARSE_ERROR]"

// Output is one unit of redacted output, in input order.
type Output struct {
	Seq      uint64
	RecordID string
	// Data is written in place of the input bytes the output stands for,
	// line terminator included.
	Data    []byte
	Summary *core.Summary
	// Failed is set when Data carries the error marker.
	Failed bool
	// Verbatim outputs carry bytes that belong to no record (CSV header,
	// blank lines). They have no summary.
	Verbatim bool
}

// Emitter receives outputs. An error aborts the stream.
type Emitter interface {
	Emit(out *Output) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(out *Output) error

func (f EmitterFunc) Emit(out *Output) error { return f(out) }

// frame rebuilds the input row around a new JSON payload.
func frame(format streamparse.Format, rec *streamparse.RawRecord, payload []byte, eol []byte) []byte {
	start, end := rec.DataStart, rec.DataEnd
	start = min(start, len(rec.Raw))
	end = min(max(end, start), len(rec.Raw))

	head := rec.Raw[:start]
	if rec.Partial {
		head = bytes.TrimRight(head, "\r\n")
	}

	out := make([]byte, 0, len(rec.Raw)+len(payload)-(end-start)+4)
	out = append(out, head...)
	if format == streamparse.FormatCSV {
		if rec.Partial && start == len(rec.Raw) && len(head) > 0 && head[len(head)-1] != ',' {
			// the row failed before its data cell began
			out = append(out, ',')
		}
		out = appendCSVCell(out, payload, rec.Quoted)
	} else {
		out = append(out, payload...)
	}
	if !rec.Partial {
		return append(out, rec.Raw[end:]...)
	}
	// partial records lose the rest of the row
	return append(out, eol...)
}

// appendCSVCell writes a data cell. Quoted cells stay quoted; unquoted cells
// are quoted only when the new content needs it.
func appendCSVCell(dst, cell []byte, quoted bool) []byte {
	if !quoted && !bytes.ContainsAny(cell, ",\r\n") {
		return append(dst, cell...)
	}
	dst = append(dst, '"')
	for _, b := range cell {
		if b == '"' {
			dst = append(dst, '"')
		}
		dst = append(dst, b)
	}
	return append(dst, '"')
}

func markerText(partial []byte) []byte {
	if len(partial) == 0 {
		return []byte(ErrorMarker)
	}
	out := make([]byte, 0, len(ErrorMarker)+1+len(partial))
	out = append(out, ErrorMarker...)
	out = append(out, ' ')
	return append(out, partial...)
}

func newSummary(id string, seq uint64) *core.Summary {
	return &core.Summary{
		RecordID:    id,
		Seq:         seq,
		Findings:    []core.FindingSummary{},
		ParseErrors: []core.ParseError{},
	}
}
