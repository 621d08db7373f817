// Package streamparse turns a stream of byte chunks into structural record
// events. Chunks may be split anywhere: inside string literals, escape
// sequences, numbers or CSV quoting. The parser keeps only the state needed
// to resume plus the bytes of the record in flight.
package streamparse

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"piigate/internal/core"
)

// Format is the framing of the input stream.
type Format uint8

const (
	// FormatNDJSON is one JSON document per line.
	FormatNDJSON Format = iota + 1
	// FormatCSV is CSV rows with a JSON document in one column.
	FormatCSV
)

func (f Format) String() string {
	switch f {
	case FormatNDJSON:
		return "ndjson"
	case FormatCSV:
		return "csv"
	default:
		return "unknown"
	}
}

// ParseFormat maps a configured format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ndjson", "jsonl", "json":
		return FormatNDJSON, nil
	case "csv":
		return FormatCSV, nil
	default:
		return 0, fmt.Errorf("unknown stream format %q (valid: ndjson, csv)", s)
	}
}

const (
	DefaultMaxRecordBytes = 1 << 20
	DefaultMaxDepth       = 64
	DefaultIDColumn       = "record_id"
	DefaultDataColumn     = "data_json"

	maxHeaderBytes = 64 << 10
	maxCellBytes   = 1024
)

// Options configures a Parser.
type Options struct {
	Format Format
	// CSVHeader indicates that the first CSV row names the columns. Without a
	// header the first column is the record ID and the second the payload.
	CSVHeader      bool
	IDColumn       string
	DataColumn     string
	MaxRecordBytes int
	MaxDepth       int
}

// DefaultOptions returns options for the given format with default limits.
func DefaultOptions(f Format) Options {
	return Options{
		Format:         f,
		CSVHeader:      true,
		IDColumn:       DefaultIDColumn,
		DataColumn:     DefaultDataColumn,
		MaxRecordBytes: DefaultMaxRecordBytes,
		MaxDepth:       DefaultMaxDepth,
	}
}

func (o Options) withDefaults() Options {
	if o.Format == 0 {
		o.Format = FormatNDJSON
	}
	if o.IDColumn == "" {
		o.IDColumn = DefaultIDColumn
	}
	if o.DataColumn == "" {
		o.DataColumn = DefaultDataColumn
	}
	if o.MaxRecordBytes <= 0 {
		o.MaxRecordBytes = DefaultMaxRecordBytes
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	return o
}

type mode uint8

const (
	modeIdle mode = iota
	modeRecord
	modeSkip
	modeTerminated
)

type csvState uint8

const (
	csvFieldStart csvState = iota
	csvUnquoted
	csvQuoted
	csvQuoteInQuoted
)

// Parser is a push-driven incremental parser for one stream.
// It is not safe for concurrent use.
type Parser struct {
	opts   Options
	scan   *scanner
	events []Event
	mode   mode
	closed bool
	seq    uint64
	offset int64

	raw  []byte
	json []byte

	// CSV framing
	csv        csvState
	pendingCR  bool
	crAt       int
	header     bool
	headerCols []string
	cell       []byte
	col        int
	idCol      int
	dataCol    int
	id         []byte
	rowStarted bool
	rowFailed  bool
	dataActive bool
	dataSeen   bool
	dataStart  int
	dataEnd    int
	quoted     bool
}

// New creates a Parser.
func New(opts Options) *Parser {
	p := &Parser{opts: opts.withDefaults()}
	p.scan = newScanner(p.opts.MaxDepth, p.emit)
	p.scan.reset()
	if p.opts.Format == FormatCSV {
		if p.opts.CSVHeader {
			p.header = true
		} else {
			p.idCol, p.dataCol = 0, 1
		}
	}
	return p
}

// Format returns the framing the parser was built for.
func (p *Parser) Format() Format { return p.opts.Format }

// Feed consumes one chunk and returns the events it completed. The returned
// slice is only valid until the next call.
func (p *Parser) Feed(chunk []byte) ([]Event, error) {
	if p.closed {
		return nil, core.ErrStreamClosed
	}
	if p.mode == modeTerminated {
		return nil, core.ErrStreamTerminated
	}
	p.events = p.events[:0]
	for _, b := range chunk {
		if p.opts.Format == FormatCSV {
			p.stepCSV(b)
		} else {
			p.stepNDJSON(b)
		}
		p.offset++
		if p.mode == modeTerminated {
			break
		}
	}
	if p.mode != modeTerminated && p.scan.inValue() {
		p.scan.flushPending()
	}
	return p.events, nil
}

// Close signals end of input. A record left open is reported as a
// non-recoverable ParseError.
func (p *Parser) Close() ([]Event, error) {
	if p.closed {
		return nil, core.ErrStreamClosed
	}
	p.closed = true
	if p.mode == modeTerminated {
		return nil, nil
	}
	p.events = p.events[:0]
	if p.opts.Format == FormatCSV {
		p.closeCSV()
	} else {
		p.closeNDJSON()
	}
	return p.events, nil
}

// Reset drops every buffer held by the parser. The parser is unusable afterwards.
func (p *Parser) Reset() {
	p.closed = true
	p.raw = nil
	p.json = nil
	p.cell = nil
	p.id = nil
	p.headerCols = nil
	p.events = nil
	p.scan.release()
}

func (p *Parser) emit(ev Event) {
	if ev.Kind != EventVerbatim {
		ev.Seq = p.seq
	}
	p.events = append(p.events, ev)
}

func (p *Parser) emitVerbatim() {
	if len(p.raw) == 0 {
		return
	}
	p.emit(Event{Kind: EventVerbatim, Data: p.raw})
	p.raw = nil
}

func (p *Parser) beginRecord() {
	p.seq++
	p.scan.reset()
	p.mode = modeRecord
	p.emit(Event{Kind: EventRecordStart})
}

// reportError emits a ParseError carrying whatever of the record was seen.
func (p *Parser) reportError(reason string, recoverable bool) {
	ev := Event{
		Kind: EventParseError,
		Err: &core.ParseError{
			Reason:      reason,
			Recoverable: recoverable,
			Offset:      p.offset,
			Seq:         p.seq,
		},
	}
	if p.mode == modeRecord || p.rowStarted && !p.header {
		ev.Record = p.partialRecord()
	}
	p.emit(ev)
	p.scan.reset()
	p.raw = nil
	p.json = nil
	if !recoverable {
		p.mode = modeTerminated
	}
}

// terminate emits a non-recoverable ParseError that carries no record.
func (p *Parser) terminate(reason string) {
	p.emit(Event{
		Kind: EventParseError,
		Err: &core.ParseError{
			Reason: reason,
			Offset: p.offset,
			Seq:    p.seq,
		},
	})
	p.scan.reset()
	p.raw = nil
	p.json = nil
	p.mode = modeTerminated
}

func (p *Parser) partialRecord() *RawRecord {
	rec := &RawRecord{Seq: p.seq, Raw: p.raw, Partial: true}
	if p.opts.Format == FormatCSV {
		rec.ID = p.recordID()
		rec.JSON = p.json
		rec.DataStart = p.dataStart
		rec.DataEnd = len(p.raw)
		if p.dataSeen {
			rec.DataEnd = p.dataEnd
		}
		rec.Quoted = p.quoted
		if !p.dataActive && !p.dataSeen {
			rec.DataStart = len(p.raw)
		}
		return rec
	}
	rec.ID = strconv.FormatUint(p.seq, 10)
	rec.JSON = bytes.TrimSuffix(p.raw, []byte{'\n'})
	rec.DataEnd = len(rec.JSON)
	return rec
}

// --- NDJSON framing ---

func (p *Parser) stepNDJSON(b byte) {
	switch p.mode {
	case modeIdle:
		p.raw = append(p.raw, b)
		if b == '\n' {
			p.emitVerbatim()
			return
		}
		if isSpace(b) {
			return
		}
		p.beginRecord()
		p.feedNDJSON(b)

	case modeRecord:
		if b == '\n' {
			p.raw = append(p.raw, b)
			p.endNDJSONRecord()
			return
		}
		if len(p.raw) >= p.opts.MaxRecordBytes {
			p.reportError(fmt.Sprintf("record exceeds %d bytes", p.opts.MaxRecordBytes), true)
			p.mode = modeSkip
			return
		}
		p.raw = append(p.raw, b)
		p.feedNDJSON(b)

	case modeSkip:
		if b == '\n' {
			p.mode = modeIdle
		}
	}
}

func (p *Parser) feedNDJSON(b byte) {
	if err := p.scan.step(b, len(p.raw)-1); err != nil {
		p.reportError(err.Error(), true)
		p.mode = modeSkip
	}
}

func (p *Parser) endNDJSONRecord() {
	if err := p.scan.finish(); err != nil {
		p.reportError(err.Error(), true)
		p.mode = modeIdle
		return
	}
	p.emitNDJSONRecord()
}

func (p *Parser) emitNDJSONRecord() {
	jsonText := bytes.TrimSuffix(p.raw, []byte{'\n'})
	p.emit(Event{Kind: EventRecordEnd, Record: &RawRecord{
		Seq:     p.seq,
		ID:      strconv.FormatUint(p.seq, 10),
		Raw:     p.raw,
		JSON:    jsonText,
		DataEnd: len(jsonText),
	}})
	p.raw = nil
	p.scan.reset()
	p.mode = modeIdle
}

func (p *Parser) closeNDJSON() {
	switch p.mode {
	case modeIdle:
		p.emitVerbatim()
	case modeRecord:
		if err := p.scan.finish(); err != nil {
			p.reportError("end of input: "+err.Error(), false)
			return
		}
		p.emitNDJSONRecord()
	}
}

// --- CSV framing ---

func (p *Parser) stepCSV(b byte) {
	if p.pendingCR {
		p.pendingCR = false
		if b == '\n' {
			p.rowAppend(b)
			p.endRow(p.crAt)
			return
		}
		p.csvByte('\r', p.crAt)
		if p.mode == modeTerminated {
			return
		}
	}
	p.rowAppend(b)
	at := len(p.raw) - 1
	if b == '\r' && p.csv != csvQuoted {
		p.pendingCR = true
		p.crAt = at
		return
	}
	p.csvByte(b, at)
}

func (p *Parser) rowAppend(b byte) {
	if p.rowFailed {
		return
	}
	limit := p.opts.MaxRecordBytes
	if p.header {
		limit = maxHeaderBytes
	}
	if len(p.raw) >= limit {
		if p.header {
			p.reportError(fmt.Sprintf("csv header exceeds %d bytes", limit), false)
			return
		}
		p.failRow(fmt.Sprintf("record exceeds %d bytes", limit))
		return
	}
	p.raw = append(p.raw, b)
}

func (p *Parser) csvByte(b byte, at int) {
	if b == '\n' && p.csv != csvQuoted {
		p.endRow(at)
		return
	}
	if !p.rowStarted {
		p.startRow()
	}
	switch p.csv {
	case csvFieldStart:
		switch b {
		case '"':
			p.beginCell(at, true)
			p.csv = csvQuoted
		case ',':
			p.beginCell(at, false)
			p.endCell(at)
		default:
			p.beginCell(at, false)
			p.csv = csvUnquoted
			p.cellByte(b)
		}
	case csvUnquoted:
		if b == ',' {
			p.endCell(at)
			return
		}
		p.cellByte(b)
	case csvQuoted:
		if b == '"' {
			p.csv = csvQuoteInQuoted
			return
		}
		p.cellByte(b)
	case csvQuoteInQuoted:
		switch b {
		case '"':
			p.csv = csvQuoted
			p.cellByte('"')
		case ',':
			p.endCell(at)
		default:
			if !p.rowFailed && !p.header {
				p.failRow("unexpected character after closing quote")
			}
			p.csv = csvUnquoted
		}
	}
}

func (p *Parser) startRow() {
	p.rowStarted = true
	if !p.header {
		p.beginRecord()
	}
}

func (p *Parser) beginCell(at int, quoted bool) {
	p.cell = p.cell[:0]
	if !p.header && p.col == p.dataCol {
		p.dataActive = true
		p.dataStart = at
		p.quoted = quoted
		p.json = p.json[:0]
		p.scan.reset()
	}
}

func (p *Parser) cellByte(b byte) {
	switch {
	case p.header:
		if len(p.cell) < maxCellBytes {
			p.cell = append(p.cell, b)
		}
	case p.rowFailed:
	case p.col == p.dataCol:
		p.json = append(p.json, b)
		if err := p.scan.step(b, len(p.json)-1); err != nil {
			p.failRow(err.Error())
		}
	case p.col == p.idCol:
		if len(p.id) < maxCellBytes {
			p.id = append(p.id, b)
		}
	}
}

// endCell closes the current cell; end is the raw index one past its last byte.
func (p *Parser) endCell(end int) {
	if p.header {
		p.headerCols = append(p.headerCols, string(p.cell))
	} else if p.col == p.dataCol && p.dataActive {
		p.dataActive = false
		p.dataSeen = true
		p.dataEnd = end
		if !p.rowFailed {
			if err := p.scan.finish(); err != nil {
				p.failRow(err.Error())
			}
		}
	}
	p.col++
	p.csv = csvFieldStart
}

func (p *Parser) endRow(termAt int) {
	if !p.rowStarted {
		p.emitVerbatim()
		p.resetRow()
		return
	}
	if p.csv == csvFieldStart && p.col == p.dataCol && !p.header {
		// trailing empty data cell
		p.beginCell(termAt, false)
	}
	if p.csv != csvFieldStart || p.col > 0 || p.dataActive {
		p.endCell(termAt)
	}
	if p.header {
		p.finishHeader()
		return
	}
	if !p.rowFailed {
		if !p.dataSeen {
			p.failRow("row has no data column")
		} else {
			p.emit(Event{Kind: EventRecordEnd, Record: &RawRecord{
				Seq:       p.seq,
				ID:        p.recordID(),
				Raw:       p.raw,
				JSON:      p.json,
				DataStart: p.dataStart,
				DataEnd:   p.dataEnd,
				Quoted:    p.quoted,
			}})
		}
	}
	p.resetRow()
}

func (p *Parser) recordID() string {
	id := strings.TrimSpace(string(p.id))
	if p.idCol < 0 || id == "" {
		return strconv.FormatUint(p.seq, 10)
	}
	return id
}

func (p *Parser) failRow(reason string) {
	p.reportError(reason, true)
	p.rowFailed = true
}

func (p *Parser) finishHeader() {
	p.idCol, p.dataCol = -1, -1
	for i, name := range p.headerCols {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		switch {
		case strings.EqualFold(name, p.opts.IDColumn):
			p.idCol = i
		case strings.EqualFold(name, p.opts.DataColumn):
			p.dataCol = i
		}
	}
	if p.dataCol < 0 {
		p.reportError(fmt.Sprintf("csv header has no %q column", p.opts.DataColumn), false)
		return
	}
	p.header = false
	p.emitVerbatim()
	p.resetRow()
}

func (p *Parser) resetRow() {
	p.raw = nil
	p.json = nil
	p.cell = p.cell[:0]
	p.id = p.id[:0]
	p.col = 0
	p.csv = csvFieldStart
	p.rowStarted = false
	p.rowFailed = false
	p.dataActive = false
	p.dataSeen = false
	p.dataStart = 0
	p.dataEnd = 0
	p.quoted = false
	p.scan.reset()
	if p.mode == modeRecord {
		p.mode = modeIdle
	}
}

func (p *Parser) closeCSV() {
	if p.pendingCR {
		p.pendingCR = false
		p.endRow(p.crAt)
		return
	}
	if !p.rowStarted {
		p.emitVerbatim()
		return
	}
	if p.csv == csvQuoted {
		if p.rowFailed {
			// the row was already reported; only the stream fails now
			p.terminate("unterminated quoted field at end of input")
			return
		}
		p.reportError("unterminated quoted field at end of input", false)
		return
	}
	p.endRow(len(p.raw))
}
