package redact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"piigate/internal/auditlog"
	"piigate/internal/core"
	"piigate/internal/extract"
	"piigate/internal/streamparse"
	"piigate/internal/telemetry"
)

// ErrAborted is reported to telemetry for streams ended by Abort.
var ErrAborted = errors.New("stream aborted")

// StreamOptions configures one stream.
type StreamOptions struct {
	// ID identifies the stream in telemetry and audit entries. A random ID
	// is generated when empty.
	ID     string
	Parser streamparse.Options
	// MaxValueBytes caps the bytes of a single value kept for classification.
	MaxValueBytes int
}

// Stream is one pass over one input. It is not safe for concurrent use:
// Feed, Flush and Abort must be called from one goroutine.
type Stream struct {
	ctx     context.Context
	engine  *Engine
	id      string
	format  streamparse.Format
	parser  *streamparse.Parser
	extract *extract.Extractor
	emitter Emitter

	rec     *record
	eol     []byte
	started time.Time
	records int
	failed  int
	closed  bool
	err     error

	failedSeq uint64
}

// NewStream starts a stream. Outputs are passed to emit in input order.
func (e *Engine) NewStream(ctx context.Context, opts StreamOptions, emit Emitter) *Stream {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	p := streamparse.New(opts.Parser)
	return &Stream{
		ctx:     core.WithStreamID(ctx, id),
		engine:  e,
		id:      id,
		format:  p.Format(),
		parser:  p,
		extract: extract.New(opts.MaxValueBytes),
		emitter: emit,
		eol:     []byte{'\n'},
		started: time.Now(),
	}
}

// ID returns the stream identifier.
func (s *Stream) ID() string { return s.id }

// Feed processes the next chunk. Outputs for every record completed by the
// chunk are emitted before Feed returns. After a non-recoverable parse error
// Feed returns an error wrapping core.ErrStreamTerminated.
func (s *Stream) Feed(chunk []byte) error {
	if s.closed {
		return core.ErrStreamClosed
	}
	if s.err != nil {
		return s.err
	}
	if err := s.ctx.Err(); err != nil {
		s.finish(err)
		return err
	}
	events, err := s.parser.Feed(chunk)
	if err != nil {
		return err
	}
	if err := s.handle(events); err != nil {
		s.finish(err)
		return err
	}
	return s.err
}

// Flush signals end of input, emits what remains and releases the stream.
// It returns the error that terminated the stream, if any.
func (s *Stream) Flush() error {
	if s.closed {
		return core.ErrStreamClosed
	}
	if s.err == nil {
		if err := s.ctx.Err(); err != nil {
			s.finish(err)
			return err
		}
		events, err := s.parser.Close()
		if err == nil {
			err = s.handle(events)
		}
		if err != nil {
			s.finish(err)
			return err
		}
	}
	err := s.err
	s.finish(err)
	return err
}

// Abort abandons the stream, including any record in flight, and releases
// its buffers. Later calls to Feed and Flush return core.ErrStreamClosed.
func (s *Stream) Abort() {
	if s.closed {
		return
	}
	s.finish(ErrAborted)
}

func (s *Stream) finish(err error) {
	if s.closed {
		return
	}
	s.closed = true
	s.parser.Reset()
	s.extract.Release()
	s.rec = nil
	s.engine.sink.StreamFinished(s.ctx, telemetry.StreamEvent{
		StreamID: s.id,
		Format:   s.format.String(),
		Records:  s.records,
		Failed:   s.failed,
		Duration: time.Since(s.started),
		Err:      err,
	})
	if err != nil && !errors.Is(err, ErrAborted) {
		slog.Warn("stream ended with error", core.LogAttrs(s.ctx, "records", s.records, "error", err)...)
	}
}

func (s *Stream) handle(events []streamparse.Event) error {
	for i := range events {
		ev := &events[i]
		switch ev.Kind {
		case streamparse.EventVerbatim:
			data := make([]byte, len(ev.Data))
			copy(data, ev.Data)
			if err := s.emitter.Emit(&Output{Data: data, Verbatim: true}); err != nil {
				return err
			}

		case streamparse.EventRecordStart:
			s.extract.Handle(*ev)
			s.rec = newRecord(ev.Seq, s.engine.holder.Load())

		case streamparse.EventFieldStart, streamparse.EventValueChunk, streamparse.EventFieldEnd:
			f, ok := s.extract.Handle(*ev)
			if ok && s.rec != nil {
				s.rec.addField(f, s.engine.faultHook)
			}

		case streamparse.EventRecordEnd:
			s.extract.Handle(*ev)
			if bytes.HasSuffix(ev.Record.Raw, []byte("\r\n")) {
				s.eol = []byte("\r\n")
			}
			if err := s.publish(s.complete(ev.Record)); err != nil {
				return err
			}

		case streamparse.EventParseError:
			if path, _, ok := s.extract.Pending(); ok && ev.Err.Path == "" {
				ev.Err.Path = path.String()
			}
			s.extract.Handle(*ev)
			// a fatal error on a row that already failed adds no output
			emitted := ev.Record == nil && !ev.Err.Recoverable && s.failedSeq != 0 && ev.Err.Seq == s.failedSeq
			if ev.Record != nil {
				s.failedSeq = ev.Record.Seq
			}
			if !emitted {
				if err := s.publish(s.fail(ev.Record, ev.Err)); err != nil {
					return err
				}
			}
			if !ev.Err.Recoverable {
				s.err = fmt.Errorf("%w: %w", core.ErrStreamTerminated, ev.Err)
			}
		}
	}
	return nil
}

// current returns the working state for seq, starting one when the parser
// reported a record it never opened.
func (s *Stream) current(seq uint64) *record {
	if s.rec == nil || s.rec.seq != seq {
		s.rec = newRecord(seq, s.engine.holder.Load())
	}
	rec := s.rec
	s.rec = nil
	return rec
}

type result struct {
	out      *Output
	version  string
	fallback bool
	took     time.Duration
}

// complete renders a fully parsed record.
func (s *Stream) complete(raw *streamparse.RawRecord) (res result) {
	started := time.Now()
	rec := s.current(raw.Seq)
	sum := newSummary(raw.ID, raw.Seq)
	res.version = rec.snap.Version()
	res.out = &Output{Seq: raw.Seq, RecordID: raw.ID, Summary: sum}
	defer func() { res.took = time.Since(started) }()

	findings, payload, overflows, err := s.mask(rec, raw.JSON)
	if err != nil {
		slog.Error("record processing failed, masking every field",
			core.LogAttrs(s.ctx, "record_id", raw.ID, "seq", raw.Seq, "error", err)...)
		res.fallback = true
		findings, payload, overflows, err = s.fallback(rec, raw.JSON)
		if err != nil {
			return s.markerOnly(res, raw, "record could not be masked")
		}
	}
	if !gjson.ValidBytes(payload) {
		slog.Error("masked record is not valid JSON", core.LogAttrs(s.ctx, "record_id", raw.ID, "seq", raw.Seq)...)
		return s.markerOnly(res, raw, "masked record failed validation")
	}

	summarize(sum, findings)
	sum.MaskingOverflows = overflows
	sum.TruncatedFields = rec.truncated
	if bytes.Equal(payload, raw.JSON) {
		res.out.Data = bytes.Clone(raw.Raw)
	} else {
		res.out.Data = frame(s.format, raw, payload, s.eol)
	}
	return res
}

// mask runs correlation and masking, converting a panic into an error.
func (s *Stream) mask(rec *record, text []byte) (findings []core.Finding, payload []byte, overflows int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicError(p)
		}
	}()
	if rec.faulted {
		return nil, nil, 0, errors.New("classification failed")
	}
	findings = rec.resolve()
	payload, overflows = rec.apply(text, len(text), findings, s.engine.faultHook)
	return findings, payload, overflows, nil
}

func (s *Stream) fallback(rec *record, text []byte) (findings []core.Finding, payload []byte, overflows int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicError(p)
		}
	}()
	findings = rec.fallbackFindings()
	payload, overflows = rec.apply(text, len(text), findings, nil)
	return findings, payload, overflows, nil
}

// markerOnly replaces the whole payload with the error marker.
func (s *Stream) markerOnly(res result, raw *streamparse.RawRecord, reason string) result {
	res.out.Failed = true
	res.out.Summary.IsPII = true
	res.out.Summary.ParseErrors = append(res.out.Summary.ParseErrors, core.ParseError{
		Reason:      reason,
		Recoverable: true,
		Seq:         raw.Seq,
	})
	res.out.Data = frame(s.format, raw, []byte(ErrorMarker), s.eol)
	return res
}

// fail renders a record cut short by a parse error: the content up to the
// last completed field, with every field that produced a signal masked,
// behind the error marker.
func (s *Stream) fail(raw *streamparse.RawRecord, perr *core.ParseError) (res result) {
	started := time.Now()
	defer func() { res.took = time.Since(started) }()

	if raw == nil {
		// stream-level error, no record to show
		sum := newSummary("", perr.Seq)
		sum.ParseErrors = append(sum.ParseErrors, *perr)
		res.out = &Output{Seq: perr.Seq, Summary: sum, Failed: true, Data: append([]byte(ErrorMarker), s.eol...)}
		res.version = s.engine.holder.Load().Version()
		return res
	}

	rec := s.current(raw.Seq)
	sum := newSummary(raw.ID, raw.Seq)
	sum.ParseErrors = append(sum.ParseErrors, *perr)
	res.version = rec.snap.Version()
	res.out = &Output{Seq: raw.Seq, RecordID: raw.ID, Summary: sum, Failed: true}

	var partial []byte
	func() {
		defer func() {
			if p := recover(); p != nil {
				slog.Error("partial record could not be masked", core.LogAttrs(s.ctx, "seq", raw.Seq, "error", panicError(p))...)
				partial = nil
				res.fallback = true
			}
		}()
		findings := rec.failedFindings()
		if rec.faulted {
			findings = rec.fallbackFindings()
			res.fallback = true
		}
		var overflows int
		partial, overflows = rec.apply(raw.JSON, rec.lastEnd, findings, nil)
		summarize(sum, findings)
		sum.MaskingOverflows = overflows
	}()
	sum.TruncatedFields = rec.truncated

	slog.Warn("record emitted with error marker", core.LogAttrs(s.ctx,
		"record_id", raw.ID, "seq", raw.Seq,
		"recoverable", perr.Recoverable, "offset", perr.Offset)...)
	res.out.Data = frame(s.format, raw, markerText(partial), s.eol)
	return res
}

// publish reports a record to telemetry and audit, then emits it.
func (s *Stream) publish(res result) error {
	out := res.out
	s.records++
	if out.Failed {
		s.failed++
	}

	ev := telemetry.RecordEvent{
		StreamID:       s.id,
		Format:         s.format.String(),
		RulesetVersion: res.version,
		Summary:        out.Summary,
		Failed:         out.Failed,
		Fallback:       res.fallback,
		Duration:       res.took,
	}
	if s.engine.sampler.Sample(s.id, out.Seq) {
		ev.Masked = out.Data
	}
	s.engine.sink.RecordProcessed(s.ctx, ev)

	cfg := s.engine.audit.Config()
	if cfg.Enabled && (!cfg.OnlyPII || out.Summary.IsPII || out.Failed) {
		entry := auditlog.NewEntry(s.id, s.format.String(), res.version, out.Summary, out.Failed)
		if cfg.StoreRecords {
			entry.SetMaskedRecord(out.Data)
		}
		s.engine.audit.Write(entry)
	}

	return s.emitter.Emit(out)
}
