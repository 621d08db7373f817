package redact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piigate/internal/auditlog"
	"piigate/internal/core"
	"piigate/internal/ruleset"
	"piigate/internal/streamparse"
	"piigate/internal/telemetry"
)

const ravi = `{"name":"Ravi Kumar","email":"ravi.k@example.com","phone":"9876543210"}`

func newEngine(t *testing.T, doc ruleset.Document, opts ...Option) *Engine {
	t.Helper()
	snap, err := ruleset.Compile(doc)
	require.NoError(t, err)
	return NewEngine(ruleset.NewHolder(snap), opts...)
}

type collector struct {
	outs []*Output
}

func (c *collector) Emit(out *Output) error {
	c.outs = append(c.outs, out)
	return nil
}

func (c *collector) data() string {
	var b bytes.Buffer
	for _, o := range c.outs {
		b.Write(o.Data)
	}
	return b.String()
}

func (c *collector) records() []*Output {
	var out []*Output
	for _, o := range c.outs {
		if !o.Verbatim {
			out = append(out, o)
		}
	}
	return out
}

func ndjson() StreamOptions {
	return StreamOptions{Parser: streamparse.DefaultOptions(streamparse.FormatNDJSON)}
}

// run feeds input in chunks of size n (all at once when n <= 0) and flushes.
func run(t *testing.T, e *Engine, opts StreamOptions, input string, n int) (*collector, error) {
	t.Helper()
	c := &collector{}
	s := e.NewStream(context.Background(), opts, c)
	if n <= 0 {
		n = len(input)
	}
	for i := 0; i < len(input); i += n {
		if err := s.Feed([]byte(input[i:min(i+n, len(input))])); err != nil {
			return c, err
		}
	}
	return c, s.Flush()
}

func TestEndToEnd(t *testing.T) {
	e := newEngine(t, ruleset.Default())

	c, err := run(t, e, ndjson(), ravi+"\n", 0)
	require.NoError(t, err)

	assert.Equal(t, `{"name":"Ravi Kumar","email":"[REDACTED]","phone":"98*****210"}`+"\n", c.data())

	recs := c.records()
	require.Len(t, recs, 1)
	sum := recs[0].Summary
	assert.True(t, sum.IsPII)
	assert.Equal(t, "1", sum.RecordID)
	assert.Equal(t, []core.FindingSummary{
		{Path: "name", Category: core.CategoryName, StrategyApplied: "OBSERVE", Rule: "name+email"},
		{Path: "email", Category: core.CategoryEmail, StrategyApplied: "FULL", Rule: "confirmed"},
		{Path: "phone", Category: core.CategoryPhone, StrategyApplied: "PARTIAL(2,3,'*')", Rule: "confirmed"},
	}, sum.Findings)
	assert.Empty(t, sum.ParseErrors)
}

func (c *collector) summaries(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, o := range c.records() {
		b, err := json.Marshal(o.Summary)
		require.NoError(t, err)
		out = append(out, string(b))
	}
	return out
}

func TestChunkBoundariesDoNotChangeOutput(t *testing.T) {
	e := newEngine(t, ruleset.Default())
	csv := StreamOptions{Parser: streamparse.DefaultOptions(streamparse.FormatCSV)}

	tests := []struct {
		name    string
		opts    StreamOptions
		input   string
		records int
	}{
		{
			name: "ndjson",
			opts: ndjson(),
			input: ravi + "\n\n" +
				`{"contact":{"ip":"10.1.2.3","upi":"ravi.kumar@okaxis"},"tags":["Ravi Kumar","x"]}` + "\n" +
				`{"email":"ravi.k@example.com","n":01}` + "\n" +
				`{"phone":"9876543210"}` + "\n",
			records: 4,
		},
		{
			name: "csv crlf",
			opts: csv,
			input: "record_id,data_json\r\n" +
				`r1,"{""email"":""ravi.k@example.com"",""name"":""Ravi Kumar""}"` + "\r\n" +
				`r2,"{""phone"":""9876543210"",""n"":01}"` + "\r\n" +
				`r3,{"n":3}` + "\r\n",
			records: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want, err := run(t, e, tt.opts, tt.input, 0)
			require.NoError(t, err)
			wantSummaries := want.summaries(t)
			require.Len(t, wantSummaries, tt.records)

			failed := 0
			for _, o := range want.records() {
				if o.Failed {
					failed++
				}
			}
			require.Equal(t, 1, failed, "one malformed record")

			for n := 1; n < len(tt.input); n++ {
				got, err := run(t, e, tt.opts, tt.input, n)
				require.NoError(t, err)
				require.Equal(t, want.data(), got.data(), "chunk size %d", n)
				require.Equal(t, wantSummaries, got.summaries(t), "chunk size %d", n)
			}
		})
	}
}

func TestContextualSignalAloneIsNotMasked(t *testing.T) {
	e := newEngine(t, ruleset.Default())

	c, err := run(t, e, ndjson(), `{"name":"Ravi Kumar","city":"Pune"}`+"\n", 0)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Ravi Kumar","city":"Pune"}`+"\n", c.data())
	assert.False(t, c.records()[0].Summary.IsPII)
	assert.Empty(t, c.records()[0].Summary.Findings)
}

func TestDenyList(t *testing.T) {
	doc := ruleset.Default()
	doc.Deny = []ruleset.DenyEntry{{Path: "customer.notes"}}
	e := newEngine(t, doc)

	c, err := run(t, e, ndjson(), `{"customer":{"notes":"xyz","tier":"gold"}}`+"\n", 0)
	require.NoError(t, err)
	assert.Equal(t, `{"customer":{"notes":"[REDACTED_PII]","tier":"gold"}}`+"\n", c.data())
	assert.Equal(t, []core.FindingSummary{
		{Path: "customer.notes", Category: core.CategoryGeneric, StrategyApplied: "FULL", Rule: "deny_list"},
	}, c.records()[0].Summary.Findings)
}

func TestDenyListOverridesObserve(t *testing.T) {
	doc := ruleset.Default()
	doc.Deny = []ruleset.DenyEntry{{Path: "name"}}
	e := newEngine(t, doc)

	c, err := run(t, e, ndjson(), ravi+"\n", 0)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"[REDACTED_PII]","email":"[REDACTED]","phone":"98*****210"}`+"\n", c.data())
	assert.Equal(t, "deny_list", c.records()[0].Summary.Findings[0].Rule)
}

func TestAllowList(t *testing.T) {
	doc := ruleset.Default()
	doc.Allow = []string{"support.email"}
	e := newEngine(t, doc)

	in := `{"support":{"email":"help@example.com"},"email":"ravi.k@example.com"}` + "\n"
	c, err := run(t, e, ndjson(), in, 0)
	require.NoError(t, err)
	assert.Equal(t, `{"support":{"email":"help@example.com"},"email":"[REDACTED]"}`+"\n", c.data())
	require.Len(t, c.records()[0].Summary.Findings, 1)
	assert.Equal(t, "email", c.records()[0].Summary.Findings[0].Path)
}

func TestMalformedRecordIsMarkedAndStreamContinues(t *testing.T) {
	e := newEngine(t, ruleset.Default())
	malformed := `{"name":"Ravi Kumar","email":"ravi.k@example.com","phone":"9876543210"`
	next := `{"email":"a.b@example.org"}`

	c, err := run(t, e, ndjson(), malformed+"\n"+next+"\n", 0)
	require.NoError(t, err)

	recs := c.records()
	require.Len(t, recs, 2)

	bad := recs[0]
	assert.True(t, bad.Failed)
	assert.Equal(t, `[PII_PARSE_ERROR] {"name":"[REDACTED_PII]","email":"[REDACTED]","phone":"98*****210"`+"\n", string(bad.Data))
	require.Len(t, bad.Summary.ParseErrors, 1)
	assert.True(t, bad.Summary.ParseErrors[0].Recoverable)
	assert.NotContains(t, string(bad.Data), "Ravi")
	assert.NotContains(t, string(bad.Data), "ravi.k@example.com")

	good := recs[1]
	assert.False(t, good.Failed)
	assert.Equal(t, `{"email":"[REDACTED]"}`+"\n", string(good.Data))
	assert.Equal(t, uint64(2), good.Seq)
}

func TestMalformedBeforeAnyField(t *testing.T) {
	e := newEngine(t, ruleset.Default())

	c, err := run(t, e, ndjson(), "{oops}\n"+`{"n":1}`+"\n", 0)
	require.NoError(t, err)
	assert.Equal(t, "[PII_PARSE_ERROR]\n"+`{"n":1}`+"\n", c.data())
}

func TestTruncatedInputTerminatesStream(t *testing.T) {
	e := newEngine(t, ruleset.Default())
	c := &collector{}
	s := e.NewStream(context.Background(), ndjson(), c)

	require.NoError(t, s.Feed([]byte(`{"email":"ravi.k@example.com","n":`)))
	err := s.Flush()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStreamTerminated)

	require.Len(t, c.records(), 1)
	assert.Equal(t, `[PII_PARSE_ERROR] {"email":"[REDACTED]"`+"\n", c.data())

	assert.ErrorIs(t, s.Feed([]byte("{}\n")), core.ErrStreamClosed)
	assert.ErrorIs(t, s.Flush(), core.ErrStreamClosed)
}

func TestCSVPreservesRowAndQuoting(t *testing.T) {
	e := newEngine(t, ruleset.Default())
	opts := StreamOptions{Parser: streamparse.DefaultOptions(streamparse.FormatCSV)}

	in := "record_id,data_json,flag\n" +
		`r1,"{""email"":""ravi.k@example.com"",""n"":1}",true` + "\n" +
		`r2,{"n":2},false` + "\n"
	c, err := run(t, e, opts, in, 0)
	require.NoError(t, err)

	want := "record_id,data_json,flag\n" +
		`r1,"{""email"":""[REDACTED]"",""n"":1}",true` + "\n" +
		`r2,{"n":2},false` + "\n"
	assert.Equal(t, want, c.data())

	recs := c.records()
	require.Len(t, recs, 2)
	assert.Equal(t, "r1", recs[0].RecordID)
	assert.Equal(t, "r2", recs[1].RecordID)

	for n := 1; n < len(in); n += 3 {
		got, err := run(t, e, opts, in, n)
		require.NoError(t, err)
		require.Equal(t, want, got.data(), "chunk size %d", n)
	}
}

func TestCSVMaskedCellGainsQuotes(t *testing.T) {
	doc := ruleset.Default()
	doc.Strategies[core.CategoryEmail] = ruleset.StrategySpec{Kind: "full", Placeholder: "a,b"}
	e := newEngine(t, doc)
	opts := StreamOptions{Parser: streamparse.DefaultOptions(streamparse.FormatCSV)}

	c, err := run(t, e, opts, "record_id,data_json\nr1,{\"e\":\"ravi.k@example.com\"}\n", 0)
	require.NoError(t, err)
	assert.Equal(t, "record_id,data_json\nr1,\"{\"\"e\"\":\"\"a,b\"\"}\"\n", c.data())
}

func TestNumericPhoneBecomesString(t *testing.T) {
	e := newEngine(t, ruleset.Default())

	c, err := run(t, e, ndjson(), `{"phone":9876543210,"ok":true,"none":null}`+"\n", 0)
	require.NoError(t, err)
	assert.Equal(t, `{"phone":"98*****210","ok":true,"none":null}`+"\n", c.data())
}

func TestHashIsStableAndSalted(t *testing.T) {
	in := `{"upi":"ravi.kumar@okaxis"}` + "\n"

	doc := ruleset.Default()
	doc.Salts = map[string]string{ruleset.DefaultSaltRef: "first-secret"}
	a := newEngine(t, doc)

	first, err := run(t, a, ndjson(), in, 0)
	require.NoError(t, err)
	second, err := run(t, a, ndjson(), in, 0)
	require.NoError(t, err)
	assert.Equal(t, first.data(), second.data())
	assert.Contains(t, first.data(), `"[HASH:`)
	assert.NotContains(t, first.data(), "ravi.kumar")

	doc.Salts = map[string]string{ruleset.DefaultSaltRef: "second-secret"}
	b := newEngine(t, doc)
	other, err := run(t, b, ndjson(), in, 0)
	require.NoError(t, err)
	assert.NotEqual(t, first.data(), other.data())
}

func TestOutputIsIdempotent(t *testing.T) {
	doc := ruleset.Default()
	doc.Salts = map[string]string{ruleset.DefaultSaltRef: "secret"}
	e := newEngine(t, doc)
	in := ravi + "\n" + `{"upi":"ravi.kumar@okaxis","ip":"10.0.0.1"}` + "\n"

	once, err := run(t, e, ndjson(), in, 0)
	require.NoError(t, err)
	twice, err := run(t, e, ndjson(), once.data(), 0)
	require.NoError(t, err)
	assert.Equal(t, once.data(), twice.data())
}

func TestPartialOverflowIsCounted(t *testing.T) {
	doc := ruleset.Default()
	doc.Strategies[core.CategoryPassport] = ruleset.StrategySpec{Kind: "partial", KeepPrefix: 4, KeepSuffix: 4, Filler: "X"}
	e := newEngine(t, doc)

	c, err := run(t, e, ndjson(), `{"name":"Ravi Kumar","passport":"A1234567"}`+"\n", 0)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Ravi Kumar","passport":"XXXXXXXX"}`+"\n", c.data())
	assert.Equal(t, 1, c.records()[0].Summary.MaskingOverflows)
}

func TestReloadKeepsInFlightRecordOnOldSnapshot(t *testing.T) {
	e := newEngine(t, ruleset.Default())
	c := &collector{}
	s := e.NewStream(context.Background(), ndjson(), c)

	require.NoError(t, s.Feed([]byte(`{"email":"ravi.k@example.com",`)))

	doc := ruleset.Default()
	doc.Strategies[core.CategoryEmail] = ruleset.StrategySpec{Kind: "full", Placeholder: "[GONE]"}
	next, err := ruleset.Compile(doc)
	require.NoError(t, err)
	prev := e.Reload(next)
	assert.NotEqual(t, prev.Version(), next.Version())

	require.NoError(t, s.Feed([]byte(`"n":1}`+"\n"+`{"email":"ravi.k@example.com"}`+"\n")))
	require.NoError(t, s.Flush())

	assert.Equal(t, `{"email":"[REDACTED]","n":1}`+"\n"+`{"email":"[GONE]"}`+"\n", c.data())
	assert.Same(t, next, e.Snapshot())
}

func TestAbortReleasesStream(t *testing.T) {
	e := newEngine(t, ruleset.Default())
	c := &collector{}
	s := e.NewStream(context.Background(), ndjson(), c)

	require.NoError(t, s.Feed([]byte(`{"email":"ravi.k@example.com"`)))
	s.Abort()
	s.Abort()

	assert.Empty(t, c.outs)
	assert.ErrorIs(t, s.Feed([]byte("}\n")), core.ErrStreamClosed)
	assert.ErrorIs(t, s.Flush(), core.ErrStreamClosed)
}

func TestCancelledContextEndsStream(t *testing.T) {
	e := newEngine(t, ruleset.Default())
	ctx, cancel := context.WithCancel(context.Background())
	s := e.NewStream(ctx, ndjson(), &collector{})

	require.NoError(t, s.Feed([]byte(ravi+"\n")))
	cancel()
	assert.ErrorIs(t, s.Feed([]byte(ravi+"\n")), context.Canceled)
	assert.ErrorIs(t, s.Feed([]byte(ravi+"\n")), core.ErrStreamClosed)
}

func TestEmitterErrorAbortsStream(t *testing.T) {
	e := newEngine(t, ruleset.Default())
	boom := errors.New("client went away")
	s := e.NewStream(context.Background(), ndjson(), EmitterFunc(func(*Output) error { return boom }))

	assert.ErrorIs(t, s.Feed([]byte(ravi+"\n")), boom)
	assert.ErrorIs(t, s.Feed([]byte(ravi+"\n")), core.ErrStreamClosed)
}

func TestPanicFallsBackToGenericMasking(t *testing.T) {
	for _, stage := range []string{"classify", "mask"} {
		t.Run(stage, func(t *testing.T) {
			e := newEngine(t, ruleset.Default())
			e.faultHook = func(s string) {
				if s == stage {
					panic("injected")
				}
			}

			c, err := run(t, e, ndjson(), ravi+"\n"+`{"n":1}`+"\n", 0)
			require.NoError(t, err)

			recs := c.records()
			require.Len(t, recs, 2)
			assert.Equal(t, `{"name":"[REDACTED_PII]","email":"[REDACTED_PII]","phone":"[REDACTED_PII]"}`+"\n", string(recs[0].Data))
			for _, f := range recs[0].Summary.Findings {
				assert.Equal(t, "fallback", f.Rule)
			}
			assert.Equal(t, `{"n":"[REDACTED_PII]"}`+"\n", string(recs[1].Data))
		})
	}
}

func TestConcurrentStreams(t *testing.T) {
	e := newEngine(t, ruleset.Default())
	in := ravi + "\n" + `{"ip":"192.168.1.20","note":"hello"}` + "\n"
	want, err := run(t, e, ndjson(), in, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := &collector{}
			s := e.NewStream(context.Background(), ndjson(), c)
			for j := 0; j < len(in); j += 7 {
				if err := s.Feed([]byte(in[j:min(j+7, len(in))])); err != nil {
					return
				}
			}
			if err := s.Flush(); err != nil {
				return
			}
			results[i] = c.data()
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		assert.Equal(t, want.data(), got, "stream %d", i)
	}
}

type recordingSink struct {
	mu      sync.Mutex
	records []telemetry.RecordEvent
	streams []telemetry.StreamEvent
}

func (r *recordingSink) RecordProcessed(_ context.Context, ev telemetry.RecordEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, ev)
}

func (r *recordingSink) StreamFinished(_ context.Context, ev telemetry.StreamEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams = append(r.streams, ev)
}

func (r *recordingSink) RulesetReloaded(context.Context, telemetry.ReloadEvent) {}

type memoryAudit struct {
	cfg     auditlog.Config
	entries []*auditlog.LogEntry
}

func (m *memoryAudit) Write(e *auditlog.LogEntry) { m.entries = append(m.entries, e) }
func (m *memoryAudit) Config() auditlog.Config    { return m.cfg }
func (m *memoryAudit) Close() error               { return nil }

func TestCollaboratorsSeeOnlyMaskedData(t *testing.T) {
	sink := &recordingSink{}
	audit := &memoryAudit{cfg: auditlog.Config{Enabled: true, StoreRecords: true}}
	e := newEngine(t, ruleset.Default(),
		WithTelemetry(sink),
		WithSampler(telemetry.NewSampler(1)),
		WithAudit(audit),
	)

	malformed := `{"email":"ravi.k@example.com","phone":"9876543210"`
	_, err := run(t, e, ndjson(), ravi+"\n"+malformed+"\n", 0)
	require.NoError(t, err)

	raw := []string{"ravi.k@example.com", "9876543210"}

	require.Len(t, sink.records, 2)
	for _, ev := range sink.records {
		require.NotNil(t, ev.Masked)
		b, err := json.Marshal(ev.Summary)
		require.NoError(t, err)
		for _, v := range raw {
			assert.NotContains(t, string(ev.Masked), v)
			assert.NotContains(t, string(b), v)
		}
	}
	assert.True(t, sink.records[1].Failed)
	require.Len(t, sink.streams, 1)
	assert.Equal(t, 2, sink.streams[0].Records)
	assert.Equal(t, 1, sink.streams[0].Failed)

	require.Len(t, audit.entries, 2)
	for _, entry := range audit.entries {
		b, err := json.Marshal(entry)
		require.NoError(t, err)
		for _, v := range raw {
			assert.NotContains(t, string(b), v)
		}
	}
	assert.Equal(t, 3, audit.entries[0].FindingCount)
	assert.True(t, audit.entries[1].Failed)
}

func TestParseErrorsCarryNoValues(t *testing.T) {
	sink := &recordingSink{}
	audit := &memoryAudit{cfg: auditlog.Config{Enabled: true}}
	e := newEngine(t, ruleset.Default(), WithTelemetry(sink), WithAudit(audit))

	in := `{"phone":98765-43210,"email":"ravi.k@example.com"}` + "\n" +
		`{"id":ABC1234567}` + "\n" +
		`{"email":"ravi.k@example.com","n":`
	c, err := run(t, e, ndjson(), in, 0)
	require.Error(t, err)

	raw := []string{"98765", "43210", "ABC1234567", "ravi.k@example.com"}
	require.Len(t, sink.records, 3)
	for _, ev := range sink.records {
		b, err := json.Marshal(ev.Summary)
		require.NoError(t, err)
		for _, v := range raw {
			assert.NotContains(t, string(b), v)
		}
	}
	require.Len(t, sink.streams, 1)
	require.Error(t, sink.streams[0].Err)
	for _, v := range raw {
		assert.NotContains(t, sink.streams[0].Err.Error(), v)
	}
	for _, entry := range audit.entries {
		b, err := json.Marshal(entry)
		require.NoError(t, err)
		for _, v := range raw {
			assert.NotContains(t, string(b), v)
		}
	}

	pe := c.records()[0].Summary.ParseErrors
	require.Len(t, pe, 1)
	assert.Equal(t, "phone", pe[0].Path)
	assert.Contains(t, pe[0].Reason, "invalid number literal")
}

func TestDenyListCoversScalarsAndContainers(t *testing.T) {
	doc := ruleset.Default()
	doc.Deny = []ruleset.DenyEntry{{Path: "secret"}, {Path: "flag"}, {Path: "profile"}}
	e := newEngine(t, doc)

	c, err := run(t, e, ndjson(), `{"secret":null,"flag":true,"profile":{"x":"y","n":[1,false]},"ok":true}`+"\n", 0)
	require.NoError(t, err)
	assert.Equal(t,
		`{"secret":"[REDACTED_PII]","flag":"[REDACTED_PII]","profile":{"x":"[REDACTED_PII]","n":["[REDACTED_PII]","[REDACTED_PII]"]},"ok":true}`+"\n",
		c.data())

	var paths []string
	for _, f := range c.records()[0].Summary.Findings {
		assert.Equal(t, "deny_list", f.Rule)
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"secret", "flag", "profile.x", "profile.n[0]", "profile.n[1]"}, paths)
}

func TestDenyOutranksOverlappingAllow(t *testing.T) {
	doc := ruleset.Default()
	doc.Allow = []string{"**.email"}
	doc.Deny = []ruleset.DenyEntry{{Path: "email", Category: core.CategoryEmail}}
	e := newEngine(t, doc)

	in := `{"email":"ravi.k@example.com","support":{"email":"help@example.com"}}` + "\n"
	c, err := run(t, e, ndjson(), in, 0)
	require.NoError(t, err)
	assert.Equal(t, `{"email":"[REDACTED]","support":{"email":"help@example.com"}}`+"\n", c.data())
}

func TestKeyHintsMaskByFieldName(t *testing.T) {
	e := newEngine(t, ruleset.Default())

	in := `{"phone":"12345","name":"Ravi Kumar","device_id":"DEV-889"}` + "\n" +
		`{"device_id":"DEV-889","city":"Pune"}` + "\n"
	c, err := run(t, e, ndjson(), in, 0)
	require.NoError(t, err)
	assert.Equal(t,
		`{"phone":"*****","name":"Ravi Kumar","device_id":"[REDACTED_IP_ADDRESS]"}`+"\n"+
			`{"device_id":"DEV-889","city":"Pune"}`+"\n",
		c.data())

	recs := c.records()
	var cats []core.Category
	for _, f := range recs[0].Summary.Findings {
		cats = append(cats, f.Category)
	}
	assert.Equal(t, []core.Category{core.CategoryPhone, core.CategoryName, core.CategoryIP}, cats)
	assert.False(t, recs[1].Summary.IsPII, "a device id alone is not promoted")
}

func TestTruncatedValuesAreCounted(t *testing.T) {
	e := newEngine(t, ruleset.Default())
	opts := ndjson()
	opts.MaxValueBytes = 8

	c, err := run(t, e, opts, `{"note":"abcdefghijklmnop","short":"abc","phone":"9876543210"}`+"\n", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, c.records()[0].Summary.TruncatedFields)
}

func TestCSVFailedRowEndingInsideQuotes(t *testing.T) {
	e := newEngine(t, ruleset.Default())
	opts := StreamOptions{Parser: streamparse.DefaultOptions(streamparse.FormatCSV)}

	c, err := run(t, e, opts, "record_id,data_json\n"+`r1,"{""n"":01, ""email"":""ravi.k@`, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStreamTerminated)

	recs := c.records()
	require.Len(t, recs, 1, "the failed row is emitted once")
	assert.True(t, recs[0].Failed)
	assert.NotContains(t, c.data(), "ravi.k@")
}

func TestAuditOnlyPII(t *testing.T) {
	audit := &memoryAudit{cfg: auditlog.Config{Enabled: true, OnlyPII: true}}
	e := newEngine(t, ruleset.Default(), WithAudit(audit))

	_, err := run(t, e, ndjson(), `{"n":1}`+"\n"+ravi+"\n", 0)
	require.NoError(t, err)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, int64(2), audit.entries[0].Seq)
	assert.Empty(t, audit.entries[0].Data.MaskedRecord)
}

func TestRejectReloadKeepsSnapshot(t *testing.T) {
	e := newEngine(t, ruleset.Default())
	before := e.Snapshot()
	e.RejectReload(errors.New("bad rules"))
	assert.Same(t, before, e.Snapshot())
}
