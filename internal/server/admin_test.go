package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piigate/internal/auditlog"
	"piigate/internal/ruleset"
	"piigate/internal/rulesync"
)

func get(t *testing.T, srv http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestRulesetDoesNotExposeSecrets(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := get(t, srv, "/admin/ruleset")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), ruleset.DevelopmentSecret)

	var info struct {
		Name            string `json:"name"`
		Version         string `json:"version"`
		DevelopmentSalt bool   `json:"development_salt"`
		Strategies      []struct {
			Category string `json:"category"`
			Strategy string `json:"strategy"`
		} `json:"strategies"`
		Document struct {
			Salts map[string]string `json:"salts"`
		} `json:"document"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "default", info.Name)
	assert.Equal(t, ruleset.MustDefault().Version(), info.Version)
	assert.True(t, info.DevelopmentSalt)
	assert.NotEmpty(t, info.Strategies)
	assert.Equal(t, "<redacted>", info.Document.Salts[ruleset.DefaultSaltRef])
}

func TestReloadInstallsPostedRuleset(t *testing.T) {
	engine := newTestEngine()
	srv := newTestServer(t, &Config{Engine: engine, Rulesets: rulesync.New(engine, "", nil)})

	res := post(t, srv, "/admin/reload", []byte("name: strict\ndeny:\n  - path: notes\n"), nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, readBody(t, res), `"name":"strict"`)
	assert.Equal(t, "strict", engine.Snapshot().Name())

	out := post(t, srv, "/v1/redact", []byte(`{"notes":"call me"}`+"\n"), nil)
	assert.Equal(t, `{"notes":"[REDACTED_PII]"}`+"\n", readBody(t, out))
}

func TestReloadRejectsInvalidRuleset(t *testing.T) {
	engine := newTestEngine()
	srv := newTestServer(t, &Config{Engine: engine, Rulesets: rulesync.New(engine, "", nil)})
	before := engine.Snapshot().Version()

	res := post(t, srv, "/admin/reload", []byte("strategies:\n  email:\n    kind: shred\n"), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Contains(t, readBody(t, res), "configuration_error")
	assert.Equal(t, before, engine.Snapshot().Version())
}

func TestReloadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: v1\n"), 0o644))

	engine := newTestEngine()
	srv := newTestServer(t, &Config{Engine: engine, Rulesets: rulesync.New(engine, path, nil)})

	require.NoError(t, os.WriteFile(path, []byte("name: v2\n"), 0o644))
	res := post(t, srv, "/admin/reload", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "v2", engine.Snapshot().Name())

	require.NoError(t, os.Remove(path))
	res = post(t, srv, "/admin/reload", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Equal(t, "v2", engine.Snapshot().Name())
}

func TestReloadNotConfigured(t *testing.T) {
	srv := newTestServer(t, nil)
	res := post(t, srv, "/admin/reload", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}

type stubReader struct {
	params  auditlog.RecordQueryParams
	entries map[string]*auditlog.LogEntry
	err     error
}

func (s *stubReader) GetRecords(_ context.Context, params auditlog.RecordQueryParams) (*auditlog.RecordListResult, error) {
	s.params = params
	if s.err != nil {
		return nil, s.err
	}
	out := &auditlog.RecordListResult{Entries: []auditlog.LogEntry{}, Limit: 25}
	for _, e := range s.entries {
		out.Entries = append(out.Entries, *e)
	}
	out.Total = len(out.Entries)
	return out, nil
}

func (s *stubReader) GetRecordByID(_ context.Context, id string) (*auditlog.LogEntry, error) {
	return s.entries[id], s.err
}

func (s *stubReader) GetStream(_ context.Context, streamID string, limit int) (*auditlog.StreamResult, error) {
	s.params = auditlog.RecordQueryParams{StreamID: streamID, Limit: limit}
	out := &auditlog.StreamResult{StreamID: streamID, Entries: []auditlog.LogEntry{}}
	for _, e := range s.entries {
		if e.StreamID == streamID {
			out.Entries = append(out.Entries, *e)
		}
	}
	return out, s.err
}

func newStubReader() *stubReader {
	e := auditlog.NewEntry("stream-a", "ndjson", "v1", nil, false)
	e.ID = "entry-1"
	e.SetMaskedRecord([]byte(`{"email":"[REDACTED]"}`))
	return &stubReader{entries: map[string]*auditlog.LogEntry{e.ID: e}}
}

func TestListAudit(t *testing.T) {
	reader := newStubReader()
	srv := newTestServer(t, &Config{AuditReader: reader})

	rec := get(t, srv, "/admin/audit?stream_id=stream-a&is_pii=true&start_date=2026-05-01&end_date=2026-05-04&limit=10&offset=5")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "stream-a", reader.params.StreamID)
	require.NotNil(t, reader.params.IsPII)
	assert.True(t, *reader.params.IsPII)
	assert.Nil(t, reader.params.Failed)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), reader.params.StartDate)
	assert.Equal(t, 10, reader.params.Limit)
	assert.Equal(t, 5, reader.params.Offset)

	var result auditlog.RecordListResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Entries, 1)
	assert.Equal(t, `{"email":"[REDACTED]"}`, result.Entries[0].Data.MaskedRecord)
}

func TestListAuditBadParams(t *testing.T) {
	srv := newTestServer(t, &Config{AuditReader: newStubReader()})

	for _, q := range []string{"is_pii=perhaps", "failed=2x", "start_date=05/01/2026", "limit=ten"} {
		rec := get(t, srv, "/admin/audit?"+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestListAuditReaderError(t *testing.T) {
	reader := newStubReader()
	reader.err = errors.New("database is locked")
	srv := newTestServer(t, &Config{AuditReader: reader})

	rec := get(t, srv, "/admin/audit")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "database is locked")
}

func TestGetAudit(t *testing.T) {
	srv := newTestServer(t, &Config{AuditReader: newStubReader()})

	rec := get(t, srv, "/admin/audit/entry-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stream_id":"stream-a"`)

	rec = get(t, srv, "/admin/audit/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAuditStream(t *testing.T) {
	reader := newStubReader()
	srv := newTestServer(t, &Config{AuditReader: reader})

	rec := get(t, srv, "/admin/audit/streams/stream-a?limit=50")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, reader.params.Limit)

	var result auditlog.StreamResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "stream-a", result.StreamID)
	assert.Len(t, result.Entries, 1)
}

func TestAuditDisabled(t *testing.T) {
	srv := newTestServer(t, nil)
	for _, target := range []string{"/admin/audit", "/admin/audit/x", "/admin/audit/streams/s"} {
		rec := get(t, srv, target)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}
}
