package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRoute(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
	}{
		{"", "/metrics"},
		{"/metrics", "/metrics"},
		{"internal/metrics", "/internal/metrics"},
		{"/internal//metrics/", "/internal/metrics"},
		{"/", "/metrics"},
		{"/v1", "/metrics"},
		{"/v1/redact", "/metrics"},
		{"/admin/metrics", "/metrics"},
		{"/swagger/metrics", "/metrics"},
		{"/health", "/metrics"},
		{"/healthz", "/healthz"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, metricsRoute(tt.endpoint), "endpoint %q", tt.endpoint)
	}
}

func TestMetricsEndpointIsPublic(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "piigate_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	srv := newTestServer(t, &Config{
		MasterKey:       "secret",
		MetricsEnabled:  true,
		MetricsEndpoint: "/internal/metrics",
		Gatherer:        reg,
	})

	rec := get(t, srv, "/internal/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "piigate_test_total 1")

	rec = get(t, srv, "/metrics")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetricsDisabled(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := get(t, srv, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutesRequireMasterKey(t *testing.T) {
	srv := newTestServer(t, &Config{MasterKey: "secret"})

	assert.Equal(t, http.StatusOK, get(t, srv, "/health").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, srv, "/admin/ruleset").Code)

	res := post(t, srv, "/v1/redact", []byte(ravi+"\n"), nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = post(t, srv, "/v1/redact", []byte(ravi+"\n"), map[string]string{"Authorization": "Bearer secret"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, raviMasked+"\n", readBody(t, res))
}

func TestBodySizeLimitSkipsRedaction(t *testing.T) {
	srv := newTestServer(t, &Config{BodySizeLimit: 1024})

	big := []byte("name: big\n# " + strings.Repeat("x", 2048) + "\n")
	req := httptest.NewRequest(http.MethodPost, "/admin/reload", bytes.NewReader(big))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	var in, want strings.Builder
	for in.Len() < 2048 {
		in.WriteString(ravi + "\n")
		want.WriteString(raviMasked + "\n")
	}
	res := post(t, srv, "/v1/redact", []byte(in.String()), nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, want.String(), readBody(t, res))
}

func TestSwagger(t *testing.T) {
	enabled := newTestServer(t, &Config{SwaggerEnabled: true})
	rec := get(t, enabled, "/swagger/doc.json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"/v1/redact"`)

	disabled := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, get(t, disabled, "/swagger/doc.json").Code)
}
