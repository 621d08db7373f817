//go:build integration

package integration

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// API endpoints
const (
	redactPath = "/v1/redact"
	auditPath  = "/admin/audit"
	healthPath = "/health"
)

// newStreamID returns a unique stream ID so tests sharing a database don't
// see each other's records.
func newStreamID(t *testing.T) string {
	return t.Name() + "-" + uuid.NewString()
}

// sendRedactRequest posts body to the redaction endpoint and returns the
// response with its body fully read, so trailers are available.
func sendRedactRequest(t *testing.T, serverURL, streamID, contentType, body string, headers map[string]string) (*http.Response, string) {
	t.Helper()

	target := serverURL + redactPath + "?stream_id=" + url.QueryEscape(streamID)
	req, err := http.NewRequest(http.MethodPost, target, strings.NewReader(body))
	require.NoError(t, err, "failed to create request")

	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "failed to send request")
	defer closeBody(resp)

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")
	return resp, string(out)
}

// closeBody is a helper to close response body in defer statements.
func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}
