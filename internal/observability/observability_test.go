package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "users")

	logger.Error("upload_failed", map[string]any{"error": errors.New("timeout"), "user_id": "u1"})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "upload_failed", entry["message"])
	assert.Equal(t, "users", entry["service"])
	assert.Equal(t, "timeout", entry["error"])
	assert.Equal(t, "u1", entry["user_id"])
	assert.NotEmpty(t, entry["timestamp"])
}

func TestRecoverMiddleware_WritesFailureEnvelope(t *testing.T) {
	var buf bytes.Buffer
	handler := RecoverMiddleware(NewLoggerTo(&buf, ""))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, []any{}, body["errors"])
	assert.Contains(t, buf.String(), "panic_recovered")
}

func TestRequestLoggingMiddleware_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	handler := RequestLoggingMiddleware(NewLoggerTo(&buf, ""))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tea", nil))

	line := strings.TrimSpace(buf.String())
	assert.Contains(t, line, `"status":418`)
	assert.Contains(t, line, `"path":"/tea"`)
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/c/{username}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/c/{username}", "404"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/c/alice", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/c/{username}", "404"))

	assert.Equal(t, before+1, after)
}

func TestRecordSessionEvent(t *testing.T) {
	before := testutil.ToFloat64(sessionEventsTotal.WithLabelValues("login", "success"))
	RecordSessionEvent("login", "success")
	assert.Equal(t, before+1, testutil.ToFloat64(sessionEventsTotal.WithLabelValues("login", "success")))
}

func TestScrubEvent_DropsSessionCredentials(t *testing.T) {
	event := &sentry.Event{Request: &sentry.Request{
		Cookies: "accessToken=abc; refreshToken=def",
		Headers: map[string]string{
			"authorization": "Bearer abc",
			"Content-Type":  "application/json",
		},
	}}

	scrubbed := scrubEvent(event)

	assert.Empty(t, scrubbed.Request.Cookies)
	assert.NotContains(t, scrubbed.Request.Headers, "authorization")
	assert.Equal(t, "application/json", scrubbed.Request.Headers["Content-Type"])
	assert.Nil(t, scrubEvent(nil))
}
