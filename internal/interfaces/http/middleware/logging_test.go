package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ClinLink/internal/testutil"
)

func statusHandler(code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte("body"))
	})
}

func TestRequestLogging_LevelsByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
		msg    string
	}{
		{http.StatusOK, "info", "HTTP request completed"},
		{http.StatusNotFound, "warn", "HTTP request completed with client error"},
		{http.StatusServiceUnavailable, "error", "HTTP request completed with server error"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			logger := testutil.NewMockLogger()
			h := RequestLogging(logger, LoggingConfig{})(statusHandler(tt.status))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x?q=1", nil))
			assert.Equal(t, tt.status, rec.Code)

			entry, ok := logger.Find(tt.level, tt.msg)
			require.True(t, ok)
			path, _ := entry.Field("path")
			assert.Equal(t, "/x?q=1", path)
			status, _ := entry.Field("status")
			assert.Equal(t, tt.status, status)
			n, _ := entry.Field("bytes")
			assert.Equal(t, int64(4), n)
		})
	}
}

func TestRequestLogging_SkipPaths(t *testing.T) {
	logger := testutil.NewMockLogger()
	h := RequestLogging(logger, DefaultLoggingConfig())(statusHandler(http.StatusOK))

	for _, p := range []string{"/healthz", "/readyz", "/metrics"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	assert.Empty(t, logger.GetMessages())
}

func TestRequestLogging_Slow(t *testing.T) {
	logger := testutil.NewMockLogger()
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
	})
	h := RequestLogging(logger, LoggingConfig{SlowThreshold: time.Millisecond})(slow)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.True(t, logger.HasMessage("warn", "HTTP request completed (slow)"))
}

func TestRequestLogging_RequestID(t *testing.T) {
	logger := testutil.NewMockLogger()
	h := chimw.RequestID(RequestLogging(logger, LoggingConfig{})(statusHandler(http.StatusOK)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(chimw.RequestIDHeader, "req-42")
	h.ServeHTTP(httptest.NewRecorder(), req)

	entry, ok := logger.Find("info", "HTTP request completed")
	require.True(t, ok)
	id, _ := entry.Field("request_id")
	assert.Equal(t, "req-42", id)
}

func TestWrappedResponseWriter_DefaultStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	w := newWrappedResponseWriter(rec)
	_, err := w.Write([]byte("abc"))
	require.NoError(t, err)
	w.WriteHeader(http.StatusTeapot)

	assert.Equal(t, http.StatusOK, w.statusCode)
	assert.Equal(t, int64(3), w.bytesWritten)
	w.Flush()
	_, _, err = w.Hijack()
	assert.Error(t, err)
}

//Personal.AI order the ending
