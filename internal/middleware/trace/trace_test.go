package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applog "agfdash/internal/log"
)

func TestMiddleware_AssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Level: slog.LevelDebug, Format: "json", Component: applog.ComponentHTTP, Output: &buf})

	var seenID string
	var seenLogger *applog.Logger
	h := NewMiddleware(func(*http.Request) string { return "9.9.9.9" }, logger).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenID = GetRequestID(r.Context())
			seenLogger = applog.FromContext(r.Context())
			w.WriteHeader(http.StatusTeapot)
		}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dash-data?empresa_id=1", nil))

	require.True(t, strings.HasPrefix(seenID, "req_"))
	assert.Equal(t, seenID, rec.Header().Get(HeaderRequestID))
	assert.Equal(t, applog.ComponentHTTP, seenLogger.Component())

	out := buf.String()
	assert.Contains(t, out, `"request_id":"`+seenID+`"`)
	assert.Contains(t, out, `"status_code":418`)
	assert.Contains(t, out, `"client_ip":"9.9.9.9"`)
}

func TestMiddleware_ReusesValidIncomingID(t *testing.T) {
	h := NewMiddleware(nil, nil).Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "bad id with spaces")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEqual(t, "bad id with spaces", rec.Header().Get(HeaderRequestID))
}

func TestGenerateRequestID_Unique(t *testing.T) {
	a, b := GenerateRequestID(), GenerateRequestID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, len("req_")+16)
}
