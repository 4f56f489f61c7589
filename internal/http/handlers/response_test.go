package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// serveOnce runs a single GET through a fresh router wrapped with the given
// pre-middleware, mirroring how RequestID and Logger sit in front of the
// real handlers.
func serveOnce(pre gin.HandlerFunc, h gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if pre != nil {
		r.Use(pre)
	}
	r.GET("/t", h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/t", nil))
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode envelope: %v\n%s", err, w.Body.String())
	}
	return er
}

func TestFailDelivery_ServerErrorLogsWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	pre := func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "req-d500")
		c.Set("logger", &logger)
		c.Next()
	}

	w := serveOnce(pre, func(c *gin.Context) {
		failDelivery(c, http.StatusInternalServerError, ErrCodeTransientFailure, "dd-500")
	})

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	er := decodeEnvelope(t, w)
	if er.OK || er.Code != "transient_processing_failure" || er.DeliveryID != "dd-500" || er.RequestID != "req-d500" {
		t.Fatalf("envelope = %+v", er)
	}

	// 5xx failures must leave a correlatable error line behind.
	line := buf.String()
	for _, want := range []string{`"level":"error"`, `"delivery_id":"dd-500"`, `"code":"transient_processing_failure"`, `"status":500`} {
		if !strings.Contains(line, want) {
			t.Fatalf("error log missing %s:\n%s", want, line)
		}
	}
}

func TestFail_ClientErrorStaysQuiet(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	pre := func(c *gin.Context) {
		c.Set("logger", &logger)
		c.Next()
	}

	w := serveOnce(pre, func(c *gin.Context) {
		Fail(c, http.StatusNotFound, ErrCodeNotFound)
	})

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if er := decodeEnvelope(t, w); er.OK || er.Code != "not_found" {
		t.Fatalf("envelope = %+v", er)
	}
	// Client errors are the caller's problem, not log fodder.
	if buf.Len() != 0 {
		t.Fatalf("4xx produced a log line:\n%s", buf.String())
	}
	// With no delivery or request id in play, omitempty keeps them out of
	// the wire shape entirely.
	for _, absent := range []string{"delivery_id", "request_id"} {
		if strings.Contains(w.Body.String(), absent) {
			t.Fatalf("body should omit %s: %s", absent, w.Body.String())
		}
	}
}

func TestFail_WithoutParkedLogger(t *testing.T) {
	// Router wiring calls Fail before Logger has run (NoRoute, method
	// checks), so the 5xx logging path must survive a bare context.
	w := serveOnce(nil, func(c *gin.Context) {
		fail(c, http.StatusInternalServerError, ErrCodeInternal)
	})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if er := decodeEnvelope(t, w); er.Code != "internal_error" {
		t.Fatalf("envelope = %+v", er)
	}
}

func Test_ok(t *testing.T) {
	w := serveOnce(nil, func(c *gin.Context) {
		ok(c, http.StatusOK, gin.H{"ok": true, "duplicate": false})
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["ok"] != true || body["duplicate"] != false {
		t.Fatalf("body = %#v", body)
	}
}
