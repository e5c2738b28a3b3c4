package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/swift-decryption-gateway/internal/config"
)

func captureLogger() (*logrus.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.InfoLevel)
	return logger, &buf
}

func serveLogged(t *testing.T, cfg *config.LoggingConfig, req *http.Request) string {
	t.Helper()
	logger, buf := captureLogger()

	handler := LoggingMiddleware(logger, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("not found"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Status = %d, want 404", rec.Code)
	}
	return buf.String()
}

func TestLoggingDefaultFormat(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/AUTH_test/photos/cat.jpg?format=json", nil)
	req.Header.Set("X-Request-ID", "req-1")

	out := serveLogged(t, &config.LoggingConfig{AccessLogFormat: "default"}, req)

	for _, want := range []string{"GET", "/v1/AUTH_test/photos/cat.jpg", "404", "req-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("Log output missing %q: %s", want, out)
		}
	}
}

func TestLoggingJSONRedactsHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/AUTH_test/photos", nil)
	req.Header.Set("X-Auth-Token", "supersecret")
	req.Header.Set("Content-Type", "application/json")

	cfg := &config.LoggingConfig{
		AccessLogFormat: "json",
		RedactHeaders:   []string{"x-auth-token"},
	}
	out := serveLogged(t, cfg, req)

	if strings.Contains(out, "supersecret") {
		t.Errorf("Token leaked into log output: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Errorf("Redaction marker missing: %s", out)
	}
	if !strings.Contains(out, "application/json") {
		t.Errorf("Non-sensitive header missing: %s", out)
	}
}

func TestLoggingCLFFormat(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/AUTH_test/photos", nil)

	out := serveLogged(t, &config.LoggingConfig{AccessLogFormat: "clf"}, req)

	if !strings.Contains(out, `GET /v1/AUTH_test/photos HTTP/1.1`) {
		t.Errorf("CLF request line missing: %s", out)
	}
	if !strings.Contains(out, "404") {
		t.Errorf("CLF status missing: %s", out)
	}
}

func TestShouldRedactHeader(t *testing.T) {
	redact := []string{"Authorization", "x-auth-token"}

	if !shouldRedactHeader("authorization", redact) {
		t.Error("authorization must be redacted")
	}
	if !shouldRedactHeader("X-Auth-Token", redact) {
		t.Error("matching must be case-insensitive")
	}
	if shouldRedactHeader("content-type", redact) {
		t.Error("content-type must not be redacted")
	}
}

func TestResponseWriterTracksBytes(t *testing.T) {
	logger, _ := captureLogger()

	handler := LoggingMiddleware(logger, &config.LoggingConfig{AccessLogFormat: "default"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("12345"))
			w.Write([]byte("678"))
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Body.Len() != 8 {
		t.Errorf("Body length = %d, want 8", rec.Body.Len())
	}
}
