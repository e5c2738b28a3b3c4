package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeadersMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("Referrer-Policy"); got != "strict-origin-when-cross-origin" {
		t.Errorf("Referrer-Policy = %q", got)
	}
	if got := rec.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS must only be set over TLS, got %q", got)
	}
}

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute, quietLogger())
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("account:AUTH_test") {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}
	if rl.Allow("account:AUTH_test") {
		t.Error("Request over the limit should be denied")
	}

	// Other keys have their own bucket.
	if !rl.Allow("account:AUTH_other") {
		t.Error("Different account must not share the bucket")
	}
}

func TestRateLimiterRefill(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond, quietLogger())
	defer rl.Stop()

	if !rl.Allow("k") {
		t.Fatal("First request should be allowed")
	}
	if rl.Allow("k") {
		t.Fatal("Second request should be denied")
	}

	time.Sleep(30 * time.Millisecond)
	if !rl.Allow("k") {
		t.Error("Request after the window should be allowed")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, quietLogger())
	defer rl.Stop()

	handler := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/AUTH_test/photos", nil))
		codes = append(codes, rec.Code)
	}

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	if fmt.Sprint(codes) != fmt.Sprint(want) {
		t.Errorf("Status codes = %v, want %v", codes, want)
	}
}

func TestGetClientKey(t *testing.T) {
	storage := httptest.NewRequest(http.MethodGet, "/v1/AUTH_test/photos/cat.jpg", nil)
	if got := getClientKey(storage); got != "account:AUTH_test" {
		t.Errorf("Storage request key = %q, want account:AUTH_test", got)
	}

	forwarded := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	forwarded.Header.Set("X-Forwarded-For", "10.0.0.1")
	if got := getClientKey(forwarded); got != "10.0.0.1" {
		t.Errorf("Forwarded request key = %q, want 10.0.0.1", got)
	}

	direct := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	if got := getClientKey(direct); got != direct.RemoteAddr {
		t.Errorf("Direct request key = %q, want %q", got, direct.RemoteAddr)
	}
}

func TestAccountFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/v1/AUTH_test/photos/cat.jpg", "AUTH_test"},
		{"/v1/AUTH_test", "AUTH_test"},
		{"/v1/", ""},
		{"/v2/AUTH_test", ""},
		{"/healthz", ""},
	}
	for _, tt := range tests {
		if got := accountFromPath(tt.path); got != tt.want {
			t.Errorf("accountFromPath(%s) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
