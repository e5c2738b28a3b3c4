package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractStoragePath(t *testing.T) {
	tests := []struct {
		path      string
		account   string
		container string
		object    string
	}{
		{"/v1/AUTH_test/photos/cat.jpg", "AUTH_test", "photos", "cat.jpg"},
		{"/v1/AUTH_test/photos/dir/cat.jpg", "AUTH_test", "photos", "dir/cat.jpg"},
		{"/v1/AUTH_test/photos", "AUTH_test", "photos", ""},
		{"/v1/AUTH_test", "AUTH_test", "", ""},
		{"/healthz", "", "", ""},
		{"/v2/AUTH_test/photos", "", "", ""},
	}
	for _, tt := range tests {
		account, container, object := extractStoragePath(tt.path)
		if account != tt.account || container != tt.container || object != tt.object {
			t.Errorf("extractStoragePath(%s) = %q %q %q, want %q %q %q",
				tt.path, account, container, object, tt.account, tt.container, tt.object)
		}
	}
}

func TestGetSpanName(t *testing.T) {
	tests := []struct {
		method    string
		container string
		object    string
		want      string
	}{
		{"GET", "photos", "cat.jpg", "Swift GetObject"},
		{"GET", "photos", "", "Swift ListContainer"},
		{"HEAD", "photos", "cat.jpg", "Swift HeadObject"},
		{"HEAD", "photos", "", "Swift HeadContainer"},
		{"PUT", "photos", "cat.jpg", "Swift PutObject"},
		{"DELETE", "photos", "cat.jpg", "Swift DeleteObject"},
		{"POST", "photos", "cat.jpg", "HTTP POST"},
		{"GET", "", "", "HTTP GET"},
	}
	for _, tt := range tests {
		if got := getSpanName(tt.method, tt.container, tt.object); got != tt.want {
			t.Errorf("getSpanName(%s, %s, %s) = %q, want %q",
				tt.method, tt.container, tt.object, got, tt.want)
		}
	}
}

func TestGetRemoteAddr(t *testing.T) {
	realIP := httptest.NewRequest(http.MethodGet, "/", nil)
	realIP.Header.Set("X-Real-IP", "10.0.0.1")
	realIP.Header.Set("X-Forwarded-For", "10.0.0.2")
	if got := getRemoteAddr(realIP); got != "10.0.0.1" {
		t.Errorf("X-Real-IP should win, got %q", got)
	}

	forwarded := httptest.NewRequest(http.MethodGet, "/", nil)
	forwarded.Header.Set("X-Forwarded-For", "10.0.0.2, 10.0.0.3")
	if got := getRemoteAddr(forwarded); got != "10.0.0.2" {
		t.Errorf("First X-Forwarded-For entry should win, got %q", got)
	}

	direct := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := getRemoteAddr(direct); got != direct.RemoteAddr {
		t.Errorf("RemoteAddr fallback, got %q", got)
	}
}

func TestTracingMiddlewarePassesThrough(t *testing.T) {
	handler := TracingMiddleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("created"))
	}))

	req := httptest.NewRequest(http.MethodPut, "/v1/AUTH_test/photos/cat.jpg", nil)
	req.Header.Set("X-Auth-Token", "secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("Status = %d, want 201", rec.Code)
	}
	if rec.Body.String() != "created" {
		t.Errorf("Body = %q", rec.Body.String())
	}
}
