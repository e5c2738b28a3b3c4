package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kenneth/swift-decryption-gateway/internal/cache"
	"github.com/kenneth/swift-decryption-gateway/internal/decrypt"
	"github.com/kenneth/swift-decryption-gateway/internal/keys"
	"github.com/kenneth/swift-decryption-gateway/internal/metrics"
)

func objectRequest() decrypt.RequestInfo {
	return decrypt.RequestInfo{
		Method: http.MethodGet,
		Path:   keys.Path{Account: "AUTH_test", Container: "photos", Object: "cat.jpg"},
	}
}

func newInfoClient(t *testing.T, backend http.Handler, infoCache cache.Cache) (*InfoClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	u, err := NewUpstream(srv.URL, 5*time.Second, testLogger())
	if err != nil {
		t.Fatalf("NewUpstream failed: %v", err)
	}
	m := metrics.NewMetricsWithRegistry(prometheus.NewRegistry())
	return NewInfoClient(u, infoCache, m, testLogger()), srv
}

func TestGetObjectInfoExtractsSysmeta(t *testing.T) {
	var gotMethod, gotOverride string
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotOverride = r.Header.Get(decrypt.OverrideFlagHeader)
		w.Header().Set("X-Object-Sysmeta-Crypto-Etag", "ciphertext")
		w.Header().Set("X-Object-Sysmeta-Storage-Policy", "gold")
		w.Header().Set("X-Object-Meta-Color", "red")
	})

	c, _ := newInfoClient(t, backend, nil)
	info, err := c.GetObjectInfo(context.Background(), objectRequest())
	if err != nil {
		t.Fatalf("GetObjectInfo failed: %v", err)
	}

	if gotMethod != http.MethodHead {
		t.Errorf("Subrequest method = %s, want HEAD", gotMethod)
	}
	if gotOverride != "true" {
		t.Errorf("Subrequest must carry the override flag, got %q", gotOverride)
	}
	if info.Sysmeta["crypto-etag"] != "ciphertext" {
		t.Errorf("Sysmeta = %v", info.Sysmeta)
	}
	if info.Sysmeta["storage-policy"] != "gold" {
		t.Errorf("Sysmeta = %v", info.Sysmeta)
	}
	if _, ok := info.Sysmeta["color"]; ok {
		t.Error("User metadata must not leak into sysmeta")
	}
}

func TestGetObjectInfoMissingObject(t *testing.T) {
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	c, _ := newInfoClient(t, backend, nil)
	info, err := c.GetObjectInfo(context.Background(), objectRequest())
	if err != nil {
		t.Fatalf("Missing object must not be an error: %v", err)
	}
	if len(info.Sysmeta) != 0 {
		t.Errorf("Sysmeta = %v, want empty", info.Sysmeta)
	}
}

func TestGetObjectInfoUpstreamFailure(t *testing.T) {
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	c, _ := newInfoClient(t, backend, nil)
	if _, err := c.GetObjectInfo(context.Background(), objectRequest()); err == nil {
		t.Error("Upstream 5xx must be an error")
	}
}

func TestGetObjectInfoCaches(t *testing.T) {
	hits := 0
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("X-Object-Sysmeta-Crypto-Etag", "ciphertext")
	})

	infoCache := cache.NewMemoryCache(10, time.Minute)
	c, _ := newInfoClient(t, backend, infoCache)

	for i := 0; i < 3; i++ {
		info, err := c.GetObjectInfo(context.Background(), objectRequest())
		if err != nil {
			t.Fatalf("GetObjectInfo failed: %v", err)
		}
		if info.Sysmeta["crypto-etag"] != "ciphertext" {
			t.Errorf("Sysmeta = %v", info.Sysmeta)
		}
	}

	if hits != 1 {
		t.Errorf("Backend HEAD count = %d, want 1 with caching", hits)
	}
}
