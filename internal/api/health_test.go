package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenneth/swift-decryption-gateway/internal/cache"
)

func TestHealthEndpoint(t *testing.T) {
	infoCache := cache.NewMemoryCache(10, time.Minute)
	infoCache.Set(context.Background(), "/AUTH_test/photos/cat.jpg", nil, 0)
	infoCache.Get(context.Background(), "/AUTH_test/photos/cat.jpg")

	router := mux.NewRouter()
	NewHealth("1.2.3", infoCache).RegisterRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "1.2.3", body["version"])

	cacheStats, ok := body["cache"].(map[string]interface{})
	require.True(t, ok, "health body must include cache stats")
	assert.Equal(t, float64(1), cacheStats["items"])
	assert.Equal(t, float64(1), cacheStats["hits"])
}

func TestHealthWithoutCache(t *testing.T) {
	router := mux.NewRouter()
	NewHealth("dev", nil).RegisterRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotContains(t, body, "cache")
}

func TestReadyAndLiveEndpoints(t *testing.T) {
	router := mux.NewRouter()
	NewHealth("dev", nil).RegisterRoutes(router)

	for path, want := range map[string]string{"/ready": "ready", "/live": "alive"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, want, rec.Body.String(), path)
	}
}

func TestGetClientIP(t *testing.T) {
	forwarded := httptest.NewRequest(http.MethodGet, "/", nil)
	forwarded.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	assert.Equal(t, "10.0.0.1", getClientIP(forwarded))

	realIP := httptest.NewRequest(http.MethodGet, "/", nil)
	realIP.Header.Set("X-Real-IP", "10.0.0.3")
	assert.Equal(t, "10.0.0.3", getClientIP(realIP))

	direct := httptest.NewRequest(http.MethodGet, "/", nil)
	direct.RemoteAddr = "192.0.2.1:34567"
	assert.Equal(t, "192.0.2.1", getClientIP(direct))
}

func TestGetRequestID(t *testing.T) {
	withID := httptest.NewRequest(http.MethodGet, "/", nil)
	withID.Header.Set("X-Request-ID", "req-42")
	assert.Equal(t, "req-42", getRequestID(withID))

	without := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", getRequestID(without))
}
