package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUpstreamStub(t *testing.T, authCalls *atomic.Int32, expiresIn int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/auth", func(w http.ResponseWriter, r *http.Request) {
		authCalls.Add(1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"token":      "tok-123",
			"expires_in": expiresIn,
		})
	})
	mux.HandleFunc("/v1/proxies", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 0,
			"data": map[string]interface{}{
				"host":     "198.51.100.7",
				"port":     1080,
				"protocol": "socks5",
				"username": "lease-user",
				"password": "lease-pass",
			},
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestProvision(t *testing.T) {
	var authCalls atomic.Int32
	server := newUpstreamStub(t, &authCalls, 3600)

	svc := NewProvisionService(server.URL, "key", 5*time.Second)

	creds, err := svc.Provision("isp", 30)
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.7", creds.Host)
	assert.Equal(t, 1080, creds.Port)
	assert.Equal(t, "socks5", creds.Protocol)

	// Token is cached across calls
	_, err = svc.Provision("isp", 7)
	require.NoError(t, err)
	assert.Equal(t, int32(1), authCalls.Load())
}

func TestProvisionTokenRefreshBeforeExpiry(t *testing.T) {
	var authCalls atomic.Int32
	server := newUpstreamStub(t, &authCalls, 3600)

	svc := NewProvisionService(server.URL, "key", 5*time.Second)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.Provision("isp", 30)
	require.NoError(t, err)
	require.Equal(t, int32(1), authCalls.Load())

	// Still comfortably before expiry: cached token reused
	now = now.Add(30 * time.Minute)
	_, err = svc.Provision("isp", 30)
	require.NoError(t, err)
	assert.Equal(t, int32(1), authCalls.Load())

	// Inside the refresh margin: a new token is fetched
	now = now.Add(29*time.Minute + 30*time.Second)
	_, err = svc.Provision("isp", 30)
	require.NoError(t, err)
	assert.Equal(t, int32(2), authCalls.Load())
}
