package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// tokenRefreshMargin is how long before the upstream token's expiry the
// client refreshes it.
const tokenRefreshMargin = 2 * time.Minute

// ProxyCredentials is what the upstream provisioning API hands back for a
// new lease.
type ProxyCredentials struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// ProvisionService talks to the third-party proxy provisioning API. The
// upstream bearer token is cached and refreshed before it expires; the
// clock is injectable so the refresh logic is testable.
type ProvisionService struct {
	apiURL string
	apiKey string
	client *http.Client
	now    func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewProvisionService creates a new provisioning client
func NewProvisionService(apiURL, apiKey string, timeout time.Duration) *ProvisionService {
	return &ProvisionService{
		apiURL: apiURL,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

// Provision requests a new proxy lease of the given type and duration and
// returns its connection credentials.
func (s *ProvisionService) Provision(proxyType string, durationDays int) (*ProxyCredentials, error) {
	token, err := s.bearerToken()
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"type":          proxyType,
		"duration_days": durationDays,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, s.apiURL+"/v1/proxies", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach provisioning API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("provisioning API returned status %d", resp.StatusCode)
	}

	var apiResponse struct {
		Code int               `json:"code"`
		Msg  string            `json:"msg"`
		Data *ProxyCredentials `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("failed to parse provisioning response: %w", err)
	}

	if apiResponse.Code != 0 {
		return nil, fmt.Errorf("provisioning API error: %s", apiResponse.Msg)
	}
	if apiResponse.Data == nil {
		return nil, fmt.Errorf("no data in provisioning response")
	}

	return apiResponse.Data, nil
}

// bearerToken returns a valid upstream token, authenticating again when
// the cached one is within the refresh margin of its expiry.
func (s *ProvisionService) bearerToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.tokenExpiry.Add(-tokenRefreshMargin)) {
		return s.token, nil
	}

	payload := map[string]string{"api_key": s.apiKey}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	resp, err := s.client.Post(s.apiURL+"/v1/auth", "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to authenticate with provisioning API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provisioning auth returned status %d", resp.StatusCode)
	}

	var authResponse struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"` // seconds
	}
	if err := json.NewDecoder(resp.Body).Decode(&authResponse); err != nil {
		return "", fmt.Errorf("failed to parse auth response: %w", err)
	}
	if authResponse.Token == "" {
		return "", fmt.Errorf("empty token in auth response")
	}

	s.token = authResponse.Token
	s.tokenExpiry = s.now().Add(time.Duration(authResponse.ExpiresIn) * time.Second)
	return s.token, nil
}
