package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"shipping-metrics-api/configs"

	gocache "github.com/patrickmn/go-cache"
)

// ClientPayload is the client record created in the downstream shipping
// API during registration.
type ClientPayload struct {
	Name            string        `json:"name"`
	Contact         ClientContact `json:"contact"`
	CarrierAccounts []string      `json:"carrierAccounts"`
}

type ClientContact struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Position string `json:"position"`
	Phone    string `json:"phone"`
}

// DownstreamAPI is the shipping API surface consumed during
// registration. Calls authenticate with a machine-to-machine token,
// distinct from end-user bearer tokens.
type DownstreamAPI interface {
	CreateClient(ctx context.Context, payload ClientPayload) (string, error)
}

// M2MService calls the downstream shipping API with a cached
// client-credentials token.
type M2MService struct {
	cfg        *configs.Config
	httpClient *http.Client
	tokenCache *gocache.Cache
}

func NewM2MService(cfg *configs.Config) *M2MService {
	return &M2MService{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		tokenCache: gocache.New(cfg.M2MTokenTTL, 10*time.Minute),
	}
}

const m2mTokenKey = "m2m_token"

func (s *M2MService) token(ctx context.Context) (string, error) {
	if cached, found := s.tokenCache.Get(m2mTokenKey); found {
		return cached.(string), nil
	}

	body, _ := json.Marshal(map[string]string{
		"client_id":     s.cfg.IdentityM2MClientID,
		"client_secret": s.cfg.IdentityM2MSecret,
		"audience":      s.cfg.DownstreamAPIAudience,
		"grant_type":    "client_credentials",
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("https://%s/oauth/token", s.cfg.IdentityDomain), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get M2M token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errText, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("M2M token request failed: %s - %s", resp.Status, errText)
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("failed to decode M2M token: %w", err)
	}

	s.tokenCache.SetDefault(m2mTokenKey, token.AccessToken)
	return token.AccessToken, nil
}

// CreateClient registers a new client record downstream and returns its
// client_id.
func (s *M2MService) CreateClient(ctx context.Context, payload ClientPayload) (string, error) {
	token, err := s.token(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.DownstreamAPIURL+"/clients/", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Source", "go-api")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("downstream client creation failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("downstream API returned %s: %s", resp.Status, data)
	}

	var created struct {
		ClientID string `json:"client_id"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		return "", fmt.Errorf("failed to decode downstream response: %w", err)
	}
	if created.ClientID == "" {
		return "", errors.New("downstream API returned no client_id")
	}
	return created.ClientID, nil
}
