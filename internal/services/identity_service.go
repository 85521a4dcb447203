package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"shipping-metrics-api/configs"

	gocache "github.com/patrickmn/go-cache"
)

// Sentinel errors surfaced by the identity provider client. Handlers map
// these to 409/404; anything else becomes a generic 500.
var (
	ErrConflict = errors.New("resource already exists")
	ErrNotFound = errors.New("resource not found")
)

// IdentityUser is the subset of the provider's user record this service
// reads.
type IdentityUser struct {
	UserID        string                 `json:"user_id"`
	Email         string                 `json:"email"`
	EmailVerified bool                   `json:"email_verified"`
	UserMetadata  map[string]interface{} `json:"user_metadata"`
}

// TokenResponse is the provider's OAuth token payload.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// IdentityProvider is the user-management surface the registration flow
// depends on. The HTTP implementation talks to an Auth0-compatible
// Management API; tests substitute a fake.
type IdentityProvider interface {
	IsPhoneNumberTaken(ctx context.Context, phone string) (bool, error)
	CreateUser(ctx context.Context, email, password string, metadata map[string]interface{}) (*IdentityUser, error)
	DeleteUser(ctx context.Context, userID string) error
	UpdateUserMetadata(ctx context.Context, userID string, metadata map[string]interface{}) error
	GetUserByEmail(ctx context.Context, email string) (*IdentityUser, error)
	GetUserByPhone(ctx context.Context, phone string) (*IdentityUser, error)
	SendVerificationEmail(ctx context.Context, userID string) error
	PasswordGrant(ctx context.Context, email, password string) (*TokenResponse, error)
}

// IdentityService implements IdentityProvider over the provider's REST
// API with a cached management token.
type IdentityService struct {
	cfg        *configs.Config
	httpClient *http.Client
	tokenCache *gocache.Cache
}

func NewIdentityService(cfg *configs.Config) *IdentityService {
	return &IdentityService{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		tokenCache: gocache.New(cfg.M2MTokenTTL, 10*time.Minute),
	}
}

const managementTokenKey = "management_token"

func (s *IdentityService) managementToken(ctx context.Context) (string, error) {
	if cached, found := s.tokenCache.Get(managementTokenKey); found {
		return cached.(string), nil
	}

	body, _ := json.Marshal(map[string]string{
		"client_id":     s.cfg.IdentityM2MClientID,
		"client_secret": s.cfg.IdentityM2MSecret,
		"audience":      fmt.Sprintf("https://%s/api/v2/", s.cfg.IdentityDomain),
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
		return "", fmt.Errorf("failed to get management token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errText, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("management token request failed: %s - %s", resp.Status, errText)
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	s.tokenCache.SetDefault(managementTokenKey, token.AccessToken)
	return token.AccessToken, nil
}

// managementRequest performs an authenticated Management API call and
// returns the response body for 2xx statuses.
func (s *IdentityService) managementRequest(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	token, err := s.managementToken(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method,
		fmt.Sprintf("https://%s/api/v2%s", s.cfg.IdentityDomain, path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity provider request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusConflict:
		return nil, ErrConflict
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("identity provider returned %s: %s", resp.Status, data)
	}
}

// IsPhoneNumberTaken searches user metadata for the phone number.
func (s *IdentityService) IsPhoneNumberTaken(ctx context.Context, phone string) (bool, error) {
	user, err := s.GetUserByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return user != nil, nil
}

func (s *IdentityService) CreateUser(ctx context.Context, email, password string, metadata map[string]interface{}) (*IdentityUser, error) {
	payload := map[string]interface{}{
		"email":          email,
		"password":       password,
		"connection":     s.cfg.IdentityConnection,
		"email_verified": false,
	}
	if len(metadata) > 0 {
		payload["user_metadata"] = metadata
	}

	data, err := s.managementRequest(ctx, http.MethodPost, "/users", payload)
	if err != nil {
		return nil, err
	}

	var user IdentityUser
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to decode created user: %w", err)
	}
	if user.UserID == "" {
		return nil, errors.New("identity provider returned no user_id")
	}
	return &user, nil
}

func (s *IdentityService) DeleteUser(ctx context.Context, userID string) error {
	_, err := s.managementRequest(ctx, http.MethodDelete, "/users/"+url.PathEscape(userID), nil)
	return err
}

func (s *IdentityService) UpdateUserMetadata(ctx context.Context, userID string, metadata map[string]interface{}) error {
	payload := map[string]interface{}{"user_metadata": metadata}
	_, err := s.managementRequest(ctx, http.MethodPatch, "/users/"+url.PathEscape(userID), payload)
	return err
}

func (s *IdentityService) GetUserByEmail(ctx context.Context, email string) (*IdentityUser, error) {
	path := "/users-by-email?email=" + url.QueryEscape(email)
	data, err := s.managementRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var users []IdentityUser
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("failed to decode user lookup: %w", err)
	}
	if len(users) == 0 {
		return nil, ErrNotFound
	}
	return &users[0], nil
}

func (s *IdentityService) GetUserByPhone(ctx context.Context, phone string) (*IdentityUser, error) {
	query := url.QueryEscape(fmt.Sprintf(`user_metadata.phone:"%s"`, phone))
	path := "/users?q=" + query + "&search_engine=v3"

	data, err := s.managementRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var users []IdentityUser
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("failed to decode user search: %w", err)
	}
	if len(users) == 0 {
		return nil, ErrNotFound
	}
	return &users[0], nil
}

func (s *IdentityService) SendVerificationEmail(ctx context.Context, userID string) error {
	payload := map[string]string{"user_id": userID}
	_, err := s.managementRequest(ctx, http.MethodPost, "/jobs/verification-email", payload)
	return err
}

// PasswordGrant exchanges end-user credentials for tokens through the
// provider's resource-owner password flow.
func (s *IdentityService) PasswordGrant(ctx context.Context, email, password string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "http://auth0.com/oauth/grant-type/password-realm")
	form.Set("username", email)
	form.Set("password", password)
	form.Set("realm", s.cfg.IdentityConnection)
	form.Set("audience", s.cfg.IdentityAudience)
	form.Set("scope", "openid profile email")
	form.Set("client_id", s.cfg.IdentitySPAClientID)
	form.Set("client_secret", s.cfg.IdentitySPASecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("https://%s/oauth/token", s.cfg.IdentityDomain),
		bytes.NewReader([]byte(form.Encode())))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("password grant request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errText, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("password grant rejected: %s - %s", resp.Status, errText)
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, errors.New("identity provider returned no access token")
	}
	return &token, nil
}
