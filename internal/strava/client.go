package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTokenURL is Strava's OAuth token endpoint.
	DefaultTokenURL = "https://www.strava.com/oauth/token"
	// DefaultAPIBaseURL is the Strava REST API base.
	DefaultAPIBaseURL = "https://www.strava.com/api/v3"
	// DefaultAuthorizeURL is the browser-facing authorization endpoint.
	DefaultAuthorizeURL = "https://www.strava.com/oauth/authorize"

	// Scope requested on login. Strava uses a single comma-separated scope value.
	Scope = "read,activity:read_all"

	providerTimeout = 10 * time.Second
)

// ClientConfig carries the credentials and endpoints for talking to Strava.
// TokenURL and APIBaseURL default to the production endpoints; tests point them at a
// fake provider.
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	TokenURL     string
	APIBaseURL   string
}

// Client performs the provider-side calls the relay needs: token exchange, token
// refresh, and activity reads. It holds the confidential client secret and therefore
// only ever runs server-side.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// UpstreamStatusError reports a non-2xx provider response with its raw body so the
// relay can pass the status through to the browser client.
type UpstreamStatusError struct {
	StatusCode int
	Body       string
}

func (upstreamErr *UpstreamStatusError) Error() string {
	return fmt.Sprintf("strava: upstream status %d: %s", upstreamErr.StatusCode, upstreamErr.Body)
}

// NewClient constructs a provider client with sane endpoint defaults and a bounded
// request timeout.
func NewClient(config ClientConfig) *Client {
	if strings.TrimSpace(config.TokenURL) == "" {
		config.TokenURL = DefaultTokenURL
	}
	if strings.TrimSpace(config.APIBaseURL) == "" {
		config.APIBaseURL = DefaultAPIBaseURL
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: providerTimeout},
	}
}

// ExchangeCode swaps an authorization code for a token payload. Strava expects
// form-encoded parameters, not JSON.
func (client *Client) ExchangeCode(ctx context.Context, code string) (*TokenPayload, error) {
	form := url.Values{}
	form.Set("client_id", client.config.ClientID)
	form.Set("client_secret", client.config.ClientSecret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", client.config.RedirectURI)
	return client.postTokenForm(ctx, form)
}

// RefreshToken mints a fresh token payload from a refresh token.
func (client *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenPayload, error) {
	form := url.Values{}
	form.Set("client_id", client.config.ClientID)
	form.Set("client_secret", client.config.ClientSecret)
	form.Set("refresh_token", refreshToken)
	form.Set("grant_type", "refresh_token")
	return client.postTokenForm(ctx, form)
}

// ListActivities returns the athlete's activity summaries, most recent first.
func (client *Client) ListActivities(ctx context.Context, accessToken string, perPage int) ([]ActivitySummary, error) {
	params := url.Values{}
	params.Set("per_page", strconv.Itoa(perPage))
	requestURL := client.config.APIBaseURL + "/athlete/activities?" + params.Encode()

	body, requestErr := client.getJSON(ctx, requestURL, accessToken)
	if requestErr != nil {
		return nil, requestErr
	}
	var summaries []ActivitySummary
	if decodeErr := json.Unmarshal(body, &summaries); decodeErr != nil {
		return nil, fmt.Errorf("strava: decode activity list: %w", decodeErr)
	}
	return summaries, nil
}

// GetActivity fetches one activity's full detail, all segment efforts included.
func (client *Client) GetActivity(ctx context.Context, accessToken string, activityID int64) (*Activity, error) {
	requestURL := fmt.Sprintf("%s/activities/%d?include_all_efforts=true", client.config.APIBaseURL, activityID)

	body, requestErr := client.getJSON(ctx, requestURL, accessToken)
	if requestErr != nil {
		return nil, requestErr
	}
	var activity Activity
	if decodeErr := json.Unmarshal(body, &activity); decodeErr != nil {
		return nil, fmt.Errorf("strava: decode activity detail: %w", decodeErr)
	}
	return &activity, nil
}

func (client *Client) postTokenForm(ctx context.Context, form url.Values) (*TokenPayload, error) {
	request, buildErr := http.NewRequestWithContext(ctx, http.MethodPost, client.config.TokenURL, strings.NewReader(form.Encode()))
	if buildErr != nil {
		return nil, fmt.Errorf("strava: build token request: %w", buildErr)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	request.Header.Set("Accept", "application/json")

	response, requestErr := client.httpClient.Do(request)
	if requestErr != nil {
		return nil, fmt.Errorf("strava: token request: %w", requestErr)
	}
	defer func() { _ = response.Body.Close() }()

	body, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return nil, fmt.Errorf("strava: read token response: %w", readErr)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, &UpstreamStatusError{StatusCode: response.StatusCode, Body: string(body)}
	}

	var payload TokenPayload
	if decodeErr := json.Unmarshal(body, &payload); decodeErr != nil {
		return nil, fmt.Errorf("strava: decode token response: %w", decodeErr)
	}
	return &payload, nil
}

func (client *Client) getJSON(ctx context.Context, requestURL string, accessToken string) ([]byte, error) {
	request, buildErr := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if buildErr != nil {
		return nil, fmt.Errorf("strava: build api request: %w", buildErr)
	}
	request.Header.Set("Authorization", "Bearer "+accessToken)

	response, requestErr := client.httpClient.Do(request)
	if requestErr != nil {
		return nil, fmt.Errorf("strava: api request: %w", requestErr)
	}
	defer func() { _ = response.Body.Close() }()

	body, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return nil, fmt.Errorf("strava: read api response: %w", readErr)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, &UpstreamStatusError{StatusCode: response.StatusCode, Body: string(body)}
	}
	return body, nil
}
