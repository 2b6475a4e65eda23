package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/skratchdot/open-golang/open"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"veloviz/internal/strava"
	"veloviz/internal/tokenstore"
)

const (
	// refreshLookahead refreshes tokens that expire within this window so a request
	// never goes out with a token about to lapse mid-flight.
	refreshLookahead = 5 * time.Minute

	relayTimeout = 30 * time.Second
)

// Config holds the client-side OAuth settings. No secret: the relay keeps it.
type Config struct {
	ClientID     string
	RedirectURI  string
	AuthorizeURL string
	RelayBaseURL string
}

// AuthClient drives the login, exchange, refresh, and logout flows against the relay.
// The processed-code marker and the in-flight exchange latch live on the instance so
// independent clients (and tests) do not interfere with each other.
type AuthClient struct {
	store        tokenstore.Store
	relayBaseURL string
	oauthConfig  *oauth2.Config
	httpClient   *http.Client
	logger       *zap.Logger
	now          func() time.Time
	openBrowser  func(targetURL string) error

	mutex         sync.Mutex
	processedCode string
	inflight      map[string]*exchangeCall
}

// exchangeCall collapses concurrent HandleCallback calls for the same code into one
// provider exchange; the provider invalidates a code pair on second use.
type exchangeCall struct {
	done   chan struct{}
	record tokenstore.TokenRecord
	err    error
}

// New constructs an AuthClient backed by the given token store.
func New(config Config, store tokenstore.Store, logger *zap.Logger) *AuthClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	authorizeURL := config.AuthorizeURL
	if authorizeURL == "" {
		authorizeURL = strava.DefaultAuthorizeURL
	}
	return &AuthClient{
		store:        store,
		relayBaseURL: config.RelayBaseURL,
		oauthConfig: &oauth2.Config{
			ClientID:    config.ClientID,
			Endpoint:    oauth2.Endpoint{AuthURL: authorizeURL},
			RedirectURL: config.RedirectURI,
			Scopes:      []string{strava.Scope},
		},
		httpClient:  &http.Client{Timeout: relayTimeout},
		logger:      logger,
		now:         time.Now,
		openBrowser: open.Run,
		inflight:    make(map[string]*exchangeCall),
	}
}

// LoginURL builds the provider authorize URL for the given CSRF state.
func (client *AuthClient) LoginURL(state string) string {
	return client.oauthConfig.AuthCodeURL(state, oauth2.SetAuthURLParam("approval_prompt", "auto"))
}

// Login clears any stale processed-code marker and opens the authorize URL in the
// user's browser. Control returns to the application via the redirect.
func (client *AuthClient) Login(state string) error {
	client.mutex.Lock()
	client.processedCode = ""
	client.mutex.Unlock()

	loginURL := client.LoginURL(state)
	client.logger.Info("opening provider authorize url")
	if openErr := client.openBrowser(loginURL); openErr != nil {
		return fmt.Errorf("auth_client: open browser: %w", openErr)
	}
	return nil
}

// HandleCallback exchanges an authorization code for tokens through the relay.
// A code that was already exchanged returns the cached record without a network call,
// so duplicate callback deliveries never burn the one-use code twice. Concurrent
// calls with the same code share a single exchange.
func (client *AuthClient) HandleCallback(ctx context.Context, code string) (tokenstore.TokenRecord, error) {
	client.mutex.Lock()
	if client.processedCode == code {
		record, loadErr := client.store.Load(ctx)
		if loadErr == nil {
			client.mutex.Unlock()
			client.logger.Info("authorization code already processed, reusing stored token")
			return record, nil
		}
	}
	if pending, exists := client.inflight[code]; exists {
		client.mutex.Unlock()
		<-pending.done
		return pending.record, pending.err
	}
	call := &exchangeCall{done: make(chan struct{})}
	client.inflight[code] = call
	client.mutex.Unlock()

	record, exchangeErr := client.exchangeCode(ctx, code)

	client.mutex.Lock()
	delete(client.inflight, code)
	if exchangeErr == nil {
		client.processedCode = code
	}
	client.mutex.Unlock()

	call.record = record
	call.err = exchangeErr
	close(call.done)
	return record, exchangeErr
}

func (client *AuthClient) exchangeCode(ctx context.Context, code string) (tokenstore.TokenRecord, error) {
	payload, requestErr := client.postRelay(ctx, "/auth/callback", map[string]string{"code": code})
	if requestErr != nil {
		return tokenstore.TokenRecord{}, requestErr
	}

	record := tokenstore.TokenRecord{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresAt:    payload.ExpiresAt,
		TokenType:    payload.TokenType,
	}
	if saveErr := client.store.Save(ctx, record); saveErr != nil {
		return tokenstore.TokenRecord{}, fmt.Errorf("auth_client: persist token: %w", saveErr)
	}
	client.logger.Info("token exchange successful",
		zap.Int64("expires_at", record.ExpiresAt))
	return record, nil
}

// IsAuthenticated reports whether a stored, unexpired token exists. Pure read.
func (client *AuthClient) IsAuthenticated(ctx context.Context) bool {
	record, loadErr := client.store.Load(ctx)
	if loadErr != nil {
		return false
	}
	return !record.Expired(client.now())
}

// GetValidToken returns an access token good for at least the refresh lookahead,
// transparently refreshing when the stored one is about to expire.
func (client *AuthClient) GetValidToken(ctx context.Context) (string, error) {
	record, loadErr := client.store.Load(ctx)
	if loadErr != nil {
		if errors.Is(loadErr, tokenstore.ErrNoToken) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("auth_client: load token: %w", loadErr)
	}
	if record.ExpiresWithin(client.now(), refreshLookahead) {
		return client.RefreshToken(ctx)
	}
	return record.AccessToken, nil
}

// RefreshToken exchanges the stored refresh token for a new record via the relay.
// Failure clears the stored record entirely, forcing a fresh login.
func (client *AuthClient) RefreshToken(ctx context.Context) (string, error) {
	record, loadErr := client.store.Load(ctx)
	if loadErr != nil {
		return "", ErrNoRefreshToken
	}
	if record.RefreshToken == "" {
		return "", ErrNoRefreshToken
	}

	payload, requestErr := client.postRelay(ctx, "/auth/refresh", map[string]string{"refresh_token": record.RefreshToken})
	if requestErr != nil {
		if clearErr := client.store.Clear(ctx); clearErr != nil {
			client.logger.Warn("clearing token after failed refresh", zap.Error(clearErr))
		}
		client.logger.Warn("token refresh failed, stored token cleared")
		return "", &RefreshError{Cause: requestErr}
	}

	refreshed := tokenstore.TokenRecord{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresAt:    payload.ExpiresAt,
		TokenType:    payload.TokenType,
	}
	if saveErr := client.store.Save(ctx, refreshed); saveErr != nil {
		return "", fmt.Errorf("auth_client: persist refreshed token: %w", saveErr)
	}
	client.logger.Info("token refreshed successfully")
	return refreshed.AccessToken, nil
}

// Logout deletes the stored token record and the processed-code marker.
func (client *AuthClient) Logout(ctx context.Context) error {
	client.mutex.Lock()
	client.processedCode = ""
	client.mutex.Unlock()
	if clearErr := client.store.Clear(ctx); clearErr != nil {
		return fmt.Errorf("auth_client: clear token: %w", clearErr)
	}
	return nil
}

func (client *AuthClient) postRelay(ctx context.Context, path string, body map[string]string) (*strava.TokenPayload, error) {
	encoded, marshalErr := json.Marshal(body)
	if marshalErr != nil {
		return nil, fmt.Errorf("auth_client: encode request: %w", marshalErr)
	}
	request, buildErr := http.NewRequestWithContext(ctx, http.MethodPost, client.relayBaseURL+path, bytes.NewReader(encoded))
	if buildErr != nil {
		return nil, fmt.Errorf("auth_client: build request: %w", buildErr)
	}
	request.Header.Set("Content-Type", "application/json")

	response, requestErr := client.httpClient.Do(request)
	if requestErr != nil {
		return nil, &AuthExchangeError{Detail: requestErr.Error()}
	}
	defer func() { _ = response.Body.Close() }()

	responseBody, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return nil, &AuthExchangeError{Detail: readErr.Error()}
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, &AuthExchangeError{Detail: relayErrorDetail(responseBody)}
	}

	var payload strava.TokenPayload
	if decodeErr := json.Unmarshal(responseBody, &payload); decodeErr != nil {
		return nil, &AuthExchangeError{Detail: "malformed relay response"}
	}
	if payload.AccessToken == "" || payload.RefreshToken == "" || payload.ExpiresAt == 0 {
		return nil, &AuthExchangeError{Detail: "incomplete token payload"}
	}
	return &payload, nil
}

func relayErrorDetail(responseBody []byte) string {
	var envelope struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	if decodeErr := json.Unmarshal(responseBody, &envelope); decodeErr != nil || envelope.Error == "" {
		return string(responseBody)
	}
	if envelope.Details != "" {
		return envelope.Error + ": " + envelope.Details
	}
	return envelope.Error
}
