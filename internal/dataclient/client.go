package dataclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"veloviz/internal/strava"
)

const relayTimeout = 30 * time.Second

// TokenSource supplies valid access tokens and can drop the stored credential when
// the relay reports it was rejected. *authclient.AuthClient satisfies it.
type TokenSource interface {
	GetValidToken(ctx context.Context) (string, error)
	Logout(ctx context.Context) error
}

// UpstreamError reports a failed activity fetch. Retryable from the user's point of
// view; AuthRejected marks the cases where the stored credential was cleared.
type UpstreamError struct {
	StatusCode   int
	Message      string
	AuthRejected bool
}

func (upstreamErr *UpstreamError) Error() string {
	return fmt.Sprintf("data_client: activity fetch failed (%d): %s", upstreamErr.StatusCode, upstreamErr.Message)
}

// DataClient performs authenticated reads against the relay.
type DataClient struct {
	tokens       TokenSource
	relayBaseURL string
	httpClient   *http.Client
	logger       *zap.Logger
}

// New constructs a DataClient for the given relay.
func New(relayBaseURL string, tokens TokenSource, logger *zap.Logger) *DataClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DataClient{
		tokens:       tokens,
		relayBaseURL: relayBaseURL,
		httpClient:   &http.Client{Timeout: relayTimeout},
		logger:       logger,
	}
}

// GetLastActivity fetches the most recent activity with its segment efforts. When
// the relay reports the credential was rejected, the stored token is cleared before
// the error propagates so the next view load routes to login.
func (client *DataClient) GetLastActivity(ctx context.Context) (*strava.Activity, error) {
	accessToken, tokenErr := client.tokens.GetValidToken(ctx)
	if tokenErr != nil {
		return nil, tokenErr
	}

	request, buildErr := http.NewRequestWithContext(ctx, http.MethodGet, client.relayBaseURL+"/activities/last", nil)
	if buildErr != nil {
		return nil, fmt.Errorf("data_client: build request: %w", buildErr)
	}
	request.Header.Set("Authorization", "Bearer "+accessToken)

	response, requestErr := client.httpClient.Do(request)
	if requestErr != nil {
		return nil, fmt.Errorf("data_client: relay request: %w", requestErr)
	}
	defer func() { _ = response.Body.Close() }()

	body, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return nil, fmt.Errorf("data_client: read response: %w", readErr)
	}

	if response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden {
		client.logger.Warn("credential rejected, clearing stored token",
			zap.Int("status", response.StatusCode))
		if clearErr := client.tokens.Logout(ctx); clearErr != nil {
			client.logger.Warn("clearing rejected token", zap.Error(clearErr))
		}
		return nil, &UpstreamError{StatusCode: response.StatusCode, Message: errorMessage(body), AuthRejected: true}
	}
	if response.StatusCode != http.StatusOK {
		return nil, &UpstreamError{StatusCode: response.StatusCode, Message: errorMessage(body)}
	}

	var activity strava.Activity
	if decodeErr := json.Unmarshal(body, &activity); decodeErr != nil {
		return nil, fmt.Errorf("data_client: decode activity: %w", decodeErr)
	}
	return &activity, nil
}

func errorMessage(body []byte) string {
	var envelope struct {
		Error string `json:"error"`
	}
	if decodeErr := json.Unmarshal(body, &envelope); decodeErr != nil || envelope.Error == "" {
		return string(body)
	}
	return envelope.Error
}
