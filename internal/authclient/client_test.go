package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"veloviz/internal/tokenstore"
)

type fakeRelay struct {
	server        *httptest.Server
	exchangeCalls atomic.Int64
	refreshCalls  atomic.Int64
	failExchange  bool
	failRefresh   bool
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	relay := &fakeRelay{}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/callback", func(writer http.ResponseWriter, request *http.Request) {
		relay.exchangeCalls.Add(1)
		if relay.failExchange {
			writer.WriteHeader(http.StatusBadRequest)
			_, _ = writer.Write([]byte(`{"error":"Failed to exchange token with Strava","details":"invalid code"}`))
			return
		}
		var inbound struct {
			Code string `json:"code"`
		}
		_ = json.NewDecoder(request.Body).Decode(&inbound)
		writer.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(writer).Encode(map[string]any{
			"access_token":  "access-" + inbound.Code,
			"refresh_token": "refresh-" + inbound.Code,
			"expires_at":    time.Now().Add(6 * time.Hour).Unix(),
			"token_type":    "Bearer",
		})
	})
	mux.HandleFunc("/auth/refresh", func(writer http.ResponseWriter, request *http.Request) {
		relay.refreshCalls.Add(1)
		if relay.failRefresh {
			writer.WriteHeader(http.StatusInternalServerError)
			_, _ = writer.Write([]byte(`{"error":"Failed to refresh token"}`))
			return
		}
		writer.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(writer).Encode(map[string]any{
			"access_token":  "access-refreshed",
			"refresh_token": "refresh-rotated",
			"expires_at":    time.Now().Add(6 * time.Hour).Unix(),
			"token_type":    "Bearer",
		})
	})
	relay.server = httptest.NewServer(mux)
	t.Cleanup(relay.server.Close)
	return relay
}

func newTestAuthClient(t *testing.T, relay *fakeRelay, store tokenstore.Store) *AuthClient {
	t.Helper()
	return New(Config{
		ClientID:     "168187",
		RedirectURI:  "http://localhost:5173",
		RelayBaseURL: relay.server.URL,
	}, store, zaptest.NewLogger(t))
}

func storedRecord(expiresIn time.Duration) tokenstore.TokenRecord {
	return tokenstore.TokenRecord{
		AccessToken:  "access-stored",
		RefreshToken: "refresh-stored",
		ExpiresAt:    time.Now().Add(expiresIn).Unix(),
		TokenType:    "Bearer",
	}
}

func TestLoginURLParameters(t *testing.T) {
	t.Parallel()
	client := newTestAuthClient(t, newFakeRelay(t), tokenstore.NewMemoryTokenStore())

	loginURL, parseErr := url.Parse(client.LoginURL("state-xyz"))
	if parseErr != nil {
		t.Fatalf("login url does not parse: %v", parseErr)
	}
	query := loginURL.Query()
	if query.Get("client_id") != "168187" {
		t.Fatalf("unexpected client_id: %q", query.Get("client_id"))
	}
	if query.Get("response_type") != "code" {
		t.Fatalf("unexpected response_type: %q", query.Get("response_type"))
	}
	if query.Get("redirect_uri") != "http://localhost:5173" {
		t.Fatalf("unexpected redirect_uri: %q", query.Get("redirect_uri"))
	}
	if query.Get("scope") != "read,activity:read_all" {
		t.Fatalf("unexpected scope: %q", query.Get("scope"))
	}
	if query.Get("approval_prompt") != "auto" {
		t.Fatalf("unexpected approval_prompt: %q", query.Get("approval_prompt"))
	}
	if query.Get("state") != "state-xyz" {
		t.Fatalf("unexpected state: %q", query.Get("state"))
	}
}

func TestHandleCallbackStoresRecord(t *testing.T) {
	t.Parallel()
	relay := newFakeRelay(t)
	store := tokenstore.NewMemoryTokenStore()
	client := newTestAuthClient(t, relay, store)

	record, callbackErr := client.HandleCallback(context.Background(), "abc123def456")
	if callbackErr != nil {
		t.Fatalf("unexpected callback error: %v", callbackErr)
	}
	if record.AccessToken != "access-abc123def456" {
		t.Fatalf("unexpected access token: %q", record.AccessToken)
	}
	stored, loadErr := store.Load(context.Background())
	if loadErr != nil {
		t.Fatalf("record not persisted: %v", loadErr)
	}
	if stored != record {
		t.Fatalf("stored record differs from returned record")
	}
}

func TestHandleCallbackDeduplicatesSameCode(t *testing.T) {
	t.Parallel()
	relay := newFakeRelay(t)
	client := newTestAuthClient(t, relay, tokenstore.NewMemoryTokenStore())

	first, firstErr := client.HandleCallback(context.Background(), "abc123def456")
	if firstErr != nil {
		t.Fatalf("unexpected first callback error: %v", firstErr)
	}
	second, secondErr := client.HandleCallback(context.Background(), "abc123def456")
	if secondErr != nil {
		t.Fatalf("unexpected second callback error: %v", secondErr)
	}
	if first != second {
		t.Fatalf("duplicate callback returned a different record")
	}
	if calls := relay.exchangeCalls.Load(); calls != 1 {
		t.Fatalf("expected exactly one exchange, got %d", calls)
	}
}

func TestHandleCallbackConcurrentSingleFlight(t *testing.T) {
	t.Parallel()
	relay := newFakeRelay(t)
	client := newTestAuthClient(t, relay, tokenstore.NewMemoryTokenStore())

	var wg sync.WaitGroup
	records := make([]tokenstore.TokenRecord, 8)
	for index := 0; index < 8; index++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			record, callbackErr := client.HandleCallback(context.Background(), "abc123def456")
			if callbackErr != nil {
				t.Errorf("concurrent callback error: %v", callbackErr)
				return
			}
			records[index] = record
		}(index)
	}
	wg.Wait()

	if calls := relay.exchangeCalls.Load(); calls != 1 {
		t.Fatalf("expected one exchange for concurrent callers, got %d", calls)
	}
	for index := 1; index < 8; index++ {
		if records[index] != records[0] {
			t.Fatalf("concurrent callers got different records")
		}
	}
}

func TestHandleCallbackFailureStoresNothing(t *testing.T) {
	t.Parallel()
	relay := newFakeRelay(t)
	relay.failExchange = true
	store := tokenstore.NewMemoryTokenStore()
	client := newTestAuthClient(t, relay, store)

	_, callbackErr := client.HandleCallback(context.Background(), "stale-code-123")
	var exchangeErr *AuthExchangeError
	if !errors.As(callbackErr, &exchangeErr) {
		t.Fatalf("expected AuthExchangeError, got %v", callbackErr)
	}
	if exchangeErr.Detail == "" {
		t.Fatalf("expected relay error detail to be carried")
	}
	if _, loadErr := store.Load(context.Background()); !errors.Is(loadErr, tokenstore.ErrNoToken) {
		t.Fatalf("failed exchange must not store a record")
	}

	// The failed code is not marked processed, so a retry hits the relay again.
	relay.failExchange = false
	if _, retryErr := client.HandleCallback(context.Background(), "stale-code-123"); retryErr != nil {
		t.Fatalf("retry after failure should succeed: %v", retryErr)
	}
	if calls := relay.exchangeCalls.Load(); calls != 2 {
		t.Fatalf("expected two exchange attempts, got %d", calls)
	}
}

func TestIsAuthenticated(t *testing.T) {
	t.Parallel()
	relay := newFakeRelay(t)
	store := tokenstore.NewMemoryTokenStore()
	client := newTestAuthClient(t, relay, store)
	ctx := context.Background()

	if client.IsAuthenticated(ctx) {
		t.Fatalf("empty store must report unauthenticated")
	}

	if saveErr := store.Save(ctx, storedRecord(6*time.Hour)); saveErr != nil {
		t.Fatalf("unexpected save error: %v", saveErr)
	}
	if !client.IsAuthenticated(ctx) {
		t.Fatalf("live token must report authenticated")
	}

	if saveErr := store.Save(ctx, storedRecord(-time.Minute)); saveErr != nil {
		t.Fatalf("unexpected save error: %v", saveErr)
	}
	if client.IsAuthenticated(ctx) {
		t.Fatalf("expired token must report unauthenticated")
	}
}

func TestGetValidTokenSkipsRefreshWhenFresh(t *testing.T) {
	t.Parallel()
	relay := newFakeRelay(t)
	store := tokenstore.NewMemoryTokenStore()
	client := newTestAuthClient(t, relay, store)
	ctx := context.Background()

	if saveErr := store.Save(ctx, storedRecord(6*time.Hour)); saveErr != nil {
		t.Fatalf("unexpected save error: %v", saveErr)
	}
	token, tokenErr := client.GetValidToken(ctx)
	if tokenErr != nil {
		t.Fatalf("unexpected token error: %v", tokenErr)
	}
	if token != "access-stored" {
		t.Fatalf("expected stored token, got %q", token)
	}
	if calls := relay.refreshCalls.Load(); calls != 0 {
		t.Fatalf("fresh token must not trigger refresh, got %d calls", calls)
	}
}

func TestGetValidTokenRefreshesExpiringToken(t *testing.T) {
	t.Parallel()
	relay := newFakeRelay(t)
	store := tokenstore.NewMemoryTokenStore()
	client := newTestAuthClient(t, relay, store)
	ctx := context.Background()

	if saveErr := store.Save(ctx, storedRecord(2*time.Minute)); saveErr != nil {
		t.Fatalf("unexpected save error: %v", saveErr)
	}
	token, tokenErr := client.GetValidToken(ctx)
	if tokenErr != nil {
		t.Fatalf("unexpected token error: %v", tokenErr)
	}
	if token != "access-refreshed" {
		t.Fatalf("expected refreshed token, got %q", token)
	}
	stored, loadErr := store.Load(ctx)
	if loadErr != nil {
		t.Fatalf("refreshed record not stored: %v", loadErr)
	}
	if stored.RefreshToken != "refresh-rotated" {
		t.Fatalf("stored record not overwritten with refresh response: %+v", stored)
	}
}

func TestGetValidTokenWithoutRecord(t *testing.T) {
	t.Parallel()
	client := newTestAuthClient(t, newFakeRelay(t), tokenstore.NewMemoryTokenStore())

	if _, tokenErr := client.GetValidToken(context.Background()); !errors.Is(tokenErr, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", tokenErr)
	}
}

func TestRefreshFailureClearsStoredToken(t *testing.T) {
	t.Parallel()
	relay := newFakeRelay(t)
	relay.failRefresh = true
	store := tokenstore.NewMemoryTokenStore()
	client := newTestAuthClient(t, relay, store)
	ctx := context.Background()

	if saveErr := store.Save(ctx, storedRecord(time.Minute)); saveErr != nil {
		t.Fatalf("unexpected save error: %v", saveErr)
	}
	_, refreshErr := client.RefreshToken(ctx)
	var typedErr *RefreshError
	if !errors.As(refreshErr, &typedErr) {
		t.Fatalf("expected RefreshError, got %v", refreshErr)
	}
	if _, loadErr := store.Load(ctx); !errors.Is(loadErr, tokenstore.ErrNoToken) {
		t.Fatalf("failed refresh must clear the stored record")
	}
	if client.IsAuthenticated(ctx) {
		t.Fatalf("client must be unauthenticated after failed refresh")
	}
}

func TestRefreshWithoutRecord(t *testing.T) {
	t.Parallel()
	client := newTestAuthClient(t, newFakeRelay(t), tokenstore.NewMemoryTokenStore())

	if _, refreshErr := client.RefreshToken(context.Background()); !errors.Is(refreshErr, ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", refreshErr)
	}
}

func TestLogoutAlwaysLeavesUnauthenticated(t *testing.T) {
	t.Parallel()
	relay := newFakeRelay(t)
	store := tokenstore.NewMemoryTokenStore()
	client := newTestAuthClient(t, relay, store)
	ctx := context.Background()

	if _, callbackErr := client.HandleCallback(ctx, "abc123def456"); callbackErr != nil {
		t.Fatalf("unexpected callback error: %v", callbackErr)
	}
	if logoutErr := client.Logout(ctx); logoutErr != nil {
		t.Fatalf("unexpected logout error: %v", logoutErr)
	}
	if client.IsAuthenticated(ctx) {
		t.Fatalf("logout must leave the client unauthenticated")
	}

	// The marker is gone too: the same code triggers a fresh exchange.
	if _, callbackErr := client.HandleCallback(ctx, "abc123def456"); callbackErr != nil {
		t.Fatalf("unexpected callback error after logout: %v", callbackErr)
	}
	if calls := relay.exchangeCalls.Load(); calls != 2 {
		t.Fatalf("expected a second exchange after logout, got %d", calls)
	}
}
