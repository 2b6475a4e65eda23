package callback

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// WaitTimeout bounds how long the receiver waits for the user to finish in the
// browser before giving up.
const WaitTimeout = 5 * time.Minute

// ErrStateMismatch indicates the redirect carried a state value the receiver never
// issued.
var ErrStateMismatch = errors.New("callback.state_mismatch")

const successPage = `<!DOCTYPE html>
<html>
<head><title>Connected</title></head>
<body style="font-family: system-ui; text-align: center; margin-top: 20vh;">
<h1>Connected</h1>
<p>You can close this window and return to the terminal.</p>
</body>
</html>`

// NewState generates a random CSRF state value for one login attempt.
func NewState() (string, error) {
	buffer := make([]byte, 16)
	if _, randomErr := rand.Read(buffer); randomErr != nil {
		return "", fmt.Errorf("callback: generate state: %w", randomErr)
	}
	return hex.EncodeToString(buffer), nil
}

// Receive serves the redirect URI on listenAddr and returns the redirect's query
// values once the provider sends the user back. The state parameter must match the
// issued value; the code-or-error interpretation of the query is left to the caller.
func Receive(ctx context.Context, listenAddr string, expectedState string, logger *zap.Logger) (url.Values, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	queryChan := make(chan url.Values, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(writer http.ResponseWriter, request *http.Request) {
		query := request.URL.Query()
		if query.Get("state") != expectedState {
			errChan <- ErrStateMismatch
			http.Error(writer, "State mismatch", http.StatusBadRequest)
			return
		}
		writer.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(writer, successPage)
		queryChan <- query
	})

	listener, listenErr := net.Listen("tcp", listenAddr)
	if listenErr != nil {
		return nil, fmt.Errorf("callback: listen on %s: %w", listenAddr, listenErr)
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- fmt.Errorf("callback: serve: %w", serveErr)
		}
	}()
	defer shutdownServer(server, logger)

	logger.Info("waiting for provider redirect", zap.String("addr", listenAddr))

	select {
	case query := <-queryChan:
		return query, nil
	case receiveErr := <-errChan:
		return nil, receiveErr
	case <-time.After(WaitTimeout):
		return nil, fmt.Errorf("callback: timed out after %v waiting for redirect", WaitTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func shutdownServer(server *http.Server, logger *zap.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("callback server shutdown", zap.Error(shutdownErr))
	}
}
