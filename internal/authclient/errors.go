package authclient

import (
	"errors"
	"fmt"
)

var (
	// ErrNoToken indicates no token record is stored; the user is simply not
	// authenticated, not in an error state.
	ErrNoToken = errors.New("auth_client.no_token")
	// ErrNoRefreshToken indicates the stored record carries no refresh token.
	ErrNoRefreshToken = errors.New("auth_client.no_refresh_token")
)

// AuthExchangeError reports a failed authorization-code exchange. The stale code must
// not be retried; Detail carries the relay's error text when available.
type AuthExchangeError struct {
	Detail string
}

func (exchangeErr *AuthExchangeError) Error() string {
	if exchangeErr.Detail == "" {
		return "auth_client: code exchange failed"
	}
	return fmt.Sprintf("auth_client: code exchange failed: %s", exchangeErr.Detail)
}

// RefreshError reports a failed token refresh. The stored record has already been
// cleared when this is returned; the user must reconnect.
type RefreshError struct {
	Cause error
}

func (refreshErr *RefreshError) Error() string {
	return fmt.Sprintf("auth_client: token refresh failed: %v", refreshErr.Cause)
}

func (refreshErr *RefreshError) Unwrap() error {
	return refreshErr.Cause
}
