package view

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"veloviz/internal/tokenstore"
)

// State is the presentation state of the view.
type State int

const (
	StateLoading State = iota
	StateUnauthenticated
	StateAuthenticated
	StateError
)

func (state State) String() string {
	switch state {
	case StateLoading:
		return "loading"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Authenticator is the auth surface the view needs. *authclient.AuthClient
// satisfies it.
type Authenticator interface {
	HandleCallback(ctx context.Context, code string) (tokenstore.TokenRecord, error)
	IsAuthenticated(ctx context.Context) bool
}

// Model resolves redirect parameters into a presentation state. One instance per
// view load; it holds no state beyond the outcome of the last Resolve.
type Model struct {
	auth         Authenticator
	logger       *zap.Logger
	state        State
	errorMessage string

	// OnTransition observes every state change, Loading included.
	OnTransition func(State)
}

// NewModel constructs a view model over the given authenticator.
func NewModel(auth Authenticator, logger *zap.Logger) *Model {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Model{auth: auth, logger: logger, state: StateLoading}
}

// Resolve inspects the redirect query and drives the state machine: an OAuth error
// parameter wins, then an authorization code (through Loading while the exchange
// runs), otherwise the stored-token check decides. The returned values are the query
// with the consumed OAuth parameters stripped, so a reload cannot replay the
// exchange.
func (model *Model) Resolve(ctx context.Context, query url.Values) (State, url.Values) {
	remaining := stripOAuthParams(query)

	if oauthError := query.Get("error"); oauthError != "" {
		message := query.Get("error_description")
		if message == "" {
			message = oauthError
		}
		model.logger.Warn("provider returned oauth error",
			zap.String("oauth_error", oauthError))
		return model.transition(StateError, message), remaining
	}

	if code := query.Get("code"); code != "" {
		model.transition(StateLoading, "")
		if _, callbackErr := model.auth.HandleCallback(ctx, code); callbackErr != nil {
			model.logger.Warn("code exchange failed", zap.Error(callbackErr))
			return model.transition(StateError, callbackErr.Error()), remaining
		}
		return model.transition(StateAuthenticated, ""), remaining
	}

	if model.auth.IsAuthenticated(ctx) {
		return model.transition(StateAuthenticated, ""), remaining
	}
	return model.transition(StateUnauthenticated, ""), remaining
}

// State returns the current presentation state.
func (model *Model) State() State {
	return model.state
}

// ErrorMessage returns the user-facing message for StateError, empty otherwise.
func (model *Model) ErrorMessage() string {
	return model.errorMessage
}

func (model *Model) transition(next State, message string) State {
	model.state = next
	model.errorMessage = message
	if model.OnTransition != nil {
		model.OnTransition(next)
	}
	return next
}

func stripOAuthParams(query url.Values) url.Values {
	remaining := url.Values{}
	for key, values := range query {
		switch key {
		case "code", "state", "scope", "error", "error_description":
			continue
		default:
			remaining[key] = values
		}
	}
	return remaining
}
