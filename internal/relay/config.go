package relay

import "strings"

// Config carries everything the relay needs to mediate between browser clients and
// Strava. The client secret never leaves this process.
type Config struct {
	ClientID       string
	ClientSecret   string
	RedirectURI    string
	TokenURL       string
	APIBaseURL     string
	AllowedOrigins []string
}

// SecretConfigured reports whether a provider client secret was loaded. Handlers that
// need the secret answer 500 when it is missing rather than calling the provider.
func (configuration Config) SecretConfigured() bool {
	return strings.TrimSpace(configuration.ClientSecret) != ""
}
