package auth

import (
	"net/http"

	"github.com/rs/zerolog"
)

type config struct {
	logger     zerolog.Logger
	httpClient *http.Client
}

// Option customizes an Authenticator at construction time, providing a
// testing seam for swapping the logger or HTTP client.
type Option func(*config)

// WithLogger overrides the zerolog.Logger used for refresh diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithHTTPClient overrides the *http.Client used for OAuth2 token
// requests. Has no effect on BasicAuthenticator, which never makes a
// network call.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

func newConfig(opts ...Option) *config {
	c := &config{
		logger:     zerolog.Nop(),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
