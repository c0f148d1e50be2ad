// Package sensorcloud is the top-level facade wiring auth, pipeline,
// and stream into one Client: a thin struct that owns shared
// collaborators and exposes the operations a caller actually wants,
// rather than making callers assemble the plumbing themselves.
package sensorcloud

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/vegather/Disruptive-sub002/auth"
	"github.com/vegather/Disruptive-sub002/config"
	"github.com/vegather/Disruptive-sub002/pipeline"
	"github.com/vegather/Disruptive-sub002/request"
	"github.com/vegather/Disruptive-sub002/stream"
)

// Client is the SDK entry point: one Authenticator, one request
// Pipeline, and a factory for event Streams, all sharing configuration
// and a logger.
type Client struct {
	cfg        config.Config
	auth       auth.Authenticator
	pipeline   *pipeline.Client
	httpClient *http.Client
	log        zerolog.Logger
}

// Option customizes a Client at construction time.
type Option func(*clientOptions)

type clientOptions struct {
	cfg    config.Config
	log    zerolog.Logger
	client *http.Client
}

// WithConfig overrides the default (production) Config.
func WithConfig(cfg config.Config) Option {
	return func(o *clientOptions) { o.cfg = cfg }
}

// WithLogger overrides the zerolog.Logger used across the Client,
// its Authenticator, and its Pipeline.
func WithLogger(l zerolog.Logger) Option {
	return func(o *clientOptions) { o.log = l }
}

// NewWithBasicAuth constructs a Client using Basic-scheme credentials
// and logs in at construction (Basic login makes no network call).
func NewWithBasicAuth(creds auth.Credentials, opts ...Option) (*Client, error) {
	o := resolveOptions(opts)
	a := auth.NewBasic(creds, auth.WithLogger(o.log))
	return newClient(o, a)
}

// NewWithOAuth2 constructs a Client using the JWT-bearer OAuth2 flow
// against cfg.AuthURL (config.DefaultAuthURL if unset).
func NewWithOAuth2(creds auth.Credentials, opts ...Option) (*Client, error) {
	o := resolveOptions(opts)
	authURL := o.cfg.AuthURL
	if authURL == "" {
		authURL = config.DefaultAuthURL
	}
	a := auth.NewOAuth2(creds, authURL, auth.WithLogger(o.log), auth.WithHTTPClient(o.client))
	return newClient(o, a)
}

func resolveOptions(opts []Option) *clientOptions {
	o := &clientOptions{cfg: config.Default(), log: zerolog.Nop()}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg.BaseURL == "" {
		o.cfg.BaseURL = config.DefaultBaseURL
	}
	if o.client == nil {
		o.client = config.NewHTTPClient(config.RequestTimeout)
	}
	return o
}

func newClient(o *clientOptions, a auth.Authenticator) (*Client, error) {
	if err := a.Login(context.Background()); err != nil {
		return nil, err
	}
	p := pipeline.New(a, pipeline.WithLogger(o.log), pipeline.WithHTTPClient(o.client))
	return &Client{cfg: o.cfg, auth: a, pipeline: p, httpClient: o.client, log: o.log}, nil
}

// Logout disables auto-refresh on the underlying Authenticator; every
// subsequent request fails with the loggedOut error until the caller
// constructs a new Client.
func (c *Client) Logout() {
	c.auth.Logout()
}

// BaseURL returns the endpoint this Client's requests are rooted at,
// for use by resource-wrapper packages built on top of this Client
// (devices, projects, data connectors, etc. — out of scope here,
// specified only by their wire contract).
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// BaseURLRequest builds a GET Request rooted at this Client's BaseURL,
// for use by resource-wrapper packages or ad hoc calls against
// endpoints this Client doesn't wrap directly.
func (c *Client) BaseURLRequest(endpoint string) request.Request {
	return request.New(http.MethodGet, c.cfg.BaseURL, endpoint)
}

// Send performs req and discards the body.
func (c *Client) Send(ctx context.Context, req request.Request) error {
	return c.pipeline.Send(ctx, req)
}

// SendDecode performs req and JSON-decodes the response into T.
func SendDecode[T any](ctx context.Context, c *Client, req request.Request) (T, error) {
	return pipeline.SendDecode[T](ctx, c.pipeline, req)
}

// SendPage performs a single paginated page.
func SendPage[T any](ctx context.Context, c *Client, req request.Request, pageSize int, pageToken, pagingKey string) (pipeline.PagedResult[T], error) {
	return pipeline.SendPage[T](ctx, c.pipeline, req, pageSize, pageToken, pagingKey)
}

// SendAll walks every page of a paginated endpoint and concatenates
// the results.
func SendAll[T any](ctx context.Context, c *Client, req request.Request, pageSize int, pagingKey string) ([]T, error) {
	return pipeline.SendAll[T](ctx, c.pipeline, req, pageSize, pagingKey)
}

// NewStream opens an event stream against req (the caller supplies any
// project/device/event-type filter query params), sharing this
// Client's Authenticator so an expiring token is refreshed exactly
// once no matter how many streams and pipeline calls are in flight.
func (c *Client) NewStream(ctx context.Context, req request.Request, cb stream.Callbacks) *stream.Stream {
	return stream.New(ctx, req, c.auth, stream.WithCallbacks(cb), stream.WithLogger(c.log))
}
