// Package pipeline implements the authenticated send/retry/decode
// cycle every sensor-cloud API call goes through: per-request token
// fetch, Authorization upsert, status classification, and
// Retry-After-aware 429 retry.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/vegather/Disruptive-sub002/config"
	apierrors "github.com/vegather/Disruptive-sub002/errors"
	"github.com/vegather/Disruptive-sub002/request"
)

// Authenticator is the pipeline-facing slice of auth.Authenticator: the
// one operation a send needs. Declaring it locally (rather than
// importing the auth package) keeps pipeline decoupled from how tokens
// are obtained.
type Authenticator interface {
	GetActive(ctx context.Context) (string, error)
}

// Client sends Requests through the authenticate/send/classify/retry
// cycle. It is safe for concurrent use by multiple goroutines.
type Client struct {
	httpClient *http.Client
	auth       Authenticator
	log        zerolog.Logger
}

// Option customizes a Client at construction time.
type Option func(*Client)

// WithLogger overrides the zerolog.Logger used for request diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithHTTPClient overrides the *http.Client used to issue requests,
// primarily for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New constructs a Client backed by auth for token acquisition.
func New(auth Authenticator, opts ...Option) *Client {
	c := &Client{
		httpClient: config.NewHTTPClient(config.RequestTimeout),
		auth:       auth,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type wireError struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
	Help  string `json:"help"`
}

// mappedStatus lists the non-2xx statuses that carry a specific error
// mapping; anything else falls through to unknownError.
var mappedStatus = map[int]bool{
	400: true, 401: true, 403: true, 404: true, 409: true,
	500: true, 503: true, 504: true,
}

// do runs one request to completion: authenticate once, send, classify,
// and — for 429 only — sleep and replay the identical already-built
// request indefinitely, without re-authenticating. It returns the raw
// response body for the caller to decode (or nil for an empty-body
// success).
func (c *Client) do(ctx context.Context, req request.Request) ([]byte, error) {
	token, err := c.auth.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	attempt := req.Clone()
	attempt.SetHeader("Authorization", token)

	httpReq, err := attempt.HTTPRequest()
	if err != nil {
		return nil, apierrors.Unknown(err)
	}
	httpReq = httpReq.WithContext(ctx)

	for {
		resp, err := c.httpClient.Do(cloneHTTPRequest(httpReq))
		if err != nil {
			return nil, apierrors.ServerUnavailable(err)
		}
		if resp == nil {
			return nil, apierrors.Unknown(fmt.Errorf("pipeline: transport reported success with a nil response"))
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, apierrors.ServerUnavailable(readErr)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return body, nil

		case apierrors.IsTooManyRequests(resp.StatusCode):
			wait := retryAfterDuration(resp.Header.Get("Retry-After"))
			c.log.Debug().Dur("wait", wait).Msg("pipeline: rate limited, retrying")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			continue

		case mappedStatus[resp.StatusCode]:
			we := decodeWireError(body)
			apiErr := apierrors.FromHTTPStatus(resp.StatusCode, we.Error, we.Help, 0)
			c.log.Warn().Int("status", resp.StatusCode).Str("kind", string(apiErr.Kind)).Msg("pipeline: request failed")
			return nil, apiErr

		default:
			c.log.Warn().Int("status", resp.StatusCode).Msg("pipeline: unmapped status")
			return nil, apierrors.New(apierrors.KindUnknown, fmt.Sprintf("unexpected status %d", resp.StatusCode))
		}
	}
}

// cloneHTTPRequest returns a shallow copy of req suitable for a retried
// send: http.Client.Do consumes req.Body, so a 429 replay needs a fresh
// *http.Request sharing the same method, URL, and headers rather than
// the exhausted original.
func cloneHTTPRequest(req *http.Request) *http.Request {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			clone.Body = body
		}
	}
	return clone
}

func decodeWireError(body []byte) wireError {
	var we wireError
	_ = json.Unmarshal(body, &we) // best-effort; absent/malformed body yields zero value
	return we
}

func retryAfterDuration(header string) time.Duration {
	if header == "" {
		return 5 * time.Second
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 5 * time.Second
	}
	return time.Duration(seconds) * time.Second
}

// Send performs req and discards the body, treating any non-empty body
// as acceptable but unparsed.
func (c *Client) Send(ctx context.Context, req request.Request) error {
	_, err := c.do(ctx, req)
	return err
}

// SendDecode performs req and JSON-decodes the response body into T.
func SendDecode[T any](ctx context.Context, c *Client, req request.Request) (T, error) {
	var zero T
	body, err := c.do(ctx, req)
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(bytes.TrimSpace(body), &out); err != nil {
		return zero, apierrors.Unknown(fmt.Errorf("pipeline: failed to decode response body: %w", err))
	}
	return out, nil
}
