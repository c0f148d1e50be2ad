package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// OAuth2Authenticator obtains a bearer token by posting a self-signed
// JWT assertion to authURL. The assertion is signed HS256 with the
// credentials' secret.
type OAuth2Authenticator struct {
	creds      Credentials
	authURL    string
	httpClient *http.Client
	*base
}

// NewOAuth2 constructs a JWT-bearer Authenticator against authURL.
func NewOAuth2(creds Credentials, authURL string, opts ...Option) *OAuth2Authenticator {
	cfg := newConfig(opts...)
	a := &OAuth2Authenticator{
		creds:      creds,
		authURL:    authURL,
		httpClient: cfg.httpClient,
	}
	a.base = newBase(a.doRefresh, cfg.logger)
	return a
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (a *OAuth2Authenticator) doRefresh(ctx context.Context) (Token, error) {
	assertion, err := a.signAssertion(time.Now())
	if err != nil {
		return Token{}, fmt.Errorf("auth: failed to build JWT assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("auth: failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("auth: token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, fmt.Errorf("auth: failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Token{}, fmt.Errorf("auth: token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Token{}, fmt.Errorf("auth: failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return Token{}, fmt.Errorf("auth: token endpoint response missing access_token")
	}

	return Token{
		Value:     sanitizeToken("Bearer " + tr.AccessToken),
		ExpiresAt: time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

// signAssertion builds and HS256-signs the JWT assertion: header
// {alg: HS256, kid: keyID}, claims {iat, exp, aud, iss}.
func (a *OAuth2Authenticator) signAssertion(now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
		"aud": a.authURL,
		"iss": a.creds.Email,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok.Header["kid"] = a.creds.KeyID
	return tok.SignedString([]byte(a.creds.Secret))
}

// Login populates the cached token and enables auto-refresh.
func (a *OAuth2Authenticator) Login(ctx context.Context) error { return a.login(ctx) }

// Logout clears the cached token and disables auto-refresh.
func (a *OAuth2Authenticator) Logout() { a.logout() }

// Refresh unconditionally fetches a new bearer token.
func (a *OAuth2Authenticator) Refresh(ctx context.Context) error { return a.refresh(ctx) }

// GetActive returns the cached bearer token, refreshing if necessary.
func (a *OAuth2Authenticator) GetActive(ctx context.Context) (string, error) {
	return a.getActive(ctx)
}
