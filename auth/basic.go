package auth

import (
	"context"
	"encoding/base64"
	"time"
)

// farFuture stands in for "+∞" expiry: a Basic token never expires on
// its own, it is only invalidated by Logout.
var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// BasicAuthenticator synthesizes a constant "Basic <base64(keyID:secret)>"
// token from Credentials. It never talks to the network.
type BasicAuthenticator struct {
	creds Credentials
	*base
}

// NewBasic constructs a Basic-scheme Authenticator. The returned
// Authenticator starts logged out; call Login to populate its token.
func NewBasic(creds Credentials, opts ...Option) *BasicAuthenticator {
	cfg := newConfig(opts...)
	a := &BasicAuthenticator{creds: creds}
	a.base = newBase(a.doRefresh, cfg.logger)
	return a
}

func (a *BasicAuthenticator) doRefresh(context.Context) (Token, error) {
	raw := a.creds.KeyID + ":" + a.creds.Secret
	encoded := base64.StdEncoding.EncodeToString([]byte(raw))
	return Token{Value: sanitizeToken("Basic " + encoded), ExpiresAt: farFuture}, nil
}

// Login populates the cached token and enables auto-refresh.
func (a *BasicAuthenticator) Login(ctx context.Context) error { return a.login(ctx) }

// Logout clears the cached token and disables auto-refresh.
func (a *BasicAuthenticator) Logout() { a.logout() }

// Refresh unconditionally resynthesizes the token.
func (a *BasicAuthenticator) Refresh(ctx context.Context) error { return a.refresh(ctx) }

// GetActive returns the cached token, refreshing if necessary.
func (a *BasicAuthenticator) GetActive(ctx context.Context) (string, error) {
	return a.getActive(ctx)
}
