// Package auth implements the polymorphic Authenticator capability: a
// token provider with a "return me a currently-active access token"
// contract, shared between the request pipeline and the event stream.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	apierrors "github.com/vegather/Disruptive-sub002/errors"
	"golang.org/x/sync/singleflight"
)

// Credentials is the opaque triple an Authenticator is constructed
// from. It is never mutated after construction.
type Credentials struct {
	Email  string
	KeyID  string
	Secret string
}

// Token pairs an already scheme-prefixed access token ("Basic ..." or
// "Bearer ...") with its expiry instant.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// freshAt reports whether the token satisfies the pipeline's freshness
// invariant (expiresAt - now > 60s) as of now.
func (t Token) freshAt(now time.Time) bool {
	return t.ExpiresAt.Sub(now) > 60*time.Second
}

// Authenticator is the capability the pipeline and the stream depend
// on. Basic and OAuth2 are the two variants; both are built on top of
// the shared base in this file, so login/logout/refresh/getActive obey
// one contract regardless of which variant a caller constructs.
type Authenticator interface {
	// Login populates the cached token and enables auto-refresh.
	Login(ctx context.Context) error
	// Logout clears the cached token and disables auto-refresh; a
	// logged-out Authenticator fails every GetActive call until Login
	// is called again.
	Logout()
	// Refresh unconditionally fetches a new token, bypassing the
	// cached-token freshness check.
	Refresh(ctx context.Context) error
	// GetActive is the pipeline-facing accessor: it returns a cached
	// token if still fresh, otherwise refreshes once and re-checks.
	GetActive(ctx context.Context) (string, error)
}

// refreshFunc performs the variant-specific token acquisition.
type refreshFunc func(ctx context.Context) (Token, error)

// base implements the getActive/refresh/logout state machine common to
// every Authenticator variant. Concurrent refreshes coalesce via a
// singleflight.Group, so many callers racing on an expiring token
// trigger exactly one network round trip.
type base struct {
	mu                 sync.Mutex
	token              *Token
	autoRefreshEnabled bool

	group  singleflight.Group
	log    zerolog.Logger
	doFn   refreshFunc
}

func newBase(doFn refreshFunc, log zerolog.Logger) *base {
	return &base{doFn: doFn, log: log}
}

func (b *base) login(ctx context.Context) error {
	if err := b.refresh(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	b.autoRefreshEnabled = true
	b.mu.Unlock()
	return nil
}

func (b *base) logout() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = nil
	b.autoRefreshEnabled = false
}

// refresh unconditionally fetches a new token. Concurrent callers
// coalesce onto a single in-flight fetch.
func (b *base) refresh(ctx context.Context) error {
	v, err, _ := b.group.Do("refresh", func() (interface{}, error) {
		tok, err := b.doFn(ctx)
		if err != nil {
			return nil, err
		}
		return tok, nil
	})
	if err != nil {
		return err
	}
	tok := v.(Token)
	b.mu.Lock()
	b.token = &tok
	b.mu.Unlock()
	return nil
}

func (b *base) getActive(ctx context.Context) (string, error) {
	b.mu.Lock()
	enabled := b.autoRefreshEnabled
	cached := b.token
	b.mu.Unlock()

	if !enabled {
		return "", apierrors.LoggedOut
	}

	now := time.Now()
	if cached != nil && cached.freshAt(now) {
		return cached.Value, nil
	}

	if err := b.refresh(ctx); err != nil {
		return "", err
	}

	b.mu.Lock()
	cached = b.token
	b.mu.Unlock()

	if cached != nil && cached.freshAt(time.Now()) {
		return cached.Value, nil
	}

	b.log.Warn().Msg("auth: refresh succeeded but token is still not fresh")
	return "", apierrors.Unknown(fmt.Errorf("refreshed token is not valid for at least 60s"))
}
