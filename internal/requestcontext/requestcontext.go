// Package requestcontext carries the per-request principal and token state
// through handler chains. Feature code reads the session only through these
// accessors, never from the cookie directly.
package requestcontext

import (
	"context"
	"sync"

	"github.com/DannyMyles/fitness-gateway/internal/session"
)

type sessionKey struct{}
type tokenStateKey struct{}

// WithSession stores the decoded session principal.
func WithSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// Session returns the request's principal, nil when unauthenticated.
func Session(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionKey{}).(*session.Session)
	return sess
}

// TokenState is the mutable token slot for one request. The API client reads
// the access token from it and writes a refreshed one back; after the handler
// completes, the transport layer re-issues the session cookie if the token
// changed.
type TokenState struct {
	mu           sync.Mutex
	signed       string
	accessToken  string
	refreshToken string
	name         string
	updated      bool
	nameUpdated  bool
}

func NewTokenState(signed, accessToken, refreshToken string) *TokenState {
	return &TokenState{signed: signed, accessToken: accessToken, refreshToken: refreshToken}
}

// Signed returns the raw signed session token the request arrived with.
func (t *TokenState) Signed() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.signed
}

// AccessToken returns the current bearer token for this request.
func (t *TokenState) AccessToken() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.accessToken
}

// RefreshToken returns the refresh token issued at login, if any.
func (t *TokenState) RefreshToken() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refreshToken
}

// SetAccessToken records a refreshed bearer token and marks the state dirty.
func (t *TokenState) SetAccessToken(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.accessToken = token
	t.updated = true
}

// SetName records a changed display name, typically after a profile update.
func (t *TokenState) SetName(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.name = name
	t.nameUpdated = true
}

// Updated reports whether the token changed during the request, and the new
// value.
func (t *TokenState) Updated() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.accessToken, t.updated
}

// UpdatedName reports whether the display name changed during the request.
func (t *TokenState) UpdatedName() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.name, t.nameUpdated
}

// WithTokenState stores the request's token slot.
func WithTokenState(ctx context.Context, ts *TokenState) context.Context {
	return context.WithValue(ctx, tokenStateKey{}, ts)
}

// TokenStateFrom returns the request's token slot, nil when the request never
// passed through the session middleware.
func TokenStateFrom(ctx context.Context) *TokenState {
	ts, _ := ctx.Value(tokenStateKey{}).(*TokenState)
	return ts
}
