package httptransport

import (
	"context"

	"github.com/DannyMyles/fitness-gateway/internal/auth/provider"
	"github.com/DannyMyles/fitness-gateway/internal/backend"
	"github.com/DannyMyles/fitness-gateway/internal/requestcontext"
	"github.com/DannyMyles/fitness-gateway/pkg/apierror"
)

// ContextTokenSource reads the bearer token from the request's token state.
// A context without token state means the call did not originate from a
// browser session: those fall through to the fallback source, typically the
// gateway's own service-account session, or go out anonymous when there is
// none. A session that exists but carries no token never falls through;
// the API client fails those fast instead of escalating them.
func ContextTokenSource(fallback backend.TokenSource) backend.TokenSource {
	return backend.TokenSourceFunc(func(ctx context.Context) (string, error) {
		if state := requestcontext.TokenStateFrom(ctx); state != nil {
			return state.AccessToken(), nil
		}
		if fallback != nil {
			return fallback.Token(ctx)
		}
		return "", nil
	})
}

// ContextRefresher exchanges the session's refresh token for a new access
// token and writes it back into the request's token state, so the response
// path re-issues the cookie. Calls outside a browser session defer to the
// fallback refresher.
func ContextRefresher(p *provider.Provider, fallback backend.Refresher) backend.Refresher {
	return backend.RefresherFunc(func(ctx context.Context) (string, error) {
		state := requestcontext.TokenStateFrom(ctx)
		if state == nil {
			if fallback != nil {
				return fallback.Refresh(ctx)
			}
			return "", apierror.New(apierror.CodeUnauthorized, "no refresh token available")
		}
		if state.RefreshToken() == "" {
			return "", apierror.New(apierror.CodeUnauthorized, "no refresh token available")
		}
		token, err := p.Refresh(ctx, state.RefreshToken())
		if err != nil {
			return "", err
		}
		state.SetAccessToken(token)
		return token, nil
	})
}
