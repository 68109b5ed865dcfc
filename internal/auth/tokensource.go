package auth

import (
	"context"

	"golang.org/x/oauth2"
)

// InstanceURLKey is the oauth2.Token extra field holding the instance URL.
const InstanceURLKey = "instance_url"

type tokenSource struct {
	ctx  context.Context
	auth *Authenticator
}

// TokenSource adapts the authenticator to oauth2.TokenSource. Tokens come
// from the same cache as every other call, and carry the instance URL in
// Extra(InstanceURLKey).
func (a *Authenticator) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, auth: a}
}

// Token implements oauth2.TokenSource.
func (s *tokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.auth.Token(s.ctx)
	if err != nil {
		return nil, err
	}

	t := &oauth2.Token{
		AccessToken: tok.AccessToken,
		TokenType:   "Bearer",
		Expiry:      tok.ExpiresAt,
	}
	return t.WithExtra(map[string]any{InstanceURLKey: tok.InstanceURL}), nil
}
