// Package gdrive wraps the two Google capabilities this service depends on:
// the OAuth identity provider (authorization URL, code exchange, userinfo)
// and the Drive API (metadata, listing, download, export).  Nothing outside
// this package talks to Google directly.
package gdrive

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// RequiredScopes is the minimum grant the service needs: read-only Drive
// access plus the identity scopes for resolving the local user record.
// Google may normalize or add scopes (e.g. "openid"), so verification
// checks for a superset of these rather than exact equality.
var RequiredScopes = []string{
	"https://www.googleapis.com/auth/drive.readonly",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// Userinfo is the subset of the Google profile the service stores.
type Userinfo struct {
	ID      string
	Email   string
	Name    string
	Picture string
}

// Provider implements the identity-provider side of the OAuth flow.
type Provider struct {
	cfg *oauth2.Config
	// opts are extra client options applied to the userinfo service,
	// used by tests to point the client at a local server.
	opts []option.ClientOption
}

func NewProvider(clientID, clientSecret, redirectURL string) *Provider {
	scopes := append(append([]string{}, RequiredScopes...), "openid")
	return &Provider{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		},
	}
}

// AuthCodeURL builds the authorization URL.  Offline access obtains a
// refresh token; prompt=consent forces the consent screen so a previously
// cached partial authorization cannot silently produce missing scopes.
func (p *Provider) AuthCodeURL(state string) string {
	return p.cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// Exchange swaps the callback's authorization code for a token set.
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("authorization code exchange: %w", err)
	}
	return tok, nil
}

// GrantedScopes extracts the space-separated scope list Google attaches to
// the token response.  An absent field yields an empty slice.
func GrantedScopes(tok *oauth2.Token) []string {
	raw, _ := tok.Extra("scope").(string)
	return strings.Fields(raw)
}

// HasRequiredScopes reports whether the granted scope set is a superset of
// RequiredScopes.
func HasRequiredScopes(tok *oauth2.Token) bool {
	granted := map[string]bool{}
	for _, s := range GrantedScopes(tok) {
		granted[s] = true
	}
	for _, s := range RequiredScopes {
		if !granted[s] {
			return false
		}
	}
	return true
}

// Userinfo fetches the authenticated user's profile with the given token.
func (p *Provider) Userinfo(ctx context.Context, tok *oauth2.Token) (Userinfo, error) {
	opts := append([]option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(tok)),
	}, p.opts...)
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return Userinfo{}, fmt.Errorf("userinfo service: %w", err)
	}
	ui, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return Userinfo{}, fmt.Errorf("userinfo fetch: %w", err)
	}
	return Userinfo{ID: ui.Id, Email: ui.Email, Name: ui.Name, Picture: ui.Picture}, nil
}

// TokenSource returns a refreshing token source seeded with the given
// token.  When the access token is expired and a refresh token is present,
// the first Token() call performs the refresh against Google.
func (p *Provider) TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return p.cfg.TokenSource(ctx, tok)
}
