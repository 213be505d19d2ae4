package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/coinkrazygaming/coinkrazy2-sub002/config"
	"github.com/coinkrazygaming/coinkrazy2-sub002/models"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services"
	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
)

const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"

	// DefaultFacebookGraphURL serves the profile of the signed-in account
	DefaultFacebookGraphURL = "https://graph.facebook.com/v19.0/me"

	maxProfileBytes = 1 << 20
)

// Provider is one third-party sign-in strategy
type Provider interface {
	// Name is the route segment selecting the provider
	Name() string

	// AuthCodeURL builds the provider authorization redirect
	AuthCodeURL(state, nonce string) string

	// Exchange trades an authorization code for the provider account
	Exchange(ctx context.Context, code string) (*models.ProviderResult, error)
}

// Registry selects providers by name
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry of the given providers
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the provider for name or services.ErrUnknownProvider
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, services.ErrUnknownProvider
	}
	return p, nil
}

// Names lists the configured providers in order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CallbackURL returns the redirect URI registered with a provider
func CallbackURL(baseURL, provider string) string {
	return strings.TrimSuffix(baseURL, "/") + "/api/auth/oauth/" + provider + "/callback"
}

// OIDCProvider signs in through an OpenID Connect issuer and verifies the
// returned ID token
type OIDCProvider struct {
	name        string
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
}

// NewOIDCProvider initializes the provider via discovery
func NewOIDCProvider(ctx context.Context, name string, upstream config.OAuthProviderConfig, redirectURL string) (*OIDCProvider, error) {
	if upstream.Issuer == "" {
		return nil, fmt.Errorf("issuer required for provider %s", name)
	}

	op, err := oidc.NewProvider(ctx, upstream.Issuer)
	if err != nil {
		return nil, fmt.Errorf("discover provider %s: %w", name, err)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     upstream.ClientID,
		ClientSecret: upstream.ClientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     op.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}

	return newOIDCProvider(name, oauthCfg, op.Verifier(&oidc.Config{ClientID: upstream.ClientID})), nil
}

func newOIDCProvider(name string, oauthCfg *oauth2.Config, verifier *oidc.IDTokenVerifier) *OIDCProvider {
	return &OIDCProvider{
		name:        name,
		oauthConfig: oauthCfg,
		verifier:    verifier,
	}
}

// Name implements Provider
func (p *OIDCProvider) Name() string {
	return p.name
}

// AuthCodeURL implements Provider
func (p *OIDCProvider) AuthCodeURL(state, nonce string) string {
	opts := []oauth2.AuthCodeOption{}
	if nonce != "" {
		opts = append(opts, oidc.Nonce(nonce))
	}
	return p.oauthConfig.AuthCodeURL(state, opts...)
}

// Exchange completes the code exchange and returns the verified account.
// The ID token nonce is returned for the session bridge to check.
func (p *OIDCProvider) Exchange(ctx context.Context, code string) (*models.ProviderResult, error) {
	tok, err := p.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("id_token missing in response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("verify id_token: %w", err)
	}

	var claims struct {
		Email             string `json:"email"`
		EmailVerified     *bool  `json:"email_verified"`
		Name              string `json:"name"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}

	email := claims.Email
	if claims.EmailVerified != nil && !*claims.EmailVerified {
		// Unverified addresses are not trusted for account matching
		email = ""
	}
	name := claims.Name
	if name == "" {
		name = claims.PreferredUsername
	}

	return &models.ProviderResult{
		Provider: p.name,
		Nonce:    idToken.Nonce,
		Profile: models.OAuthProfile{
			ProviderUserID: idToken.Subject,
			Email:          email,
			DisplayName:    name,
		},
		NonceExpected: true,
	}, nil
}

// FacebookProvider signs in through Facebook Login and reads the profile
// from the Graph API
type FacebookProvider struct {
	oauthConfig *oauth2.Config
	graphURL    string
}

// NewFacebookProvider creates the Facebook provider. An empty graphURL uses
// DefaultFacebookGraphURL.
func NewFacebookProvider(upstream config.OAuthProviderConfig, redirectURL, graphURL string) *FacebookProvider {
	if graphURL == "" {
		graphURL = DefaultFacebookGraphURL
	}
	return &FacebookProvider{
		oauthConfig: &oauth2.Config{
			ClientID:     upstream.ClientID,
			ClientSecret: upstream.ClientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     facebook.Endpoint,
			Scopes:       []string{"email", "public_profile"},
		},
		graphURL: graphURL,
	}
}

// Name implements Provider
func (p *FacebookProvider) Name() string {
	return ProviderFacebook
}

// AuthCodeURL implements Provider. Facebook has no ID token, so the nonce is
// not sent.
func (p *FacebookProvider) AuthCodeURL(state, _ string) string {
	return p.oauthConfig.AuthCodeURL(state)
}

// Exchange implements Provider
func (p *FacebookProvider) Exchange(ctx context.Context, code string) (*models.ProviderResult, error) {
	tok, err := p.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	profileURL := p.graphURL + "?" + url.Values{"fields": {"id,name,email"}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}

	resp, err := p.oauthConfig.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch profile: unexpected status %d", resp.StatusCode)
	}

	var profile struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes)).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if profile.ID == "" {
		return nil, fmt.Errorf("profile id missing in response")
	}

	return &models.ProviderResult{
		Provider: ProviderFacebook,
		Profile: models.OAuthProfile{
			ProviderUserID: profile.ID,
			Email:          profile.Email,
			DisplayName:    profile.Name,
		},
	}, nil
}

// BuildProviders prepares every provider that has client credentials.
// A provider whose discovery fails is skipped outside production.
func BuildProviders(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Registry, error) {
	var providers []Provider

	if cfg.OAuth.Google.Enabled() {
		google, err := NewOIDCProvider(ctx, ProviderGoogle, cfg.OAuth.Google, CallbackURL(cfg.OAuth.RedirectBaseURL, ProviderGoogle))
		if err != nil {
			if cfg.IsProduction() {
				return nil, err
			}
			logger.Warn("provider init failed", zap.String("provider", ProviderGoogle), zap.Error(err))
		} else {
			providers = append(providers, google)
		}
	}

	if cfg.OAuth.Facebook.Enabled() {
		providers = append(providers, NewFacebookProvider(cfg.OAuth.Facebook, CallbackURL(cfg.OAuth.RedirectBaseURL, ProviderFacebook), ""))
	}

	registry := NewRegistry(providers...)
	logger.Info("oauth providers configured", zap.Strings("providers", registry.Names()))
	return registry, nil
}
