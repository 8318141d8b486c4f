package idp

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/domudall/3rd-party-oauth/internal/config"
	"github.com/domudall/3rd-party-oauth/internal/emailutil"
	"github.com/domudall/3rd-party-oauth/internal/log"
	"golang.org/x/oauth2"
)

// Provider performs the two outbound calls of the authorization-code flow:
// code exchange and user-info lookup. It is stateless and safe for
// concurrent use; neither call is retried — an authorization code is
// single-use, and a failed user-info fetch just restarts the login.
type Provider struct {
	auth       config.AuthConfig
	httpClient *http.Client
}

// NewProvider creates a provider client from the resolved auth config
func NewProvider(auth config.AuthConfig) *Provider {
	transport := http.DefaultTransport
	if auth.InsecureSkipVerify {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		transport = t
		log.LogWarnWithFields("idp", "Certificate validation toward the provider is disabled", nil)
	}

	return &Provider{
		auth: auth,
		httpClient: &http.Client{
			Timeout:   auth.ProviderTimeout,
			Transport: transport,
		},
	}
}

// oauth2Config builds the flow config for a given redirect URI. The
// redirect URI varies per request (it follows the forwarded host), so the
// config cannot be built once at startup.
func (p *Provider) oauth2Config(redirectURI string) oauth2.Config {
	return oauth2.Config{
		ClientID:     p.auth.ClientID,
		ClientSecret: string(p.auth.ClientSecret),
		RedirectURL:  redirectURI,
		Scopes:       strings.Fields(p.auth.Scope),
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.auth.AuthorizeURL,
			TokenURL: p.auth.TokenURL,
			// client_id and client_secret go in the form body
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthCodeURL builds the provider authorize redirect with
// response_type=code, client_id, redirect_uri, and scope
func (p *Provider) AuthCodeURL(redirectURI string) string {
	cfg := p.oauth2Config(redirectURI)
	return cfg.AuthCodeURL("")
}

// ExchangeCode trades an authorization code for an access token. The
// redirect URI must match the one the code was issued for, or the provider
// rejects the exchange.
func (p *Provider) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.auth.ProviderTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	cfg := p.oauth2Config(redirectURI)
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return "", classifyExchangeError(err)
	}

	if token.AccessToken == "" {
		return "", &ExchangeError{Description: "token response missing access_token"}
	}

	return token.AccessToken, nil
}

func classifyExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		desc := retrieveErr.ErrorDescription
		if desc == "" {
			desc = retrieveErr.ErrorCode
		}
		if desc == "" {
			desc = strings.TrimSpace(string(retrieveErr.Body))
		}
		return &ExchangeError{Description: desc}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &TransportError{Err: err}
	}

	// x/oauth2 reports a 200 response without an access_token as a plain
	// error; treat it as a provider rejection
	return &ExchangeError{Description: err.Error()}
}

// FetchUserInfo retrieves the identity claims for an access token via a
// Bearer-authenticated GET against the user-info endpoint
func (p *Provider) FetchUserInfo(ctx context.Context, accessToken string) (Claims, error) {
	ctx, cancel := context.WithTimeout(ctx, p.auth.ProviderTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token := &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
	cfg := p.oauth2Config("")
	client := cfg.Client(ctx, token)

	resp, err := client.Get(p.auth.UserInfoURL)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UserInfoError{Status: resp.StatusCode}
	}

	var claims Claims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("decoding user info: %w", err)
	}

	return claims, nil
}

// ValidateHostedDomain enforces the hosted-domain restriction on the
// configured identifier claim. A nil error means the identity is accepted.
func (p *Provider) ValidateHostedDomain(claims Claims) error {
	if p.auth.HostedDomain == "" {
		return nil
	}

	identifier := emailutil.Normalize(claims.String(p.auth.IdentifierClaim))
	if !strings.HasSuffix(identifier, strings.ToLower(p.auth.HostedDomain)) {
		return fmt.Errorf("%w: domain %q is not allowed", ErrDomainMismatch, emailutil.ExtractDomain(identifier))
	}

	return nil
}
