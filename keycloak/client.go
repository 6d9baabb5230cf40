// Package keycloak implements the session.Authenticator against a multi-realm
// Keycloak deployment. Each realm lives under the same base URL and is
// discovered lazily through its OIDC configuration document.
package keycloak

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"github.com/talentgate/talentgate-go/internal/config"
	"github.com/talentgate/talentgate-go/session"
	"golang.org/x/oauth2"
)

var (
	InvalidCredentialsErr = stderrors.New("invalid credentials")
)

var _ session.Authenticator = (*Client)(nil)

// realmProvider bundles the discovered OIDC provider of a realm with the
// oauth2 configuration used for its token grants.
type realmProvider struct {
	provider *oidc.Provider
	oauth    *oauth2.Config
}

// Client talks to the identity provider. It is safe for concurrent use.
type Client struct {
	cfg     config.IdentityConfig
	http    *http.Client
	nowTime func() time.Time

	lock      sync.RWMutex
	providers map[string]*realmProvider // realm name -> discovered provider
}

// Option defines a function type to modify the Client instance.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for discovery and grants.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

// New creates a Client for the identity provider described by cfg.
func New(cfg config.IdentityConfig, options ...Option) *Client {
	c := &Client{
		cfg:       cfg,
		http:      &http.Client{Timeout: cfg.GetHTTPTimeout()},
		nowTime:   time.Now,
		providers: make(map[string]*realmProvider),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Login exchanges user credentials for a token under the given realm using
// the resource-owner-password grant. An empty realm selects the candidate
// default. When the response carries an ID token it is verified before the
// credential is accepted.
func (c *Client) Login(ctx context.Context, realm, username, password string) (*session.Credential, error) {
	rp, err := c.providerFor(ctx, realm)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Login] realm discovery")
	}

	ctx = c.clientContext(ctx)
	tok, err := rp.oauth.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if stderrors.As(err, &retrieveErr) {
			return nil, errors.Wrap(InvalidCredentialsErr, "[Client.Login] token endpoint")
		}
		return nil, errors.Wrap(err, "[Client.Login] token endpoint")
	}

	if err := c.verifyIDToken(ctx, rp, tok); err != nil {
		return nil, errors.Wrap(err, "[Client.Login] ID token verification")
	}
	return c.toCredential(tok), nil
}

// Refresh renews a credential through the refresh grant of the given realm.
func (c *Client) Refresh(ctx context.Context, realm, refreshToken string) (*session.Credential, error) {
	rp, err := c.providerFor(ctx, realm)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Refresh] realm discovery")
	}

	ctx = c.clientContext(ctx)
	tok, err := rp.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Refresh] token endpoint")
	}
	return c.toCredential(tok), nil
}

// ExpiringSoon reports whether the credential expires within the configured
// lookahead window. A credential with no usable expiry information counts as
// expiring, which forces a renewal onto a known-good value.
func (c *Client) ExpiringSoon(cred *session.Credential) bool {
	exp, ok := cred.ExpiresAt()
	if !ok {
		return true
	}
	return !c.nowTime().Add(c.cfg.GetExpiryLookahead()).Before(exp)
}

// providerFor returns the discovered provider for a realm, running discovery
// on first use. Concurrent discoveries of the same realm collapse to one
// cached entry.
func (c *Client) providerFor(ctx context.Context, realm string) (*realmProvider, error) {
	name := c.realmOrDefault(realm)

	c.lock.RLock()
	rp, ok := c.providers[name]
	c.lock.RUnlock()
	if ok {
		return rp, nil
	}

	provider, err := oidc.NewProvider(c.clientContext(ctx), c.issuerURL(name))
	if err != nil {
		return nil, err
	}
	rp = &realmProvider{
		provider: provider,
		oauth: &oauth2.Config{
			ClientID: c.cfg.GetIdentityClientID(),
			Endpoint: provider.Endpoint(),
			Scopes:   []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}

	c.lock.Lock()
	if existing, ok := c.providers[name]; ok {
		rp = existing
	} else {
		c.providers[name] = rp
	}
	c.lock.Unlock()
	return rp, nil
}

func (c *Client) verifyIDToken(ctx context.Context, rp *realmProvider, tok *oauth2.Token) error {
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil
	}
	verifier := rp.provider.Verifier(&oidc.Config{ClientID: c.cfg.GetIdentityClientID()})
	_, err := verifier.Verify(ctx, rawIDToken)
	return err
}

func (c *Client) toCredential(tok *oauth2.Token) *session.Credential {
	now := c.nowTime()
	cred := &session.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ObtainedAt:   now,
	}
	if !tok.Expiry.IsZero() {
		cred.ExpiresIn = int64(tok.Expiry.Sub(now) / time.Second)
	}
	if v, ok := tok.Extra("refresh_expires_in").(float64); ok {
		cred.RefreshExpiresIn = int64(v)
	}
	if v, ok := tok.Extra("session_state").(string); ok {
		cred.SessionState = v
	}
	if v, ok := tok.Extra("scope").(string); ok {
		cred.Scope = v
	}
	return cred
}

func (c *Client) realmOrDefault(realm string) string {
	if realm == "" {
		return c.cfg.GetCandidateRealm()
	}
	return realm
}

func (c *Client) issuerURL(realm string) string {
	return strings.TrimRight(c.cfg.GetIdentityBaseURL(), "/") + "/realms/" + realm
}

// clientContext makes the oauth2 and oidc libraries use our HTTP client,
// which carries the configured timeout.
func (c *Client) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}
