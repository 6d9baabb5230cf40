// Package api is the REST client for the platform backend. It implements the
// session.Directory collaborator: per-realm profile fetches and the
// first-time-login check.
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/talentgate/talentgate-go/internal/config"
	"github.com/talentgate/talentgate-go/session"
	"github.com/talentgate/talentgate-go/users"
)

var (
	MissingCredentialErr = stderrors.New("missing credential")
	UnexpectedStatusErr  = stderrors.New("unexpected response status")
)

const (
	tenantProfilePath    = "/api/v1/tenant/profile"
	partnerProfilePath   = "/api/v1/partner/profile"
	candidateProfilePath = "/api/v1/candidate/profile"
	firstLoginPath       = "/api/v1/users/first-login"
)

var _ session.Directory = (*Client)(nil)

// Client talks to the platform API with bearer authentication. Every request
// carries a generated request ID for correlation with server-side logs.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option defines a function type to modify the Client instance.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

// New creates a Client for the platform API described by cfg.
func New(cfg config.APIConfig, options ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.GetAPIBaseURL(), "/"),
		http:    &http.Client{Timeout: cfg.GetAPITimeout()},
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// NewWithBaseURL creates a Client against an explicit base URL, primarily
// for tests.
func NewWithBaseURL(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) TenantProfile(ctx context.Context, cred *session.Credential) (*users.Profile, error) {
	var profile users.Profile
	if err := c.get(ctx, cred, tenantProfilePath, nil, &profile); err != nil {
		return nil, errors.Wrap(err, "[Client.TenantProfile]")
	}
	return &profile, nil
}

func (c *Client) PartnerProfile(ctx context.Context, cred *session.Credential) (*users.Profile, error) {
	var profile users.Profile
	if err := c.get(ctx, cred, partnerProfilePath, nil, &profile); err != nil {
		return nil, errors.Wrap(err, "[Client.PartnerProfile]")
	}
	return &profile, nil
}

func (c *Client) CandidateProfile(ctx context.Context, cred *session.Credential) (*users.Profile, error) {
	var profile users.Profile
	if err := c.get(ctx, cred, candidateProfilePath, nil, &profile); err != nil {
		return nil, errors.Wrap(err, "[Client.CandidateProfile]")
	}
	return &profile, nil
}

type firstLoginResponse struct {
	IsFirstLogin bool `json:"isFirstLogin"`
}

func (c *Client) FirstTimeLogin(ctx context.Context, cred *session.Credential, realm string) (bool, error) {
	query := url.Values{"realm": []string{realm}}
	var resp firstLoginResponse
	if err := c.get(ctx, cred, firstLoginPath, query, &resp); err != nil {
		return false, errors.Wrap(err, "[Client.FirstTimeLogin]")
	}
	return resp.IsFirstLogin, nil
}

func (c *Client) get(ctx context.Context, cred *session.Credential, path string, query url.Values, out any) error {
	if cred == nil || cred.AccessToken == "" {
		return MissingCredentialErr
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return errors.Wrapf(UnexpectedStatusErr, "%s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
