package keycloak_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/talentgate/talentgate-go/keycloak"
	"github.com/talentgate/talentgate-go/session"
)

type testIdentityConfig struct {
	baseURL string
}

func (c testIdentityConfig) GetIdentityBaseURL() string      { return c.baseURL }
func (testIdentityConfig) GetIdentityClientID() string       { return "talentgate-client" }
func (testIdentityConfig) GetTenantRealm() string            { return "tenant-realm" }
func (testIdentityConfig) GetPartnerRealm() string           { return "partner-realm" }
func (testIdentityConfig) GetCandidateRealm() string         { return "candidate-realm" }
func (testIdentityConfig) GetExpiryLookahead() time.Duration { return 90 * time.Second }
func (testIdentityConfig) GetHTTPTimeout() time.Duration     { return 5 * time.Second }

// stubIdentity serves realm discovery documents and a scriptable token
// endpoint the way Keycloak lays them out.
type stubIdentity struct {
	server *httptest.Server

	lock       sync.Mutex
	grants     []url.Values
	rejectWith int
}

func newStubIdentity(t *testing.T) *stubIdentity {
	t.Helper()

	s := &stubIdentity{}
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/", func(w http.ResponseWriter, r *http.Request) {
		realm, rest, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/realms/"), "/")
		switch {
		case r.Method == http.MethodGet && rest == ".well-known/openid-configuration":
			issuer := s.server.URL + "/realms/" + realm
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"issuer":                 issuer,
				"authorization_endpoint": issuer + "/protocol/openid-connect/auth",
				"token_endpoint":         issuer + "/protocol/openid-connect/token",
				"jwks_uri":               issuer + "/protocol/openid-connect/certs",
			})
		case r.Method == http.MethodPost && rest == "protocol/openid-connect/token":
			require.NoError(t, r.ParseForm())

			s.lock.Lock()
			form := r.PostForm
			form.Set("__realm", realm)
			s.grants = append(s.grants, form)
			reject := s.rejectWith
			s.lock.Unlock()

			w.Header().Set("Content-Type", "application/json")
			if reject != 0 {
				w.WriteHeader(reject)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":       fmt.Sprintf("access-%d", len(s.grants)),
				"refresh_token":      fmt.Sprintf("refresh-%d", len(s.grants)),
				"token_type":         "bearer",
				"expires_in":         300,
				"refresh_expires_in": 1800,
				"session_state":      "session-1",
				"scope":              "openid profile email",
			})
		default:
			http.NotFound(w, r)
		}
	})
	s.server = httptest.NewServer(mux)
	t.Cleanup(s.server.Close)
	return s
}

func (s *stubIdentity) lastGrant(t *testing.T) url.Values {
	t.Helper()
	s.lock.Lock()
	defer s.lock.Unlock()
	require.NotEmpty(t, s.grants)
	return s.grants[len(s.grants)-1]
}

func TestLoginExchangesPasswordGrant(t *testing.T) {
	stub := newStubIdentity(t)
	client := keycloak.New(testIdentityConfig{baseURL: stub.server.URL})

	cred, err := client.Login(context.Background(), "tenant-realm", "jane.doe@example.com", "password123")
	require.NoError(t, err)

	require.Equal(t, "access-1", cred.AccessToken)
	require.Equal(t, "refresh-1", cred.RefreshToken)
	require.Equal(t, int64(1800), cred.RefreshExpiresIn)
	require.Equal(t, "session-1", cred.SessionState)
	require.False(t, cred.ObtainedAt.IsZero())
	require.InDelta(t, 300, cred.ExpiresIn, 5)

	grant := stub.lastGrant(t)
	require.Equal(t, "tenant-realm", grant.Get("__realm"))
	require.Equal(t, "password", grant.Get("grant_type"))
	require.Equal(t, "jane.doe@example.com", grant.Get("username"))
	require.Equal(t, "password123", grant.Get("password"))
}

func TestLoginEmptyRealmUsesCandidateDefault(t *testing.T) {
	stub := newStubIdentity(t)
	client := keycloak.New(testIdentityConfig{baseURL: stub.server.URL})

	_, err := client.Login(context.Background(), "", "jane.doe@example.com", "password123")
	require.NoError(t, err)
	require.Equal(t, "candidate-realm", stub.lastGrant(t).Get("__realm"))
}

func TestLoginRejectionMapsToInvalidCredentials(t *testing.T) {
	stub := newStubIdentity(t)
	stub.rejectWith = http.StatusUnauthorized
	client := keycloak.New(testIdentityConfig{baseURL: stub.server.URL})

	_, err := client.Login(context.Background(), "tenant-realm", "jane.doe@example.com", "wrong")
	require.ErrorIs(t, err, keycloak.InvalidCredentialsErr)
}

func TestRefreshUsesRefreshGrant(t *testing.T) {
	stub := newStubIdentity(t)
	client := keycloak.New(testIdentityConfig{baseURL: stub.server.URL})

	cred, err := client.Refresh(context.Background(), "partner-realm", "refresh-0")
	require.NoError(t, err)
	require.Equal(t, "access-1", cred.AccessToken)
	require.Equal(t, "refresh-1", cred.RefreshToken)

	grant := stub.lastGrant(t)
	require.Equal(t, "partner-realm", grant.Get("__realm"))
	require.Equal(t, "refresh_token", grant.Get("grant_type"))
	require.Equal(t, "refresh-0", grant.Get("refresh_token"))
}

func TestExpiringSoon(t *testing.T) {
	now := time.Now()
	client := keycloak.New(testIdentityConfig{}, keycloak.WithNowTime(func() time.Time { return now }))

	fresh := &session.Credential{AccessToken: "opaque", ExpiresIn: 300, ObtainedAt: now}
	require.False(t, client.ExpiringSoon(fresh), "expiry beyond the lookahead window")

	closing := &session.Credential{AccessToken: "opaque", ExpiresIn: 60, ObtainedAt: now}
	require.True(t, client.ExpiringSoon(closing), "expiry inside the lookahead window")

	unknown := &session.Credential{AccessToken: "opaque"}
	require.True(t, client.ExpiringSoon(unknown), "no expiry information forces a renewal")
}
