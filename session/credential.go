package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential is the token response issued by the identity provider, plus the
// client-side time it was obtained. It is only ever replaced as a whole:
// Login and a successful refresh install a new value, Logout clears it.
type Credential struct {
	AccessToken      string    `json:"access_token"`
	ExpiresIn        int64     `json:"expires_in,omitempty"`
	RefreshExpiresIn int64     `json:"refresh_expires_in,omitempty"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	TokenType        string    `json:"token_type,omitempty"`
	SessionState     string    `json:"session_state,omitempty"`
	Scope            string    `json:"scope,omitempty"`
	ObtainedAt       time.Time `json:"obtained_at,omitempty"`
}

// accessClaims is the subset of access-token claims the client reads.
type accessClaims struct {
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	jwt.RegisteredClaims
}

// Roles returns the realm role set embedded in the access token. An access
// token that does not parse as a JWT carries no roles.
func (c *Credential) Roles() []string {
	claims := c.claims()
	if claims == nil {
		return nil
	}
	return claims.RealmAccess.Roles
}

// HasRole reports whether the access token carries the given realm role.
func (c *Credential) HasRole(role string) bool {
	for _, r := range c.Roles() {
		if r == role {
			return true
		}
	}
	return false
}

// ExpiresAt returns when the access token expires. The JWT exp claim wins;
// without one the expires_in hint relative to ObtainedAt is used. The second
// return is false when neither is available.
func (c *Credential) ExpiresAt() (time.Time, bool) {
	if claims := c.claims(); claims != nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time, true
	}
	if c != nil && c.ExpiresIn > 0 && !c.ObtainedAt.IsZero() {
		return c.ObtainedAt.Add(time.Duration(c.ExpiresIn) * time.Second), true
	}
	return time.Time{}, false
}

func (c *Credential) claims() *accessClaims {
	if c == nil || c.AccessToken == "" {
		return nil
	}
	var claims accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(c.AccessToken, &claims); err != nil {
		return nil
	}
	return &claims
}
