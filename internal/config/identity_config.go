package config

import "time"

// IdentityConfig describes the identity provider the client authenticates
// against. Each realm maps to a Keycloak realm under the same base URL.
type IdentityConfig interface {
	GetIdentityBaseURL() string
	GetIdentityClientID() string
	GetTenantRealm() string
	GetPartnerRealm() string
	GetCandidateRealm() string
	GetExpiryLookahead() time.Duration
	GetHTTPTimeout() time.Duration
}

type Identity struct{}

var _ IdentityConfig = Identity{}

func (Identity) GetIdentityBaseURL() string {
	return GetEnv("IDENTITY_BASE_URL", "http://localhost:8180")
}

func (Identity) GetIdentityClientID() string {
	return GetEnv("IDENTITY_CLIENT_ID", "talentgate-client")
}

func (Identity) GetTenantRealm() string {
	return GetEnv("TENANT_REALM", "tenant-realm")
}

func (Identity) GetPartnerRealm() string {
	return GetEnv("PARTNER_REALM", "partner-realm")
}

func (Identity) GetCandidateRealm() string {
	return GetEnv("CANDIDATE_REALM", "candidate-realm")
}

// GetExpiryLookahead is how close to its expiry a credential may get before
// the scheduler renews it.
func (Identity) GetExpiryLookahead() time.Duration {
	return GetDurationEnv("EXPIRY_LOOKAHEAD", 90*time.Second)
}

func (Identity) GetHTTPTimeout() time.Duration {
	return GetDurationEnv("HTTP_TIMEOUT", 15*time.Second)
}

// GetDurationEnv reads a duration environment variable, falling back to the
// default when unset or unparsable.
func GetDurationEnv(envVar string, defaultValue time.Duration) time.Duration {
	value := GetEnv(envVar, "")
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
