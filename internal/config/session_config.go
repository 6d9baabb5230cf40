package config

import "time"

// SessionConfig holds the tunables of the session refresh schedule.
type SessionConfig interface {
	GetRefreshInterval() time.Duration
	GetStoreSecret() string
}

type Session struct{}

var _ SessionConfig = Session{}

// GetRefreshInterval is how often the scheduler re-checks credential
// freshness while a session is armed.
func (Session) GetRefreshInterval() time.Duration {
	return GetDurationEnv("REFRESH_INTERVAL", 60*time.Second)
}

// GetStoreSecret, when set, seals the on-disk credential mirror.
func (Session) GetStoreSecret() string {
	return GetEnv("STORE_SECRET", "")
}
