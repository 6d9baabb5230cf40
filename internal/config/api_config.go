package config

import "time"

// APIConfig describes the platform REST API the client fetches profiles from.
type APIConfig interface {
	GetAPIBaseURL() string
	GetAPITimeout() time.Duration
}

type API struct{}

var _ APIConfig = API{}

func (API) GetAPIBaseURL() string {
	return GetEnv("API_BASE_URL", "http://localhost:8080")
}

func (API) GetAPITimeout() time.Duration {
	return GetDurationEnv("API_TIMEOUT", 15*time.Second)
}
