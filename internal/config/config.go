package config

type Config interface {
	EnvConfig
	IdentityConfig
	APIConfig
	SessionConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDataFolder() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Identity
	API
	Session
}

func New() Config {
	return mainConfig{}
}
