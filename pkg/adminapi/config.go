package adminapi

import (
	"os"
	"time"

	"github.com/dlogio/dlog/internal/logger"
)

// EnvJWTSecret is the environment variable for the admin API's bearer-token
// signing secret. Takes precedence over Config.JWT.Secret when set.
const EnvJWTSecret = "DLOG_ADMINAPI_JWT_SECRET"

// Config configures the admin HTTP server.
type Config struct {
	// Addr is the listen address, e.g. ":9091".
	// Default: ":9091"
	Addr string `mapstructure:"addr" yaml:"addr"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	JWT JWTConfig `mapstructure:"jwt" yaml:"jwt"`
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = ":9091"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "dlogd"
	}
	if c.JWT.TokenDuration == 0 {
		c.JWT.TokenDuration = time.Hour
	}
}

// Secret returns the configured JWT signing secret, preferring the
// environment variable over the config file value.
func (c *Config) Secret() string {
	if env := os.Getenv(EnvJWTSecret); env != "" {
		if c.JWT.Secret != "" && c.JWT.Secret != env {
			logger.Warn("admin API JWT secret from environment variable overrides config file value",
				"env_var", EnvJWTSecret)
		}
		return env
	}
	return c.JWT.Secret
}
