package api

import (
	"os"
	"time"
)

// EnvJWTSecret is the environment variable that overrides the configured
// JWT secret.
const EnvJWTSecret = "LODE_API_JWT_SECRET"

// APIConfig configures the REST API HTTP server.
type APIConfig struct {
	// Port is the HTTP port for the API endpoints.
	// Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 30s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 30s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// JWT configures token generation.
	JWT JWTSettings `mapstructure:"jwt" yaml:"jwt"`
}

// JWTSettings configures the token service.
type JWTSettings struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	// The LODE_API_JWT_SECRET environment variable takes precedence.
	Secret string `mapstructure:"secret" yaml:"secret"`

	// TokenDuration is the access token lifetime. Default: 30m.
	TokenDuration time.Duration `mapstructure:"token_duration" yaml:"token_duration"`
}

// GetJWTSecret returns the JWT secret, preferring the environment variable.
func (c *APIConfig) GetJWTSecret() string {
	if secret := os.Getenv(EnvJWTSecret); secret != "" {
		return secret
	}
	return c.JWT.Secret
}

// applyDefaults fills in zero values with sensible defaults.
func (c *APIConfig) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
}
