package config

import (
	"fmt"
)

// ServerConfig configures the HTTP surface. The default bind is
// loopback only; this service is meant to stay on the owner's machine.
type ServerConfig struct {
	Host string `yaml:"host,omitempty" json:"host,omitempty" jsonschema:"title=Host,description=Bind address,default=127.0.0.1"`
	Port int    `yaml:"port,omitempty" json:"port,omitempty" jsonschema:"title=Port,description=Listen port,minimum=1,maximum=65535,default=8090"`

	// ReadTimeoutSeconds and WriteTimeoutSeconds bound request handling.
	// Writes stay generous because insights runs are long.
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds,omitempty" json:"read_timeout_seconds,omitempty" jsonschema:"title=Read Timeout,minimum=1,default=30"`
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds,omitempty" json:"write_timeout_seconds,omitempty" jsonschema:"title=Write Timeout,minimum=1,default=1860"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 8090
	}
	if c.ReadTimeoutSeconds == 0 {
		c.ReadTimeoutSeconds = 30
	}
	if c.WriteTimeoutSeconds == 0 {
		// insights timeout plus slack
		c.WriteTimeoutSeconds = 1860
	}
}

func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be within [1,65535], got %d", c.Port)
	}
	return nil
}

// Address returns host:port.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthConfig configures session token verification. Token issuance
// lives elsewhere; this service only verifies and whitelists.
type AuthConfig struct {
	// Enabled turns verification on. Disabled is intended for local
	// single-user runs and tests; handlers then accept X-Session-ID.
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled,description=Verify session tokens,default=false"`

	// JWTSecret is the HS256 shared secret. Supports ${VAR} expansion.
	JWTSecret string `yaml:"jwt_secret,omitempty" json:"jwt_secret,omitempty" jsonschema:"title=JWT Secret,description=HS256 shared secret (use ${ENV_VAR})"`

	// EmailWhitelist limits access to listed addresses. Empty allows
	// any verified token.
	EmailWhitelist []string `yaml:"email_whitelist,omitempty" json:"email_whitelist,omitempty" jsonschema:"title=Email Whitelist,description=Allowed account emails"`
}

func (c *AuthConfig) SetDefaults() {}

func (c *AuthConfig) Validate() error {
	if c.Enabled && c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required when auth is enabled")
	}
	return nil
}
