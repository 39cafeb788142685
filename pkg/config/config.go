// Package config provides unified configuration for the funcrun binaries.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (FUNCRUN_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"time"

	"github.com/rhuss/funcrun/pkg/api"
)

// Deployment modes of the code interpreter.
const (
	// ModeDeployment means one interpreter is configured for every run.
	ModeDeployment = "deployment"
	// ModeRuntime means each run names its own interpreter server.
	ModeRuntime = "runtime"
)

// Config holds all configuration for funcrun.
type Config struct {
	CodeInterpreter CodeInterpreterConfig `yaml:"code_interpreter"`
	Storage         StorageConfig         `yaml:"storage"`
	Events          EventsConfig          `yaml:"events"`
	Logging         LoggingConfig         `yaml:"logging"`
	Metrics         MetricsConfig         `yaml:"metrics"`
	Server          ServerConfig          `yaml:"server"`
}

// CodeInterpreterConfig describes the MCP server that runs Python code.
// Name, URL and APIKey are set together or not at all.
type CodeInterpreterConfig struct {
	Enabled    bool          `yaml:"enabled"` // default: true
	Name       string        `yaml:"name"`    // server label
	URL        string        `yaml:"url"`     // MCP endpoint
	APIKey     string        `yaml:"api_key"` // sent as bearer token
	APIKeyFile string        `yaml:"api_key_file"`
	Transport  string        `yaml:"transport"` // "streamable-http" or "sse"
	Auth       MCPAuthConfig `yaml:"auth"`
}

// Mode reports whether a default interpreter is configured.
func (c CodeInterpreterConfig) Mode() string {
	if c.Name != "" && c.URL != "" && c.APIKey != "" {
		return ModeDeployment
	}
	return ModeRuntime
}

// ServerRef returns the configured interpreter as a server reference.
func (c CodeInterpreterConfig) ServerRef() api.ServerRef {
	return api.ServerRef{Label: c.Name, URL: c.URL, APIKey: c.APIKey}
}

// MCPAuthConfig configures how funcrun authenticates to the interpreter.
// When Type is empty, APIKey is sent as a static bearer token.
type MCPAuthConfig struct {
	Type             string        `yaml:"type"` // "none", "bearer", "oauth_client_credentials", "jwt"
	TokenURL         string        `yaml:"token_url"`
	ClientID         string        `yaml:"client_id"`
	ClientIDFile     string        `yaml:"client_id_file"`
	ClientSecret     string        `yaml:"client_secret"`
	ClientSecretFile string        `yaml:"client_secret_file"`
	Scopes           []string      `yaml:"scopes"`
	Secret           string        `yaml:"secret"`
	SecretFile       string        `yaml:"secret_file"`
	Issuer           string        `yaml:"issuer"`
	Audience         string        `yaml:"audience"`
	Subject          string        `yaml:"subject"`
	TTL              time.Duration `yaml:"ttl"`
}

// StorageConfig holds the function registry store settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 1000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`
	MaxConns       int32  `yaml:"max_conns"`        // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// EventsConfig holds progress event settings.
type EventsConfig struct {
	Prefix string `yaml:"prefix"` // default: "response.py_fun_tool"
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "text" or "json"
	Debug  string `yaml:"debug"`  // comma-separated debug categories
}

// MetricsConfig holds the Prometheus endpoint settings of the interpreter
// server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// ServerConfig holds interpreter server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
	ExecTimeout     time.Duration `yaml:"exec_timeout"`     // default: 60s
	MaxConcurrent   int           `yaml:"max_concurrent"`   // default: 4
	Python          string        `yaml:"python"`           // default: "python3"
	PipIndex        string        `yaml:"pip_index"`
	Auth            AuthConfig    `yaml:"auth"`
}

// AuthConfig holds inbound authentication settings for the interpreter
// server.
type AuthConfig struct {
	Type      string          `yaml:"type"`     // "none", "apikey", "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"` // also checked ahead of JWT when type is "jwt"
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key     string   `yaml:"key" json:"key"`
	KeyFile string   `yaml:"key_file" json:"key_file"`
	Subject string   `yaml:"subject" json:"subject"`
	Scopes  []string `yaml:"scopes" json:"scopes"`
}

// JWTConfig configures bearer token verification.
type JWTConfig struct {
	Secret      string        `yaml:"secret"`
	SecretFile  string        `yaml:"secret_file"`
	JWKSURL     string        `yaml:"jwks_url"`
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	ScopesClaim string        `yaml:"scopes_claim"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// RateLimitConfig bounds requests per subject per minute. Zero disables
// limiting.
type RateLimitConfig struct {
	RequestsPerMinute int            `yaml:"requests_per_minute"`
	PerSubject        map[string]int `yaml:"per_subject"`
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		CodeInterpreter: CodeInterpreterConfig{
			Enabled:   true,
			Transport: "streamable-http",
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 1000,
			Postgres: PostgresConfig{
				MaxConns: 10,
			},
		},
		Events: EventsConfig{
			Prefix: api.DefaultEventPrefix,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 30 * time.Second,
			ExecTimeout:     60 * time.Second,
			MaxConcurrent:   4,
			Python:          "python3",
			Auth: AuthConfig{
				Type: "none",
			},
		},
	}
}
