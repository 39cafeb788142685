package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rhuss/funcrun/pkg/debug"
)

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	ci := c.CodeInterpreter
	set := 0
	for _, v := range []string{ci.Name, ci.URL, ci.APIKey} {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		errs = append(errs, fmt.Errorf("code_interpreter.name, code_interpreter.url and code_interpreter.api_key must be set together"))
	}

	switch ci.Transport {
	case "", "streamable-http", "sse":
	default:
		errs = append(errs, fmt.Errorf("code_interpreter.transport must be \"streamable-http\" or \"sse\", got %q", ci.Transport))
	}

	switch ci.Auth.Type {
	case "", "none", "bearer":
	case "oauth_client_credentials":
		if ci.Auth.TokenURL == "" || ci.Auth.ClientID == "" || ci.Auth.ClientSecret == "" {
			errs = append(errs, fmt.Errorf("code_interpreter.auth: token_url, client_id and client_secret are required for oauth_client_credentials"))
		}
	case "jwt":
		if ci.Auth.Secret == "" {
			errs = append(errs, fmt.Errorf("code_interpreter.auth.secret is required for jwt"))
		}
	default:
		errs = append(errs, fmt.Errorf("code_interpreter.auth.type must be \"none\", \"bearer\", \"oauth_client_credentials\" or \"jwt\", got %q", ci.Auth.Type))
	}

	switch c.Storage.Type {
	case "memory":
		if c.Storage.MaxSize < 0 {
			errs = append(errs, fmt.Errorf("storage.max_size must be >= 0, got %d", c.Storage.MaxSize))
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	if strings.TrimSpace(c.Events.Prefix) == "" {
		errs = append(errs, fmt.Errorf("events.prefix cannot be blank"))
	}

	if !debug.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level must be one of trace, debug, info, warn, error, got %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path must start with \"/\", got %q", c.Metrics.Path))
	}

	errs = append(errs, c.Server.validate()...)

	return errors.Join(errs...)
}

func (s *ServerConfig) validate() []error {
	var errs []error

	if s.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", s.Port))
	}
	if s.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("server.max_concurrent must be > 0, got %d", s.MaxConcurrent))
	}
	if s.ExecTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.exec_timeout must be > 0, got %v", s.ExecTimeout))
	}
	if s.Python == "" {
		errs = append(errs, fmt.Errorf("server.python is required"))
	}

	switch s.Auth.Type {
	case "none":
	case "apikey":
		if len(s.Auth.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("server.auth.api_keys is required when server.auth.type is \"apikey\""))
		}
	case "jwt":
		if s.Auth.JWT.Secret == "" && s.Auth.JWT.SecretFile == "" && s.Auth.JWT.JWKSURL == "" {
			errs = append(errs, fmt.Errorf("server.auth.jwt.secret or server.auth.jwt.jwks_url is required when server.auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("server.auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", s.Auth.Type))
	}

	for i, k := range s.Auth.APIKeys {
		if k.Key == "" && k.KeyFile == "" {
			errs = append(errs, fmt.Errorf("server.auth.api_keys[%d]: key or key_file is required", i))
		}
	}

	if s.Auth.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("server.auth.rate_limit.requests_per_minute must be >= 0"))
	}

	return errs
}
