package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, FUNCRUN_CONFIG env, ./config.yaml, /etc/funcrun/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. FUNCRUN_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/funcrun/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("FUNCRUN_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/funcrun/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps FUNCRUN_* environment variables to config fields.
// Malformed numeric or JSON values are reported rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	strs := []struct {
		env string
		dst *string
	}{
		{"FUNCRUN_CODE_INTERPRETER_NAME", &cfg.CodeInterpreter.Name},
		{"FUNCRUN_CODE_INTERPRETER_URL", &cfg.CodeInterpreter.URL},
		{"FUNCRUN_CODE_INTERPRETER_API_KEY", &cfg.CodeInterpreter.APIKey},
		{"FUNCRUN_CODE_INTERPRETER_TRANSPORT", &cfg.CodeInterpreter.Transport},
		{"FUNCRUN_STORAGE", &cfg.Storage.Type},
		{"FUNCRUN_STORAGE_DSN", &cfg.Storage.Postgres.DSN},
		{"FUNCRUN_EVENT_PREFIX", &cfg.Events.Prefix},
		{"FUNCRUN_LOG_LEVEL", &cfg.Logging.Level},
		{"FUNCRUN_LOG_FORMAT", &cfg.Logging.Format},
		{"FUNCRUN_DEBUG", &cfg.Logging.Debug},
		{"FUNCRUN_PYTHON", &cfg.Server.Python},
		{"FUNCRUN_AUTH_TYPE", &cfg.Server.Auth.Type},
		{"FUNCRUN_JWT_SECRET", &cfg.Server.Auth.JWT.Secret},
		{"FUNCRUN_JWKS_URL", &cfg.Server.Auth.JWT.JWKSURL},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dst = v
		}
	}

	if v := os.Getenv("FUNCRUN_CODE_INTERPRETER_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FUNCRUN_CODE_INTERPRETER_ENABLED: %w", err)
		}
		cfg.CodeInterpreter.Enabled = b
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"FUNCRUN_PORT", &cfg.Server.Port},
		{"FUNCRUN_STORAGE_SIZE", &cfg.Storage.MaxSize},
		{"FUNCRUN_MAX_CONCURRENT", &cfg.Server.MaxConcurrent},
		{"FUNCRUN_RATE_LIMIT_RPM", &cfg.Server.Auth.RateLimit.RequestsPerMinute},
	}
	for _, i := range ints {
		v := os.Getenv(i.env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", i.env, err)
		}
		*i.dst = n
	}

	// FUNCRUN_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("FUNCRUN_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			cfg.Server.Auth.APIKeys = keys
		}
	}

	return nil
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	return keys, nil
}

// resolveFileReferences reads _file fields and populates the corresponding
// value fields. A value set directly wins over its _file variant. File
// contents are whitespace-trimmed.
func resolveFileReferences(cfg *Config) error {
	refs := []struct {
		field string
		file  string
		dst   *string
	}{
		{"code_interpreter.api_key_file", cfg.CodeInterpreter.APIKeyFile, &cfg.CodeInterpreter.APIKey},
		{"code_interpreter.auth.client_id_file", cfg.CodeInterpreter.Auth.ClientIDFile, &cfg.CodeInterpreter.Auth.ClientID},
		{"code_interpreter.auth.client_secret_file", cfg.CodeInterpreter.Auth.ClientSecretFile, &cfg.CodeInterpreter.Auth.ClientSecret},
		{"code_interpreter.auth.secret_file", cfg.CodeInterpreter.Auth.SecretFile, &cfg.CodeInterpreter.Auth.Secret},
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
		{"server.auth.jwt.secret_file", cfg.Server.Auth.JWT.SecretFile, &cfg.Server.Auth.JWT.Secret},
	}
	for _, r := range refs {
		if r.file == "" || *r.dst != "" {
			continue
		}
		val, err := readSecretFile(r.file)
		if err != nil {
			return fmt.Errorf("%s: %w", r.field, err)
		}
		*r.dst = val
	}

	for i := range cfg.Server.Auth.APIKeys {
		k := &cfg.Server.Auth.APIKeys[i]
		if k.KeyFile != "" && k.Key == "" {
			val, err := readSecretFile(k.KeyFile)
			if err != nil {
				return fmt.Errorf("server.auth.api_keys[%d].key_file: %w", i, err)
			}
			k.Key = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
