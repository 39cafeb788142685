package mcp

import (
	"time"

	"github.com/rhuss/funcrun/pkg/api"
)

// Auth types supported by ServerConfig.Auth.Type.
const (
	AuthNone                   = "none"
	AuthBearer                 = "bearer"
	AuthOAuthClientCredentials = "oauth_client_credentials"
	AuthJWT                    = "jwt"
)

// ServerConfig describes a single MCP server connection.
type ServerConfig struct {
	// Name is the server label. Tools of this server are registered as
	// "<Name>_<tool>".
	Name string `json:"name"`

	// Transport is the transport type to use: "sse" or "streamable-http".
	// If empty, defaults to "streamable-http".
	Transport string `json:"transport"`

	// URL is the MCP server endpoint URL.
	URL string `json:"url"`

	// Headers contains additional HTTP headers to send with requests.
	Headers map[string]string `json:"headers,omitempty"`

	// Auth configures dynamic authentication. Its headers are applied after
	// Headers and win on conflict.
	Auth AuthConfig `json:"auth"`
}

// AuthConfig selects and configures an AuthProvider.
type AuthConfig struct {
	// Type is one of "none", "bearer", "oauth_client_credentials", "jwt".
	Type string `json:"type"`

	// Token is the static bearer token (bearer).
	Token string `json:"token,omitempty"`

	// TokenURL, ClientID, ClientSecret and Scopes configure the
	// client_credentials grant (oauth_client_credentials).
	TokenURL     string   `json:"token_url,omitempty"`
	ClientID     string   `json:"client_id,omitempty"`
	ClientSecret string   `json:"client_secret,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`

	// Secret, Issuer, Audience, Subject and TTL configure locally signed
	// HS256 tokens (jwt).
	Secret   string        `json:"secret,omitempty"`
	Issuer   string        `json:"issuer,omitempty"`
	Audience string        `json:"audience,omitempty"`
	Subject  string        `json:"subject,omitempty"`
	TTL      time.Duration `json:"ttl,omitempty"`
}

// ServerConfigFromRef builds the connection settings for a server
// reference. A non-empty API key is sent as a bearer token.
func ServerConfigFromRef(ref api.ServerRef, transport string) ServerConfig {
	cfg := ServerConfig{
		Name:      ref.Label,
		Transport: transport,
		URL:       ref.URL,
	}
	if cfg.Name == "" {
		cfg.Name = ref.URL
	}
	if ref.APIKey != "" {
		cfg.Auth = AuthConfig{Type: AuthBearer, Token: ref.APIKey}
	}
	return cfg
}
