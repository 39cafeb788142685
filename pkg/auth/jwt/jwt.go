// Package jwt authenticates bearer JWTs for the interpreter server.
//
// Tokens are verified either with a shared HMAC secret, matching the
// short-lived tokens minted by the client's jwt auth type, or with RSA
// keys fetched from a JWKS endpoint, matching tokens issued by an OAuth
// provider for the client credentials flow. Both may be enabled at once.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rhuss/funcrun/pkg/auth"
)

// Config holds the JWT authenticator configuration.
type Config struct {
	// Secret verifies HS256 tokens. Empty disables HMAC verification.
	Secret string

	// JWKSURL is fetched for RSA verification keys. Empty disables RSA
	// verification.
	JWKSURL string

	// Issuer is the expected iss claim. Empty skips issuer validation.
	Issuer string

	// Audience is the expected aud claim. Empty skips audience validation.
	Audience string

	// ScopesClaim holds the granted scopes, as a space-separated string or
	// an array. Default: "scope".
	ScopesClaim string

	// CacheTTL controls how long JWKS keys are cached. Default: 1 hour.
	CacheTTL time.Duration

	// Leeway tolerates clock skew when checking exp and nbf.
	Leeway time.Duration

	// HTTPClient fetches the JWKS. Default: http.DefaultClient.
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// Authenticator validates JWT bearer tokens.
type Authenticator struct {
	config Config
	jwks   *jwksCache
}

// Ensure Authenticator implements auth.Authenticator at compile time.
var _ auth.Authenticator = (*Authenticator)(nil)

// New creates a JWT authenticator. At least one of Secret and JWKSURL
// must be set.
func New(cfg Config) (*Authenticator, error) {
	if cfg.Secret == "" && cfg.JWKSURL == "" {
		return nil, errors.New("jwt: secret or jwks_url is required")
	}
	cfg.applyDefaults()

	a := &Authenticator{config: cfg}
	if cfg.JWKSURL != "" {
		a.jwks = newJWKSCache(cfg.JWKSURL, cfg.CacheTTL, cfg.HTTPClient)
	}
	return a, nil
}

// Authenticate verifies the bearer token of r.
//
// Decision outcomes:
//   - Abstain: no bearer token, or a token that is not a JWT (so an API
//     key authenticator can vote on it)
//   - No: a JWT that fails verification
//   - Yes: a valid JWT with a subject
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
	tokenStr, ok := auth.BearerToken(r)
	if !ok || strings.Count(tokenStr, ".") != 2 {
		return auth.AuthResult{Decision: auth.Abstain}
	}

	token, err := jwtlib.Parse(tokenStr, func(token *jwtlib.Token) (any, error) {
		return a.verificationKey(ctx, token)
	}, a.parserOptions()...)
	if err != nil {
		slog.Debug("JWT validation failed", "error", err)
		return auth.AuthResult{Decision: auth.No, Err: fmt.Errorf("invalid JWT: %w", err)}
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return auth.AuthResult{Decision: auth.No, Err: errors.New("invalid JWT claims")}
	}

	subject, _ := claims.GetSubject()
	if subject == "" {
		return auth.AuthResult{Decision: auth.No, Err: errors.New("JWT missing sub claim")}
	}

	identity := &auth.Identity{
		Subject:  subject,
		Scopes:   extractScopes(claims, a.config.ScopesClaim),
		Metadata: map[string]string{"auth": "jwt", "alg": token.Method.Alg()},
	}
	if iss, _ := claims.GetIssuer(); iss != "" {
		identity.Metadata["issuer"] = iss
	}

	return auth.AuthResult{Decision: auth.Yes, Identity: identity}
}

// verificationKey picks the key for the token's signing method.
func (a *Authenticator) verificationKey(ctx context.Context, token *jwtlib.Token) (any, error) {
	switch token.Method.(type) {
	case *jwtlib.SigningMethodHMAC:
		if a.config.Secret == "" {
			return nil, errors.New("HMAC tokens are not accepted")
		}
		return []byte(a.config.Secret), nil

	case *jwtlib.SigningMethodRSA:
		if a.jwks == nil {
			return nil, errors.New("RSA tokens are not accepted")
		}
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token missing kid header")
		}
		key, err := a.jwks.getKey(ctx, kid)
		if err != nil {
			return nil, fmt.Errorf("fetching JWKS key for kid %q: %w", kid, err)
		}
		return key, nil

	default:
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
}

func (a *Authenticator) parserOptions() []jwtlib.ParserOption {
	var methods []string
	if a.config.Secret != "" {
		methods = append(methods, "HS256", "HS384", "HS512")
	}
	if a.jwks != nil {
		methods = append(methods, "RS256", "RS384", "RS512")
	}

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods(methods),
		jwtlib.WithExpirationRequired(),
	}
	if a.config.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(a.config.Issuer))
	}
	if a.config.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(a.config.Audience))
	}
	if a.config.Leeway > 0 {
		opts = append(opts, jwtlib.WithLeeway(a.config.Leeway))
	}
	return opts
}

// extractScopes reads a space-separated string or an array of strings.
func extractScopes(claims jwtlib.MapClaims, key string) []string {
	switch v := claims[key].(type) {
	case string:
		if parts := strings.Fields(v); len(parts) > 0 {
			return parts
		}
	case []any:
		var scopes []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				scopes = append(scopes, s)
			}
		}
		return scopes
	}
	return nil
}
