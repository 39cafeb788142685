// Package apikey authenticates bearer tokens against a static set of API
// keys, such as the api_key configured for the code interpreter client.
// Keys are kept as SHA-256 hashes and compared in constant time.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/rhuss/funcrun/pkg/auth"
)

// Key is the configuration of one accepted API key.
type Key struct {
	Key     string
	Subject string
	Scopes  []string
}

type hashedKey struct {
	hash     [32]byte
	identity auth.Identity
}

// Authenticator validates bearer tokens against its key set.
type Authenticator struct {
	keys []hashedKey
}

// Ensure Authenticator implements auth.Authenticator at compile time.
var _ auth.Authenticator = (*Authenticator)(nil)

// New creates an authenticator for keys. Plaintext keys are not retained.
// A key without a subject is identified as "apikey".
func New(keys []Key) *Authenticator {
	a := &Authenticator{}
	for _, k := range keys {
		if k.Key == "" {
			continue
		}
		subject := k.Subject
		if subject == "" {
			subject = "apikey"
		}
		a.keys = append(a.keys, hashedKey{
			hash: sha256.Sum256([]byte(k.Key)),
			identity: auth.Identity{
				Subject:  subject,
				Scopes:   k.Scopes,
				Metadata: map[string]string{"auth": "apikey"},
			},
		})
	}
	return a
}

// Authenticate abstains without a bearer token, so a JWT authenticator
// later in the chain can still vote on tokens that are not keys. Unknown
// tokens therefore also abstain; an empty bearer token is rejected.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	token, ok := auth.BearerToken(r)
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if token == "" {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	tokenHash := sha256.Sum256([]byte(token))
	for _, k := range a.keys {
		if subtle.ConstantTimeCompare(tokenHash[:], k.hash[:]) == 1 {
			id := k.identity
			return auth.AuthResult{Decision: auth.Yes, Identity: &id}
		}
	}
	return auth.AuthResult{Decision: auth.Abstain}
}
