// Package noop provides an authenticator that admits every request as the
// anonymous caller. The interpreter server uses it when authentication is
// disabled.
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/funcrun/pkg/auth"
)

// Authenticator always votes Yes.
type Authenticator struct{}

// Ensure Authenticator implements auth.Authenticator at compile time.
var _ auth.Authenticator = Authenticator{}

// Authenticate returns the anonymous identity.
func (Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.AuthResult {
	return auth.AuthResult{
		Decision: auth.Yes,
		Identity: &auth.Identity{Subject: auth.AnonymousSubject},
	}
}
