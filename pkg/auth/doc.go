// Package auth protects the interpreter server's MCP endpoint.
//
// Authentication uses a chain of authenticators with three-outcome voting:
// each authenticator returns Yes (identity found), No (credentials
// invalid), or Abstain (can't handle). A configurable default decides when
// all authenticators abstain. The middleware optionally applies a
// per-subject rate limit after authentication.
package auth
