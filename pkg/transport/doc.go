// Package transport provides the HTTP plumbing shared by funcrun servers:
// JSON error responses, request IDs, panic recovery, and access logging.
//
// Middleware has the standard func(http.Handler) http.Handler shape and is
// composed with Chain. The first middleware passed to Chain is the
// outermost wrapper.
//
// The http subpackage owns the listener lifecycle, including graceful
// shutdown on SIGINT and SIGTERM.
package transport
