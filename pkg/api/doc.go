// Package api defines the shared protocol types for funcrun: tool
// definitions exchanged with MCP servers, progress events streamed while
// remote code runs, and structured errors returned to tool callers.
//
// The package has no I/O. Apart from github.com/google/uuid for event
// identifiers it depends only on the Go standard library, so it can be
// imported by every other package without pulling in transport code.
//
// Core types:
//   - [ToolDefinition]: a named, schema-described tool
//   - [ProgressEvent]: a server-sent-event shaped progress notification
//   - [APIError]: structured error with type, code, param, and message
package api
