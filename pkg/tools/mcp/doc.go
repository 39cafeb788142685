// Package mcp connects funcrun to remote MCP (Model Context Protocol)
// servers. It discovers their tools, registers them under qualified names
// ("<server>_<tool>") and executes tool calls, returning the raw
// {"isError", "content"} envelope the interpreter package decodes.
//
// The package wraps the official MCP Go SDK (github.com/modelcontextprotocol/go-sdk).
// [ToolService] implements the tool lookup, execution and refresh
// interfaces consumed by the interpreter runner.
//
// Connections are configured with [ServerConfig]: server label, transport
// (SSE or streamable-http), URL, static headers, and an optional
// [AuthConfig] selecting bearer, OAuth client credentials or signed JWT
// authentication.
package mcp
