// Package mcp is a minimal Model Context Protocol client used to reach the
// invoicing tool server. The server runs as a subprocess speaking
// newline-delimited JSON-RPC 2.0 on stdin/stdout; its tools are exposed to
// the agent as eino tools.
package mcp
