package mcp

import "context"

// Transport delivers JSON-RPC messages to one MCP server.
type Transport interface {
	// Send writes req and waits for the response with the same id.
	Send(ctx context.Context, req *Request) (*Response, error)
	// Notify writes a notification without waiting for a reply.
	Notify(ctx context.Context, notif *Notification) error
	// Close releases the transport. For stdio this stops the subprocess.
	Close() error
}
