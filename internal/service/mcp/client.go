package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// protocolVersion is the MCP revision advertised during the handshake.
const protocolVersion = "2024-11-05"

// ClientName identifies this relay to tool servers.
const ClientName = "invoice-relay"

// ToolDefinition is one entry of a tools/list result.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ContentBlock is one item of a tools/call result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type callToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type toolsListResult struct {
	Tools      []ToolDefinition `json:"tools"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

type initializeResult struct {
	ProtocolVersion string `json:"protocolVersion"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}

// ToolError is returned by CallTool when the server reports isError.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

// Client speaks MCP to a single server over a Transport.
type Client struct {
	name      string
	transport Transport
	logger    *log.Entry
	nextID    atomic.Int64
}

// NewClient wraps transport. Initialize must be called before any tool call.
func NewClient(name string, transport Transport) *Client {
	return &Client{
		name:      name,
		transport: transport,
		logger:    log.WithFields(log.Fields{"component": "mcp", "server": name}),
	}
}

// Initialize performs the handshake: initialize, then
// notifications/initialized.
func (c *Client) Initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    ClientName,
			"version": "1.0.0",
		},
	}

	resp, err := c.send(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	var result initializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("decode initialize result: %w", err)
	}

	c.logger.WithFields(log.Fields{
		"server_name":      result.ServerInfo.Name,
		"server_version":   result.ServerInfo.Version,
		"protocol_version": result.ProtocolVersion,
	}).Info("tool server initialized")

	if err := c.transport.Notify(ctx, NewNotification("notifications/initialized", nil)); err != nil {
		return fmt.Errorf("send initialized notification: %w", err)
	}
	return nil
}

// ListTools returns every tool the server exposes, following pagination
// cursors.
func (c *Client) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	var (
		tools  []ToolDefinition
		cursor string
	)
	for {
		var params any
		if cursor != "" {
			params = map[string]any{"cursor": cursor}
		}

		resp, err := c.send(ctx, "tools/list", params)
		if err != nil {
			return nil, fmt.Errorf("tools/list: %w", err)
		}

		var result toolsListResult
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, fmt.Errorf("decode tools/list result: %w", err)
		}
		tools = append(tools, result.Tools...)

		if result.NextCursor == "" || result.NextCursor == cursor {
			break
		}
		cursor = result.NextCursor
	}

	c.logger.WithField("count", len(tools)).Info("discovered tools")
	return tools, nil
}

// CallTool invokes a tool and returns its text content. A result flagged
// isError comes back as *ToolError.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}

	resp, err := c.send(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", fmt.Errorf("tools/call %s: %w", name, err)
	}

	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return "", fmt.Errorf("decode tools/call result: %w", err)
	}

	text := joinContent(result.Content)
	if result.IsError {
		return "", &ToolError{Tool: name, Message: text}
	}
	return text, nil
}

// Close shuts down the underlying transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

func (c *Client) send(ctx context.Context, method string, params any) (*Response, error) {
	req := NewRequest(c.nextID.Add(1), method, params)

	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp, nil
}

func joinContent(blocks []ContentBlock) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == "text" {
			parts = append(parts, b.Text)
			continue
		}
		parts = append(parts, "["+b.Type+"]")
	}
	return strings.Join(parts, "\n")
}
