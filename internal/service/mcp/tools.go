package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// Tools lists the server's tools and wraps each as an eino tool bound to
// client. The returned tools are only usable while client is open.
func Tools(ctx context.Context, client *Client) ([]tool.BaseTool, error) {
	defs, err := client.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	tools := make([]tool.BaseTool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, NewTool(client, def))
	}
	return tools, nil
}

// Tool proxies an eino tool invocation to an MCP tools/call.
type Tool struct {
	client *Client
	def    ToolDefinition
	info   *schema.ToolInfo
}

var _ tool.InvokableTool = (*Tool)(nil)

// NewTool wraps def so the agent can call it through client.
func NewTool(client *Client, def ToolDefinition) *Tool {
	return &Tool{
		client: client,
		def:    def,
		info: &schema.ToolInfo{
			Name:        def.Name,
			Desc:        def.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(ParamsFromSchema(def.InputSchema)),
		},
	}
}

// Info returns the tool description offered to the model.
func (t *Tool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return t.info, nil
}

// InvokableRun decodes the model's JSON arguments and calls the tool. A
// failure reported by the tool itself is handed back to the model as text so
// it can explain the problem or ask for clarification; transport failures
// abort the run.
func (t *Tool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args map[string]any
	if trimmed := strings.TrimSpace(argumentsInJSON); trimmed != "" {
		if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
			return "", fmt.Errorf("decode arguments for %s: %w", t.def.Name, err)
		}
	}

	out, err := t.client.CallTool(ctx, t.def.Name, args)
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return "Error: " + toolErr.Message, nil
	}
	return out, err
}

// ParamsFromSchema converts a JSON Schema object (as found in an MCP
// inputSchema) into eino parameter descriptions. Unknown or missing types
// fall back to string.
func ParamsFromSchema(jsonSchema map[string]any) map[string]*schema.ParameterInfo {
	props, _ := jsonSchema["properties"].(map[string]any)
	required := stringSet(jsonSchema["required"])

	params := make(map[string]*schema.ParameterInfo, len(props))
	for name, raw := range props {
		prop, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		info := parameterInfo(prop)
		info.Required = required[name]
		params[name] = info
	}
	return params
}

func parameterInfo(prop map[string]any) *schema.ParameterInfo {
	info := &schema.ParameterInfo{Type: dataType(prop["type"])}
	info.Desc, _ = prop["description"].(string)

	if values, ok := prop["enum"].([]any); ok {
		for _, v := range values {
			info.Enum = append(info.Enum, fmt.Sprint(v))
		}
	}

	switch info.Type {
	case schema.Array:
		if items, ok := prop["items"].(map[string]any); ok {
			info.ElemInfo = parameterInfo(items)
		} else {
			info.ElemInfo = &schema.ParameterInfo{Type: schema.String}
		}
	case schema.Object:
		if sub := ParamsFromSchema(prop); len(sub) > 0 {
			info.SubParams = sub
		}
	}
	return info
}

// dataType maps a JSON Schema "type", which may be a list such as
// ["string","null"], to an eino data type.
func dataType(raw any) schema.DataType {
	var names []string
	switch v := raw.(type) {
	case string:
		names = []string{v}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				names = append(names, s)
			}
		}
	}

	for _, name := range names {
		switch name {
		case "object":
			return schema.Object
		case "array":
			return schema.Array
		case "integer":
			return schema.Integer
		case "number":
			return schema.Number
		case "boolean":
			return schema.Boolean
		case "string":
			return schema.String
		}
	}
	return schema.String
}

func stringSet(raw any) map[string]bool {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			set[s] = true
		}
	}
	return set
}
