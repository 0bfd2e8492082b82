package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	log "github.com/sirupsen/logrus"

	"github.com/zhouzirui/invoice-relay/backend/internal/config"
	"github.com/zhouzirui/invoice-relay/backend/internal/model/chat"
	"github.com/zhouzirui/invoice-relay/backend/internal/service/mcp"
)

// Result is the outcome of one agent run.
type Result struct {
	FinalOutput string
}

// Runner runs the agent to completion over an ordered conversation.
type Runner interface {
	Run(ctx context.Context, history []chat.Message) (*Result, error)
}

// ToolSession is a tool server connection scoped to one agent run.
type ToolSession interface {
	Tools() []tool.BaseTool
	Close() error
}

// ToolProvider opens a fresh ToolSession.
type ToolProvider func(ctx context.Context) (ToolSession, error)

// AgentRunner runs an eino ReAct agent backed by a chat model that supports
// tool binding. Every Run launches its own tool server and tears it down
// before returning.
type AgentRunner struct {
	chatModel  model.ChatModel
	definition Definition
	tools      ToolProvider
	timeout    time.Duration
	logger     *log.Entry
}

// NewAgentRunner builds a runner. timeout bounds a whole run, tool server
// startup included; zero disables it.
func NewAgentRunner(chatModel model.ChatModel, definition Definition, tools ToolProvider, timeout time.Duration) (*AgentRunner, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if tools == nil {
		return nil, fmt.Errorf("tool provider is required")
	}
	return &AgentRunner{
		chatModel:  chatModel,
		definition: definition,
		tools:      tools,
		timeout:    timeout,
		logger:     log.WithFields(log.Fields{"component": "agent", "agent": definition.Name}),
	}, nil
}

// Run implements Runner.
func (r *AgentRunner) Run(ctx context.Context, history []chat.Message) (*Result, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	session, err := r.tools(ctx)
	if err != nil {
		return nil, fmt.Errorf("open tool session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			r.logger.WithError(err).Warn("failed to close tool session")
		}
	}()

	agent, err := react.NewAgent(ctx, &react.AgentConfig{
		Model:           r.chatModel,
		ToolsConfig:     compose.ToolsNodeConfig{Tools: session.Tools()},
		MessageModifier: r.withInstructions,
		MaxStep:         r.definition.MaxStep,
	})
	if err != nil {
		return nil, fmt.Errorf("build agent: %w", err)
	}

	started := time.Now()
	msg, err := agent.Generate(ctx, BuildHistoryMessages(history))
	if err != nil {
		return nil, fmt.Errorf("run agent: %w", err)
	}

	result := &Result{}
	if msg != nil {
		result.FinalOutput = msg.Content
	}
	r.logger.WithFields(log.Fields{
		"history":  len(history),
		"length":   len(result.FinalOutput),
		"duration": time.Since(started).Round(time.Millisecond),
	}).Info("agent run finished")
	return result, nil
}

func (r *AgentRunner) withInstructions(_ context.Context, input []*schema.Message) []*schema.Message {
	messages := make([]*schema.Message, 0, len(input)+1)
	messages = append(messages, schema.SystemMessage(r.definition.Instructions))
	return append(messages, input...)
}

// BuildHistoryMessages converts the shared history into model messages.
// Entries with an unknown role are dropped.
func BuildHistoryMessages(messages []chat.Message) []*schema.Message {
	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}

type mcpSession struct {
	client *mcp.Client
	tools  []tool.BaseTool
}

func (s *mcpSession) Tools() []tool.BaseTool { return s.tools }

func (s *mcpSession) Close() error { return s.client.Close() }

// MCPTools returns a ToolProvider that starts the configured tool server as
// a subprocess, performs the MCP handshake and exposes its tools. The
// subprocess is stopped if any step fails.
func MCPTools(cfg config.ToolServerConfig) ToolProvider {
	return func(ctx context.Context) (ToolSession, error) {
		transport, err := mcp.StartStdio(mcp.StdioConfig{
			Name:    cfg.Name,
			Command: cfg.Command,
			Args:    cfg.CommandArgs(),
		})
		if err != nil {
			return nil, err
		}

		logger := log.WithFields(log.Fields{"component": "agent", "server": cfg.Name})
		client := mcp.NewClient(cfg.Name, transport)
		if err := client.Initialize(ctx); err != nil {
			closeClient(logger, client)
			return nil, err
		}

		tools, err := mcp.Tools(ctx, client)
		if err != nil {
			closeClient(logger, client)
			return nil, err
		}
		return &mcpSession{client: client, tools: tools}, nil
	}
}

func closeClient(logger *log.Entry, client *mcp.Client) {
	if err := client.Close(); err != nil {
		logger.WithError(err).Warn("failed to close tool server")
	}
}

type unavailableRunner struct{ err error }

func (u unavailableRunner) Run(context.Context, []chat.Message) (*Result, error) {
	return nil, u.err
}

// Unavailable returns a Runner that fails every run with err. It keeps the
// relay serving sockets when the agent runtime could not be configured.
func Unavailable(err error) Runner {
	return unavailableRunner{err: fmt.Errorf("agent unavailable: %w", err)}
}
