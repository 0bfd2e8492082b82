package ai

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/zhouzirui/invoice-relay/backend/internal/model/chat"
)

const (
	// NoResponsePlaceholder is stored in history when the agent returns
	// nothing usable.
	NoResponsePlaceholder = "No response from agent."
	// NoResponseReply is sent to the user in the same situation.
	NoResponseReply = "I couldn't process your request at the moment. Please try again."
	// ErrorReply is sent to the user when the agent call fails.
	ErrorReply = "I encountered an error while processing your message. Please try again."
)

// History is the conversation store a Dispatcher records turns into.
type History interface {
	Append(role chat.Role, content string)
	Snapshot() []chat.Message
}

// Dispatcher forwards user messages to the agent and records both sides of
// the turn in the shared history.
type Dispatcher struct {
	history History
	runner  Runner
	logger  *log.Entry
}

// NewDispatcher wires a dispatcher to its history and agent runner.
func NewDispatcher(history History, runner Runner) *Dispatcher {
	return &Dispatcher{
		history: history,
		runner:  runner,
		logger:  log.WithField("component", "dispatcher"),
	}
}

// Process runs one chat turn and always returns text fit for the user.
// Agent failures are logged and replaced by ErrorReply.
func (d *Dispatcher) Process(ctx context.Context, message string) string {
	reply, err := d.Dispatch(ctx, message)
	if err != nil {
		d.logger.WithError(err).Error("error processing message")
	}
	return reply
}

// Dispatch runs one chat turn. The user message is recorded before the
// agent runs; the assistant entry is recorded only when the agent returned
// without error. On error the returned reply is ErrorReply.
//
// The agent call is detached from ctx cancellation: a client that goes away
// mid-turn does not abort the run.
func (d *Dispatcher) Dispatch(ctx context.Context, message string) (reply string, err error) {
	d.history.Append(chat.RoleUser, message)

	result, err := d.run(context.WithoutCancel(ctx))
	if err != nil {
		return ErrorReply, err
	}

	if result == nil || result.FinalOutput == "" {
		d.history.Append(chat.RoleAssistant, NoResponsePlaceholder)
		return NoResponseReply, nil
	}

	d.history.Append(chat.RoleAssistant, result.FinalOutput)
	return result.FinalOutput, nil
}

func (d *Dispatcher) run(ctx context.Context) (result *Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("agent panicked: %v", rec)
		}
	}()
	return d.runner.Run(ctx, d.history.Snapshot())
}
