package ai

import (
	"strings"

	"github.com/zhouzirui/invoice-relay/backend/internal/config"
)

// DefaultAgentName names the built-in invoicing assistant.
const DefaultAgentName = "Invoicing Agent"

// DefaultInstructions is the system prompt used when no agent definition
// file supplies one. Adapt it to the business the relay serves.
const DefaultInstructions = `<background>
You are a finance assistant responsible for creating and managing a company's invoicing. The user talks to you in natural language and asks you to carry out invoicing work: creating and updating invoices, managing customer accounts, sending follow-ups and similar tasks. Your invoicing capabilities come from the Stripe tool server, which gives you access to the Stripe API.
</background>
<task>
Use the conversation history to carry out what the user asks. If you are missing information needed to finish a task, or a tool call fails, ask the user for clarification or the missing details.
</task>
<tools>
  - Stripe tool server (Stripe API)
</tools>
<output>
Reply in a polite and friendly tone. Keep messages clear and concise, without unnecessary detail or jargon.
</output>`

// Definition is the resolved agent definition handed to the runtime.
type Definition struct {
	Name         string
	Instructions string
	// Model is empty when the environment's model applies.
	Model   string
	MaxStep int
}

// ResolveDefinition fills gaps in a loaded definition with the built-in
// defaults. maxStep applies when the definition does not set its own.
func ResolveDefinition(def config.AgentDefinition, maxStep int) Definition {
	resolved := Definition{
		Name:         strings.TrimSpace(def.Name),
		Instructions: strings.TrimSpace(def.Instructions),
		Model:        strings.TrimSpace(def.Model),
		MaxStep:      def.MaxStep,
	}
	if resolved.Name == "" {
		resolved.Name = DefaultAgentName
	}
	if resolved.Instructions == "" {
		resolved.Instructions = DefaultInstructions
	}
	if resolved.MaxStep <= 0 {
		resolved.MaxStep = maxStep
	}
	return resolved
}
