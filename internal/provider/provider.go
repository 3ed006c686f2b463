// Package provider speaks the chat-completions wire shape shared by every
// backend this app talks to: the hosted built-ins, self-hosted servers
// (Ollama, vLLM, LM Studio) and anything else OpenAI-compatible. One client,
// per-call profile data, no per-backend adapters.
package provider

import (
	"context"
	"encoding/json"

	"github.com/jmelis/sotto/internal/jsonval"
	"github.com/jmelis/sotto/internal/registry"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one conversation turn. It marshals to the wire form directly:
// tool calls nest under function objects, and arguments stay a JSON-encoded
// string end to end so they survive a round trip byte-for-byte.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall // assistant turns only
	ToolCallID string     // tool-result turns only
	Name       string     // tool name on tool-result turns
}

type ToolCall struct {
	ID   string
	Name string
	Args string // raw JSON, parsed only at the execution boundary
}

// ToolDef describes one callable tool to the model.
type ToolDef struct {
	Name        string
	Description string
	Parameters  jsonval.Value // JSON schema for the arguments object
}

type ToolChoice string

const (
	ToolChoiceAuto ToolChoice = "auto"
	ToolChoiceNone ToolChoice = "none"
)

// ChatResponse is the decoded first choice of a completion: assistant text,
// tool calls, or both.
type ChatResponse struct {
	Text      string
	ToolCalls []ToolCall
}

// ChatSender is the single-call surface the orchestration layer consumes.
type ChatSender interface {
	SendChat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Provider adds the model-listing call used by reconcile and diagnostics.
type Provider interface {
	ChatSender
	ListModels(ctx context.Context, profile registry.Profile) ([]string, error)
}

// ChatRequest is everything one round trip needs. Profile data is read at
// call time; the client keeps no per-provider state.
type ChatRequest struct {
	Profile     registry.Profile
	Model       string
	Messages    []Message
	Temperature *float64 // nil leaves the provider default; dropped for reasoning models
	Tools       []ToolDef
	ToolChoice  ToolChoice // only sent when Tools is non-empty
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"` // never omitted: some local servers reject a missing content field
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		Role:       string(m.Role),
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
		Name:       m.Name,
	}
	for _, tc := range m.ToolCalls {
		w.ToolCalls = append(w.ToolCalls, wireToolCall{
			ID:       tc.ID,
			Type:     "function",
			Function: wireFunction{Name: tc.Name, Arguments: tc.Args},
		})
	}
	return json.Marshal(w)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := Message{
		Role:       Role(w.Role),
		Content:    w.Content,
		ToolCallID: w.ToolCallID,
		Name:       w.Name,
	}
	for _, tc := range w.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: tc.Function.Arguments,
		})
	}
	*m = out
	return nil
}
