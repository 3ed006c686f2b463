// Package orchestrator runs Command Mode's tool-calling conversation:
// model turns alternate with tool executions until the model answers in
// plain text, bounded so a tool-happy model can never loop forever.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmelis/sotto/internal/jsonval"
	"github.com/jmelis/sotto/internal/provider"
	"github.com/jmelis/sotto/internal/toolexec"
)

// DefaultMaxRounds bounds the loop when the caller does not configure one.
const DefaultMaxRounds = 5

// FallbackAnswer is delivered when the forced-final round still returns
// tool calls with no usable text, so a session always ends with visible
// output instead of an internal error.
const FallbackAnswer = "Task completed successfully."

// ErrRoundBudget is returned when the loop hits its round limit without a
// final answer. Only reachable with a budget of one: on any later round
// tool_choice is "none" and the round always terminates the loop.
var ErrRoundBudget = errors.New("tool-calling loop exhausted its round budget")

// ArgumentError marks a tool call whose arguments were not valid JSON.
// The call is dropped from execution and from history; the round carries
// on with the remaining calls.
type ArgumentError struct {
	Tool string
	Err  error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("tool %s: arguments are not valid JSON: %s", e.Tool, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// Orchestrator coordinates rounds for one configuration of tools. It is
// safe to reuse across sessions; all per-run state lives on the stack.
type Orchestrator struct {
	sender    provider.ChatSender
	executor  toolexec.Executor
	tools     []provider.ToolDef
	maxRounds int
	logger    *slog.Logger
}

// Config holds orchestrator configuration.
type Config struct {
	MaxRounds int
	Logger    *slog.Logger
}

func New(sender provider.ChatSender, executor toolexec.Executor, tools []provider.ToolDef, cfg *Config) *Orchestrator {
	if cfg == nil {
		cfg = &Config{}
	}
	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		sender:    sender,
		executor:  executor,
		tools:     tools,
		maxRounds: maxRounds,
		logger:    logger,
	}
}

// Run drives rounds until the model produces a final answer. req supplies
// the profile, model, temperature and seeded history; tools and tool_choice
// are managed here. The first round offers the tools with "auto"; after the
// first executed tool round every later call passes "none" to force text.
//
// Returns the answer, the full conversation including it, and an error only
// for provider failures, cancellation, or budget exhaustion.
func (o *Orchestrator) Run(ctx context.Context, req provider.ChatRequest) (string, []provider.Message, error) {
	history := req.Messages
	req.Tools = o.tools
	choice := provider.ToolChoiceAuto

	for round := 0; round < o.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return "", history, err
		}

		req.Messages = history
		req.ToolChoice = choice
		resp, err := o.sender.SendChat(ctx, req)
		if err != nil {
			return "", history, err
		}

		if len(resp.ToolCalls) == 0 {
			history = append(history, provider.Message{Role: provider.RoleAssistant, Content: resp.Text})
			return resp.Text, history, nil
		}

		if choice == provider.ToolChoiceNone {
			// The model emitted tool calls despite being told not to.
			// Never execute them; salvage the text if there is any.
			if text := strings.TrimSpace(resp.Text); text != "" {
				history = append(history, provider.Message{Role: provider.RoleAssistant, Content: resp.Text})
				return resp.Text, history, nil
			}
			o.logger.Warn("model returned tool calls on the final round with no text, using fallback answer")
			history = append(history, provider.Message{Role: provider.RoleAssistant, Content: FallbackAnswer})
			return FallbackAnswer, history, nil
		}

		executable := o.parseCalls(resp.ToolCalls)
		history = append(history, provider.Message{
			Role:      provider.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: callList(executable),
		})

		for _, ec := range executable {
			output, err := o.executor.Execute(ctx, ec.call.Name, ec.args)
			if err != nil {
				if ctx.Err() != nil {
					return "", history, ctx.Err()
				}
				// Failures go back to the model as results so it can
				// react, retry differently, or explain to the user.
				output = fmt.Sprintf("tool execution error: %s", err)
			}
			history = append(history, provider.Message{
				Role:       provider.RoleTool,
				ToolCallID: ec.call.ID,
				Name:       ec.call.Name,
				Content:    output,
			})
		}

		choice = provider.ToolChoiceNone
	}

	return "", history, ErrRoundBudget
}

type executableCall struct {
	call provider.ToolCall
	args jsonval.Value
}

// parseCalls keeps the calls whose arguments decode as JSON. Dropped calls
// leave no trace in the conversation; the skip is logged for operators.
func (o *Orchestrator) parseCalls(calls []provider.ToolCall) []executableCall {
	out := make([]executableCall, 0, len(calls))
	for _, tc := range calls {
		args, err := parseArgs(tc.Args)
		if err != nil {
			o.logger.Warn("dropping tool call", "tool", tc.Name, "error", &ArgumentError{Tool: tc.Name, Err: err})
			continue
		}
		out = append(out, executableCall{call: tc, args: args})
	}
	return out
}

// parseArgs treats an empty arguments string as an empty object; several
// local servers emit "" for zero-argument tools.
func parseArgs(raw string) (jsonval.Value, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return jsonval.Object(nil), nil
	}
	return jsonval.Parse([]byte(trimmed))
}

func callList(ecs []executableCall) []provider.ToolCall {
	if len(ecs) == 0 {
		return nil
	}
	out := make([]provider.ToolCall, len(ecs))
	for i, ec := range ecs {
		out[i] = ec.call
	}
	return out
}
