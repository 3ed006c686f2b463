package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmelis/sotto/internal/jsonval"
	"github.com/jmelis/sotto/internal/provider"
)

// scriptedSender replays canned responses and records every request so
// tests can assert on tool_choice and message history per round.
type scriptedSender struct {
	responses []*provider.ChatResponse
	errs      []error
	requests  []provider.ChatRequest
}

func (s *scriptedSender) SendChat(_ context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	cp := req
	cp.Messages = append([]provider.Message(nil), req.Messages...)
	s.requests = append(s.requests, cp)

	i := len(s.requests) - 1
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return &provider.ChatResponse{Text: "unscripted response"}, nil
}

type recordedCall struct {
	name string
	args string
}

type recordingExecutor struct {
	outputs map[string]string
	errs    map[string]error
	calls   []recordedCall
}

func (r *recordingExecutor) Execute(_ context.Context, name string, args jsonval.Value) (string, error) {
	raw, _ := json.Marshal(args)
	r.calls = append(r.calls, recordedCall{name: name, args: string(raw)})
	if err := r.errs[name]; err != nil {
		return "", err
	}
	if out, ok := r.outputs[name]; ok {
		return out, nil
	}
	return "ok", nil
}

func testTools(t *testing.T) []provider.ToolDef {
	t.Helper()
	params, err := jsonval.Parse([]byte(`{"type":"object","properties":{"name":{"type":"string"}}}`))
	require.NoError(t, err)
	return []provider.ToolDef{
		{Name: "open_app", Description: "Open an application by name", Parameters: params},
		{Name: "press_keys", Description: "Press a keyboard shortcut", Parameters: params},
	}
}

func seedHistory(transcript string) []provider.Message {
	return []provider.Message{
		{Role: provider.RoleSystem, Content: "You are a desktop command assistant."},
		{Role: provider.RoleUser, Content: transcript},
	}
}

func TestRunPlainTextAnswer(t *testing.T) {
	sender := &scriptedSender{responses: []*provider.ChatResponse{
		{Text: "Nothing to do."},
	}}
	exec := &recordingExecutor{}
	o := New(sender, exec, testTools(t), nil)

	answer, history, err := o.Run(context.Background(), provider.ChatRequest{Messages: seedHistory("do nothing")})
	require.NoError(t, err)
	assert.Equal(t, "Nothing to do.", answer)
	assert.Empty(t, exec.calls)

	require.Len(t, sender.requests, 1)
	assert.Equal(t, provider.ToolChoiceAuto, sender.requests[0].ToolChoice)
	require.Len(t, history, 3)
	assert.Equal(t, provider.RoleAssistant, history[2].Role)
	assert.Equal(t, "Nothing to do.", history[2].Content)
}

func TestRunSingleToolRound(t *testing.T) {
	sender := &scriptedSender{responses: []*provider.ChatResponse{
		{ToolCalls: []provider.ToolCall{{ID: "call_1", Name: "open_app", Args: `{"name":"Mail"}`}}},
		{Text: "Opened Mail."},
	}}
	exec := &recordingExecutor{outputs: map[string]string{"open_app": "launched Mail"}}
	o := New(sender, exec, testTools(t), nil)

	answer, history, err := o.Run(context.Background(), provider.ChatRequest{Messages: seedHistory("open mail")})
	require.NoError(t, err)
	assert.Equal(t, "Opened Mail.", answer)

	require.Len(t, exec.calls, 1)
	assert.Equal(t, "open_app", exec.calls[0].name)
	assert.JSONEq(t, `{"name":"Mail"}`, exec.calls[0].args)

	require.Len(t, sender.requests, 2)
	assert.Equal(t, provider.ToolChoiceAuto, sender.requests[0].ToolChoice)
	assert.Equal(t, provider.ToolChoiceNone, sender.requests[1].ToolChoice)

	// Second request carries the assistant tool-call turn and its result.
	msgs := sender.requests[1].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, provider.RoleAssistant, msgs[2].Role)
	require.Len(t, msgs[2].ToolCalls, 1)
	assert.Equal(t, provider.RoleTool, msgs[3].Role)
	assert.Equal(t, "call_1", msgs[3].ToolCallID)
	assert.Equal(t, "open_app", msgs[3].Name)
	assert.Equal(t, "launched Mail", msgs[3].Content)

	assert.Equal(t, "Opened Mail.", history[len(history)-1].Content)
}

func TestRunDropsMalformedToolCall(t *testing.T) {
	sender := &scriptedSender{responses: []*provider.ChatResponse{
		{ToolCalls: []provider.ToolCall{
			{ID: "call_1", Name: "open_app", Args: `{"name":"Mail"}`},
			{ID: "call_2", Name: "press_keys", Args: `{"combo": cmd+q`},
		}},
		{Text: "Done."},
	}}
	exec := &recordingExecutor{}
	o := New(sender, exec, testTools(t), nil)

	answer, _, err := o.Run(context.Background(), provider.ChatRequest{Messages: seedHistory("open mail and quit")})
	require.NoError(t, err)
	assert.Equal(t, "Done.", answer)

	// Only the well-formed call reaches the executor.
	require.Len(t, exec.calls, 1)
	assert.Equal(t, "open_app", exec.calls[0].name)

	// The malformed call is absent from the conversation entirely.
	msgs := sender.requests[1].Messages
	require.Len(t, msgs, 4)
	require.Len(t, msgs[2].ToolCalls, 1)
	assert.Equal(t, "call_1", msgs[2].ToolCalls[0].ID)
	toolMsgs := 0
	for _, m := range msgs {
		if m.Role == provider.RoleTool {
			toolMsgs++
		}
	}
	assert.Equal(t, 1, toolMsgs)
}

func TestRunAllCallsMalformedForcesFinalRound(t *testing.T) {
	sender := &scriptedSender{responses: []*provider.ChatResponse{
		{ToolCalls: []provider.ToolCall{{ID: "call_1", Name: "open_app", Args: `{broken`}}},
		{Text: "I could not run any tools."},
	}}
	exec := &recordingExecutor{}
	o := New(sender, exec, testTools(t), nil)

	answer, _, err := o.Run(context.Background(), provider.ChatRequest{Messages: seedHistory("open mail")})
	require.NoError(t, err)
	assert.Equal(t, "I could not run any tools.", answer)
	assert.Empty(t, exec.calls)

	msgs := sender.requests[1].Messages
	require.Len(t, msgs, 3)
	assert.Empty(t, msgs[2].ToolCalls)
}

func TestRunForcedFinalFallback(t *testing.T) {
	sender := &scriptedSender{responses: []*provider.ChatResponse{
		{ToolCalls: []provider.ToolCall{{ID: "call_1", Name: "open_app", Args: `{"name":"Mail"}`}}},
		{ToolCalls: []provider.ToolCall{{ID: "call_2", Name: "open_app", Args: `{"name":"Safari"}`}}},
	}}
	exec := &recordingExecutor{}
	o := New(sender, exec, testTools(t), nil)

	answer, history, err := o.Run(context.Background(), provider.ChatRequest{Messages: seedHistory("open mail")})
	require.NoError(t, err)
	assert.Equal(t, FallbackAnswer, answer)

	// The disobedient final-round call is never executed.
	require.Len(t, exec.calls, 1)
	assert.Equal(t, FallbackAnswer, history[len(history)-1].Content)
}

func TestRunForcedFinalKeepsModelText(t *testing.T) {
	sender := &scriptedSender{responses: []*provider.ChatResponse{
		{ToolCalls: []provider.ToolCall{{ID: "call_1", Name: "open_app", Args: `{"name":"Mail"}`}}},
		{Text: "All set.", ToolCalls: []provider.ToolCall{{ID: "call_2", Name: "open_app", Args: `{"name":"Safari"}`}}},
	}}
	exec := &recordingExecutor{}
	o := New(sender, exec, testTools(t), nil)

	answer, _, err := o.Run(context.Background(), provider.ChatRequest{Messages: seedHistory("open mail")})
	require.NoError(t, err)
	assert.Equal(t, "All set.", answer)
	require.Len(t, exec.calls, 1)
}

func TestRunToolFailureFedBackToModel(t *testing.T) {
	sender := &scriptedSender{responses: []*provider.ChatResponse{
		{ToolCalls: []provider.ToolCall{{ID: "call_1", Name: "open_app", Args: `{"name":"Mial"}`}}},
		{Text: "The app Mial does not exist."},
	}}
	exec := &recordingExecutor{errs: map[string]error{"open_app": errors.New("no such application")}}
	o := New(sender, exec, testTools(t), nil)

	answer, _, err := o.Run(context.Background(), provider.ChatRequest{Messages: seedHistory("open mial")})
	require.NoError(t, err)
	assert.Equal(t, "The app Mial does not exist.", answer)

	msgs := sender.requests[1].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, provider.RoleTool, msgs[3].Role)
	assert.Contains(t, msgs[3].Content, "tool execution error")
	assert.Contains(t, msgs[3].Content, "no such application")
}

func TestRunEmptyArgsTreatedAsEmptyObject(t *testing.T) {
	sender := &scriptedSender{responses: []*provider.ChatResponse{
		{ToolCalls: []provider.ToolCall{{ID: "call_1", Name: "press_keys", Args: ""}}},
		{Text: "Done."},
	}}
	exec := &recordingExecutor{}
	o := New(sender, exec, testTools(t), nil)

	_, _, err := o.Run(context.Background(), provider.ChatRequest{Messages: seedHistory("press enter")})
	require.NoError(t, err)
	require.Len(t, exec.calls, 1)
	assert.Equal(t, "{}", exec.calls[0].args)
}

func TestRunRoundBudgetExhausted(t *testing.T) {
	sender := &scriptedSender{responses: []*provider.ChatResponse{
		{ToolCalls: []provider.ToolCall{{ID: "call_1", Name: "open_app", Args: `{"name":"Mail"}`}}},
	}}
	exec := &recordingExecutor{}
	o := New(sender, exec, testTools(t), &Config{MaxRounds: 1})

	_, history, err := o.Run(context.Background(), provider.ChatRequest{Messages: seedHistory("open mail")})
	require.ErrorIs(t, err, ErrRoundBudget)
	// The executed round is still in history for the caller to record.
	assert.Len(t, history, 4)
}

func TestRunProviderErrorPropagates(t *testing.T) {
	sender := &scriptedSender{errs: []error{&provider.ProtocolError{Provider: "openai", StatusCode: 429, Message: "rate limited"}}}
	exec := &recordingExecutor{}
	o := New(sender, exec, testTools(t), nil)

	_, _, err := o.Run(context.Background(), provider.ChatRequest{Messages: seedHistory("open mail")})
	var protoErr *provider.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, 429, protoErr.StatusCode)
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sender := &scriptedSender{}
	exec := &recordingExecutor{}
	o := New(sender, exec, testTools(t), nil)

	_, _, err := o.Run(ctx, provider.ChatRequest{Messages: seedHistory("open mail")})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sender.requests)
}

func TestParseArgs(t *testing.T) {
	v, err := parseArgs("")
	require.NoError(t, err)
	assert.Equal(t, jsonval.KindObject, v.Kind())
	assert.Empty(t, v.Keys())

	v, err = parseArgs(`{"a": 1}`)
	require.NoError(t, err)
	field, ok := v.Field("a")
	require.True(t, ok)
	assert.Equal(t, jsonval.KindNumber, field.Kind())

	_, err = parseArgs(`{"a":`)
	require.Error(t, err)
}
