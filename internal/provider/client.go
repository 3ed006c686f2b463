package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jmelis/sotto/internal/jsonval"
	"github.com/jmelis/sotto/internal/registry"
)

// DefaultTimeout bounds a single provider round trip. Matches the
// connectivity-check bound so a hung server surfaces as a NetworkError
// instead of a stuck session.
const DefaultTimeout = 30 * time.Second

// Client performs chat-completion round trips. It holds no provider state;
// every call reads the profile it is given, so settings edits take effect on
// the next call without rebuilding anything.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// SendChat performs exactly one POST to the profile's completions endpoint
// and decodes the first choice. All failure paths return typed errors; no
// status code or body shape panics.
func (c *Client) SendChat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Endpoint: req.Profile.BaseURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Endpoint: req.Profile.BaseURL, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProtocolError{
			Provider:   req.Profile.Display(),
			StatusCode: resp.StatusCode,
			Message:    parseErrorMessage(resp.StatusCode, body),
		}
	}

	return decodeChatResponse(req.Profile.Display(), body)
}

// ListModels fetches the model ids the provider currently serves.
func (c *Client) ListModels(ctx context.Context, profile registry.Profile) ([]string, error) {
	url := strings.TrimRight(profile.BaseURL, "/") + "/models"
	httpReq, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	setAuth(httpReq, profile)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Endpoint: profile.BaseURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Endpoint: profile.BaseURL, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProtocolError{
			Provider:   profile.Display(),
			StatusCode: resp.StatusCode,
			Message:    parseErrorMessage(resp.StatusCode, body),
		}
	}

	var result struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &DecodeError{Provider: profile.Display(), Reason: err.Error()}
	}
	models := make([]string, len(result.Data))
	for i, m := range result.Data {
		models[i] = m.ID
	}
	return models, nil
}

func (c *Client) newRequest(ctx context.Context, req ChatRequest) (*http.Request, error) {
	payload, err := json.Marshal(buildRequestBody(req))
	if err != nil {
		return nil, err
	}
	endpoint := ResolveEndpoint(req.Profile.BaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	setAuth(httpReq, req.Profile)
	return httpReq, nil
}

// setAuth attaches the bearer header for hosted endpoints with a configured
// key. Local endpoints never get the header, not even empty.
func setAuth(httpReq *http.Request, profile registry.Profile) {
	if IsLocalEndpoint(profile.BaseURL) {
		return
	}
	if profile.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+profile.APIKey)
	}
}

type wireTool struct {
	Type     string         `json:"type"`
	Function wireToolSchema `json:"function"`
}

type wireToolSchema struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Parameters  jsonval.Value `json:"parameters"`
}

// buildRequestBody assembles the wire body as a map so reasoning parameters
// can merge in as extra top-level fields.
func buildRequestBody(req ChatRequest) map[string]any {
	body := map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
	}

	if IsReasoningModel(req.Model) {
		// Reasoning models reject temperature; the configured reasoning
		// knob takes its place when enabled for this (provider, model).
		if rc, ok := req.Profile.ReasoningFor(req.Model); ok && rc.Enabled && rc.Param != "" {
			body[rc.Param] = rc.Value
		}
	} else if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}

	if len(req.Tools) > 0 {
		tools := make([]wireTool, len(req.Tools))
		for i, t := range req.Tools {
			tools[i] = wireTool{
				Type:     "function",
				Function: wireToolSchema{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
			}
		}
		body["tools"] = tools
		choice := req.ToolChoice
		if choice == "" {
			choice = ToolChoiceAuto
		}
		body["tool_choice"] = string(choice)
	}

	return body
}

func decodeChatResponse(providerName string, body []byte) (*ChatResponse, error) {
	var payload struct {
		Choices []struct {
			Message      Message `json:"message"`
			FinishReason string  `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &DecodeError{Provider: providerName, Reason: err.Error()}
	}
	if len(payload.Choices) == 0 {
		return nil, &DecodeError{Provider: providerName, Reason: "response contained no choices"}
	}

	msg := payload.Choices[0].Message
	out := &ChatResponse{Text: msg.Content, ToolCalls: msg.ToolCalls}
	for i := range out.ToolCalls {
		// Some local servers omit call ids; synthesize one so tool results
		// can still reference their call.
		if out.ToolCalls[i].ID == "" {
			out.ToolCalls[i].ID = "call_" + uuid.NewString()
		}
	}
	return out, nil
}
