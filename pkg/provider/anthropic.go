package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	anthropicDefaultMaxTok  = 4096
)

// Anthropic adapts the normalized request to the /v1/messages API:
// api-key header auth plus a versioning header, system prompt extracted
// into a top-level field, tools with input_schema.
type Anthropic struct {
	baseURL    string
	pool       *CredentialPool
	httpClient *http.Client
	timeouts   Timeouts
	log        *logrus.Entry
}

// AnthropicConfig configures the adapter. Zero fields take defaults.
type AnthropicConfig struct {
	BaseURL  string
	APIKeys  []string
	Timeouts Timeouts
}

// NewAnthropic creates the adapter.
func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &Anthropic{
		baseURL:    baseURL,
		pool:       NewCredentialPool("anthropic", cfg.APIKeys),
		httpClient: newHTTPClient(),
		timeouts:   cfg.Timeouts,
		log:        logrus.WithField("provider", "anthropic"),
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model       string          `json:"model"`
	Messages    []anthropicMsg  `json:"messages"`
	System      string          `json:"system,omitempty"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	TopK        *int            `json:"top_k,omitempty"`
	Tools       []anthropicTool `json:"tools,omitempty"`
}

type anthropicMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type anthropicResponse struct {
	Content []struct {
		Type  string                 `json:"type"`
		Text  string                 `json:"text,omitempty"`
		ID    string                 `json:"id,omitempty"`
		Name  string                 `json:"name,omitempty"`
		Input map[string]interface{} `json:"input,omitempty"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete implements Provider.
func (a *Anthropic) Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	key, err := a.pool.Acquire()
	if err != nil {
		return nil, err
	}

	body := anthropicRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = anthropicDefaultMaxTok
	}
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			if body.System != "" {
				body.System += "\n\n"
			}
			body.System += msg.Content
			continue
		}
		body.Messages = append(body.Messages, anthropicMsg{Role: msg.Role, Content: msg.Content})
	}
	for _, tool := range req.Tools {
		body.Tools = append(body.Tools, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeouts.ForModel(req.Model))
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", key)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		apiErr := &APIError{
			Provider:   "anthropic",
			StatusCode: httpResp.StatusCode,
			Message:    string(raw),
			RetryAfter: retryAfterHeader(httpResp),
		}
		if httpResp.StatusCode == 429 || httpResp.StatusCode == 529 {
			a.pool.MarkRateLimited(key, apiErr.RetryAfter)
		}
		return nil, apiErr
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	resp := &ChatResponse{
		Model: parsed.Model,
		Usage: Usage{
			InputTokens:  parsed.Usage.InputTokens,
			OutputTokens: parsed.Usage.OutputTokens,
		},
	}
	switch parsed.StopReason {
	case "end_turn", "stop_sequence":
		resp.FinishReason = FinishEnd
	case "tool_use":
		resp.FinishReason = FinishToolUse
	case "max_tokens":
		resp.FinishReason = FinishLength
	default:
		resp.FinishReason = FinishUnknown
	}
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			resp.Text += block.Text
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}
	resp.CostUSD = CalculateCost(req.Model, resp.Usage)
	return resp, nil
}
