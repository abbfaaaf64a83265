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

const defaultOpenAIBaseURL = "https://api.openai.com"

// OpenAI adapts the normalized request to the /v1/chat/completions API
// with Bearer auth. Tool declarations go out as type "function" entries
// and tool-call arguments come back as a JSON string that must be
// decoded before use.
type OpenAI struct {
	baseURL    string
	pool       *CredentialPool
	httpClient *http.Client
	timeouts   Timeouts
	log        *logrus.Entry
}

// OpenAIConfig configures the adapter. Zero fields take defaults.
type OpenAIConfig struct {
	BaseURL  string
	APIKeys  []string
	Timeouts Timeouts
}

// NewOpenAI creates the adapter.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAI{
		baseURL:    baseURL,
		pool:       NewCredentialPool("openai", cfg.APIKeys),
		httpClient: newHTTPClient(),
		timeouts:   cfg.Timeouts,
		log:        logrus.WithField("provider", "openai"),
	}
}

func (o *OpenAI) Name() string { return "openai" }

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMsg           `json:"messages"`
	Temperature    *float64              `json:"temperature,omitempty"`
	TopP           *float64              `json:"top_p,omitempty"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	Tools          []openAITool          `json:"tools,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete implements Provider.
func (o *OpenAI) Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	key, err := o.pool.Acquire()
	if err != nil {
		return nil, err
	}

	body := openAIRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}
	for _, msg := range req.Messages {
		body.Messages = append(body.Messages, openAIMsg{Role: msg.Role, Content: msg.Content})
	}
	for _, tool := range req.Tools {
		body.Tools = append(body.Tools, openAITool{
			Type: "function",
			Function: openAIFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}
	if req.ResponseFormat == "json" {
		body.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeouts.ForModel(req.Model))
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, o.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+key)

	httpResp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		apiErr := &APIError{
			Provider:   "openai",
			StatusCode: httpResp.StatusCode,
			Message:    string(raw),
			RetryAfter: retryAfterHeader(httpResp),
		}
		if httpResp.StatusCode == 429 {
			o.pool.MarkRateLimited(key, apiErr.RetryAfter)
		}
		return nil, apiErr
	}

	var parsed openAIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if parsed.Error != nil {
		return nil, &APIError{Provider: "openai", StatusCode: httpResp.StatusCode, Message: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openai response contained no choices")
	}

	choice := parsed.Choices[0]
	resp := &ChatResponse{
		Text:  choice.Message.Content,
		Model: parsed.Model,
		Usage: Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
		},
	}
	switch choice.FinishReason {
	case "stop":
		resp.FinishReason = FinishEnd
	case "tool_calls", "function_call":
		resp.FinishReason = FinishToolUse
	case "length":
		resp.FinishReason = FinishLength
	case "content_filter":
		resp.FinishReason = FinishFiltered
	default:
		resp.FinishReason = FinishUnknown
	}
	for _, tc := range choice.Message.ToolCalls {
		args := map[string]interface{}{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				o.log.WithError(err).WithField("tool", tc.Function.Name).Warn("Failed to decode tool call arguments")
			}
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	resp.CostUSD = CalculateCost(req.Model, resp.Usage)
	return resp, nil
}
