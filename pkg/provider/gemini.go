package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// Gemini adapts the normalized request to the generateContent REST API.
// The key travels as a query parameter, the assistant role is spelled
// "model", and system messages go into a separate systemInstruction
// field.
type Gemini struct {
	baseURL    string
	pool       *CredentialPool
	httpClient *http.Client
	timeouts   Timeouts
	log        *logrus.Entry
}

// GeminiConfig configures the adapter. Zero fields take defaults.
type GeminiConfig struct {
	BaseURL  string
	APIKeys  []string
	Timeouts Timeouts
}

// NewGemini creates the adapter.
func NewGemini(cfg GeminiConfig) *Gemini {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &Gemini{
		baseURL:    baseURL,
		pool:       NewCredentialPool("gemini", cfg.APIKeys),
		httpClient: newHTTPClient(),
		timeouts:   cfg.Timeouts,
		log:        logrus.WithField("provider", "gemini"),
	}
}

func (g *Gemini) Name() string { return "gemini" }

type geminiRequest struct {
	Contents          []geminiContent   `json:"contents"`
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenConfig  `json:"generationConfig,omitempty"`
	Tools             []geminiToolGroup `json:"tools,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text         string              `json:"text,omitempty"`
	FunctionCall *geminiFunctionCall `json:"functionCall,omitempty"`
}

type geminiFunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

type geminiGenConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"topP,omitempty"`
	TopK             *int     `json:"topK,omitempty"`
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

type geminiToolGroup struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiFunctionDecl struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Complete implements Provider.
func (g *Gemini) Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	key, err := g.pool.Acquire()
	if err != nil {
		return nil, err
	}

	body := geminiRequest{}
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			if body.SystemInstruction == nil {
				body.SystemInstruction = &geminiContent{}
			}
			body.SystemInstruction.Parts = append(body.SystemInstruction.Parts, geminiPart{Text: msg.Content})
		case "assistant":
			body.Contents = append(body.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: msg.Content}}})
		default:
			body.Contents = append(body.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: msg.Content}}})
		}
	}
	if req.Temperature != nil || req.TopP != nil || req.TopK != nil || req.MaxTokens > 0 || req.ResponseFormat == "json" {
		body.GenerationConfig = &geminiGenConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			TopK:            req.TopK,
			MaxOutputTokens: req.MaxTokens,
		}
		if req.ResponseFormat == "json" {
			body.GenerationConfig.ResponseMimeType = "application/json"
		}
	}
	if len(req.Tools) > 0 {
		group := geminiToolGroup{}
		for _, tool := range req.Tools {
			group.FunctionDeclarations = append(group.FunctionDeclarations, geminiFunctionDecl{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			})
		}
		body.Tools = []geminiToolGroup{group}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeouts.ForModel(req.Model))
	defer cancel()

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		g.baseURL, url.PathEscape(req.Model), url.QueryEscape(key))
	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		apiErr := &APIError{
			Provider:   "gemini",
			StatusCode: httpResp.StatusCode,
			Message:    string(raw),
			RetryAfter: retryAfterHeader(httpResp),
		}
		if httpResp.StatusCode == 429 {
			g.pool.MarkRateLimited(key, apiErr.RetryAfter)
		}
		return nil, apiErr
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return nil, fmt.Errorf("gemini response contained no candidates")
	}

	candidate := parsed.Candidates[0]
	resp := &ChatResponse{
		Model: req.Model,
		Usage: Usage{
			InputTokens:  parsed.UsageMetadata.PromptTokenCount,
			OutputTokens: parsed.UsageMetadata.CandidatesTokenCount,
		},
	}
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			resp.Text += part.Text
		}
		if part.FunctionCall != nil {
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
		}
	}
	switch candidate.FinishReason {
	case "STOP":
		resp.FinishReason = FinishEnd
	case "MAX_TOKENS":
		resp.FinishReason = FinishLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT":
		resp.FinishReason = FinishFiltered
	default:
		resp.FinishReason = FinishUnknown
	}
	if len(resp.ToolCalls) > 0 {
		resp.FinishReason = FinishToolUse
	}
	resp.CostUSD = CalculateCost(req.Model, resp.Usage)
	return resp, nil
}
