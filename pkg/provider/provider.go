// Package provider normalizes chat requests and responses across the
// supported LLM backend families and performs the network I/O against
// them. Each adapter owns its backend's wire format, auth placement, and
// timeout tier; everything above this package works only with the
// normalized types.
package provider

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Message is one normalized chat message.
type Message struct {
	Role    string
	Content string
}

// ToolSchema declares a tool the model may call.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// ChatRequest is the backend-agnostic request. Constructed per API call;
// adapters never mutate it.
type ChatRequest struct {
	Model    string
	Messages []Message
	Tools    []ToolSchema

	// Sampling parameters. Nil pointers mean "backend default".
	Temperature *float64
	TopP        *float64
	TopK        *int
	MaxTokens   int

	// ResponseFormat is "json" to request structured output on backends
	// that support it, empty for plain text.
	ResponseFormat string
}

// FinishReason is the normalized stop reason.
type FinishReason string

const (
	FinishEnd      FinishReason = "end"
	FinishToolUse  FinishReason = "tool_use"
	FinishLength   FinishReason = "length"
	FinishFiltered FinishReason = "filtered"
	FinishUnknown  FinishReason = ""
)

// Usage carries token counts for cost accounting.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ChatResponse is the backend-agnostic response: concatenated text, any
// tool calls the model requested, and a finish reason.
type ChatResponse struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason FinishReason
	Usage        Usage
	Model        string
	CostUSD      float64
}

// Provider is one backend family.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// Complete sends the request through p, downgrading tool declarations
// when the backend rejects them: a request that fails specifically
// because the selected model does not support tools is retried exactly
// once with the tools stripped instead of surfacing the failure.
func Complete(ctx context.Context, p Provider, req *ChatRequest) (*ChatResponse, error) {
	resp, err := p.Complete(ctx, req)
	if err != nil && len(req.Tools) > 0 && IsToolUnsupported(err) {
		logrus.WithFields(logrus.Fields{
			"provider": p.Name(),
			"model":    req.Model,
		}).Warn("backend rejected tool declarations, retrying without tools")
		stripped := *req
		stripped.Tools = nil
		return p.Complete(ctx, &stripped)
	}
	return resp, err
}
