package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattsolo1/grove-script/pkg/provider"
)

func TestOpenAIComplete(t *testing.T) {
	var gotBody map[string]interface{}
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Write([]byte(`{
			"model": "gpt-4o",
			"choices": [{"message": {"content": "sure thing"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4}
		}`))
	}))
	defer server.Close()

	p := provider.NewOpenAI(provider.OpenAIConfig{BaseURL: server.URL, APIKeys: []string{"sk-test"}})
	temp := 0.3
	resp, err := p.Complete(context.Background(), &provider.ChatRequest{
		Model:       "gpt-4o",
		Messages:    []provider.Message{{Role: "user", Content: "hi"}},
		Temperature: &temp,
		MaxTokens:   100,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o", gotBody["model"])
	assert.InDelta(t, 0.3, gotBody["temperature"], 1e-9)
	assert.EqualValues(t, 100, gotBody["max_tokens"])

	assert.Equal(t, "sure thing", resp.Text)
	assert.Equal(t, provider.FinishEnd, resp.FinishReason)
	assert.Equal(t, 16, resp.Usage.InputTokens+resp.Usage.OutputTokens)
}

func TestOpenAIToolCalls(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		w.Write([]byte(`{
			"model": "gpt-4o",
			"choices": [{
				"message": {
					"content": "",
					"tool_calls": [{"id": "call_1", "function": {"name": "lookup", "arguments": "{\"city\": \"Oslo\"}"}}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 1, "completion_tokens": 1}
		}`))
	}))
	defer server.Close()

	p := provider.NewOpenAI(provider.OpenAIConfig{BaseURL: server.URL, APIKeys: []string{"sk"}})
	resp, err := p.Complete(context.Background(), &provider.ChatRequest{
		Model:    "gpt-4o",
		Messages: []provider.Message{{Role: "user", Content: "weather in oslo"}},
		Tools: []provider.ToolSchema{{
			Name:        "lookup",
			Description: "look up weather",
			InputSchema: map[string]interface{}{"type": "object"},
		}},
	})
	require.NoError(t, err)

	// Tools travel as type "function" entries.
	tools := gotBody["tools"].([]interface{})
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]interface{})
	assert.Equal(t, "function", tool["type"])

	assert.Equal(t, provider.FinishToolUse, resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "lookup", resp.ToolCalls[0].Name)
	assert.Equal(t, "Oslo", resp.ToolCalls[0].Arguments["city"])
}

func TestOpenAIToolUnsupportedDowngrade(t *testing.T) {
	var calls []map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &body))
		calls = append(calls, body)

		if _, hasTools := body["tools"]; hasTools {
			w.WriteHeader(400)
			w.Write([]byte(`{"error": {"message": "tools are not supported for this model"}}`))
			return
		}
		w.Write([]byte(`{
			"model": "small-model",
			"choices": [{"message": {"content": "plain answer"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 1, "completion_tokens": 1}
		}`))
	}))
	defer server.Close()

	p := provider.NewOpenAI(provider.OpenAIConfig{BaseURL: server.URL, APIKeys: []string{"sk"}})
	resp, err := provider.Complete(context.Background(), p, &provider.ChatRequest{
		Model:    "small-model",
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
		Tools:    []provider.ToolSchema{{Name: "x", InputSchema: map[string]interface{}{"type": "object"}}},
	})
	require.NoError(t, err)

	// Exactly one retry, without tools.
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0], "tools")
	assert.NotContains(t, calls[1], "tools")
	assert.Equal(t, "plain answer", resp.Text)
}

func TestOpenAIResponseFormat(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		w.Write([]byte(`{
			"model": "gpt-4o",
			"choices": [{"message": {"content": "{}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 1, "completion_tokens": 1}
		}`))
	}))
	defer server.Close()

	p := provider.NewOpenAI(provider.OpenAIConfig{BaseURL: server.URL, APIKeys: []string{"sk"}})
	_, err := p.Complete(context.Background(), &provider.ChatRequest{
		Model:          "gpt-4o",
		Messages:       []provider.Message{{Role: "user", Content: "json please"}},
		ResponseFormat: "json",
	})
	require.NoError(t, err)

	rf := gotBody["response_format"].(map[string]interface{})
	assert.Equal(t, "json_object", rf["type"])
}

func TestOpenAIErrorSurfacesAsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error": {"message": "bad key"}}`))
	}))
	defer server.Close()

	p := provider.NewOpenAI(provider.OpenAIConfig{BaseURL: server.URL, APIKeys: []string{"sk"}})
	_, err := p.Complete(context.Background(), &provider.ChatRequest{
		Model:    "gpt-4o",
		Messages: []provider.Message{{Role: "user", Content: "x"}},
	})
	var apiErr *provider.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 401, apiErr.StatusCode)
}
