package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// Ollama adapts the normalized request to a local daemon's /api/chat
// endpoint. No credentials are involved. The daemon answers with a
// newline-delimited stream of JSON chunks even for one-shot calls, so
// the adapter reads line by line and accumulates until the final chunk
// reports done.
type Ollama struct {
	baseURL    string
	httpClient *http.Client
	timeouts   Timeouts
	log        *logrus.Entry
}

// OllamaConfig configures the adapter. Zero fields take defaults.
type OllamaConfig struct {
	BaseURL  string
	Timeouts Timeouts
}

// NewOllama creates the adapter.
func NewOllama(cfg OllamaConfig) *Ollama {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &Ollama{
		baseURL:    baseURL,
		httpClient: newHTTPClient(),
		timeouts:   cfg.Timeouts,
		log:        logrus.WithField("provider", "ollama"),
	}
}

func (o *Ollama) Name() string { return "ollama" }

type ollamaRequest struct {
	Model    string                 `json:"model"`
	Messages []ollamaMsg            `json:"messages"`
	Options  map[string]interface{} `json:"options,omitempty"`
	Format   string                 `json:"format,omitempty"`
	Stream   bool                   `json:"stream"`
}

type ollamaMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChunk struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

// Complete implements Provider.
func (o *Ollama) Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if len(req.Tools) > 0 {
		return nil, &APIError{
			Provider:   "ollama",
			StatusCode: http.StatusBadRequest,
			Message:    "tool declarations are not supported by this backend",
		}
	}

	body := ollamaRequest{Model: req.Model, Stream: true}
	for _, msg := range req.Messages {
		body.Messages = append(body.Messages, ollamaMsg{Role: msg.Role, Content: msg.Content})
	}
	options := map[string]interface{}{}
	if req.Temperature != nil {
		options["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		options["top_p"] = *req.TopP
	}
	if req.TopK != nil {
		options["top_k"] = *req.TopK
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if len(options) > 0 {
		body.Options = options
	}
	if req.ResponseFormat == "json" {
		body.Format = "json"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeouts.ForLocal())
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(httpResp.Body, 32*1024))
		return nil, &APIError{
			Provider:   "ollama",
			StatusCode: httpResp.StatusCode,
			Message:    string(raw),
		}
	}

	resp := &ChatResponse{Model: req.Model}
	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			o.log.WithError(err).Debug("Skipping malformed stream chunk")
			continue
		}
		if chunk.Error != "" {
			return nil, fmt.Errorf("ollama: %s", chunk.Error)
		}
		resp.Text += chunk.Message.Content
		if chunk.Done {
			resp.Usage = Usage{
				InputTokens:  chunk.PromptEvalCount,
				OutputTokens: chunk.EvalCount,
			}
			switch chunk.DoneReason {
			case "stop", "":
				resp.FinishReason = FinishEnd
			case "length":
				resp.FinishReason = FinishLength
			default:
				resp.FinishReason = FinishUnknown
			}
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return resp, nil
}
