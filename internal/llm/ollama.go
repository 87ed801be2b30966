package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaClient implements Client against a local Ollama server's
// /api/generate endpoint.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaClient creates an Ollama-backed client. The timeout bounds each
// generation call in addition to any caller context deadline.
func NewOllamaClient(baseURL, model string, timeout time.Duration) (*OllamaClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("llm: ollama base url is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("llm: ollama model is required")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response   string `json:"response"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason,omitempty"`
}

// Complete sends a non-streaming generate request to Ollama.
func (c *OllamaClient) Complete(ctx context.Context, req Request) (Response, error) {
	opts := map[string]any{}
	if req.Temperature >= 0 {
		opts["temperature"] = req.Temperature
	}
	if req.TopP > 0 {
		opts["top_p"] = req.TopP
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   c.model,
		Prompt:  req.Prompt,
		System:  req.System,
		Stream:  false,
		Options: opts,
	})
	if err != nil {
		return Response{}, fmt.Errorf("llm: marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("llm: build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("llm: ollama request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return Response{}, fmt.Errorf("llm: ollama returned status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("llm: decode ollama response: %w", err)
	}

	text := strings.TrimSpace(out.Response)
	if text == "" {
		return Response{}, errors.New("llm: ollama returned empty response")
	}
	return Response{Text: text, StopReason: out.DoneReason}, nil
}
