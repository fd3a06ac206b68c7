// Package llm is the thin client over the chat-completion and embedding
// HTTP APIs the enricher calls, built the way the teacher's embedding
// and generation services call Ollama with a plain net/http.Client
// (sse-rag-service.generateEmbedding, go-enhanced-rag-service's
// EmbeddingService) rather than a heavyweight SDK.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a shared, thread-safe HTTP client for chat-completion and
// embedding calls (spec.md §5: "The LLM/embedding clients are shared,
// thread-safe, and rate-limited").
type Client struct {
	baseURL        string
	apiKey         string
	analysisModel  string
	embeddingModel string
	httpClient     *http.Client
}

// Option customizes Client construction.
type Option func(*Client)

// WithBaseURL overrides the default OpenAI-compatible endpoint, e.g. to
// point at a local Ollama-compatible gateway.
func WithBaseURL(url string) Option { return func(c *Client) { c.baseURL = url } }

// WithModels sets the chat-completion and embedding model names.
func WithModels(analysis, embedding string) Option {
	return func(c *Client) { c.analysisModel, c.embeddingModel = analysis, embedding }
}

// New builds a Client. apiKey may be empty for local gateways that don't
// require one.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:        "https://api.openai.com/v1",
		apiKey:         apiKey,
		analysisModel:  "gpt-4o-mini",
		embeddingModel: "text-embedding-3-small",
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Chat sends a single system+user exchange and returns the assistant's
// text content. Used by both Analyze and Contextualize in
// internal/enricher, which supply different system prompts and
// maxTokens caps.
func (c *Client) Chat(ctx context.Context, system, user string, maxTokens int) (string, error) {
	req := chatRequest{
		Model: c.analysisModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.1,
		MaxTokens:   maxTokens,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &StatusError{Status: resp.StatusCode}
	}
	if resp.StatusCode >= 500 {
		return "", &StatusError{Status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chat request returned %d: %s", resp.StatusCode, string(b))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("chat response had no choices")
	}
	return out.Choices[0].Message.Content, nil
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed calls the embedding endpoint for a single input string.
func (c *Client) Embed(ctx context.Context, input string) ([]float32, error) {
	req := embeddingRequest{Model: c.embeddingModel, Input: input}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &StatusError{Status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding request returned %d: %s", resp.StatusCode, string(b))
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("embedding response had no data")
	}
	return out.Data[0].Embedding, nil
}

// StatusError carries the HTTP status code of a retriable upstream
// failure, letting callers (internal/enricher) tell rate-limit from
// outage without parsing strings.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Status)
}
