// Package ollama is a client for a local Ollama server's generate endpoint.
package ollama

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

	"github.com/tidwall/gjson"
)

// DefaultURL is Ollama's default listen address.
const DefaultURL = "http://localhost:11434"

const (
	maxResponseBytes = 1 << 20
	errorSnippetLen  = 200
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("ollama returned an empty response")

// Client calls POST /api/generate.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a Client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// Generate runs prompt through model and returns the full completion.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("encode generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read generate response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("ollama generate: status %d: %s", resp.StatusCode, snippet(data))
	}

	if msg := gjson.GetBytes(data, "error").String(); msg != "" {
		return "", fmt.Errorf("ollama generate: %s", msg)
	}
	text := strings.TrimSpace(gjson.GetBytes(data, "response").String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > errorSnippetLen {
		s = s[:errorSnippetLen] + "..."
	}
	return s
}
