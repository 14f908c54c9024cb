package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPGenerator calls a reply-generation service over JSON HTTP.
//
// Request:  POST url with a GenerateRequest body.
// Response: 200 with {"reply": "..."}; any other status is an error.
type HTTPGenerator struct {
	URL    string
	Client *http.Client
}

// NewHTTPGenerator constructs a generator client with its own pooled
// http.Client bounded by timeout.
func NewHTTPGenerator(url string, timeout time.Duration) *HTTPGenerator {
	return &HTTPGenerator{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

type generateResponse struct {
	Reply string `json:"reply"`
}

// Generate implements ReplyGenerator.
func (g *HTTPGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("generator: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("generator: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("generator: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Bounded read; error bodies are diagnostic only.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("generator: unexpected status %d: %s", resp.StatusCode, snippet)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("generator: decode response: %w", err)
	}
	if out.Reply == "" {
		return "", fmt.Errorf("generator: empty reply")
	}
	return out.Reply, nil
}
