package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Response is the result of forwarding a request to a backend: the
// upstream's status code, a readable body (closed by the caller), and
// whether the body is an SSE stream the caller must copy chunk-by-chunk
// rather than read to completion.
type Response struct {
	StatusCode int
	Body       io.ReadCloser
	Streaming  bool
}

// Forward sends body (already model-rewritten, OpenAI-shaped) to backend.
// For WireOpenAIChat it is passed through close to byte-for-byte; for
// WireAnthropicMessages it is translated to the Anthropic Messages shape
// and the response is translated back by the caller via
// TranslateNonStreaming / StreamAnthropicAsOpenAI.
func (c *Client) Forward(ctx context.Context, backend Backend, apiKey string, body []byte, streaming bool) (*Response, error) {
	switch backend.WireFormat {
	case WireAnthropicMessages:
		return c.forwardAnthropic(ctx, backend, apiKey, body, streaming)
	default:
		return c.forwardOpenAI(ctx, backend, apiKey, body, streaming)
	}
}

func (c *Client) forwardOpenAI(ctx context.Context, backend Backend, apiKey string, body []byte, streaming bool) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, backend.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Body: resp.Body, Streaming: streaming}, nil
}

// ParseOpenAIUsage extracts the usage block from a non-streaming
// OpenAI-shaped chat-completion response body, for cost reconciliation.
func ParseOpenAIUsage(body []byte) Usage {
	var parsed struct {
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Usage{}
	}
	return Usage{
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		TotalTokens:      parsed.Usage.TotalTokens,
	}
}
