// Package upstream forwards a classified request to its chosen model,
// preserving unknown JSON fields, and wraps every backend in a circuit
// breaker so a consistently failing one is skipped during fallback-chain
// traversal.
package upstream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WireFormat selects how a Backend expects its request framed.
type WireFormat string

const (
	WireOpenAIChat        WireFormat = "openai-chat"
	WireAnthropicMessages WireFormat = "anthropic-messages"
)

// Backend names one upstream a model id resolves to: the provider id
// (used to resolve a credential via credential.Resolver), where to send
// the request, and how to frame the wire request.
type Backend struct {
	ID         string
	BaseURL    string
	WireFormat WireFormat
}

// Usage is the token accounting an upstream reports back, used to
// reconcile the Selector's cost estimate against actual spend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client forwards chat-completion requests to upstream backends.
type Client struct {
	httpClient *http.Client
}

// NewClient builds a Client with no per-request timeout; the proxy
// pipeline enforces timeouts via the inbound request's context
// (spec.md §5: "main upstream call has no core-enforced timeout").
func NewClient() *Client {
	return &Client{httpClient: &http.Client{}}
}

// ClientWithTimeout builds a Client whose underlying http.Client enforces
// timeout as a backstop.
func ClientWithTimeout(timeout time.Duration) *Client {
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// RewriteModel rewrites only the top-level "model" field of an
// OpenAI-shaped request body, leaving every other field's raw bytes
// untouched so unknown fields (tools, tool_choice, provider extensions)
// survive the proxy unmodified.
func RewriteModel(body []byte, modelID string) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("upstream: decode request body: %w", err)
	}
	rewritten, err := json.Marshal(modelID)
	if err != nil {
		return nil, err
	}
	fields["model"] = rewritten
	return json.Marshal(fields)
}
