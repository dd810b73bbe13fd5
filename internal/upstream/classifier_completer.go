package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ClassifierCompleter implements classify.Completer. It dispatches on the
// backend's WireFormat exactly the way forward.go's Forward does: OpenAI
// chat backends go through go-openai's typed client (safe here since the
// LLM Classifier's call has a fixed, narrow schema), Anthropic Messages
// backends are framed and parsed through the same translator the main
// forwarding path uses (anthropic.go), so the classifier's one-shot call
// never gets sent to the wrong path with the wrong auth scheme.
type ClassifierCompleter struct {
	backend Backend
	model   string

	openaiClient *openai.Client
	httpClient   *Client
	apiKey       string
}

// NewClassifierCompleter builds a completer against backend/model
// (expected to be the catalog's SIMPLE-tier primary, the cheapest model
// available).
func NewClassifierCompleter(client *Client, backend Backend, apiKey, model string) *ClassifierCompleter {
	c := &ClassifierCompleter{backend: backend, model: model, httpClient: client, apiKey: apiKey}
	if backend.WireFormat != WireAnthropicMessages {
		cfg := openai.DefaultConfig(apiKey)
		if backend.BaseURL != "" {
			cfg.BaseURL = strings.TrimSuffix(backend.BaseURL, "/")
		}
		c.openaiClient = openai.NewClientWithConfig(cfg)
	}
	return c
}

// Complete issues a single, non-streaming chat completion and returns its
// text content.
func (c *ClassifierCompleter) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	if c.backend.WireFormat == WireAnthropicMessages {
		return c.completeAnthropic(ctx, prompt, maxTokens, temperature)
	}
	return c.completeOpenAI(ctx, prompt, maxTokens, temperature)
}

func (c *ClassifierCompleter) completeOpenAI(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	resp, err := c.openaiClient.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: float32(temperature),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("upstream: classifier completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *ClassifierCompleter) completeAnthropic(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model":      c.model,
		"messages":   []map[string]string{{"role": "user", "content": prompt}},
		"max_tokens": maxTokens,
	})
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Forward(ctx, c.backend, c.apiKey, body, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.New("upstream: classifier completion returned status " + http.StatusText(resp.StatusCode))
	}

	translated, _, err := TranslateNonStreaming(respBody, c.model)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(translated, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("upstream: classifier completion returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
