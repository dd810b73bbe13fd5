package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const anthropicVersion = "2023-06-01"

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	Stream    bool               `json:"stream,omitempty"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	ID      string                  `json:"id"`
	Model   string                  `json:"model"`
	Content []anthropicContentBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// openAIChatRequest is the narrow subset of the OpenAI wire shape this
// translation layer needs to read; everything else the proxy preserves
// untouched for the openai-chat wire format, but a genuine wire
// translation has no "preserve unknown fields" escape hatch — Anthropic's
// API has no field for them.
type openAIChatRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	MaxTokens int  `json:"max_tokens"`
	Stream    bool `json:"stream"`
}

func (c *Client) forwardAnthropic(ctx context.Context, backend Backend, apiKey string, openAIBody []byte, streaming bool) (*Response, error) {
	var oa openAIChatRequest
	if err := json.Unmarshal(openAIBody, &oa); err != nil {
		return nil, fmt.Errorf("upstream: decode openai request for translation: %w", err)
	}

	var modelID struct {
		Model string `json:"model"`
	}
	_ = json.Unmarshal(openAIBody, &modelID)

	var systemMsg string
	var messages []anthropicMessage
	for _, m := range oa.Messages {
		if m.Role == "system" {
			systemMsg = m.Content
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "assistant"
		}
		messages = append(messages, anthropicMessage{Role: role, Content: m.Content})
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("upstream: anthropic-messages translation requires at least one user/assistant message")
	}

	maxTokens := oa.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	areq := anthropicRequest{
		Model:     modelID.Model,
		MaxTokens: maxTokens,
		Messages:  messages,
		System:    systemMsg,
		Stream:    streaming,
	}
	body, err := json.Marshal(areq)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, backend.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Body: resp.Body, Streaming: streaming}, nil
}

// TranslateNonStreaming converts a full Anthropic Messages response body
// into an OpenAI-shaped chat-completion response, so proxy clients never
// see which wire format the chosen backend actually speaks.
func TranslateNonStreaming(anthropicBody []byte, modelID string) ([]byte, Usage, error) {
	var aresp anthropicResponse
	if err := json.Unmarshal(anthropicBody, &aresp); err != nil {
		return nil, Usage{}, fmt.Errorf("upstream: decode anthropic response: %w", err)
	}

	var text string
	for _, block := range aresp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	usage := Usage{
		PromptTokens:     aresp.Usage.InputTokens,
		CompletionTokens: aresp.Usage.OutputTokens,
		TotalTokens:      aresp.Usage.InputTokens + aresp.Usage.OutputTokens,
	}

	out := openAIChatCompletion(modelID, text, usage)
	encoded, err := json.Marshal(out)
	return encoded, usage, err
}

func openAIChatCompletion(modelID, content string, usage Usage) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-" + modelID,
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   modelID,
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     usage.PromptTokens,
			"completion_tokens": usage.CompletionTokens,
			"total_tokens":      usage.TotalTokens,
		},
	}
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage *struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// StreamAnthropicAsOpenAI reads an Anthropic Messages SSE body and invokes
// emit once per translated OpenAI-style "chat.completion.chunk" SSE frame,
// so a client speaking OpenAI's streaming protocol never learns the
// backend is actually Anthropic.
func StreamAnthropicAsOpenAI(ctx context.Context, body io.Reader, modelID string, emit func(sseFrame []byte) error) (Usage, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var usage Usage
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return usage, ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		data := bytes.TrimPrefix(line, []byte("data: "))

		var event anthropicStreamEvent
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				frame, err := encodeOpenAIChunk(modelID, event.Delta.Text, false)
				if err != nil {
					return usage, err
				}
				if err := emit(frame); err != nil {
					return usage, err
				}
			}
		case "message_delta":
			if event.Usage != nil {
				usage.CompletionTokens = event.Usage.OutputTokens
			}
		case "message_stop":
			frame, err := encodeOpenAIChunk(modelID, "", true)
			if err != nil {
				return usage, err
			}
			return usage, emit(frame)
		}
	}
	if err := scanner.Err(); err != nil {
		return usage, fmt.Errorf("upstream: read anthropic stream: %w", err)
	}
	return usage, nil
}

func encodeOpenAIChunk(modelID, delta string, done bool) ([]byte, error) {
	finishReason := any(nil)
	if done {
		finishReason = "stop"
	}
	chunk := map[string]any{
		"id":      "chatcmpl-" + modelID,
		"object":  "chat.completion.chunk",
		"created": time.Now().Unix(),
		"model":   modelID,
		"choices": []map[string]any{
			{
				"index":         0,
				"delta":         map[string]any{"content": delta},
				"finish_reason": finishReason,
			},
		},
	}
	payload, err := json.Marshal(chunk)
	if err != nil {
		return nil, err
	}
	return append([]byte("data: "), append(payload, '\n', '\n')...), nil
}
