package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestTranslateNonStreaming(t *testing.T) {
	anthropicBody := []byte(`{
		"id": "msg_1",
		"model": "claude-3-opus-20240229",
		"content": [{"type": "text", "text": "hello there"}],
		"usage": {"input_tokens": 12, "output_tokens": 4}
	}`)

	out, usage, err := TranslateNonStreaming(anthropicBody, "claude-3-opus-20240229")
	if err != nil {
		t.Fatalf("TranslateNonStreaming() error = %v", err)
	}
	if usage.PromptTokens != 12 || usage.CompletionTokens != 4 || usage.TotalTokens != 16 {
		t.Errorf("usage = %+v, want {12 4 16}", usage)
	}

	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal translated body: %v", err)
	}
	if decoded["object"] != "chat.completion" {
		t.Errorf("object = %v, want chat.completion", decoded["object"])
	}
	choices, ok := decoded["choices"].([]any)
	if !ok || len(choices) != 1 {
		t.Fatalf("choices = %v, want a single-element slice", decoded["choices"])
	}
	choice := choices[0].(map[string]any)
	message := choice["message"].(map[string]any)
	if message["content"] != "hello there" {
		t.Errorf("message content = %v, want %q", message["content"], "hello there")
	}
}

func TestTranslateNonStreaming_InvalidJSON(t *testing.T) {
	if _, _, err := TranslateNonStreaming([]byte("not json"), "m"); err == nil {
		t.Error("TranslateNonStreaming() on invalid JSON: want error, got nil")
	}
}

func TestStreamAnthropicAsOpenAI(t *testing.T) {
	sse := strings.Join([]string{
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Hel"}}`,
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"lo"}}`,
		`data: {"type":"message_delta","usage":{"output_tokens":7}}`,
		`data: {"type":"message_stop"}`,
		"",
	}, "\n\n")

	var frames [][]byte
	usage, err := StreamAnthropicAsOpenAI(context.Background(), bytes.NewReader([]byte(sse)), "claude-3-opus-20240229", func(frame []byte) error {
		frames = append(frames, frame)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamAnthropicAsOpenAI() error = %v", err)
	}
	if usage.CompletionTokens != 7 {
		t.Errorf("usage.CompletionTokens = %d, want 7", usage.CompletionTokens)
	}
	if len(frames) != 3 {
		t.Fatalf("emitted %d frames, want 3 (two text deltas + final stop)", len(frames))
	}
	if !bytes.Contains(frames[0], []byte("Hel")) {
		t.Errorf("frame[0] = %s, want to contain %q", frames[0], "Hel")
	}
	if !bytes.Contains(frames[2], []byte(`"finish_reason":"stop"`)) {
		t.Errorf("final frame = %s, want finish_reason stop", frames[2])
	}
}

func TestStreamAnthropicAsOpenAI_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sse := `data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"hi"}}` + "\n\n"
	_, err := StreamAnthropicAsOpenAI(ctx, bytes.NewReader([]byte(sse)), "m", func(frame []byte) error { return nil })
	if err == nil {
		t.Error("StreamAnthropicAsOpenAI() with cancelled context: want error, got nil")
	}
}
