// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// anthropicTestServer creates a test HTTP server and returns an
// Anthropic provider connected to it.
func anthropicTestServer(t *testing.T, handler http.Handler) *Anthropic {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewAnthropic(server.Client(), server.URL, "test-key")
}

func TestAnthropicComplete(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/messages", func(writer http.ResponseWriter, request *http.Request) {
		if got := request.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q, want test-key", got)
		}
		if got := request.Header.Get("anthropic-version"); got != anthropicVersion {
			t.Errorf("anthropic-version = %q, want %q", got, anthropicVersion)
		}

		var wireRequest struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			System    string `json:"system"`
			Messages  []struct {
				Role    string `json:"role"`
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
			Stream bool `json:"stream"`
		}
		if err := json.NewDecoder(request.Body).Decode(&wireRequest); err != nil {
			writer.WriteHeader(http.StatusBadRequest)
			return
		}

		if wireRequest.Model != "claude-sonnet-4-5" {
			t.Errorf("model = %q, want claude-sonnet-4-5", wireRequest.Model)
		}
		if wireRequest.System != "You are helpful." {
			t.Errorf("system = %q, want 'You are helpful.'", wireRequest.System)
		}
		if wireRequest.Stream {
			t.Error("stream should be false for Complete")
		}
		if length := len(wireRequest.Messages); length != 1 {
			t.Errorf("messages length = %d, want 1", length)
		}

		writer.Header().Set("Content-Type", "application/json")
		json.NewEncoder(writer).Encode(map[string]any{
			"id":   "msg_test",
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{
				{"type": "text", "text": "Hello! How can I help?"},
			},
			"model":       "claude-sonnet-4-5",
			"stop_reason": "end_turn",
			"usage": map[string]any{
				"input_tokens":                100,
				"output_tokens":               15,
				"cache_read_input_tokens":     50,
				"cache_creation_input_tokens": 0,
			},
		})
	})

	provider := anthropicTestServer(t, mux)

	response, err := provider.Complete(context.Background(), Request{
		Model:     "claude-sonnet-4-5",
		System:    "You are helpful.",
		MaxTokens: 1024,
		Messages:  []Message{UserMessage("Hello")},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if got := response.TextContent(); got != "Hello! How can I help?" {
		t.Errorf("TextContent = %q", got)
	}
	if response.StopReason != StopReasonEndTurn {
		t.Errorf("StopReason = %q, want end_turn", response.StopReason)
	}
	if response.Usage.InputTokens != 100 || response.Usage.OutputTokens != 15 {
		t.Errorf("Usage = %+v, want 100/15", response.Usage)
	}
	if response.Usage.CacheReadTokens != 50 {
		t.Errorf("CacheReadTokens = %d, want 50", response.Usage.CacheReadTokens)
	}
}

func TestAnthropicDocumentBlockWire(t *testing.T) {
	t.Parallel()

	block := ContentBlock{
		Type: ContentDocument,
		Document: &Document{
			Name:   "Q3 Report (final)",
			Format: "pdf",
			Data:   []byte("%PDF-fake"),
			Citations: &CitationsConfig{
				Enabled:      true,
				MaxCitations: 20,
				Format:       "markdown",
			},
		},
	}

	wire := toAnthropicContentBlock(block)
	if wire.Type != "document" {
		t.Fatalf("wire.Type = %q, want document", wire.Type)
	}
	if wire.Title != "Q3 Report (final)" {
		t.Errorf("wire.Title = %q", wire.Title)
	}
	if wire.Source == nil {
		t.Fatal("wire.Source is nil")
	}
	if wire.Source.Type != "base64" {
		t.Errorf("source.Type = %q, want base64", wire.Source.Type)
	}
	if wire.Source.MediaType != "application/pdf" {
		t.Errorf("source.MediaType = %q, want application/pdf", wire.Source.MediaType)
	}
	if wire.Citations == nil || !wire.Citations.Enabled {
		t.Fatal("citations not carried to wire format")
	}
	if wire.Citations.MaxCitations != 20 {
		t.Errorf("MaxCitations = %d, want 20", wire.Citations.MaxCitations)
	}
}

func TestAnthropicDocumentMediaTypeFallback(t *testing.T) {
	t.Parallel()

	wire := toAnthropicContentBlock(DocumentBlock("notes", "odt", []byte("data")))
	if wire.Source.MediaType != "application/octet-stream" {
		t.Errorf("MediaType = %q, want application/octet-stream", wire.Source.MediaType)
	}
}

func TestAnthropicImageBlockWire(t *testing.T) {
	t.Parallel()

	wire := toAnthropicContentBlock(ImageBlock("jpeg", []byte{0xFF, 0xD8}))
	if wire.Type != "image" {
		t.Fatalf("wire.Type = %q, want image", wire.Type)
	}
	if wire.Source.MediaType != "image/jpeg" {
		t.Errorf("MediaType = %q, want image/jpeg", wire.Source.MediaType)
	}
	if wire.Source.Data == "" {
		t.Error("expected base64 data")
	}
}

func TestAnthropicStream(t *testing.T) {
	t.Parallel()

	events := []string{
		`event: message_start
data: {"type":"message_start","message":{"model":"claude-sonnet-4-5","usage":{"input_tokens":25,"cache_read_input_tokens":0,"cache_creation_input_tokens":0}}}

`,
		`event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text"}}

`,
		`event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}

`,
		`event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}

`,
		`event: content_block_stop
data: {"type":"content_block_stop","index":0}

`,
		`event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":8}}

`,
		`event: message_stop
data: {"type":"message_stop"}

`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/messages", func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "text/event-stream")
		for _, event := range events {
			fmt.Fprint(writer, event)
		}
	})

	provider := anthropicTestServer(t, mux)

	stream, err := provider.Stream(context.Background(), Request{
		Model:     "claude-sonnet-4-5",
		MaxTokens: 256,
		Messages:  []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	var deltas string
	for {
		event, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if event.Type == EventTextDelta {
			deltas += event.Text
		}
	}

	if deltas != "Hello" {
		t.Errorf("accumulated deltas = %q, want Hello", deltas)
	}

	response := stream.Response()
	if response.TextContent() != "Hello" {
		t.Errorf("response text = %q, want Hello", response.TextContent())
	}
	if response.StopReason != StopReasonEndTurn {
		t.Errorf("StopReason = %q, want end_turn", response.StopReason)
	}
	if response.Usage.InputTokens != 25 || response.Usage.OutputTokens != 8 {
		t.Errorf("Usage = %+v, want 25/8", response.Usage)
	}
}

func TestAnthropicErrorResponse(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/messages", func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(writer, `{"error":{"type":"invalid_request_error","message":"The 'citations' field is an unsupported content block type attribute: citation config not available on this model"}}`)
	})

	provider := anthropicTestServer(t, mux)

	_, err := provider.Complete(context.Background(), Request{
		Model:     "claude-sonnet-4-5",
		MaxTokens: 256,
		Messages:  []Message{UserMessage("Hi")},
	})
	if err == nil {
		t.Fatal("expected error")
	}

	var providerError *ProviderError
	if !errors.As(err, &providerError) {
		t.Fatalf("error type = %T, want *ProviderError", err)
	}
	if providerError.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", providerError.StatusCode)
	}
	if !providerError.IsUnsupportedCitations() {
		t.Error("expected IsUnsupportedCitations to match")
	}
}
