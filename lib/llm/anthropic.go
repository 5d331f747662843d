// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Anthropic implements [Provider] for the Anthropic Messages API.
// It is the one provider family in Loom with native document and
// image content blocks; the payload assembler targets this wire
// format when ProviderCaps.SupportsNativeDocuments is set.
type Anthropic struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// anthropicVersion is the API version header sent on every request.
const anthropicVersion = "2023-06-01"

// NewAnthropic creates an Anthropic provider. baseURL is the API
// root (e.g., "https://api.anthropic.com"); the Messages endpoint
// path is appended. If httpClient is nil, http.DefaultClient is used.
func NewAnthropic(httpClient *http.Client, baseURL, apiKey string) *Anthropic {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Anthropic{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// Complete sends a non-streaming request and returns the full response.
func (provider *Anthropic) Complete(ctx context.Context, request Request) (*Response, error) {
	wireRequest := provider.buildRequest(request, false)

	httpResponse, err := doProviderRequest(ctx, provider.httpClient,
		provider.endpoint(), wireRequest, "llm/anthropic", false,
		provider.headers(request.ExtraHeaders))
	if err != nil {
		return nil, err
	}

	return decodeResponse[anthropicResponse](httpResponse, "llm/anthropic")
}

// Stream sends a streaming request and returns an [EventStream].
func (provider *Anthropic) Stream(ctx context.Context, request Request) (*EventStream, error) {
	wireRequest := provider.buildRequest(request, true)

	httpResponse, err := doProviderRequest(ctx, provider.httpClient,
		provider.endpoint(), wireRequest, "llm/anthropic", true,
		provider.headers(request.ExtraHeaders))
	if err != nil {
		return nil, err
	}

	return provider.newEventStream(httpResponse.Body), nil
}

func (provider *Anthropic) endpoint() string {
	return provider.baseURL + "/v1/messages"
}

// headers merges the authentication and version headers with any
// request-specific extras.
func (provider *Anthropic) headers(extra map[string]string) map[string]string {
	headers := map[string]string{
		"x-api-key":         provider.apiKey,
		"anthropic-version": anthropicVersion,
	}
	for name, value := range extra {
		headers[name] = value
	}
	return headers
}

// buildRequest converts our types to Anthropic wire format.
func (provider *Anthropic) buildRequest(request Request, stream bool) anthropicRequest {
	wireRequest := anthropicRequest{
		Model:     request.Model,
		MaxTokens: request.MaxTokens,
		Stream:    stream,
	}

	if request.System != "" {
		wireRequest.System = request.System
	}
	if request.Temperature != nil {
		wireRequest.Temperature = request.Temperature
	}
	if len(request.StopSequences) > 0 {
		wireRequest.StopSequences = request.StopSequences
	}

	for _, message := range request.Messages {
		wireRequest.Messages = append(wireRequest.Messages, toAnthropicMessage(message))
	}

	for _, tool := range request.Tools {
		wireRequest.Tools = append(wireRequest.Tools, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}

	return wireRequest
}

// newEventStream creates an EventStream that parses Anthropic SSE events.
func (provider *Anthropic) newEventStream(body io.ReadCloser) *EventStream {
	sseScanner := NewSSEScanner(body)

	// Partial state for accumulating content blocks during streaming.
	// content_block_start creates an entry; content_block_delta
	// appends to it; content_block_stop finalizes it.
	var partialBlocks []anthropicPartialBlock

	stream := NewEventStream(nil, body)

	stream.next = func() (StreamEvent, error) {
		for {
			if !sseScanner.Next() {
				if err := sseScanner.Err(); err != nil {
					return StreamEvent{}, fmt.Errorf("llm/anthropic: reading SSE: %w", err)
				}
				return StreamEvent{}, io.EOF
			}

			sseEvent := sseScanner.Event()

			switch sseEvent.Type {
			case "message_start":
				var envelope struct {
					Message struct {
						Model string         `json:"model"`
						Usage anthropicUsage `json:"usage"`
					} `json:"message"`
				}
				if err := json.Unmarshal([]byte(sseEvent.Data), &envelope); err != nil {
					return StreamEvent{}, fmt.Errorf("llm/anthropic: parsing message_start: %w", err)
				}
				stream.SetModel(envelope.Message.Model)
				stream.SetUsage(Usage{
					InputTokens:      envelope.Message.Usage.InputTokens,
					CacheReadTokens:  envelope.Message.Usage.CacheReadInputTokens,
					CacheWriteTokens: envelope.Message.Usage.CacheCreationInputTokens,
				})
				continue

			case "content_block_start":
				var envelope struct {
					Index        int                   `json:"index"`
					ContentBlock anthropicContentBlock `json:"content_block"`
				}
				if err := json.Unmarshal([]byte(sseEvent.Data), &envelope); err != nil {
					return StreamEvent{}, fmt.Errorf("llm/anthropic: parsing content_block_start: %w", err)
				}
				for len(partialBlocks) <= envelope.Index {
					partialBlocks = append(partialBlocks, anthropicPartialBlock{})
				}
				partialBlocks[envelope.Index] = anthropicPartialBlock{
					blockType: envelope.ContentBlock.Type,
					toolUseID: envelope.ContentBlock.ID,
					toolName:  envelope.ContentBlock.Name,
				}
				continue

			case "content_block_delta":
				var envelope struct {
					Index int `json:"index"`
					Delta struct {
						Type        string `json:"type"`
						Text        string `json:"text"`
						PartialJSON string `json:"partial_json"`
					} `json:"delta"`
				}
				if err := json.Unmarshal([]byte(sseEvent.Data), &envelope); err != nil {
					return StreamEvent{}, fmt.Errorf("llm/anthropic: parsing content_block_delta: %w", err)
				}

				if envelope.Index < len(partialBlocks) {
					block := &partialBlocks[envelope.Index]
					switch envelope.Delta.Type {
					case "text_delta":
						block.textContent.WriteString(envelope.Delta.Text)
						return StreamEvent{
							Type: EventTextDelta,
							Text: envelope.Delta.Text,
						}, nil
					case "input_json_delta":
						block.inputJSON.WriteString(envelope.Delta.PartialJSON)
						// Not surfaced as an event — only the complete
						// tool_use block matters, emitted on stop.
					}
				}
				continue

			case "content_block_stop":
				var envelope struct {
					Index int `json:"index"`
				}
				if err := json.Unmarshal([]byte(sseEvent.Data), &envelope); err != nil {
					return StreamEvent{}, fmt.Errorf("llm/anthropic: parsing content_block_stop: %w", err)
				}

				if envelope.Index < len(partialBlocks) {
					return StreamEvent{
						Type:         EventContentBlockDone,
						ContentBlock: partialBlocks[envelope.Index].toContentBlock(),
					}, nil
				}
				continue

			case "message_delta":
				var envelope struct {
					Delta struct {
						StopReason string `json:"stop_reason"`
					} `json:"delta"`
					Usage struct {
						OutputTokens int64 `json:"output_tokens"`
					} `json:"usage"`
				}
				if err := json.Unmarshal([]byte(sseEvent.Data), &envelope); err != nil {
					return StreamEvent{}, fmt.Errorf("llm/anthropic: parsing message_delta: %w", err)
				}
				stream.SetStopReason(mapAnthropicStopReason(envelope.Delta.StopReason))
				stream.AddOutputTokens(envelope.Usage.OutputTokens)
				continue

			case "message_stop":
				return StreamEvent{Type: EventDone}, nil

			case "ping":
				return StreamEvent{Type: EventPing}, nil

			case "error":
				var envelope struct {
					Error struct {
						Type    string `json:"type"`
						Message string `json:"message"`
					} `json:"error"`
				}
				if json.Unmarshal([]byte(sseEvent.Data), &envelope) == nil {
					return StreamEvent{
						Type:  EventError,
						Error: fmt.Errorf("llm/anthropic: stream error: %s: %s", envelope.Error.Type, envelope.Error.Message),
					}, nil
				}
				return StreamEvent{
					Type:  EventError,
					Error: fmt.Errorf("llm/anthropic: stream error: %s", sseEvent.Data),
				}, nil

			default:
				// Unknown event types are silently skipped; Anthropic
				// may add new ones.
				continue
			}
		}
	}

	return stream
}

// --- Anthropic wire types ---
//
// These map directly to the Anthropic Messages API JSON format. They
// are separate from the public types because the wire format uses
// snake_case and represents binary content as nested base64 source
// objects.

type anthropicRequest struct {
	Model         string             `json:"model"`
	MaxTokens     int                `json:"max_tokens"`
	System        string             `json:"system,omitempty"`
	Messages      []anthropicMessage `json:"messages"`
	Tools         []anthropicTool    `json:"tools,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
	Temperature   *float64           `json:"temperature,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type      string               `json:"type"`
	Text      string               `json:"text,omitempty"`
	ID        string               `json:"id,omitempty"`
	Name      string               `json:"name,omitempty"`
	Input     json.RawMessage      `json:"input,omitempty"`
	ToolUseID string               `json:"tool_use_id,omitempty"`
	Content   json.RawMessage      `json:"content,omitempty"`
	IsError   bool                 `json:"is_error,omitempty"`
	Source    *anthropicSource     `json:"source,omitempty"`
	Title     string               `json:"title,omitempty"`
	Citations *anthropicCitations  `json:"citations,omitempty"`
}

// anthropicSource carries base64-encoded binary content.
type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicCitations struct {
	Enabled      bool   `json:"enabled"`
	MaxCitations int    `json:"max_citations,omitempty"`
	Format       string `json:"format,omitempty"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Content    []anthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

type anthropicUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

// anthropicPartialBlock tracks the state of a content block being
// assembled from streaming events.
type anthropicPartialBlock struct {
	blockType   string
	textContent strings.Builder
	inputJSON   strings.Builder
	toolUseID   string
	toolName    string
}

func (block *anthropicPartialBlock) toContentBlock() ContentBlock {
	switch block.blockType {
	case "text":
		return TextBlock(block.textContent.String())
	case "tool_use":
		return ToolUseBlock(
			block.toolUseID,
			block.toolName,
			json.RawMessage(block.inputJSON.String()),
		)
	default:
		// Unknown block types are preserved as text with a type prefix.
		return TextBlock(fmt.Sprintf("[%s] %s", block.blockType, block.textContent.String()))
	}
}

// --- Wire type conversions ---

func toAnthropicMessage(message Message) anthropicMessage {
	wire := anthropicMessage{Role: string(message.Role)}
	for _, block := range message.Content {
		wire.Content = append(wire.Content, toAnthropicContentBlock(block))
	}
	return wire
}

// anthropicImageMediaTypes maps our image format tags to MIME types.
var anthropicImageMediaTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
}

// anthropicDocumentMediaTypes maps our document format tags to MIME
// types. Formats without an entry fall back to application/octet-stream.
var anthropicDocumentMediaTypes = map[string]string{
	"pdf":  "application/pdf",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"csv":  "text/csv",
}

func toAnthropicContentBlock(block ContentBlock) anthropicContentBlock {
	switch block.Type {
	case ContentText:
		return anthropicContentBlock{Type: "text", Text: block.Text}
	case ContentImage:
		if block.Image != nil {
			mediaType, ok := anthropicImageMediaTypes[block.Image.Format]
			if !ok {
				mediaType = "image/png"
			}
			return anthropicContentBlock{
				Type: "image",
				Source: &anthropicSource{
					Type:      "base64",
					MediaType: mediaType,
					Data:      base64.StdEncoding.EncodeToString(block.Image.Data),
				},
			}
		}
	case ContentDocument:
		if block.Document != nil {
			mediaType, ok := anthropicDocumentMediaTypes[block.Document.Format]
			if !ok {
				mediaType = "application/octet-stream"
			}
			wire := anthropicContentBlock{
				Type:  "document",
				Title: block.Document.Name,
				Source: &anthropicSource{
					Type:      "base64",
					MediaType: mediaType,
					Data:      base64.StdEncoding.EncodeToString(block.Document.Data),
				},
			}
			if citations := block.Document.Citations; citations != nil {
				wire.Citations = &anthropicCitations{
					Enabled:      citations.Enabled,
					MaxCitations: citations.MaxCitations,
					Format:       citations.Format,
				}
			}
			return wire
		}
	case ContentToolUse:
		if block.ToolUse != nil {
			return anthropicContentBlock{
				Type:  "tool_use",
				ID:    block.ToolUse.ID,
				Name:  block.ToolUse.Name,
				Input: block.ToolUse.Input,
			}
		}
	case ContentToolResult:
		if block.ToolResult != nil {
			// The wire format expects a JSON value; marshal the
			// string content to a JSON string.
			contentJSON, _ := json.Marshal(block.ToolResult.Content)
			return anthropicContentBlock{
				Type:      "tool_result",
				ToolUseID: block.ToolResult.ToolUseID,
				Content:   contentJSON,
				IsError:   block.ToolResult.IsError,
			}
		}
	}
	return anthropicContentBlock{Type: string(block.Type)}
}

func (wireResponse *anthropicResponse) toResponse() *Response {
	response := &Response{
		StopReason: mapAnthropicStopReason(wireResponse.StopReason),
		Model:      wireResponse.Model,
		Usage: Usage{
			InputTokens:      wireResponse.Usage.InputTokens,
			OutputTokens:     wireResponse.Usage.OutputTokens,
			CacheReadTokens:  wireResponse.Usage.CacheReadInputTokens,
			CacheWriteTokens: wireResponse.Usage.CacheCreationInputTokens,
		},
	}
	for _, wireBlock := range wireResponse.Content {
		response.Content = append(response.Content, fromAnthropicContentBlock(wireBlock))
	}
	return response
}

func fromAnthropicContentBlock(wire anthropicContentBlock) ContentBlock {
	switch wire.Type {
	case "text":
		return TextBlock(wire.Text)
	case "tool_use":
		return ToolUseBlock(wire.ID, wire.Name, wire.Input)
	default:
		return TextBlock(fmt.Sprintf("[%s] %s", wire.Type, wire.Text))
	}
}

func mapAnthropicStopReason(reason string) StopReason {
	switch reason {
	case "end_turn":
		return StopReasonEndTurn
	case "tool_use":
		return StopReasonToolUse
	case "max_tokens":
		return StopReasonMaxTokens
	case "stop_sequence":
		return StopReasonStopSequence
	default:
		return StopReason(reason)
	}
}
