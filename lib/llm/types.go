// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import "encoding/json"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ContentType discriminates the ContentBlock union.
type ContentType string

const (
	ContentText       ContentType = "text"
	ContentImage      ContentType = "image"
	ContentDocument   ContentType = "document"
	ContentToolUse    ContentType = "tool_use"
	ContentToolResult ContentType = "tool_result"
)

// ContentBlock is a tagged union of provider payload content. Exactly
// one of the pointer fields is non-nil, selected by Type; ContentText
// uses the inline Text field.
type ContentBlock struct {
	Type       ContentType
	Text       string
	Image      *Image
	Document   *Document
	ToolUse    *ToolUse
	ToolResult *ToolResult
}

// Image is a binary image payload with its provider format tag
// ("jpeg" or "png").
type Image struct {
	Format string
	Data   []byte
}

// Document is a binary document payload. Name must satisfy the target
// provider's charset and length constraints (see lib/payload).
// Citations is nil unless the provider supports citations, the format
// is "pdf", and the file allows them.
type Document struct {
	Name      string
	Format    string
	Data      []byte
	Citations *CitationsConfig
}

// CitationsConfig controls provider-side citation extraction for a
// document block.
type CitationsConfig struct {
	Enabled bool
	// MaxCitations is clamped to [1, 50] at assembly time.
	MaxCitations int
	// Format is "markdown" or "plain".
	Format string
}

// ToolUse is a tool invocation requested by the model.
type ToolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult is the outcome of a tool invocation, sent back to the
// model in a user-role message.
type ToolResult struct {
	ToolUseID string
	Content   string
	IsError   bool
}

// Message is one turn of wire-format conversation content.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentText, Text: text}
}

// ImageBlock builds an image content block.
func ImageBlock(format string, data []byte) ContentBlock {
	return ContentBlock{Type: ContentImage, Image: &Image{Format: format, Data: data}}
}

// DocumentBlock builds a document content block without citations.
func DocumentBlock(name, format string, data []byte) ContentBlock {
	return ContentBlock{Type: ContentDocument, Document: &Document{
		Name:   name,
		Format: format,
		Data:   data,
	}}
}

// ToolUseBlock builds a tool use content block.
func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: ContentToolUse, ToolUse: &ToolUse{
		ID:    id,
		Name:  name,
		Input: input,
	}}
}

// UserMessage builds a user message containing a single text block.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// AssistantMessage builds an assistant message containing a single
// text block.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentBlock{TextBlock(text)}}
}

// ToolResultMessage builds a user-role message carrying tool results.
func ToolResultMessage(results ...ToolResult) Message {
	message := Message{Role: RoleUser}
	for i := range results {
		result := results[i]
		message.Content = append(message.Content, ContentBlock{
			Type:       ContentToolResult,
			ToolResult: &result,
		})
	}
	return message
}

// ToolDefinition describes a tool offered to the model.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Request is a provider-independent LLM request.
type Request struct {
	Model         string
	System        string
	Messages      []Message
	Tools         []ToolDefinition
	MaxTokens     int
	Temperature   *float64
	StopSequences []string

	// ExtraHeaders are provider-specific HTTP headers added to the
	// request (e.g., Anthropic beta flags).
	ExtraHeaders map[string]string
}

// StopReason is the provider's reason for ending a response.
type StopReason string

const (
	StopReasonEndTurn      StopReason = "end_turn"
	StopReasonToolUse      StopReason = "tool_use"
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonStopSequence StopReason = "stop_sequence"
)

// Usage is the token accounting for one provider call.
type Usage struct {
	InputTokens      int64
	OutputTokens     int64
	CacheReadTokens  int64
	CacheWriteTokens int64
}

// Response is a complete provider response.
type Response struct {
	Content    []ContentBlock
	StopReason StopReason
	Model      string
	Usage      Usage
}

// TextContent concatenates all text blocks in the response.
func (response *Response) TextContent() string {
	var text string
	for _, block := range response.Content {
		if block.Type == ContentText {
			text += block.Text
		}
	}
	return text
}

// ToolUses returns all tool use blocks in the response.
func (response *Response) ToolUses() []ToolUse {
	var uses []ToolUse
	for _, block := range response.Content {
		if block.Type == ContentToolUse && block.ToolUse != nil {
			uses = append(uses, *block.ToolUse)
		}
	}
	return uses
}

// StreamEventType discriminates streaming events.
type StreamEventType string

const (
	EventTextDelta        StreamEventType = "text_delta"
	EventContentBlockDone StreamEventType = "content_block_done"
	EventDone             StreamEventType = "done"
	EventPing             StreamEventType = "ping"
	EventError            StreamEventType = "error"
)

// StreamEvent is one event yielded by an [EventStream].
type StreamEvent struct {
	Type         StreamEventType
	Text         string
	ContentBlock ContentBlock
	Error        error
}
