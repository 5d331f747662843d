// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package thread

import (
	"time"

	"github.com/google/uuid"

	"github.com/loomchat/loom/lib/attachment"
	"github.com/loomchat/loom/lib/llm"
)

// NoParent is the sentinel parent ID of a root message.
const NoParent = "00000000-0000-0000-0000-000000000000"

// PartKind discriminates the [Part] union.
type PartKind string

const (
	PartText        PartKind = "text"
	PartImageRef    PartKind = "image_ref"
	PartDocumentRef PartKind = "document_ref"
	PartToolCall    PartKind = "tool_call"
	PartToolResult  PartKind = "tool_result"
	// PartError is a synthetic part appended when a run fails
	// mid-stream; it preserves the failure alongside whatever
	// content was buffered before it.
	PartError PartKind = "error"
)

// Part is one tagged content part of a canonical message.
type Part struct {
	Kind PartKind `json:"kind"`

	// Text carries the content for PartText and PartError.
	Text string `json:"text,omitempty"`

	// FileID links PartImageRef and PartDocumentRef parts to their
	// attached file descriptor.
	FileID string `json:"file_id,omitempty"`

	// DataURL is a legacy inline representation of an image
	// (data:<mime>;base64,<payload>). Newer messages use FileID.
	DataURL string `json:"data_url,omitempty"`

	// ToolCallID, ToolName, ToolInput describe a PartToolCall;
	// ToolCallID and ToolOutput describe a PartToolResult.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	ToolInput  string `json:"tool_input,omitempty"`
	ToolOutput string `json:"tool_output,omitempty"`

	// OCRText is text extracted from the referenced file during
	// assembly. Derived metadata: merged back onto the canonical
	// track by MergeEphemeralFields and counted by the token budget.
	OCRText string `json:"ocr_text,omitempty"`

	// ResolvedURL is where the referenced image was ultimately
	// served from, recorded during assembly. Derived metadata.
	ResolvedURL string `json:"resolved_url,omitempty"`
}

// Message is a node in the branching conversation tree. Once
// persisted, a message is never mutated in place: rehydration and
// provider block injection operate on a [WireMessage] copy.
type Message struct {
	// ID is the message's unique identifier.
	ID string `json:"id"`

	// ParentID links to the preceding message, or [NoParent] for a
	// branch root.
	ParentID string `json:"parent_id"`

	// ConversationID groups all branches of one conversation.
	ConversationID string `json:"conversation_id"`

	// Role is the sender: user, assistant, or system.
	Role llm.Role `json:"role"`

	// Text is the message's plain text content.
	Text string `json:"text,omitempty"`

	// Parts is the ordered list of content parts.
	Parts []Part `json:"parts,omitempty"`

	// Files are the attached file descriptors for this message.
	Files []attachment.File `json:"files,omitempty"`

	// TokenCount is the estimated or measured token count. Nil means
	// not yet counted.
	TokenCount *int `json:"token_count,omitempty"`

	// CreatedAt is the message creation time.
	CreatedAt time.Time `json:"created_at"`
}

// NewID returns a fresh message identifier.
func NewID() string {
	return uuid.NewString()
}

// IsRoot reports whether the message is a branch root.
func (message *Message) IsRoot() bool {
	return message.ParentID == "" || message.ParentID == NoParent
}

// SetTokenCount sets the per-message token count.
func (message *Message) SetTokenCount(count int) {
	message.TokenCount = &count
}
