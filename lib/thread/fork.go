// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package thread

import (
	"github.com/loomchat/loom/lib/attachment"
	"github.com/loomchat/loom/lib/llm"
)

// WireMessage is a disposable per-call copy of a [Message], decorated
// with provider content blocks for the outbound request. Wire
// messages are never persisted and never written back to the
// canonical track.
type WireMessage struct {
	Message

	// Blocks is the provider payload content assembled for this
	// message. Nil until the payload assembler runs.
	Blocks []llm.ContentBlock
}

// ForkWireCopy produces a structurally independent deep copy of the
// canonical messages. Mutations of the returned slice — attaching
// content blocks, rewriting parts, deleting fields — are never
// observable on canonical.
func ForkWireCopy(canonical []Message) []WireMessage {
	wire := make([]WireMessage, len(canonical))
	for i := range canonical {
		wire[i] = WireMessage{Message: deepCopyMessage(canonical[i])}
	}
	return wire
}

func deepCopyMessage(message Message) Message {
	copied := message

	if message.Parts != nil {
		copied.Parts = make([]Part, len(message.Parts))
		copy(copied.Parts, message.Parts)
	}

	if message.Files != nil {
		copied.Files = make([]attachment.File, len(message.Files))
		copy(copied.Files, message.Files)
	}

	if message.TokenCount != nil {
		count := *message.TokenCount
		copied.TokenCount = &count
	}

	return copied
}

// MergeEphemeralFields copies lightweight derived metadata recorded
// on the wire track during assembly back onto the canonical track:
// OCR text extracted from documents and resolved image URLs. Binary
// content blocks are never copied back; neither are any other wire
// mutations.
//
// Wire messages are matched to canonical messages by ID. Parts are
// matched positionally over the canonical part count — parts appended
// to the wire copy during assembly have no canonical counterpart and
// are ignored.
func MergeEphemeralFields(canonical []Message, wire []WireMessage) {
	wireByID := make(map[string]*WireMessage, len(wire))
	for i := range wire {
		wireByID[wire[i].ID] = &wire[i]
	}

	for i := range canonical {
		source, found := wireByID[canonical[i].ID]
		if !found {
			continue
		}

		for j := range canonical[i].Parts {
			if j >= len(source.Parts) {
				break
			}
			if ocr := source.Parts[j].OCRText; ocr != "" {
				canonical[i].Parts[j].OCRText = ocr
			}
			if url := source.Parts[j].ResolvedURL; url != "" {
				canonical[i].Parts[j].ResolvedURL = url
			}
		}
	}
}
