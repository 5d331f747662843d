// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package budget

import (
	"github.com/loomchat/loom/lib/llm"
	"github.com/loomchat/loom/lib/thread"
)

// turnGroup identifies a contiguous slice of messages that trim as
// one unit. A group starts with a user message carrying text (a
// real prompt, not a tool-result continuation) and runs until the
// next such user message.
//
// Examples of a single turn group:
//   - user → assistant
//   - user → assistant(tool_call) → user(tool_result) → assistant
type turnGroup struct {
	startIndex int // inclusive
	endIndex   int // exclusive
}

// identifyTurnGroups partitions a message slice into turn groups.
// User-role messages whose parts are all tool results continue the
// preceding group rather than starting a new one. Returns nil for an
// empty slice.
func identifyTurnGroups(messages []thread.Message) []turnGroup {
	var groups []turnGroup
	currentStart := -1

	for i := range messages {
		if messages[i].Role == llm.RoleUser && messageHasPromptText(&messages[i]) {
			if currentStart >= 0 {
				groups = append(groups, turnGroup{startIndex: currentStart, endIndex: i})
			}
			currentStart = i
		}
	}
	if currentStart >= 0 {
		groups = append(groups, turnGroup{startIndex: currentStart, endIndex: len(messages)})
	}
	return groups
}

// messageHasPromptText reports whether a message carries prompt
// text, either directly or in a text part.
func messageHasPromptText(message *thread.Message) bool {
	if message.Text != "" {
		return true
	}
	for _, part := range message.Parts {
		if part.Kind == thread.PartText && part.Text != "" {
			return true
		}
	}
	return false
}

// messageCharCount returns the total character count of a message's
// content, including tool call payloads and any OCR text extracted
// from its attachments, plus a fixed ~20 character overhead for role
// markers and framing.
func messageCharCount(message *thread.Message) int {
	count := len(message.Text)
	for _, part := range message.Parts {
		count += len(part.Text)
		count += len(part.ToolName)
		count += len(part.ToolInput)
		count += len(part.ToolOutput)
		count += len(part.OCRText)
	}
	count += 20
	return count
}

// messagesCharCount returns the total character count across a
// message slice.
func messagesCharCount(messages []thread.Message) int {
	total := 0
	for i := range messages {
		total += messageCharCount(&messages[i])
	}
	return total
}
