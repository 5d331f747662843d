// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package thread

import (
	"strings"

	"github.com/loomchat/loom/lib/codec"
)

// SaveOptions is what a completed turn hands to the persistence
// layer: the canonical messages of the turn, free of any embedded
// binary payload. Wire messages never appear here.
type SaveOptions struct {
	ConversationID    string    `cbor:"conversation_id"`
	ResponseMessageID string    `cbor:"response_message_id"`
	Messages          []Message `cbor:"messages"`
}

// SaveOptionsFor computes the persistence payload for a turn. Every
// message is deep-copied and stripped of embedded binary content:
// inline data-URL payloads are removed (the lightweight file
// reference and resolved URL survive). The strip applies regardless
// of which track a message came from, so a wire message accidentally
// routed here still cannot leak bytes to storage.
func SaveOptionsFor(conversationID, responseMessageID string, messages []Message) SaveOptions {
	stripped := make([]Message, len(messages))
	for i := range messages {
		stripped[i] = stripBinary(deepCopyMessage(messages[i]))
	}
	return SaveOptions{
		ConversationID:    conversationID,
		ResponseMessageID: responseMessageID,
		Messages:          stripped,
	}
}

// Marshal encodes the save options with the canonical CBOR
// configuration. Deterministic: the same turn always produces
// identical bytes.
func (options SaveOptions) Marshal() ([]byte, error) {
	return codec.Marshal(options)
}

// stripBinary removes embedded binary payloads from a message copy.
func stripBinary(message Message) Message {
	for i := range message.Parts {
		if isDataURL(message.Parts[i].DataURL) {
			message.Parts[i].DataURL = ""
		}
	}
	return message
}

func isDataURL(value string) bool {
	return strings.HasPrefix(value, "data:")
}
