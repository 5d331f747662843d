// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package payload

import (
	"fmt"
	"strings"

	"github.com/loomchat/loom/lib/attachment"
)

// MissingRequiredReference is returned when a task that requires at
// least one attachment was given a name that resolved to zero files.
// The message enumerates what was requested, what the immediate
// context held, and what a conversation-wide search found — enough
// for the user or an operator to correct the filename, without
// exposing storage paths.
type MissingRequiredReference struct {
	// Requested are the names the task asked for.
	Requested []string

	// FoundInContext are the filenames present on the current message.
	FoundInContext []string

	// FoundInConversation are the filenames found searching the
	// whole conversation.
	FoundInConversation []string

	// ConversationID and UserID identify the search scope.
	ConversationID string
	UserID         string
}

func (err *MissingRequiredReference) Error() string {
	return fmt.Sprintf(
		"payload: no attached file matches %s; current message has [%s], conversation %s (user %s) has [%s]",
		strings.Join(err.Requested, ", "),
		strings.Join(err.FoundInContext, ", "),
		err.ConversationID,
		err.UserID,
		strings.Join(err.FoundInConversation, ", "))
}

// ResolveRequiredReference finds the files whose display names match
// any of the requested names, searching the current message's files
// first and the rest of the conversation second. Matching is
// case-insensitive and ignores extensions on both sides. Fails with
// [MissingRequiredReference] when nothing matches.
func ResolveRequiredReference(requested []string, contextFiles, conversationFiles []attachment.File, conversationID, userID string) ([]attachment.File, error) {
	var matched []attachment.File
	seen := make(map[string]bool)

	match := func(files []attachment.File) {
		for _, file := range files {
			if seen[file.ID] {
				continue
			}
			for _, name := range requested {
				if nameMatches(file.Filename, name) {
					matched = append(matched, file)
					seen[file.ID] = true
					break
				}
			}
		}
	}

	match(contextFiles)
	match(conversationFiles)

	if len(matched) > 0 {
		return matched, nil
	}

	return nil, &MissingRequiredReference{
		Requested:           requested,
		FoundInContext:      filenames(contextFiles),
		FoundInConversation: filenames(conversationFiles),
		ConversationID:      conversationID,
		UserID:              userID,
	}
}

func nameMatches(filename, requested string) bool {
	return strings.EqualFold(stripExtension(filename), stripExtension(requested))
}

func stripExtension(name string) string {
	if dot := strings.LastIndexByte(name, '.'); dot > 0 {
		return name[:dot]
	}
	return name
}

func filenames(files []attachment.File) []string {
	names := make([]string, len(files))
	for i, file := range files {
		names[i] = file.Filename
	}
	return names
}
