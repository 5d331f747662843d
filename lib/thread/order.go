// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package thread

import "fmt"

// BrokenChain is returned when a thread cannot be reconstructed from
// parent links: a message references a parent that is absent from the
// supplied set, or the parent links form a cycle.
type BrokenChain struct {
	// MessageID is the message whose parent link broke the walk.
	MessageID string

	// ParentID is the missing or revisited parent reference. Empty
	// when the leaf itself was not found.
	ParentID string

	// Cycle is true when the walk revisited a message rather than
	// failing to find one.
	Cycle bool
}

func (err *BrokenChain) Error() string {
	switch {
	case err.Cycle:
		return fmt.Sprintf("thread: parent chain cycle at message %s (parent %s already visited)",
			err.MessageID, err.ParentID)
	case err.ParentID != "":
		return fmt.Sprintf("thread: message %s references missing parent %s",
			err.MessageID, err.ParentID)
	default:
		return fmt.Sprintf("thread: leaf message %s not found", err.MessageID)
	}
}

// BuildOrderedThread walks parent links from leafID back to the
// branch root and returns the messages in root-to-leaf order. The
// walk ends at a message whose parent is the [NoParent] sentinel (or
// empty). Returns [BrokenChain] if the leaf is absent, a parent
// reference cannot be found, or the links form a cycle.
//
// Messages in allMessages that are not on the leaf's parent chain
// (other branches of the conversation) are ignored.
func BuildOrderedThread(allMessages []Message, leafID string) ([]Message, error) {
	byID := make(map[string]*Message, len(allMessages))
	for i := range allMessages {
		byID[allMessages[i].ID] = &allMessages[i]
	}

	current, found := byID[leafID]
	if !found {
		return nil, &BrokenChain{MessageID: leafID}
	}

	visited := make(map[string]bool, len(allMessages))
	var reversed []Message

	for {
		if visited[current.ID] {
			return nil, &BrokenChain{MessageID: current.ID, ParentID: current.ID, Cycle: true}
		}
		visited[current.ID] = true
		reversed = append(reversed, *current)

		if current.IsRoot() {
			break
		}

		parent, found := byID[current.ParentID]
		if !found {
			return nil, &BrokenChain{MessageID: current.ID, ParentID: current.ParentID}
		}
		if visited[parent.ID] {
			return nil, &BrokenChain{MessageID: current.ID, ParentID: parent.ID, Cycle: true}
		}
		current = parent
	}

	// Reverse into root-to-leaf order.
	ordered := make([]Message, len(reversed))
	for i := range reversed {
		ordered[len(reversed)-1-i] = reversed[i]
	}
	return ordered, nil
}
