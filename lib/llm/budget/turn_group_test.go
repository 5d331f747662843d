// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package budget

import (
	"testing"

	"github.com/loomchat/loom/lib/llm"
	"github.com/loomchat/loom/lib/thread"
)

func TestIdentifyTurnGroups(t *testing.T) {
	t.Parallel()

	messages := []thread.Message{
		{ID: "m1", Role: llm.RoleUser, Text: "do the thing"},
		{ID: "m2", Role: llm.RoleAssistant, Parts: []thread.Part{
			{Kind: thread.PartToolCall, ToolCallID: "t1", ToolName: "search", ToolInput: `{"q":"x"}`},
		}},
		// Tool result continuation, not a new group.
		{ID: "m3", Role: llm.RoleUser, Parts: []thread.Part{
			{Kind: thread.PartToolResult, ToolCallID: "t1", ToolOutput: "results"},
		}},
		{ID: "m4", Role: llm.RoleAssistant, Text: "done"},
		{ID: "m5", Role: llm.RoleUser, Text: "next question"},
		{ID: "m6", Role: llm.RoleAssistant, Text: "answer"},
	}

	groups := identifyTurnGroups(messages)
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	if groups[0].startIndex != 0 || groups[0].endIndex != 4 {
		t.Errorf("groups[0] = %+v, want [0,4)", groups[0])
	}
	if groups[1].startIndex != 4 || groups[1].endIndex != 6 {
		t.Errorf("groups[1] = %+v, want [4,6)", groups[1])
	}
}

func TestIdentifyTurnGroupsEmpty(t *testing.T) {
	t.Parallel()

	if groups := identifyTurnGroups(nil); groups != nil {
		t.Errorf("groups = %+v, want nil", groups)
	}
}

func TestMessageCharCountIncludesToolPayloads(t *testing.T) {
	t.Parallel()

	message := thread.Message{
		Role: llm.RoleAssistant,
		Parts: []thread.Part{
			{Kind: thread.PartToolCall, ToolName: "search", ToolInput: `{"q":"weather"}`},
			{Kind: thread.PartToolResult, ToolOutput: "sunny"},
		},
	}

	// 6 + 15 + 5 characters of payload plus the 20 char framing.
	if got := messageCharCount(&message); got != 46 {
		t.Errorf("messageCharCount = %d, want 46", got)
	}
}

func TestContextWindowForModel(t *testing.T) {
	t.Parallel()

	if got := ContextWindowForModel("gpt-4o"); got != 128_000 {
		t.Errorf("gpt-4o = %d", got)
	}
	if got := ContextWindowForModel("claude-opus-4-6"); got != 200_000 {
		t.Errorf("claude-opus-4-6 = %d", got)
	}
	if got := ContextWindowForModel("some-unknown-model"); got != defaultContextWindow {
		t.Errorf("unknown = %d, want the default", got)
	}
}
