// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package budget

import (
	"strings"
	"testing"

	"github.com/loomchat/loom/lib/llm"
	"github.com/loomchat/loom/lib/thread"
)

// fixedCounts builds a CountFunc serving predetermined per-message
// counts, with a small flat cost for anything else (such as the
// synthetic summary message).
func fixedCounts(counts map[string]int) CountFunc {
	return func(message *thread.Message) int {
		if count, found := counts[message.ID]; found {
			return count
		}
		return 5
	}
}

// conversation is three turn groups: two complete exchanges and the
// current user prompt.
func conversation() []thread.Message {
	return []thread.Message{
		{ID: "m1", Role: llm.RoleUser, Text: "first question"},
		{ID: "m2", Role: llm.RoleAssistant, Text: "first answer"},
		{ID: "m3", Role: llm.RoleUser, Text: "second question"},
		{ID: "m4", Role: llm.RoleAssistant, Text: "second answer"},
		{ID: "m5", Role: llm.RoleUser, Text: "current prompt"},
	}
}

func testStrategy(mode TrimMode, allowanceTokens int) *Strategy {
	return NewStrategy(StrategyConfig{
		Budget: Budget{
			ContextWindow:   allowanceTokens + 30,
			MaxOutputTokens: 10,
			OverheadTokens:  20,
		},
		Count: fixedCounts(map[string]int{
			"m1": 40, "m2": 30, "m3": 30, "m4": 20, "m5": 10,
		}),
		Mode: mode,
	})
}

func TestPlanEverythingFits(t *testing.T) {
	t.Parallel()

	strategy := testStrategy(TrimDiscard, 200)
	result, err := strategy.Plan(conversation(), nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(result.Payload) != 5 {
		t.Errorf("payload = %d messages, want all 5", len(result.Payload))
	}
	if result.PromptTokens != 130 {
		t.Errorf("PromptTokens = %d, want 130", result.PromptTokens)
	}
	if result.EvictedGroups != 0 || result.Summarized {
		t.Errorf("unexpected trimming: %+v", result)
	}
	if strategy.Phase() != PhaseFinalized {
		t.Errorf("phase = %q, want finalized", strategy.Phase())
	}
}

func TestPlanTrustsExistingCounts(t *testing.T) {
	t.Parallel()

	messages := conversation()
	messages[1].SetTokenCount(99)

	counts := TokenCountMap{"m1": 7}
	strategy := testStrategy(TrimDiscard, 500)
	result, err := strategy.Plan(messages, counts)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if result.Counts["m1"] != 7 {
		t.Errorf("m1 = %d, want the pre-existing map entry kept", result.Counts["m1"])
	}
	if result.Counts["m2"] != 99 {
		t.Errorf("m2 = %d, want the message's own recorded count", result.Counts["m2"])
	}
	if result.Counts["m3"] != 30 {
		t.Errorf("m3 = %d, want the fresh estimate", result.Counts["m3"])
	}
}

func TestPlanDiscardsOldestGroup(t *testing.T) {
	t.Parallel()

	// Total is 130 against an allowance of 100; evicting the first
	// group (m1+m2, 70 tokens) brings it to 60.
	strategy := testStrategy(TrimDiscard, 100)
	result, err := strategy.Plan(conversation(), nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if result.EvictedGroups != 1 {
		t.Errorf("EvictedGroups = %d, want 1", result.EvictedGroups)
	}
	if len(result.Payload) != 3 || result.Payload[0].ID != "m3" {
		t.Fatalf("payload = %+v, want m3..m5", messageIDs(result.Payload))
	}
	if result.PromptTokens != 60 {
		t.Errorf("PromptTokens = %d, want 60", result.PromptTokens)
	}
	for _, evicted := range []string{"m1", "m2"} {
		if _, present := result.Counts[evicted]; present {
			t.Errorf("counts still holds evicted %s", evicted)
		}
	}
}

func TestPlanSummarizesOldestGroup(t *testing.T) {
	t.Parallel()

	strategy := testStrategy(TrimSummarize, 100)
	result, err := strategy.Plan(conversation(), nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !result.Summarized {
		t.Fatal("expected a summary replacement")
	}
	if len(result.Payload) != 4 {
		t.Fatalf("payload = %+v, want summary + m3..m5", messageIDs(result.Payload))
	}

	summary := result.Payload[0]
	if !strings.HasPrefix(summary.ID, "summary-") {
		t.Errorf("summary ID = %q", summary.ID)
	}
	if summary.Role != llm.RoleUser {
		t.Errorf("summary role = %q", summary.Role)
	}
	if !strings.Contains(summary.Text, "first question") || !strings.Contains(summary.Text, "first answer") {
		t.Errorf("summary text missing evicted content: %q", summary.Text)
	}

	// Summary tokens (flat 5) replace the 70 evicted.
	if result.PromptTokens != 65 {
		t.Errorf("PromptTokens = %d, want 65", result.PromptTokens)
	}
	if _, present := result.Counts[summary.ID]; !present {
		t.Error("counts missing the summary entry")
	}
}

func TestPlanCannotTrimSingleGroup(t *testing.T) {
	t.Parallel()

	messages := []thread.Message{
		{ID: "m1", Role: llm.RoleUser, Text: "huge prompt"},
		{ID: "m2", Role: llm.RoleAssistant, Text: "huge answer"},
	}
	strategy := NewStrategy(StrategyConfig{
		Budget: Budget{ContextWindow: 60, MaxOutputTokens: 10, OverheadTokens: 20},
		Count:  fixedCounts(map[string]int{"m1": 400, "m2": 300}),
	})

	result, err := strategy.Plan(messages, nil)
	if err == nil {
		t.Fatal("expected an over-budget error")
	}
	// Best-effort payload is still returned.
	if len(result.Payload) != 2 {
		t.Errorf("payload = %d messages, want the untrimmed 2", len(result.Payload))
	}
}

func TestReconcile(t *testing.T) {
	t.Parallel()

	counts := TokenCountMap{"m0": 50, "m1": 30}

	corrected := Reconcile(counts, "m1", 90)
	if corrected != 40 {
		t.Errorf("corrected = %d, want 40", corrected)
	}
	if counts["m1"] != 40 {
		t.Errorf("counts[m1] = %d, want overwritten to 40", counts["m1"])
	}
	if counts["m0"] != 50 {
		t.Errorf("counts[m0] = %d, want untouched", counts["m0"])
	}
}

func TestReconcileKeepsEstimateWhenNonPositive(t *testing.T) {
	t.Parallel()

	counts := TokenCountMap{"m0": 50, "m1": 30}

	// Measured total below the other entries' sum: the estimate
	// stands.
	corrected := Reconcile(counts, "m1", 40)
	if corrected != 30 {
		t.Errorf("corrected = %d, want the original estimate 30", corrected)
	}
	if counts["m1"] != 30 {
		t.Errorf("counts[m1] = %d, want unchanged", counts["m1"])
	}
}

func messageIDs(messages []thread.Message) []string {
	ids := make([]string, len(messages))
	for i := range messages {
		ids[i] = messages[i].ID
	}
	return ids
}
