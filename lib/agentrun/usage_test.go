// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package agentrun

import (
	"testing"

	"github.com/loomchat/loom/lib/llm"
)

func TestAggregateUsageChainedStages(t *testing.T) {
	t.Parallel()

	// The second stage's larger input is the first stage's output
	// fed back in; the growth counts as output, not as new input.
	total := AggregateUsage([]llm.Usage{
		{InputTokens: 100, OutputTokens: 20},
		{InputTokens: 130, OutputTokens: 15},
	})
	if total.InputTokens != 100 {
		t.Errorf("InputTokens = %d, want 100", total.InputTokens)
	}
	if total.OutputTokens != 65 {
		t.Errorf("OutputTokens = %d, want 65", total.OutputTokens)
	}
}

func TestAggregateUsageSingleRecord(t *testing.T) {
	t.Parallel()

	total := AggregateUsage([]llm.Usage{{InputTokens: 500, OutputTokens: 80}})
	if total.InputTokens != 500 || total.OutputTokens != 80 {
		t.Errorf("total = %+v", total)
	}
}

func TestAggregateUsageCacheTokens(t *testing.T) {
	t.Parallel()

	total := AggregateUsage([]llm.Usage{
		{InputTokens: 40, CacheReadTokens: 50, CacheWriteTokens: 10, OutputTokens: 20},
		{InputTokens: 60, CacheReadTokens: 60, CacheWriteTokens: 0, OutputTokens: 10},
	})
	// First apparent input: 40+50+10 = 100. Second: 120, delta 20.
	if total.InputTokens != 100 {
		t.Errorf("InputTokens = %d, want 100", total.InputTokens)
	}
	if total.OutputTokens != 50 {
		t.Errorf("OutputTokens = %d, want 20+10+20 = 50, got %d", total.OutputTokens, total.OutputTokens)
	}
	if total.CacheReadTokens != 110 || total.CacheWriteTokens != 10 {
		t.Errorf("cache totals = %d/%d", total.CacheReadTokens, total.CacheWriteTokens)
	}
}

func TestAggregateUsageShrinkingInputNotNegative(t *testing.T) {
	t.Parallel()

	// A later call with a smaller context (after trimming) must not
	// subtract output.
	total := AggregateUsage([]llm.Usage{
		{InputTokens: 200, OutputTokens: 10},
		{InputTokens: 150, OutputTokens: 5},
	})
	if total.OutputTokens != 15 {
		t.Errorf("OutputTokens = %d, want 15", total.OutputTokens)
	}
}

func TestAggregateUsageEmpty(t *testing.T) {
	t.Parallel()

	if total := AggregateUsage(nil); total != (llm.Usage{}) {
		t.Errorf("total = %+v, want zero", total)
	}
}
