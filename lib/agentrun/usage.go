// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package agentrun

import "github.com/loomchat/loom/lib/llm"

// AggregateUsage combines per-call usage records from chained stages
// and tool rounds into one turn total.
//
// Input tokens are counted once: the first record's apparent input
// (base plus cache reads plus cache writes) is the turn's prompt.
// Each later record's apparent input grows by exactly the content
// generated since the previous call — model output and tool results
// fed back in — so that growth is attributed to output, added to the
// record's own reported output tokens. Summing inputs naively would
// double-count the shared context once per call.
//
// Cache read/write totals are carried through so the caller can pick
// the structured ledger variant when they are non-zero.
func AggregateUsage(records []llm.Usage) llm.Usage {
	var total llm.Usage
	previousTokens := int64(0)

	for i, record := range records {
		apparentInput := record.InputTokens + record.CacheReadTokens + record.CacheWriteTokens

		if i == 0 {
			total.InputTokens = apparentInput
		} else if delta := apparentInput - previousTokens; delta > 0 {
			total.OutputTokens += delta
		}
		previousTokens = apparentInput

		total.OutputTokens += record.OutputTokens
		total.CacheReadTokens += record.CacheReadTokens
		total.CacheWriteTokens += record.CacheWriteTokens
	}
	return total
}
