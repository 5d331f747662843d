// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package budget

// Budget configures the token limits for a [Strategy].
type Budget struct {
	// ContextWindow is the model's total context window in tokens
	// (e.g. 200000 for Claude, 128000 for GPT-4o).
	ContextWindow int

	// MaxOutputTokens is the output reservation for each response.
	// Subtracted from the context window to determine the input
	// token budget.
	MaxOutputTokens int

	// OverheadTokens estimates the fixed per-request overhead:
	// system instructions, tool definitions, protocol framing. If
	// zero, a default of 4096 is used.
	OverheadTokens int
}

// defaultOverheadTokens is used when Budget.OverheadTokens is zero.
const defaultOverheadTokens = 4096

// MessageTokenBudget returns the number of tokens available for
// conversation messages after subtracting the output reservation and
// overhead.
func (budget Budget) MessageTokenBudget() int {
	overhead := budget.OverheadTokens
	if overhead == 0 {
		overhead = defaultOverheadTokens
	}
	available := budget.ContextWindow - budget.MaxOutputTokens - overhead
	if available < 0 {
		return 0
	}
	return available
}
