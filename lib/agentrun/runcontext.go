// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package agentrun

import (
	"context"

	"github.com/loomchat/loom/lib/ledger"
	"github.com/loomchat/loom/lib/llm"
	"github.com/loomchat/loom/lib/llm/budget"
	"github.com/loomchat/loom/lib/thread"
)

// UsageLedger records token spend. Implemented by [ledger.Store];
// the orchestrator calls it fire-and-forget.
type UsageLedger interface {
	RecordSpend(ctx context.Context, spendContext ledger.SpendContext, tokens ledger.TokenSpend) error
	RecordStructuredSpend(ctx context.Context, spendContext ledger.SpendContext, tokens ledger.StructuredTokenSpend) error
}

// ToolRunner executes a tool invocation requested by the model and
// returns its textual result.
type ToolRunner interface {
	RunTool(ctx context.Context, call llm.ToolUse) (string, error)
}

// MemoryExtractor distills durable notes from a turn's user text and
// returns how many it stored. Implemented by
// [memorystore.Extractor]; the orchestrator races it against the
// memory timeout without ever blocking the stage on it.
type MemoryExtractor interface {
	Extract(ctx context.Context, userID, excerpt string) (int, error)
}

// StageConfig configures one agent stage.
type StageConfig struct {
	// Name identifies the stage agent in logs.
	Name string

	// Model is the model identifier for this stage.
	Model string

	// ToolContext summarizes the tools available to this stage
	// (what they do, when to use them). Assembled ahead of the base
	// instructions in the system prompt.
	ToolContext string

	// Instructions are the stage's base system instructions.
	Instructions string

	// AdditionalInstructions are appended to the base instructions
	// for every stage after the first. The first stage never sees
	// them: it receives the user's prompt directly and the
	// additions only describe how to continue another stage's work.
	AdditionalInstructions string

	// RecursionLimit bounds this stage's tool rounds. Zero means
	// the orchestrator default. Always capped by the global
	// maximum.
	RecursionLimit int

	// Tools available to this stage.
	Tools []llm.ToolDefinition

	// MaxTokens is the per-response output cap. Zero means the
	// orchestrator default.
	MaxTokens int
}

// RunContext is the per-turn state shared across stages.
type RunContext struct {
	// ConversationID and UserID identify the turn's scope.
	ConversationID string
	UserID         string

	// ResponseMessageID is the assistant message being produced.
	ResponseMessageID string

	// CurrentMessageID is the user message that started the turn;
	// its token estimate is reconciled against measured usage after
	// the first stage reports.
	CurrentMessageID string

	// Counts is the running token-count map. Stages beyond the
	// first inherit it so accounting is continuous across
	// hand-offs.
	Counts budget.TokenCountMap

	// Parts accumulates content parts across stages, in order.
	Parts []thread.Part

	// UsageRecords collects one usage record per provider call,
	// including tool rounds.
	UsageRecords []llm.Usage
}
