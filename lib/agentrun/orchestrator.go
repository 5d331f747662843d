// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package agentrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/loomchat/loom/lib/clock"
	"github.com/loomchat/loom/lib/ledger"
	"github.com/loomchat/loom/lib/llm"
	"github.com/loomchat/loom/lib/llm/budget"
	"github.com/loomchat/loom/lib/memorystore"
	"github.com/loomchat/loom/lib/payload"
	"github.com/loomchat/loom/lib/thread"
)

const (
	// defaultMaxRecursion is the global cap on tool rounds per
	// stage. Stage configuration can only lower it.
	defaultMaxRecursion = 25

	// defaultMemoryTimeout bounds the memory extraction race.
	defaultMemoryTimeout = 3000 * time.Millisecond

	defaultMaxOutputTokens = 8192

	// recallLimit is how many memory notes are folded into the
	// first stage's instructions.
	recallLimit = 5
)

// OrchestratorConfig configures an [Orchestrator].
type OrchestratorConfig struct {
	// Provider executes the streamed calls.
	Provider llm.Provider

	// Caps describes the provider, resolved once per run.
	Caps llm.ProviderCaps

	// CitationsEnabled is the configured default for citation
	// extraction. A capability rejection disables citations for the
	// affected run only; the default applies again on the next.
	CitationsEnabled bool

	// Ledger records spend. Nil disables recording.
	Ledger UsageLedger

	// Memory recalls notes for stage instructions. Nil disables
	// recall.
	Memory *memorystore.Store

	// Extractor distills new notes after the first stage starts.
	// Nil disables extraction.
	Extractor MemoryExtractor

	// Tools executes tool invocations. Nil means tool use stops the
	// stage.
	Tools ToolRunner

	// Clock drives the memory timeout. Nil means the real clock.
	Clock clock.Clock

	// Logger receives run diagnostics.
	Logger *slog.Logger

	// MaxRecursion caps tool rounds per stage. Zero means 25.
	MaxRecursion int

	// MemoryTimeout bounds memory extraction. Zero means 3000ms.
	MemoryTimeout time.Duration

	// MaxOutputTokens is the default per-response output cap.
	MaxOutputTokens int
}

// Orchestrator executes the stages of one conversational turn. Safe
// for concurrent use across turns; per-turn state lives in the
// [RunContext].
type Orchestrator struct {
	provider         llm.Provider
	caps             llm.ProviderCaps
	citationsEnabled bool
	ledger           UsageLedger
	memory           *memorystore.Store
	extractor        MemoryExtractor
	tools            ToolRunner
	clock            clock.Clock
	logger           *slog.Logger
	maxRecursion     int
	memoryTimeout    time.Duration
	maxOutputTokens  int
}

// NewOrchestrator creates an Orchestrator from config.
func NewOrchestrator(config OrchestratorConfig) *Orchestrator {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	timeSource := config.Clock
	if timeSource == nil {
		timeSource = clock.Real()
	}
	maxRecursion := config.MaxRecursion
	if maxRecursion <= 0 {
		maxRecursion = defaultMaxRecursion
	}
	memoryTimeout := config.MemoryTimeout
	if memoryTimeout <= 0 {
		memoryTimeout = defaultMemoryTimeout
	}
	maxOutputTokens := config.MaxOutputTokens
	if maxOutputTokens <= 0 {
		maxOutputTokens = defaultMaxOutputTokens
	}

	return &Orchestrator{
		provider:         config.Provider,
		caps:             config.Caps,
		citationsEnabled: config.CitationsEnabled,
		ledger:           config.Ledger,
		memory:           config.Memory,
		extractor:        config.Extractor,
		tools:            config.Tools,
		clock:            timeSource,
		logger:           logger,
		maxRecursion:     maxRecursion,
		memoryTimeout:    memoryTimeout,
		maxOutputTokens:  maxOutputTokens,
	}
}

// Run executes the stages sequentially over the wire messages,
// accumulating content parts and usage records on the run context.
// It returns the aggregated turn usage; on a fatal failure the parts
// buffered so far are preserved on the context and a synthetic error
// part is appended, unless the failure is the caller's own
// cancellation.
//
// Spend is recorded to the ledger fire-and-forget on both the
// success and failure paths.
func (orchestrator *Orchestrator) Run(ctx context.Context, runContext *RunContext, stages []StageConfig, wire []thread.WireMessage) (llm.Usage, error) {
	if len(stages) == 0 {
		return llm.Usage{}, fmt.Errorf("agentrun: at least one stage is required")
	}

	// Run-local citation state: a capability rejection flips it off
	// for the rest of this run only.
	citationsEnabled := orchestrator.citationsEnabled

	for stageIndex := range stages {
		err := orchestrator.runStage(ctx, stageIndex, &stages[stageIndex], runContext, wire, &citationsEnabled)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				runContext.Parts = append(runContext.Parts, thread.Part{
					Kind: thread.PartError,
					Text: fmt.Sprintf("stage %d (%s) failed: %v", stageIndex, stages[stageIndex].Name, err),
				})
			}
			usage := AggregateUsage(runContext.UsageRecords)
			orchestrator.dispatchLedger(runContext, stages[0].Model, usage)
			return usage, err
		}
	}

	usage := AggregateUsage(runContext.UsageRecords)

	if runContext.CurrentMessageID != "" && runContext.Counts != nil {
		budget.Reconcile(runContext.Counts, runContext.CurrentMessageID, usage.InputTokens)
	}

	orchestrator.dispatchLedger(runContext, stages[0].Model, usage)
	return usage, nil
}

// runStage executes one stage's streamed reasoning/tool loop.
func (orchestrator *Orchestrator) runStage(ctx context.Context, stageIndex int, stage *StageConfig, runContext *RunContext, wire []thread.WireMessage, citationsEnabled *bool) error {
	instructions := orchestrator.buildInstructions(ctx, stageIndex, stage, runContext, wire)

	recursionLimit := stage.RecursionLimit
	if recursionLimit <= 0 || recursionLimit > orchestrator.maxRecursion {
		recursionLimit = orchestrator.maxRecursion
	}
	maxTokens := stage.MaxTokens
	if maxTokens <= 0 {
		maxTokens = orchestrator.maxOutputTokens
	}

	if stageIndex == 0 && orchestrator.extractor != nil {
		orchestrator.extractMemoryAsync(runContext.UserID, latestUserText(wire))
	}

	messages := toProviderMessages(wire, instructions, orchestrator.caps)
	system := instructions
	if !orchestrator.caps.SupportsSystemMessages {
		system = ""
	}

	for round := 0; ; round++ {
		request := llm.Request{
			Model:     stage.Model,
			System:    system,
			Messages:  messages,
			Tools:     stage.Tools,
			MaxTokens: maxTokens,
		}

		response, err := orchestrator.streamCall(ctx, request, wire, runContext, citationsEnabled)
		if err != nil {
			return err
		}

		runContext.UsageRecords = append(runContext.UsageRecords, response.Usage)
		if text := response.TextContent(); text != "" {
			runContext.Parts = append(runContext.Parts, thread.Part{Kind: thread.PartText, Text: text})
		}

		toolUses := response.ToolUses()
		if response.StopReason != llm.StopReasonToolUse || len(toolUses) == 0 || orchestrator.tools == nil {
			return nil
		}
		if round+1 >= recursionLimit {
			orchestrator.logger.Warn("tool recursion limit reached",
				"stage", stage.Name, "limit", recursionLimit)
			return nil
		}

		// Feed the model's tool calls and their results back in for
		// the next round.
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: response.Content})
		var resultBlocks []llm.ContentBlock
		for _, call := range toolUses {
			output, toolErr := orchestrator.tools.RunTool(ctx, call)
			isError := toolErr != nil
			if isError {
				output = toolErr.Error()
			}
			runContext.Parts = append(runContext.Parts,
				thread.Part{
					Kind:       thread.PartToolCall,
					ToolCallID: call.ID,
					ToolName:   call.Name,
					ToolInput:  string(call.Input),
				},
				thread.Part{
					Kind:       thread.PartToolResult,
					ToolCallID: call.ID,
					ToolOutput: output,
				})
			resultBlocks = append(resultBlocks, llm.ContentBlock{
				Type: llm.ContentToolResult,
				ToolResult: &llm.ToolResult{
					ToolUseID: call.ID,
					Content:   output,
					IsError:   isError,
				},
			})
		}
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: resultBlocks})
	}
}

// streamCall makes one provider call and drains its stream. When the
// provider rejects the citation configuration and citations are
// still enabled for this run, the citation configs are stripped from
// the wire document blocks and the call retried exactly once; the
// stripped blocks are shared with the already-built request
// messages, so no rebuild is needed. A failure on the retry, or any
// other failure, is fatal for the turn.
func (orchestrator *Orchestrator) streamCall(ctx context.Context, request llm.Request, wire []thread.WireMessage, runContext *RunContext, citationsEnabled *bool) (llm.Response, error) {
	stream, err := orchestrator.provider.Stream(ctx, request)
	if err != nil && *citationsEnabled && isCitationRejection(err) {
		orchestrator.logger.Warn("provider rejected citation configuration, retrying without citations",
			"conversation_id", runContext.ConversationID)
		*citationsEnabled = false
		payload.StripCitations(wire)
		stream, err = orchestrator.provider.Stream(ctx, request)
		if err != nil {
			return llm.Response{}, fmt.Errorf("agentrun: retry without citations failed: %w", err)
		}
	} else if err != nil {
		return llm.Response{}, fmt.Errorf("agentrun: provider call: %w", err)
	}
	defer stream.Close()

	for {
		event, streamErr := stream.Next()
		if streamErr == io.EOF {
			break
		}
		if streamErr != nil {
			return llm.Response{}, fmt.Errorf("agentrun: stream: %w", streamErr)
		}
		if event.Type == llm.EventError {
			return llm.Response{}, fmt.Errorf("agentrun: stream: %w", event.Error)
		}
	}
	return stream.Response(), nil
}

// isCitationRejection matches the one recoverable provider failure.
func isCitationRejection(err error) bool {
	var providerError *llm.ProviderError
	return errors.As(err, &providerError) && providerError.IsUnsupportedCitations()
}

// buildInstructions assembles a stage's system instructions: the
// tool-context summary, then the base instructions, then memory
// notes on the first stage and the additional hand-off instructions
// on every stage after the first.
func (orchestrator *Orchestrator) buildInstructions(ctx context.Context, stageIndex int, stage *StageConfig, runContext *RunContext, wire []thread.WireMessage) string {
	var sections []string
	if stage.ToolContext != "" {
		sections = append(sections, stage.ToolContext)
	}
	if stage.Instructions != "" {
		sections = append(sections, stage.Instructions)
	}

	if stageIndex > 0 && stage.AdditionalInstructions != "" {
		sections = append(sections, stage.AdditionalInstructions)
	}

	if stageIndex == 0 && orchestrator.memory != nil {
		notes, err := orchestrator.memory.Recall(ctx, runContext.UserID, latestUserText(wire), recallLimit)
		if err != nil {
			orchestrator.logger.Warn("memory recall failed", "user_id", runContext.UserID, "error", err)
		} else if len(notes) > 0 {
			var builder strings.Builder
			builder.WriteString("Known about this user:")
			for _, note := range notes {
				builder.WriteString("\n- ")
				builder.WriteString(note.Content)
			}
			sections = append(sections, builder.String())
		}
	}

	return strings.Join(sections, "\n\n")
}

// extractMemoryAsync races memory extraction against the configured
// timeout. The stage never waits for it: a timeout drops the
// eventual result with a warning, but the task itself is not killed
// and may still finish and store notes.
func (orchestrator *Orchestrator) extractMemoryAsync(userID, excerpt string) {
	if excerpt == "" {
		return
	}
	done := make(chan error, 1)

	// Detached from the request context: cancellation of the turn
	// should not abort a memory write already in flight.
	go func() {
		_, err := orchestrator.extractor.Extract(context.Background(), userID, excerpt)
		done <- err
	}()

	go func() {
		select {
		case err := <-done:
			if err != nil {
				orchestrator.logger.Warn("memory extraction failed", "user_id", userID, "error", err)
			}
		case <-orchestrator.clock.After(orchestrator.memoryTimeout):
			orchestrator.logger.Warn("memory extraction timed out, result dropped",
				"user_id", userID, "timeout", orchestrator.memoryTimeout)
		}
	}()
}

// dispatchLedger records the turn's spend without blocking the
// response path. The structured variant is used when cache token
// counts are present; failures are logged, never surfaced.
func (orchestrator *Orchestrator) dispatchLedger(runContext *RunContext, model string, usage llm.Usage) {
	if orchestrator.ledger == nil || usage == (llm.Usage{}) {
		return
	}

	spendContext := ledger.SpendContext{
		Model:          model,
		ConversationID: runContext.ConversationID,
		UserID:         runContext.UserID,
	}

	go func() {
		var err error
		if usage.CacheReadTokens != 0 || usage.CacheWriteTokens != 0 {
			// Cache reads are billed separately; every other prompt
			// token (cache writes plus the uncached base input) lands
			// on the write side, so the ledger's prompt totals still
			// sum to the turn's full input.
			promptWrite := usage.InputTokens - usage.CacheReadTokens
			if promptWrite < usage.CacheWriteTokens {
				promptWrite = usage.CacheWriteTokens
			}
			err = orchestrator.ledger.RecordStructuredSpend(context.Background(), spendContext,
				ledger.StructuredTokenSpend{
					PromptRead:  usage.CacheReadTokens,
					PromptWrite: promptWrite,
					Completion:  usage.OutputTokens,
				})
		} else {
			err = orchestrator.ledger.RecordSpend(context.Background(), spendContext,
				ledger.TokenSpend{Prompt: usage.InputTokens, Completion: usage.OutputTokens})
		}
		if err != nil {
			orchestrator.logger.Error("recording spend failed",
				"conversation_id", spendContext.ConversationID, "error", err)
		}
	}()
}

// toProviderMessages converts wire messages to provider messages.
// Messages with assembled blocks send them as-is; everything else
// degrades to a single text block. When the provider has no system
// prompt field, the instructions are prepended to the first user
// message.
func toProviderMessages(wire []thread.WireMessage, instructions string, caps llm.ProviderCaps) []llm.Message {
	messages := make([]llm.Message, 0, len(wire))
	prependInstructions := !caps.SupportsSystemMessages && instructions != ""

	for i := range wire {
		message := llm.Message{Role: wire[i].Role}
		switch {
		case wire[i].Blocks != nil:
			message.Content = wire[i].Blocks
		case wire[i].Text != "":
			message.Content = []llm.ContentBlock{llm.TextBlock(wire[i].Text)}
		default:
			continue
		}

		if prependInstructions && message.Role == llm.RoleUser {
			message.Content = append(
				[]llm.ContentBlock{llm.TextBlock(instructions)}, message.Content...)
			prependInstructions = false
		}
		messages = append(messages, message)
	}
	return messages
}

// latestUserText returns the text of the newest user wire message.
func latestUserText(wire []thread.WireMessage) string {
	for i := len(wire) - 1; i >= 0; i-- {
		if wire[i].Role == llm.RoleUser && wire[i].Text != "" {
			return wire[i].Text
		}
	}
	return ""
}
