// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/loomchat/loom/lib/agentrun"
	"github.com/loomchat/loom/lib/config"
	"github.com/loomchat/loom/lib/ledger"
	"github.com/loomchat/loom/lib/llm"
	"github.com/loomchat/loom/lib/llm/budget"
	"github.com/loomchat/loom/lib/payload"
	"github.com/loomchat/loom/lib/thread"
)

// TurnRequest is the JSON input driving one turn: the conversation's
// canonical messages, the leaf message to respond to, and the stage
// plan. Counts carries per-message token knowledge from earlier
// turns; omitting it starts estimation fresh.
type TurnRequest struct {
	ConversationID    string               `json:"conversation_id"`
	UserID            string               `json:"user_id"`
	LeafMessageID     string               `json:"leaf_message_id"`
	ResponseMessageID string               `json:"response_message_id"`
	Messages          []thread.Message     `json:"messages"`
	Counts            budget.TokenCountMap `json:"counts,omitempty"`
	Stages            []StageRequest       `json:"stages,omitempty"`
}

// StageRequest is one stage of the turn's run plan. An empty model
// falls back to the configured default. A request with no stages
// gets a single default stage.
type StageRequest struct {
	Name                   string `json:"name"`
	Model                  string `json:"model,omitempty"`
	ToolContext            string `json:"tool_context,omitempty"`
	Instructions           string `json:"instructions,omitempty"`
	AdditionalInstructions string `json:"additional_instructions,omitempty"`
	RecursionLimit         int    `json:"recursion_limit,omitempty"`
	MaxTokens              int    `json:"max_tokens,omitempty"`
}

// readTurnRequest reads and validates the turn request from a file
// path, or stdin when path is "-".
func readTurnRequest(path string) (*TurnRequest, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading turn request: %w", err)
	}
	return parseTurnRequest(data)
}

func parseTurnRequest(data []byte) (*TurnRequest, error) {
	var request TurnRequest
	if err := json.Unmarshal(data, &request); err != nil {
		return nil, fmt.Errorf("parsing turn request: %w", err)
	}
	if request.ConversationID == "" {
		return nil, fmt.Errorf("turn request: conversation_id is required")
	}
	if request.LeafMessageID == "" {
		return nil, fmt.Errorf("turn request: leaf_message_id is required")
	}
	if request.ResponseMessageID == "" {
		return nil, fmt.Errorf("turn request: response_message_id is required")
	}
	if len(request.Messages) == 0 {
		return nil, fmt.Errorf("turn request: messages are required")
	}
	return &request, nil
}

// turnEvent is one JSONL record emitted on stdout while a turn runs.
type turnEvent struct {
	Type string `json:"type"`

	// "plan" fields.
	PromptTokens  int  `json:"prompt_tokens,omitempty"`
	EvictedGroups int  `json:"evicted_groups,omitempty"`
	Summarized    bool `json:"summarized,omitempty"`

	// "part" fields.
	Part *thread.Part `json:"part,omitempty"`

	// "usage" fields.
	Usage *llm.Usage `json:"usage,omitempty"`

	// "save" fields.
	ConversationID    string           `json:"conversation_id,omitempty"`
	ResponseMessageID string           `json:"response_message_id,omitempty"`
	Messages          []thread.Message `json:"messages,omitempty"`

	// "error" fields.
	Error string `json:"error,omitempty"`
}

// eventWriter emits turn events as JSON lines. The turn pipeline is
// serial, so no locking is needed.
type eventWriter struct {
	encoder *json.Encoder
}

func newEventWriter(output io.Writer) *eventWriter {
	return &eventWriter{encoder: json.NewEncoder(output)}
}

func (writer *eventWriter) emit(event turnEvent) {
	// Encoding a plain struct cannot fail; a write failure means
	// stdout is gone and there is no one left to tell.
	_ = writer.encoder.Encode(event)
}

// turnRunner holds the wired pipeline for executing turn requests.
type turnRunner struct {
	strategy     *budget.Strategy
	assembler    *payload.Assembler
	orchestrator *agentrun.Orchestrator
	ledger       *ledger.Store
	defaultModel string
	logger       *slog.Logger
	events       *eventWriter
}

func (runner *turnRunner) close() {
	if runner.ledger != nil {
		if err := runner.ledger.Close(); err != nil {
			runner.logger.Warn("closing usage ledger", "error", err)
		}
	}
}

// executeTurn runs the full pipeline for one request: order the
// canonical messages, plan the token budget, fork the wire track and
// assemble attachment blocks onto it, drive the staged run, and emit
// the results. The canonical messages stay binary-free throughout;
// only the wire copies carry assembled payload content.
func (runner *turnRunner) executeTurn(ctx context.Context, request *TurnRequest) error {
	ordered, err := thread.BuildOrderedThread(request.Messages, request.LeafMessageID)
	if err != nil {
		runner.events.emit(turnEvent{Type: "error", Error: err.Error()})
		return fmt.Errorf("ordering thread: %w", err)
	}

	plan, planErr := runner.strategy.Plan(ordered, request.Counts)
	if planErr != nil {
		// The plan is still a best-effort payload; send it rather
		// than fail the turn outright.
		runner.logger.Warn("conversation exceeds context budget even after trimming",
			"conversation_id", request.ConversationID, "error", planErr)
	}
	runner.events.emit(turnEvent{
		Type:          "plan",
		PromptTokens:  plan.PromptTokens,
		EvictedGroups: plan.EvictedGroups,
		Summarized:    plan.Summarized,
	})

	wire := thread.ForkWireCopy(plan.Payload)
	for i := range wire {
		if err := runner.assembler.AssembleMessage(ctx, &wire[i]); err != nil {
			runner.events.emit(turnEvent{Type: "error", Error: err.Error()})
			return fmt.Errorf("assembling message %s: %w", wire[i].ID, err)
		}
	}

	runContext := &agentrun.RunContext{
		ConversationID:    request.ConversationID,
		UserID:            request.UserID,
		ResponseMessageID: request.ResponseMessageID,
		CurrentMessageID:  request.LeafMessageID,
		Counts:            plan.Counts,
	}

	usage, runErr := runner.orchestrator.Run(ctx, runContext, runner.buildStages(request), wire)

	for i := range runContext.Parts {
		runner.events.emit(turnEvent{Type: "part", Part: &runContext.Parts[i]})
	}
	runner.events.emit(turnEvent{Type: "usage", Usage: &usage})

	if runErr != nil {
		runner.events.emit(turnEvent{Type: "error", Error: runErr.Error()})
		return fmt.Errorf("running turn: %w", runErr)
	}

	runner.strategy.RecordUsage(plan.Payload, usage.InputTokens)

	// Persist the ephemeral resolution state (resolved URLs) back
	// onto the canonical track, then append the response message.
	thread.MergeEphemeralFields(ordered, wire)
	response := responseMessage(request, runContext)
	saved := thread.SaveOptionsFor(request.ConversationID, request.ResponseMessageID,
		append(ordered, response))
	runner.events.emit(turnEvent{
		Type:              "save",
		ConversationID:    saved.ConversationID,
		ResponseMessageID: saved.ResponseMessageID,
		Messages:          saved.Messages,
	})
	return nil
}

// buildStages converts the request's stage plan, falling back to a
// single default stage, and fills in the default model wherever a
// stage names none.
func (runner *turnRunner) buildStages(request *TurnRequest) []agentrun.StageConfig {
	if len(request.Stages) == 0 {
		return []agentrun.StageConfig{{Name: "respond", Model: runner.defaultModel}}
	}

	stages := make([]agentrun.StageConfig, len(request.Stages))
	for i, stage := range request.Stages {
		model := stage.Model
		if model == "" {
			model = runner.defaultModel
		}
		stages[i] = agentrun.StageConfig{
			Name:                   stage.Name,
			Model:                  model,
			ToolContext:            stage.ToolContext,
			Instructions:           stage.Instructions,
			AdditionalInstructions: stage.AdditionalInstructions,
			RecursionLimit:         stage.RecursionLimit,
			MaxTokens:              stage.MaxTokens,
		}
	}
	return stages
}

// responseMessage builds the canonical assistant message for the
// completed run.
func responseMessage(request *TurnRequest, runContext *agentrun.RunContext) thread.Message {
	var text string
	for _, part := range runContext.Parts {
		if part.Kind == thread.PartText {
			if text != "" {
				text += "\n"
			}
			text += part.Text
		}
	}
	return thread.Message{
		ID:             request.ResponseMessageID,
		ParentID:       request.LeafMessageID,
		ConversationID: request.ConversationID,
		Role:           llm.RoleAssistant,
		Text:           text,
		Parts:          runContext.Parts,
	}
}

func memoryTimeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Run.MemoryTimeoutMS) * time.Millisecond
}
