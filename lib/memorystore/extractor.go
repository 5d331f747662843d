// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package memorystore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/loomchat/loom/lib/llm"
)

// extractionInstructions asks the model for durable facts only. The
// "NONE" escape keeps small talk from polluting the store.
const extractionInstructions = `Extract durable facts about the user from this conversation excerpt: stable preferences, ongoing projects, recurring context. One fact per line, plainly stated. Skip anything tied only to this single exchange. If there is nothing durable, reply with exactly NONE.`

// maxNotesPerTurn caps how many notes one extraction may add.
const maxNotesPerTurn = 5

// Extractor distills memory notes from a finished turn using a
// (typically cheap) model and stores them.
type Extractor struct {
	provider llm.Provider
	model    string
	store    *Store
	logger   *slog.Logger
}

// NewExtractor creates an Extractor. A nil logger means the default
// text handler on stderr.
func NewExtractor(provider llm.Provider, model string, store *Store, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Extractor{provider: provider, model: model, store: store, logger: logger}
}

// Extract asks the model for durable facts in the excerpt and
// remembers each one. Returns the number of notes stored.
func (extractor *Extractor) Extract(ctx context.Context, userID, excerpt string) (int, error) {
	response, err := extractor.provider.Complete(ctx, llm.Request{
		Model:     extractor.model,
		System:    extractionInstructions,
		Messages:  []llm.Message{llm.UserMessage(excerpt)},
		MaxTokens: 512,
	})
	if err != nil {
		return 0, fmt.Errorf("memorystore: extraction call: %w", err)
	}

	stored := 0
	for _, note := range parseNotes(response.TextContent()) {
		if stored == maxNotesPerTurn {
			break
		}
		if err := extractor.store.Remember(ctx, userID, uuid.NewString(), note); err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}

// parseNotes splits the model's reply into individual notes,
// stripping list markers. A reply of NONE yields nothing.
func parseNotes(reply string) []string {
	var notes []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "- ")
		line = strings.TrimPrefix(line, "* ")
		if line == "" || strings.EqualFold(line, "NONE") {
			continue
		}
		notes = append(notes, line)
	}
	return notes
}
