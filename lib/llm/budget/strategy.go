// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package budget

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/loomchat/loom/lib/markdown"
	"github.com/loomchat/loom/lib/thread"
)

// TokenCountMap maps message IDs to estimated or measured token
// counts. Owned exclusively by one turn's run context; measured
// counts overwrite estimates as usage becomes known.
type TokenCountMap map[string]int

// Total returns the sum of all entries.
func (counts TokenCountMap) Total() int {
	total := 0
	for _, count := range counts {
		total += count
	}
	return total
}

// CountFunc counts the tokens of one message. Injected so callers
// can supply a real tokenizer; the default is a calibrating
// [CharEstimator].
type CountFunc func(message *thread.Message) int

// TrimMode selects what happens to the oldest messages when the
// conversation exceeds the context budget.
type TrimMode string

const (
	// TrimDiscard drops the oldest turn groups entirely.
	TrimDiscard TrimMode = "discard"

	// TrimSummarize replaces the oldest run of turn groups with a
	// single synthetic summary message.
	TrimSummarize TrimMode = "summarize"
)

// Phase is the strategy's position in its per-turn lifecycle.
type Phase string

const (
	PhaseEstimating Phase = "estimating"
	PhaseTrimming   Phase = "trimming"
	PhaseFinalized  Phase = "finalized"
)

// summaryCharLimit caps the plain-text extract carried by a
// synthetic summary message.
const summaryCharLimit = 2000

// StrategyConfig configures a [Strategy].
type StrategyConfig struct {
	// Budget sets the token limits.
	Budget Budget

	// Count counts tokens per message. Nil means a fresh
	// [CharEstimator].
	Count CountFunc

	// Mode selects discard or summarize trimming. Empty means
	// discard.
	Mode TrimMode

	// Logger receives trim diagnostics. Nil means the default text
	// handler on stderr.
	Logger *slog.Logger
}

// Strategy decides which canonical messages are included in a
// provider call. One Strategy serves one conversation: its default
// estimator calibrates across turns via [Strategy.RecordUsage].
//
// Not safe for concurrent use. The turn loop is single-threaded:
// Plan, then the provider call, then RecordUsage and [Reconcile].
type Strategy struct {
	budget    Budget
	count     CountFunc
	mode      TrimMode
	logger    *slog.Logger
	estimator *CharEstimator
	phase     Phase
}

// NewStrategy creates a Strategy from config.
func NewStrategy(config StrategyConfig) *Strategy {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	mode := config.Mode
	if mode == "" {
		mode = TrimDiscard
	}

	strategy := &Strategy{
		budget: config.Budget,
		count:  config.Count,
		mode:   mode,
		logger: logger,
	}
	if strategy.count == nil {
		strategy.estimator = NewCharEstimator()
		strategy.count = strategy.estimator.CountTokens
	}
	return strategy
}

// Phase returns the strategy's current lifecycle phase.
func (strategy *Strategy) Phase() Phase {
	return strategy.phase
}

// Result is the finalized outcome of one [Strategy.Plan] call.
type Result struct {
	// Payload is the trimmed message sequence to send.
	Payload []thread.Message

	// PromptTokens is the total token estimate for the payload.
	PromptTokens int

	// Counts maps every payload message ID to its token count.
	// Entries for trimmed-away messages are removed.
	Counts TokenCountMap

	// EvictedGroups is the number of turn groups trimmed away.
	EvictedGroups int

	// Summarized reports whether a synthetic summary message
	// replaced the evicted groups.
	Summarized bool
}

// Plan runs the per-turn lifecycle over the ordered canonical
// messages: estimate a token count for every message that lacks one,
// trim the oldest turn groups if the total plus the output
// reservation exceeds the context window, and finalize.
//
// The counts map carries token knowledge from earlier turns; nil
// starts fresh. Existing entries and per-message counts recorded on
// the messages themselves are trusted over fresh estimates.
//
// The returned error is non-nil when the conversation cannot fit
// even after maximum trimming; the Result is still a best-effort
// payload the caller may send.
func (strategy *Strategy) Plan(messages []thread.Message, counts TokenCountMap) (Result, error) {
	strategy.phase = PhaseEstimating
	if counts == nil {
		counts = make(TokenCountMap, len(messages))
	}
	for i := range messages {
		message := &messages[i]
		if _, known := counts[message.ID]; known {
			continue
		}
		if message.TokenCount != nil {
			counts[message.ID] = *message.TokenCount
			continue
		}
		counts[message.ID] = strategy.count(message)
	}

	strategy.phase = PhaseTrimming
	defer func() { strategy.phase = PhaseFinalized }()

	allowance := strategy.budget.MessageTokenBudget()
	total := 0
	for i := range messages {
		total += counts[messages[i].ID]
	}
	if total <= allowance {
		return Result{Payload: messages, PromptTokens: total, Counts: counts}, nil
	}

	groups := identifyTurnGroups(messages)
	if len(groups) <= 1 {
		// Only the current exchange; nothing can be trimmed.
		return Result{Payload: messages, PromptTokens: total, Counts: counts},
			fmt.Errorf("budget: conversation needs %d tokens but only %d fit and no turn group can be trimmed", total, allowance)
	}

	// Evict oldest groups first; the final group (current exchange)
	// is never evicted.
	evictCount := 0
	remaining := total
	for evictCount < len(groups)-1 && remaining > allowance {
		group := groups[evictCount]
		for i := group.startIndex; i < group.endIndex; i++ {
			remaining -= counts[messages[i].ID]
		}
		evictCount++
	}

	cut := groups[evictCount].startIndex
	evicted := messages[:cut]
	kept := messages[cut:]

	for i := range evicted {
		delete(counts, evicted[i].ID)
	}

	result := Result{Counts: counts, EvictedGroups: evictCount}

	if strategy.mode == TrimSummarize {
		summary := summarizeEvicted(evicted)
		summaryTokens := strategy.count(&summary)
		counts[summary.ID] = summaryTokens
		remaining += summaryTokens

		payload := make([]thread.Message, 0, len(kept)+1)
		payload = append(payload, summary)
		payload = append(payload, kept...)
		result.Payload = payload
		result.Summarized = true
	} else {
		result.Payload = kept
	}
	result.PromptTokens = remaining

	strategy.logger.Info("trimmed conversation to fit context window",
		"mode", string(strategy.mode),
		"evicted_groups", evictCount,
		"prompt_tokens", remaining,
		"budget_tokens", allowance)

	if remaining > allowance {
		return result, fmt.Errorf(
			"budget: still %d tokens over after trimming %d turn groups", remaining-allowance, evictCount)
	}
	return result, nil
}

// RecordUsage feeds measured input tokens back into the default
// estimator. The messages parameter is the payload that was actually
// sent. A no-op when an external CountFunc was injected.
func (strategy *Strategy) RecordUsage(payload []thread.Message, actualInputTokens int64) {
	if strategy.estimator != nil {
		strategy.estimator.RecordUsage(payload, actualInputTokens)
	}
}

// summarizeEvicted builds the synthetic message that stands in for
// evicted turn groups. The text is stripped to plain prose so
// markdown structure does not waste summary budget.
func summarizeEvicted(evicted []thread.Message) thread.Message {
	var builder strings.Builder
	for i := range evicted {
		text := evicted[i].Text
		if text == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(string(evicted[i].Role))
		builder.WriteString(": ")
		builder.WriteString(markdown.StripToPlainText(text))
		if builder.Len() > summaryCharLimit {
			break
		}
	}
	text := builder.String()
	if len(text) > summaryCharLimit {
		text = text[:summaryCharLimit]
	}

	return thread.Message{
		ID:             "summary-" + evicted[len(evicted)-1].ID,
		ParentID:       evicted[0].ParentID,
		ConversationID: evicted[0].ConversationID,
		Role:           "user",
		Text:           "[Earlier conversation, summarized]\n" + text,
		CreatedAt:      evicted[0].CreatedAt,
	}
}

// Reconcile converts the current message's estimated token count
// into a measured one: the provider's measured input tokens minus
// the sum of every other entry in the map. When that difference is
// not positive the original estimate is kept — the measured total
// can undercut the estimates when the provider caches or elides
// content, and a zero or negative per-message count would poison
// future turns. The corrected count is written back into counts and
// returned.
func Reconcile(counts TokenCountMap, currentMessageID string, measuredInputTokens int64) int {
	othersTotal := 0
	for id, count := range counts {
		if id != currentMessageID {
			othersTotal += count
		}
	}
	corrected := int(measuredInputTokens) - othersTotal
	if corrected <= 0 {
		return counts[currentMessageID]
	}
	counts[currentMessageID] = corrected
	return corrected
}
