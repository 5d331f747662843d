// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package budget

import "github.com/loomchat/loom/lib/thread"

// defaultCharactersPerToken is the initial ratio before calibration.
// 4.0 is conservative for English text with markup — BPE tokenizers
// typically average 3.5-4.5 characters per token. Conservative means
// token counts are overestimated, which trims slightly early rather
// than risking a context overflow from the provider.
const defaultCharactersPerToken = 4.0

// defaultSmoothingFactor controls how quickly the ratio adapts: 30%
// weight on each new observation, 70% on the running average.
const defaultSmoothingFactor = 0.3

// CharEstimator estimates token counts from character counts using
// an adaptive ratio calibrated from actual provider usage.
//
// The ratio intentionally absorbs the fixed overhead of system
// instructions and tool definitions, so early estimates run slightly
// high — the safe direction. As the conversation grows and message
// content dominates the overhead, the ratio converges toward the
// true tokenizer ratio for this conversation's content mix.
type CharEstimator struct {
	charactersPerToken float64
	smoothingFactor    float64
	observationCount   int
}

// NewCharEstimator creates a CharEstimator with the default initial
// ratio of 4.0 characters per token and a smoothing factor of 0.3.
func NewCharEstimator() *CharEstimator {
	return &CharEstimator{
		charactersPerToken: defaultCharactersPerToken,
		smoothingFactor:    defaultSmoothingFactor,
	}
}

// CountTokens returns the estimated token count for one message.
// Always rounds up.
func (estimator *CharEstimator) CountTokens(message *thread.Message) int {
	characters := messageCharCount(message)
	return int(float64(characters)/estimator.charactersPerToken) + 1
}

// EstimateTokens returns the estimated token count for a message
// slice.
func (estimator *CharEstimator) EstimateTokens(messages []thread.Message) int {
	characters := messagesCharCount(messages)
	return int(float64(characters)/estimator.charactersPerToken) + 1
}

// RecordUsage updates the calibration from the actual input token
// count of a provider response. The messages parameter is the exact
// payload that was sent.
//
// The first observation replaces the default ratio entirely — one
// real data point beats any default. Subsequent observations blend
// via exponential moving average to smooth out variation between
// text-heavy and tool-heavy turns.
func (estimator *CharEstimator) RecordUsage(messages []thread.Message, actualInputTokens int64) {
	if actualInputTokens <= 0 {
		return
	}
	characters := messagesCharCount(messages)
	if characters == 0 {
		return
	}

	observedRatio := float64(characters) / float64(actualInputTokens)

	estimator.observationCount++
	if estimator.observationCount == 1 {
		estimator.charactersPerToken = observedRatio
		return
	}

	estimator.charactersPerToken = estimator.smoothingFactor*observedRatio +
		(1.0-estimator.smoothingFactor)*estimator.charactersPerToken
}
