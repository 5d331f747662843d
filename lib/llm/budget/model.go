// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package budget

// modelRegistry maps model identifiers to context window sizes in
// tokens. Best-effort: models not in the registry fall back to
// defaultContextWindow, and deployments can always override the
// window via configuration.
//
// Values are from provider documentation as of early 2026.
var modelRegistry = map[string]int{
	// Anthropic Claude.
	"claude-opus-4-6":            200_000,
	"claude-sonnet-4-5-20250929": 200_000,
	"claude-haiku-4-5-20251001":  200_000,
	"claude-3-5-sonnet-20241022": 200_000,
	"claude-3-5-haiku-20241022":  200_000,

	// OpenAI GPT-4 family.
	"gpt-4o":      128_000,
	"gpt-4o-mini": 128_000,
	"gpt-4-turbo": 128_000,
	"gpt-4":       8_192,

	// OpenAI reasoning models.
	"o1":      200_000,
	"o1-mini": 128_000,
	"o3":      200_000,
	"o3-mini": 200_000,

	// DeepSeek.
	"deepseek-chat":     64_000,
	"deepseek-reasoner": 64_000,

	// Google Gemini.
	"gemini-2.0-flash": 1_048_576,
	"gemini-2.0-pro":   1_048_576,
	"gemini-1.5-pro":   2_097_152,

	// Mistral.
	"mistral-large-latest": 128_000,
	"mistral-small-latest": 32_000,

	// Meta Llama (common hosted deployments).
	"llama-3.1-405b": 128_000,
	"llama-3.1-70b":  128_000,
	"llama-3.1-8b":   128_000,
}

// defaultContextWindow is used when a model is not in the registry.
// 128k is a conservative middle ground for modern models.
const defaultContextWindow = 128_000

// ContextWindowForModel returns the context window size in tokens
// for the given model identifier, or defaultContextWindow when the
// model is not in the registry.
func ContextWindowForModel(model string) int {
	if window, found := modelRegistry[model]; found {
		return window
	}
	return defaultContextWindow
}
