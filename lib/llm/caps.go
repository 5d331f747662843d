// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package llm

// ProviderCaps describes the content features a provider/model
// combination supports. It is resolved once per run (see
// lib/capability) and passed explicitly into the payload assembler
// and the run orchestrator, so no code path ever branches on a
// provider name string.
//
// ProviderCaps values are read-only after resolution.
type ProviderCaps struct {
	// SupportsNativeDocuments indicates the provider accepts document
	// content blocks with raw bytes. When false, document content is
	// flattened to text (extracted or described) before sending.
	SupportsNativeDocuments bool

	// SupportsCitations indicates the provider accepts a citations
	// configuration on PDF document blocks.
	SupportsCitations bool

	// SupportsSystemMessages indicates the provider accepts a
	// dedicated system prompt field. When false, system instructions
	// are prepended to the first user message.
	SupportsSystemMessages bool

	// ImageFormatDefault is the format tag used for images whose MIME
	// type is not specifically recognized ("png" for current
	// providers).
	ImageFormatDefault string
}
