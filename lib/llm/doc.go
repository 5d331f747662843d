// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm provides a provider-neutral client layer for large
// language model APIs.
//
// The [Provider] interface abstracts over concrete API backends:
// [Anthropic] for the Anthropic Messages API (native document and
// image content blocks, citations), and [OpenAI] for the OpenAI Chat
// Completions API and compatible servers (text-only content;
// binary blocks are flattened to placeholders).
//
// Requests and responses use provider-neutral types: [Message] with
// typed [ContentBlock] values, [Request] with tools and sampling
// parameters, [Response] with stop reason and [Usage] accounting.
// Streaming responses are consumed through [EventStream], which
// yields incremental [StreamEvent] values while accumulating the
// complete [Response].
//
// [ProviderCaps] describes what a provider endpoint supports --
// native documents, citations, system messages -- so callers can
// shape payloads once per run instead of probing per message.
package llm
