// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package payload assembles provider content blocks for wire
// messages.
//
// The [Assembler] takes a wire message (text, parts, attached file
// descriptors) and a provider capability record, loads the binary
// payloads through the attachment resolver, and produces the ordered
// block list the provider call sends: image blocks first, document
// blocks second, one trailing text block. A message that yields no
// binary blocks degrades to plain text rather than a single-element
// block list.
//
// Individual files that fail to load are skipped with a logged
// warning; assembly of the remaining blocks continues. Tasks that
// require at least one resolved reference use
// [ResolveRequiredReference], which fails with
// [MissingRequiredReference] enumerating what was requested and
// where it was searched.
package payload
