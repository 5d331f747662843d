// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package thread maintains the dual representation of a conversation:
// canonical messages and wire messages.
//
// Canonical messages ([Message]) are the persisted, UI-facing record
// of a conversation. They form a branching tree linked by parent IDs;
// [BuildOrderedThread] reconstructs the root-to-leaf sequence ending
// at a given leaf. Canonical messages never carry provider content
// blocks or raw binary payloads once persisted.
//
// Wire messages ([WireMessage]) are disposable per-call copies
// produced by [ForkWireCopy]. The payload assembler decorates them
// with provider content blocks (rehydrated documents and images);
// they are discarded after the provider call completes. The two
// tracks never alias: mutating a wire message is never observable on
// its canonical source. [MergeEphemeralFields] is the single sanctioned
// back-channel, and it carries only lightweight derived metadata
// (OCR text, resolved URLs), never binary content.
//
// [SaveOptionsFor] computes what a turn hands to the persistence
// layer, stripping any embedded binary payload regardless of which
// track it originated from.
package thread
