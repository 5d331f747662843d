// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package memorystore holds long-term per-user conversation memory.
//
// Notes are short distilled facts ("prefers metric units", "works on
// the billing service") extracted from finished turns and embedded
// into a per-user vector collection. At the start of a turn the
// orchestrator recalls the notes most similar to the user's prompt
// and folds them into the stage instructions.
//
// Extraction runs off the response path: the orchestrator races it
// against a short timeout and drops the result when the timeout
// wins, so memory can never delay a reply.
package memorystore
