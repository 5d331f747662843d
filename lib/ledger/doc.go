// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger records per-turn token spend in SQLite.
//
// The run orchestrator hands the ledger one record per completed
// turn: who spent, against which model and conversation, and how
// many tokens. Providers that report prompt caching get the
// structured variant, which splits prompt tokens into cache reads
// and cache writes — the two are billed at very different rates, so
// collapsing them would make the ledger useless for cost review.
//
// Recording is fire-and-forget from the response path: the
// orchestrator logs failures and moves on, so a full disk never
// blocks a chat reply.
package ledger
