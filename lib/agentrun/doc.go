// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package agentrun drives one conversational turn: one or more
// sequential agent stages over the assembled wire messages.
//
// Each stage gets its own model, instructions, and tool set; stages
// run strictly in order because later stages consume what earlier
// stages produced. The [Orchestrator] owns the cross-cutting turn
// concerns: aggregating token usage across stages without
// double-counting shared context, the one-shot retry when a provider
// rejects citation configuration, racing memory extraction against
// its timeout, and recording spend to the ledger off the response
// path.
//
// The orchestrator is the final catch point for a turn. Provider
// failures append a synthetic error part after whatever content was
// already buffered — except user cancellation, which preserves the
// buffer and adds nothing.
package agentrun
