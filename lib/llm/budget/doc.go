// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package budget decides which canonical messages fit into a
// provider call's context window and tracks token cost per message.
//
// The [Strategy] runs once per turn in three phases: it estimates a
// token count for every message that lacks one, trims the payload to
// fit the window (discarding oldest turn groups, or replacing them
// with a summary), and finalizes with the trimmed payload, the total
// prompt token estimate, and the updated [TokenCountMap]. After the
// provider reports measured usage, [Reconcile] converts the current
// message's estimate into a measured count.
//
// Token estimation is character-based: [CharEstimator] starts from a
// conservative chars-per-token ratio and calibrates itself from
// actual provider usage over the life of a conversation.
package budget
