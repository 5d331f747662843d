// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool is Loom's SQLite connection pool.
//
// Every Loom component with local structured storage (the spend
// ledger, conversation indexes) opens its database through this
// package. It wraps zombiezen.com/go/sqlite with one set of
// production pragmas: WAL journal mode, NORMAL synchronous, 5s busy
// timeout, memory-mapped reads.
//
// Callers [Pool.Take] a connection, do their work, and [Pool.Put] it
// back. Connections are not safe for concurrent use — each goroutine
// holds its own for the duration of its work.
//
// # Pragmas
//
//   - journal_mode=WAL: concurrent readers, single writer, neither
//     blocks the other.
//   - synchronous=NORMAL: transactions survive a process crash. Not
//     durable across power loss — acceptable for spend accounting
//     and indexes whose source of truth is the conversation store.
//   - busy_timeout=5000: wait up to 5 seconds for a write lock
//     instead of failing with SQLITE_BUSY.
//   - foreign_keys=OFF: referential integrity is managed explicitly
//     in the stores.
//   - cache_size=-8192: 8 MB page cache per connection.
//   - mmap_size=268435456: 256 MB memory-mapped reads.
//   - temp_store=MEMORY: temporary tables and indexes in memory.
//
// The package is intentionally thin: it applies the pragmas and
// exposes the zombiezen types directly. Stores write SQL, run it
// with sqlitex.Execute, and manage transactions with
// sqlitex.ImmediateTransaction — no query builder, no ORM.
package sqlitepool
