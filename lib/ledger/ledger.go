// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/loomchat/loom/lib/clock"
	"github.com/loomchat/loom/lib/sqlitepool"
)

// SpendContext identifies who spent tokens and against what.
type SpendContext struct {
	Model          string
	ConversationID string
	UserID         string
}

// TokenSpend is the simple spend shape: total prompt tokens and
// completion tokens.
type TokenSpend struct {
	Prompt     int64
	Completion int64
}

// StructuredTokenSpend splits prompt tokens into cache reads and
// cache writes for providers that report prompt caching.
type StructuredTokenSpend struct {
	PromptRead  int64
	PromptWrite int64
	Completion  int64
}

// schema is applied to every pool connection on first use.
const schema = `
CREATE TABLE IF NOT EXISTS spend (
	id               INTEGER PRIMARY KEY,
	recorded_at_ms   INTEGER NOT NULL,
	model            TEXT NOT NULL,
	conversation_id  TEXT NOT NULL,
	user_id          TEXT NOT NULL,
	prompt_tokens    INTEGER NOT NULL,
	prompt_read      INTEGER NOT NULL DEFAULT 0,
	prompt_write     INTEGER NOT NULL DEFAULT 0,
	completion       INTEGER NOT NULL,
	structured       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS spend_by_user
	ON spend (user_id, recorded_at_ms);
CREATE INDEX IF NOT EXISTS spend_by_conversation
	ON spend (conversation_id, recorded_at_ms);
`

// StoreConfig holds the parameters for opening a ledger store.
type StoreConfig struct {
	// Path is the SQLite database file. The parent directory must
	// exist.
	Path string

	// PoolSize defaults to 4.
	PoolSize int

	// Clock provides record timestamps. Nil means the real clock.
	Clock clock.Clock

	// Logger receives operational messages.
	Logger *slog.Logger
}

// Store is the SQLite-backed usage ledger.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// OpenStore opens (creating if needed) a ledger database.
func OpenStore(config StoreConfig) (*Store, error) {
	poolSize := config.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}
	timeSource := config.Clock
	if timeSource == nil {
		timeSource = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     config.Path,
		PoolSize: poolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	return &Store{pool: pool, clock: timeSource, logger: logger}, nil
}

// Close releases the underlying pool.
func (store *Store) Close() error {
	return store.pool.Close()
}

// RecordSpend records a simple prompt/completion spend.
func (store *Store) RecordSpend(ctx context.Context, spendContext SpendContext, tokens TokenSpend) error {
	return store.insert(ctx, spendContext, tokens.Prompt, 0, 0, tokens.Completion, false)
}

// RecordStructuredSpend records a spend with the prompt split into
// cache reads and writes. The stored prompt total is the sum of the
// two, so aggregate queries need not care which variant wrote a row.
func (store *Store) RecordStructuredSpend(ctx context.Context, spendContext SpendContext, tokens StructuredTokenSpend) error {
	return store.insert(ctx, spendContext,
		tokens.PromptRead+tokens.PromptWrite, tokens.PromptRead, tokens.PromptWrite,
		tokens.Completion, true)
}

func (store *Store) insert(ctx context.Context, spendContext SpendContext, prompt, promptRead, promptWrite, completion int64, structured bool) error {
	conn, err := store.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	defer store.pool.Put(conn)

	structuredFlag := 0
	if structured {
		structuredFlag = 1
	}
	err = sqlitex.Execute(conn, `
		INSERT INTO spend
			(recorded_at_ms, model, conversation_id, user_id,
			 prompt_tokens, prompt_read, prompt_write, completion, structured)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				store.clock.Now().UnixMilli(),
				spendContext.Model,
				spendContext.ConversationID,
				spendContext.UserID,
				prompt, promptRead, promptWrite, completion,
				structuredFlag,
			},
		})
	if err != nil {
		return fmt.Errorf("ledger: recording spend: %w", err)
	}
	return nil
}

// Totals is an aggregate over spend rows.
type Totals struct {
	Prompt      int64
	PromptRead  int64
	PromptWrite int64
	Completion  int64
	Records     int64
}

// UserTotals sums all spend recorded for one user.
func (store *Store) UserTotals(ctx context.Context, userID string) (Totals, error) {
	return store.totals(ctx, "user_id", userID)
}

// ConversationTotals sums all spend recorded for one conversation.
func (store *Store) ConversationTotals(ctx context.Context, conversationID string) (Totals, error) {
	return store.totals(ctx, "conversation_id", conversationID)
}

func (store *Store) totals(ctx context.Context, column, value string) (Totals, error) {
	conn, err := store.pool.Take(ctx)
	if err != nil {
		return Totals{}, fmt.Errorf("ledger: %w", err)
	}
	defer store.pool.Put(conn)

	var totals Totals
	err = sqlitex.Execute(conn, fmt.Sprintf(`
		SELECT
			COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(prompt_read), 0),
			COALESCE(SUM(prompt_write), 0),
			COALESCE(SUM(completion), 0),
			COUNT(*)
		FROM spend WHERE %s = ?`, column),
		&sqlitex.ExecOptions{
			Args: []any{value},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				totals.Prompt = stmt.ColumnInt64(0)
				totals.PromptRead = stmt.ColumnInt64(1)
				totals.PromptWrite = stmt.ColumnInt64(2)
				totals.Completion = stmt.ColumnInt64(3)
				totals.Records = stmt.ColumnInt64(4)
				return nil
			},
		})
	if err != nil {
		return Totals{}, fmt.Errorf("ledger: summing spend: %w", err)
	}
	return totals, nil
}
