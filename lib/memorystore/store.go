// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package memorystore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// Note is one recalled memory.
type Note struct {
	ID         string
	Content    string
	Similarity float32
}

// StoreConfig configures a [Store].
type StoreConfig struct {
	// Path is the directory holding the persistent collections.
	Path string

	// Embed computes embeddings for notes and queries.
	Embed chromem.EmbeddingFunc

	// Logger receives collection lifecycle messages. Nil means the
	// default text handler on stderr.
	Logger *slog.Logger
}

// Store wraps a persistent chromem database with one collection per
// user. Safe for concurrent use; writes are serialized.
type Store struct {
	mutex  sync.RWMutex
	db     *chromem.DB
	embed  chromem.EmbeddingFunc
	logger *slog.Logger
}

// OpenStore opens (creating if needed) the persistent memory store.
func OpenStore(config StoreConfig) (*Store, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("memorystore: Path is required")
	}
	if config.Embed == nil {
		return nil, fmt.Errorf("memorystore: Embed is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	db, err := chromem.NewPersistentDB(config.Path, false)
	if err != nil {
		return nil, fmt.Errorf("memorystore: opening %s: %w", config.Path, err)
	}
	return &Store{db: db, embed: config.Embed, logger: logger}, nil
}

func collectionName(userID string) string {
	return "user-" + userID + "-memories"
}

// collection returns (creating if needed) the per-user collection.
// Caller must hold at least a read lock.
func (store *Store) collection(userID string) (*chromem.Collection, error) {
	name := collectionName(userID)
	if col := store.db.GetCollection(name, store.embed); col != nil {
		return col, nil
	}
	col, err := store.db.CreateCollection(name, nil, store.embed)
	if err != nil {
		return nil, fmt.Errorf("memorystore: creating collection for user %s: %w", userID, err)
	}
	return col, nil
}

// Remember indexes (or re-indexes, on ID collision) one note for a
// user.
func (store *Store) Remember(ctx context.Context, userID, noteID, content string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	col, err := store.collection(userID)
	if err != nil {
		return err
	}
	err = col.AddDocument(ctx, chromem.Document{ID: noteID, Content: content})
	if err != nil {
		return fmt.Errorf("memorystore: storing note %s: %w", noteID, err)
	}
	return nil
}

// Recall returns up to limit notes most similar to the query, best
// first. A user with no memories recalls nothing, not an error.
func (store *Store) Recall(ctx context.Context, userID, query string, limit int) ([]Note, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	col := store.db.GetCollection(collectionName(userID), store.embed)
	if col == nil {
		return nil, nil
	}
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	results, err := col.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("memorystore: querying user %s: %w", userID, err)
	}

	notes := make([]Note, 0, len(results))
	for _, result := range results {
		notes = append(notes, Note{
			ID:         result.ID,
			Content:    result.Content,
			Similarity: result.Similarity,
		})
	}
	return notes, nil
}
