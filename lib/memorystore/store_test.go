// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package memorystore

import (
	"context"
	"hash/fnv"
	"testing"

	chromem "github.com/philippgille/chromem-go"
)

// wordHashEmbedding is a deterministic offline embedding: each word
// bumps a hashed dimension, so texts sharing words land near each
// other. Good enough to exercise storage and recall without a model.
func wordHashEmbedding(_ context.Context, text string) ([]float32, error) {
	const dimensions = 64
	vector := make([]float32, dimensions)
	word := make([]byte, 0, 16)
	flush := func() {
		if len(word) == 0 {
			return
		}
		hasher := fnv.New32a()
		hasher.Write(word)
		vector[hasher.Sum32()%dimensions]++
		word = word[:0]
	}
	for i := 0; i < len(text); i++ {
		if text[i] == ' ' || text[i] == '\n' {
			flush()
			continue
		}
		word = append(word, text[i]|0x20)
	}
	flush()

	// chromem expects normalized vectors.
	var norm float32
	for _, value := range vector {
		norm += value * value
	}
	if norm > 0 {
		scale := 1.0 / sqrt32(norm)
		for i := range vector {
			vector[i] *= scale
		}
	}
	return vector, nil
}

func sqrt32(value float32) float32 {
	guess := value
	for i := 0; i < 20; i++ {
		guess = 0.5 * (guess + value/guess)
	}
	return guess
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(StoreConfig{
		Path:  t.TempDir(),
		Embed: chromem.EmbeddingFunc(wordHashEmbedding),
	})
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	return store
}

func TestRememberAndRecall(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	notes := map[string]string{
		"n1": "prefers metric units in all measurements",
		"n2": "works on the billing service backend",
		"n3": "favorite editor is helix",
	}
	for id, content := range notes {
		if err := store.Remember(ctx, "user-1", id, content); err != nil {
			t.Fatalf("Remember(%s): %v", id, err)
		}
	}

	recalled, err := store.Recall(ctx, "user-1", "tell me about the billing service", 2)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(recalled) != 2 {
		t.Fatalf("recalled %d notes, want 2", len(recalled))
	}
	if recalled[0].ID != "n2" {
		t.Errorf("best match = %s (%q), want n2", recalled[0].ID, recalled[0].Content)
	}
}

func TestRecallUnknownUser(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	recalled, err := store.Recall(context.Background(), "stranger", "anything", 3)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if recalled != nil {
		t.Errorf("recalled = %+v, want nil for unknown user", recalled)
	}
}

func TestRecallLimitClampedToCount(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	if err := store.Remember(ctx, "user-1", "only", "a single note"); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	recalled, err := store.Recall(ctx, "user-1", "note", 10)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(recalled) != 1 {
		t.Errorf("recalled %d notes, want 1", len(recalled))
	}
}

func TestUsersAreIsolated(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	if err := store.Remember(ctx, "alice", "a1", "alice likes tea"); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	recalled, err := store.Recall(ctx, "bob", "tea", 5)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(recalled) != 0 {
		t.Errorf("bob recalled alice's notes: %+v", recalled)
	}
}

func TestParseNotes(t *testing.T) {
	t.Parallel()

	notes := parseNotes("- prefers metric units\n* uses helix\n\nworks on billing\n")
	if len(notes) != 3 {
		t.Fatalf("notes = %d, want 3: %v", len(notes), notes)
	}
	if notes[0] != "prefers metric units" || notes[1] != "uses helix" || notes[2] != "works on billing" {
		t.Errorf("notes = %v", notes)
	}

	if got := parseNotes("NONE"); got != nil {
		t.Errorf("NONE parsed as %v", got)
	}
	if got := parseNotes("none\n"); got != nil {
		t.Errorf("lowercase none parsed as %v", got)
	}
}
