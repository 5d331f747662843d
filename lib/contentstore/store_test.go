// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package contentstore

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loomchat/loom/lib/attachment"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "objects"), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestStoreRoundtrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	payload := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog\n", 100))

	digest, err := store.Put(payload, "text/plain")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !store.Has(digest) {
		t.Error("Has = false after Put")
	}

	loaded, err := store.Get(digest)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(loaded, payload) {
		t.Error("roundtrip payload mismatch")
	}

	// Text content should actually have been compressed on disk.
	object, err := os.ReadFile(store.objectPath(digest))
	if err != nil {
		t.Fatalf("reading object file: %v", err)
	}
	if CompressionTag(object[0]) != CompressionZstd {
		t.Errorf("tag = %s, want zstd for text", CompressionTag(object[0]))
	}
	if len(object) >= len(payload) {
		t.Errorf("object %d bytes not smaller than payload %d", len(object), len(payload))
	}
}

func TestStoreIncompressibleStoredRaw(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	payload := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(payload)

	digest, err := store.Put(payload, "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	object, err := os.ReadFile(store.objectPath(digest))
	if err != nil {
		t.Fatalf("reading object file: %v", err)
	}
	if CompressionTag(object[0]) != CompressionNone {
		t.Errorf("tag = %s, want none for random bytes", CompressionTag(object[0]))
	}

	loaded, err := store.Get(digest)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(loaded, payload) {
		t.Error("roundtrip payload mismatch")
	}
}

func TestStoreEmptyPayload(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	digest, err := store.Put(nil, "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	loaded, err := store.Get(digest)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("loaded %d bytes, want empty", len(loaded))
	}
}

func TestStorePutIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	payload := []byte("same content")

	first, err := store.Put(payload, "")
	if err != nil {
		t.Fatalf("first Put: %v", err)
	}
	second, err := store.Put(payload, "")
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if first != second {
		t.Errorf("digests differ: %s vs %s", first, second)
	}
}

func TestStoreMissingObject(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	_, err := store.Get(attachment.HashPayload([]byte("never stored")))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v, want fs.ErrNotExist", err)
	}
}

func TestStoreDetectsCorruption(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	digest, err := store.Put([]byte("important attachment bytes"), "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Flip a payload byte behind the store's back.
	path := store.objectPath(digest)
	object, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading object: %v", err)
	}
	object[len(object)-1] ^= 0xFF
	if err := os.WriteFile(path, object, 0o644); err != nil {
		t.Fatalf("rewriting object: %v", err)
	}

	if _, err := store.Get(digest); err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Errorf("Get on corrupted object: %v, want hash mismatch", err)
	}
}

func TestStoreReadFile(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	payload := []byte("resolver-visible content")
	digest, err := store.Put(payload, "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	loaded, err := store.ReadFile(context.Background(), "cas/"+digest.String())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(loaded, payload) {
		t.Error("ReadFile payload mismatch")
	}

	// Non-digest paths report not-found so the resolver can try
	// its other candidates.
	if _, err := store.ReadFile(context.Background(), "/uploads/cat.jpg"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("non-digest path: %v, want fs.ErrNotExist", err)
	}
}

func TestParseDigest(t *testing.T) {
	t.Parallel()

	digest := attachment.HashPayload([]byte("x"))
	parsed, err := ParseDigest(digest.String())
	if err != nil {
		t.Fatalf("ParseDigest: %v", err)
	}
	if parsed != digest {
		t.Error("parsed digest mismatch")
	}

	for _, bad := range []string{"", "zz", "abcd", strings.Repeat("0", 63)} {
		if _, err := ParseDigest(bad); err == nil {
			t.Errorf("ParseDigest(%q) accepted", bad)
		}
	}
}
