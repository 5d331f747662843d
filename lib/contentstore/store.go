// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package contentstore

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/loomchat/loom/lib/attachment"
)

// objectHeaderSize is the fixed prefix of every object file: one
// compression tag byte plus the uncompressed size as a little-endian
// uint64.
const objectHeaderSize = 1 + 8

// Store is a content-addressed object store rooted at one directory.
// Objects live at <root>/<hex[:2]>/<hex> keyed by the keyed BLAKE3
// digest of their uncompressed payload. Writes are atomic (temp file
// plus rename), so concurrent writers of the same content converge
// on the same object without coordination.
type Store struct {
	root   string
	logger *slog.Logger
}

// NewStore opens (creating if needed) a store rooted at the given
// directory.
func NewStore(root string, logger *slog.Logger) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("contentstore: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("contentstore: creating root: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Store{root: root, logger: logger}, nil
}

// objectPath returns the on-disk location for a digest.
func (store *Store) objectPath(digest attachment.Digest) string {
	name := digest.String()
	return filepath.Join(store.root, name[:2], name)
}

// Put stores a payload and returns its digest. The MIME type guides
// compression selection; pass "" to probe. Storing content that is
// already present is a cheap no-op.
func (store *Store) Put(data []byte, mimeType string) (attachment.Digest, error) {
	digest := attachment.HashPayload(data)
	path := store.objectPath(digest)

	if _, err := os.Stat(path); err == nil {
		return digest, nil
	}

	tag := selectCompression(data, mimeType)
	compressed, err := compress(data, tag)
	if errors.Is(err, errIncompressible) {
		tag = CompressionNone
		compressed = data
	} else if err != nil {
		return attachment.Digest{}, fmt.Errorf("contentstore: compressing object: %w", err)
	}

	object := make([]byte, objectHeaderSize+len(compressed))
	object[0] = byte(tag)
	binary.LittleEndian.PutUint64(object[1:], uint64(len(data)))
	copy(object[objectHeaderSize:], compressed)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return attachment.Digest{}, fmt.Errorf("contentstore: creating shard directory: %w", err)
	}
	temp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return attachment.Digest{}, fmt.Errorf("contentstore: creating temp file: %w", err)
	}
	tempName := temp.Name()
	if _, err := temp.Write(object); err != nil {
		temp.Close()
		os.Remove(tempName)
		return attachment.Digest{}, fmt.Errorf("contentstore: writing object: %w", err)
	}
	if err := temp.Close(); err != nil {
		os.Remove(tempName)
		return attachment.Digest{}, fmt.Errorf("contentstore: closing object: %w", err)
	}
	if err := os.Rename(tempName, path); err != nil {
		os.Remove(tempName)
		return attachment.Digest{}, fmt.Errorf("contentstore: publishing object: %w", err)
	}

	store.logger.Debug("stored object",
		"digest", digest.String(), "size", len(data), "compression", tag.String())
	return digest, nil
}

// Get loads a payload by digest, decompressing and verifying the
// content hash. A missing object satisfies errors.Is(err,
// fs.ErrNotExist); a hash or size mismatch is a corruption error.
func (store *Store) Get(digest attachment.Digest) ([]byte, error) {
	object, err := os.ReadFile(store.objectPath(digest))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("contentstore: object %s: %w", digest, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("contentstore: reading object %s: %w", digest, err)
	}
	if len(object) < objectHeaderSize {
		return nil, fmt.Errorf("contentstore: object %s: truncated header (%d bytes)", digest, len(object))
	}

	tag := CompressionTag(object[0])
	uncompressedSize := binary.LittleEndian.Uint64(object[1:])
	payload, err := decompress(object[objectHeaderSize:], tag, int(uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("contentstore: object %s: %w", digest, err)
	}

	if actual := attachment.HashPayload(payload); actual != digest {
		return nil, fmt.Errorf("contentstore: object %s: content hash mismatch (got %s)", digest, actual)
	}
	return payload, nil
}

// Has reports whether an object exists without reading it.
func (store *Store) Has(digest attachment.Digest) bool {
	_, err := os.Stat(store.objectPath(digest))
	return err == nil
}

// ParseDigest parses the hex form produced by [attachment.Digest.String].
func ParseDigest(value string) (attachment.Digest, error) {
	var digest attachment.Digest
	decoded, err := hex.DecodeString(value)
	if err != nil || len(decoded) != len(digest) {
		return attachment.Digest{}, fmt.Errorf("contentstore: %q is not a digest", value)
	}
	copy(digest[:], decoded)
	return digest, nil
}

// ReadFile implements [attachment.BlobReader]: the last path element
// is interpreted as a digest. Paths that do not name a digest
// satisfy fs.ErrNotExist so the resolver moves on to its next
// candidate.
func (store *Store) ReadFile(_ context.Context, path string) ([]byte, error) {
	digest, err := ParseDigest(filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("contentstore: %s: %w", path, fs.ErrNotExist)
	}
	return store.Get(digest)
}
