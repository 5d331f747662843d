// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package contentstore is Loom's content-addressed attachment store.
//
// Uploaded binaries are stored under their keyed BLAKE3 digest, with
// a small header recording the compression algorithm and original
// size. Compression is chosen per object: text-like content gets
// zstd, mixed binary gets LZ4, and already-compressed formats (PNG,
// JPEG, PDF streams) are stored raw. Every read decompresses and
// re-hashes the payload, so corruption surfaces at read time rather
// than at the provider boundary.
//
// The store also serves as a [attachment.BlobReader], letting the
// attachment resolver treat content-addressed paths like any other
// storage root.
package contentstore
