// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package attachment

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// File describes a stored binary object attached to a message. The
// descriptor is created at upload time and never mutated by the
// pipeline.
type File struct {
	// ID is the file's unique identifier.
	ID string `json:"id"`

	// MessageID is the owning message, when known. May be empty and
	// resolved post-hoc.
	MessageID string `json:"message_id,omitempty"`

	// MIMEType determines which normalization and content-block path
	// applies (image/*, application/pdf, office formats, csv).
	MIMEType string `json:"mime_type"`

	// Filename is the display name as uploaded.
	Filename string `json:"filename"`

	// Path is the storage path recorded at upload time. The recorded
	// prefix may not match the current deployment; the resolver
	// rewrites it against the configured roots.
	Path string `json:"path"`

	// Content is the payload as recorded inline in the message
	// store, for uploads small enough to embed. Serialization may
	// have mangled it into any of the shapes [NormalizeBuffer]
	// accepts; the resolver normalizes it before searching paths.
	Content any `json:"content,omitempty"`

	// Size is the byte size recorded at upload.
	Size int64 `json:"size"`

	// Width and Height are set for images only.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// Embedded marks files injected by the system rather than
	// uploaded by the user.
	Embedded bool `json:"embedded,omitempty"`

	// DisableCitations turns provider citation extraction off for
	// this file even when the provider supports it.
	DisableCitations bool `json:"disable_citations,omitempty"`
}

// Digest is a 32-byte BLAKE3 digest of an attachment payload.
type Digest [32]byte

// attachmentDomainKey is the BLAKE3 domain separation key for
// attachment payload digests. The byte values are the ASCII encoding
// of the domain name, zero-padded to 32 bytes, so the key is
// inspectable in hex dumps. Changing it invalidates every stored
// digest.
var attachmentDomainKey = [32]byte{
	'l', 'o', 'o', 'm', '.', 'a', 't', 't', 'a', 'c', 'h', 'm', 'e', 'n', 't', 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashPayload computes the attachment-domain BLAKE3 digest of a
// payload. Used for logging, deduplication, and content-store
// verification.
func HashPayload(data []byte) Digest {
	// NewKeyed requires exactly 32 bytes, which attachmentDomainKey
	// guarantees. The error is only returned for wrong key length, so
	// this cannot fail with our fixed-size array.
	hasher, err := blake3.NewKeyed(attachmentDomainKey[:])
	if err != nil {
		panic("attachment: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// String returns the hex form of the digest.
func (digest Digest) String() string {
	return hex.EncodeToString(digest[:])
}
