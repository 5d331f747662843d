// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Loom's standard CBOR encoding configuration.
//
// Loom uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: provider APIs, the chat client
//     protocol, and CLI output.
//   - CBOR for internal persistence: saved message snapshots, the
//     content store index, and spend records queued for the ledger.
//
// This package provides the shared CBOR encoding and decoding modes
// so that every Loom package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding
// (RFC 8949 §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces
// identical bytes, which keeps content-addressed storage stable.
//
// For buffer-oriented operations (files, snapshots):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets, append logs):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: the type is only ever serialized as CBOR
//     (persisted snapshots, internal state files).
//   - `json` tag: the type may be serialized as both JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor`
//     tags are absent, so a single `json` tag controls field naming
//     and omitempty for both formats.
//
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents the contract.
package codec
