// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package attachment locates and normalizes binary attachment
// payloads for the message pipeline.
//
// [File] describes a stored binary object (upload metadata: MIME
// type, display name, storage path). The descriptor is created at
// upload time and is read-only to this package.
//
// [Resolver.LoadBinary] turns a descriptor into bytes. Storage paths
// recorded in descriptors reflect the deployment that wrote them, so
// the resolver tries an ordered list of path candidates (verbatim
// path, prefix rewrites against the configured roots, basename
// lookups) before falling back to an HTTP fetch against the local
// server. Exhausting every candidate yields [LoadError] with kind
// [NotFound] listing what was searched.
//
// [NormalizeBuffer] is the single place that understands the
// serialized shapes a byte payload can arrive in (raw bytes, base64
// string, numeric-keyed object, wrapped Buffer object — artifacts of
// the document database's JSON representation of binary data). It
// returns one canonical []byte or a [ConversionError] naming the
// shape it observed. All shape detection lives here; nothing else in
// the pipeline inspects payload structure.
package attachment
