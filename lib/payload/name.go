// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package payload

import (
	"path/filepath"
	"strings"
)

// fallbackDocumentName is used when sanitization leaves nothing.
const fallbackDocumentName = "document"

// SanitizeDocumentName derives a provider-safe document name from a
// display filename: the extension is stripped, characters outside
// [A-Za-z0-9 \-()\[\]] are replaced with dashes, repeated spaces and
// repeated dashes are collapsed, and the result is trimmed. An empty
// result falls back to "document".
func SanitizeDocumentName(filename string) string {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))

	var builder strings.Builder
	builder.Grow(len(name))
	for _, r := range name {
		if isAllowedNameRune(r) {
			builder.WriteRune(r)
		} else {
			builder.WriteByte('-')
		}
	}
	name = builder.String()

	name = collapseRuns(name, ' ')
	name = collapseRuns(name, '-')
	name = strings.Trim(name, " -")

	if name == "" {
		return fallbackDocumentName
	}
	return name
}

func isAllowedNameRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == ' ', r == '-', r == '(', r == ')', r == '[', r == ']':
		return true
	default:
		return false
	}
}

// collapseRuns replaces runs of repeated target bytes with a single
// occurrence.
func collapseRuns(value string, target byte) string {
	var builder strings.Builder
	builder.Grow(len(value))
	var previous byte
	for i := 0; i < len(value); i++ {
		if value[i] == target && previous == target {
			continue
		}
		builder.WriteByte(value[i])
		previous = value[i]
	}
	return builder.String()
}
