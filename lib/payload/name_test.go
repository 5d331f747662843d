// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package payload

import (
	"strings"
	"testing"
)

func TestSanitizeDocumentName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		filename string
		want     string
	}{
		{"Q3 Report (final)!!.pdf", "Q3 Report (final)"},
		{"simple.pdf", "simple"},
		{"no-extension", "no-extension"},
		{"weird__chars@#$%.docx", "weird-chars"},
		{"spaces    everywhere.xlsx", "spaces everywhere"},
		{"----.csv", "document"},
		{"", "document"},
		{"[bracketed] name.pdf", "[bracketed] name"},
		{"über-résumé.pdf", "ber-r-sum"},
		{"archive.tar.gz", "archive.tar"},
	}

	for _, test := range tests {
		got := SanitizeDocumentName(test.filename)
		if got != test.want {
			t.Errorf("SanitizeDocumentName(%q) = %q, want %q", test.filename, got, test.want)
		}
	}
}

func TestSanitizeDocumentNameCharset(t *testing.T) {
	t.Parallel()

	// Whatever goes in, only the allowed charset comes out, with no
	// repeated spaces or dashes.
	inputs := []string{
		"report<>:\"/\\|?*.pdf",
		"emoji \U0001F600 name.doc",
		"tabs\tand\nnewlines.xls",
		"a!!!!b????c.pdf",
	}

	for _, input := range inputs {
		got := SanitizeDocumentName(input)
		if got == "" {
			t.Errorf("SanitizeDocumentName(%q) is empty", input)
		}
		for _, r := range got {
			if !isAllowedNameRune(r) {
				t.Errorf("SanitizeDocumentName(%q) = %q contains disallowed rune %q", input, got, r)
			}
		}
		if strings.Contains(got, "  ") || strings.Contains(got, "--") {
			t.Errorf("SanitizeDocumentName(%q) = %q has repeated space or dash", input, got)
		}
	}
}

func TestSanitizeDocumentNameStripsOnlyTrueExtension(t *testing.T) {
	t.Parallel()

	// A trailing dot-segment counts as the extension; interior dots
	// survive sanitization as dashes only when disallowed. Here the
	// interior dot becomes a dash because '.' is outside the charset.
	got := SanitizeDocumentName("v1.2 release notes.pdf")
	if got != "v1-2 release notes" {
		t.Errorf("got %q, want \"v1-2 release notes\"", got)
	}
}
