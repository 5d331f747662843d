// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"strings"
	"testing"
)

func TestSSEScannerBasic(t *testing.T) {
	t.Parallel()

	input := "event: message_start\ndata: {\"type\":\"message_start\"}\n\nevent: ping\ndata: {}\n\n"
	scanner := NewSSEScanner(strings.NewReader(input))

	if !scanner.Next() {
		t.Fatal("expected first event")
	}
	event := scanner.Event()
	if event.Type != "message_start" {
		t.Errorf("event.Type = %q, want message_start", event.Type)
	}
	if event.Data != `{"type":"message_start"}` {
		t.Errorf("event.Data = %q, want JSON", event.Data)
	}

	if !scanner.Next() {
		t.Fatal("expected second event")
	}
	event = scanner.Event()
	if event.Type != "ping" {
		t.Errorf("event.Type = %q, want ping", event.Type)
	}

	if scanner.Next() {
		t.Error("expected no more events")
	}
	if err := scanner.Err(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSSEScannerMultipleDataLines(t *testing.T) {
	t.Parallel()

	// Per the SSE spec, multiple data lines are joined with newlines.
	input := "data: line one\ndata: line two\ndata: line three\n\n"
	scanner := NewSSEScanner(strings.NewReader(input))

	if !scanner.Next() {
		t.Fatal("expected event")
	}
	event := scanner.Event()
	if event.Type != "" {
		t.Errorf("event.Type = %q, want empty", event.Type)
	}
	if event.Data != "line one\nline two\nline three" {
		t.Errorf("event.Data = %q, want joined lines", event.Data)
	}
}

func TestSSEScannerCommentsIgnored(t *testing.T) {
	t.Parallel()

	input := ": keep-alive\ndata: payload\n\n"
	scanner := NewSSEScanner(strings.NewReader(input))

	if !scanner.Next() {
		t.Fatal("expected event")
	}
	if event := scanner.Event(); event.Data != "payload" {
		t.Errorf("event.Data = %q, want payload", event.Data)
	}
}

func TestSSEScannerNoTrailingBlankLine(t *testing.T) {
	t.Parallel()

	// An event terminated by EOF rather than a blank line should still
	// be delivered.
	input := "event: done\ndata: final"
	scanner := NewSSEScanner(strings.NewReader(input))

	if !scanner.Next() {
		t.Fatal("expected event at EOF")
	}
	event := scanner.Event()
	if event.Type != "done" || event.Data != "final" {
		t.Errorf("event = %+v, want done/final", event)
	}
}
