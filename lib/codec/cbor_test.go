// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

// messageSnapshot is a representative persisted type using cbor
// struct tags (the convention for persistence-only types).
type messageSnapshot struct {
	ID         string `cbor:"id"`
	ParentID   string `cbor:"parent_id,omitempty"`
	Role       string `cbor:"role"`
	TokenCount int    `cbor:"token_count"`
}

// spendRecord uses json struct tags (the convention for types that
// serve both JSON and CBOR, relying on fxamacker's fallback).
type spendRecord struct {
	Model        string `json:"model"`
	OutputTokens int64  `json:"output_tokens"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := messageSnapshot{
		ID:         "9c2b7f0e-0000-4000-8000-000000000001",
		ParentID:   "00000000-0000-0000-0000-000000000000",
		Role:       "assistant",
		TokenCount: 42,
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded messageSnapshot
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	record := spendRecord{Model: "claude-sonnet-4-5", OutputTokens: 65}

	first, err := Marshal(record)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(record)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestEncoderDecoderStreamRoundtrip(t *testing.T) {
	snapshots := []messageSnapshot{
		{ID: "a", Role: "user", TokenCount: 1},
		{ID: "b", ParentID: "a", Role: "assistant", TokenCount: 2},
		{ID: "c", ParentID: "b", Role: "user", TokenCount: 0},
	}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, snapshot := range snapshots {
		if err := encoder.Encode(snapshot); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i, want := range snapshots {
		var got messageSnapshot
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode[%d]: %v", i, err)
		}
		if got != want {
			t.Errorf("stream roundtrip[%d]: got %+v, want %+v", i, got, want)
		}
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	// Encode a superset type, decode into the known type. Forward
	// compatibility requires unknown fields to be dropped silently.
	superset := struct {
		ID    string `cbor:"id"`
		Role  string `cbor:"role"`
		Extra string `cbor:"extra"`
	}{ID: "x", Role: "user", Extra: "future field"}

	data, err := Marshal(superset)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded messageSnapshot
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.ID != "x" || decoded.Role != "user" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestDefaultMapTypeIsStringKeyed(t *testing.T) {
	data, err := Marshal(map[string]any{"kind": "image", "width": 800})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if _, ok := decoded.(map[string]any); !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
}
